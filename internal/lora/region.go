package lora

import (
	"fmt"
	"strings"
)

// Region is the regulatory region code. Values match the firmware enum.
type Region int32

const (
	RegionUnset  Region = 0
	RegionUS     Region = 1
	RegionEU433  Region = 2
	RegionEU868  Region = 3
	RegionCN     Region = 4
	RegionJP     Region = 5
	RegionANZ    Region = 6
	RegionKR     Region = 7
	RegionTW     Region = 8
	RegionRU     Region = 9
	RegionIN     Region = 10
	RegionNZ865  Region = 11
	RegionTH     Region = 12
	RegionLora24 Region = 13
	RegionUA433  Region = 14
	RegionUA868  Region = 15
	RegionMY433  Region = 16
	RegionMY919  Region = 17
	RegionSG923  Region = 18
)

// regionInfo describes the usable band of a region.
type regionInfo struct {
	key       string
	freqStart float64 // MHz
	freqEnd   float64 // MHz
	spacing   float64 // MHz between channels
	wideLora  bool
}

var regions = map[Region]regionInfo{
	RegionUnset:  {"UNSET", 902.0, 928.0, 0, false},
	RegionUS:     {"US", 902.0, 928.0, 0, false},
	RegionEU433:  {"EU_433", 433.0, 434.0, 0, false},
	RegionEU868:  {"EU_868", 869.4, 869.65, 0, false},
	RegionCN:     {"CN", 470.0, 510.0, 0, false},
	RegionJP:     {"JP", 920.5, 923.5, 0, false},
	RegionANZ:    {"ANZ", 915.0, 928.0, 0, false},
	RegionKR:     {"KR", 920.0, 923.0, 0, false},
	RegionTW:     {"TW", 920.0, 925.0, 0, false},
	RegionRU:     {"RU", 868.7, 869.2, 0, false},
	RegionIN:     {"IN", 865.0, 867.0, 0, false},
	RegionNZ865:  {"NZ_865", 864.0, 868.0, 0, false},
	RegionTH:     {"TH", 920.0, 925.0, 0, false},
	RegionLora24: {"LORA_24", 2400.0, 2483.5, 0, true},
	RegionUA433:  {"UA_433", 433.0, 434.7, 0, false},
	RegionUA868:  {"UA_868", 868.0, 868.6, 0, false},
	RegionMY433:  {"MY_433", 433.0, 435.0, 0, false},
	RegionMY919:  {"MY_919", 919.0, 924.0, 0, false},
	RegionSG923:  {"SG_923", 917.0, 925.0, 0, false},
}

// regionFor falls back to the UNSET band for unknown codes.
func regionFor(r Region) regionInfo {
	if info, ok := regions[r]; ok {
		return info
	}
	return regions[RegionUnset]
}

// String returns the config key of the region, e.g. "EU_868".
func (r Region) String() string {
	if info, ok := regions[r]; ok {
		return info.key
	}
	return fmt.Sprintf("REGION_%d", int32(r))
}

// ParseRegion parses a region config key, case-insensitively.
func ParseRegion(s string) (Region, error) {
	for r, info := range regions {
		if strings.EqualFold(s, info.key) {
			return r, nil
		}
	}
	return RegionUnset, fmt.Errorf("unknown region %q", s)
}
