package lora

import (
	"fmt"
	"strings"
)

// ModemPreset is a named bandwidth/spreading configuration. Values match the firmware enum.
type ModemPreset int32

const (
	PresetLongFast     ModemPreset = 0
	PresetLongSlow     ModemPreset = 1
	PresetVeryLongSlow ModemPreset = 2
	PresetMediumSlow   ModemPreset = 3
	PresetMediumFast   ModemPreset = 4
	PresetShortSlow    ModemPreset = 5
	PresetShortFast    ModemPreset = 6
	PresetLongModerate ModemPreset = 7
	PresetShortTurbo   ModemPreset = 8
)

type presetInfo struct {
	key         string
	displayName string
	bandwidth   float64 // kHz, narrow band regions
	wideBW      float64 // kHz, 2.4 GHz wide band regions
}

var presets = map[ModemPreset]presetInfo{
	PresetLongFast:     {"LONG_FAST", "LongFast", 250, 812.5},
	PresetLongSlow:     {"LONG_SLOW", "LongSlow", 125, 406.25},
	PresetVeryLongSlow: {"VERY_LONG_SLOW", "VLongSlow", 62.5, 203.125},
	PresetMediumSlow:   {"MEDIUM_SLOW", "MediumSlow", 250, 812.5},
	PresetMediumFast:   {"MEDIUM_FAST", "MediumFast", 250, 812.5},
	PresetShortSlow:    {"SHORT_SLOW", "ShortSlow", 250, 812.5},
	PresetShortFast:    {"SHORT_FAST", "ShortFast", 250, 812.5},
	PresetLongModerate: {"LONG_MODERATE", "LongMod", 125, 406.25},
	PresetShortTurbo:   {"SHORT_TURBO", "ShortTurbo", 500, 1625},
}

// String returns the config key of the preset, e.g. "LONG_FAST".
func (p ModemPreset) String() string {
	if info, ok := presets[p]; ok {
		return info.key
	}
	return fmt.Sprintf("PRESET_%d", int32(p))
}

// Valid reports whether p is a known preset.
func (p ModemPreset) Valid() bool {
	_, ok := presets[p]
	return ok
}

// DisplayName returns the short human readable preset name, e.g. "LongFast".
// Two nodes with the same preset always produce the same string.
func DisplayName(p ModemPreset) string {
	if info, ok := presets[p]; ok {
		return info.displayName
	}
	return "Invalid"
}

// Bandwidth returns the channel bandwidth in kHz for preset p in region r.
func Bandwidth(r Region, p ModemPreset) float64 {
	info, ok := presets[p]
	if !ok {
		return 0
	}
	if regionFor(r).wideLora {
		return info.wideBW
	}
	return info.bandwidth
}

// ParsePreset accepts either the config key ("LONG_FAST") or the display name ("LongFast").
func ParsePreset(s string) (ModemPreset, error) {
	for p, info := range presets {
		if strings.EqualFold(s, info.key) || strings.EqualFold(s, info.displayName) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown modem preset %q", s)
}
