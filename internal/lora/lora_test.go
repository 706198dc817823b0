package lora

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		preset ModemPreset
		want   string
	}{
		{PresetLongFast, "LongFast"},
		{PresetVeryLongSlow, "VLongSlow"},
		{PresetLongModerate, "LongMod"},
		{PresetShortTurbo, "ShortTurbo"},
		{ModemPreset(99), "Invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayName(tt.preset))
		})
	}
}

func TestChannelNameWithoutPreset(t *testing.T) {
	p := Params{Region: RegionUS, Preset: PresetLongFast, UsePreset: false}
	assert.Equal(t, "Custom", p.ChannelName())

	p.UsePreset = true
	assert.Equal(t, "LongFast", p.ChannelName())
}

func TestNumSlots(t *testing.T) {
	assert.Equal(t, uint32(104), NumSlots(RegionUS, PresetLongFast))
	assert.Equal(t, uint32(208), NumSlots(RegionUS, PresetLongSlow))
	assert.Equal(t, uint32(1), NumSlots(RegionEU868, PresetLongFast))
	assert.Equal(t, uint32(0), NumSlots(RegionUS, ModemPreset(42)))
}

func TestFrequencySlotIsStable(t *testing.T) {
	// US LongFast lands on slot 20 (906.875 MHz) on every node.
	slot := FrequencySlot(RegionUS, PresetLongFast, "LongFast")
	assert.Equal(t, uint32(20), slot)
	assert.InDelta(t, 906.875, Frequency(RegionUS, PresetLongFast, slot), 0.0001)

	assert.Equal(t, slot, FrequencySlot(RegionUS, PresetLongFast, "LongFast"))
	assert.Equal(t, uint32(1), FrequencySlot(RegionEU868, PresetLongFast, "LongFast"))
}

func TestParseRegionAndPreset(t *testing.T) {
	r, err := ParseRegion("eu_868")
	require.NoError(t, err)
	assert.Equal(t, RegionEU868, r)
	assert.Equal(t, "EU_868", r.String())

	_, err = ParseRegion("MARS")
	assert.Error(t, err)

	p, err := ParsePreset("MEDIUM_FAST")
	require.NoError(t, err)
	assert.Equal(t, PresetMediumFast, p)

	p, err = ParsePreset("ShortTurbo")
	require.NoError(t, err)
	assert.Equal(t, PresetShortTurbo, p)

	_, err = ParsePreset("WARP")
	assert.Error(t, err)
}

func TestWideBandwidth(t *testing.T) {
	assert.Equal(t, 812.5, Bandwidth(RegionLora24, PresetLongFast))
	assert.Equal(t, 250.0, Bandwidth(RegionUS, PresetLongFast))
}
