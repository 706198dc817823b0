package lora

import "math"

// Params is the radio configuration snapshot the channel table reads.
type Params struct {
	Region    Region
	Preset    ModemPreset
	UsePreset bool
}

// DefaultParams is what a freshly flashed node runs with.
func DefaultParams() Params {
	return Params{Region: RegionUnset, Preset: PresetLongFast, UsePreset: true}
}

// ChannelName is the synthesized name for a channel without a configured name.
func (p Params) ChannelName() string {
	if !p.UsePreset {
		return "Custom"
	}
	return DisplayName(p.Preset)
}

// NumSlots returns how many channels of the preset's bandwidth fit in the region's band.
func NumSlots(r Region, p ModemPreset) uint32 {
	info := regionFor(r)
	bw := Bandwidth(r, p) / 1000
	if bw <= 0 {
		return 0
	}
	n := math.Floor((info.freqEnd - info.freqStart) / (info.spacing + bw))
	if n < 1 {
		return 1
	}
	return uint32(n)
}

// FrequencySlot returns the 1-based frequency slot a channel called name lands on.
// The slot is djb2(name) modulo the number of slots, so every node with the same
// region, preset and name picks the same frequency.
func FrequencySlot(r Region, p ModemPreset, name string) uint32 {
	n := NumSlots(r, p)
	if n == 0 {
		return 0
	}
	return djb2(name)%n + 1
}

// Frequency returns the center frequency in MHz of a 1-based slot.
func Frequency(r Region, p ModemPreset, slot uint32) float64 {
	if slot == 0 {
		return 0
	}
	info := regionFor(r)
	bw := Bandwidth(r, p) / 1000
	return info.freqStart + bw/2 + float64(slot-1)*(info.spacing+bw)
}

func djb2(s string) uint32 {
	var h uint32 = 5381
	for i := 0; i < len(s); i++ {
		h = (h << 5) + h + uint32(s[i])
	}
	return h
}
