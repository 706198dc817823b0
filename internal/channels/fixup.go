package channels

import (
	"fmt"
	"unicode/utf8"
)

// legacyDefaultName is what older firmware stored for the default channel.
const legacyDefaultName = "Default"

// fixup validates ch as the content of slot index and repairs what can be repaired.
// The returned notes describe each repair; an error means the channel must be rejected.
func fixup(ch Channel, index int) (Channel, []string, error) {
	var notes []string
	out := ch.Clone()
	out.Index = index

	if !out.Role.Valid() {
		return Channel{}, nil, &ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %d", int32(out.Role))}
	}

	name := out.Settings.Name
	if !utf8.ValidString(name) {
		return Channel{}, nil, &ValidationError{Field: "name", Reason: "not valid UTF-8"}
	}
	if len(name) > MaxNameLen {
		return Channel{}, nil, &ValidationError{Field: "name", Reason: fmt.Sprintf("%d bytes, max %d", len(name), MaxNameLen)}
	}
	if out.Role != RoleDisabled && name == legacyDefaultName {
		out.Settings.Name = ""
		notes = append(notes, "legacy default name cleared")
	}

	switch n := len(out.Settings.PSK); {
	case n > MaxPSKLen:
		return Channel{}, nil, &ValidationError{Field: "psk", Reason: fmt.Sprintf("%d bytes, max %d", n, MaxPSKLen)}
	case n > 1 && n < 16:
		out.Settings.PSK = padKey(out.Settings.PSK, 16)
		notes = append(notes, fmt.Sprintf("psk of %d bytes padded to AES-128", n))
	case n > 16 && n < 32:
		out.Settings.PSK = padKey(out.Settings.PSK, 32)
		notes = append(notes, fmt.Sprintf("psk of %d bytes padded to AES-256", n))
	}

	return out, notes, nil
}
