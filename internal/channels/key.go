package channels

import (
	"bytes"
	"fmt"
)

// defaultPSK is the publicly known key behind the 1-byte default key marker.
var defaultPSK = [16]byte{
	0xd4, 0xf1, 0xbb, 0x3a, 0x20, 0x29, 0x07, 0x59,
	0xf0, 0xbc, 0xff, 0xab, 0xcf, 0x4e, 0x69, 0x01,
}

// DefaultPSKIndex is the marker stored in Settings.PSK for the default channel.
const DefaultPSKIndex byte = 1

// DefaultKeyMarker returns a fresh 1-byte PSK selecting the well-known default key.
func DefaultKeyMarker() []byte {
	return []byte{DefaultPSKIndex}
}

// Key is an effective symmetric key. A zero-length key means the channel is unencrypted.
type Key struct {
	Bytes []byte
}

// Len returns the key length in bytes.
func (k Key) Len() int {
	return len(k.Bytes)
}

// Equal reports whether both keys hold the same bytes.
func (k Key) Equal(o Key) bool {
	return bytes.Equal(k.Bytes, o.Bytes)
}

// expandPSK turns the configured PSK into key material. inherit is the key used
// when a secondary channel carries no PSK of its own.
func expandPSK(psk []byte, role Role, inherit func() (Key, error)) (Key, error) {
	switch n := len(psk); {
	case n == 0:
		if role == RoleSecondary {
			return inherit()
		}
		// primary without a key: encryption turned off by the user
		return Key{Bytes: []byte{}}, nil
	case n == 1:
		idx := psk[0]
		if idx == 0 {
			return Key{Bytes: []byte{}}, nil
		}
		k := defaultPSK
		k[len(k)-1] += idx - 1
		return Key{Bytes: k[:]}, nil
	case n < 16:
		return Key{Bytes: padKey(psk, 16)}, nil
	case n == 16:
		return Key{Bytes: bytes.Clone(psk)}, nil
	case n < 32:
		return Key{Bytes: padKey(psk, 32)}, nil
	case n == 32:
		return Key{Bytes: bytes.Clone(psk)}, nil
	default:
		return Key{}, fmt.Errorf("%w: psk of %d bytes", ErrNoKey, n)
	}
}

func padKey(psk []byte, size int) []byte {
	out := make([]byte, size)
	copy(out, psk)
	return out
}

// EffectiveKey resolves the key a channel encrypts with. primary is consulted only when ch is a
// secondary channel without its own PSK.
func EffectiveKey(ch Channel, primary Channel) (Key, error) {
	if ch.Role == RoleDisabled {
		return Key{}, fmt.Errorf("%w: channel %d is disabled", ErrNoKey, ch.Index)
	}
	return expandPSK(ch.Settings.PSK, ch.Role, func() (Key, error) {
		if primary.Role != RolePrimary {
			return Key{}, fmt.Errorf("%w: no primary to inherit from", ErrNoKey)
		}
		return expandPSK(primary.Settings.PSK, RolePrimary, nil)
	})
}
