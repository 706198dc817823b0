package channels

import (
	"bytes"
	"fmt"
)

const (
	// MaxChannels is the fixed capacity of the channel table.
	MaxChannels = 8

	// NoHash marks a slot without a usable hash (disabled, or no key).
	NoHash int16 = -1

	// MaxNameLen is the longest channel name in bytes the firmware record can hold.
	MaxNameLen = 11

	// MaxPSKLen is the longest accepted key (AES-256).
	MaxPSKLen = 32

	// FileVersion is the schema version of the persisted channel file. Files carrying any
	// other version are discarded at boot.
	FileVersion uint32 = 23

	// DefaultPositionPrecision is the location precision written into the default channel.
	DefaultPositionPrecision uint32 = 13
)

// Well known channel names. They are resolved by GetByName like any other name.
const (
	AdminChannel  = "admin"
	GPIOChannel   = "gpio"
	SerialChannel = "serial"
	MQTTChannel   = "mqtt"
)

// Role of a channel slot. Values match the firmware enum.
type Role int32

const (
	RoleDisabled  Role = 0
	RolePrimary   Role = 1
	RoleSecondary Role = 2
)

func (r Role) String() string {
	switch r {
	case RoleDisabled:
		return "DISABLED"
	case RolePrimary:
		return "PRIMARY"
	case RoleSecondary:
		return "SECONDARY"
	default:
		return fmt.Sprintf("ROLE_%d", int32(r))
	}
}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	return r == RoleDisabled || r == RolePrimary || r == RoleSecondary
}

// ParseRole parses the upper-case role name used on the admin API.
func ParseRole(s string) (Role, error) {
	switch s {
	case "DISABLED":
		return RoleDisabled, nil
	case "PRIMARY":
		return RolePrimary, nil
	case "SECONDARY":
		return RoleSecondary, nil
	}
	return RoleDisabled, fmt.Errorf("unknown role %q", s)
}

// ModuleSettings are per-channel settings owned by other modules. Opaque to the table.
type ModuleSettings struct {
	PositionPrecision uint32
	ClientMuted       bool
}

// Settings is the per-channel configuration.
type Settings struct {
	PSK             []byte // empty, 1-byte default key index, or 16/32 bytes of key material
	Name            string // empty means "synthesize from the modem preset"
	ChannelNum      uint32 // frequency slot, independent of the table index
	ID              uint32
	UplinkEnabled   bool
	DownlinkEnabled bool
	Module          ModuleSettings
}

// Channel is one slot of the table.
type Channel struct {
	Index    int
	Settings Settings
	Role     Role
}

// File is the persisted form of the table.
type File struct {
	Channels []Channel
	Version  uint32
}

// Clone returns a deep copy of c.
func (c Channel) Clone() Channel {
	out := c
	if c.Settings.PSK != nil {
		out.Settings.PSK = bytes.Clone(c.Settings.PSK)
	}
	return out
}

// Equal compares two channels field by field, including key bytes.
func (c Channel) Equal(o Channel) bool {
	return c.Index == o.Index &&
		c.Role == o.Role &&
		bytes.Equal(c.Settings.PSK, o.Settings.PSK) &&
		c.Settings.Name == o.Settings.Name &&
		c.Settings.ChannelNum == o.Settings.ChannelNum &&
		c.Settings.ID == o.Settings.ID &&
		c.Settings.UplinkEnabled == o.Settings.UplinkEnabled &&
		c.Settings.DownlinkEnabled == o.Settings.DownlinkEnabled &&
		c.Settings.Module == o.Settings.Module
}
