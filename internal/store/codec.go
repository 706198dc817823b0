package store

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/radio-control/meshchan/internal/channels"
)

// ChannelFile field numbers.
const (
	fileChannels protowire.Number = 1
	fileVersion  protowire.Number = 2

	chanIndex    protowire.Number = 1
	chanSettings protowire.Number = 2
	chanRole     protowire.Number = 3

	setChannelNum protowire.Number = 1
	setPSK        protowire.Number = 2
	setName       protowire.Number = 3
	setID         protowire.Number = 4
	setUplink     protowire.Number = 5
	setDownlink   protowire.Number = 6
	setModule     protowire.Number = 7

	modPositionPrecision protowire.Number = 1
	modClientMuted       protowire.Number = 2
)

// Encode serializes f. Zero-valued scalars are omitted as proto3 does.
func Encode(f channels.File) []byte {
	var b []byte
	for _, ch := range f.Channels {
		b = protowire.AppendTag(b, fileChannels, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeChannel(ch))
	}
	b = appendUint(b, fileVersion, uint64(f.Version))
	return b
}

func encodeChannel(ch channels.Channel) []byte {
	var b []byte
	b = appendUint(b, chanIndex, uint64(int64(ch.Index)))
	b = protowire.AppendTag(b, chanSettings, protowire.BytesType)
	b = protowire.AppendBytes(b, encodeSettings(ch.Settings))
	b = appendUint(b, chanRole, uint64(int64(ch.Role)))
	return b
}

func encodeSettings(s channels.Settings) []byte {
	var b []byte
	b = appendUint(b, setChannelNum, uint64(s.ChannelNum))
	if len(s.PSK) > 0 {
		b = protowire.AppendTag(b, setPSK, protowire.BytesType)
		b = protowire.AppendBytes(b, s.PSK)
	}
	if s.Name != "" {
		b = protowire.AppendTag(b, setName, protowire.BytesType)
		b = protowire.AppendString(b, s.Name)
	}
	if s.ID != 0 {
		b = protowire.AppendTag(b, setID, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, s.ID)
	}
	b = appendBool(b, setUplink, s.UplinkEnabled)
	b = appendBool(b, setDownlink, s.DownlinkEnabled)

	if s.Module != (channels.ModuleSettings{}) {
		var m []byte
		m = appendUint(m, modPositionPrecision, uint64(s.Module.PositionPrecision))
		m = appendBool(m, modClientMuted, s.Module.ClientMuted)
		b = protowire.AppendTag(b, setModule, protowire.BytesType)
		b = protowire.AppendBytes(b, m)
	}
	return b
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

// Decode parses a ChannelFile. Unknown fields are skipped.
func Decode(b []byte) (channels.File, error) {
	var f channels.File
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fileChannels && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			ch, err := decodeChannel(v)
			if err != nil {
				return 0, fmt.Errorf("channel %d: %w", len(f.Channels), err)
			}
			f.Channels = append(f.Channels, ch)
			return n, nil
		case num == fileVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			f.Version = uint32(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return channels.File{}, err
	}
	return f, nil
}

func decodeChannel(b []byte) (channels.Channel, error) {
	var ch channels.Channel
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == chanIndex && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			ch.Index = int(int32(v))
			return n, nil
		case num == chanSettings && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			s, err := decodeSettings(v)
			if err != nil {
				return 0, fmt.Errorf("settings: %w", err)
			}
			ch.Settings = s
			return n, nil
		case num == chanRole && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			ch.Role = channels.Role(int32(v))
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return ch, err
}

func decodeSettings(b []byte) (channels.Settings, error) {
	var s channels.Settings
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == setChannelNum && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			s.ChannelNum = uint32(v)
			return n, nil
		case num == setPSK && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				s.PSK = append([]byte(nil), v...)
			}
			return n, nil
		case num == setName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			s.Name = v
			return n, nil
		case num == setID && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			s.ID = v
			return n, nil
		case num == setUplink && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			s.UplinkEnabled = v != 0
			return n, nil
		case num == setDownlink && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			s.DownlinkEnabled = v != 0
			return n, nil
		case num == setModule && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			m, err := decodeModule(v)
			if err != nil {
				return 0, fmt.Errorf("module: %w", err)
			}
			s.Module = m
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return s, err
}

func decodeModule(b []byte) (channels.ModuleSettings, error) {
	var m channels.ModuleSettings
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == modPositionPrecision && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.PositionPrecision = uint32(v)
			return n, nil
		case num == modClientMuted && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.ClientMuted = v != 0
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return m, err
}

// walk calls fn for every field in b. fn returns the number of value bytes it consumed,
// or a negative protowire error code.
func walk(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}
