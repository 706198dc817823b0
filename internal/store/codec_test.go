package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/radio-control/meshchan/internal/channels"
)

func defaultFile() channels.File {
	return channels.File{
		Version: channels.FileVersion,
		Channels: []channels.Channel{{
			Index: 0,
			Role:  channels.RolePrimary,
			Settings: channels.Settings{
				PSK:        []byte{1},
				ChannelNum: 20,
				Module:     channels.ModuleSettings{PositionPrecision: 13},
			},
		}},
	}
}

func TestEncodeDefaultFileBytes(t *testing.T) {
	want := []byte{
		0x0a, 0x0d, // channels, 13 bytes
		0x12, 0x09, // settings, 9 bytes
		0x08, 0x14, // channel_num 20
		0x12, 0x01, 0x01, // psk {1}
		0x3a, 0x02, 0x08, 0x0d, // module{position_precision 13}
		0x18, 0x01, // role PRIMARY
		0x10, 0x17, // version 23
	}
	assert.Equal(t, want, Encode(defaultFile()))
}

func TestDecodeRoundTrip(t *testing.T) {
	f := channels.File{
		Version: channels.FileVersion,
		Channels: []channels.Channel{
			defaultFile().Channels[0],
			{
				Index: 1,
				Role:  channels.RoleSecondary,
				Settings: channels.Settings{
					PSK:             []byte{0xde, 0xad, 0xbe, 0xef, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
					Name:            "admin",
					ID:              0xcafef00d,
					UplinkEnabled:   true,
					DownlinkEnabled: true,
					Module:          channels.ModuleSettings{ClientMuted: true},
				},
			},
			{Index: 2, Role: channels.RoleDisabled},
		},
	}

	got, err := Decode(Encode(f))
	require.NoError(t, err)
	require.Len(t, got.Channels, 3)
	assert.Equal(t, f.Version, got.Version)
	for i := range f.Channels {
		assert.True(t, f.Channels[i].Equal(got.Channels[i]), "channel %d", i)
	}
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	b := Encode(defaultFile())
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future")
	b = protowire.AppendTag(b, 100, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Len(t, got.Channels, 1)
	assert.Equal(t, channels.FileVersion, got.Version)
}

func TestDecodeRejectsTruncated(t *testing.T) {
	b := Encode(defaultFile())
	for _, n := range []int{1, 5, len(b) - 3} {
		_, err := Decode(b[:n])
		assert.Error(t, err, "prefix of %d bytes", n)
	}
}
