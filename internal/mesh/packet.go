package mesh

import (
	"encoding/binary"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// HeaderSize is the cleartext header length.
const HeaderSize = 16

// Broadcast is the destination of packets addressed to every node.
const Broadcast uint32 = 0xffffffff

var (
	// ErrShortPacket is returned for frames shorter than the header.
	ErrShortPacket = errors.New("mesh: packet shorter than header")

	// ErrBadPayload is returned when a decrypted payload is not a Data message.
	ErrBadPayload = errors.New("mesh: payload is not a data message")
)

// Header is the cleartext part of a packet. Channel holds the channel hash, not an index.
type Header struct {
	To        uint32
	From      uint32
	ID        uint32
	Flags     uint8
	Channel   uint8
	NextHop   uint8
	RelayNode uint8
}

// AppendTo appends the encoded header to b.
func (h Header) AppendTo(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, h.To)
	b = binary.LittleEndian.AppendUint32(b, h.From)
	b = binary.LittleEndian.AppendUint32(b, h.ID)
	return append(b, h.Flags, h.Channel, h.NextHop, h.RelayNode)
}

// ParseHeader splits a frame into its header and encrypted body.
func ParseHeader(frame []byte) (Header, []byte, error) {
	if len(frame) < HeaderSize {
		return Header{}, nil, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(frame))
	}
	h := Header{
		To:        binary.LittleEndian.Uint32(frame[0:4]),
		From:      binary.LittleEndian.Uint32(frame[4:8]),
		ID:        binary.LittleEndian.Uint32(frame[8:12]),
		Flags:     frame[12],
		Channel:   frame[13],
		NextHop:   frame[14],
		RelayNode: frame[15],
	}
	return h, frame[HeaderSize:], nil
}

// Data is the decrypted application payload.
type Data struct {
	Port    uint32
	Payload []byte
}

const (
	dataPort    protowire.Number = 1
	dataPayload protowire.Number = 2
)

// Marshal encodes d as a protobuf Data message.
func (d Data) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, dataPort, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Port))
	if len(d.Payload) > 0 {
		b = protowire.AppendTag(b, dataPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, d.Payload)
	}
	return b
}

// UnmarshalData decodes a Data message. A message without a port is rejected: that is how
// a payload decrypted with the wrong key is told apart from a real one.
func UnmarshalData(b []byte) (Data, error) {
	var d Data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Data{}, fmt.Errorf("%w: %v", ErrBadPayload, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == dataPort && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m >= 0 {
				d.Port = uint32(v)
			}
			n = m
		case num == dataPayload && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m >= 0 {
				d.Payload = append([]byte(nil), v...)
			}
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return Data{}, fmt.Errorf("%w: %v", ErrBadPayload, protowire.ParseError(n))
		}
		b = b[n:]
	}
	if d.Port == 0 {
		return Data{}, fmt.Errorf("%w: no port", ErrBadPayload)
	}
	return d, nil
}
