package mesh

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/radio-control/meshchan/internal/channels"
)

var (
	// ErrNoChannelKey is returned when the transmit channel has no usable key.
	ErrNoChannelKey = errors.New("mesh: channel has no usable key")

	// ErrUndecryptable is returned when no local channel yields a valid payload.
	ErrUndecryptable = errors.New("mesh: no channel decrypts packet")
)

// Cipher is the engine the selector arms, plus the in-place crypt operations.
type Cipher interface {
	channels.Engine
	Encrypt(fromNode uint32, packetID uint64, buf []byte) error
	Decrypt(fromNode uint32, packetID uint64, buf []byte) error
}

// Packet is a received packet after decryption.
type Packet struct {
	Header  Header
	Data    Data
	Channel int
}

// Codec encrypts and decrypts frames. Arming the engine and using it happen under one lock
// so concurrent transmit and receive never crypt with each other's key.
type Codec struct {
	mu     sync.Mutex
	table  *channels.Table
	sel    *channels.Selector
	cipher Cipher
	log    logrus.FieldLogger
}

// NewCodec binds a table, the selector arming cipher, and cipher itself.
func NewCodec(table *channels.Table, sel *channels.Selector, cipher Cipher, log logrus.FieldLogger) *Codec {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Codec{
		table:  table,
		sel:    sel,
		cipher: cipher,
		log:    log.WithField("component", "mesh"),
	}
}

// Encode builds the frame for d sent on channel index. h.Channel is overwritten with the
// channel hash.
func (c *Codec) Encode(ctx context.Context, index int, h Header, d Data) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := c.sel.SetActiveByIndex(ctx, index)
	if hash == channels.NoHash {
		return nil, fmt.Errorf("%w: channel %d", ErrNoChannelKey, index)
	}
	h.Channel = uint8(hash)

	body := d.Marshal()
	if err := c.cipher.Encrypt(h.From, uint64(h.ID), body); err != nil {
		return nil, fmt.Errorf("mesh: encrypt: %w", err)
	}

	frame := make([]byte, 0, HeaderSize+len(body))
	frame = h.AppendTo(frame)
	return append(frame, body...), nil
}

// Decode decrypts a received frame. The channel last used for transmit is tried first;
// when several channels share the header hash each is tried in turn until one produces
// a valid Data message.
func (c *Codec) Decode(ctx context.Context, frame []byte) (Packet, error) {
	h, body, err := ParseHeader(frame)
	if err != nil {
		return Packet{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	requested := c.table.ActiveIndex()
	tried := make(map[int]bool, channels.MaxChannels)
	for {
		if err := ctx.Err(); err != nil {
			return Packet{}, err
		}

		idx, err := c.sel.DecryptForHashExcluding(ctx, requested, h.Channel, tried)
		if err != nil {
			if len(tried) > 0 {
				return Packet{}, fmt.Errorf("%w: hash %d, %d candidates failed", ErrUndecryptable, h.Channel, len(tried))
			}
			return Packet{}, fmt.Errorf("%w: %w", ErrUndecryptable, err)
		}

		buf := append([]byte(nil), body...)
		if err := c.cipher.Decrypt(h.From, uint64(h.ID), buf); err != nil {
			return Packet{}, fmt.Errorf("mesh: decrypt: %w", err)
		}

		d, err := UnmarshalData(buf)
		if err == nil {
			return Packet{Header: h, Data: d, Channel: idx}, nil
		}

		c.log.WithFields(logrus.Fields{
			"from":    h.From,
			"id":      h.ID,
			"hash":    h.Channel,
			"channel": idx,
		}).Debug("Payload did not parse, trying next candidate")
		tried[idx] = true
	}
}

// selfTestPort is a private-range port number; the probe never leaves the node.
const selfTestPort = 256

// SelfTest encodes a probe on channel index and decodes it again, checking that the channel
// key arms and round-trips.
func (c *Codec) SelfTest(ctx context.Context, index int) error {
	probe := Data{Port: selfTestPort, Payload: []byte("meshchan")}
	frame, err := c.Encode(ctx, index, Header{To: Broadcast, ID: 1}, probe)
	if err != nil {
		return err
	}
	pkt, err := c.Decode(ctx, frame)
	if err != nil {
		return err
	}
	if pkt.Data.Port != probe.Port || string(pkt.Data.Payload) != string(probe.Payload) {
		return fmt.Errorf("%w: probe mismatch on channel %d", ErrBadPayload, pkt.Channel)
	}
	return nil
}
