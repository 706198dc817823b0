package channels

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Engine is the symmetric cipher the selector arms. SetKey with an empty key disables
// encryption.
type Engine interface {
	SetKey(key Key) error
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithSelectorLogger sets the selector logger.
func WithSelectorLogger(l logrus.FieldLogger) SelectorOption {
	return func(s *Selector) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMeter sets the meter selector counters are created on.
func WithMeter(m metric.Meter) SelectorOption {
	return func(s *Selector) {
		if m != nil {
			s.meter = m
		}
	}
}

// Selector chooses which channel key is armed in the engine for transmit and receive.
type Selector struct {
	table   *Table
	engine  Engine
	log     logrus.FieldLogger
	meter   metric.Meter
	metrics *selectorMetrics
}

// NewSelector binds a table to the engine it arms.
func NewSelector(table *Table, engine Engine, opts ...SelectorOption) *Selector {
	s := &Selector{
		table:  table,
		engine: engine,
		log:    logrus.StandardLogger(),
		meter:  otel.Meter("github.com/radio-control/meshchan/internal/channels"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("component", "selector")
	s.metrics = newSelectorMetrics(s.meter, s.log)
	return s
}

// SetActiveByIndex arms the key of slot index for transmit and returns the hash to put in
// the packet header, or NoHash if the slot has no usable key. On NoHash the engine is left
// as it was.
func (s *Selector) SetActiveByIndex(ctx context.Context, index int) int16 {
	key, hash, err := s.table.keyFor(index)
	if err != nil {
		s.log.WithError(err).WithField("index", index).Debug("No key for transmit channel")
		s.metrics.recordEncrypt(ctx, false)
		return NoHash
	}
	if err := s.engine.SetKey(key); err != nil {
		s.log.WithError(err).WithField("index", index).Warn("Engine rejected channel key")
		s.metrics.recordEncrypt(ctx, false)
		return NoHash
	}
	s.table.active.Store(int32(index))
	s.metrics.recordEncrypt(ctx, true)
	return hash
}

// DecryptForHash arms the key of the slot that should decrypt a packet carrying hash.
// The requested slot wins if its hash matches, otherwise the lowest matching slot, otherwise
// an open default primary. Returns the chosen slot, or ErrNoCryptoCandidate with the engine
// untouched.
func (s *Selector) DecryptForHash(ctx context.Context, requested int, hash uint8) (int, error) {
	return s.DecryptForHashExcluding(ctx, requested, hash, nil)
}

// DecryptForHashOK is DecryptForHash reduced to success or failure.
func (s *Selector) DecryptForHashOK(ctx context.Context, requested int, hash uint8) bool {
	_, err := s.DecryptForHash(ctx, requested, hash)
	return err == nil
}

// DecryptForHashExcluding is DecryptForHash skipping slots in tried. Receivers use it to try
// the next slot sharing the same hash after a decrypt produced garbage.
func (s *Selector) DecryptForHashExcluding(ctx context.Context, requested int, hash uint8, tried map[int]bool) (int, error) {
	idx, kind, key, err := s.table.candidate(requested, hash, tried)
	if err != nil {
		s.metrics.recordDecrypt(ctx, matchNone)
		return -1, err
	}
	if err := s.engine.SetKey(key); err != nil {
		s.metrics.recordDecrypt(ctx, matchNone)
		return -1, fmt.Errorf("%w: arm slot %d: %v", ErrNoCryptoCandidate, idx, err)
	}

	s.metrics.recordDecrypt(ctx, kind)
	if kind != matchExact {
		s.log.WithFields(logrus.Fields{
			"requested": requested,
			"chosen":    idx,
			"hash":      hash,
			"match":     kind.String(),
		}).Debug("Decrypt candidate resolved")
	}
	return idx, nil
}

type matchKind int

const (
	matchNone matchKind = iota
	matchExact
	matchCollision
	matchDefault
)

func (m matchKind) String() string {
	switch m {
	case matchExact:
		return "exact"
	case matchCollision:
		return "collision"
	case matchDefault:
		return "default"
	default:
		return "none"
	}
}

// keyFor resolves the key and hash of slot index under a single read lock.
func (t *Table) keyFor(index int) (Key, int16, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if index < 0 || index >= t.count {
		return Key{}, NoHash, fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	if t.hashes[index] == NoHash {
		return Key{}, NoHash, fmt.Errorf("%w: slot %d", ErrNoKey, index)
	}
	key, err := EffectiveKey(t.slots[index], t.primaryLocked())
	if err != nil {
		return Key{}, NoHash, err
	}
	return key, t.hashes[index], nil
}

// candidate picks the slot to decrypt a packet with the given hash. The whole decision is
// taken under one read lock so a concurrent SetChannel cannot split it.
func (t *Table) candidate(requested int, hash uint8, tried map[int]bool) (int, matchKind, Key, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	primary := t.primaryLocked()
	want := int16(hash)

	try := func(i int) (Key, bool) {
		if tried[i] || t.hashes[i] != want {
			return Key{}, false
		}
		key, err := EffectiveKey(t.slots[i], primary)
		return key, err == nil
	}

	if requested >= 0 && requested < t.count {
		if key, ok := try(requested); ok {
			return requested, matchExact, key, nil
		}
	}
	for i := 0; i < t.count; i++ {
		if i == requested {
			continue
		}
		if key, ok := try(i); ok {
			return i, matchCollision, key, nil
		}
	}

	if t.count > 0 && !tried[t.primary] && primary.Role == RolePrimary && IsDefaultChannel(primary) {
		if key, err := EffectiveKey(primary, primary); err == nil {
			return t.primary, matchDefault, key, nil
		}
	}

	return -1, matchNone, Key{}, fmt.Errorf("%w: hash %d", ErrNoCryptoCandidate, hash)
}
