package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/radio-control/meshchan/internal/lora"
)

// Persister loads and saves the channel file. Save must replace the stored file atomically.
type Persister interface {
	Load(ctx context.Context) (File, error)
	Save(ctx context.Context, f File) error
}

// Option configures a Table.
type Option func(*Table)

// WithPersister sets where the table is loaded from and saved to.
func WithPersister(p Persister) Option {
	return func(t *Table) {
		t.store = p
	}
}

// WithLogger sets the logger used by the table.
func WithLogger(l logrus.FieldLogger) Option {
	return func(t *Table) {
		if l != nil {
			t.log = l
		}
	}
}

// Table is the fixed-capacity channel table with its parallel hash cache.
//
// mu guards slots, hashes, count, primary and params. persistMu serializes
// mutate-then-save sequences so saves land in mutation order; it is always
// taken before mu.
type Table struct {
	mu        sync.RWMutex
	persistMu sync.Mutex

	slots   [MaxChannels]Channel
	hashes  [MaxChannels]int16
	count   int
	primary int
	active  atomic.Int32
	params  lora.Params

	store Persister
	log   logrus.FieldLogger
}

// NewTable creates an empty table. Call Load (or InitDefaults) before use.
func NewTable(params lora.Params, opts ...Option) *Table {
	t := &Table{
		params: params,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.WithField("component", "channels")
	t.resetLocked()
	return t
}

// Load reads the persisted channel file. A missing or incompatible file is replaced by the
// default single-channel table. A storage read error also leaves the table on defaults but
// is returned as a *PersistError.
func (t *Table) Load(ctx context.Context) error {
	if t.store == nil {
		return t.InitDefaults(ctx)
	}

	f, err := t.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoValidFile) {
			t.log.WithError(err).Info("No valid channel file, writing defaults")
			return t.InitDefaults(ctx)
		}
		t.log.WithError(err).Warn("Channel file unreadable, running on defaults")
		t.mu.Lock()
		t.initDefaultsLocked()
		t.mu.Unlock()
		return &PersistError{Op: "load", Err: err}
	}

	if f.Version != FileVersion {
		t.log.WithFields(logrus.Fields{"version": f.Version, "want": FileVersion}).
			Info("Channel file version mismatch, writing defaults")
		return t.InitDefaults(ctx)
	}

	t.mu.Lock()
	ok := t.applyFileLocked(f)
	t.mu.Unlock()
	if !ok {
		t.log.Warn("Channel file has no usable primary channel, writing defaults")
		return t.InitDefaults(ctx)
	}

	t.log.WithField("channels", len(f.Channels)).Debug("Loaded channel file")
	return nil
}

// InitDefaults replaces the table with the single open default channel at index 0.
func (t *Table) InitDefaults(ctx context.Context) error {
	t.persistMu.Lock()
	defer t.persistMu.Unlock()

	t.mu.Lock()
	t.initDefaultsLocked()
	snap := t.fileLocked()
	t.mu.Unlock()

	return t.persist(ctx, "init defaults", snap)
}

// SetChannel writes c into slot index. Promoting a channel to primary demotes the previous
// primary to secondary in the same step, and enabling downlink on c clears it everywhere else.
// Invalid proposals leave the table untouched. A persistence failure is returned as a
// *PersistError after the in-memory change has been applied.
func (t *Table) SetChannel(ctx context.Context, c Channel, index int) error {
	if index < 0 || index >= MaxChannels {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}

	fixed, notes, err := fixup(c, index)
	if err != nil {
		return err
	}

	t.persistMu.Lock()
	defer t.persistMu.Unlock()

	t.mu.Lock()
	if err := t.checkTransitionLocked(fixed, index); err != nil {
		t.mu.Unlock()
		return err
	}

	for i := t.count; i < index; i++ {
		t.slots[i] = Channel{Index: i, Role: RoleDisabled}
	}
	if index >= t.count {
		t.count = index + 1
	}

	if fixed.Role == RolePrimary {
		for i := 0; i < t.count; i++ {
			if i != index && t.slots[i].Role == RolePrimary {
				t.slots[i].Role = RoleSecondary
			}
		}
		t.primary = index
	}
	if fixed.Settings.DownlinkEnabled {
		for i := 0; i < t.count; i++ {
			t.slots[i].Settings.DownlinkEnabled = false
		}
	}

	t.slots[index] = fixed
	t.recomputeLocked()
	hash := t.hashes[index]
	snap := t.fileLocked()
	t.mu.Unlock()

	fields := logrus.Fields{"index": index, "role": fixed.Role, "hash": hash}
	for _, n := range notes {
		t.log.WithFields(fields).Warn("Channel repaired: " + n)
	}
	t.log.WithFields(fields).Info("Channel updated")

	return t.persist(ctx, "set channel", snap)
}

// checkTransitionLocked rejects writes that would leave the table without a primary.
func (t *Table) checkTransitionLocked(c Channel, index int) error {
	if t.count == 0 {
		if c.Role != RolePrimary {
			return &ValidationError{Field: "role", Reason: "first channel must be PRIMARY"}
		}
		return nil
	}
	if index == t.primary && t.slots[index].Role == RolePrimary && c.Role != RolePrimary {
		return &ValidationError{Field: "role", Reason: "cannot demote the primary channel, promote another channel first"}
	}
	return nil
}

// OnConfigChanged is called when the region or modem preset changed. Synthesized names and
// therefore hashes are recomputed; nothing is persisted since the stored settings are unchanged.
func (t *Table) OnConfigChanged(params lora.Params) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.params = params
	t.normalizeLocked()
	t.recomputeLocked()
	t.log.WithFields(logrus.Fields{"region": params.Region, "preset": params.Preset}).Debug("Radio config changed, hashes recomputed")
}

// GetByIndex returns a copy of slot index, or the primary channel when index is out of range.
func (t *Table) GetByIndex(index int) Channel {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if index < 0 || index >= t.count {
		t.log.WithField("index", index).Debug("Channel index out of range, using primary")
		return t.primaryLocked().Clone()
	}
	return t.slots[index].Clone()
}

// GetByName returns the first enabled channel whose resolved name matches name
// (case-insensitively), or the primary channel.
func (t *Table) GetByName(name string) Channel {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := 0; i < t.count; i++ {
		if t.slots[i].Role == RoleDisabled {
			continue
		}
		if strings.EqualFold(t.nameLocked(i), name) {
			return t.slots[i].Clone()
		}
	}
	return t.primaryLocked().Clone()
}

// GetName returns the display name of slot index. Unnamed channels take the name of the
// node's modem preset.
func (t *Table) GetName(index int) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if index < 0 || index >= t.count {
		index = t.primary
	}
	return t.nameLocked(index)
}

// GlobalID returns the identifier the channel is published under on the MQTT bridge.
func (t *Table) GlobalID(index int) string {
	return t.GetName(index)
}

// Primary returns a copy of the primary channel.
func (t *Table) Primary() Channel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.primaryLocked().Clone()
}

// PrimaryIndex returns the slot holding the primary channel.
func (t *Table) PrimaryIndex() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.primary
}

// ActiveIndex returns the slot most recently selected for transmit.
func (t *Table) ActiveIndex() int {
	return int(t.active.Load())
}

// NumChannels returns the number of slots in use.
func (t *Table) NumChannels() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Hash returns the cached hash of slot index, or NoHash.
func (t *Table) Hash(index int) int16 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if index < 0 || index >= t.count {
		return NoHash
	}
	return t.hashes[index]
}

// Channels returns copies of all slots in use, in index order.
func (t *Table) Channels() []Channel {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Channel, t.count)
	for i := 0; i < t.count; i++ {
		out[i] = t.slots[i].Clone()
	}
	return out
}

// File returns the table in its persisted form.
func (t *Table) File() File {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fileLocked()
}

// Params returns the radio configuration the table currently derives names from.
func (t *Table) Params() lora.Params {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.params
}

// IsDefaultChannel reports whether ch uses the public default name and key.
func IsDefaultChannel(ch Channel) bool {
	psk := ch.Settings.PSK
	return ch.Settings.Name == "" && len(psk) == 1 && psk[0] == DefaultPSKIndex
}

// HasDefaultChannel reports whether any enabled channel is a default channel, i.e. whether
// anyone holding the public default key can reach this node.
func (t *Table) HasDefaultChannel() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := 0; i < t.count; i++ {
		if t.slots[i].Role != RoleDisabled && IsDefaultChannel(t.slots[i]) {
			return true
		}
	}
	return false
}

func (t *Table) persist(ctx context.Context, op string, f File) error {
	if t.store == nil {
		return nil
	}
	if err := t.store.Save(ctx, f); err != nil {
		t.log.WithError(err).WithField("op", op).Error("Failed to persist channel file")
		return &PersistError{Op: op, Err: err}
	}
	return nil
}

func (t *Table) resetLocked() {
	for i := range t.slots {
		t.slots[i] = Channel{Index: i, Role: RoleDisabled}
		t.hashes[i] = NoHash
	}
	t.count = 0
	t.primary = 0
	t.active.Store(0)
}

func (t *Table) initDefaultsLocked() {
	t.resetLocked()
	name := t.params.ChannelName()
	t.slots[0] = Channel{
		Index: 0,
		Role:  RolePrimary,
		Settings: Settings{
			PSK:        DefaultKeyMarker(),
			ChannelNum: lora.FrequencySlot(t.params.Region, t.params.Preset, name),
			Module:     ModuleSettings{PositionPrecision: DefaultPositionPrecision},
		},
	}
	t.count = 1
	t.recomputeLocked()
}

// applyFileLocked replaces the table with f. Returns false if no primary could be established.
func (t *Table) applyFileLocked(f File) bool {
	t.resetLocked()

	n := len(f.Channels)
	if n > MaxChannels {
		t.log.WithField("channels", n).Warn("Channel file holds too many channels, truncating")
		n = MaxChannels
	}
	for i := 0; i < n; i++ {
		fixed, notes, err := fixup(f.Channels[i], i)
		if err != nil {
			t.log.WithError(err).WithField("index", i).Warn("Stored channel invalid, disabling slot")
			fixed = Channel{Index: i, Role: RoleDisabled}
		}
		for _, note := range notes {
			t.log.WithField("index", i).Info("Stored channel repaired: " + note)
		}
		t.slots[i] = fixed
	}
	t.count = n

	if !t.normalizeLocked() {
		return false
	}
	t.recomputeLocked()
	return true
}

// normalizeLocked restores the single-primary and single-downlink invariants. The first
// primary (or failing that, the first enabled slot) wins.
func (t *Table) normalizeLocked() bool {
	primary := -1
	downlink := false
	for i := 0; i < t.count; i++ {
		ch := &t.slots[i]
		if ch.Role == RolePrimary {
			if primary < 0 {
				primary = i
			} else {
				ch.Role = RoleSecondary
			}
		}
		if ch.Settings.DownlinkEnabled {
			if downlink {
				ch.Settings.DownlinkEnabled = false
			}
			downlink = true
		}
	}
	if primary < 0 {
		for i := 0; i < t.count; i++ {
			if t.slots[i].Role != RoleDisabled {
				t.slots[i].Role = RolePrimary
				primary = i
				break
			}
		}
	}
	if primary < 0 {
		return false
	}
	t.primary = primary
	return true
}

// recomputeLocked refreshes every hash. Secondaries may inherit the primary key, so a
// change to any slot can move other hashes.
func (t *Table) recomputeLocked() {
	primary := t.primaryLocked()
	for i := range t.hashes {
		if i >= t.count || t.slots[i].Role == RoleDisabled {
			t.hashes[i] = NoHash
			continue
		}
		key, err := EffectiveKey(t.slots[i], primary)
		if err != nil {
			t.hashes[i] = NoHash
			continue
		}
		t.hashes[i] = GenerateHash(t.nameLocked(i), key)
	}
}

func (t *Table) primaryLocked() Channel {
	if t.count == 0 {
		return Channel{Role: RoleDisabled}
	}
	return t.slots[t.primary]
}

func (t *Table) nameLocked(index int) string {
	if name := t.slots[index].Settings.Name; name != "" {
		return name
	}
	return t.params.ChannelName()
}

func (t *Table) fileLocked() File {
	f := File{
		Channels: make([]Channel, t.count),
		Version:  FileVersion,
	}
	for i := 0; i < t.count; i++ {
		f.Channels[i] = t.slots[i].Clone()
	}
	return f
}
