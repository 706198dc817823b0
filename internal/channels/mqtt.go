package channels

import (
	"context"

	"github.com/sirupsen/logrus"
)

// AnyMqttEnabled reports whether any enabled channel bridges to MQTT in either direction.
func (t *Table) AnyMqttEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := 0; i < t.count; i++ {
		ch := t.slots[i]
		if ch.Role == RoleDisabled {
			continue
		}
		if ch.Settings.UplinkEnabled || ch.Settings.DownlinkEnabled {
			return true
		}
	}
	return false
}

// CycleMqttDownlink moves the downlink flag to the next enabled channel, round-robin in
// index order. Every non-disabled channel takes part, so a channel that lost the flag gets
// it back on a later cycle. Returns the new holder, or -1 when fewer than two channels are
// enabled and nothing changed.
func (t *Table) CycleMqttDownlink(ctx context.Context) (int, error) {
	t.persistMu.Lock()
	defer t.persistMu.Unlock()

	t.mu.Lock()
	holder := -1
	var eligible []int
	for i := 0; i < t.count; i++ {
		ch := t.slots[i]
		if ch.Role == RoleDisabled {
			continue
		}
		if ch.Settings.DownlinkEnabled && holder < 0 {
			holder = i
		}
		eligible = append(eligible, i)
	}
	if len(eligible) < 2 {
		t.mu.Unlock()
		return -1, nil
	}

	next := eligible[0]
	for pos, i := range eligible {
		if i == holder {
			next = eligible[(pos+1)%len(eligible)]
			break
		}
	}
	for i := 0; i < t.count; i++ {
		t.slots[i].Settings.DownlinkEnabled = false
	}
	t.slots[next].Settings.DownlinkEnabled = true
	snap := t.fileLocked()
	t.mu.Unlock()

	t.log.WithFields(logrus.Fields{"from": holder, "to": next}).Info("MQTT downlink moved")
	return next, t.persist(ctx, "cycle mqtt downlink", snap)
}
