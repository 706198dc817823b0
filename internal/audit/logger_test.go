package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radio-control/meshchan/internal/channels"
	"github.com/radio-control/meshchan/internal/config"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	l, err := NewLogger(config.AuditConfig{Dir: t.TempDir(), MaxSizeMB: 1, MaxBackups: 2}, quiet)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		out = append(out, e)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestLogChannelAction(t *testing.T) {
	l := newTestLogger(t)
	ctx := WithUser(context.Background(), "ops@node")

	l.LogChannelAction(ctx, "setChannel", 2, map[string]interface{}{"name": "Ops", "psk": "c2VjcmV0"}, nil)

	entries := readEntries(t, l.FilePath())
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "ops@node", e.User)
	assert.Equal(t, "setChannel", e.Action)
	assert.Equal(t, 2, e.Channel)
	assert.Equal(t, "SUCCESS", e.Outcome)
	assert.Equal(t, "Ops", e.Params["name"])
	assert.Equal(t, "[redacted]", e.Params["psk"])
	assert.False(t, e.Timestamp.IsZero())
}

func TestCodes(t *testing.T) {
	tests := []struct {
		err     error
		code    string
		outcome string
	}{
		{nil, "SUCCESS", "SUCCESS"},
		{fmt.Errorf("%w: 9", channels.ErrInvalidIndex), "INVALID_INDEX", "FAILURE"},
		{&channels.ValidationError{Field: "name", Reason: "too long"}, "VALIDATION_FAILED", "FAILURE"},
		{&channels.PersistError{Op: "set channel", Err: errors.New("disk full")}, "PERSISTENCE_FAILED", "APPLIED_NOT_PERSISTED"},
		{errors.New("boom"), "ERROR", "FAILURE"},
	}

	l := newTestLogger(t)
	for _, tt := range tests {
		l.LogChannelAction(context.Background(), "setChannel", 1, nil, tt.err)
	}

	entries := readEntries(t, l.FilePath())
	require.Len(t, entries, len(tests))
	for i, tt := range tests {
		assert.Equal(t, tt.code, entries[i].Code)
		assert.Equal(t, tt.outcome, entries[i].Outcome)
		assert.Equal(t, "unknown", entries[i].User)
	}
}

func TestRotate(t *testing.T) {
	l := newTestLogger(t)
	l.LogChannelAction(context.Background(), "cycleMqttDownlink", 1, nil, nil)
	require.NoError(t, l.Rotate())
	l.LogChannelAction(context.Background(), "cycleMqttDownlink", 0, nil, nil)

	files, err := filepath.Glob(filepath.Join(filepath.Dir(l.FilePath()), "audit*.jsonl"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Len(t, readEntries(t, l.FilePath()), 1)
}
