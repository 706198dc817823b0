package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/radio-control/meshchan/internal/channels"
	"github.com/radio-control/meshchan/internal/config"
)

// FileName is the active audit file inside the audit directory.
const FileName = "audit.jsonl"

// Entry is a single audit record.
type Entry struct {
	Timestamp time.Time              `json:"ts"`
	User      string                 `json:"user"`
	Action    string                 `json:"action"`
	Channel   int                    `json:"channel"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Outcome   string                 `json:"outcome"`
	Code      string                 `json:"code"`
}

// Logger appends audit entries to a rotated JSON-lines file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      *lumberjack.Logger
	log      logrus.FieldLogger
}

// NewLogger opens (creating if needed) the audit file in cfg.Dir.
func NewLogger(cfg config.AuditConfig, log logrus.FieldLogger) (*Logger, error) {
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	filePath := filepath.Join(cfg.Dir, FileName)
	out := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	return &Logger{
		filePath: filePath,
		out:      out,
		log:      log.WithField("component", "audit"),
	}, nil
}

type userKey struct{}

// WithUser attaches the acting subject to ctx.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

func userFrom(ctx context.Context) string {
	if u, ok := ctx.Value(userKey{}).(string); ok && u != "" {
		return u
	}
	return "unknown"
}

// LogChannelAction records an action against a channel slot. err is the result of the
// action; nil means it succeeded.
func (l *Logger) LogChannelAction(ctx context.Context, action string, index int, params map[string]interface{}, err error) {
	entry := Entry{
		Timestamp: time.Now().UTC(),
		User:      userFrom(ctx),
		Action:    action,
		Channel:   index,
		Params:    redact(params),
		Outcome:   "SUCCESS",
		Code:      CodeFor(err),
	}
	if err != nil {
		entry.Outcome = "FAILURE"
		if channels.IsPersistence(err) {
			entry.Outcome = "APPLIED_NOT_PERSISTED"
		}
	}
	l.write(entry)
}

// CodeFor maps a channel operation error to its audit code.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return "SUCCESS"
	case channels.IsInvalidIndex(err):
		return "INVALID_INDEX"
	case channels.IsValidationFailed(err):
		return "VALIDATION_FAILED"
	case channels.IsPersistence(err):
		return "PERSISTENCE_FAILED"
	default:
		return "ERROR"
	}
}

// redact drops key material from params.
func redact(params map[string]interface{}) map[string]interface{} {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		if k == "psk" {
			v = "[redacted]"
		}
		out[k] = v
	}
	return out
}

func (l *Logger) write(entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		l.log.WithError(err).Error("Failed to marshal audit entry")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.out.Write(append(data, '\n')); err != nil {
		l.log.WithError(err).Error("Failed to write audit entry")
	}
}

// FilePath returns the path of the active audit file.
func (l *Logger) FilePath() string {
	return l.filePath
}

// Rotate closes the active file and starts a new one, keeping the old as a backup.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Rotate()
}

// Close closes the audit file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}
