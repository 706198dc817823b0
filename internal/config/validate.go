package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate checks cross-field constraints. It does not touch the filesystem.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config cannot be nil")
	}

	if _, err := cfg.Node.Params(); err != nil {
		return err
	}

	if !cfg.Storage.InMemory && cfg.Storage.Path == "" {
		return errors.New("storage.path is required unless storage.inMemory is set")
	}

	if err := validateAdmin(&cfg.Admin); err != nil {
		return fmt.Errorf("admin: %w", err)
	}

	if cfg.Audit.MaxSizeMB <= 0 {
		return fmt.Errorf("audit.maxSizeMb must be positive, got %d", cfg.Audit.MaxSizeMB)
	}
	if cfg.Audit.MaxBackups < 0 || cfg.Audit.MaxAgeDays < 0 {
		return errors.New("audit.maxBackups and audit.maxAgeDays must not be negative")
	}

	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if f := strings.ToLower(cfg.Log.Format); f != "text" && f != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}

	if cfg.Events.BufferSize <= 0 || cfg.Events.BufferSize > 10000 {
		return fmt.Errorf("events.bufferSize %d is outside range [1, 10000]", cfg.Events.BufferSize)
	}
	if cfg.Events.HeartbeatSec <= 0 {
		return fmt.Errorf("events.heartbeatSec must be positive, got %d", cfg.Events.HeartbeatSec)
	}

	return nil
}

func validateAdmin(a *AdminConfig) error {
	if a.Addr == "" {
		return errors.New("addr is required")
	}
	if a.ReadTimeoutSec < 0 || a.WriteTimeoutSec < 0 || a.IdleTimeoutSec < 0 {
		return errors.New("timeouts must not be negative")
	}
	if a.Auth.Disabled {
		return nil
	}

	switch a.Auth.Algorithm {
	case "HS256":
		if len(a.Auth.Secret) < 32 {
			return errors.New("auth.secret must be at least 32 bytes for HS256")
		}
	case "RS256":
		if a.Auth.PublicKeyFile == "" {
			return errors.New("auth.publicKeyFile is required for RS256")
		}
	default:
		return fmt.Errorf("auth.algorithm must be HS256 or RS256, got %q", a.Auth.Algorithm)
	}
	return nil
}
