package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// EnvConfigPath names the config file when no path is passed to Load.
const EnvConfigPath = "MESHCHAN_CONFIG"

// Load merges defaults, the YAML file at path (or $MESHCHAN_CONFIG) and MESHCHAN_* overrides.
// A missing path means defaults only; a named file that cannot be read is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg. Keys absent from the file keep their value.
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

// applyEnvOverrides applies MESHCHAN_* environment variables.
func applyEnvOverrides(cfg *Config) error {
	strs := []struct {
		env string
		dst *string
	}{
		{"MESHCHAN_REGION", &cfg.Node.Region},
		{"MESHCHAN_MODEM_PRESET", &cfg.Node.ModemPreset},
		{"MESHCHAN_STORAGE_PATH", &cfg.Storage.Path},
		{"MESHCHAN_ADMIN_ADDR", &cfg.Admin.Addr},
		{"MESHCHAN_AUTH_ALGORITHM", &cfg.Admin.Auth.Algorithm},
		{"MESHCHAN_AUTH_SECRET", &cfg.Admin.Auth.Secret},
		{"MESHCHAN_AUTH_PUBLIC_KEY_FILE", &cfg.Admin.Auth.PublicKeyFile},
		{"MESHCHAN_AUDIT_DIR", &cfg.Audit.Dir},
		{"MESHCHAN_LOG_LEVEL", &cfg.Log.Level},
		{"MESHCHAN_LOG_FORMAT", &cfg.Log.Format},
		{"MESHCHAN_LOG_FILE", &cfg.Log.File},
	}
	for _, s := range strs {
		if val := os.Getenv(s.env); val != "" {
			*s.dst = val
		}
	}

	bools := []struct {
		env string
		dst *bool
	}{
		{"MESHCHAN_USE_PRESET", &cfg.Node.UsePreset},
		{"MESHCHAN_STORAGE_IN_MEMORY", &cfg.Storage.InMemory},
		{"MESHCHAN_AUTH_DISABLED", &cfg.Admin.Auth.Disabled},
	}
	for _, b := range bools {
		if val := os.Getenv(b.env); val != "" {
			v, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("%s: %w", b.env, err)
			}
			*b.dst = v
		}
	}

	if val := os.Getenv("MESHCHAN_EVENTS_BUFFER_SIZE"); val != "" {
		size, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("MESHCHAN_EVENTS_BUFFER_SIZE: %w", err)
		}
		cfg.Events.BufferSize = size
	}

	return nil
}
