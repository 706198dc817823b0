package config

import (
	"fmt"

	"github.com/radio-control/meshchan/internal/lora"
)

// Config is the complete daemon configuration.
type Config struct {
	Node    NodeConfig    `yaml:"node"`
	Storage StorageConfig `yaml:"storage"`
	Admin   AdminConfig   `yaml:"admin"`
	Audit   AuditConfig   `yaml:"audit"`
	Log     LogConfig     `yaml:"log"`
	Events  EventsConfig  `yaml:"events"`
}

// NodeConfig is the radio configuration channel names and frequency slots derive from.
type NodeConfig struct {
	Region      string `yaml:"region"`
	ModemPreset string `yaml:"modemPreset"`
	UsePreset   bool   `yaml:"usePreset"`
}

// StorageConfig selects where the channel file lives.
type StorageConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"inMemory"`
}

// AdminConfig holds admin HTTP API settings
type AdminConfig struct {
	Addr            string     `yaml:"addr"`
	ReadTimeoutSec  int        `yaml:"readTimeoutSec"`
	WriteTimeoutSec int        `yaml:"writeTimeoutSec"`
	IdleTimeoutSec  int        `yaml:"idleTimeoutSec"`
	Auth            AuthConfig `yaml:"auth"`
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	Disabled      bool   `yaml:"disabled"`
	Algorithm     string `yaml:"algorithm"` // HS256 or RS256
	Secret        string `yaml:"secret"`
	PublicKeyFile string `yaml:"publicKeyFile"`
}

// AuditConfig holds audit log rotation settings
type AuditConfig struct {
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// LogConfig holds application log settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
	File   string `yaml:"file"`   // empty logs to stderr only
}

// EventsConfig holds channel event stream settings
type EventsConfig struct {
	BufferSize   int `yaml:"bufferSize"`
	HeartbeatSec int `yaml:"heartbeatSec"`
}

// Default returns the built-in configuration.
func Default() *Config {
	node := lora.DefaultParams()
	return &Config{
		Node: NodeConfig{
			Region:      node.Region.String(),
			ModemPreset: node.Preset.String(),
			UsePreset:   node.UsePreset,
		},
		Storage: StorageConfig{
			Path: "/var/lib/meshchan",
		},
		Admin: AdminConfig{
			Addr:            "127.0.0.1:4403",
			ReadTimeoutSec:  10,
			WriteTimeoutSec: 0, // event streams are long-lived
			IdleTimeoutSec:  60,
			Auth: AuthConfig{
				Algorithm: "HS256",
			},
		},
		Audit: AuditConfig{
			Dir:        "/var/log/meshchan",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Events: EventsConfig{
			BufferSize:   50,
			HeartbeatSec: 15,
		},
	}
}

// Params resolves the node section into radio parameters.
func (n NodeConfig) Params() (lora.Params, error) {
	region, err := lora.ParseRegion(n.Region)
	if err != nil {
		return lora.Params{}, fmt.Errorf("node.region: %w", err)
	}
	preset, err := lora.ParsePreset(n.ModemPreset)
	if err != nil {
		return lora.Params{}, fmt.Errorf("node.modemPreset: %w", err)
	}
	return lora.Params{Region: region, Preset: preset, UsePreset: n.UsePreset}, nil
}
