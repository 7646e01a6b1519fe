package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/palindrome-eng/srl-program/core/epoch"
	"github.com/palindrome-eng/srl-program/native/lending"
	"github.com/palindrome-eng/srl-program/storage"
)

// Config is the icarusd daemon configuration.
type Config struct {
	Logging    Logging        `toml:"Logging" yaml:"logging"`
	Storage    Storage        `toml:"Storage" yaml:"storage"`
	Clock      Clock          `toml:"Clock" yaml:"clock"`
	Reconciler lending.Params `toml:"Reconciler" yaml:"reconciler"`
	Cranker    Cranker        `toml:"Cranker" yaml:"cranker"`
	Journal    Journal        `toml:"Journal" yaml:"journal"`
	Gateway    Gateway        `toml:"Gateway" yaml:"gateway"`
	Telemetry  Telemetry      `toml:"Telemetry" yaml:"telemetry"`
	// Paused lists engine modules that reject mutating instructions at
	// startup.
	Paused     []string       `toml:"Paused" yaml:"paused"`
}

// Default returns a localnet configuration backed by memory storage.
func Default() *Config {
	clock := epoch.DefaultConfig()
	return &Config{
		Logging: Logging{Service: "icarusd", Env: "local"},
		Storage: Storage{Backend: storage.BackendMemory},
		Clock: Clock{
			SlotsPerEpoch: clock.SlotsPerEpoch,
			SlotDuration:  Duration{clock.SlotDuration},
		},
		Reconciler: lending.DefaultParams(),
		Cranker:    Cranker{Interval: Duration{10 * time.Second}, Markets: []string{}},
		Gateway:    Gateway{Listen: ":8080", RateLimitPerSecond: 20, Burst: 40},
		Telemetry:  Telemetry{Endpoint: "localhost:4318", Insecure: true, SampleRatio: 1},
		Paused:     []string{},
	}
}

// Load reads the configuration at path. Files ending in .yaml or .yml are
// decoded as YAML, everything else as TOML. A missing file is created with
// the defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	if isYAML(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode yaml config: %w", err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode toml config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Logging.Service = strings.TrimSpace(c.Logging.Service)
	if c.Logging.Service == "" {
		c.Logging.Service = "icarusd"
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = storage.BackendMemory
	}
	c.Storage.Path = strings.TrimSpace(c.Storage.Path)
	if c.Cranker.Markets == nil {
		c.Cranker.Markets = []string{}
	}
	for i, market := range c.Cranker.Markets {
		c.Cranker.Markets[i] = strings.TrimSpace(market)
	}
	if c.Paused == nil {
		c.Paused = []string{}
	}
	c.Journal.DSN = strings.TrimSpace(c.Journal.DSN)
	c.Gateway.Listen = strings.TrimSpace(c.Gateway.Listen)
}

// EpochConfig returns the clock section as an epoch.Config.
func (c *Config) EpochConfig() epoch.Config {
	return epoch.Config{
		SlotsPerEpoch: c.Clock.SlotsPerEpoch,
		SlotDuration:  c.Clock.SlotDuration.Duration,
	}
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := Write(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Write persists cfg to path in the format implied by its extension.
func Write(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	}
	return toml.NewEncoder(f).Encode(cfg)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
