package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/palindrome-eng/srl-program/observability/logging"
)

// Duration is a time.Duration written as "400ms" or "1m" in both TOML and
// YAML files.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(raw))
}

type Logging struct {
	Service string             `toml:"Service" yaml:"service"`
	Env     string             `toml:"Env" yaml:"env"`
	File    logging.FileConfig `toml:"File" yaml:"file"`
}

type Storage struct {
	// Backend is one of memory, leveldb or bolt.
	Backend string `toml:"Backend" yaml:"backend"`
	Path    string `toml:"Path" yaml:"path"`
}

type Clock struct {
	SlotsPerEpoch uint64   `toml:"SlotsPerEpoch" yaml:"slots_per_epoch"`
	SlotDuration  Duration `toml:"SlotDuration" yaml:"slot_duration"`
}

type Cranker struct {
	Interval Duration `toml:"Interval" yaml:"interval"`
	// Markets lists base58 market addresses to crank. Empty cranks every
	// market the daemon created.
	Markets []string `toml:"Markets" yaml:"markets"`
}

type Journal struct {
	// DSN is a sqlite data source. Empty disables the journal.
	DSN string `toml:"DSN" yaml:"dsn"`
}

type Gateway struct {
	Listen             string  `toml:"Listen" yaml:"listen"`
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond" yaml:"rate_limit_per_second"`
	Burst              int     `toml:"Burst" yaml:"burst"`
}

type Telemetry struct {
	Endpoint    string  `toml:"Endpoint" yaml:"endpoint"`
	Insecure    bool    `toml:"Insecure" yaml:"insecure"`
	Metrics     bool    `toml:"Metrics" yaml:"metrics"`
	Traces      bool    `toml:"Traces" yaml:"traces"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sample_ratio"`
}
