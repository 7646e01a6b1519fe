package config

import (
	"fmt"

	"github.com/palindrome-eng/srl-program/crypto"
	"github.com/palindrome-eng/srl-program/storage"
)

// Validate checks every section and reports the first problem found.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case storage.BackendMemory:
	case storage.BackendLevelDB, storage.BackendBolt:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage: path required for %s backend", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	if err := c.EpochConfig().Validate(); err != nil {
		return fmt.Errorf("clock: %w", err)
	}
	if err := c.Reconciler.Validate(); err != nil {
		return fmt.Errorf("reconciler: %w", err)
	}
	if c.Cranker.Interval.Duration <= 0 {
		return fmt.Errorf("cranker: interval must be positive")
	}
	for _, market := range c.Cranker.Markets {
		if _, err := crypto.ParsePubkey(market); err != nil {
			return fmt.Errorf("cranker: market %q: %w", market, err)
		}
	}
	if c.Gateway.Listen == "" {
		return fmt.Errorf("gateway: listen address required")
	}
	if c.Gateway.RateLimitPerSecond < 0 {
		return fmt.Errorf("gateway: rate_limit_per_second must not be negative")
	}
	if c.Gateway.RateLimitPerSecond > 0 && c.Gateway.Burst <= 0 {
		return fmt.Errorf("gateway: burst must be positive when rate limiting")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be within [0, 1]")
	}
	return nil
}
