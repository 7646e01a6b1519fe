package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/palindrome-eng/srl-program/native/lending"
	"github.com/palindrome-eng/srl-program/storage"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "icarusd.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, reloaded)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "icarusd.toml", `
[Logging]
Service = " icarusd-test "
Env = "ci"

[Storage]
Backend = "LevelDB"
Path = "/var/lib/icarus"

[Clock]
SlotsPerEpoch = 32
SlotDuration = "50ms"

[Reconciler]
MinDelegation = 2000000000
StakeRentExempt = 2282880

[Cranker]
Interval = "2s"
Markets = ["11111111111111111111111111111111"]

[Journal]
DSN = "file:journal.db"

[Gateway]
Listen = "127.0.0.1:9000"
RateLimitPerSecond = 5
Burst = 10
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "icarusd-test", cfg.Logging.Service)
	require.Equal(t, storage.BackendLevelDB, cfg.Storage.Backend)
	require.Equal(t, uint64(32), cfg.Clock.SlotsPerEpoch)
	require.Equal(t, 50*time.Millisecond, cfg.Clock.SlotDuration.Duration)
	require.Equal(t, uint64(2*lending.LamportsPerSOL), cfg.Reconciler.MinDelegation)
	require.Equal(t, 2*time.Second, cfg.Cranker.Interval.Duration)
	require.Len(t, cfg.Cranker.Markets, 1)
	require.Equal(t, "file:journal.db", cfg.Journal.DSN)
	require.Equal(t, 10, cfg.Gateway.Burst)
	// Unset sections keep their defaults.
	require.Equal(t, "localhost:4318", cfg.Telemetry.Endpoint)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "icarusd.yaml", `
storage:
  backend: bolt
  path: /tmp/icarus.bolt
clock:
  slots_per_epoch: 8
  slot_duration: 1s
cranker:
  interval: 250ms
telemetry:
  traces: true
  sample_ratio: 0.25
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, storage.BackendBolt, cfg.Storage.Backend)
	require.Equal(t, uint64(8), cfg.Clock.SlotsPerEpoch)
	require.Equal(t, time.Second, cfg.Clock.SlotDuration.Duration)
	require.Equal(t, 250*time.Millisecond, cfg.Cranker.Interval.Duration)
	require.True(t, cfg.Telemetry.Traces)
	require.InDelta(t, 0.25, cfg.Telemetry.SampleRatio, 1e-9)
	require.Equal(t, lending.DefaultParams(), cfg.Reconciler)
	require.Equal(t, cfg.EpochConfig().SlotsPerEpoch, cfg.Clock.SlotsPerEpoch)
}

func TestWriteRoundTripsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "icarusd.yml")
	cfg := Default()
	cfg.Cranker.Interval = Duration{3 * time.Minute}
	require.NoError(t, Write(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestLoadRejectsUnknownTOMLKey(t *testing.T) {
	path := writeFile(t, "icarusd.toml", "[Storage]\nBackend = \"memory\"\nDirectory = \"x\"\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "unknown key")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeFile(t, "icarusd.yaml", "cranker:\n  interval: soon\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, "unknown backend"},
		{"missing path", func(c *Config) { c.Storage.Backend = storage.BackendBolt }, "path required"},
		{"zero slots", func(c *Config) { c.Clock.SlotsPerEpoch = 0 }, "clock"},
		{"overflowing params", func(c *Config) { c.Reconciler.StakeRentExempt = ^uint64(0) }, "reconciler"},
		{"zero interval", func(c *Config) { c.Cranker.Interval = Duration{} }, "interval"},
		{"bad market", func(c *Config) { c.Cranker.Markets = []string{"not-base58!"} }, "market"},
		{"no listen", func(c *Config) { c.Gateway.Listen = "" }, "listen"},
		{"no burst", func(c *Config) { c.Gateway.Burst = 0 }, "burst"},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 1.5 }, "sample_ratio"},
	}
	require.NoError(t, Default().Validate())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}
