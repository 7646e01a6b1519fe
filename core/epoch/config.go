package epoch

import (
	"fmt"
	"time"
)

// Config describes how slots group into epochs.
type Config struct {
	// SlotsPerEpoch is the number of slots in a single epoch. The value must
	// be greater than zero.
	SlotsPerEpoch uint64

	// SlotDuration is the wall clock time between slots when the clock is
	// driven by a Ticker.
	SlotDuration time.Duration
}

// DefaultConfig returns the localnet cadence.
func DefaultConfig() Config {
	return Config{
		SlotsPerEpoch: 432,
		SlotDuration:  400 * time.Millisecond,
	}
}

// Validate ensures the configuration is self-consistent.
func (c Config) Validate() error {
	if c.SlotsPerEpoch == 0 {
		return fmt.Errorf("slots per epoch must be greater than zero")
	}
	if c.SlotDuration < 0 {
		return fmt.Errorf("slot duration must not be negative")
	}
	return nil
}
