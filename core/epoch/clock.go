package epoch

import (
	"context"
	"sync"
	"time"
)

// Clock exposes the fine grained slot counter and the coarse epoch derived
// from it.
type Clock interface {
	Slot() uint64
	Epoch() uint64
}

// ManualClock is a Clock advanced explicitly by the caller. It is safe for
// concurrent use.
type ManualClock struct {
	mu            sync.RWMutex
	slot          uint64
	slotsPerEpoch uint64
}

// NewManualClock returns a clock at slot zero.
func NewManualClock(cfg Config) *ManualClock {
	slots := cfg.SlotsPerEpoch
	if slots == 0 {
		slots = DefaultConfig().SlotsPerEpoch
	}
	return &ManualClock{slotsPerEpoch: slots}
}

func (c *ManualClock) Slot() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.slot
}

func (c *ManualClock) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.slot / c.slotsPerEpoch
}

// Advance moves the clock forward by the given number of slots.
func (c *ManualClock) Advance(slots uint64) {
	c.mu.Lock()
	c.slot += slots
	c.mu.Unlock()
}

// AdvanceEpochs moves the clock to the first slot of the epoch n epochs ahead.
func (c *ManualClock) AdvanceEpochs(n uint64) {
	c.mu.Lock()
	next := (c.slot/c.slotsPerEpoch + n) * c.slotsPerEpoch
	c.slot = next
	c.mu.Unlock()
}

// Ticker drives a ManualClock from wall clock time until ctx is cancelled.
func Ticker(ctx context.Context, clock *ManualClock, every time.Duration) {
	if clock == nil || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			clock.Advance(1)
		}
	}
}
