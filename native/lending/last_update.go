package lending

// StaleAfterSlotsElapsed is the number of slots after which a refreshed
// reserve is considered stale again.
const StaleAfterSlotsElapsed uint64 = 1

// LastUpdate tracks when a reserve was last refreshed and whether a mutation
// has invalidated it since.
type LastUpdate struct {
	Slot  uint64
	Stale bool
}

// NewLastUpdate returns a tracker that must be refreshed before first use.
func NewLastUpdate(slot uint64) LastUpdate {
	return LastUpdate{Slot: slot, Stale: true}
}

// SlotsElapsed fails when the clock moved backwards.
func (l LastUpdate) SlotsElapsed(slot uint64) (uint64, error) {
	if slot < l.Slot {
		return 0, ErrMathOverflow
	}
	return slot - l.Slot, nil
}

// UpdateSlot records a refresh at the given slot.
func (l *LastUpdate) UpdateSlot(slot uint64) {
	l.Slot = slot
	l.Stale = false
}

func (l *LastUpdate) MarkStale() {
	l.Stale = true
}

// IsStale reports whether state must be refreshed before it is read at slot.
func (l LastUpdate) IsStale(slot uint64) (bool, error) {
	elapsed, err := l.SlotsElapsed(slot)
	if err != nil {
		return false, err
	}
	return l.Stale || elapsed >= StaleAfterSlotsElapsed, nil
}
