package lending

import (
	"fmt"

	"github.com/palindrome-eng/srl-program/crypto"
	"github.com/palindrome-eng/srl-program/native/stake"
)

// TrancheKind separates stake on its way in from stake on its way out.
type TrancheKind uint8

const (
	TrancheActivating TrancheKind = iota
	TrancheDeactivating
)

func (k TrancheKind) String() string {
	switch k {
	case TrancheActivating:
		return "activating"
	case TrancheDeactivating:
		return "deactivating"
	default:
		return fmt.Sprintf("tranche(%d)", uint8(k))
	}
}

// Tranche is a stake account holding part of a reserve's stake for one epoch
// cohort. It is removed from the registry once merged or withdrawn.
type Tranche struct {
	Kind    TrancheKind
	Epoch   uint64
	Account crypto.Pubkey
	Amount  uint64
}

// ready reports whether the stake program has finished the transition for
// this tranche.
func (t Tranche) ready(state stake.State) bool {
	switch t.Kind {
	case TrancheActivating:
		return state == stake.StateActive
	case TrancheDeactivating:
		return state == stake.StateDeactivated || state == stake.StateInitialized
	default:
		return false
	}
}

// Tranches is the registry of in-flight tranches for one reserve.
type Tranches struct {
	Reserve crypto.Pubkey
	Entries []Tranche
}

// NewTranches returns an empty registry.
func NewTranches(reserve crypto.Pubkey) *Tranches {
	return &Tranches{Reserve: reserve, Entries: []Tranche{}}
}

// Clone returns a deep copy of the registry.
func (t *Tranches) Clone() *Tranches {
	if t == nil {
		return nil
	}
	clone := &Tranches{Reserve: t.Reserve, Entries: make([]Tranche, len(t.Entries))}
	copy(clone.Entries, t.Entries)
	return clone
}

// Has reports whether a tranche exists for kind and epoch.
func (t *Tranches) Has(kind TrancheKind, epoch uint64) bool {
	for _, entry := range t.Entries {
		if entry.Kind == kind && entry.Epoch == epoch {
			return true
		}
	}
	return false
}

// Add registers a tranche. Only one tranche per kind and epoch can exist.
func (t *Tranches) Add(entry Tranche) error {
	if t.Has(entry.Kind, entry.Epoch) {
		return fmt.Errorf("%s tranche for epoch %d already registered", entry.Kind, entry.Epoch)
	}
	t.Entries = append(t.Entries, entry)
	return nil
}

// Remove drops the tranche for account.
func (t *Tranches) Remove(account crypto.Pubkey) {
	kept := t.Entries[:0]
	for _, entry := range t.Entries {
		if entry.Account != account {
			kept = append(kept, entry)
		}
	}
	t.Entries = kept
}

// OfKind returns the tranches of kind in registration order.
func (t *Tranches) OfKind(kind TrancheKind) []Tranche {
	out := make([]Tranche, 0, len(t.Entries))
	for _, entry := range t.Entries {
		if entry.Kind == kind {
			out = append(out, entry)
		}
	}
	return out
}
