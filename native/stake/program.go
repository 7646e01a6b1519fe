package stake

import (
	"errors"
	"fmt"
)

// State is the lifecycle of a stake account as reported by the host.
type State uint8

const (
	StateUninitialized State = iota
	StateInitialized
	StateActivating
	StateActive
	StateDeactivating
	StateDeactivated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateDeactivating:
		return "deactivating"
	case StateDeactivated:
		return "deactivated"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Delegating reports whether the stake is still locked by its delegation.
func (s State) Delegating() bool {
	return s == StateActivating || s == StateActive || s == StateDeactivating
}

var (
	ErrAccountNotFound    = errors.New("stake: account not found")
	ErrAccountExists      = errors.New("stake: account already exists")
	ErrAuthorityMismatch  = errors.New("stake: authority mismatch")
	ErrInvalidState       = errors.New("stake: account in invalid state for operation")
	ErrMergeMismatch      = errors.New("stake: accounts cannot be merged")
	ErrInsufficientStake  = errors.New("stake: insufficient stake")
	ErrInsufficientLamps  = errors.New("stake: insufficient withdrawable lamports")
	ErrInvalidAmount      = errors.New("stake: amount must be positive")
	ErrValidatorMismatch  = errors.New("stake: validator mismatch")
	ErrDelegationTooSmall = errors.New("stake: delegation below rent exempt reserve")
)
