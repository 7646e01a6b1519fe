package stake

import (
	"fmt"
	"math"
	"sync"

	"github.com/palindrome-eng/srl-program/core/epoch"
	"github.com/palindrome-eng/srl-program/crypto"
)

const noEpoch = math.MaxUint64

// Lamports is the native balance ledger backing stake accounts.
type Lamports interface {
	Transfer(from, to crypto.Pubkey, amount uint64) error
	Lamports(account crypto.Pubkey) uint64
	Airdrop(to crypto.Pubkey, amount uint64) error
}

type account struct {
	authority    crypto.Pubkey
	voter        crypto.Pubkey
	delegated    uint64
	activation   uint64
	deactivation uint64
}

func (a *account) isDelegated() bool { return a.activation != noEpoch }

// Memory is an in-process stake program. Activation and deactivation take
// effect one epoch after they are requested. Lamports live in the ledger
// under the stake account's key. It is safe for concurrent use.
type Memory struct {
	mu         sync.Mutex
	accounts   map[crypto.Pubkey]*account
	ledger     Lamports
	clock      epoch.Clock
	rentExempt uint64
}

// NewMemory returns an empty stake program. rentExempt lamports stay
// undelegated in every delegated account.
func NewMemory(ledger Lamports, clock epoch.Clock, rentExempt uint64) *Memory {
	return &Memory{
		accounts:   make(map[crypto.Pubkey]*account),
		ledger:     ledger,
		clock:      clock,
		rentExempt: rentExempt,
	}
}

func (m *Memory) lookup(key, authority crypto.Pubkey) (*account, error) {
	acc, ok := m.accounts[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	if acc.authority != authority {
		return nil, ErrAuthorityMismatch
	}
	return acc, nil
}

func (m *Memory) stateOf(acc *account) State {
	if !acc.isDelegated() {
		return StateInitialized
	}
	current := m.clock.Epoch()
	if acc.deactivation != noEpoch {
		if acc.activation == acc.deactivation || current > acc.deactivation {
			return StateDeactivated
		}
		return StateDeactivating
	}
	if current > acc.activation {
		return StateActive
	}
	return StateActivating
}

// Initialize creates an undelegated stake account controlled by authority.
func (m *Memory) Initialize(key, authority crypto.Pubkey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[key]; ok {
		return fmt.Errorf("%w: %s", ErrAccountExists, key)
	}
	m.accounts[key] = &account{authority: authority, activation: noEpoch, deactivation: noEpoch}
	return nil
}

// Delegate starts activating the account's lamports above the rent reserve
// towards validator.
func (m *Memory) Delegate(key, authority, validator crypto.Pubkey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, err := m.lookup(key, authority)
	if err != nil {
		return err
	}
	if state := m.stateOf(acc); state != StateInitialized && state != StateDeactivated {
		return fmt.Errorf("%w: delegate from %s", ErrInvalidState, state)
	}
	balance := m.ledger.Lamports(key)
	if balance <= m.rentExempt {
		return ErrDelegationTooSmall
	}
	acc.voter = validator
	acc.delegated = balance - m.rentExempt
	acc.activation = m.clock.Epoch()
	acc.deactivation = noEpoch
	return nil
}

// Split moves amount into a new account at destination. Delegated stake is
// split along with its lamports.
func (m *Memory) Split(source, authority, destination crypto.Pubkey, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, err := m.lookup(source, authority)
	if err != nil {
		return err
	}
	if _, ok := m.accounts[destination]; ok {
		return fmt.Errorf("%w: %s", ErrAccountExists, destination)
	}
	split := &account{authority: acc.authority, activation: noEpoch, deactivation: noEpoch}
	if state := m.stateOf(acc); state.Delegating() {
		if amount > acc.delegated {
			return fmt.Errorf("%w: split %d of %d delegated", ErrInsufficientStake, amount, acc.delegated)
		}
		split.voter = acc.voter
		split.delegated = amount
		split.activation = acc.activation
		split.deactivation = acc.deactivation
	}
	if err := m.ledger.Transfer(source, destination, amount); err != nil {
		return err
	}
	if split.isDelegated() {
		acc.delegated -= amount
	}
	m.accounts[destination] = split
	return nil
}

// Merge folds source into destination and closes source.
func (m *Memory) Merge(destination, source, authority crypto.Pubkey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dst, err := m.lookup(destination, authority)
	if err != nil {
		return err
	}
	src, err := m.lookup(source, authority)
	if err != nil {
		return err
	}
	srcState, dstState := m.stateOf(src), m.stateOf(dst)
	var addDelegation bool
	switch {
	case srcState == StateInitialized || srcState == StateDeactivated:
	case srcState == StateActive && dstState == StateActive:
		addDelegation = true
	case srcState == StateActivating && dstState == StateActivating && src.activation == dst.activation:
		addDelegation = true
	default:
		return fmt.Errorf("%w: %s into %s", ErrMergeMismatch, srcState, dstState)
	}
	if addDelegation && src.voter != dst.voter {
		return ErrValidatorMismatch
	}
	if lamports := m.ledger.Lamports(source); lamports > 0 {
		if err := m.ledger.Transfer(source, destination, lamports); err != nil {
			return err
		}
	}
	if addDelegation {
		dst.delegated += src.delegated
	}
	delete(m.accounts, source)
	return nil
}

// Deactivate begins unstaking the account's delegation.
func (m *Memory) Deactivate(key, authority crypto.Pubkey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, err := m.lookup(key, authority)
	if err != nil {
		return err
	}
	if state := m.stateOf(acc); state != StateActive && state != StateActivating {
		return fmt.Errorf("%w: deactivate from %s", ErrInvalidState, state)
	}
	acc.deactivation = m.clock.Epoch()
	return nil
}

// Withdraw moves lamports not locked by a delegation to destination. An
// account withdrawn to zero is closed.
func (m *Memory) Withdraw(key, authority, destination crypto.Pubkey, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, err := m.lookup(key, authority)
	if err != nil {
		return err
	}
	balance := m.ledger.Lamports(key)
	var locked uint64
	if m.stateOf(acc).Delegating() {
		locked = acc.delegated + m.rentExempt
	}
	if locked > balance || amount > balance-locked {
		return fmt.Errorf("%w: withdraw %d of %d", ErrInsufficientLamps, amount, balance-min(locked, balance))
	}
	if err := m.ledger.Transfer(key, destination, amount); err != nil {
		return err
	}
	if amount == balance {
		delete(m.accounts, key)
	}
	return nil
}

// Authorize hands control of the account to another authority.
func (m *Memory) Authorize(key, authority, newAuthority crypto.Pubkey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, err := m.lookup(key, authority)
	if err != nil {
		return err
	}
	acc.authority = newAuthority
	return nil
}

func (m *Memory) DelegatedAmount(key crypto.Pubkey) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	if !acc.isDelegated() {
		return 0, nil
	}
	return acc.delegated, nil
}

func (m *Memory) Balance(key crypto.Pubkey) (uint64, error) {
	return m.ledger.Lamports(key), nil
}

func (m *Memory) State(key crypto.Pubkey) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[key]
	if !ok {
		return StateUninitialized, nil
	}
	return m.stateOf(acc), nil
}

func (m *Memory) Voter(key crypto.Pubkey) (crypto.Pubkey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[key]
	if !ok {
		return crypto.Pubkey{}, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	return acc.voter, nil
}

// Reward credits epoch rewards to an active delegation.
func (m *Memory) Reward(key crypto.Pubkey, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	if m.stateOf(acc) != StateActive {
		return fmt.Errorf("%w: reward %s stake", ErrInvalidState, m.stateOf(acc))
	}
	if err := m.ledger.Airdrop(key, amount); err != nil {
		return err
	}
	acc.delegated += amount
	return nil
}

// Accounts returns the number of open stake accounts.
func (m *Memory) Accounts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}
