package bank

import (
	"errors"
	"fmt"
	"sync"

	"github.com/palindrome-eng/srl-program/crypto"
)

var (
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrInvalidAmount     = errors.New("bank: amount must be positive")
	ErrOverflow          = errors.New("bank: balance overflow")
)

type tokenKey struct {
	mint    crypto.Pubkey
	account crypto.Pubkey
}

// Ledger holds native lamport balances and token balances per mint. It is
// safe for concurrent use.
type Ledger struct {
	mu       sync.RWMutex
	lamports map[crypto.Pubkey]uint64
	tokens   map[tokenKey]uint64
	supply   map[crypto.Pubkey]uint64
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		lamports: make(map[crypto.Pubkey]uint64),
		tokens:   make(map[tokenKey]uint64),
		supply:   make(map[crypto.Pubkey]uint64),
	}
}

// Airdrop credits lamports out of thin air. Only localnet tooling and tests
// call it.
func (l *Ledger) Airdrop(to crypto.Pubkey, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.lamports[to] + amount
	if next < amount {
		return ErrOverflow
	}
	l.lamports[to] = next
	return nil
}

// Transfer moves lamports between accounts.
func (l *Ledger) Transfer(from, to crypto.Pubkey, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.lamports[from]
	if balance < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientFunds, from, balance, amount)
	}
	if from == to {
		return nil
	}
	next := l.lamports[to] + amount
	if next < amount {
		return ErrOverflow
	}
	l.lamports[from] = balance - amount
	l.lamports[to] = next
	if l.lamports[from] == 0 {
		delete(l.lamports, from)
	}
	return nil
}

// Lamports returns the native balance of account.
func (l *Ledger) Lamports(account crypto.Pubkey) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lamports[account]
}

// MintTo issues amount of mint to account.
func (l *Ledger) MintTo(mint, to crypto.Pubkey, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	supply := l.supply[mint] + amount
	if supply < amount {
		return ErrOverflow
	}
	key := tokenKey{mint: mint, account: to}
	l.tokens[key] += amount
	l.supply[mint] = supply
	return nil
}

// Burn destroys amount of mint held by from.
func (l *Ledger) Burn(mint, from crypto.Pubkey, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := tokenKey{mint: mint, account: from}
	balance := l.tokens[key]
	if balance < amount {
		return fmt.Errorf("%w: %s holds %d of %s, needs %d", ErrInsufficientFunds, from, balance, mint, amount)
	}
	l.tokens[key] = balance - amount
	l.supply[mint] -= amount
	return nil
}

func (l *Ledger) TokenBalance(mint, account crypto.Pubkey) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tokens[tokenKey{mint: mint, account: account}]
}

func (l *Ledger) Supply(mint crypto.Pubkey) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply[mint]
}
