package stake

import (
	"errors"
	"testing"

	"github.com/palindrome-eng/srl-program/core/epoch"
	"github.com/palindrome-eng/srl-program/crypto"
	"github.com/palindrome-eng/srl-program/native/bank"
)

const testRent = 10

func key(b byte) crypto.Pubkey {
	var p crypto.Pubkey
	p[0] = b
	return p
}

func newTestMemory(t *testing.T) (*Memory, *bank.Ledger, *epoch.ManualClock) {
	t.Helper()
	ledger := bank.NewLedger()
	clock := epoch.NewManualClock(epoch.Config{SlotsPerEpoch: 10})
	return NewMemory(ledger, clock, testRent), ledger, clock
}

func fundedDelegation(t *testing.T, m *Memory, ledger *bank.Ledger, acct, auth, voter crypto.Pubkey, lamports uint64) {
	t.Helper()
	if err := m.Initialize(acct, auth); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := ledger.Airdrop(acct, lamports); err != nil {
		t.Fatalf("airdrop: %v", err)
	}
	if err := m.Delegate(acct, auth, voter); err != nil {
		t.Fatalf("delegate: %v", err)
	}
}

func mustState(t *testing.T, m *Memory, acct crypto.Pubkey) State {
	t.Helper()
	state, err := m.State(acct)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return state
}

func TestLifecycleTransitionsAtEpochBoundary(t *testing.T) {
	m, ledger, clock := newTestMemory(t)
	acct, auth, voter := key(1), key(2), key(3)
	if got := mustState(t, m, acct); got != StateUninitialized {
		t.Fatalf("expected uninitialized, got %s", got)
	}
	fundedDelegation(t, m, ledger, acct, auth, voter, 110)
	if got := mustState(t, m, acct); got != StateActivating {
		t.Fatalf("expected activating, got %s", got)
	}
	delegated, err := m.DelegatedAmount(acct)
	if err != nil || delegated != 100 {
		t.Fatalf("expected 100 delegated, got %d (%v)", delegated, err)
	}
	clock.AdvanceEpochs(1)
	if got := mustState(t, m, acct); got != StateActive {
		t.Fatalf("expected active, got %s", got)
	}
	if err := m.Deactivate(acct, auth); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if got := mustState(t, m, acct); got != StateDeactivating {
		t.Fatalf("expected deactivating, got %s", got)
	}
	if err := m.Withdraw(acct, auth, key(9), 110); !errors.Is(err, ErrInsufficientLamps) {
		t.Fatalf("expected locked withdraw to fail, got %v", err)
	}
	clock.AdvanceEpochs(1)
	if got := mustState(t, m, acct); got != StateDeactivated {
		t.Fatalf("expected deactivated, got %s", got)
	}
	if err := m.Withdraw(acct, auth, key(9), 110); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if ledger.Lamports(key(9)) != 110 {
		t.Fatalf("expected destination to receive 110 lamports")
	}
	if got := mustState(t, m, acct); got != StateUninitialized {
		t.Fatalf("expected closed account, got %s", got)
	}
}

func TestSplitAndMergeActiveStake(t *testing.T) {
	m, ledger, clock := newTestMemory(t)
	main, user, auth, voter := key(1), key(2), key(3), key(4)
	fundedDelegation(t, m, ledger, main, auth, voter, 1_010)
	fundedDelegation(t, m, ledger, user, auth, voter, 510)
	clock.AdvanceEpochs(1)

	if err := m.Split(user, auth, key(5), 200); err != nil {
		t.Fatalf("split: %v", err)
	}
	if got, _ := m.DelegatedAmount(user); got != 300 {
		t.Fatalf("expected 300 left on user stake, got %d", got)
	}
	if got, _ := m.DelegatedAmount(key(5)); got != 200 {
		t.Fatalf("expected 200 on split stake, got %d", got)
	}
	if err := m.Merge(main, user, auth); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if got, _ := m.DelegatedAmount(main); got != 1_300 {
		t.Fatalf("expected 1300 delegated after merge, got %d", got)
	}
	if got := mustState(t, m, user); got != StateUninitialized {
		t.Fatalf("expected merged source closed, got %s", got)
	}
}

func TestMergeRejectsMismatchedStates(t *testing.T) {
	m, ledger, clock := newTestMemory(t)
	main, fresh, auth, voter := key(1), key(2), key(3), key(4)
	fundedDelegation(t, m, ledger, main, auth, voter, 1_010)
	clock.AdvanceEpochs(1)
	fundedDelegation(t, m, ledger, fresh, auth, voter, 60)
	if err := m.Merge(main, fresh, auth); !errors.Is(err, ErrMergeMismatch) {
		t.Fatalf("expected ErrMergeMismatch, got %v", err)
	}
	other := key(7)
	fundedDelegation(t, m, ledger, other, auth, key(8), 60)
	clock.AdvanceEpochs(1)
	if err := m.Merge(main, other, auth); !errors.Is(err, ErrValidatorMismatch) {
		t.Fatalf("expected ErrValidatorMismatch, got %v", err)
	}
}

func TestAuthorityIsEnforced(t *testing.T) {
	m, ledger, _ := newTestMemory(t)
	acct, auth, voter := key(1), key(2), key(3)
	fundedDelegation(t, m, ledger, acct, auth, voter, 50)
	if err := m.Deactivate(acct, key(9)); !errors.Is(err, ErrAuthorityMismatch) {
		t.Fatalf("expected ErrAuthorityMismatch, got %v", err)
	}
	if err := m.Authorize(acct, auth, key(9)); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if err := m.Deactivate(acct, key(9)); err != nil {
		t.Fatalf("deactivate with new authority: %v", err)
	}
}

func TestRewardGrowsActiveDelegation(t *testing.T) {
	m, ledger, clock := newTestMemory(t)
	acct, auth, voter := key(1), key(2), key(3)
	fundedDelegation(t, m, ledger, acct, auth, voter, 110)
	if err := m.Reward(acct, 5); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected activating stake to reject rewards, got %v", err)
	}
	clock.AdvanceEpochs(1)
	if err := m.Reward(acct, 5); err != nil {
		t.Fatalf("reward: %v", err)
	}
	if got, _ := m.DelegatedAmount(acct); got != 105 {
		t.Fatalf("expected 105 delegated, got %d", got)
	}
	if got, _ := m.Balance(acct); got != 115 {
		t.Fatalf("expected balance 115, got %d", got)
	}
}
