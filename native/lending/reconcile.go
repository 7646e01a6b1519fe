package lending

import (
	"fmt"

	"github.com/palindrome-eng/srl-program/crypto"
	"github.com/palindrome-eng/srl-program/native/stake"
)

// StakeProgram is the host's stake lifecycle. Every call either completes or
// fails without effect.
type StakeProgram interface {
	Initialize(account, authority crypto.Pubkey) error
	Delegate(account, authority, validator crypto.Pubkey) error
	Split(source, authority, destination crypto.Pubkey, amount uint64) error
	Merge(destination, source, authority crypto.Pubkey) error
	Deactivate(account, authority crypto.Pubkey) error
	Withdraw(account, authority, destination crypto.Pubkey, amount uint64) error
	Authorize(account, authority, newAuthority crypto.Pubkey) error
	DelegatedAmount(account crypto.Pubkey) (uint64, error)
	Balance(account crypto.Pubkey) (uint64, error)
	State(account crypto.Pubkey) (stake.State, error)
	Voter(account crypto.Pubkey) (crypto.Pubkey, error)
}

// ReconcileReport describes what one reconciliation pass did.
type ReconcileReport struct {
	EpochsAdvanced uint64
	// Activated is the lamports carved into a new activating tranche.
	Activated uint64
	Merged    []Tranche
	Withdrawn []Tranche
	// Swept is the lamports withdrawn into the liquidity vault.
	Swept uint64
	// Deactivated is the claimable collateral split off for unstaking.
	Deactivated uint64
}

// Noop reports whether the pass changed nothing.
func (r ReconcileReport) Noop() bool {
	return r.EpochsAdvanced == 0
}

// Reconciler rolls a reserve's stake forward across epochs. Each step reads
// tranche lifecycles from the stake program and acts only when its own
// precondition holds, so repeated or late calls converge.
type Reconciler struct {
	stake  StakeProgram
	params Params
}

func NewReconciler(program StakeProgram, params Params) *Reconciler {
	return &Reconciler{stake: program, params: params}
}

// Reconcile advances reserve to epoch and applies one set of tranche
// transitions. reserve and tranches are mutated in place; callers pass
// clones and persist them on success.
func (rc *Reconciler) Reconcile(reserve *Reserve, tranches *Tranches, authority crypto.Pubkey, epoch uint64) (ReconcileReport, error) {
	var report ReconcileReport
	elapsed, err := reserve.EpochElapsed(epoch)
	if err != nil {
		return report, err
	}
	if elapsed == 0 {
		return report, nil
	}
	reserve.UpdateEpoch(epoch)
	report.EpochsAdvanced = elapsed

	main := reserve.Collateral.StakeAccount
	if report.Activated, err = rc.activateInactive(reserve, tranches, authority, epoch); err != nil {
		return report, err
	}
	if report.Merged, err = rc.mergeActivated(main, tranches, authority); err != nil {
		return report, err
	}
	if report.Withdrawn, report.Swept, err = rc.sweepDeactivated(reserve, tranches, authority); err != nil {
		return report, err
	}
	if report.Deactivated, err = rc.deactivateClaimable(reserve, tranches, authority, epoch); err != nil {
		return report, err
	}

	delegated, err := rc.stake.DelegatedAmount(main)
	if err != nil {
		return report, fmt.Errorf("query delegated stake: %w", err)
	}
	reserve.Collateral.Staked = delegated
	return report, nil
}

// activateInactive moves undelegated lamports sitting on the main account
// into a fresh tranche once they are large enough to delegate.
func (rc *Reconciler) activateInactive(reserve *Reserve, tranches *Tranches, authority crypto.Pubkey, epoch uint64) (uint64, error) {
	if tranches.Has(TrancheActivating, epoch) {
		return 0, nil
	}
	main := reserve.Collateral.StakeAccount
	balance, err := rc.stake.Balance(main)
	if err != nil {
		return 0, fmt.Errorf("query stake balance: %w", err)
	}
	delegated, err := rc.stake.DelegatedAmount(main)
	if err != nil {
		return 0, fmt.Errorf("query delegated stake: %w", err)
	}
	inactive, err := checkedSub(balance, delegated)
	if err != nil {
		return 0, err
	}
	threshold, err := rc.params.SeedLamports()
	if err != nil {
		return 0, err
	}
	if inactive <= threshold {
		return 0, nil
	}
	amount := inactive - rc.params.StakeRentExempt
	account := trancheAddress(reserve.Key, TrancheActivating, epoch)
	if err := rc.stake.Initialize(account, authority); err != nil {
		return 0, fmt.Errorf("initialize activating tranche: %w", err)
	}
	if err := rc.stake.Withdraw(main, authority, account, amount); err != nil {
		return 0, fmt.Errorf("fund activating tranche: %w", err)
	}
	if err := rc.stake.Delegate(account, authority, reserve.Validator); err != nil {
		return 0, fmt.Errorf("delegate activating tranche: %w", err)
	}
	if err := tranches.Add(Tranche{Kind: TrancheActivating, Epoch: epoch, Account: account, Amount: amount}); err != nil {
		return 0, err
	}
	return amount, nil
}

func (rc *Reconciler) mergeActivated(main crypto.Pubkey, tranches *Tranches, authority crypto.Pubkey) ([]Tranche, error) {
	var merged []Tranche
	for _, tranche := range tranches.OfKind(TrancheActivating) {
		state, err := rc.stake.State(tranche.Account)
		if err != nil {
			return nil, fmt.Errorf("query tranche state: %w", err)
		}
		if !tranche.ready(state) {
			continue
		}
		if err := rc.stake.Merge(main, tranche.Account, authority); err != nil {
			return nil, fmt.Errorf("merge activated tranche: %w", err)
		}
		tranches.Remove(tranche.Account)
		merged = append(merged, tranche)
	}
	return merged, nil
}

func (rc *Reconciler) sweepDeactivated(reserve *Reserve, tranches *Tranches, authority crypto.Pubkey) ([]Tranche, uint64, error) {
	var (
		withdrawn []Tranche
		swept     uint64
	)
	for _, tranche := range tranches.OfKind(TrancheDeactivating) {
		state, err := rc.stake.State(tranche.Account)
		if err != nil {
			return nil, 0, fmt.Errorf("query tranche state: %w", err)
		}
		if !tranche.ready(state) {
			continue
		}
		balance, err := rc.stake.Balance(tranche.Account)
		if err != nil {
			return nil, 0, fmt.Errorf("query tranche balance: %w", err)
		}
		if balance > 0 {
			if err := rc.stake.Withdraw(tranche.Account, authority, reserve.Liquidity.Vault, balance); err != nil {
				return nil, 0, fmt.Errorf("withdraw deactivated tranche: %w", err)
			}
			if err := reserve.Liquidity.Credit(balance); err != nil {
				return nil, 0, err
			}
			if swept, err = checkedAdd(swept, balance); err != nil {
				return nil, 0, err
			}
		}
		tranches.Remove(tranche.Account)
		withdrawn = append(withdrawn, tranche)
	}
	return withdrawn, swept, nil
}

// deactivateClaimable starts unstaking the collateral retained as fees.
func (rc *Reconciler) deactivateClaimable(reserve *Reserve, tranches *Tranches, authority crypto.Pubkey, epoch uint64) (uint64, error) {
	claimable := reserve.Collateral.Claimable
	if claimable == 0 || tranches.Has(TrancheDeactivating, epoch) {
		return 0, nil
	}
	account := trancheAddress(reserve.Key, TrancheDeactivating, epoch)
	if err := rc.stake.Split(reserve.Collateral.StakeAccount, authority, account, claimable); err != nil {
		return 0, fmt.Errorf("split claimable stake: %w", err)
	}
	if err := rc.stake.Deactivate(account, authority); err != nil {
		return 0, fmt.Errorf("deactivate claimable stake: %w", err)
	}
	if err := tranches.Add(Tranche{Kind: TrancheDeactivating, Epoch: epoch, Account: account, Amount: claimable}); err != nil {
		return 0, err
	}
	reserve.Collateral.Claimable = 0
	return claimable, nil
}
