package lending

import (
	"github.com/holiman/uint256"

	"github.com/palindrome-eng/srl-program/crypto"
)

// Position is a borrower's exposure against a single validator's reserve.
type Position struct {
	Validator crypto.Pubkey
	LoanType  LoanType
	// Deposited is the raw stake pledged.
	Deposited uint64
	// Weighted is Deposited expressed in collateral pool shares.
	Weighted uint64
	Borrowed uint64
}

// Health is the outcome of evaluating a position at an epoch.
type Health struct {
	Liquidatable bool
	// Collectible is the borrowed amount when liquidatable and the decayed
	// deposit otherwise.
	Collectible uint64
}

// NewPosition opens a position after checking its starting loan to value.
func NewPosition(validator crypto.Pubkey, loanType LoanType, deposited, weighted, borrowed uint64) (*Position, error) {
	if !loanType.Kind.valid() {
		return nil, ErrInvalidLoanType
	}
	if deposited == 0 {
		return nil, ErrInvalidAmount
	}
	if err := checkLTV(loanType, deposited, borrowed); err != nil {
		return nil, err
	}
	return &Position{
		Validator: validator,
		LoanType:  loanType,
		Deposited: deposited,
		Weighted:  weighted,
		Borrowed:  borrowed,
	}, nil
}

// Clone returns a copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// checkLTV fails when borrowed/deposited exceeds the loan's max ratio, by
// exact cross multiplication.
func checkLTV(loanType LoanType, deposited, borrowed uint64) error {
	if borrowed == 0 {
		return nil
	}
	if deposited == 0 {
		return ErrLoanToValueTooHigh
	}
	var lhs, rhs uint256.Int
	lhs.Mul(uint256.NewInt(borrowed), uint256.NewInt(100))
	rhs.Mul(uint256.NewInt(deposited), uint256.NewInt(loanType.MaxRatio()))
	if lhs.Gt(&rhs) {
		return ErrLoanToValueTooHigh
	}
	return nil
}

// Increase adds collateral and borrows more against the same position. No
// field changes unless every check passes.
func (p *Position) Increase(loanType LoanType, deposit, weighted, borrow uint64) error {
	if !p.LoanType.SameKind(loanType) {
		return ErrLoanTypeMismatch
	}
	deposited, err := checkedAdd(p.Deposited, deposit)
	if err != nil {
		return err
	}
	weightedTotal, err := checkedAdd(p.Weighted, weighted)
	if err != nil {
		return err
	}
	borrowed, err := checkedAdd(p.Borrowed, borrow)
	if err != nil {
		return err
	}
	if err := checkLTV(p.LoanType, deposited, borrowed); err != nil {
		return err
	}
	p.Deposited = deposited
	p.Weighted = weightedTotal
	p.Borrowed = borrowed
	return nil
}

// Borrow adds debt after checking the loan to value at the new level.
func (p *Position) Borrow(amount uint64) error {
	borrowed, err := checkedAdd(p.Borrowed, amount)
	if err != nil {
		return err
	}
	if err := checkLTV(p.LoanType, p.Deposited, borrowed); err != nil {
		return err
	}
	p.Borrowed = borrowed
	return nil
}

// WithdrawCollateral removes collateral if the remaining deposit still
// supports the outstanding debt.
func (p *Position) WithdrawCollateral(amount, weighted uint64) error {
	if amount > p.Deposited || weighted > p.Weighted {
		return ErrInsufficientCollateral
	}
	deposited := p.Deposited - amount
	if err := checkLTV(p.LoanType, deposited, p.Borrowed); err != nil {
		return err
	}
	p.Deposited = deposited
	p.Weighted -= weighted
	return nil
}

// Evaluate decides whether the position is liquidatable at epoch, applying
// the late fee once the loan is past its duration.
func (p *Position) Evaluate(epoch uint64) (Health, error) {
	elapsed := saturatingSub(epoch, p.LoanType.StartEpoch)
	deposit := p.Deposited
	if duration := p.LoanType.Duration(); elapsed > duration {
		late := elapsed - duration
		decay, err := checkedMul(late, LateFeePerEpoch)
		if err != nil {
			decay = 100
		}
		feePct := saturatingSub(100, decay)
		deposit, err = MulDiv(p.Deposited, feePct, 100)
		if err != nil {
			return Health{}, err
		}
	}
	if p.Borrowed > deposit {
		return Health{Liquidatable: true, Collectible: p.Borrowed}, nil
	}
	return Health{Collectible: deposit}, nil
}

// LTVToMaxRatio is floor(100 * ltv / max_ratio) with max_ratio in whole
// percent. A position borrowed exactly at its limit reads 1.
func (p *Position) LTVToMaxRatio() (uint64, error) {
	if p.Deposited == 0 {
		return 0, ErrDivideByZero
	}
	ltv, err := WadFromU64(p.Borrowed).Div(WadFromU64(p.Deposited))
	if err != nil {
		return 0, err
	}
	scaled, err := ltv.MulU64(100)
	if err != nil {
		return 0, err
	}
	normalized, err := scaled.Div(WadFromU64(p.LoanType.MaxRatio()))
	if err != nil {
		return 0, err
	}
	return normalized.FloorU64()
}
