package lending

import "github.com/palindrome-eng/srl-program/crypto"

// Obligation aggregates a borrower's positions within one lending market. It
// holds at most one position per validator.
type Obligation struct {
	Owner     crypto.Pubkey
	Market    crypto.Pubkey
	Positions []Position
}

// NewObligation returns an empty obligation.
func NewObligation(owner, market crypto.Pubkey) *Obligation {
	return &Obligation{Owner: owner, Market: market, Positions: []Position{}}
}

// Clone returns a deep copy of the obligation.
func (o *Obligation) Clone() *Obligation {
	if o == nil {
		return nil
	}
	clone := &Obligation{Owner: o.Owner, Market: o.Market}
	clone.Positions = make([]Position, len(o.Positions))
	copy(clone.Positions, o.Positions)
	return clone
}

func (o *Obligation) findIndex(validator crypto.Pubkey) (int, error) {
	if len(o.Positions) == 0 {
		return -1, ErrObligationPositionEmpty
	}
	for i := range o.Positions {
		if o.Positions[i].Validator == validator {
			return i, nil
		}
	}
	return -1, ErrInvalidObligationPositionIndex
}

// Find returns the position held against validator.
func (o *Obligation) Find(validator crypto.Pubkey) (*Position, error) {
	idx, err := o.findIndex(validator)
	if err != nil {
		return nil, err
	}
	return &o.Positions[idx], nil
}

// OpenOrIncrease creates the position for validator or adds to the existing
// one. On failure the obligation is unchanged.
func (o *Obligation) OpenOrIncrease(validator crypto.Pubkey, loanType LoanType, deposit, weighted, borrow uint64) error {
	idx, err := o.findIndex(validator)
	switch err {
	case nil:
		next := o.Positions[idx]
		if err := next.Increase(loanType, deposit, weighted, borrow); err != nil {
			return err
		}
		o.Positions[idx] = next
		return nil
	case ErrObligationPositionEmpty, ErrInvalidObligationPositionIndex:
		position, err := NewPosition(validator, loanType, deposit, weighted, borrow)
		if err != nil {
			return err
		}
		o.Positions = append(o.Positions, *position)
		return nil
	default:
		return err
	}
}

// Resolution is the result of resolving a position.
type Resolution struct {
	Position Position
	Health
}

// Resolve evaluates the position for validator and removes it from the
// obligation whatever the outcome.
func (o *Obligation) Resolve(validator crypto.Pubkey, epoch uint64) (Resolution, error) {
	idx, err := o.findIndex(validator)
	if err != nil {
		return Resolution{}, err
	}
	position := o.Positions[idx]
	health, err := position.Evaluate(epoch)
	if err != nil {
		return Resolution{}, err
	}
	o.Positions = append(o.Positions[:idx], o.Positions[idx+1:]...)
	return Resolution{Position: position, Health: health}, nil
}

// TotalBorrowed sums debt across positions.
func (o *Obligation) TotalBorrowed() (uint64, error) {
	var total uint64
	for i := range o.Positions {
		next, err := checkedAdd(total, o.Positions[i].Borrowed)
		if err != nil {
			return 0, err
		}
		total = next
	}
	return total, nil
}
