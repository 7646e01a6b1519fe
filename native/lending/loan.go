package lending

import "fmt"

// LateFeePerEpoch is the percentage of a position's deposit forfeited for each
// epoch a loan is held past its duration.
const LateFeePerEpoch uint64 = 5

// LoanKind classifies a loan by duration.
type LoanKind uint8

const (
	LoanShort LoanKind = iota
	LoanMedium
	LoanLong
)

type loanTerms struct {
	duration uint64
	maxRatio uint64
}

var loanTable = [...]loanTerms{
	LoanShort:  {duration: 15, maxRatio: 50},
	LoanMedium: {duration: 45, maxRatio: 40},
	LoanLong:   {duration: 90, maxRatio: 30},
}

func (k LoanKind) valid() bool { return int(k) < len(loanTable) }

func (k LoanKind) String() string {
	switch k {
	case LoanShort:
		return "short"
	case LoanMedium:
		return "medium"
	case LoanLong:
		return "long"
	default:
		return fmt.Sprintf("loan(%d)", uint8(k))
	}
}

// LoanType is a loan classification together with the epoch it started in.
type LoanType struct {
	Kind       LoanKind
	StartEpoch uint64
}

// ParseLoanType decodes the wire byte used by borrow instructions.
func ParseLoanType(raw uint8, startEpoch uint64) (LoanType, error) {
	kind := LoanKind(raw)
	if !kind.valid() {
		return LoanType{}, ErrInvalidLoanType
	}
	return LoanType{Kind: kind, StartEpoch: startEpoch}, nil
}

// Duration is the number of epochs before late fees start accruing.
func (l LoanType) Duration() uint64 { return loanTable[l.Kind].duration }

// MaxRatio is the maximum loan to value in whole percent.
func (l LoanType) MaxRatio() uint64 { return loanTable[l.Kind].maxRatio }

// SameKind compares classifications without the start epoch.
func (l LoanType) SameKind(other LoanType) bool { return l.Kind == other.Kind }
