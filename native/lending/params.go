package lending

import "fmt"

// LamportsPerSOL is the native unit scale.
const LamportsPerSOL uint64 = 1_000_000_000

// Params captures the host staking constants the engine depends on.
type Params struct {
	// MinDelegation is the host's minimum stake delegation in lamports. The
	// engine never seeds or carves less than one SOL regardless.
	MinDelegation uint64 `toml:"MinDelegation" yaml:"min_delegation"`
	// StakeRentExempt is the rent exempt reserve of a stake account.
	StakeRentExempt uint64 `toml:"StakeRentExempt" yaml:"stake_rent_exempt"`
}

// DefaultParams mirrors mainnet values.
func DefaultParams() Params {
	return Params{
		MinDelegation:   LamportsPerSOL,
		StakeRentExempt: 2_282_880,
	}
}

// MinimumDelegation is the effective floor for new delegations.
func (p Params) MinimumDelegation() uint64 {
	return max(p.MinDelegation, LamportsPerSOL)
}

// SeedLamports is what a reserve's owner funds at creation.
func (p Params) SeedLamports() (uint64, error) {
	return checkedAdd(p.StakeRentExempt, p.MinimumDelegation())
}

// Validate ensures the parameters are usable.
func (p Params) Validate() error {
	if _, err := p.SeedLamports(); err != nil {
		return fmt.Errorf("lending params: seed lamports overflow")
	}
	return nil
}
