package lending

import (
	"encoding/binary"

	"github.com/palindrome-eng/srl-program/crypto"
)

const (
	ProgramVersion       uint8 = 1
	UninitializedVersion uint8 = 0
)

// Seeds used to derive program owned addresses.
var (
	seedLendingMarket     = []byte("lending_market")
	seedAuthority         = []byte("authority")
	seedReserve           = []byte("reserve")
	seedLiquidityVault    = []byte("liquidity_vault")
	seedLiquidityMint     = []byte("liquidity_mint")
	seedCollateralMint    = []byte("collateral_mint")
	seedStake             = []byte("stake")
	seedActivatingStake   = []byte("activating_stake")
	seedDeactivatingStake = []byte("deactivating_stake")
)

// LendingMarket groups reserves under a single owner.
type LendingMarket struct {
	Key       crypto.Pubkey
	Owner     crypto.Pubkey
	Authority crypto.Pubkey
	Version   uint8
}

// MarketAddress derives the market owned by owner.
func MarketAddress(owner crypto.Pubkey) crypto.Pubkey {
	return crypto.Derive(seedLendingMarket, owner[:])
}

// NewLendingMarket initialises a market for owner.
func NewLendingMarket(owner crypto.Pubkey) *LendingMarket {
	key := MarketAddress(owner)
	return &LendingMarket{
		Key:       key,
		Owner:     owner,
		Authority: crypto.Derive(seedAuthority, key[:]),
		Version:   ProgramVersion,
	}
}

// Clone returns a copy of the market.
func (m *LendingMarket) Clone() *LendingMarket {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}

// SetOwner transfers ownership when signer is the current owner.
func (m *LendingMarket) SetOwner(signer, owner crypto.Pubkey) error {
	if signer != m.Owner {
		return ErrOwnerMismatch
	}
	m.Owner = owner
	return nil
}

// ReserveAddress derives the identifier of the reserve backing validator.
func ReserveAddress(market, validator crypto.Pubkey) crypto.Pubkey {
	return crypto.Derive(seedReserve, market[:], validator[:])
}

func trancheAddress(reserve crypto.Pubkey, kind TrancheKind, epoch uint64) crypto.Pubkey {
	seed := seedActivatingStake
	if kind == TrancheDeactivating {
		seed = seedDeactivatingStake
	}
	return crypto.Derive(seed, reserve[:], binary.BigEndian.AppendUint64(nil, epoch))
}
