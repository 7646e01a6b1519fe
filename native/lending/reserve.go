package lending

import "github.com/palindrome-eng/srl-program/crypto"

// Reserve is the economic state of one validator's pool within a market.
type Reserve struct {
	Key        crypto.Pubkey
	Market     crypto.Pubkey
	Validator  crypto.Pubkey
	Version    uint8
	LastEpoch  uint64
	LastUpdate LastUpdate
	Liquidity  LiquidityPool
	Collateral CollateralPool
}

// NewReserve lays out a reserve with derived vault, mint and stake addresses.
// It starts stale.
func NewReserve(market, validator crypto.Pubkey, slot, epoch uint64) *Reserve {
	key := ReserveAddress(market, validator)
	return &Reserve{
		Key:        key,
		Market:     market,
		Validator:  validator,
		Version:    ProgramVersion,
		LastEpoch:  epoch,
		LastUpdate: NewLastUpdate(slot),
		Liquidity: LiquidityPool{
			Mint:  crypto.Derive(seedLiquidityMint, key[:]),
			Vault: crypto.Derive(seedLiquidityVault, key[:]),
		},
		Collateral: CollateralPool{
			Mint:         crypto.Derive(seedCollateralMint, key[:]),
			StakeAccount: crypto.Derive(seedStake, key[:]),
		},
	}
}

// Clone returns a copy of the reserve.
func (r *Reserve) Clone() *Reserve {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// RequireFresh fails with ErrReserveStale unless the reserve was refreshed in
// the current slot and not mutated since.
func (r *Reserve) RequireFresh(slot uint64) error {
	stale, err := r.LastUpdate.IsStale(slot)
	if err != nil {
		return err
	}
	if stale {
		return ErrReserveStale
	}
	return nil
}

// EpochElapsed is the number of epochs since the reserve was last reconciled.
func (r *Reserve) EpochElapsed(epoch uint64) (uint64, error) {
	return checkedSub(epoch, r.LastEpoch)
}

func (r *Reserve) UpdateEpoch(epoch uint64) {
	r.LastEpoch = epoch
}

// DepositLiquidity mints shares for amount at the current pool ratio.
func (r *Reserve) DepositLiquidity(amount uint64) (uint64, error) {
	shares, err := r.Liquidity.ToShares(amount)
	if err != nil {
		return 0, err
	}
	next := r.Liquidity
	if err := next.Credit(amount); err != nil {
		return 0, err
	}
	if err := next.MintShares(shares); err != nil {
		return 0, err
	}
	r.Liquidity = next
	return shares, nil
}

// RedeemLiquidity burns shares and releases the underlying they are worth.
func (r *Reserve) RedeemLiquidity(shares uint64) (uint64, error) {
	amount, err := r.Liquidity.ToUnderlying(shares)
	if err != nil {
		return 0, err
	}
	next := r.Liquidity
	if err := next.Debit(amount); err != nil {
		return 0, err
	}
	if err := next.BurnShares(shares); err != nil {
		return 0, err
	}
	r.Liquidity = next
	return amount, nil
}

// DepositCollateral records amount of stake and returns its weighted shares.
func (r *Reserve) DepositCollateral(amount uint64) (uint64, error) {
	weighted, err := r.Collateral.ToShares(amount)
	if err != nil {
		return 0, err
	}
	next := r.Collateral
	if err := next.Credit(amount); err != nil {
		return 0, err
	}
	if err := next.MintShares(weighted); err != nil {
		return 0, err
	}
	r.Collateral = next
	return weighted, nil
}

// RedeemCollateral burns weighted shares and releases the stake they are
// worth.
func (r *Reserve) RedeemCollateral(shares uint64) (uint64, error) {
	amount, err := r.Collateral.ToUnderlying(shares)
	if err != nil {
		return 0, err
	}
	next := r.Collateral
	if err := next.Debit(amount); err != nil {
		return 0, err
	}
	if err := next.BurnShares(shares); err != nil {
		return 0, err
	}
	r.Collateral = next
	return amount, nil
}

// ReleaseCollateral takes amount of raw collateral and its weighted shares out
// of the pool along with the stake backing it.
func (r *Reserve) ReleaseCollateral(amount, shares uint64) error {
	next := r.Collateral
	if err := next.Debit(amount); err != nil {
		return err
	}
	if err := next.BurnShares(shares); err != nil {
		return err
	}
	if err := next.Unstake(amount); err != nil {
		return err
	}
	r.Collateral = next
	return nil
}

// Settlement describes how a resolved position's collateral is split.
type Settlement struct {
	// Value is the current worth of the position's weighted shares.
	Value uint64
	// Fee is retained by the protocol.
	Fee uint64
	// Payout is returned to the borrower.
	Payout uint64
}

// RepaymentFee values a resolved, healthy position and computes the
// protocol's share: a cut of the staking yield scaled by leverage plus any
// late fee shortfall.
func (r *Reserve) RepaymentFee(res Resolution) (Settlement, error) {
	position := res.Position
	value, err := r.Collateral.ToUnderlying(position.Weighted)
	if err != nil {
		return Settlement{}, err
	}
	utilisation, err := position.LTVToMaxRatio()
	if err != nil {
		return Settlement{}, err
	}
	yield := saturatingSub(value, position.Deposited)
	fee, err := MulDiv(yield, utilisation, 100)
	if err != nil {
		return Settlement{}, err
	}
	if res.Collectible < position.Deposited {
		fee, err = checkedAdd(fee, position.Deposited-res.Collectible)
		if err != nil {
			return Settlement{}, err
		}
	}
	if fee > value {
		fee = value
	}
	return Settlement{Value: value, Fee: fee, Payout: value - fee}, nil
}

// SettleRepayment applies a healthy repayment: the position's collateral
// leaves the pool, the fee is retained and the payout is unstaked.
func (r *Reserve) SettleRepayment(res Resolution, settlement Settlement) error {
	next := *r
	if err := next.Collateral.RepayOrLiquidate(res.Position.Deposited, settlement.Fee, res.Position.Weighted); err != nil {
		return err
	}
	if err := next.Collateral.Unstake(settlement.Payout); err != nil {
		return err
	}
	if err := next.Liquidity.Repay(res.Position.Borrowed, res.Position.Borrowed); err != nil {
		return err
	}
	*r = next
	return nil
}

// SettleLiquidation seizes the whole deposit as fee and writes off the debt.
func (r *Reserve) SettleLiquidation(res Resolution) error {
	next := *r
	deposited := res.Position.Deposited
	if err := next.Collateral.RepayOrLiquidate(deposited, deposited, res.Position.Weighted); err != nil {
		return err
	}
	if err := next.Liquidity.Liquidate(res.Position.Borrowed); err != nil {
		return err
	}
	*r = next
	return nil
}
