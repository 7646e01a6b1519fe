package lending

import (
	"github.com/holiman/uint256"

	"github.com/palindrome-eng/srl-program/crypto"
)

// DepositToShares converts an underlying amount into pool shares at the
// current ratio. An empty pool seeds shares 1:1.
func DepositToShares(amount, totalUnderlying, totalShares uint64) (uint64, error) {
	if totalUnderlying == 0 || totalShares == 0 {
		return amount, nil
	}
	return MulDiv(amount, totalShares, totalUnderlying)
}

// SharesToUnderlying converts shares back into the underlying asset. Amounts
// that would round below one unit return zero.
func SharesToUnderlying(shares, totalUnderlying, totalShares uint64) (uint64, error) {
	if totalUnderlying == 0 || totalShares == 0 {
		return 0, nil
	}
	var numerator uint256.Int
	numerator.Mul(uint256.NewInt(shares), uint256.NewInt(totalUnderlying))
	if numerator.Lt(uint256.NewInt(totalShares)) {
		return 0, nil
	}
	return MulDiv(shares, totalUnderlying, totalShares)
}

// LiquidityPool accounts for the borrowable asset of a reserve.
type LiquidityPool struct {
	Mint        crypto.Pubkey
	Vault       crypto.Pubkey
	Available   uint64
	Borrowed    uint64
	TotalShares uint64
}

// TotalUnderlying is available plus borrowed.
func (p *LiquidityPool) TotalUnderlying() (uint64, error) {
	return checkedAdd(p.Available, p.Borrowed)
}

func (p *LiquidityPool) ToShares(amount uint64) (uint64, error) {
	total, err := p.TotalUnderlying()
	if err != nil {
		return 0, err
	}
	return DepositToShares(amount, total, p.TotalShares)
}

func (p *LiquidityPool) ToUnderlying(shares uint64) (uint64, error) {
	total, err := p.TotalUnderlying()
	if err != nil {
		return 0, err
	}
	return SharesToUnderlying(shares, total, p.TotalShares)
}

func (p *LiquidityPool) Credit(amount uint64) error {
	next, err := checkedAdd(p.Available, amount)
	if err != nil {
		return err
	}
	p.Available = next
	return nil
}

// Debit fails with ErrInsufficientLiquidity when the pool holds less than
// amount.
func (p *LiquidityPool) Debit(amount uint64) error {
	if amount > p.Available {
		return ErrInsufficientLiquidity
	}
	p.Available -= amount
	return nil
}

func (p *LiquidityPool) MintShares(shares uint64) error {
	next, err := checkedAdd(p.TotalShares, shares)
	if err != nil {
		return err
	}
	p.TotalShares = next
	return nil
}

func (p *LiquidityPool) BurnShares(shares uint64) error {
	next, err := checkedSub(p.TotalShares, shares)
	if err != nil {
		return err
	}
	p.TotalShares = next
	return nil
}

// Borrow moves amount from available to borrowed.
func (p *LiquidityPool) Borrow(amount uint64) error {
	if amount > p.Available {
		return ErrInsufficientLiquidity
	}
	borrowed, err := checkedAdd(p.Borrowed, amount)
	if err != nil {
		return err
	}
	p.Available -= amount
	p.Borrowed = borrowed
	return nil
}

// Repay credits repay to available and settles settle of outstanding debt.
func (p *LiquidityPool) Repay(repay, settle uint64) error {
	borrowed, err := checkedSub(p.Borrowed, settle)
	if err != nil {
		return err
	}
	available, err := checkedAdd(p.Available, repay)
	if err != nil {
		return err
	}
	p.Borrowed = borrowed
	p.Available = available
	return nil
}

// Liquidate writes off borrowed liquidity that will not be repaid.
func (p *LiquidityPool) Liquidate(amount uint64) error {
	borrowed, err := checkedSub(p.Borrowed, amount)
	if err != nil {
		return err
	}
	p.Borrowed = borrowed
	return nil
}

// CollateralPool accounts for deposited stake. Shares are an internal
// weighting unit and do not circulate.
type CollateralPool struct {
	Mint         crypto.Pubkey
	StakeAccount crypto.Pubkey
	// Available is the raw collateral deposited by open positions.
	Available uint64
	// Claimable is collateral retained by the protocol that has not yet been
	// split off for deactivation.
	Claimable   uint64
	TotalShares uint64
	// Staked mirrors the delegated amount of the main stake account.
	Staked uint64
	// Seed is the protocol funded bootstrap delegation.
	Seed uint64
}

// TotalUnderlying values the pool at everything staked except the bootstrap
// seed and fees pending deactivation.
func (p *CollateralPool) TotalUnderlying() (uint64, error) {
	owned, err := checkedSub(p.Staked, p.Seed)
	if err != nil {
		return 0, err
	}
	return checkedSub(owned, p.Claimable)
}

func (p *CollateralPool) ToShares(amount uint64) (uint64, error) {
	total, err := p.TotalUnderlying()
	if err != nil {
		return 0, err
	}
	return DepositToShares(amount, total, p.TotalShares)
}

func (p *CollateralPool) ToUnderlying(shares uint64) (uint64, error) {
	total, err := p.TotalUnderlying()
	if err != nil {
		return 0, err
	}
	return SharesToUnderlying(shares, total, p.TotalShares)
}

// SharesFor returns the shares that must be surrendered to take amount out of
// the pool, rounded up.
func (p *CollateralPool) SharesFor(amount uint64) (uint64, error) {
	total, err := p.TotalUnderlying()
	if err != nil {
		return 0, err
	}
	if total == 0 || p.TotalShares == 0 {
		return amount, nil
	}
	return MulDivCeil(amount, p.TotalShares, total)
}

func (p *CollateralPool) Credit(amount uint64) error {
	next, err := checkedAdd(p.Available, amount)
	if err != nil {
		return err
	}
	p.Available = next
	return nil
}

func (p *CollateralPool) Debit(amount uint64) error {
	if amount > p.Available {
		return ErrInsufficientLiquidity
	}
	p.Available -= amount
	return nil
}

func (p *CollateralPool) MintShares(shares uint64) error {
	next, err := checkedAdd(p.TotalShares, shares)
	if err != nil {
		return err
	}
	p.TotalShares = next
	return nil
}

func (p *CollateralPool) BurnShares(shares uint64) error {
	next, err := checkedSub(p.TotalShares, shares)
	if err != nil {
		return err
	}
	p.TotalShares = next
	return nil
}

// Stake records stake merged into the main account.
func (p *CollateralPool) Stake(amount uint64) error {
	next, err := checkedAdd(p.Staked, amount)
	if err != nil {
		return err
	}
	p.Staked = next
	return nil
}

// Unstake records stake split out of the main account.
func (p *CollateralPool) Unstake(amount uint64) error {
	next, err := checkedSub(p.Staked, amount)
	if err != nil {
		return err
	}
	p.Staked = next
	return nil
}

// RepayOrLiquidate settles a resolved position: release leaves the pool,
// fee is retained for the protocol and the position's shares are burned.
func (p *CollateralPool) RepayOrLiquidate(release, fee, weighted uint64) error {
	if release > p.Available {
		return ErrInsufficientLiquidity
	}
	claimable, err := checkedAdd(p.Claimable, fee)
	if err != nil {
		return err
	}
	shares, err := checkedSub(p.TotalShares, weighted)
	if err != nil {
		return err
	}
	p.Available -= release
	p.Claimable = claimable
	p.TotalShares = shares
	return nil
}
