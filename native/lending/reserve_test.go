package lending

import (
	"errors"
	"testing"

	"github.com/palindrome-eng/srl-program/crypto"
)

func fundedReserve() *Reserve {
	reserve := NewReserve(crypto.Pubkey{1}, testValidator, 0, 0)
	reserve.Liquidity.Available = 800
	reserve.Liquidity.Borrowed = 200
	reserve.Liquidity.TotalShares = 1_000
	reserve.Collateral.Available = 400
	reserve.Collateral.TotalShares = 400
	reserve.Collateral.Seed = 100
	reserve.Collateral.Staked = 600
	return reserve
}

func resolved(deposited, weighted, borrowed, collectible uint64) Resolution {
	return Resolution{
		Position: Position{
			Validator: testValidator,
			LoanType:  shortLoan(0),
			Deposited: deposited,
			Weighted:  weighted,
			Borrowed:  borrowed,
		},
		Health: Health{Collectible: collectible},
	}
}

func TestReserveFreshness(t *testing.T) {
	reserve := NewReserve(crypto.Pubkey{1}, testValidator, 5, 0)
	if err := reserve.RequireFresh(5); !errors.Is(err, ErrReserveStale) {
		t.Fatalf("new reserve must start stale, got %v", err)
	}
	reserve.LastUpdate.UpdateSlot(6)
	if err := reserve.RequireFresh(6); err != nil {
		t.Fatalf("refreshed reserve should be fresh: %v", err)
	}
	if err := reserve.RequireFresh(7); !errors.Is(err, ErrReserveStale) {
		t.Fatalf("expected stale one slot later, got %v", err)
	}
	reserve.LastUpdate.MarkStale()
	if err := reserve.RequireFresh(6); !errors.Is(err, ErrReserveStale) {
		t.Fatalf("expected stale after mutation, got %v", err)
	}
	if err := reserve.RequireFresh(4); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected clock regression to fail, got %v", err)
	}
}

func TestReserveLiquidityRoundTrip(t *testing.T) {
	reserve := NewReserve(crypto.Pubkey{1}, testValidator, 0, 0)
	shares, err := reserve.DepositLiquidity(1_000)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if shares != 1_000 {
		t.Fatalf("expected 1:1 shares, got %d", shares)
	}
	// Interest-free borrow and repay with a bonus leaves shares worth more.
	reserve.Liquidity.Available += 100
	amount, err := reserve.RedeemLiquidity(500)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if amount != 550 {
		t.Fatalf("expected 550, got %d", amount)
	}
	if reserve.Liquidity.TotalShares != 500 || reserve.Liquidity.Available != 550 {
		t.Fatalf("unexpected liquidity %+v", reserve.Liquidity)
	}
}

func TestReserveRedeemCollateral(t *testing.T) {
	reserve := fundedReserve()
	// 400 shares are backed by 500 underlying.
	amount, err := reserve.RedeemCollateral(200)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if amount != 250 {
		t.Fatalf("expected 250, got %d", amount)
	}
	if reserve.Collateral.Available != 150 || reserve.Collateral.TotalShares != 200 {
		t.Fatalf("unexpected collateral %+v", reserve.Collateral)
	}

	short := fundedReserve()
	short.Collateral.Available = 100
	before := *short
	if _, err := short.RedeemCollateral(200); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
	if *short != before {
		t.Fatalf("failed redemption must not mutate the reserve")
	}
}

func TestRepaymentFeeChargesYieldByUtilisation(t *testing.T) {
	reserve := fundedReserve()
	settlement, err := reserve.RepaymentFee(resolved(400, 400, 200, 400))
	if err != nil {
		t.Fatalf("fee: %v", err)
	}
	// Value 500, yield 100, borrowed at the SHORT limit: utilisation 1 keeps 1%.
	if settlement.Value != 500 || settlement.Fee != 1 || settlement.Payout != 499 {
		t.Fatalf("unexpected settlement %+v", settlement)
	}

	// Value 10_000 for the same shares, yield 9_600.
	reserve.Collateral.Staked = 10_100
	settlement, _ = reserve.RepaymentFee(resolved(400, 400, 200, 400))
	if settlement.Value != 10_000 || settlement.Fee != 96 || settlement.Payout != 9_904 {
		t.Fatalf("unexpected settlement at higher yield %+v", settlement)
	}

	// Half the limit floors utilisation to zero.
	settlement, _ = reserve.RepaymentFee(resolved(400, 400, 100, 400))
	if settlement.Fee != 0 || settlement.Payout != 10_000 {
		t.Fatalf("expected no yield skim below the limit, got %+v", settlement)
	}
}

func TestRepaymentFeeAddsLateShortfall(t *testing.T) {
	reserve := fundedReserve()
	settlement, err := reserve.RepaymentFee(resolved(400, 400, 200, 360))
	if err != nil {
		t.Fatalf("fee: %v", err)
	}
	// One lamport of yield skim plus the 40 lamport late shortfall.
	if settlement.Fee != 41 || settlement.Payout != 459 {
		t.Fatalf("unexpected settlement %+v", settlement)
	}
}

func TestRepaymentFeeCappedAtValue(t *testing.T) {
	reserve := fundedReserve()
	reserve.Collateral.Staked = 400
	settlement, err := reserve.RepaymentFee(resolved(400, 400, 10, 20))
	if err != nil {
		t.Fatalf("fee: %v", err)
	}
	if settlement.Value != 300 || settlement.Fee != 300 || settlement.Payout != 0 {
		t.Fatalf("expected fee capped at value, got %+v", settlement)
	}
}

func TestSettleRepayment(t *testing.T) {
	reserve := fundedReserve()
	res := resolved(400, 400, 200, 400)
	settlement, _ := reserve.RepaymentFee(res)
	if err := reserve.SettleRepayment(res, settlement); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if reserve.Collateral.Available != 0 || reserve.Collateral.TotalShares != 0 {
		t.Fatalf("position collateral should leave the pool: %+v", reserve.Collateral)
	}
	if reserve.Collateral.Claimable != 1 || reserve.Collateral.Staked != 101 {
		t.Fatalf("unexpected collateral %+v", reserve.Collateral)
	}
	if reserve.Liquidity.Available != 1_000 || reserve.Liquidity.Borrowed != 0 {
		t.Fatalf("unexpected liquidity %+v", reserve.Liquidity)
	}
}

func TestSettleLiquidation(t *testing.T) {
	reserve := fundedReserve()
	if err := reserve.SettleLiquidation(resolved(400, 400, 200, 200)); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if reserve.Collateral.Claimable != 400 || reserve.Collateral.Available != 0 {
		t.Fatalf("deposit should become claimable: %+v", reserve.Collateral)
	}
	if reserve.Liquidity.Borrowed != 0 || reserve.Liquidity.Available != 800 {
		t.Fatalf("debt should be written off: %+v", reserve.Liquidity)
	}

	failed := fundedReserve()
	before := *failed
	if err := failed.SettleLiquidation(resolved(500, 400, 200, 200)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
	if *failed != before {
		t.Fatalf("failed settlement must not mutate the reserve")
	}
}
