package lending

import (
	"strconv"

	"github.com/palindrome-eng/srl-program/core/types"
	"github.com/palindrome-eng/srl-program/crypto"
)

const (
	EventTypeMarketInitialized     = "lending.market.initialized"
	EventTypeMarketOwnerChanged    = "lending.market.owner_changed"
	EventTypeReserveInitialized    = "lending.reserve.initialized"
	EventTypeReserveRefreshed      = "lending.reserve.refreshed"
	EventTypeEpochReconciled       = "lending.epoch.reconciled"
	EventTypeObligationInitialized = "lending.obligation.initialized"
	EventTypeLiquidityDeposited    = "lending.liquidity.deposited"
	EventTypeLiquidityRedeemed     = "lending.liquidity.redeemed"
	EventTypePositionBorrowed      = "lending.position.borrowed"
	EventTypePositionRepaid        = "lending.position.repaid"
	EventTypePositionLiquidated    = "lending.position.liquidated"
	EventTypeCollateralWithdrawn   = "lending.collateral.withdrawn"
)

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

func NewMarketInitializedEvent(m *LendingMarket) *types.Event {
	return &types.Event{Type: EventTypeMarketInitialized, Attributes: map[string]string{
		"market": m.Key.String(),
		"owner":  m.Owner.String(),
	}}
}

func NewMarketOwnerChangedEvent(m *LendingMarket, previous crypto.Pubkey) *types.Event {
	return &types.Event{Type: EventTypeMarketOwnerChanged, Attributes: map[string]string{
		"market":   m.Key.String(),
		"previous": previous.String(),
		"owner":    m.Owner.String(),
	}}
}

func newReserveEvent(eventType string, r *Reserve) *types.Event {
	attrs := map[string]string{
		"market":              r.Market.String(),
		"validator":           r.Validator.String(),
		"reserve":             r.Key.String(),
		"epoch":               u64(r.LastEpoch),
		"slot":                u64(r.LastUpdate.Slot),
		"liquidityAvailable":  u64(r.Liquidity.Available),
		"liquidityBorrowed":   u64(r.Liquidity.Borrowed),
		"liquidityShares":     u64(r.Liquidity.TotalShares),
		"collateralAvailable": u64(r.Collateral.Available),
		"collateralClaimable": u64(r.Collateral.Claimable),
		"collateralShares":    u64(r.Collateral.TotalShares),
		"staked":              u64(r.Collateral.Staked),
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func NewReserveInitializedEvent(r *Reserve) *types.Event {
	return newReserveEvent(EventTypeReserveInitialized, r)
}

func NewReserveRefreshedEvent(r *Reserve) *types.Event {
	return newReserveEvent(EventTypeReserveRefreshed, r)
}

// NewEpochReconciledEvent summarises the transitions applied by one
// reconciliation pass.
func NewEpochReconciledEvent(r *Reserve, report ReconcileReport) *types.Event {
	evt := newReserveEvent(EventTypeEpochReconciled, r)
	evt.Attributes["epochsAdvanced"] = u64(report.EpochsAdvanced)
	evt.Attributes["activated"] = u64(report.Activated)
	evt.Attributes["merged"] = strconv.Itoa(len(report.Merged))
	evt.Attributes["withdrawn"] = strconv.Itoa(len(report.Withdrawn))
	evt.Attributes["swept"] = u64(report.Swept)
	evt.Attributes["deactivated"] = u64(report.Deactivated)
	return evt
}

func NewObligationInitializedEvent(o *Obligation) *types.Event {
	return &types.Event{Type: EventTypeObligationInitialized, Attributes: map[string]string{
		"market": o.Market.String(),
		"owner":  o.Owner.String(),
	}}
}

func newLiquidityEvent(eventType string, r *Reserve, owner crypto.Pubkey, amount, shares uint64) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"market":    r.Market.String(),
		"validator": r.Validator.String(),
		"owner":     owner.String(),
		"amount":    u64(amount),
		"shares":    u64(shares),
	}}
}

func NewLiquidityDepositedEvent(r *Reserve, owner crypto.Pubkey, amount, shares uint64) *types.Event {
	return newLiquidityEvent(EventTypeLiquidityDeposited, r, owner, amount, shares)
}

func NewLiquidityRedeemedEvent(r *Reserve, owner crypto.Pubkey, amount, shares uint64) *types.Event {
	return newLiquidityEvent(EventTypeLiquidityRedeemed, r, owner, amount, shares)
}

func newPositionEvent(eventType string, market, owner crypto.Pubkey, p Position) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"market":     market.String(),
		"owner":      owner.String(),
		"validator":  p.Validator.String(),
		"loanType":   p.LoanType.Kind.String(),
		"startEpoch": u64(p.LoanType.StartEpoch),
		"deposited":  u64(p.Deposited),
		"weighted":   u64(p.Weighted),
		"borrowed":   u64(p.Borrowed),
	}}
}

func NewPositionBorrowedEvent(market, owner crypto.Pubkey, p Position, collateral, borrowed uint64) *types.Event {
	evt := newPositionEvent(EventTypePositionBorrowed, market, owner, p)
	evt.Attributes["collateralAdded"] = u64(collateral)
	evt.Attributes["borrowAdded"] = u64(borrowed)
	return evt
}

func NewPositionRepaidEvent(market, owner crypto.Pubkey, p Position, s Settlement) *types.Event {
	evt := newPositionEvent(EventTypePositionRepaid, market, owner, p)
	evt.Attributes["value"] = u64(s.Value)
	evt.Attributes["fee"] = u64(s.Fee)
	evt.Attributes["payout"] = u64(s.Payout)
	return evt
}

func NewPositionLiquidatedEvent(market, owner crypto.Pubkey, p Position) *types.Event {
	return newPositionEvent(EventTypePositionLiquidated, market, owner, p)
}

func NewCollateralWithdrawnEvent(market, owner crypto.Pubkey, p Position, amount, shares uint64) *types.Event {
	evt := newPositionEvent(EventTypeCollateralWithdrawn, market, owner, p)
	evt.Attributes["amount"] = u64(amount)
	evt.Attributes["shares"] = u64(shares)
	return evt
}
