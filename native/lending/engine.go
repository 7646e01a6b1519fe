package lending

import (
	"errors"
	"fmt"

	"github.com/palindrome-eng/srl-program/core/epoch"
	"github.com/palindrome-eng/srl-program/core/events"
	"github.com/palindrome-eng/srl-program/core/types"
	"github.com/palindrome-eng/srl-program/crypto"
	nativecommon "github.com/palindrome-eng/srl-program/native/common"
	"github.com/palindrome-eng/srl-program/native/stake"
	"github.com/palindrome-eng/srl-program/observability/metrics"
)

const moduleName = "lending"

type engineState interface {
	GetMarket(key crypto.Pubkey) (*LendingMarket, error)
	PutMarket(market *LendingMarket) error
	CreateMarket(market *LendingMarket) error
	GetReserve(market, validator crypto.Pubkey) (*Reserve, error)
	PutReserve(reserve *Reserve) error
	CreateReserve(reserve *Reserve) error
	ListReserves(market crypto.Pubkey) ([]*Reserve, error)
	GetObligation(owner crypto.Pubkey) (*Obligation, error)
	PutObligation(obligation *Obligation) error
	CreateObligation(obligation *Obligation) error
	GetTranches(reserve crypto.Pubkey) (*Tranches, error)
	PutTranches(tranches *Tranches) error
}

// TokenProgram moves native lamports and issues liquidity tokens.
type TokenProgram interface {
	Transfer(from, to crypto.Pubkey, amount uint64) error
	MintTo(mint, to crypto.Pubkey, amount uint64) error
	Burn(mint, from crypto.Pubkey, amount uint64) error
}

type lendingEvent struct {
	evt *types.Event
}

func (e lendingEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e lendingEvent) Event() *types.Event { return e.evt }

// Engine executes lending instructions. Each handler loads state, works on
// clones and persists only after every check and collaborator call has
// succeeded.
type Engine struct {
	state     engineState
	stake     StakeProgram
	tokens    TokenProgram
	clock     epoch.Clock
	params    Params
	pauses    nativecommon.PauseView
	emitter   events.Emitter
	telemetry *metrics.LendingMetrics
}

// NewEngine constructs an engine with the host staking parameters.
func NewEngine(params Params) *Engine {
	return &Engine{
		params:    params,
		emitter:   events.NoopEmitter{},
		telemetry: metrics.Lending(),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetStakeProgram(program StakeProgram) {
	if e == nil {
		return
	}
	e.stake = program
}

func (e *Engine) SetTokenProgram(program TokenProgram) {
	if e == nil {
		return
	}
	e.tokens = program
}

func (e *Engine) SetClock(clock epoch.Clock) {
	if e == nil {
		return
	}
	e.clock = clock
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter. Passing nil discards events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Params returns the staking parameters in use.
func (e *Engine) Params() Params { return e.params }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(lendingEvent{evt: evt})
}

func (e *Engine) observe(op string, err *error) {
	if e == nil || e.telemetry == nil {
		return
	}
	e.telemetry.ObserveOperation(op, outcome(*err))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrReserveStale):
		return "stale"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return "paused"
	case errors.Is(err, ErrMathOverflow), errors.Is(err, ErrDivideByZero):
		return "arithmetic"
	default:
		return "rejected"
	}
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.stake == nil || e.tokens == nil || e.clock == nil {
		return ErrNilState
	}
	return nil
}

func (e *Engine) mutable() error {
	if err := e.ready(); err != nil {
		return err
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

func (e *Engine) loadMarket(key crypto.Pubkey) (*LendingMarket, error) {
	market, err := e.state.GetMarket(key)
	if err != nil {
		return nil, err
	}
	if market == nil || market.Version == UninitializedVersion {
		return nil, ErrMarketNotFound
	}
	return market.Clone(), nil
}

func (e *Engine) loadReserve(market, validator crypto.Pubkey) (*Reserve, error) {
	reserve, err := e.state.GetReserve(market, validator)
	if err != nil {
		return nil, err
	}
	if reserve == nil || reserve.Market != market {
		return nil, ErrInvalidReserveAccount
	}
	return reserve.Clone(), nil
}

func (e *Engine) loadObligation(owner crypto.Pubkey) (*Obligation, error) {
	obligation, err := e.state.GetObligation(owner)
	if err != nil {
		return nil, err
	}
	if obligation == nil {
		return nil, ErrObligationNotFound
	}
	return obligation.Clone(), nil
}

func (e *Engine) loadTranches(reserve crypto.Pubkey) (*Tranches, error) {
	tranches, err := e.state.GetTranches(reserve)
	if err != nil {
		return nil, err
	}
	if tranches == nil {
		return NewTranches(reserve), nil
	}
	return tranches.Clone(), nil
}

// InitLendingMarket creates the market owned by owner.
func (e *Engine) InitLendingMarket(owner crypto.Pubkey) (market *LendingMarket, err error) {
	defer e.observe("init_lending_market", &err)
	if err := e.mutable(); err != nil {
		return nil, err
	}
	market = NewLendingMarket(owner)
	if err := e.state.CreateMarket(market); err != nil {
		return nil, err
	}
	e.emit(NewMarketInitializedEvent(market))
	return market.Clone(), nil
}

// SetLendingMarketOwner hands the market to newOwner.
func (e *Engine) SetLendingMarketOwner(marketKey, signer, newOwner crypto.Pubkey) (err error) {
	defer e.observe("set_lending_market_owner", &err)
	if err := e.mutable(); err != nil {
		return err
	}
	market, err := e.loadMarket(marketKey)
	if err != nil {
		return err
	}
	previous := market.Owner
	if err := market.SetOwner(signer, newOwner); err != nil {
		return err
	}
	if err := e.state.PutMarket(market); err != nil {
		return err
	}
	e.emit(NewMarketOwnerChangedEvent(market, previous))
	return nil
}

// InitReserve opens a reserve for validator. The market owner funds the
// reserve's stake account with the bootstrap delegation.
func (e *Engine) InitReserve(marketKey, signer, validator crypto.Pubkey) (reserve *Reserve, err error) {
	defer e.observe("init_reserve", &err)
	if err := e.mutable(); err != nil {
		return nil, err
	}
	market, err := e.loadMarket(marketKey)
	if err != nil {
		return nil, err
	}
	if signer != market.Owner {
		return nil, ErrOwnerMismatch
	}
	existing, err := e.state.GetReserve(market.Key, validator)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrReserveExists
	}
	seed, err := e.params.SeedLamports()
	if err != nil {
		return nil, err
	}

	reserve = NewReserve(market.Key, validator, e.clock.Slot(), e.clock.Epoch())
	account := reserve.Collateral.StakeAccount
	if err := e.stake.Initialize(account, market.Authority); err != nil {
		return nil, fmt.Errorf("initialize reserve stake: %w", err)
	}
	if err := e.tokens.Transfer(signer, account, seed); err != nil {
		return nil, fmt.Errorf("fund reserve stake: %w", err)
	}
	if err := e.stake.Delegate(account, market.Authority, validator); err != nil {
		return nil, fmt.Errorf("delegate reserve stake: %w", err)
	}
	delegated, err := e.stake.DelegatedAmount(account)
	if err != nil {
		return nil, fmt.Errorf("query delegated stake: %w", err)
	}
	reserve.Collateral.Seed = delegated
	reserve.Collateral.Staked = delegated

	if err := e.state.CreateReserve(reserve); err != nil {
		return nil, err
	}
	if err := e.state.PutTranches(NewTranches(reserve.Key)); err != nil {
		return nil, err
	}
	e.emit(NewReserveInitializedEvent(reserve))
	e.telemetry.SetReserve(reserve.Key.String(), reserveGauges(reserve))
	return reserve.Clone(), nil
}

// InitObligation opens the borrower account for owner.
func (e *Engine) InitObligation(marketKey, owner crypto.Pubkey) (obligation *Obligation, err error) {
	defer e.observe("init_obligation", &err)
	if err := e.mutable(); err != nil {
		return nil, err
	}
	if _, err := e.loadMarket(marketKey); err != nil {
		return nil, err
	}
	obligation = NewObligation(owner, marketKey)
	if err := e.state.CreateObligation(obligation); err != nil {
		return nil, err
	}
	e.emit(NewObligationInitializedEvent(obligation))
	return obligation.Clone(), nil
}

// syncStake reads the main stake account so collateral valuation includes
// rewards earned since the last refresh.
func (e *Engine) syncStake(reserve *Reserve) error {
	delegated, err := e.stake.DelegatedAmount(reserve.Collateral.StakeAccount)
	if err != nil {
		return fmt.Errorf("query delegated stake: %w", err)
	}
	reserve.Collateral.Staked = delegated
	return nil
}

// RefreshReserve marks the reserve fresh for the current slot.
func (e *Engine) RefreshReserve(marketKey, validator crypto.Pubkey) (reserve *Reserve, err error) {
	defer e.observe("refresh_reserve", &err)
	if err := e.ready(); err != nil {
		return nil, err
	}
	reserve, err = e.loadReserve(marketKey, validator)
	if err != nil {
		return nil, err
	}
	if _, err := reserve.LastUpdate.SlotsElapsed(e.clock.Slot()); err != nil {
		return nil, err
	}
	if err := e.syncStake(reserve); err != nil {
		return nil, err
	}
	reserve.LastUpdate.UpdateSlot(e.clock.Slot())
	if err := e.state.PutReserve(reserve); err != nil {
		return nil, err
	}
	e.emit(NewReserveRefreshedEvent(reserve))
	e.telemetry.SetReserve(reserve.Key.String(), reserveGauges(reserve))
	return reserve.Clone(), nil
}

// RefreshEpoch refreshes the reserve and reconciles its stake tranches if an
// epoch boundary has passed since the last call.
func (e *Engine) RefreshEpoch(marketKey, validator crypto.Pubkey) (report ReconcileReport, err error) {
	defer e.observe("refresh_epoch", &err)
	if err := e.ready(); err != nil {
		return report, err
	}
	market, err := e.loadMarket(marketKey)
	if err != nil {
		return report, err
	}
	reserve, err := e.loadReserve(market.Key, validator)
	if err != nil {
		return report, err
	}
	slot := e.clock.Slot()
	if _, err := reserve.LastUpdate.SlotsElapsed(slot); err != nil {
		return report, err
	}
	tranches, err := e.loadTranches(reserve.Key)
	if err != nil {
		return report, err
	}
	if err := e.syncStake(reserve); err != nil {
		return report, err
	}
	report, err = NewReconciler(e.stake, e.params).Reconcile(reserve, tranches, market.Authority, e.clock.Epoch())
	if err != nil {
		return report, err
	}
	reserve.LastUpdate.UpdateSlot(slot)
	if err := e.state.PutTranches(tranches); err != nil {
		return report, err
	}
	if err := e.state.PutReserve(reserve); err != nil {
		return report, err
	}
	e.emit(NewReserveRefreshedEvent(reserve))
	if !report.Noop() {
		e.emit(NewEpochReconciledEvent(reserve, report))
		e.telemetry.ObserveReconcile(len(report.Merged), len(report.Withdrawn), report.Activated > 0, report.Deactivated > 0)
	}
	e.telemetry.SetReserve(reserve.Key.String(), reserveGauges(reserve))
	return report, nil
}

// DepositLiquidity supplies lamports to the reserve in exchange for liquidity
// tokens.
func (e *Engine) DepositLiquidity(marketKey, validator, owner crypto.Pubkey, amount uint64) (shares uint64, err error) {
	defer e.observe("deposit_liquidity", &err)
	if err := e.mutable(); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	reserve, err := e.loadReserve(marketKey, validator)
	if err != nil {
		return 0, err
	}
	if err := reserve.RequireFresh(e.clock.Slot()); err != nil {
		return 0, err
	}
	shares, err = reserve.DepositLiquidity(amount)
	if err != nil {
		return 0, err
	}
	if shares == 0 {
		return 0, ErrInvalidAmount
	}
	if err := e.tokens.Transfer(owner, reserve.Liquidity.Vault, amount); err != nil {
		return 0, fmt.Errorf("transfer liquidity: %w", err)
	}
	if err := e.tokens.MintTo(reserve.Liquidity.Mint, owner, shares); err != nil {
		return 0, fmt.Errorf("mint liquidity tokens: %w", err)
	}
	reserve.LastUpdate.MarkStale()
	if err := e.state.PutReserve(reserve); err != nil {
		return 0, err
	}
	e.emit(NewLiquidityDepositedEvent(reserve, owner, amount, shares))
	e.telemetry.SetReserve(reserve.Key.String(), reserveGauges(reserve))
	return shares, nil
}

// RedeemLiquidity burns liquidity tokens for the lamports they are worth.
func (e *Engine) RedeemLiquidity(marketKey, validator, owner crypto.Pubkey, shares uint64) (amount uint64, err error) {
	defer e.observe("redeem_liquidity", &err)
	if err := e.mutable(); err != nil {
		return 0, err
	}
	if shares == 0 {
		return 0, ErrInvalidAmount
	}
	reserve, err := e.loadReserve(marketKey, validator)
	if err != nil {
		return 0, err
	}
	if err := reserve.RequireFresh(e.clock.Slot()); err != nil {
		return 0, err
	}
	amount, err = reserve.RedeemLiquidity(shares)
	if err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	if err := e.tokens.Burn(reserve.Liquidity.Mint, owner, shares); err != nil {
		return 0, fmt.Errorf("burn liquidity tokens: %w", err)
	}
	if err := e.tokens.Transfer(reserve.Liquidity.Vault, owner, amount); err != nil {
		return 0, fmt.Errorf("transfer liquidity: %w", err)
	}
	reserve.LastUpdate.MarkStale()
	if err := e.state.PutReserve(reserve); err != nil {
		return 0, err
	}
	e.emit(NewLiquidityRedeemedEvent(reserve, owner, amount, shares))
	e.telemetry.SetReserve(reserve.Key.String(), reserveGauges(reserve))
	return amount, nil
}

// BorrowArgs describes a borrow instruction.
type BorrowArgs struct {
	LoanType         uint8
	CollateralAmount uint64
	BorrowAmount     uint64
	// StakeAccount is the borrower's active stake delegated to the reserve's
	// validator.
	StakeAccount crypto.Pubkey
	// SplitAccount receives any stake above CollateralAmount. Required when
	// the stake account holds more than the collateral.
	SplitAccount crypto.Pubkey
}

// Borrow pledges stake as collateral and borrows liquidity against it.
func (e *Engine) Borrow(marketKey, validator, owner crypto.Pubkey, args BorrowArgs) (position Position, err error) {
	defer e.observe("borrow", &err)
	if err := e.mutable(); err != nil {
		return Position{}, err
	}
	if args.CollateralAmount == 0 {
		return Position{}, ErrInvalidAmount
	}
	loanType, err := ParseLoanType(args.LoanType, e.clock.Epoch())
	if err != nil {
		return Position{}, err
	}
	market, err := e.loadMarket(marketKey)
	if err != nil {
		return Position{}, err
	}
	reserve, err := e.loadReserve(market.Key, validator)
	if err != nil {
		return Position{}, err
	}
	if err := reserve.RequireFresh(e.clock.Slot()); err != nil {
		return Position{}, err
	}
	obligation, err := e.loadObligation(owner)
	if err != nil {
		return Position{}, err
	}
	if obligation.Market != reserve.Market {
		return Position{}, ErrLendingMarketMismatch
	}

	weighted, err := reserve.DepositCollateral(args.CollateralAmount)
	if err != nil {
		return Position{}, err
	}
	if err := obligation.OpenOrIncrease(validator, loanType, args.CollateralAmount, weighted, args.BorrowAmount); err != nil {
		return Position{}, err
	}
	if args.BorrowAmount > 0 {
		if err := reserve.Liquidity.Borrow(args.BorrowAmount); err != nil {
			return Position{}, err
		}
	}
	excess, err := e.checkBorrowStake(reserve, args)
	if err != nil {
		return Position{}, err
	}

	if excess > 0 {
		if err := e.stake.Split(args.StakeAccount, owner, args.SplitAccount, excess); err != nil {
			return Position{}, fmt.Errorf("split excess stake: %w", err)
		}
	}
	remaining, err := e.stake.DelegatedAmount(args.StakeAccount)
	if err != nil {
		return Position{}, fmt.Errorf("query delegated stake: %w", err)
	}
	if remaining != args.CollateralAmount {
		return Position{}, ErrInvalidStakeAmount
	}
	if err := e.stake.Authorize(args.StakeAccount, owner, market.Authority); err != nil {
		return Position{}, fmt.Errorf("authorize collateral stake: %w", err)
	}
	if err := e.stake.Merge(reserve.Collateral.StakeAccount, args.StakeAccount, market.Authority); err != nil {
		return Position{}, fmt.Errorf("merge collateral stake: %w", err)
	}
	if err := reserve.Collateral.Stake(args.CollateralAmount); err != nil {
		return Position{}, err
	}
	if args.BorrowAmount > 0 {
		if err := e.tokens.Transfer(reserve.Liquidity.Vault, owner, args.BorrowAmount); err != nil {
			return Position{}, fmt.Errorf("transfer borrowed liquidity: %w", err)
		}
	}

	reserve.LastUpdate.MarkStale()
	if err := e.state.PutReserve(reserve); err != nil {
		return Position{}, err
	}
	if err := e.state.PutObligation(obligation); err != nil {
		return Position{}, err
	}
	current, err := obligation.Find(validator)
	if err != nil {
		return Position{}, err
	}
	e.emit(NewPositionBorrowedEvent(market.Key, owner, *current, args.CollateralAmount, args.BorrowAmount))
	e.telemetry.SetReserve(reserve.Key.String(), reserveGauges(reserve))
	return *current, nil
}

// checkBorrowStake validates the pledged stake account and returns how much
// must be split off before it is merged.
func (e *Engine) checkBorrowStake(reserve *Reserve, args BorrowArgs) (uint64, error) {
	state, err := e.stake.State(args.StakeAccount)
	if err != nil {
		return 0, fmt.Errorf("query stake state: %w", err)
	}
	if state != stake.StateActive {
		return 0, ErrWrongStakeState
	}
	voter, err := e.stake.Voter(args.StakeAccount)
	if err != nil {
		return 0, fmt.Errorf("query stake voter: %w", err)
	}
	if voter != reserve.Validator {
		return 0, ErrWrongStakeState
	}
	delegated, err := e.stake.DelegatedAmount(args.StakeAccount)
	if err != nil {
		return 0, fmt.Errorf("query delegated stake: %w", err)
	}
	if delegated < args.CollateralAmount {
		return 0, ErrInsufficientCollateral
	}
	excess := delegated - args.CollateralAmount
	if excess > 0 && args.SplitAccount.IsZero() {
		return 0, ErrWrongRemainingAccountSchema
	}
	return excess, nil
}

// RepayArgs describes a repay instruction.
type RepayArgs struct {
	// Destination receives the returned stake. Required unless the position
	// turns out to be liquidatable.
	Destination crypto.Pubkey
}

// RepayResult reports how a position was resolved.
type RepayResult struct {
	Position   Position
	Liquidated bool
	Settlement Settlement
}

// Repay resolves the borrower's position against validator. A healthy
// position repays its debt and receives its stake back less fees; one that
// has decayed past its debt is liquidated instead.
func (e *Engine) Repay(marketKey, validator, owner crypto.Pubkey, args RepayArgs) (result RepayResult, err error) {
	defer e.observe("repay", &err)
	if err := e.mutable(); err != nil {
		return result, err
	}
	market, err := e.loadMarket(marketKey)
	if err != nil {
		return result, err
	}
	reserve, err := e.loadReserve(market.Key, validator)
	if err != nil {
		return result, err
	}
	if err := reserve.RequireFresh(e.clock.Slot()); err != nil {
		return result, err
	}
	obligation, err := e.loadObligation(owner)
	if err != nil {
		return result, err
	}
	if obligation.Market != reserve.Market {
		return result, ErrLendingMarketMismatch
	}
	res, err := obligation.Resolve(validator, e.clock.Epoch())
	if err != nil {
		return result, err
	}
	result.Position = res.Position

	if res.Liquidatable {
		if err := reserve.SettleLiquidation(res); err != nil {
			return result, err
		}
		result.Liquidated = true
	} else {
		if args.Destination.IsZero() {
			return result, ErrWrongRemainingAccountSchema
		}
		settlement, err := reserve.RepaymentFee(res)
		if err != nil {
			return result, err
		}
		if err := reserve.SettleRepayment(res, settlement); err != nil {
			return result, err
		}
		if res.Position.Borrowed > 0 {
			if err := e.tokens.Transfer(owner, reserve.Liquidity.Vault, res.Position.Borrowed); err != nil {
				return result, fmt.Errorf("transfer repayment: %w", err)
			}
		}
		if settlement.Payout > 0 {
			if err := e.stake.Split(reserve.Collateral.StakeAccount, market.Authority, args.Destination, settlement.Payout); err != nil {
				return result, fmt.Errorf("split returned stake: %w", err)
			}
			if err := e.stake.Authorize(args.Destination, market.Authority, owner); err != nil {
				return result, fmt.Errorf("authorize returned stake: %w", err)
			}
		}
		result.Settlement = settlement
	}

	reserve.LastUpdate.MarkStale()
	if err := e.state.PutReserve(reserve); err != nil {
		return result, err
	}
	if err := e.state.PutObligation(obligation); err != nil {
		return result, err
	}
	if result.Liquidated {
		e.emit(NewPositionLiquidatedEvent(market.Key, owner, res.Position))
	} else {
		e.emit(NewPositionRepaidEvent(market.Key, owner, res.Position, result.Settlement))
	}
	e.telemetry.SetReserve(reserve.Key.String(), reserveGauges(reserve))
	return result, nil
}

// Liquidate resolves every position of the obligation. validators must list
// the reserve of each position, and every position must be liquidatable.
func (e *Engine) Liquidate(marketKey, owner crypto.Pubkey, validators []crypto.Pubkey) (liquidated []Position, err error) {
	defer e.observe("liquidate", &err)
	if err := e.mutable(); err != nil {
		return nil, err
	}
	market, err := e.loadMarket(marketKey)
	if err != nil {
		return nil, err
	}
	obligation, err := e.loadObligation(owner)
	if err != nil {
		return nil, err
	}
	if obligation.Market != market.Key {
		return nil, ErrLendingMarketMismatch
	}
	if len(validators) != len(obligation.Positions) {
		return nil, ErrWrongRemainingAccountSchema
	}
	if len(validators) == 0 {
		return nil, ErrObligationPositionEmpty
	}

	slot, current := e.clock.Slot(), e.clock.Epoch()
	reserves := make([]*Reserve, 0, len(validators))
	for _, validator := range validators {
		reserve, err := e.loadReserve(market.Key, validator)
		if err != nil {
			return nil, err
		}
		if err := reserve.RequireFresh(slot); err != nil {
			return nil, err
		}
		res, err := obligation.Resolve(validator, current)
		if err != nil {
			return nil, err
		}
		if !res.Liquidatable {
			return nil, ErrNotLiquidatable
		}
		if err := reserve.SettleLiquidation(res); err != nil {
			return nil, err
		}
		reserve.LastUpdate.MarkStale()
		reserves = append(reserves, reserve)
		liquidated = append(liquidated, res.Position)
	}

	for _, reserve := range reserves {
		if err := e.state.PutReserve(reserve); err != nil {
			return nil, err
		}
	}
	if err := e.state.PutObligation(obligation); err != nil {
		return nil, err
	}
	for i, position := range liquidated {
		e.emit(NewPositionLiquidatedEvent(market.Key, owner, position))
		e.telemetry.SetReserve(reserves[i].Key.String(), reserveGauges(reserves[i]))
	}
	return liquidated, nil
}

// WithdrawCollateral returns part of a position's stake to destination as
// long as the remaining collateral still supports the debt.
func (e *Engine) WithdrawCollateral(marketKey, validator, owner crypto.Pubkey, amount uint64, destination crypto.Pubkey) (position Position, err error) {
	defer e.observe("withdraw_collateral", &err)
	if err := e.mutable(); err != nil {
		return Position{}, err
	}
	if amount == 0 {
		return Position{}, ErrInvalidAmount
	}
	if destination.IsZero() {
		return Position{}, ErrWrongRemainingAccountSchema
	}
	market, err := e.loadMarket(marketKey)
	if err != nil {
		return Position{}, err
	}
	reserve, err := e.loadReserve(market.Key, validator)
	if err != nil {
		return Position{}, err
	}
	if err := reserve.RequireFresh(e.clock.Slot()); err != nil {
		return Position{}, err
	}
	obligation, err := e.loadObligation(owner)
	if err != nil {
		return Position{}, err
	}
	if obligation.Market != reserve.Market {
		return Position{}, ErrLendingMarketMismatch
	}
	current, err := obligation.Find(validator)
	if err != nil {
		return Position{}, err
	}
	shares := current.Weighted
	if amount < current.Deposited {
		if shares, err = reserve.Collateral.SharesFor(amount); err != nil {
			return Position{}, err
		}
	}
	if err := current.WithdrawCollateral(amount, shares); err != nil {
		return Position{}, err
	}
	position = *current
	if err := reserve.ReleaseCollateral(amount, shares); err != nil {
		return Position{}, err
	}
	if position.Deposited == 0 {
		if _, err := obligation.Resolve(validator, e.clock.Epoch()); err != nil {
			return Position{}, err
		}
	}
	if err := e.stake.Split(reserve.Collateral.StakeAccount, market.Authority, destination, amount); err != nil {
		return Position{}, fmt.Errorf("split withdrawn stake: %w", err)
	}
	if err := e.stake.Authorize(destination, market.Authority, owner); err != nil {
		return Position{}, fmt.Errorf("authorize withdrawn stake: %w", err)
	}

	reserve.LastUpdate.MarkStale()
	if err := e.state.PutReserve(reserve); err != nil {
		return Position{}, err
	}
	if err := e.state.PutObligation(obligation); err != nil {
		return Position{}, err
	}
	e.emit(NewCollateralWithdrawnEvent(market.Key, owner, position, amount, shares))
	e.telemetry.SetReserve(reserve.Key.String(), reserveGauges(reserve))
	return position, nil
}

// Market returns the market stored under key.
func (e *Engine) Market(key crypto.Pubkey) (*LendingMarket, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.loadMarket(key)
}

// Reserve returns the reserve backing validator in market.
func (e *Engine) Reserve(market, validator crypto.Pubkey) (*Reserve, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.loadReserve(market, validator)
}

// Reserves lists the reserves of market.
func (e *Engine) Reserves(market crypto.Pubkey) ([]*Reserve, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.ListReserves(market)
}

// Obligation returns the obligation owned by owner.
func (e *Engine) Obligation(owner crypto.Pubkey) (*Obligation, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.loadObligation(owner)
}

// Tranches returns the in-flight stake tranches of a reserve.
func (e *Engine) Tranches(reserve crypto.Pubkey) (*Tranches, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.loadTranches(reserve)
}

func reserveGauges(r *Reserve) metrics.ReserveBalances {
	return metrics.ReserveBalances{
		LiquidityAvailable:  r.Liquidity.Available,
		LiquidityBorrowed:   r.Liquidity.Borrowed,
		CollateralAvailable: r.Collateral.Available,
		CollateralClaimable: r.Collateral.Claimable,
		Staked:              r.Collateral.Staked,
	}
}
