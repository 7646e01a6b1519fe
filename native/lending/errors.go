package lending

import "errors"

// Arithmetic faults. These are returned as-is and never wrapped so callers can
// compare them directly.
var (
	ErrMathOverflow = errors.New("lending engine: math operation overflow")
	ErrDivideByZero = errors.New("lending engine: division by zero")
)

// Business-rule rejections.
var (
	ErrInsufficientLiquidity  = errors.New("lending engine: insufficient liquidity")
	ErrInsufficientCollateral = errors.New("lending engine: insufficient collateral")
	ErrLoanToValueTooHigh     = errors.New("lending engine: loan to value too high")
	ErrReserveStale           = errors.New("lending engine: reserve state needs to be refreshed")
	ErrLoanTypeMismatch       = errors.New("lending engine: loan type does not match position")
	ErrNotLiquidatable        = errors.New("lending engine: position is not liquidatable")
	ErrInvalidAmount          = errors.New("lending engine: amount must be positive")
	ErrInvalidLoanType        = errors.New("lending engine: invalid loan type")
	ErrInvalidStakeAmount     = errors.New("lending engine: stake amount does not match collateral")
	ErrWrongStakeState        = errors.New("lending engine: stake account in unexpected state")
	ErrOwnerMismatch          = errors.New("lending engine: signer is not the market owner")
	ErrLendingMarketMismatch  = errors.New("lending engine: lending market mismatch")
	ErrInvalidLastUpdate      = errors.New("lending engine: invalid last update")
)

// Lookup faults.
var (
	ErrInvalidObligationPositionIndex = errors.New("lending engine: position not found in obligation")
	ErrObligationPositionEmpty        = errors.New("lending engine: obligation has no positions")
	ErrInvalidReserveAccount          = errors.New("lending engine: invalid reserve account")
	ErrMarketNotFound                 = errors.New("lending engine: lending market not found")
	ErrObligationNotFound             = errors.New("lending engine: obligation not found")
)

// Schema and creation faults.
var (
	ErrWrongRemainingAccountSchema = errors.New("lending engine: wrong remaining account schema")
	ErrMarketExists                = errors.New("lending engine: lending market already exists")
	ErrReserveExists               = errors.New("lending engine: reserve already exists")
	ErrObligationExists            = errors.New("lending engine: obligation already exists")
	ErrNilState                    = errors.New("lending engine: state not configured")
)
