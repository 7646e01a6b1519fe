package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/palindrome-eng/srl-program/core/epoch"
	"github.com/palindrome-eng/srl-program/core/events"
	"github.com/palindrome-eng/srl-program/core/state"
	"github.com/palindrome-eng/srl-program/crypto"
	"github.com/palindrome-eng/srl-program/gateway/middleware"
	"github.com/palindrome-eng/srl-program/native/bank"
	"github.com/palindrome-eng/srl-program/native/lending"
	"github.com/palindrome-eng/srl-program/native/stake"
	"github.com/palindrome-eng/srl-program/services/journal"
	"github.com/palindrome-eng/srl-program/storage"
)

const sol = lending.LamportsPerSOL

var validator = crypto.Pubkey{0xAA}

type fixture struct {
	handler http.Handler
	engine  *lending.Engine
	ledger  *bank.Ledger
	stakes  *stake.Memory
	clock   *epoch.ManualClock
	market  *lending.LendingMarket
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	params := lending.DefaultParams()
	f := &fixture{
		ledger: bank.NewLedger(),
		clock:  epoch.NewManualClock(epoch.Config{SlotsPerEpoch: 10}),
	}
	f.stakes = stake.NewMemory(f.ledger, f.clock, params.StakeRentExempt)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	jr, err := journal.Open(dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = jr.Close() })

	f.engine = lending.NewEngine(params)
	f.engine.SetState(state.NewLendingStore(state.NewManager(storage.NewMemDB())))
	f.engine.SetStakeProgram(f.stakes)
	f.engine.SetTokenProgram(f.ledger)
	f.engine.SetClock(f.clock)
	f.engine.SetEmitter(jr)

	owner := crypto.Pubkey{0x01}
	require.NoError(t, f.ledger.Airdrop(owner, 10*sol))
	f.market, err = f.engine.InitLendingMarket(owner)
	require.NoError(t, err)
	_, err = f.engine.InitReserve(f.market.Key, owner, validator)
	require.NoError(t, err)
	f.clock.AdvanceEpochs(1)

	f.handler, err = New(Config{
		Engine:        f.engine,
		Clock:         f.clock,
		Events:        jr,
		RateLimiter:   middleware.NewRateLimiter(map[string]middleware.RateLimit{"lending": {RatePerSecond: 1000, Burst: 1000}}, nil),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{}, nil),
	})
	require.NoError(t, err)
	return f
}

// openLoan has a lender fund the reserve and a borrower pledge 4 SOL of a
// 10 SOL stake account against a 1 SOL short loan.
func (f *fixture) openLoan(t *testing.T) crypto.Pubkey {
	t.Helper()
	_, err := f.engine.RefreshEpoch(f.market.Key, validator)
	require.NoError(t, err)

	lender := crypto.Pubkey{0x30}
	require.NoError(t, f.ledger.Airdrop(lender, 50*sol))
	_, err = f.engine.DepositLiquidity(f.market.Key, validator, lender, 50*sol)
	require.NoError(t, err)

	borrower := crypto.Pubkey{0x40}
	stakeAccount := crypto.Pubkey{0x41}
	require.NoError(t, f.stakes.Initialize(stakeAccount, borrower))
	require.NoError(t, f.ledger.Airdrop(stakeAccount, 10*sol+f.engine.Params().StakeRentExempt))
	require.NoError(t, f.stakes.Delegate(stakeAccount, borrower, validator))
	f.clock.AdvanceEpochs(1)

	_, err = f.engine.RefreshReserve(f.market.Key, validator)
	require.NoError(t, err)
	_, err = f.engine.InitObligation(f.market.Key, borrower)
	require.NoError(t, err)
	_, err = f.engine.Borrow(f.market.Key, validator, borrower, lending.BorrowArgs{
		LoanType:         uint8(lending.LoanShort),
		CollateralAmount: 4 * sol,
		BorrowAmount:     sol,
		StakeAccount:     stakeAccount,
		SplitAccount:     crypto.Pubkey{0x42},
	})
	require.NoError(t, err)
	return borrower
}

func get(t *testing.T, h http.Handler, path string, out interface{}) int {
	t.Helper()
	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && res.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(res.Body.Bytes(), out))
	}
	return res.Code
}

func TestGetMarket(t *testing.T) {
	f := newFixture(t)
	var view marketView
	require.Equal(t, http.StatusOK, get(t, f.handler, "/v1/lending/markets/"+f.market.Key.String(), &view))
	require.Equal(t, f.market.Key, view.Key)
	require.Equal(t, f.market.Authority, view.Authority)

	unknown := crypto.Pubkey{0xEE}.String()
	require.Equal(t, http.StatusNotFound, get(t, f.handler, "/v1/lending/markets/"+unknown, nil))
	require.Equal(t, http.StatusBadRequest, get(t, f.handler, "/v1/lending/markets/not-a-key", nil))
}

func TestListAndGetReserve(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.RefreshEpoch(f.market.Key, validator)
	require.NoError(t, err)

	var list struct {
		Reserves []reserveView `json:"reserves"`
	}
	path := "/v1/lending/markets/" + f.market.Key.String() + "/reserves"
	require.Equal(t, http.StatusOK, get(t, f.handler, path, &list))
	require.Len(t, list.Reserves, 1)
	require.Equal(t, validator, list.Reserves[0].Validator)
	require.Equal(t, sol, list.Reserves[0].Collateral.Staked)

	var view reserveDetailView
	require.Equal(t, http.StatusOK, get(t, f.handler, path+"/"+validator.String(), &view))
	require.Equal(t, uint64(1), view.LastEpoch)
	require.False(t, view.Stale)
	require.NotNil(t, view.Tranches)

	// An empty registry still renders as an array.
	var fields map[string]json.RawMessage
	require.Equal(t, http.StatusOK, get(t, f.handler, path+"/"+validator.String(), &fields))
	require.NotEmpty(t, fields["tranches"])
	require.Equal(t, byte('['), bytes.TrimSpace(fields["tranches"])[0])

	require.Equal(t, http.StatusNotFound, get(t, f.handler, path+"/"+crypto.Pubkey{0xBB}.String(), nil))
}

func TestGetObligationReportsHealth(t *testing.T) {
	f := newFixture(t)
	borrower := f.openLoan(t)

	var view obligationView
	require.Equal(t, http.StatusOK, get(t, f.handler, "/v1/lending/obligations/"+borrower.String(), &view))
	require.Len(t, view.Positions, 1)
	position := view.Positions[0]
	require.Equal(t, "short", position.LoanKind)
	require.Equal(t, 4*sol, position.Deposited)
	require.Equal(t, sol, position.Borrowed)
	require.False(t, position.Liquidatable)
	require.Equal(t, 4*sol, position.Collectible)

	f.clock.AdvanceEpochs(40)
	require.Equal(t, http.StatusOK, get(t, f.handler, "/v1/lending/obligations/"+borrower.String(), &view))
	require.True(t, view.Positions[0].Liquidatable)

	require.Equal(t, http.StatusNotFound, get(t, f.handler, "/v1/lending/obligations/"+crypto.Pubkey{0x99}.String(), nil))
}

func TestListEvents(t *testing.T) {
	f := newFixture(t)
	f.openLoan(t)

	var body struct {
		Events []journal.Entry `json:"events"`
	}
	require.Equal(t, http.StatusOK, get(t, f.handler, "/v1/lending/events?type="+lending.EventTypePositionBorrowed, &body))
	require.Len(t, body.Events, 1)
	require.Equal(t, f.market.Key.String(), body.Events[0].Market)

	require.Equal(t, http.StatusOK, get(t, f.handler, "/v1/lending/events?limit=2", &body))
	require.Len(t, body.Events, 2)
	require.Equal(t, http.StatusOK, get(t, f.handler, fmt.Sprintf("/v1/lending/events?after=%d&limit=1", body.Events[0].ID), &body))
	require.Len(t, body.Events, 1)

	require.Equal(t, http.StatusBadRequest, get(t, f.handler, "/v1/lending/events?after=x", nil))
	require.Equal(t, http.StatusBadRequest, get(t, f.handler, "/v1/lending/events?limit=-3", nil))
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, get(t, f.handler, "/healthz", nil))
	get(t, f.handler, "/v1/lending/markets/"+f.market.Key.String(), nil)

	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	require.True(t, strings.Contains(body, "gateway_requests_total"))
	require.True(t, strings.Contains(body, "srl_lending_operations_total"))
}

type failingLog struct{}

func (failingLog) List(context.Context, journal.Filter) ([]journal.Entry, error) {
	return nil, fmt.Errorf("journal offline")
}

func TestRouterWithoutEventsOrEngine(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	f := newFixture(t)
	handler, err := New(Config{Engine: f.engine})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, get(t, handler, "/v1/lending/events", nil))

	handler, err = New(Config{Engine: f.engine, Events: failingLog{}})
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, get(t, handler, "/v1/lending/events", nil))
}

var _ events.Emitter = (*journal.Journal)(nil)
