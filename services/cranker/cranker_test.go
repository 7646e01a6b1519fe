package cranker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/palindrome-eng/srl-program/core/epoch"
	"github.com/palindrome-eng/srl-program/core/state"
	"github.com/palindrome-eng/srl-program/crypto"
	"github.com/palindrome-eng/srl-program/native/bank"
	"github.com/palindrome-eng/srl-program/native/lending"
	"github.com/palindrome-eng/srl-program/native/stake"
	"github.com/palindrome-eng/srl-program/storage"
)

type fixture struct {
	engine *lending.Engine
	store  *state.LendingStore
	clock  *epoch.ManualClock
	market *lending.LendingMarket
}

func newFixture(t *testing.T, validators ...crypto.Pubkey) *fixture {
	t.Helper()
	params := lending.DefaultParams()
	ledger := bank.NewLedger()
	clock := epoch.NewManualClock(epoch.Config{SlotsPerEpoch: 4})
	store := state.NewLendingStore(state.NewManager(storage.NewMemDB()))

	engine := lending.NewEngine(params)
	engine.SetState(store)
	engine.SetStakeProgram(stake.NewMemory(ledger, clock, params.StakeRentExempt))
	engine.SetTokenProgram(ledger)
	engine.SetClock(clock)

	owner := crypto.Pubkey{0x01}
	require.NoError(t, ledger.Airdrop(owner, 10*lending.LamportsPerSOL))
	market, err := engine.InitLendingMarket(owner)
	require.NoError(t, err)
	for _, validator := range validators {
		_, err := engine.InitReserve(market.Key, owner, validator)
		require.NoError(t, err)
	}
	return &fixture{engine: engine, store: store, clock: clock, market: market}
}

func TestRoundReconcilesEveryReserve(t *testing.T) {
	f := newFixture(t, crypto.Pubkey{0xA1}, crypto.Pubkey{0xA2})
	c := New(f.engine, f.store, Config{Interval: time.Second}, nil)

	// Nothing to do within the creation epoch.
	summary := c.Round(context.Background())
	require.Equal(t, 1, summary.Markets)
	require.Equal(t, 2, summary.Reserves)
	require.Zero(t, summary.Reconciled)
	require.Zero(t, summary.Failed)
	require.NotEmpty(t, summary.RunID)

	f.clock.AdvanceEpochs(1)
	summary = c.Round(context.Background())
	require.Equal(t, 2, summary.Reconciled)
	require.Zero(t, summary.Failed)

	reserves, err := f.engine.Reserves(f.market.Key)
	require.NoError(t, err)
	for _, reserve := range reserves {
		require.Equal(t, uint64(1), reserve.LastEpoch)
		require.False(t, reserve.LastUpdate.Stale)
	}

	again := c.Round(context.Background())
	require.Zero(t, again.Reconciled)
	require.NotEqual(t, summary.RunID, again.RunID)
}

type stubEngine struct {
	reserves  map[crypto.Pubkey][]*lending.Reserve
	listErr   error
	refreshed []crypto.Pubkey
	failOn    crypto.Pubkey
}

func (s *stubEngine) Reserves(market crypto.Pubkey) ([]*lending.Reserve, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.reserves[market], nil
}

func (s *stubEngine) RefreshEpoch(market, validator crypto.Pubkey) (lending.ReconcileReport, error) {
	s.refreshed = append(s.refreshed, validator)
	if validator == s.failOn {
		return lending.ReconcileReport{}, lending.ErrMathOverflow
	}
	return lending.ReconcileReport{EpochsAdvanced: 1}, nil
}

type stubLister struct {
	markets []crypto.Pubkey
	calls   int
}

func (s *stubLister) ListMarkets() ([]crypto.Pubkey, error) {
	s.calls++
	return s.markets, nil
}

func TestRoundContinuesPastFailures(t *testing.T) {
	market := crypto.Pubkey{0x10}
	engine := &stubEngine{
		reserves: map[crypto.Pubkey][]*lending.Reserve{
			market: {
				lending.NewReserve(market, crypto.Pubkey{0xB1}, 0, 0),
				lending.NewReserve(market, crypto.Pubkey{0xB2}, 0, 0),
				lending.NewReserve(market, crypto.Pubkey{0xB3}, 0, 0),
			},
		},
		failOn: crypto.Pubkey{0xB2},
	}
	lister := &stubLister{markets: []crypto.Pubkey{market}}
	summary := New(engine, lister, Config{}, nil).Round(context.Background())

	require.Equal(t, 3, summary.Reserves)
	require.Equal(t, 2, summary.Reconciled)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, []crypto.Pubkey{{0xB1}, {0xB2}, {0xB3}}, engine.refreshed)
}

func TestRoundPrefersConfiguredMarkets(t *testing.T) {
	configured := crypto.Pubkey{0x20}
	engine := &stubEngine{listErr: errors.New("boom")}
	lister := &stubLister{markets: []crypto.Pubkey{{0x21}, {0x22}}}
	summary := New(engine, lister, Config{Markets: []crypto.Pubkey{configured}}, nil).Round(context.Background())

	require.Zero(t, lister.calls)
	require.Equal(t, 1, summary.Markets)
	require.Equal(t, 1, summary.Failed)
}

func TestRunStopsOnCancel(t *testing.T) {
	lister := &stubLister{}
	c := New(&stubEngine{}, lister, Config{Interval: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cranker did not stop after cancellation")
	}
	require.Equal(t, 1, lister.calls)
}
