package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/palindrome-eng/srl-program/crypto"
	"github.com/palindrome-eng/srl-program/native/lending"
	"github.com/palindrome-eng/srl-program/storage"
)

func newTestStore() *LendingStore {
	return NewLendingStore(NewManager(storage.NewMemDB()))
}

func TestLendingStoreMarket(t *testing.T) {
	store := newTestStore()
	market := lending.NewLendingMarket(crypto.Pubkey{1})

	got, err := store.GetMarket(market.Key)
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, store.CreateMarket(market))
	require.ErrorIs(t, store.CreateMarket(market), lending.ErrMarketExists)

	got, err = store.GetMarket(market.Key)
	require.NoError(t, err)
	require.Equal(t, market, got)

	other := lending.NewLendingMarket(crypto.Pubkey{2})
	require.NoError(t, store.CreateMarket(other))
	keys, err := store.ListMarkets()
	require.NoError(t, err)
	require.Equal(t, []crypto.Pubkey{market.Key, other.Key}, keys)
}

func TestLendingStoreReserveIndex(t *testing.T) {
	store := newTestStore()
	market := lending.NewLendingMarket(crypto.Pubkey{1})

	first := lending.NewReserve(market.Key, crypto.Pubkey{0xA1}, 5, 2)
	first.Liquidity.Available = 1_000
	first.Collateral.Seed = 7
	second := lending.NewReserve(market.Key, crypto.Pubkey{0xA2}, 5, 2)

	require.NoError(t, store.CreateReserve(first))
	require.NoError(t, store.CreateReserve(second))
	require.ErrorIs(t, store.CreateReserve(first), lending.ErrReserveExists)

	got, err := store.GetReserve(market.Key, crypto.Pubkey{0xA1})
	require.NoError(t, err)
	require.Equal(t, first, got)

	first.LastUpdate.UpdateSlot(9)
	require.NoError(t, store.PutReserve(first))

	reserves, err := store.ListReserves(market.Key)
	require.NoError(t, err)
	require.Len(t, reserves, 2)
	require.Equal(t, first.Key, reserves[0].Key)
	require.False(t, reserves[0].LastUpdate.Stale)
	require.Equal(t, second.Key, reserves[1].Key)

	empty, err := store.ListReserves(crypto.Pubkey{9})
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestLendingStoreObligation(t *testing.T) {
	store := newTestStore()
	owner := crypto.Pubkey{0x40}
	obligation := lending.NewObligation(owner, crypto.Pubkey{1})
	require.NoError(t, store.CreateObligation(obligation))
	require.ErrorIs(t, store.CreateObligation(obligation), lending.ErrObligationExists)

	got, err := store.GetObligation(owner)
	require.NoError(t, err)
	require.NotNil(t, got.Positions)
	require.Empty(t, got.Positions)

	loanType, err := lending.ParseLoanType(1, 3)
	require.NoError(t, err)
	require.NoError(t, got.OpenOrIncrease(crypto.Pubkey{0xA1}, loanType, 100, 90, 10))
	require.NoError(t, store.PutObligation(got))

	reloaded, err := store.GetObligation(owner)
	require.NoError(t, err)
	require.Equal(t, got.Positions, reloaded.Positions)
}

func TestLendingStoreTranches(t *testing.T) {
	store := newTestStore()
	reserve := crypto.Pubkey{0x77}
	tranches := lending.NewTranches(reserve)
	require.NoError(t, tranches.Add(lending.Tranche{Kind: lending.TrancheDeactivating, Epoch: 4, Account: crypto.Pubkey{3}, Amount: 55}))
	require.NoError(t, store.PutTranches(tranches))

	got, err := store.GetTranches(reserve)
	require.NoError(t, err)
	require.Equal(t, tranches.Entries, got.Entries)

	missing, err := store.GetTranches(crypto.Pubkey{0x78})
	require.NoError(t, err)
	require.Nil(t, missing)
}
