package state

import "github.com/palindrome-eng/srl-program/crypto"

var (
	lendingMarketPrefix     = []byte("lending/market/")
	lendingMarketIndex      = []byte("lending/markets")
	lendingReservePrefix    = []byte("lending/reserve/")
	lendingReserveIndex     = []byte("lending/reserves/")
	lendingObligationPrefix = []byte("lending/obligation/")
	lendingTranchesPrefix   = []byte("lending/tranches/")
)

func prefixed(prefix []byte, key crypto.Pubkey) []byte {
	buf := make([]byte, 0, len(prefix)+len(key))
	buf = append(buf, prefix...)
	return append(buf, key[:]...)
}

func LendingMarketKey(key crypto.Pubkey) []byte { return prefixed(lendingMarketPrefix, key) }

// LendingMarketIndexKey is the list of every market key ever created.
func LendingMarketIndexKey() []byte { return lendingMarketIndex }

func LendingReserveKey(key crypto.Pubkey) []byte { return prefixed(lendingReservePrefix, key) }

// LendingReserveIndexKey is the list of reserve keys opened in a market.
func LendingReserveIndexKey(market crypto.Pubkey) []byte {
	return prefixed(lendingReserveIndex, market)
}

func LendingObligationKey(owner crypto.Pubkey) []byte {
	return prefixed(lendingObligationPrefix, owner)
}

func LendingTranchesKey(reserve crypto.Pubkey) []byte {
	return prefixed(lendingTranchesPrefix, reserve)
}
