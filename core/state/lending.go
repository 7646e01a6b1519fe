package state

import (
	"fmt"

	"github.com/palindrome-eng/srl-program/crypto"
	"github.com/palindrome-eng/srl-program/native/lending"
)

// LendingStore persists lending accounts. Getters return nil without error
// when a record does not exist.
type LendingStore struct {
	m *Manager
}

func NewLendingStore(m *Manager) *LendingStore {
	return &LendingStore{m: m}
}

func (s *LendingStore) GetMarket(key crypto.Pubkey) (*lending.LendingMarket, error) {
	market := new(lending.LendingMarket)
	ok, err := s.m.KVGet(LendingMarketKey(key), market)
	if err != nil || !ok {
		return nil, err
	}
	return market, nil
}

func (s *LendingStore) PutMarket(market *lending.LendingMarket) error {
	if market == nil {
		return fmt.Errorf("state: nil market")
	}
	return s.m.KVPut(LendingMarketKey(market.Key), market)
}

func (s *LendingStore) CreateMarket(market *lending.LendingMarket) error {
	if market == nil {
		return fmt.Errorf("state: nil market")
	}
	exists, err := s.m.KVHas(LendingMarketKey(market.Key))
	if err != nil {
		return err
	}
	if exists {
		return lending.ErrMarketExists
	}
	if err := s.PutMarket(market); err != nil {
		return err
	}
	return s.m.KVAppend(LendingMarketIndexKey(), market.Key[:])
}

// ListMarkets returns every market key in creation order.
func (s *LendingStore) ListMarkets() ([]crypto.Pubkey, error) {
	var raw [][]byte
	if err := s.m.KVGetList(LendingMarketIndexKey(), &raw); err != nil {
		return nil, err
	}
	out := make([]crypto.Pubkey, 0, len(raw))
	for _, b := range raw {
		key, err := crypto.PubkeyFromBytes(b)
		if err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, nil
}

func (s *LendingStore) GetReserve(market, validator crypto.Pubkey) (*lending.Reserve, error) {
	return s.reserveByKey(lending.ReserveAddress(market, validator))
}

func (s *LendingStore) reserveByKey(key crypto.Pubkey) (*lending.Reserve, error) {
	reserve := new(lending.Reserve)
	ok, err := s.m.KVGet(LendingReserveKey(key), reserve)
	if err != nil || !ok {
		return nil, err
	}
	return reserve, nil
}

func (s *LendingStore) PutReserve(reserve *lending.Reserve) error {
	if reserve == nil {
		return fmt.Errorf("state: nil reserve")
	}
	return s.m.KVPut(LendingReserveKey(reserve.Key), reserve)
}

// CreateReserve stores a new reserve and adds it to its market's index.
func (s *LendingStore) CreateReserve(reserve *lending.Reserve) error {
	if reserve == nil {
		return fmt.Errorf("state: nil reserve")
	}
	exists, err := s.m.KVHas(LendingReserveKey(reserve.Key))
	if err != nil {
		return err
	}
	if exists {
		return lending.ErrReserveExists
	}
	if err := s.PutReserve(reserve); err != nil {
		return err
	}
	return s.m.KVAppend(LendingReserveIndexKey(reserve.Market), reserve.Key[:])
}

// ListReserves returns the market's reserves in creation order.
func (s *LendingStore) ListReserves(market crypto.Pubkey) ([]*lending.Reserve, error) {
	var keys [][]byte
	if err := s.m.KVGetList(LendingReserveIndexKey(market), &keys); err != nil {
		return nil, err
	}
	out := make([]*lending.Reserve, 0, len(keys))
	for _, raw := range keys {
		key, err := crypto.PubkeyFromBytes(raw)
		if err != nil {
			return nil, err
		}
		reserve, err := s.reserveByKey(key)
		if err != nil {
			return nil, err
		}
		if reserve == nil {
			return nil, fmt.Errorf("state: reserve %s indexed but missing", key)
		}
		out = append(out, reserve)
	}
	return out, nil
}

func (s *LendingStore) GetObligation(owner crypto.Pubkey) (*lending.Obligation, error) {
	obligation := new(lending.Obligation)
	ok, err := s.m.KVGet(LendingObligationKey(owner), obligation)
	if err != nil || !ok {
		return nil, err
	}
	if obligation.Positions == nil {
		obligation.Positions = []lending.Position{}
	}
	return obligation, nil
}

func (s *LendingStore) PutObligation(obligation *lending.Obligation) error {
	if obligation == nil {
		return fmt.Errorf("state: nil obligation")
	}
	return s.m.KVPut(LendingObligationKey(obligation.Owner), obligation)
}

func (s *LendingStore) CreateObligation(obligation *lending.Obligation) error {
	if obligation == nil {
		return fmt.Errorf("state: nil obligation")
	}
	exists, err := s.m.KVHas(LendingObligationKey(obligation.Owner))
	if err != nil {
		return err
	}
	if exists {
		return lending.ErrObligationExists
	}
	return s.PutObligation(obligation)
}

func (s *LendingStore) GetTranches(reserve crypto.Pubkey) (*lending.Tranches, error) {
	tranches := new(lending.Tranches)
	ok, err := s.m.KVGet(LendingTranchesKey(reserve), tranches)
	if err != nil || !ok {
		return nil, err
	}
	return tranches, nil
}

func (s *LendingStore) PutTranches(tranches *lending.Tranches) error {
	if tranches == nil {
		return fmt.Errorf("state: nil tranches")
	}
	return s.m.KVPut(LendingTranchesKey(tranches.Reserve), tranches)
}
