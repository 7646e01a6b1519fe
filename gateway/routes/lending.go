package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/palindrome-eng/srl-program/core/epoch"
	"github.com/palindrome-eng/srl-program/crypto"
	"github.com/palindrome-eng/srl-program/native/lending"
	"github.com/palindrome-eng/srl-program/services/journal"
)

// LendingReader is the query surface of the lending engine.
type LendingReader interface {
	Market(key crypto.Pubkey) (*lending.LendingMarket, error)
	Reserve(market, validator crypto.Pubkey) (*lending.Reserve, error)
	Reserves(market crypto.Pubkey) ([]*lending.Reserve, error)
	Obligation(owner crypto.Pubkey) (*lending.Obligation, error)
	Tranches(reserve crypto.Pubkey) (*lending.Tranches, error)
}

// EventLog lists journaled events.
type EventLog interface {
	List(ctx context.Context, filter journal.Filter) ([]journal.Entry, error)
}

type lendingRoutes struct {
	engine LendingReader
	clock  epoch.Clock
	events EventLog
}

func (lr *lendingRoutes) mount(r chi.Router) {
	r.Get("/markets/{market}", lr.getMarket)
	r.Get("/markets/{market}/reserves", lr.listReserves)
	r.Get("/markets/{market}/reserves/{validator}", lr.getReserve)
	r.Get("/obligations/{owner}", lr.getObligation)
	if lr.events != nil {
		r.Get("/events", lr.listEvents)
	}
}

type marketView struct {
	Key       crypto.Pubkey `json:"key"`
	Owner     crypto.Pubkey `json:"owner"`
	Authority crypto.Pubkey `json:"authority"`
	Version   uint8         `json:"version"`
}

type liquidityView struct {
	Mint        crypto.Pubkey `json:"mint"`
	Vault       crypto.Pubkey `json:"vault"`
	Available   uint64        `json:"available"`
	Borrowed    uint64        `json:"borrowed"`
	TotalShares uint64        `json:"totalShares"`
}

type collateralView struct {
	Mint         crypto.Pubkey `json:"mint"`
	StakeAccount crypto.Pubkey `json:"stakeAccount"`
	Available    uint64        `json:"available"`
	Claimable    uint64        `json:"claimable"`
	TotalShares  uint64        `json:"totalShares"`
	Staked       uint64        `json:"staked"`
	Seed         uint64        `json:"seed"`
}

type trancheView struct {
	Kind    string        `json:"kind"`
	Epoch   uint64        `json:"epoch"`
	Account crypto.Pubkey `json:"account"`
	Amount  uint64        `json:"amount"`
}

type reserveView struct {
	Key        crypto.Pubkey  `json:"key"`
	Market     crypto.Pubkey  `json:"market"`
	Validator  crypto.Pubkey  `json:"validator"`
	LastEpoch  uint64         `json:"lastEpoch"`
	LastSlot   uint64         `json:"lastSlot"`
	Stale      bool           `json:"stale"`
	Liquidity  liquidityView  `json:"liquidity"`
	Collateral collateralView `json:"collateral"`
}

// reserveDetailView always carries the tranche registry, empty or not.
type reserveDetailView struct {
	reserveView
	Tranches []trancheView `json:"tranches"`
}

type positionView struct {
	Validator    crypto.Pubkey `json:"validator"`
	LoanKind     string        `json:"loanKind"`
	StartEpoch   uint64        `json:"startEpoch"`
	Deposited    uint64        `json:"deposited"`
	Weighted     uint64        `json:"weighted"`
	Borrowed     uint64        `json:"borrowed"`
	Liquidatable bool          `json:"liquidatable"`
	Collectible  uint64        `json:"collectible"`
}

type obligationView struct {
	Owner     crypto.Pubkey  `json:"owner"`
	Market    crypto.Pubkey  `json:"market"`
	Epoch     uint64         `json:"epoch"`
	Positions []positionView `json:"positions"`
}

func newMarketView(m *lending.LendingMarket) marketView {
	return marketView{Key: m.Key, Owner: m.Owner, Authority: m.Authority, Version: m.Version}
}

func newReserveView(r *lending.Reserve) reserveView {
	return reserveView{
		Key:       r.Key,
		Market:    r.Market,
		Validator: r.Validator,
		LastEpoch: r.LastEpoch,
		LastSlot:  r.LastUpdate.Slot,
		Stale:     r.LastUpdate.Stale,
		Liquidity: liquidityView{
			Mint:        r.Liquidity.Mint,
			Vault:       r.Liquidity.Vault,
			Available:   r.Liquidity.Available,
			Borrowed:    r.Liquidity.Borrowed,
			TotalShares: r.Liquidity.TotalShares,
		},
		Collateral: collateralView{
			Mint:         r.Collateral.Mint,
			StakeAccount: r.Collateral.StakeAccount,
			Available:    r.Collateral.Available,
			Claimable:    r.Collateral.Claimable,
			TotalShares:  r.Collateral.TotalShares,
			Staked:       r.Collateral.Staked,
			Seed:         r.Collateral.Seed,
		},
	}
}

func (lr *lendingRoutes) getMarket(w http.ResponseWriter, r *http.Request) {
	key, err := pathKey(r, "market")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	market, err := lr.engine.Market(key)
	if err != nil {
		writeLendingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newMarketView(market))
}

func (lr *lendingRoutes) listReserves(w http.ResponseWriter, r *http.Request) {
	key, err := pathKey(r, "market")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if _, err := lr.engine.Market(key); err != nil {
		writeLendingError(w, err)
		return
	}
	reserves, err := lr.engine.Reserves(key)
	if err != nil {
		writeLendingError(w, err)
		return
	}
	out := make([]reserveView, 0, len(reserves))
	for _, reserve := range reserves {
		out = append(out, newReserveView(reserve))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reserves": out})
}

func (lr *lendingRoutes) getReserve(w http.ResponseWriter, r *http.Request) {
	market, err := pathKey(r, "market")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	validator, err := pathKey(r, "validator")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	reserve, err := lr.engine.Reserve(market, validator)
	if err != nil {
		writeLendingError(w, err)
		return
	}
	tranches, err := lr.engine.Tranches(reserve.Key)
	if err != nil {
		writeLendingError(w, err)
		return
	}
	view := reserveDetailView{reserveView: newReserveView(reserve)}
	view.Tranches = make([]trancheView, 0, len(tranches.Entries))
	for _, tranche := range tranches.Entries {
		view.Tranches = append(view.Tranches, trancheView{
			Kind:    tranche.Kind.String(),
			Epoch:   tranche.Epoch,
			Account: tranche.Account,
			Amount:  tranche.Amount,
		})
	}
	writeJSON(w, http.StatusOK, view)
}

func (lr *lendingRoutes) getObligation(w http.ResponseWriter, r *http.Request) {
	owner, err := pathKey(r, "owner")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	obligation, err := lr.engine.Obligation(owner)
	if err != nil {
		writeLendingError(w, err)
		return
	}
	var current uint64
	if lr.clock != nil {
		current = lr.clock.Epoch()
	}
	view := obligationView{
		Owner:     obligation.Owner,
		Market:    obligation.Market,
		Epoch:     current,
		Positions: make([]positionView, 0, len(obligation.Positions)),
	}
	for i := range obligation.Positions {
		position := &obligation.Positions[i]
		health, err := position.Evaluate(current)
		if err != nil {
			writeLendingError(w, err)
			return
		}
		view.Positions = append(view.Positions, positionView{
			Validator:    position.Validator,
			LoanKind:     position.LoanType.Kind.String(),
			StartEpoch:   position.LoanType.StartEpoch,
			Deposited:    position.Deposited,
			Weighted:     position.Weighted,
			Borrowed:     position.Borrowed,
			Liquidatable: health.Liquidatable,
			Collectible:  health.Collectible,
		})
	}
	writeJSON(w, http.StatusOK, view)
}

func (lr *lendingRoutes) listEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := journal.Filter{
		Type:    strings.TrimSpace(query.Get("type")),
		Market:  strings.TrimSpace(query.Get("market")),
		Reserve: strings.TrimSpace(query.Get("reserve")),
		Owner:   strings.TrimSpace(query.Get("owner")),
	}
	if raw := query.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeBadRequest(w, fmt.Errorf("invalid after: %w", err))
			return
		}
		filter.AfterID = after
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeBadRequest(w, fmt.Errorf("invalid limit %q", raw))
			return
		}
		filter.Limit = limit
	}
	entries, err := lr.events.List(r.Context(), filter)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": entries})
}

func pathKey(r *http.Request, name string) (crypto.Pubkey, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return crypto.Pubkey{}, fmt.Errorf("missing %s", name)
	}
	key, err := crypto.ParsePubkey(raw)
	if err != nil {
		return crypto.Pubkey{}, fmt.Errorf("invalid %s: %w", name, err)
	}
	return key, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	payload, err := json.Marshal(body)
	if err != nil {
		writeInternalError(w, fmt.Errorf("marshal response: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusInternalServerError, err)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	payload, _ := json.Marshal(map[string]string{"error": message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func writeLendingError(w http.ResponseWriter, err error) {
	writeJSONError(w, lendingStatus(err), err)
}

func lendingStatus(err error) int {
	switch {
	case errors.Is(err, lending.ErrMarketNotFound),
		errors.Is(err, lending.ErrObligationNotFound),
		errors.Is(err, lending.ErrInvalidReserveAccount):
		return http.StatusNotFound
	case errors.Is(err, lending.ErrNilState):
		return http.StatusServiceUnavailable
	case errors.Is(err, lending.ErrMathOverflow), errors.Is(err, lending.ErrDivideByZero):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
