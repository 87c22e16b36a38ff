// Package receipts implements C5: the durable trade journal, its
// append-only event log, and listing locks. Concrete stores live in
// sibling packages (postgres, memory); listing-lock CAS lives in locks,
// its own small pgx-driven store because acquiring a lock is a
// compare-and-swap that needs explicit transaction control GORM's generic
// repository doesn't give us.
package receipts

import (
	"context"
	"errors"

	"github.com/intercomswap/swap-core/internal/model"
)

// ErrNotFound is returned by Get methods when no row matches.
var ErrNotFound = errors.New("receipts: not found")

// TradeStore is the durable journal for trade records and their events.
type TradeStore interface {
	// CreateTrade inserts a new trade row. Returns an error if trade_id
	// already exists.
	CreateTrade(ctx context.Context, trade *model.Trade) error

	// GetTrade returns the current row for tradeID, or ErrNotFound.
	GetTrade(ctx context.Context, tradeID string) (*model.Trade, error)

	// UpsertTrade applies patch to the existing row (or creates one using
	// patch's values if absent) and returns the resulting row. Applying
	// the same patch twice is idempotent: the second call is a no-op
	// state-wise (spec's idempotent-upsert testable property).
	UpsertTrade(ctx context.Context, tradeID string, patch model.TradePatch) (*model.Trade, error)

	// ListTradesByState returns every trade currently in one of the given
	// states, used by the receipts_list tool and C13's recovery scans.
	ListTradesByState(ctx context.Context, states ...model.TradeState) ([]model.Trade, error)

	// AppendEvent appends ev to tradeID's journal, assigning the next seq
	// for that trade.
	AppendEvent(ctx context.Context, tradeID string, ev model.TradeEvent) (model.TradeEvent, error)

	// ListEvents returns tradeID's journal ordered by seq ascending.
	ListEvents(ctx context.Context, tradeID string) ([]model.TradeEvent, error)
}
