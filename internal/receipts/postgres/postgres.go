// Package postgres implements receipts.TradeStore on top of GORM, mirroring
// the teacher's postgres.Store/Repository wiring but keyed off a single
// trades/trade_events pair instead of per-entity repositories, since C5 only
// ever looks a trade up by trade_id.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/intercomswap/swap-core/internal/model"
	"github.com/intercomswap/swap-core/internal/receipts"
)

type Store struct {
	db *gorm.DB
}

var _ receipts.TradeStore = (*Store)(nil)

// NewStore opens dsn, runs AutoMigrate for the trade journal tables when
// autoMigrate is set, and returns a ready Store.
func NewStore(dsn string, autoMigrate bool, env string) (*Store, error) {
	gc := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	if env == "development" {
		gc.Logger = gormlogger.Default
	}

	db, err := gorm.Open(postgres.Open(dsn), gc)
	if err != nil {
		return nil, fmt.Errorf("receipts/postgres: connect: %w", err)
	}

	if autoMigrate {
		if err := db.AutoMigrate(&model.Trade{}, &model.TradeEvent{}); err != nil {
			return nil, fmt.Errorf("receipts/postgres: automigrate: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an already-open *gorm.DB, used to build a
// transaction-scoped Store inside WithTransaction.
func NewStoreWithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB { return s.db }

// WithTransaction runs fn against a Store bound to a single DB transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx receipts.TradeStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStoreWithDB(tx))
	})
}

func (s *Store) CreateTrade(ctx context.Context, trade *model.Trade) error {
	if err := s.db.WithContext(ctx).Create(trade).Error; err != nil {
		return fmt.Errorf("receipts/postgres: create trade %s: %w", trade.TradeID, err)
	}
	return nil
}

func (s *Store) GetTrade(ctx context.Context, tradeID string) (*model.Trade, error) {
	var t model.Trade
	err := s.db.WithContext(ctx).Where("trade_id = ?", tradeID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, receipts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("receipts/postgres: get trade %s: %w", tradeID, err)
	}
	return &t, nil
}

// UpsertTrade applies patch onto the row identified by tradeID inside a
// transaction: load-or-init, merge, save. Applying the same patch twice
// yields the same row both times (idempotent upsert).
func (s *Store) UpsertTrade(ctx context.Context, tradeID string, patch model.TradePatch) (*model.Trade, error) {
	var result model.Trade
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t model.Trade
		err := tx.Where("trade_id = ?", tradeID).First(&t).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			t = model.Trade{TradeID: tradeID}
		case err != nil:
			return err
		}

		patch.Apply(&t)

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "trade_id"}},
			UpdateAll: true,
		}).Create(&t).Error; err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("receipts/postgres: upsert trade %s: %w", tradeID, err)
	}
	return &result, nil
}

func (s *Store) ListTradesByState(ctx context.Context, states ...model.TradeState) ([]model.Trade, error) {
	q := s.db.WithContext(ctx).Model(&model.Trade{})
	if len(states) > 0 {
		q = q.Where("state IN ?", states)
	}
	var out []model.Trade
	if err := q.Order("trade_id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("receipts/postgres: list trades by state: %w", err)
	}
	return out, nil
}

func (s *Store) AppendEvent(ctx context.Context, tradeID string, ev model.TradeEvent) (model.TradeEvent, error) {
	var result model.TradeEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int64
		if err := tx.Model(&model.TradeEvent{}).
			Where("trade_id = ?", tradeID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}
		ev.TradeID = tradeID
		ev.Seq = maxSeq + 1
		if err := tx.Create(&ev).Error; err != nil {
			return err
		}
		result = ev
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "receipts/postgres: append event failed", "trade_id", tradeID, "error", err)
		return model.TradeEvent{}, fmt.Errorf("receipts/postgres: append event for %s: %w", tradeID, err)
	}
	return result, nil
}

func (s *Store) ListEvents(ctx context.Context, tradeID string) ([]model.TradeEvent, error) {
	var out []model.TradeEvent
	err := s.db.WithContext(ctx).
		Where("trade_id = ?", tradeID).
		Order("seq ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("receipts/postgres: list events for %s: %w", tradeID, err)
	}
	return out, nil
}
