// Package locks implements the listing-lock half of C5: a pgx-backed,
// compare-and-swap store for RFQ and offer-line locks. It is kept separate
// from the GORM-backed receipts/postgres journal because acquiring a lock
// needs explicit transaction control (SELECT ... FOR UPDATE, INSERT ... ON
// CONFLICT DO NOTHING) that a generic last-write-wins Upsert can't give us —
// the same shape the teacher's trade_repository.go used for its own
// transactional writes.
package locks

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/intercomswap/swap-core/internal/model"
)

// ErrConflict is returned when a lock acquisition is refused because the
// listing is already locked by a different trade.
var ErrConflict = errors.New("locks: listing already locked")

// ErrNotFound mirrors receipts.ErrNotFound without importing that package,
// to avoid a dependency cycle (receipts does not import locks).
var ErrNotFound = errors.New("locks: not found")

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("locks: connect: %w", err)
	}
	return &Store{pool: pool}, nil
}

func NewStoreWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS listing_locks (
			listing_key  TEXT PRIMARY KEY,
			listing_type TEXT NOT NULL,
			listing_id   TEXT NOT NULL,
			trade_id     TEXT NOT NULL DEFAULT '',
			state        TEXT NOT NULL,
			note         TEXT NOT NULL DEFAULT '',
			meta         TEXT NOT NULL DEFAULT ''
		)`)
	if err != nil {
		return fmt.Errorf("locks: migrate: %w", err)
	}
	return nil
}

// Acquire attempts to set listingKey in_flight for tradeID, following the
// exclusivity rule: allowed when the lock is absent, or already in_flight
// for the same trade_id (re-asserting a lock the caller already holds is a
// no-op success, not a conflict). Any other state (filled, or in_flight for
// a different trade) is ErrConflict; the caller maps that to
// listing_filled/listing_in_progress.
func (s *Store) Acquire(ctx context.Context, listingKey string, listingType model.ListingType, listingID, tradeID string) (model.ListingLock, error) {
	var result model.ListingLock
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var existing model.ListingLock
		err := tx.QueryRow(ctx, `
			SELECT listing_key, listing_type, listing_id, trade_id, state, note, meta
			FROM listing_locks WHERE listing_key = $1 FOR UPDATE`, listingKey,
		).Scan(&existing.ListingKey, &existing.ListingType, &existing.ListingID,
			&existing.TradeID, &existing.State, &existing.Note, &existing.Meta)

		switch {
		case errors.Is(err, pgx.ErrNoRows):
			tag, err := tx.Exec(ctx, `
				INSERT INTO listing_locks (listing_key, listing_type, listing_id, trade_id, state)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (listing_key) DO NOTHING`,
				listingKey, listingType, listingID, tradeID, model.ListingStateInFlight)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return ErrConflict
			}
			result = model.ListingLock{
				ListingKey: listingKey, ListingType: listingType, ListingID: listingID,
				TradeID: tradeID, State: model.ListingStateInFlight,
			}
			return nil
		case err != nil:
			return err
		case existing.State == model.ListingStateInFlight && existing.TradeID == tradeID:
			result = existing
			return nil
		default:
			result = existing
			return ErrConflict
		}
	})
	if err != nil && !errors.Is(err, ErrConflict) {
		return model.ListingLock{}, fmt.Errorf("locks: acquire %s: %w", listingKey, err)
	}
	return result, err
}

// MarkFilledByTrade transitions every lock held by tradeID to filled,
// implementing the SOL_CLAIMED (or recovery claim) rule.
func (s *Store) MarkFilledByTrade(ctx context.Context, tradeID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE listing_locks SET state = $2 WHERE trade_id = $1`,
		tradeID, model.ListingStateFilled)
	if err != nil {
		return fmt.Errorf("locks: mark filled for trade %s: %w", tradeID, err)
	}
	return nil
}

// DeleteByTrade releases (deletes) every lock held by tradeID, implementing
// the CANCEL/refund rule.
func (s *Store) DeleteByTrade(ctx context.Context, tradeID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM listing_locks WHERE trade_id = $1`, tradeID)
	if err != nil {
		return fmt.Errorf("locks: delete for trade %s: %w", tradeID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, listingKey string) (model.ListingLock, error) {
	var l model.ListingLock
	err := s.pool.QueryRow(ctx, `
		SELECT listing_key, listing_type, listing_id, trade_id, state, note, meta
		FROM listing_locks WHERE listing_key = $1`, listingKey,
	).Scan(&l.ListingKey, &l.ListingType, &l.ListingID, &l.TradeID, &l.State, &l.Note, &l.Meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ListingLock{}, ErrNotFound
	}
	if err != nil {
		return model.ListingLock{}, fmt.Errorf("locks: get %s: %w", listingKey, err)
	}
	return l, nil
}

func (s *Store) ListByTrade(ctx context.Context, tradeID string) ([]model.ListingLock, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT listing_key, listing_type, listing_id, trade_id, state, note, meta
		FROM listing_locks WHERE trade_id = $1`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("locks: list by trade %s: %w", tradeID, err)
	}
	defer rows.Close()

	var out []model.ListingLock
	for rows.Next() {
		var l model.ListingLock
		if err := rows.Scan(&l.ListingKey, &l.ListingType, &l.ListingID, &l.TradeID, &l.State, &l.Note, &l.Meta); err != nil {
			return nil, fmt.Errorf("locks: scan: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
