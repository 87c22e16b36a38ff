// Package listinglock implements C6: a thin guard over the listing-lock CAS
// store (internal/receipts/locks) enforcing the exclusivity rules from the
// data model — one RFQ or offer line can be committed to at most one trade
// at a time, except for the same trade re-asserting a lock it already holds.
package listinglock

import (
	"context"
	"errors"
	"fmt"

	"github.com/intercomswap/swap-core/internal/model"
	"github.com/intercomswap/swap-core/internal/receipts/locks"
)

// ErrListingFilled and ErrListingInProgress are the two ways a lock check can
// fail, matching the permanent/transient error text C10's stage-retry logic
// switches on (spec §4.10's permanent-abort set names both verbatim).
var (
	ErrListingFilled     = errors.New("listing_filled")
	ErrListingInProgress = errors.New("listing_in_progress")
)

// ConflictError carries the trade_id already holding the conflicting lock,
// so a caller can decide whether allow_same_trade_in_flight applies.
type ConflictError struct {
	Err     error
	TradeID string
}

func (e *ConflictError) Error() string { return fmt.Sprintf("%s (trade_id=%s)", e.Err, e.TradeID) }
func (e *ConflictError) Unwrap() error { return e.Err }

type Store interface {
	Acquire(ctx context.Context, listingKey string, listingType model.ListingType, listingID, tradeID string) (model.ListingLock, error)
	Get(ctx context.Context, listingKey string) (model.ListingLock, error)
	MarkFilledByTrade(ctx context.Context, tradeID string) error
	DeleteByTrade(ctx context.Context, tradeID string) error
}

type Manager struct {
	store Store
}

func New(store Store) *Manager {
	return &Manager{store: store}
}

// CheckRFQ enforces the RFQ lock on QUOTE_ACCEPT: acquire is allowed only if
// the rfq lock is absent or in_flight for the same trade_id.
func (m *Manager) CheckRFQ(ctx context.Context, rfqID, tradeID string) error {
	return m.acquire(ctx, model.RFQListingKey(rfqID), model.ListingTypeRFQ, rfqID, tradeID)
}

// CheckOfferLine enforces the offer-line lock on QUOTE/SWAP_INVITE.
func (m *Manager) CheckOfferLine(ctx context.Context, offerID string, lineIndex int, tradeID string) error {
	key := model.OfferLineListingKey(offerID, lineIndex)
	id := model.OfferLineListingID(offerID, lineIndex)
	return m.acquire(ctx, key, model.ListingTypeOfferLine, id, tradeID)
}

func (m *Manager) acquire(ctx context.Context, key string, typ model.ListingType, listingID, tradeID string) error {
	_, err := m.store.Acquire(ctx, key, typ, listingID, tradeID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, locks.ErrConflict) {
		return fmt.Errorf("listinglock: acquire %s: %w", key, err)
	}

	existing, getErr := m.store.Get(ctx, key)
	if getErr != nil {
		return fmt.Errorf("listinglock: acquire %s: conflict, and re-read failed: %w", key, getErr)
	}
	if existing.State == model.ListingStateFilled {
		return &ConflictError{Err: ErrListingFilled, TradeID: existing.TradeID}
	}
	return &ConflictError{Err: ErrListingInProgress, TradeID: existing.TradeID}
}

// MarkFilled transitions every lock held by tradeID to filled — the
// SOL_CLAIMED (or recovery claim) rule.
func (m *Manager) MarkFilled(ctx context.Context, tradeID string) error {
	if err := m.store.MarkFilledByTrade(ctx, tradeID); err != nil {
		return fmt.Errorf("listinglock: mark filled for %s: %w", tradeID, err)
	}
	return nil
}

// Release deletes every lock held by tradeID — the CANCEL/refund rule.
func (m *Manager) Release(ctx context.Context, tradeID string) error {
	if err := m.store.DeleteByTrade(ctx, tradeID); err != nil {
		return fmt.Errorf("listinglock: release for %s: %w", tradeID, err)
	}
	return nil
}
