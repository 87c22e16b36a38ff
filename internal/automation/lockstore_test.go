package automation

import (
	"context"
	"sync"

	"github.com/intercomswap/swap-core/internal/model"
	"github.com/intercomswap/swap-core/internal/receipts/locks"
)

// fakeLockStore is an in-memory listinglock.Store for tests that need a
// working *listinglock.Manager without a database.
type fakeLockStore struct {
	mu    sync.Mutex
	locks map[string]model.ListingLock
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{locks: make(map[string]model.ListingLock)}
}

func (s *fakeLockStore) Acquire(ctx context.Context, listingKey string, listingType model.ListingType, listingID, tradeID string) (model.ListingLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.locks[listingKey]
	if !ok {
		l := model.ListingLock{
			ListingKey:  listingKey,
			ListingType: listingType,
			ListingID:   listingID,
			TradeID:     tradeID,
			State:       model.ListingStateInFlight,
		}
		s.locks[listingKey] = l
		return l, nil
	}
	if existing.TradeID == tradeID {
		return existing, nil
	}
	return model.ListingLock{}, locks.ErrConflict
}

func (s *fakeLockStore) Get(ctx context.Context, listingKey string) (model.ListingLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[listingKey]
	if !ok {
		return model.ListingLock{}, locks.ErrNotFound
	}
	return l, nil
}

func (s *fakeLockStore) MarkFilledByTrade(ctx context.Context, tradeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, l := range s.locks {
		if l.TradeID == tradeID {
			l.State = model.ListingStateFilled
			s.locks[k] = l
		}
	}
	return nil
}

func (s *fakeLockStore) DeleteByTrade(ctx context.Context, tradeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, l := range s.locks {
		if l.TradeID == tradeID {
			delete(s.locks, k)
		}
	}
	return nil
}
