// Package cache provides a generic TTL-bound cache adapter over Ristretto,
// used wherever a component needs bounded, expiring key/value storage:
// sidechannel replay-dedup entries.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/eko/gocache/v3/cache"
	"github.com/eko/gocache/v3/store"
)

// RistrettoAdapter implements GenericCache using a Ristretto-backed gocache
// store.
type RistrettoAdapter[T any] struct {
	cacheManager   cache.CacheInterface[T]
	ristrettoCache *ristretto.Cache
	logPrefix      string
}

// NewRistrettoAdapter creates an adapter with a dedicated Ristretto
// instance. logPrefix is only used in diagnostic logging.
func NewRistrettoAdapter[T any](logPrefix string) (*RistrettoAdapter[T], error) {
	ristrettoCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	cacheStore := store.NewRistretto(ristrettoCache)
	cacheManager := cache.New[T](cacheStore)

	return &RistrettoAdapter[T]{
		cacheManager:   cacheManager,
		ristrettoCache: ristrettoCache,
		logPrefix:      logPrefix,
	}, nil
}

func (a *RistrettoAdapter[T]) Get(key string) (T, bool) {
	var zero T
	cachedValue, err := a.cacheManager.Get(context.Background(), key)
	if err != nil {
		slog.Debug("cache miss", "cache", a.logPrefix, "key", key, "error", err)
		return zero, false
	}
	return cachedValue, true
}

func (a *RistrettoAdapter[T]) Set(key string, data T, expiration time.Duration) {
	if err := a.cacheManager.Set(context.Background(), key, data, store.WithExpiration(expiration)); err != nil {
		slog.Error("cache set failed", "cache", a.logPrefix, "key", key, "error", err)
	}
}

func (a *RistrettoAdapter[T]) Delete(key string) {
	if err := a.cacheManager.Delete(context.Background(), key); err != nil {
		slog.Error("cache delete failed", "cache", a.logPrefix, "key", key, "error", err)
	}
}
