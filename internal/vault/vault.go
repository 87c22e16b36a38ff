// Package vault implements C4: the secrets vault. It binds hot material
// (unsigned envelopes awaiting signature, LN preimages, raw transaction
// bytes) to a short opaque handle so tool arguments never have to carry the
// full value across a process boundary. The vault is process-local and is
// never persisted — a restart invalidates every handle.
package vault

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/intercomswap/swap-core/internal/apperr"
)

// Entry is what a handle resolves to.
type Entry struct {
	Value     any
	Metadata  map[string]string
	CreatedAt time.Time
}

// Vault hands out handles for hot values and resolves them back.
type Vault struct {
	c *cache.Cache
}

const defaultTTL = 30 * time.Minute

// New creates a vault whose entries expire after ttl (0 uses the package
// default) and are swept every cleanupInterval.
func New(ttl, cleanupInterval time.Duration) *Vault {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = ttl
	}
	return &Vault{c: cache.New(ttl, cleanupInterval)}
}

// Put stores value under a freshly generated handle and returns it.
func (v *Vault) Put(value any, metadata map[string]string) string {
	handle := uuid.NewString()
	v.c.SetDefault(handle, Entry{Value: value, Metadata: metadata, CreatedAt: time.Now()})
	return handle
}

// Get resolves handle to its stored value, failing if the handle is
// unknown or expired.
func (v *Vault) Get(handle string) (Entry, error) {
	raw, found := v.c.Get(handle)
	if !found {
		return Entry{}, apperr.Precondition("vault: unknown or expired handle %q", handle)
	}
	entry, ok := raw.(Entry)
	if !ok {
		return Entry{}, apperr.Wrap(fmt.Errorf("vault: handle %q holds unexpected type %T", handle, raw))
	}
	return entry, nil
}

// Delete removes handle, if present.
func (v *Vault) Delete(handle string) {
	v.c.Delete(handle)
}
