package cache

import "time"

// GenericCache is the narrow interface consumers depend on, so call sites
// can be tested against an in-memory fake without pulling in Ristretto.
type GenericCache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T, expiration time.Duration)
	Delete(key string)
}
