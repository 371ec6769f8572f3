package busmsg

import (
	"errors"
	"sync"
)

// errNotFound is the sentinel returned by cache.Get for keys that
// have no cached outcome yet.
var errNotFound = errors.New("not found in cache")

// A cache memoizes values derived from a key, typically a
// reflect.Type or a signature string. Both successful derivations and
// derivation errors are cached, so that repeated use of a broken type
// fails quickly instead of re-deriving the same error.
//
// The zero cache is ready to use.
type cache[K comparable, V any] struct {
	m sync.Map // K -> cacheEntry[V]
}

type cacheEntry[V any] struct {
	val V
	err error
}

func (c *cache[K, V]) Get(k K) (V, error) {
	if e, ok := c.m.Load(k); ok {
		ent := e.(cacheEntry[V])
		return ent.val, ent.err
	}
	var zero V
	return zero, errNotFound
}

func (c *cache[K, V]) Set(k K, v V) {
	c.m.Store(k, cacheEntry[V]{val: v})
}

func (c *cache[K, V]) SetErr(k K, err error) {
	c.m.Store(k, cacheEntry[V]{err: err})
}
