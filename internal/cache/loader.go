package cache

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Loader fills a cache on demand. Concurrent misses for the same key share
// one call to load.
type Loader[T any] struct {
	cache Cache[T]
	group singleflight.Group

	// mu guards gen and orders the store of a loaded value against
	// Invalidate. gen changes on every Invalidate so loads that started
	// earlier neither store their result nor absorb later callers.
	mu  sync.Mutex
	gen uint64
}

func NewLoader[T any](c Cache[T]) *Loader[T] {
	return &Loader[T]{cache: c}
}

// Get returns the cached value for key or computes it with load. Errors are
// not cached. The shared load runs detached from the caller's cancellation
// so one cancelled request does not fail the others waiting on it.
func (l *Loader[T]) Get(ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}

	gen := l.generation()
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := l.group.Do(strconv.FormatUint(gen, 10)+":"+key, func() (any, error) {
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		if l.gen == gen {
			l.cache.Set(key, v)
		}
		l.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Invalidate drops every cached value.
func (l *Loader[T]) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	l.cache.Clear()
}

func (l *Loader[T]) generation() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen
}
