// Package keylock provides in-process mutual exclusion scoped to a key.
//
// Each key gets its own lock so that unrelated keys never contend. Entries are
// reference counted and removed once no goroutine holds or waits for them.
//
//	var locks keylock.Locker[uuid.UUID]
//	unlock, err := locks.Lock(ctx, subscriptionID)
//	if err != nil {
//		return err
//	}
//	defer unlock()
package keylock

import (
	"context"
	"fmt"
	"sync"
)

type entry struct {
	sem  chan struct{}
	refs int
}

// Locker serializes work per key. The zero value is ready to use.
type Locker[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
}

func (l *Locker[K]) acquireEntry(key K) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.entries == nil {
		l.entries = make(map[K]*entry)
	}
	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *Locker[K]) releaseEntry(key K, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Lock blocks until the key is held or ctx is done.
// The returned function releases the lock; calling it more than once is safe.
func (l *Locker[K]) Lock(ctx context.Context, key K) (func(), error) {
	e := l.acquireEntry(key)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.releaseEntry(key, e)
		return nil, fmt.Errorf("keylock: acquire %v: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.releaseEntry(key, e)
		})
	}, nil
}

// TryLock acquires the key without blocking. It reports false if the key is held.
func (l *Locker[K]) TryLock(key K) (func(), bool) {
	e := l.acquireEntry(key)

	select {
	case e.sem <- struct{}{}:
	default:
		l.releaseEntry(key, e)
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.releaseEntry(key, e)
		})
	}, true
}

// Len returns the number of keys currently held or awaited.
func (l *Locker[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
