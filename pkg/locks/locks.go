// Package locks serializes work on a shared key, such as one execution or one document.
package locks

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAcquired is returned when a lock could not be obtained before the wait expired.
var ErrNotAcquired = errors.New("lock not acquired")

// Unlock releases a held lock.
type Unlock func(ctx context.Context) error

// Locker grants exclusive ownership of a key. Lock blocks until the key is
// free or the context is done.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

type memoryEntry struct {
	slot chan struct{}
	refs int
}

// MemoryLocker is an in-process keyed mutex.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{entries: make(map[string]*memoryEntry)}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()

	entry, ok := l.entries[key]
	if !ok {
		entry = &memoryEntry{slot: make(chan struct{}, 1)}
		l.entries[key] = entry
	}

	entry.refs++
	l.mu.Unlock()

	select {
	case entry.slot <- struct{}{}:
	case <-ctx.Done():
		l.release(key, entry)

		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}

	var once sync.Once

	return func(context.Context) error {
		once.Do(func() {
			<-entry.slot
			l.release(key, entry)
		})

		return nil
	}, nil
}

func (l *MemoryLocker) release(key string, entry *memoryEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}
