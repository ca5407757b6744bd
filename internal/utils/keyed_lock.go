package utils

import (
	"context"
	"sync"
)

type keyedLock struct {
	sem  chan struct{}
	refs int
}

// KeyedLocks hands out one mutex per integer key. Entries are dropped once nobody holds or waits for them.
type KeyedLocks struct {
	mu    sync.Mutex
	locks map[int]*keyedLock
}

func NewKeyedLocks() *KeyedLocks {
	return &KeyedLocks{locks: map[int]*keyedLock{}}
}

// Lock blocks until the key is free or ctx ends.
func (l *KeyedLocks) Lock(ctx context.Context, key int) (unlock func(), err error) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &keyedLock{sem: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
		return func() {
			<-entry.sem
			l.release(key, entry)
		}, nil
	case <-ctx.Done():
		l.release(key, entry)
		return nil, ctx.Err()
	}
}

func (l *KeyedLocks) release(key int, entry *keyedLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
}

// Len returns the number of keys currently held or waited for.
func (l *KeyedLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
