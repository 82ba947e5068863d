package services

import (
	"context"
	"sync"
)

// KeyedLock serializes work per key (a session id, or an interview id plus session type).
// Waiting honours context cancellation. Entries are dropped once no holder or waiter remains.
type KeyedLock struct {
	mutex sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	slot chan struct{}
	refs int
}

func NewKeyedLock() *KeyedLock {
	return &KeyedLock{locks: make(map[string]*keyedEntry)}
}

// Acquire blocks until key is free or ctx is done. The returned release must be called exactly once.
func (l *KeyedLock) Acquire(ctx context.Context, key string) (release func(), err error) {
	l.mutex.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &keyedEntry{slot: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	l.mutex.Unlock()

	select {
	case entry.slot <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.slot
			l.drop(key, entry)
		})
	}, nil
}

func (l *KeyedLock) drop(key string, entry *keyedEntry) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (l *KeyedLock) Len() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.locks)
}
