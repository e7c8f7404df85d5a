package engine

import (
	"context"
	"sync"
	"time"
)

// lockTable hands out one lock per market id so trades against the same
// market serialize while unrelated markets proceed in parallel. Acquire
// is bounded: a waiter times out with ErrLockTimeout rather than queueing
// forever behind a stuck operation.
type lockTable struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{sems: make(map[string]chan struct{})}
}

// acquire blocks until the key's lock is held, the timeout elapses, or the
// context is cancelled. On success the returned release function must be
// called exactly once.
func (t *lockTable) acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	t.mu.Lock()
	sem, ok := t.sems[key]
	if !ok {
		sem = make(chan struct{}, 1)
		t.sems[key] = sem
	}
	t.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrLockTimeout
	}
}
