package engine

import (
	"context"
	"testing"
	"time"
)

func TestLockTable_SerializesSameKey(t *testing.T) {
	lt := newLockTable()
	ctx := context.Background()

	release, err := lt.acquire(ctx, "m1", time.Second)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		r, err := lt.acquire(ctx, "m1", 2*time.Second)
		if err == nil {
			r()
		}
		done <- err
	}()

	// The second acquire must not get through while we hold the lock.
	select {
	case err := <-done:
		t.Fatalf("second acquire completed while lock held: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	release()
	if err := <-done; err != nil {
		t.Fatalf("second acquire after release: %v", err)
	}
}

func TestLockTable_TimesOut(t *testing.T) {
	lt := newLockTable()
	ctx := context.Background()

	release, err := lt.acquire(ctx, "m1", time.Second)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer release()

	if _, err := lt.acquire(ctx, "m1", 20*time.Millisecond); err != ErrLockTimeout {
		t.Errorf("got %v, want ErrLockTimeout", err)
	}
}

func TestLockTable_DistinctKeysIndependent(t *testing.T) {
	lt := newLockTable()
	ctx := context.Background()

	r1, err := lt.acquire(ctx, "m1", time.Second)
	if err != nil {
		t.Fatalf("acquire m1: %v", err)
	}
	defer r1()

	r2, err := lt.acquire(ctx, "m2", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire m2 blocked by m1: %v", err)
	}
	r2()
}

func TestLockTable_ContextCancel(t *testing.T) {
	lt := newLockTable()

	release, err := lt.acquire(context.Background(), "m1", time.Second)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := lt.acquire(ctx, "m1", time.Second); err == nil {
		t.Error("expected error from cancelled context")
	}
}
