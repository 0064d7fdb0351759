package redislock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLocker(t *testing.T) (Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, 2*time.Second), mr
}

func TestWithLockRunsCriticalSection(t *testing.T) {
	locker, _ := newTestLocker(t)

	ran := false
	err := locker.WithLock(context.Background(), "slot:a", func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if !ran {
		t.Fatal("critical section did not run")
	}
}

func TestWithLockPropagatesError(t *testing.T) {
	locker, _ := newTestLocker(t)

	want := errors.New("boom")
	err := locker.WithLock(context.Background(), "slot:a", func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}

func TestSecondHolderIsRejected(t *testing.T) {
	locker, _ := newTestLocker(t)

	err := locker.WithLock(context.Background(), "slot:a", func(ctx context.Context) error {
		return locker.WithLock(ctx, "slot:a", func(ctx context.Context) error {
			t.Fatal("nested acquisition must not run")
			return nil
		})
	})
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("err = %v, want ErrNotAcquired", err)
	}
}

func TestDifferentKeysDoNotContend(t *testing.T) {
	locker, _ := newTestLocker(t)

	err := locker.WithLock(context.Background(), "slot:a", func(ctx context.Context) error {
		return locker.WithLock(ctx, "slot:b", func(ctx context.Context) error {
			return nil
		})
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
}

func TestLockReleasedAfterSection(t *testing.T) {
	locker, _ := newTestLocker(t)

	for i := 0; i < 3; i++ {
		err := locker.WithLock(context.Background(), "slot:a", func(ctx context.Context) error {
			return nil
		})
		if err != nil {
			t.Fatalf("acquisition %d: %v", i, err)
		}
	}
}

func TestExpiredLeaseIsNotReleasedByOldHolder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := New(client, 50*time.Millisecond)

	err := locker.WithLock(context.Background(), "slot:a", func(ctx context.Context) error {
		// Simulate the lease expiring mid-section and another caller taking it.
		mr.FastForward(100 * time.Millisecond)
		if err := client.Set(context.Background(), "lock:slot:a", "someone-else", 0).Err(); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}

	val, err := client.Get(context.Background(), "lock:slot:a").Result()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "someone-else" {
		t.Fatalf("old holder released a lease it no longer owns, val = %q", val)
	}
}

func TestNoopLockerRuns(t *testing.T) {
	ran := false
	err := Noop().WithLock(context.Background(), "anything", func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("noop locker err = %v, ran = %v", err, ran)
	}
}
