package lock

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
)

func newTestRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	log := logrus.New()
	log.SetOutput(io.Discard)

	l, err := NewRedisLocker(context.Background(), mr.Addr(), ttl, log)
	if err != nil {
		t.Fatalf("Failed to create Redis locker: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, mr
}

func TestRedisLocker_Exclusive(t *testing.T) {
	l, mr := newTestRedisLocker(t, 10*time.Second)

	unlock, err := l.Lock(context.Background(), "contract-1")
	if err != nil {
		t.Fatalf("Failed to lock: %v", err)
	}
	if !mr.Exists(keyPrefix + "contract-1") {
		t.Fatal("Expected the lock key to be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "contract-1"); !errors.Is(err, ErrLockTimeout) {
		t.Errorf("Expected ErrLockTimeout while held, got %v", err)
	}

	unlock()
	if mr.Exists(keyPrefix + "contract-1") {
		t.Error("Expected the lock key to be deleted on unlock")
	}
}

func TestRedisLocker_WaitsForRelease(t *testing.T) {
	l, _ := newTestRedisLocker(t, 10*time.Second)

	unlock, err := l.Lock(context.Background(), "contract-2")
	if err != nil {
		t.Fatalf("Failed to lock: %v", err)
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	again, err := l.Lock(ctx, "contract-2")
	if err != nil {
		t.Fatalf("Expected the lock once released, got %v", err)
	}
	again()
}

func TestRedisLocker_ReleaseKeepsNewHolder(t *testing.T) {
	ttl := time.Second
	l, mr := newTestRedisLocker(t, ttl)

	stale, err := l.Lock(context.Background(), "contract-3")
	if err != nil {
		t.Fatalf("Failed to lock: %v", err)
	}
	mr.FastForward(2 * ttl) // first holder's lease expires

	current, err := l.Lock(context.Background(), "contract-3")
	if err != nil {
		t.Fatalf("Expected the expired lock to be taken over, got %v", err)
	}
	held, err := mr.Get(keyPrefix + "contract-3")
	if err != nil {
		t.Fatalf("Failed to read lock key: %v", err)
	}

	stale()
	got, err := mr.Get(keyPrefix + "contract-3")
	if err != nil || got != held {
		t.Errorf("A stale unlock must not release the new holder's lock, key is %q (%v)", got, err)
	}

	current()
	if mr.Exists(keyPrefix + "contract-3") {
		t.Error("Expected the lock key to be deleted by its holder")
	}
}
