package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bsm/redislock"
)

type fakeHeldLock struct {
	mu         sync.Mutex
	refreshes  int
	releases   int
	refreshErr error
	ttls       []time.Duration
}

func (l *fakeHeldLock) Refresh(ctx context.Context, ttl time.Duration, opt *redislock.Options) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshes++
	l.ttls = append(l.ttls, ttl)
	return l.refreshErr
}

func (l *fakeHeldLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	return nil
}

func (l *fakeHeldLock) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refreshes, l.releases
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHoldLockRefreshesUntilReleased(t *testing.T) {
	lock := &fakeHeldLock{}
	release := holdLock(lock, 20*time.Millisecond)

	waitFor(t, func() bool {
		refreshes, _ := lock.counts()
		return refreshes >= 2
	})
	release()
	release()

	refreshes, releases := lock.counts()
	if releases != 1 {
		t.Fatalf("releases = %d, want 1", releases)
	}
	time.Sleep(40 * time.Millisecond)
	if after, _ := lock.counts(); after != refreshes {
		t.Fatalf("refreshed after release: %d -> %d", refreshes, after)
	}
	for _, ttl := range lock.ttls {
		if ttl != 20*time.Millisecond {
			t.Fatalf("refresh ttl = %v", ttl)
		}
	}
}

func TestHoldLockStopsRefreshingWhenLost(t *testing.T) {
	lock := &fakeHeldLock{refreshErr: errors.New("lost")}
	release := holdLock(lock, 10*time.Millisecond)
	defer release()

	waitFor(t, func() bool {
		refreshes, _ := lock.counts()
		return refreshes >= 1
	})
	time.Sleep(50 * time.Millisecond)
	if refreshes, _ := lock.counts(); refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1 after the lock was lost", refreshes)
	}
}
