package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T) (*SlidingWindow, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := New(5, 15*time.Minute)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllowsUnknownIdentity(t *testing.T) {
	l, _ := newTestLimiter(t)
	allowed, retry := l.Check("10.0.0.1")
	if !allowed || retry != 0 {
		t.Fatalf("expected fresh identity allowed, got allowed=%v retry=%d", allowed, retry)
	}
}

func TestDeniesAfterMaxFailures(t *testing.T) {
	l, now := newTestLimiter(t)

	for i := 0; i < 5; i++ {
		if allowed, _ := l.Check("10.0.0.5"); !allowed {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
		l.RecordFailure("10.0.0.5")
	}

	*now = now.Add(time.Minute)
	allowed, retry := l.Check("10.0.0.5")
	if allowed {
		t.Fatal("sixth attempt within the window should be denied")
	}
	if retry != 14*60 {
		t.Fatalf("expected retry after 840s, got %d", retry)
	}

	// Other identities are unaffected.
	if allowed, _ := l.Check("10.0.0.6"); !allowed {
		t.Fatal("unrelated identity should not be blocked")
	}
}

func TestRetryAfterRoundsUp(t *testing.T) {
	l, now := newTestLimiter(t)
	for i := 0; i < 5; i++ {
		l.RecordFailure("host")
	}
	*now = now.Add(30*time.Second + 100*time.Millisecond)
	_, retry := l.Check("host")
	if retry != 870 {
		t.Fatalf("expected ceil to 870s, got %d", retry)
	}
}

func TestWindowExpiryAllowsAgain(t *testing.T) {
	l, now := newTestLimiter(t)
	for i := 0; i < 5; i++ {
		l.RecordFailure("10.0.0.5")
	}
	if allowed, _ := l.Check("10.0.0.5"); allowed {
		t.Fatal("should be denied inside the window")
	}

	*now = now.Add(16 * time.Minute)
	if allowed, _ := l.Check("10.0.0.5"); !allowed {
		t.Fatal("should be allowed after the window expires")
	}

	// A failure after expiry starts a fresh window at count 1.
	l.RecordFailure("10.0.0.5")
	if allowed, _ := l.Check("10.0.0.5"); !allowed {
		t.Fatal("single failure in a fresh window should still allow")
	}
}

func TestResetClearsEntry(t *testing.T) {
	l, _ := newTestLimiter(t)
	for i := 0; i < 7; i++ {
		l.RecordFailure("10.0.0.5")
	}
	l.Reset("10.0.0.5")
	if allowed, _ := l.Check("10.0.0.5"); !allowed {
		t.Fatal("reset identity must be allowed regardless of prior count")
	}
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	l, now := newTestLimiter(t)
	l.RecordFailure("old")
	*now = now.Add(16 * time.Minute)
	l.RecordFailure("fresh")

	l.Sweep()

	if _, ok := l.shardFor("old").entries["old"]; ok {
		t.Fatal("expired entry should be swept")
	}
	if _, ok := l.shardFor("fresh").entries["fresh"]; !ok {
		t.Fatal("live entry must survive the sweep")
	}
}

func TestConcurrentFailuresSameIdentity(t *testing.T) {
	l := New(1000, 15*time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.RecordFailure("shared")
				l.Check("shared")
			}
		}()
	}
	wg.Wait()

	sh := l.shardFor("shared")
	sh.mu.Lock()
	count := sh.entries["shared"].count
	sh.mu.Unlock()
	if count != 500 {
		t.Fatalf("expected 500 recorded failures, got %d", count)
	}
}
