package ratelimit

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLimiter_AuthWindow(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))

	for i := 0; i < 10; i++ {
		if err := l.Check("u1", CategoryAuth, ""); err != nil {
			t.Fatalf("request %d should be accepted: %v", i+1, err)
		}
		clock.Advance(time.Second)
	}

	err := l.Check("u1", CategoryAuth, "")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("11th request should be rejected, got %v", err)
	}
	var exceeded *ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected *ExceededError, got %T", err)
	}
	if exceeded.Scope != ScopeUser || exceeded.Limit != 10 || exceeded.Window != 300*time.Second {
		t.Errorf("unexpected rejection details: %+v", exceeded)
	}
	// oldest entry was recorded 10s ago
	if exceeded.RetryAfter != 290*time.Second {
		t.Errorf("expected retry after 290s, got %v", exceeded.RetryAfter)
	}

	clock.Advance(301 * time.Second)
	if err := l.Check("u1", CategoryAuth, ""); err != nil {
		t.Errorf("request after window should be accepted: %v", err)
	}
}

func TestLimiter_RejectionDoesNotRecord(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now), WithLimits(map[string]Limit{"tiny": {Requests: 1, Window: time.Minute}}))

	if err := l.Check("u1", "tiny", ""); err != nil {
		t.Fatalf("first request: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := l.Check("u1", "tiny", ""); err == nil {
			t.Fatal("expected rejection")
		}
	}
	if got := l.Status("u1", "tiny").Current; got != 1 {
		t.Errorf("rejections must not be recorded, current=%d", got)
	}

	clock.Advance(time.Minute + time.Second)
	if err := l.Check("u1", "tiny", ""); err != nil {
		t.Errorf("expected acceptance after window: %v", err)
	}
}

func TestLimiter_StatusIsPureRead(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))

	for i := 0; i < 19; i++ {
		_ = l.Check("alice", CategoryQuiz, "")
	}
	for i := 0; i < 50; i++ {
		_ = l.Status("alice", CategoryQuiz)
		_ = l.Status("nobody", CategoryQuiz)
	}
	if err := l.Check("alice", CategoryQuiz, ""); err != nil {
		t.Errorf("status calls must not consume budget: %v", err)
	}
	if stats := l.Stats(); stats.TrackedSubjects != 1 {
		t.Errorf("status must not create windows, tracked=%d", stats.TrackedSubjects)
	}
}

func TestLimiter_QuizEndToEnd(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))

	for i := 0; i < 20; i++ {
		if err := l.Check("alice", CategoryQuiz, ""); err != nil {
			t.Fatalf("call %d rejected: %v", i+1, err)
		}
	}

	status := l.Status("alice", CategoryQuiz)
	if status.Current != 20 || status.Remaining != 0 || status.Max != 20 || status.WindowSeconds != 3600 {
		t.Errorf("unexpected status after 20 calls: %+v", status)
	}
	if !status.ResetTime.Equal(clock.Now().Add(time.Hour)) {
		t.Errorf("unexpected reset time %v", status.ResetTime)
	}

	if err := l.Check("alice", CategoryQuiz, ""); !errors.Is(err, ErrRateLimited) {
		t.Errorf("21st call should be rejected, got %v", err)
	}
	if status := l.Status("alice", CategoryQuiz); status.Remaining != 0 {
		t.Errorf("expected remaining=0, got %d", status.Remaining)
	}
}

func TestLimiter_IndependentWindows(t *testing.T) {
	l := New(WithLimits(map[string]Limit{"one": {Requests: 1, Window: time.Hour}}))

	if err := l.Check("u1", "one", ""); err != nil {
		t.Fatal(err)
	}
	if err := l.Check("u2", "one", ""); err != nil {
		t.Errorf("other subject should have its own window: %v", err)
	}
	if err := l.Check("u1", CategoryChat, ""); err != nil {
		t.Errorf("other category should have its own window: %v", err)
	}
	if err := l.Check("", "one", "10.0.0.1"); err != nil {
		t.Errorf("address table is independent from subject table: %v", err)
	}
}

func TestLimiter_UnknownCategoryUsesGeneral(t *testing.T) {
	l := New()

	_ = l.Check("u1", "no-such-category", "")
	status := l.Status("u1", CategoryGeneral)
	if status.Current != 1 || status.Max != 100 {
		t.Errorf("expected unknown category to count against general, got %+v", status)
	}
	if got := l.Status("u1", "also-unknown"); got.Category != CategoryGeneral {
		t.Errorf("status should resolve to general, got %q", got.Category)
	}
}

func TestLimiter_SubjectFailureShortCircuitsAddress(t *testing.T) {
	l := New(WithLimits(map[string]Limit{"one": {Requests: 1, Window: time.Hour}}))

	if err := l.Check("u1", "one", "10.0.0.1"); err != nil {
		t.Fatal(err)
	}
	// u1 is exhausted: the address must not be charged
	var exceeded *ExceededError
	if err := l.Check("u1", "one", "10.0.0.2"); !errors.As(err, &exceeded) || exceeded.Scope != ScopeUser {
		t.Fatalf("expected user-scoped rejection, got %v", err)
	}
	if err := l.Check("u2", "one", "10.0.0.2"); err != nil {
		t.Errorf("address 10.0.0.2 should still have budget: %v", err)
	}

	// both given: subject passes, address fails
	if err := l.Check("u3", "one", "10.0.0.1"); !errors.As(err, &exceeded) || exceeded.Scope != ScopeAddress {
		t.Errorf("expected address-scoped rejection, got %v", err)
	}
}

func TestLimiter_CleanupDropsExpiredWindows(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))

	_ = l.Check("u1", CategoryAuth, "10.0.0.1")
	_ = l.Check("u2", CategoryChat, "")

	clock.Advance(301 * time.Second)
	if n := l.Cleanup(); n != 2 {
		t.Errorf("expected auth windows for subject and address removed, got %d", n)
	}
	stats := l.Stats()
	if stats.TrackedSubjects != 1 || stats.TrackedAddresses != 0 {
		t.Errorf("unexpected stats after cleanup: %+v", stats)
	}
}

func TestLimiter_ConcurrentChecks(t *testing.T) {
	l := New(WithLimits(map[string]Limit{"burst": {Requests: 50, Window: time.Hour}}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("u1", "burst", "") == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 50 {
		t.Errorf("expected exactly 50 accepted, got %d", accepted)
	}
}
