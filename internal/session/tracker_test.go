package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
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

func TestTracker_LoginLogoutAccumulatesTime(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(WithClock(clock.Now))

	tracker.RecordLogin("u1")
	if !tracker.Stats("u1").IsOnline {
		t.Fatal("user should be online after login")
	}

	clock.Advance(120 * time.Second)
	if !tracker.RecordLogout("u1") {
		t.Error("first logout should report the user was online")
	}

	stats := tracker.Stats("u1")
	if stats.IsOnline {
		t.Error("user should be offline after logout")
	}
	if stats.TotalTimeSpent < 120 {
		t.Errorf("expected at least 120s spent, got %v", stats.TotalTimeSpent)
	}
	if stats.LoginCount != 1 {
		t.Errorf("expected login count 1, got %d", stats.LoginCount)
	}

	// second logout is a no-op
	clock.Advance(time.Hour)
	if tracker.RecordLogout("u1") {
		t.Error("second logout should be a no-op")
	}
	if got := tracker.Stats("u1"); got.TotalTimeSpent != stats.TotalTimeSpent || len(got.RecentActivities) != 2 {
		t.Errorf("double logout changed state: %+v", got)
	}
}

func TestTracker_LogoutUnknownUserIsNoop(t *testing.T) {
	tracker := NewTracker()

	if tracker.RecordLogout("ghost") {
		t.Error("logout of unknown user should report false")
	}
	if summary := tracker.AllStats(); summary.TotalUsers != 0 {
		t.Errorf("logout must not create users, got %d", summary.TotalUsers)
	}
}

func TestTracker_LogoutActivityCarriesDuration(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(WithClock(clock.Now))

	tracker.RecordLogin("u1")
	clock.Advance(90 * time.Second)
	tracker.RecordLogout("u1")

	recent := tracker.RecentActivity("u1", 1)
	if len(recent) != 1 || recent[0].Type != ActivityLogout {
		t.Fatalf("expected logout as newest activity, got %+v", recent)
	}
	if d, _ := recent[0].Data["session_duration"].(float64); d != 90 {
		t.Errorf("expected session_duration 90, got %v", recent[0].Data["session_duration"])
	}
}

func TestTracker_FeatureUsageSetSemantics(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(WithClock(clock.Now))

	tracker.RecordFeatureUsage("u1", "quiz", map[string]interface{}{"score": 8})
	clock.Advance(time.Minute)
	tracker.RecordFeatureUsage("u1", "chat", nil)
	clock.Advance(time.Minute)
	tracker.RecordFeatureUsage("u1", "quiz", nil)

	stats := tracker.Stats("u1")
	if len(stats.FeaturesUsed) != 2 || stats.FeaturesUsed[0] != "chat" || stats.FeaturesUsed[1] != "quiz" {
		t.Errorf("expected sorted feature set [chat quiz], got %v", stats.FeaturesUsed)
	}
	if len(stats.RecentActivities) != 3 {
		t.Errorf("every usage should log an activity, got %d", len(stats.RecentActivities))
	}
	if stats.RecentActivities[2].Type != "feature_used_quiz" {
		t.Errorf("unexpected activity type %q", stats.RecentActivities[2].Type)
	}
	if stats.LastActivity == nil || !stats.LastActivity.Equal(clock.Now()) {
		t.Errorf("last activity should be bumped to now, got %v", stats.LastActivity)
	}
	if stats.LoginCount != 0 || stats.IsOnline {
		t.Error("feature usage must not log the user in")
	}
}

func TestTracker_ActivityLogBounded(t *testing.T) {
	tracker := NewTracker()

	for i := 0; i < 150; i++ {
		tracker.RecordFeatureUsage("u1", fmt.Sprintf("f%d", i), nil)
	}

	all := tracker.RecentActivity("u1", 0)
	if len(all) != maxActivities {
		t.Fatalf("expected %d activities, got %d", maxActivities, len(all))
	}
	if all[0].Type != "feature_used_f50" {
		t.Errorf("oldest 50 entries should be evicted, first is %q", all[0].Type)
	}
	if all[len(all)-1].Type != "feature_used_f149" {
		t.Errorf("newest should be last, got %q", all[len(all)-1].Type)
	}

	recent := tracker.Stats("u1").RecentActivities
	if len(recent) != 10 || recent[9].Type != "feature_used_f149" || recent[0].Type != "feature_used_f140" {
		t.Errorf("stats should carry the 10 newest, newest last: %v .. %v", recent[0].Type, recent[len(recent)-1].Type)
	}
}

func TestTracker_StatsIsCopyAndPure(t *testing.T) {
	tracker := NewTracker()

	empty := tracker.Stats("nobody")
	if empty.LoginCount != 0 || empty.IsOnline || len(empty.FeaturesUsed) != 0 {
		t.Errorf("unknown user should yield zero snapshot, got %+v", empty)
	}
	if tracker.AllStats().TotalUsers != 0 {
		t.Error("Stats must not create users")
	}

	tracker.RecordFeatureUsage("u1", "chat", nil)
	stats := tracker.Stats("u1")
	stats.FeaturesUsed[0] = "mutated"
	stats.RecentActivities[0].Type = "mutated"

	again := tracker.Stats("u1")
	if again.FeaturesUsed[0] != "chat" || again.RecentActivities[0].Type != "feature_used_chat" {
		t.Error("snapshot must not alias tracker state")
	}
}

func TestTracker_SweepInactive(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(WithClock(clock.Now))

	tracker.RecordLogin("stale")
	clock.Advance(23 * time.Hour)
	tracker.RecordLogin("fresh")
	clock.Advance(2 * time.Hour)

	swept := tracker.SweepInactive(DefaultInactiveThreshold)
	if len(swept) != 1 || swept[0] != "stale" {
		t.Fatalf("expected only stale swept, got %v", swept)
	}
	if tracker.Stats("stale").IsOnline {
		t.Error("stale user should be offline")
	}
	if got := tracker.Stats("stale").TotalTimeSpent; got != (25 * time.Hour).Seconds() {
		t.Errorf("sweep should account elapsed time, got %v", got)
	}
	if !tracker.Stats("fresh").IsOnline {
		t.Error("fresh user should stay online")
	}
	if tracker.ActiveUsers() != 1 {
		t.Errorf("expected 1 active user, got %d", tracker.ActiveUsers())
	}
}

func TestTracker_RunSweeperSweepsAtStartup(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(WithClock(clock.Now))
	tracker.RecordLogin("u1")
	clock.Advance(48 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tracker.RunSweeper(ctx, time.Hour, DefaultInactiveThreshold) }()

	deadline := time.Now().Add(2 * time.Second)
	for tracker.ActiveUsers() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if tracker.ActiveUsers() != 0 {
		t.Error("startup sweep should log out the stale user")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunSweeper returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("RunSweeper did not stop on cancel")
	}
}

func TestTracker_AllStats(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordLogin("a")
	tracker.RecordLogin("b")
	tracker.RecordLogout("b")
	tracker.RecordFeatureUsage("c", "quiz", nil)

	summary := tracker.AllStats()
	if summary.TotalUsers != 3 || summary.ActiveUsers != 1 {
		t.Errorf("expected 3 users / 1 active, got %d / %d", summary.TotalUsers, summary.ActiveUsers)
	}
	if !summary.UserStats["a"].IsOnline || summary.UserStats["b"].IsOnline {
		t.Error("online flags not reflected in summary")
	}
}

func TestTracker_ReloginCountsOnlineOnce(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordLogin("u1")
	tracker.RecordLogin("u1")

	if tracker.ActiveUsers() != 1 {
		t.Errorf("repeated login should count one online user, got %d", tracker.ActiveUsers())
	}
	if tracker.Stats("u1").LoginCount != 2 {
		t.Error("every login is counted")
	}
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	tracker := NewTracker()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("u%d", n%4)
			tracker.RecordLogin(id)
			tracker.RecordFeatureUsage(id, "chat", nil)
			_ = tracker.Stats(id)
			_ = tracker.AllStats()
			tracker.RecordLogout(id)
		}(i)
	}
	wg.Wait()

	if summary := tracker.AllStats(); summary.TotalUsers != 4 {
		t.Errorf("expected 4 users, got %d", summary.TotalUsers)
	}
}

func TestActivityLog_Ring(t *testing.T) {
	log := newActivityLog(3)
	for i := 0; i < 5; i++ {
		log.append(Activity{Type: fmt.Sprint(i)})
	}
	got := log.last(10)
	if len(got) != 3 || got[0].Type != "2" || got[2].Type != "4" {
		t.Errorf("unexpected ring contents %+v", got)
	}
	if last := log.last(1); last[0].Type != "4" {
		t.Errorf("expected newest 4, got %s", last[0].Type)
	}
}
