package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"carebridge/internal/metrics"
	"carebridge/pkg/interfaces"
)

// Activity types recorded by the tracker; feature usage is "feature_used_<feature>"
const (
	ActivityLogin         = "login"
	ActivityLogout        = "logout"
	ActivityFeaturePrefix = "feature_used_"
)

// DefaultInactiveThreshold is how long a user may stay online before a sweep
// logs them out
const DefaultInactiveThreshold = 24 * time.Hour

// recentActivityCount is the number of activities included in Stats
const recentActivityCount = 10

var _ interfaces.ActivityRecorder = (*Tracker)(nil)

// userSession is the mutable per-user record, only touched under Tracker.mu
type userSession struct {
	activeSince  time.Time // zero while offline
	loginCount   int
	lastLogin    time.Time
	lastActivity time.Time
	timeSpent    time.Duration
	features     map[string]struct{}
	activities   *activityLog
}

func (s *userSession) online() bool {
	return !s.activeSince.IsZero()
}

// Stats is a point-in-time copy of one user's session record
type Stats struct {
	LoginCount       int        `json:"login_count"`
	LastLogin        *time.Time `json:"last_login"`
	LastActivity     *time.Time `json:"last_activity"`
	FeaturesUsed     []string   `json:"features_used"`
	TotalTimeSpent   float64    `json:"total_time_spent"` // seconds
	IsOnline         bool       `json:"is_online"`
	RecentActivities []Activity `json:"recent_activities"`
}

// Summary aggregates every tracked user
type Summary struct {
	TotalUsers  int              `json:"total_users"`
	ActiveUsers int              `json:"active_users"`
	UserStats   map[string]Stats `json:"user_stats"`
}

// Tracker records logins, logouts and feature usage per user.
// ARCHITECTURAL DISCOVERY: All state is volatile and process-local; records are
// created lazily on first write and never deleted
type Tracker struct {
	mu     sync.Mutex
	users  map[string]*userSession
	online int
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock replaces the wall clock, used by tests to simulate time
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the tracker's logger
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Tracker) { t.logger = logger.With().Str("component", "session").Logger() }
}

// NewTracker creates an empty tracker
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		users:  make(map[string]*userSession),
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordLogin marks the user online and counts the login
func (t *Tracker) RecordLogin(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	s := t.user(userID)
	if !s.online() {
		t.online++
	}
	s.activeSince = now
	s.loginCount++
	s.lastLogin = now
	s.lastActivity = now
	s.activities.append(Activity{
		UserID:    userID,
		Type:      ActivityLogin,
		Data:      map[string]interface{}{"timestamp": now.Format(time.RFC3339Nano)},
		Timestamp: now,
	})

	metrics.IncLogins()
	metrics.SetOnlineUsers(t.online)
	t.logger.Debug().Str("user_id", userID).Int("login_count", s.loginCount).Msg("user logged in")
}

// RecordLogout adds the elapsed online time and marks the user offline.
// It reports whether the user was online; logging out twice is a no-op.
func (t *Tracker) RecordLogout(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.logoutLocked(userID)
}

// RecordFeatureUsage adds feature to the user's feature set and logs an
// activity entry even when the feature was already known
func (t *Tracker) RecordFeatureUsage(userID, feature string, metadata map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	s := t.user(userID)
	s.features[feature] = struct{}{}
	s.lastActivity = now

	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	s.activities.append(Activity{
		UserID: userID,
		Type:   ActivityFeaturePrefix + feature,
		Data: map[string]interface{}{
			"feature":   feature,
			"metadata":  metadata,
			"timestamp": now.Format(time.RFC3339Nano),
		},
		Timestamp: now,
	})
}

// Stats returns a copy of the user's record. Unknown users get the zero
// snapshot and are not created.
func (t *Tracker) Stats(userID string) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.users[userID]
	if !ok {
		return Stats{FeaturesUsed: []string{}, RecentActivities: []Activity{}}
	}
	return s.snapshot()
}

// AllStats returns the stats of every tracked user
func (t *Tracker) AllStats() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := make(map[string]Stats, len(t.users))
	for id, s := range t.users {
		stats[id] = s.snapshot()
	}
	return Summary{
		TotalUsers:  len(t.users),
		ActiveUsers: t.online,
		UserStats:   stats,
	}
}

// ActiveUsers returns the number of users currently online
func (t *Tracker) ActiveUsers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online
}

// RecentActivity returns up to limit of the user's newest activities, newest
// last. A non-positive limit returns the whole log.
func (t *Tracker) RecentActivity(userID string, limit int) []Activity {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.users[userID]
	if !ok {
		return []Activity{}
	}
	if limit <= 0 {
		limit = s.activities.len()
	}
	return s.activities.last(limit)
}

// SweepInactive logs out every online user whose session started more than
// threshold ago and returns their ids in sorted order
func (t *Tracker) SweepInactive(threshold time.Duration) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-threshold)
	var swept []string
	for id, s := range t.users {
		if s.online() && s.activeSince.Before(cutoff) {
			swept = append(swept, id)
		}
	}
	sort.Strings(swept)

	for _, id := range swept {
		t.logoutLocked(id)
	}
	if len(swept) > 0 {
		t.logger.Info().Int("count", len(swept)).Msg("logged out inactive users")
	}
	return swept
}

// RunSweeper sweeps once immediately and then every interval until ctx ends
func (t *Tracker) RunSweeper(ctx context.Context, interval, threshold time.Duration) error {
	t.SweepInactive(threshold)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.SweepInactive(threshold)
		}
	}
}

// user returns the record for userID, creating it. Caller must hold t.mu.
func (t *Tracker) user(userID string) *userSession {
	s, ok := t.users[userID]
	if !ok {
		s = &userSession{
			features:   make(map[string]struct{}),
			activities: newActivityLog(maxActivities),
		}
		t.users[userID] = s
	}
	return s
}

// logoutLocked implements RecordLogout. Caller must hold t.mu.
func (t *Tracker) logoutLocked(userID string) bool {
	s, ok := t.users[userID]
	if !ok || !s.online() {
		return false
	}

	now := t.now().UTC()
	elapsed := now.Sub(s.activeSince)
	s.timeSpent += elapsed
	s.activeSince = time.Time{}
	t.online--
	s.activities.append(Activity{
		UserID: userID,
		Type:   ActivityLogout,
		Data: map[string]interface{}{
			"session_duration": elapsed.Seconds(),
			"timestamp":        now.Format(time.RFC3339Nano),
		},
		Timestamp: now,
	})

	metrics.SetOnlineUsers(t.online)
	t.logger.Debug().Str("user_id", userID).Dur("elapsed", elapsed).Msg("user logged out")
	return true
}

func (s *userSession) snapshot() Stats {
	features := make([]string, 0, len(s.features))
	for f := range s.features {
		features = append(features, f)
	}
	sort.Strings(features)

	stats := Stats{
		LoginCount:       s.loginCount,
		FeaturesUsed:     features,
		TotalTimeSpent:   s.timeSpent.Seconds(),
		IsOnline:         s.online(),
		RecentActivities: s.activities.last(recentActivityCount),
	}
	if !s.lastLogin.IsZero() {
		t := s.lastLogin
		stats.LastLogin = &t
	}
	if !s.lastActivity.IsZero() {
		t := s.lastActivity
		stats.LastActivity = &t
	}
	return stats
}
