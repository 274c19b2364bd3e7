package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"carebridge/internal/metrics"
)

// Request categories with built-in limits
const (
	CategoryAuth    = "auth"
	CategoryChat    = "chat"
	CategoryQuiz    = "quiz"
	CategoryGeneral = "general"
)

// Limit is the budget of one category: Requests per sliding Window
type Limit struct {
	Requests int           `json:"requests" yaml:"requests"`
	Window   time.Duration `json:"window" yaml:"window"`
}

// DefaultLimits returns the built-in category table
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		CategoryAuth:    {Requests: 10, Window: 300 * time.Second},
		CategoryChat:    {Requests: 50, Window: time.Hour},
		CategoryQuiz:    {Requests: 20, Window: time.Hour},
		CategoryGeneral: {Requests: 100, Window: time.Hour},
	}
}

// windowKey identifies one sliding window
type windowKey struct {
	id       string
	category string
}

// Limiter implements sliding-window rate limiting keyed by (subject, category)
// and, independently, by (network address, category).
// ARCHITECTURAL DISCOVERY: Each window is an ordered slice of acceptance times,
// oldest first, so pruning only ever trims the front
type Limiter struct {
	mu        sync.Mutex
	limits    map[string]Limit
	subjects  map[windowKey][]time.Time
	addresses map[windowKey][]time.Time
	now       func() time.Time
	logger    zerolog.Logger
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock replaces the wall clock, used by tests to simulate time
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the limiter's logger
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Limiter) { l.logger = logger.With().Str("component", "ratelimit").Logger() }
}

// WithLimits overrides category limits; categories not named keep their defaults
func WithLimits(limits map[string]Limit) Option {
	return func(l *Limiter) {
		for category, limit := range limits {
			l.limits[category] = limit
		}
	}
}

// New creates a limiter with the default category table
func New(opts ...Option) *Limiter {
	l := &Limiter{
		limits:    DefaultLimits(),
		subjects:  make(map[windowKey][]time.Time),
		addresses: make(map[windowKey][]time.Time),
		now:       time.Now,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records one request for category. An empty subjectID or address skips
// that table. The subject is checked first and a rejection there leaves the
// address window untouched.
func (l *Limiter) Check(subjectID, category, address string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	category, limit := l.resolve(category)
	now := l.now()

	if subjectID != "" {
		if err := l.admit(l.subjects, windowKey{subjectID, category}, limit, now); err != nil {
			err.Scope, err.Category = ScopeUser, category
			l.reject(err, subjectID)
			return err
		}
	}

	if address != "" {
		if err := l.admit(l.addresses, windowKey{address, category}, limit, now); err != nil {
			err.Scope, err.Category = ScopeAddress, category
			l.reject(err, address)
			return err
		}
	}

	return nil
}

// Status reports a subject's window for category without recording anything
func (l *Limiter) Status(subjectID, category string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	category, limit := l.resolve(category)
	now := l.now()

	current := countLive(l.subjects[windowKey{subjectID, category}], now.Add(-limit.Window))
	remaining := limit.Requests - current
	if remaining < 0 {
		remaining = 0
	}

	return Status{
		Category:      category,
		Current:       current,
		Max:           limit.Requests,
		WindowSeconds: int(limit.Window / time.Second),
		Remaining:     remaining,
		ResetTime:     now.Add(limit.Window),
	}
}

// Stats summarises the tracked windows
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	limits := make(map[string]Limit, len(l.limits))
	for k, v := range l.limits {
		limits[k] = v
	}
	return Stats{
		TrackedSubjects:  len(l.subjects),
		TrackedAddresses: len(l.addresses),
		Limits:           limits,
	}
}

// Cleanup drops every window whose entries have all expired and returns how
// many were removed.
// ARCHITECTURAL DISCOVERY: Prevent memory leaks by removing stale client state
func (l *Limiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for _, table := range []map[windowKey][]time.Time{l.subjects, l.addresses} {
		for key, times := range table {
			limit := l.limits[key.category]
			if countLive(times, now.Add(-limit.Window)) == 0 {
				delete(table, key)
				removed++
			}
		}
	}
	return removed
}

// RunCleanup calls Cleanup every interval until ctx is done
func (l *Limiter) RunCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := l.Cleanup(); n > 0 {
				l.logger.Debug().Int("removed", n).Msg("pruned idle rate limit windows")
			}
		}
	}
}

// resolve maps unknown categories onto general
func (l *Limiter) resolve(category string) (string, Limit) {
	if limit, ok := l.limits[category]; ok {
		return category, limit
	}
	return CategoryGeneral, l.limits[CategoryGeneral]
}

// admit prunes the window and appends now when there is room.
// Caller must hold l.mu.
func (l *Limiter) admit(table map[windowKey][]time.Time, key windowKey, limit Limit, now time.Time) *ExceededError {
	cutoff := now.Add(-limit.Window)
	times := table[key]

	// drop expired timestamps from the front
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	times = times[i:]

	if len(times) >= limit.Requests {
		table[key] = times
		retry := time.Duration(0)
		if len(times) > 0 {
			retry = times[0].Add(limit.Window).Sub(now)
		}
		return &ExceededError{
			Limit:      limit.Requests,
			Window:     limit.Window,
			RetryAfter: retry,
		}
	}

	table[key] = append(times, now)
	return nil
}

func (l *Limiter) reject(err *ExceededError, id string) {
	metrics.IncRateLimitRejection(err.Category, err.Scope)
	l.logger.Info().
		Str("scope", err.Scope).
		Str("id", id).
		Str("category", err.Category).
		Int("limit", err.Limit).
		Msg("rate limit exceeded")
}

// countLive counts timestamps at or after cutoff without modifying times
func countLive(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, t := range times {
		if !t.Before(cutoff) {
			n++
		}
	}
	return n
}
