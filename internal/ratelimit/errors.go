package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimited matches every *ExceededError via errors.Is
var ErrRateLimited = errors.New("rate limit exceeded")

// Scopes of a rejection
const (
	ScopeUser    = "user"
	ScopeAddress = "address"
)

// ExceededError is returned by Check when a window is full.
// FUNCTIONAL DISCOVERY: Callers render a retry hint from Limit, Window and
// RetryAfter; the limiter itself never retries
type ExceededError struct {
	Scope      string
	Category   string
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (%s): %d requests per %s",
		e.Scope, e.Category, e.Limit, e.Window)
}

// Is reports ErrRateLimited as a match
func (e *ExceededError) Is(target error) bool {
	return target == ErrRateLimited
}
