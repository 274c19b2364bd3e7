package ratelimit

import "time"

// Status is a read-only view of one subject's window
type Status struct {
	Category      string    `json:"category"`
	Current       int       `json:"current"`
	Max           int       `json:"max"`
	WindowSeconds int       `json:"window_seconds"`
	Remaining     int       `json:"remaining"`
	ResetTime     time.Time `json:"reset_time"`
}

// Stats summarises the limiter for the admin endpoint
type Stats struct {
	TrackedSubjects  int              `json:"tracked_subjects"`
	TrackedAddresses int              `json:"tracked_addresses"`
	Limits           map[string]Limit `json:"limits"`
}
