package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized access")
)
