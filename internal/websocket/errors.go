package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timeout")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Registry-related errors
var (
	ErrNilConnection = errors.New("connection cannot be nil")
	ErrNotRegistered = errors.New("connection is not registered")
)

// Handler-related errors
var (
	ErrTokenMismatch = errors.New("token does not belong to the requested user")
)
