package database

import "errors"

var (
	ErrManagerClosed = errors.New("database manager is closed")
	ErrWriteTimeout  = errors.New("write operation timeout")
	// ErrDuplicate reports a unique constraint violation, e.g. a reused email
	ErrDuplicate = errors.New("duplicate document")
)
