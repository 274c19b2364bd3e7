package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidUserID     = errors.New("user ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidRoomName   = errors.New("room name must be 1-64 characters, alphanumeric + underscore/hyphen/dot only")
	ErrInvalidFieldName  = errors.New("filter field must be alphanumeric + underscore")
	ErrInvalidCollection = errors.New("collection name must be alphanumeric + underscore")
)
