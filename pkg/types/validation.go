package types

import (
	"regexp"
)

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// for better performance in high-frequency validation scenarios
var (
	userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	roomRegex   = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	fieldRegex  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// IsValidUserID checks if a user ID meets format requirements.
// UUIDs and 24 character hex object ids both qualify.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 64 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidRoomName checks a room name used by join_room / leave_room
func IsValidRoomName(room string) bool {
	if len(room) < 1 || len(room) > 64 {
		return false
	}
	return roomRegex.MatchString(room)
}

// IsValidFieldName guards JSON paths built from filter keys
// TECHNICAL DISCOVERY: Keys end up inside json_extract paths, so they must be
// plain identifiers
func IsValidFieldName(name string) bool {
	return len(name) <= 64 && fieldRegex.MatchString(name)
}

// Validate checks every key of the filter's field map
func (f Filter) Validate() error {
	for k := range f.Fields {
		if !IsValidFieldName(k) {
			return ErrInvalidFieldName
		}
	}
	return nil
}

// IsValidCollection checks a collection name; collections follow the same
// identifier rules as filter fields
func IsValidCollection(name string) bool {
	return IsValidFieldName(name)
}
