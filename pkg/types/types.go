package types

import (
	"time"
)

// Collection names shared by the document store and its callers
const (
	CollectionUsers               = "users"
	CollectionChatHistory         = "chat_history"
	CollectionQuizResults         = "quiz_results"
	CollectionMedicationReminders = "medication_reminders"
	CollectionUserAnalytics       = "user_analytics"
	CollectionNotifications       = "notifications"
)

// Document is a schemaless record body as stored in the document store.
// ARCHITECTURAL DISCOVERY: map[string]interface{} keeps the store generic while
// remaining JSON compatible for the SQLite json1 functions
type Document map[string]interface{}

// Record is a stored document together with the columns the store manages
type Record struct {
	ID         string     `json:"id"`
	Collection string     `json:"collection"`
	UserID     string     `json:"user_id,omitempty"`
	Data       Document   `json:"data"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// String returns a top-level string field of the record body, or "".
func (r *Record) String(field string) string {
	if r == nil || r.Data == nil {
		return ""
	}
	s, _ := r.Data[field].(string)
	return s
}

// Bool returns a top-level boolean field of the record body.
func (r *Record) Bool(field string) bool {
	if r == nil || r.Data == nil {
		return false
	}
	b, _ := r.Data[field].(bool)
	return b
}

// Int returns a top-level numeric field of the record body. JSON numbers
// decode as float64, so the value is truncated.
func (r *Record) Int(field string) int {
	if r == nil || r.Data == nil {
		return 0
	}
	switch v := r.Data[field].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

// Filter selects records within one collection.
// FUNCTIONAL DISCOVERY: Zero values mean "no constraint", so an empty Filter
// matches the whole collection
type Filter struct {
	ID            string
	UserID        string
	Fields        map[string]interface{} // equality on top-level JSON fields
	CreatedBefore time.Time
	ExpiresBefore time.Time
}

// FindOptions controls ordering and paging of Find
type FindOptions struct {
	Limit       int
	OldestFirst bool
}

// Notification is a persisted user notification
type Notification struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data"`
	IsRead    bool                   `json:"is_read"`
	CreatedAt time.Time              `json:"created_at"`
	ExpiresAt *time.Time             `json:"expires_at,omitempty"`
}

// Reminder is a scheduled medication reminder
type Reminder struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	PatientName    string    `json:"patient_name"`
	MedicationName string    `json:"medication_name"`
	Dosage         string    `json:"dosage"`
	SendTime       time.Time `json:"send_time"`
	PhoneNumber    string    `json:"phone_number"`
	JobID          string    `json:"job_id"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// User is the account record exposed to API clients (never the password hash)
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}
