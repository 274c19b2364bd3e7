package reminder

import "errors"

var (
	ErrInvalidTime      = errors.New("invalid time format, use HH:MM in 24-hour format")
	ErrInvalidRequest   = errors.New("patient, medication, dosage and phone number are required")
	ErrReminderNotFound = errors.New("reminder not found")
	ErrSchedulerStopped = errors.New("reminder scheduler stopped")
)
