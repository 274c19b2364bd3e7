// Package reminder schedules medication reminders delivered by SMS and as
// user notifications.
package reminder

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"carebridge/internal/metrics"
	"carebridge/internal/notify"
	"carebridge/internal/sms"
	"carebridge/pkg/interfaces"
	"carebridge/pkg/types"
)

// Reminder states stored in the document body
const (
	StatusScheduled = "scheduled"
	StatusSent      = "sent"
	StatusFailed    = "failed"
	StatusMissed    = "missed"
)

// sendTimeout bounds one delivery attempt
const sendTimeout = 30 * time.Second

// Notifications creates persisted user notifications
type Notifications interface {
	Notify(ctx context.Context, userID, notificationType, title, message string, data map[string]interface{}) (*types.Notification, error)
}

// Request is the body of a schedule call; SendTime is "HH:MM" local time
type Request struct {
	PatientName    string `json:"patient_name"`
	MedicationName string `json:"medication_name"`
	Dosage         string `json:"dosage"`
	SendTime       string `json:"send_time"`
	PhoneNumber    string `json:"phone_number"`
}

func (r Request) validate() error {
	for _, v := range []string{r.PatientName, r.MedicationName, r.Dosage, r.PhoneNumber} {
		if strings.TrimSpace(v) == "" {
			return ErrInvalidRequest
		}
	}
	return nil
}

// job is an armed reminder timer
type job struct {
	timer      *time.Timer
	reminderID string
	userID     string
}

// jobKey scopes a job id to its owner so users cannot replace each other's
// reminders
type jobKey struct {
	userID string
	jobID  string
}

// Scheduler arms one timer per pending reminder.
// ARCHITECTURAL DISCOVERY: Timers are process-local; Restore re-arms them from
// the store after a restart
type Scheduler struct {
	store    interfaces.DocumentStore
	sender   sms.Sender
	notes    Notifications
	location *time.Location
	now      func() time.Time
	logger   zerolog.Logger

	mu      sync.Mutex
	jobs    map[jobKey]*job
	stopped bool
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler interpreting send times in location
// (time.Local when nil). notes may be nil.
func NewScheduler(store interfaces.DocumentStore, sender sms.Sender, notes Notifications, location *time.Location, logger zerolog.Logger) *Scheduler {
	if location == nil {
		location = time.Local
	}
	return &Scheduler{
		store:    store,
		sender:   sender,
		notes:    notes,
		location: location,
		now:      time.Now,
		logger:   logger.With().Str("component", "reminder").Logger(),
		jobs:     make(map[jobKey]*job),
	}
}

// ParseClock parses "HH:MM" in 24-hour format
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, ErrInvalidTime
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, ErrInvalidTime
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, ErrInvalidTime
	}
	return hour, minute, nil
}

// NextOccurrence returns today's hour:minute in now's location, or tomorrow's
// when that moment has already passed
func NextOccurrence(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if next.Before(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// JobID names the timer for a patient and send time; scheduling the same
// patient for the same moment replaces the earlier reminder
func JobID(patientName string, sendAt time.Time) string {
	return fmt.Sprintf("sms_%s_%d", patientName, sendAt.Unix())
}

// Schedule persists a reminder for userID and arms its timer
func (s *Scheduler) Schedule(ctx context.Context, userID string, req Request) (*types.Reminder, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	hour, minute, err := ParseClock(req.SendTime)
	if err != nil {
		return nil, err
	}
	if s.isStopped() {
		return nil, ErrSchedulerStopped
	}

	now := s.now().In(s.location)
	sendAt := NextOccurrence(now, hour, minute)
	jobID := JobID(req.PatientName, sendAt)

	// Replace any earlier reminder under the same job id
	s.cancel(userID, jobID)
	if _, err := s.store.Delete(ctx, types.CollectionMedicationReminders, types.Filter{
		UserID: userID,
		Fields: map[string]interface{}{"job_id": jobID},
	}); err != nil {
		return nil, fmt.Errorf("failed to replace reminder: %w", err)
	}

	createdAt := s.now().UTC()
	id, err := s.store.Insert(ctx, types.CollectionMedicationReminders, types.Document{
		"user_id":         userID,
		"patient_name":    req.PatientName,
		"medication_name": req.MedicationName,
		"dosage":          req.Dosage,
		"phone_number":    req.PhoneNumber,
		"send_time":       sendAt,
		"job_id":          jobID,
		"status":          StatusScheduled,
		"created_at":      createdAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store reminder: %w", err)
	}

	r := &types.Reminder{
		ID:             id,
		UserID:         userID,
		PatientName:    req.PatientName,
		MedicationName: req.MedicationName,
		Dosage:         req.Dosage,
		SendTime:       sendAt,
		PhoneNumber:    req.PhoneNumber,
		JobID:          jobID,
		Status:         StatusScheduled,
		CreatedAt:      createdAt,
	}
	if err := s.arm(r, now); err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", userID).Str("job_id", jobID).Time("send_time", sendAt).Msg("reminder scheduled")
	return r, nil
}

// List returns the user's reminders, newest first
func (s *Scheduler) List(ctx context.Context, userID string) ([]*types.Reminder, error) {
	records, err := s.store.Find(ctx, types.CollectionMedicationReminders, types.Filter{UserID: userID}, types.FindOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	out := make([]*types.Reminder, 0, len(records))
	for _, rec := range records {
		out = append(out, fromRecord(rec))
	}
	return out, nil
}

// Delete removes one of the user's reminders and cancels its timer
func (s *Scheduler) Delete(ctx context.Context, userID, reminderID string) error {
	filter := types.Filter{ID: reminderID, UserID: userID}
	records, err := s.store.Find(ctx, types.CollectionMedicationReminders, filter, types.FindOptions{Limit: 1})
	if err != nil {
		return fmt.Errorf("failed to load reminder: %w", err)
	}
	if len(records) == 0 {
		return ErrReminderNotFound
	}

	s.cancel(userID, records[0].String("job_id"))
	n, err := s.store.Delete(ctx, types.CollectionMedicationReminders, filter)
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}
	if n == 0 {
		return ErrReminderNotFound
	}
	return nil
}

// Restore re-arms every scheduled reminder still in the future and marks the
// ones whose time passed while the process was down as missed. It returns the
// number of armed timers.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	records, err := s.store.Find(ctx, types.CollectionMedicationReminders, types.Filter{
		Fields: map[string]interface{}{"status": StatusScheduled},
	}, types.FindOptions{OldestFirst: true})
	if err != nil {
		return 0, fmt.Errorf("failed to load reminders: %w", err)
	}

	now := s.now().In(s.location)
	armed := 0
	for _, rec := range records {
		r := fromRecord(rec)
		if r.SendTime.IsZero() || r.SendTime.Before(now) {
			s.setStatus(ctx, r.ID, StatusMissed)
			continue
		}
		if err := s.arm(r, now); err != nil {
			return armed, err
		}
		armed++
	}

	s.logger.Info().Int("armed", armed).Int("loaded", len(records)).Msg("reminders restored")
	return armed, nil
}

// Pending returns the number of armed timers
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Stop cancels every timer and waits for in-flight deliveries
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, j := range s.jobs {
		j.timer.Stop()
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Scheduler) arm(r *types.Reminder, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSchedulerStopped
	}
	key := jobKey{r.UserID, r.JobID}
	if old, ok := s.jobs[key]; ok {
		old.timer.Stop()
	}

	delay := r.SendTime.Sub(now)
	if delay < 0 {
		delay = 0
	}
	j := &job{reminderID: r.ID, userID: r.UserID}
	j.timer = time.AfterFunc(delay, func() { s.fire(j, r) })
	s.jobs[key] = j
	return nil
}

func (s *Scheduler) cancel(userID, jobID string) {
	if jobID == "" {
		return
	}
	key := jobKey{userID, jobID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[key]; ok {
		j.timer.Stop()
		delete(s.jobs, key)
	}
}

// fire delivers a reminder once its timer expires
func (s *Scheduler) fire(j *job, r *types.Reminder) {
	s.mu.Lock()
	key := jobKey{r.UserID, r.JobID}
	if s.stopped || s.jobs[key] != j {
		s.mu.Unlock()
		return
	}
	delete(s.jobs, key)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.deliver(r)
}

func (s *Scheduler) deliver(r *types.Reminder) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	text := fmt.Sprintf("Hello %s, remember to take %s (%s).", r.PatientName, r.MedicationName, r.Dosage)
	status := StatusSent
	if err := s.sender.Send(ctx, r.PhoneNumber, text); err != nil {
		status = StatusFailed
		s.logger.Error().Err(err).Str("job_id", r.JobID).Msg("failed to send reminder sms")
	}
	metrics.IncReminder(status)
	s.setStatus(ctx, r.ID, status)

	if s.notes != nil {
		if _, err := s.notes.Notify(ctx, r.UserID, notify.TypeMedicationReminder, "Medication reminder",
			fmt.Sprintf("Time for %s to take %s (%s).", r.PatientName, r.MedicationName, r.Dosage),
			map[string]interface{}{
				"reminder_id":     r.ID,
				"patient_name":    r.PatientName,
				"medication_name": r.MedicationName,
				"dosage":          r.Dosage,
				"sms_status":      status,
			}); err != nil {
			s.logger.Warn().Err(err).Str("user_id", r.UserID).Msg("failed to create reminder notification")
		}
	}
}

func (s *Scheduler) setStatus(ctx context.Context, reminderID, status string) {
	patch := types.Document{"status": status}
	if status == StatusSent {
		patch["sent_at"] = s.now().UTC()
	}
	if _, err := s.store.Update(ctx, types.CollectionMedicationReminders, types.Filter{ID: reminderID}, patch); err != nil {
		s.logger.Warn().Err(err).Str("reminder_id", reminderID).Str("status", status).Msg("failed to update reminder status")
	}
}

func fromRecord(rec *types.Record) *types.Reminder {
	r := &types.Reminder{
		ID:             rec.ID,
		UserID:         rec.UserID,
		PatientName:    rec.String("patient_name"),
		MedicationName: rec.String("medication_name"),
		Dosage:         rec.String("dosage"),
		PhoneNumber:    rec.String("phone_number"),
		JobID:          rec.String("job_id"),
		Status:         rec.String("status"),
		CreatedAt:      rec.CreatedAt,
	}
	if t, err := time.Parse(time.RFC3339Nano, rec.String("send_time")); err == nil {
		r.SendTime = t
	}
	return r
}
