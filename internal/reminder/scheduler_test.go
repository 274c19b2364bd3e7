package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"carebridge/internal/notify"
	"carebridge/internal/testutil"
	"carebridge/pkg/types"
)

type sentMessage struct {
	phone   string
	message string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
	done chan struct{}
}

func newRecordingSender() *recordingSender {
	return &recordingSender{done: make(chan struct{}, 10)}
}

func (s *recordingSender) Send(_ context.Context, phone, message string) error {
	s.mu.Lock()
	s.sent = append(s.sent, sentMessage{phone, message})
	err := s.err
	s.mu.Unlock()
	s.done <- struct{}{}
	return err
}

func (s *recordingSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

func validRequest(sendTime string) Request {
	return Request{
		PatientName:    "John",
		MedicationName: "Aspirin",
		Dosage:         "100mg",
		SendTime:       sendTime,
		PhoneNumber:    "+15550100",
	}
}

type testEnv struct {
	sched  *Scheduler
	sender *recordingSender
	pusher *testutil.RecordingNotifier
	notes  *notify.Service
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	store := testutil.NewStore(t)
	sender := newRecordingSender()
	pusher := &testutil.RecordingNotifier{}
	notes := notify.NewService(store, pusher, zerolog.Nop())
	sched := NewScheduler(store, sender, notes, time.UTC, zerolog.Nop())
	sched.now = func() time.Time { return now }
	t.Cleanup(sched.Stop)
	return &testEnv{sched: sched, sender: sender, pusher: pusher, notes: notes}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{"14:30", 14, 30, false},
		{"00:00", 0, 0, false},
		{" 9:05 ", 9, 5, false},
		{"23:59", 23, 59, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"1230", 0, 0, true},
		{"ab:cd", 0, 0, true},
		{"12:30:00", 0, 0, true},
		{"", 0, 0, true},
	}
	for _, tt := range tests {
		h, m, err := ParseClock(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidTime) {
				t.Errorf("ParseClock(%q): expected ErrInvalidTime, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || h != tt.hour || m != tt.minute {
			t.Errorf("ParseClock(%q) = %d, %d, %v", tt.in, h, m, err)
		}
	}
}

func TestNextOccurrence(t *testing.T) {
	now := time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)

	if got := NextOccurrence(now, 15, 30); !got.Equal(time.Date(2026, 5, 10, 15, 30, 0, 0, time.UTC)) {
		t.Errorf("Expected later today, got %v", got)
	}
	if got := NextOccurrence(now, 9, 0); !got.Equal(time.Date(2026, 5, 11, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected tomorrow, got %v", got)
	}
	if got := NextOccurrence(now, 14, 0); !got.Equal(now) {
		t.Errorf("Expected the current minute to count as today, got %v", got)
	}
}

func TestJobID(t *testing.T) {
	at := time.Unix(1700000000, 0)
	if got := JobID("John", at); got != "sms_John_1700000000" {
		t.Errorf("Unexpected job id %q", got)
	}
}

func TestScheduler_ScheduleAndList(t *testing.T) {
	now := time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)
	ctx := context.Background()

	r, err := env.sched.Schedule(ctx, "alice", validRequest("16:00"))
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	want := time.Date(2026, 5, 10, 16, 0, 0, 0, time.UTC)
	if !r.SendTime.Equal(want) {
		t.Errorf("Expected send time %v, got %v", want, r.SendTime)
	}
	if r.JobID != JobID("John", want) || r.Status != StatusScheduled {
		t.Errorf("Unexpected reminder: %+v", r)
	}
	if env.sched.Pending() != 1 {
		t.Errorf("Expected 1 armed timer, got %d", env.sched.Pending())
	}

	list, err := env.sched.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != r.ID || !list[0].SendTime.Equal(want) || list[0].MedicationName != "Aspirin" {
		t.Errorf("Unexpected listing: %+v", list)
	}

	other, _ := env.sched.List(ctx, "bob")
	if len(other) != 0 {
		t.Errorf("Reminders must be scoped to their owner, got %d", len(other))
	}
}

func TestScheduler_ScheduleReplacesSameJob(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC))
	ctx := context.Background()

	first, err := env.sched.Schedule(ctx, "alice", validRequest("16:00"))
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	second, err := env.sched.Schedule(ctx, "alice", validRequest("16:00"))
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if first.JobID != second.JobID {
		t.Fatalf("Expected identical job ids")
	}
	if env.sched.Pending() != 1 {
		t.Errorf("Expected replacement, got %d timers", env.sched.Pending())
	}
	list, _ := env.sched.List(ctx, "alice")
	if len(list) != 1 || list[0].ID != second.ID {
		t.Errorf("Expected only the replacement stored, got %+v", list)
	}
}

func TestScheduler_SameJobAcrossUsersIsIndependent(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC))
	ctx := context.Background()

	mine, err := env.sched.Schedule(ctx, "alice", validRequest("16:00"))
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	theirs, err := env.sched.Schedule(ctx, "bob", validRequest("16:00"))
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if mine.JobID != theirs.JobID {
		t.Fatalf("Expected identical job ids for the same patient and time")
	}
	if env.sched.Pending() != 2 {
		t.Errorf("Each user keeps their own timer, got %d", env.sched.Pending())
	}

	if err := env.sched.Delete(ctx, "bob", theirs.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if env.sched.Pending() != 1 {
		t.Errorf("Deleting bob's reminder must leave alice's timer armed, got %d", env.sched.Pending())
	}
	list, _ := env.sched.List(ctx, "alice")
	if len(list) != 1 || list[0].ID != mine.ID {
		t.Errorf("alice's reminder should be untouched, got %+v", list)
	}
}

func TestScheduler_ScheduleValidation(t *testing.T) {
	env := newTestEnv(t, time.Now())

	if _, err := env.sched.Schedule(context.Background(), "alice", validRequest("25:00")); !errors.Is(err, ErrInvalidTime) {
		t.Errorf("Expected ErrInvalidTime, got %v", err)
	}
	req := validRequest("10:00")
	req.PhoneNumber = ""
	if _, err := env.sched.Schedule(context.Background(), "alice", req); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest, got %v", err)
	}
	if env.sched.Pending() != 0 {
		t.Error("Invalid requests must not arm timers")
	}
}

func TestScheduler_FireSendsSMSAndNotification(t *testing.T) {
	// 50ms before the minute so the timer fires almost immediately
	now := time.Date(2026, 5, 10, 14, 29, 59, 950_000_000, time.UTC)
	env := newTestEnv(t, now)
	ctx := context.Background()

	r, err := env.sched.Schedule(ctx, "alice", validRequest("14:30"))
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	select {
	case <-env.sender.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Reminder did not fire")
	}
	// Stop waits for the in-flight delivery to finish
	env.sched.Stop()

	msgs := env.sender.messages()
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 sms, got %d", len(msgs))
	}
	if msgs[0].phone != "+15550100" || msgs[0].message != "Hello John, remember to take Aspirin (100mg)." {
		t.Errorf("Unexpected sms: %+v", msgs[0])
	}

	notes, err := env.notes.List(ctx, "alice", false)
	if err != nil {
		t.Fatalf("List notifications failed: %v", err)
	}
	if len(notes) != 1 || notes[0].Type != notify.TypeMedicationReminder || notes[0].Data["reminder_id"] != r.ID {
		t.Errorf("Expected medication reminder notification, got %+v", notes)
	}

	list, _ := env.sched.List(ctx, "alice")
	if len(list) != 1 || list[0].Status != StatusSent {
		t.Errorf("Expected reminder marked sent, got %+v", list)
	}
	if env.sched.Pending() != 0 {
		t.Error("Fired job must be removed")
	}
}

func TestScheduler_FireRecordsFailure(t *testing.T) {
	now := time.Date(2026, 5, 10, 14, 29, 59, 950_000_000, time.UTC)
	env := newTestEnv(t, now)
	env.sender.err = errors.New("gateway down")

	if _, err := env.sched.Schedule(context.Background(), "alice", validRequest("14:30")); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	select {
	case <-env.sender.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Reminder did not fire")
	}
	env.sched.Stop()

	list, _ := env.sched.List(context.Background(), "alice")
	if len(list) != 1 || list[0].Status != StatusFailed {
		t.Errorf("Expected reminder marked failed, got %+v", list)
	}
}

func TestScheduler_Delete(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC))
	ctx := context.Background()

	r, err := env.sched.Schedule(ctx, "alice", validRequest("16:00"))
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	if err := env.sched.Delete(ctx, "bob", r.ID); !errors.Is(err, ErrReminderNotFound) {
		t.Errorf("Another user must not delete the reminder, got %v", err)
	}
	if err := env.sched.Delete(ctx, "alice", r.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if env.sched.Pending() != 0 {
		t.Error("Expected timer cancelled")
	}
	if err := env.sched.Delete(ctx, "alice", r.ID); !errors.Is(err, ErrReminderNotFound) {
		t.Errorf("Expected ErrReminderNotFound on second delete, got %v", err)
	}
}

func TestScheduler_Restore(t *testing.T) {
	now := time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)
	store := testutil.NewStore(t)

	testutil.Seed(t, store, types.CollectionMedicationReminders,
		types.Document{"user_id": "alice", "patient_name": "John", "job_id": "sms_John_1",
			"send_time": now.Add(time.Hour), "status": StatusScheduled},
		types.Document{"user_id": "alice", "patient_name": "John", "job_id": "sms_John_2",
			"send_time": now.Add(-time.Hour), "status": StatusScheduled},
		types.Document{"user_id": "alice", "patient_name": "John", "job_id": "sms_John_3",
			"send_time": now.Add(2 * time.Hour), "status": StatusSent},
	)

	sched := NewScheduler(store, newRecordingSender(), nil, time.UTC, zerolog.Nop())
	sched.now = func() time.Time { return now }
	t.Cleanup(sched.Stop)

	armed, err := sched.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if armed != 1 || sched.Pending() != 1 {
		t.Errorf("Expected 1 armed reminder, got %d (pending %d)", armed, sched.Pending())
	}

	list, _ := sched.List(context.Background(), "alice")
	statuses := map[string]string{}
	for _, r := range list {
		statuses[r.JobID] = r.Status
	}
	if statuses["sms_John_2"] != StatusMissed {
		t.Errorf("Expected past reminder marked missed, got %v", statuses)
	}
	if statuses["sms_John_1"] != StatusScheduled || statuses["sms_John_3"] != StatusSent {
		t.Errorf("Unexpected statuses: %v", statuses)
	}
}

func TestScheduler_StopRejectsNewJobs(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC))
	env.sched.Stop()

	if _, err := env.sched.Schedule(context.Background(), "alice", validRequest("16:00")); !errors.Is(err, ErrSchedulerStopped) {
		t.Errorf("Expected ErrSchedulerStopped, got %v", err)
	}
}
