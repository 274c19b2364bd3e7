// Package testutil holds helpers shared by package tests.
package testutil

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"carebridge/internal/database"
	dbconfig "carebridge/pkg/database"
	"carebridge/pkg/types"
)

// NewStore opens a migrated SQLite document store in a temp dir, closed at
// test cleanup
func NewStore(t *testing.T) *database.Manager {
	t.Helper()
	config := &dbconfig.Config{
		DatabasePath:    filepath.Join(t.TempDir(), "test.db"),
		MaxConnections:  4,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute,
	}
	store, err := database.NewManager(config, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Notification is one push captured by RecordingNotifier
type Notification struct {
	UserID string
	Type   string
	Data   map[string]interface{}
}

// RecordingNotifier implements interfaces.Notifier and remembers every push
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *RecordingNotifier) SendNotification(userID, notificationType string, data map[string]interface{}) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{UserID: userID, Type: notificationType, Data: data})
	return true
}

// Sent returns a copy of the captured pushes
func (n *RecordingNotifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

// Clock is a manually advanced time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Seed inserts docs into collection and fails the test on error
func Seed(t *testing.T, store *database.Manager, collection string, docs ...types.Document) []string {
	t.Helper()
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, err := store.Insert(t.Context(), collection, doc)
		if err != nil {
			t.Fatalf("Seed %s failed: %v", collection, err)
		}
		ids = append(ids, id)
	}
	return ids
}
