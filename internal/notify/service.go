package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"carebridge/pkg/interfaces"
	"carebridge/pkg/types"
)

// Retention is how long a notification is kept
const Retention = 30 * 24 * time.Hour

// Notification types created by the server
const (
	TypeWelcome            = "welcome"
	TypeMedicationReminder = "medication_reminder"
)

// Service persists notifications and pushes them to live connections
type Service struct {
	store  interfaces.DocumentStore
	pusher interfaces.Notifier
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates a notification service; pusher may be nil to persist only
func NewService(store interfaces.DocumentStore, pusher interfaces.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		pusher: pusher,
		now:    time.Now,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// Notify stores a notification expiring after Retention and pushes it to the
// user's connection when one is open
func (s *Service) Notify(ctx context.Context, userID, notificationType, title, message string, data map[string]interface{}) (*types.Notification, error) {
	if data == nil {
		data = map[string]interface{}{}
	}
	now := s.now().UTC()
	expires := now.Add(Retention)

	id, err := s.store.Insert(ctx, types.CollectionNotifications, types.Document{
		"user_id":    userID,
		"type":       notificationType,
		"title":      title,
		"message":    message,
		"data":       data,
		"is_read":    false,
		"created_at": now,
		"expires_at": expires,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	n := &types.Notification{
		ID:        id,
		UserID:    userID,
		Type:      notificationType,
		Title:     title,
		Message:   message,
		Data:      data,
		CreatedAt: now,
		ExpiresAt: &expires,
	}

	if s.pusher != nil {
		delivered := s.pusher.SendNotification(userID, notificationType, map[string]interface{}{
			"id":      id,
			"title":   title,
			"message": message,
			"data":    data,
		})
		s.logger.Debug().Str("user_id", userID).Str("type", notificationType).Bool("live", delivered).Msg("notification created")
	}
	return n, nil
}

// List returns the user's notifications, newest first
func (s *Service) List(ctx context.Context, userID string, unreadOnly bool) ([]*types.Notification, error) {
	filter := types.Filter{UserID: userID}
	if unreadOnly {
		filter.Fields = map[string]interface{}{"is_read": false}
	}

	records, err := s.store.Find(ctx, types.CollectionNotifications, filter, types.FindOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	out := make([]*types.Notification, 0, len(records))
	for _, rec := range records {
		out = append(out, fromRecord(rec))
	}
	return out, nil
}

// MarkRead marks one of the user's unread notifications as read. It reports
// false when nothing changed.
func (s *Service) MarkRead(ctx context.Context, notificationID, userID string) (bool, error) {
	n, err := s.store.Update(ctx, types.CollectionNotifications, types.Filter{
		ID:     notificationID,
		UserID: userID,
		Fields: map[string]interface{}{"is_read": false},
	}, types.Document{
		"is_read": true,
		"read_at": s.now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return n > 0, nil
}

func fromRecord(rec *types.Record) *types.Notification {
	data, _ := rec.Data["data"].(map[string]interface{})
	if data == nil {
		data = map[string]interface{}{}
	}
	return &types.Notification{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Type:      rec.String("type"),
		Title:     rec.String("title"),
		Message:   rec.String("message"),
		Data:      data,
		IsRead:    rec.Bool("is_read"),
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}
}
