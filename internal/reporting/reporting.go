// Package reporting aggregates per-user and system-wide statistics over the
// document store and enforces data retention.
package reporting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"carebridge/pkg/interfaces"
	"carebridge/pkg/types"
)

// Retention windows for historical collections
const (
	ChatHistoryRetention = 365 * 24 * time.Hour
	AnalyticsRetention   = 180 * 24 * time.Hour
)

// DefaultActivityLimit is used when callers pass a non-positive limit
const DefaultActivityLimit = 10

// searchLimit caps matches per collection
const searchLimit = 10

// activityCollections are scanned for recent activity
var activityCollections = []string{
	types.CollectionChatHistory,
	types.CollectionQuizResults,
	types.CollectionMedicationReminders,
	types.CollectionNotifications,
}

// searchCollections and searchFields drive Search
var (
	searchCollections = []string{
		types.CollectionChatHistory,
		types.CollectionQuizResults,
		types.CollectionMedicationReminders,
	}
	searchFields = []string{"message", "title", "content", "medication_name"}
)

// UserStatistics summarises one user's stored data
type UserStatistics struct {
	UserID              string     `json:"user_id"`
	TotalChats          int64      `json:"total_chats"`
	TotalQuizzes        int64      `json:"total_quizzes"`
	TotalMedications    int64      `json:"total_medications"`
	UnreadNotifications int64      `json:"unread_notifications"`
	LastActivity        *time.Time `json:"last_activity"`
}

// Summary counts stored data across all users
type Summary struct {
	TotalUsers          int64 `json:"total_users"`
	TotalChats          int64 `json:"total_chats"`
	TotalQuizzes        int64 `json:"total_quizzes"`
	TotalMedications    int64 `json:"total_medications"`
	TotalNotifications  int64 `json:"total_notifications"`
	UnreadNotifications int64 `json:"unread_notifications"`
}

// Entry is one record surfaced by RecentActivity or Search
type Entry struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Data       types.Document `json:"data"`
	CreatedAt  time.Time      `json:"created_at"`
}

// CleanupResult reports how many records each retention rule removed
type CleanupResult struct {
	ExpiredNotifications int64 `json:"expired_notifications"`
	ChatHistory          int64 `json:"chat_history"`
	Analytics            int64 `json:"analytics"`
}

// Total returns the number of removed records
func (c CleanupResult) Total() int64 {
	return c.ExpiredNotifications + c.ChatHistory + c.Analytics
}

// Reporter answers statistics queries
type Reporter struct {
	store  interfaces.DocumentStore
	now    func() time.Time
	logger zerolog.Logger
}

// NewReporter creates a reporter over store
func NewReporter(store interfaces.DocumentStore, logger zerolog.Logger) *Reporter {
	return &Reporter{
		store:  store,
		now:    time.Now,
		logger: logger.With().Str("component", "reporting").Logger(),
	}
}

// UserStatistics counts the user's chats, quizzes, medications and unread
// notifications, and finds the most recent activity
func (r *Reporter) UserStatistics(ctx context.Context, userID string) (*UserStatistics, error) {
	stats := &UserStatistics{UserID: userID}
	g, gctx := errgroup.WithContext(ctx)

	count := func(dst *int64, collection string, filter types.Filter) {
		g.Go(func() error {
			n, err := r.store.Count(gctx, collection, filter)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		})
	}
	user := types.Filter{UserID: userID}
	count(&stats.TotalChats, types.CollectionChatHistory, user)
	count(&stats.TotalQuizzes, types.CollectionQuizResults, user)
	count(&stats.TotalMedications, types.CollectionMedicationReminders, user)
	count(&stats.UnreadNotifications, types.CollectionNotifications, types.Filter{
		UserID: userID,
		Fields: map[string]interface{}{"is_read": false},
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compute statistics for %s: %w", userID, err)
	}

	recent, err := r.RecentActivity(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(recent) > 0 {
		last := recent[0].CreatedAt
		stats.LastActivity = &last
	}
	return stats, nil
}

// Summary counts records across all users
func (r *Reporter) Summary(ctx context.Context) (*Summary, error) {
	s := &Summary{}
	g, gctx := errgroup.WithContext(ctx)

	count := func(dst *int64, collection string, filter types.Filter) {
		g.Go(func() error {
			n, err := r.store.Count(gctx, collection, filter)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		})
	}
	count(&s.TotalUsers, types.CollectionUsers, types.Filter{})
	count(&s.TotalChats, types.CollectionChatHistory, types.Filter{})
	count(&s.TotalQuizzes, types.CollectionQuizResults, types.Filter{})
	count(&s.TotalMedications, types.CollectionMedicationReminders, types.Filter{})
	count(&s.TotalNotifications, types.CollectionNotifications, types.Filter{})
	count(&s.UnreadNotifications, types.CollectionNotifications, types.Filter{
		Fields: map[string]interface{}{"is_read": false},
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compute summary: %w", err)
	}
	return s, nil
}

// RecentActivity merges the newest records of every activity collection,
// newest first, truncated to limit
func (r *Reporter) RecentActivity(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}

	var entries []Entry
	for _, collection := range activityCollections {
		records, err := r.store.Find(ctx, collection, types.Filter{UserID: userID}, types.FindOptions{Limit: limit})
		if err != nil {
			return nil, fmt.Errorf("failed to load %s activity: %w", collection, err)
		}
		for _, rec := range records {
			entries = append(entries, toEntry(rec))
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// UserData returns the user's records in one collection, newest first
func (r *Reporter) UserData(ctx context.Context, userID, collection string, limit int) ([]Entry, error) {
	records, err := r.store.Find(ctx, collection, types.Filter{UserID: userID}, types.FindOptions{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", collection, err)
	}
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, toEntry(rec))
	}
	return entries, nil
}

// Search finds the user's records whose message, title, content or
// medication name contains term, case-insensitively. At most ten matches are
// taken from each collection.
func (r *Reporter) Search(ctx context.Context, userID, term string) ([]Entry, error) {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return []Entry{}, nil
	}

	results := []Entry{}
	for _, collection := range searchCollections {
		records, err := r.store.Find(ctx, collection, types.Filter{UserID: userID}, types.FindOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to search %s: %w", collection, err)
		}
		matched := 0
		for _, rec := range records {
			if matched == searchLimit {
				break
			}
			if matches(rec, needle) {
				results = append(results, toEntry(rec))
				matched++
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results, nil
}

// Cleanup removes expired notifications, chat history older than a year and
// analytics older than six months
func (r *Reporter) Cleanup(ctx context.Context) (CleanupResult, error) {
	var res CleanupResult
	now := r.now().UTC()

	var err error
	res.ExpiredNotifications, err = r.store.Delete(ctx, types.CollectionNotifications, types.Filter{ExpiresBefore: now})
	if err != nil {
		return res, fmt.Errorf("failed to remove expired notifications: %w", err)
	}
	res.ChatHistory, err = r.store.Delete(ctx, types.CollectionChatHistory, types.Filter{CreatedBefore: now.Add(-ChatHistoryRetention)})
	if err != nil {
		return res, fmt.Errorf("failed to remove old chat history: %w", err)
	}
	res.Analytics, err = r.store.Delete(ctx, types.CollectionUserAnalytics, types.Filter{CreatedBefore: now.Add(-AnalyticsRetention)})
	if err != nil {
		return res, fmt.Errorf("failed to remove old analytics: %w", err)
	}

	r.logger.Info().
		Int64("notifications", res.ExpiredNotifications).
		Int64("chat_history", res.ChatHistory).
		Int64("analytics", res.Analytics).
		Msg("retention cleanup complete")
	return res, nil
}

func matches(rec *types.Record, needle string) bool {
	for _, field := range searchFields {
		if strings.Contains(strings.ToLower(rec.String(field)), needle) {
			return true
		}
	}
	return false
}

func toEntry(rec *types.Record) Entry {
	return Entry{
		ID:         rec.ID,
		Collection: rec.Collection,
		Data:       rec.Data,
		CreatedAt:  rec.CreatedAt,
	}
}
