package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"carebridge/pkg/interfaces"
	"carebridge/pkg/types"
)

// MaxMessageLength bounds a stored chat message or reply
const MaxMessageLength = 4000

// ChatRequest is one exchange with the assistant
type ChatRequest struct {
	Message string `json:"message"`
	Reply   string `json:"reply"`
}

// ChatEntry is a stored chat exchange
type ChatEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Reply     string    `json:"reply"`
	CreatedAt time.Time `json:"created_at"`
}

// QuizRequest is a finished quiz attempt
type QuizRequest struct {
	Title string `json:"title"`
	Score int    `json:"score"`
	Total int    `json:"total"`
}

// QuizResult is a stored quiz attempt
type QuizResult struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Score     int       `json:"score"`
	Total     int       `json:"total"`
	CreatedAt time.Time `json:"created_at"`
}

// Service keeps each user's chat history and quiz results. Retention of chat
// history is enforced by the reporting cleanup.
type Service struct {
	store  interfaces.DocumentStore
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates a history service over store
func NewService(store interfaces.DocumentStore, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		now:    time.Now,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// RecordChat stores one exchange for userID
func (s *Service) RecordChat(ctx context.Context, userID string, req ChatRequest) (*ChatEntry, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if len(message) > MaxMessageLength || len(req.Reply) > MaxMessageLength {
		return nil, ErrMessageSize
	}

	now := s.now().UTC()
	id, err := s.store.Insert(ctx, types.CollectionChatHistory, types.Document{
		"user_id":    userID,
		"message":    message,
		"reply":      req.Reply,
		"created_at": now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store chat entry: %w", err)
	}

	s.logger.Debug().Str("user_id", userID).Msg("chat entry stored")
	return &ChatEntry{ID: id, UserID: userID, Message: message, Reply: req.Reply, CreatedAt: now}, nil
}

// ChatHistory returns up to limit of the user's exchanges, newest first
func (s *Service) ChatHistory(ctx context.Context, userID string, limit int) ([]*ChatEntry, error) {
	records, err := s.store.Find(ctx, types.CollectionChatHistory, types.Filter{UserID: userID}, types.FindOptions{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}

	out := make([]*ChatEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, &ChatEntry{
			ID:        rec.ID,
			UserID:    rec.UserID,
			Message:   rec.String("message"),
			Reply:     rec.String("reply"),
			CreatedAt: rec.CreatedAt,
		})
	}
	return out, nil
}

// RecordQuizResult stores a finished quiz attempt for userID
func (s *Service) RecordQuizResult(ctx context.Context, userID string, req QuizRequest) (*QuizResult, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" || req.Total <= 0 || req.Score < 0 || req.Score > req.Total {
		return nil, ErrInvalidQuiz
	}

	now := s.now().UTC()
	id, err := s.store.Insert(ctx, types.CollectionQuizResults, types.Document{
		"user_id":    userID,
		"title":      title,
		"score":      req.Score,
		"total":      req.Total,
		"created_at": now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store quiz result: %w", err)
	}

	s.logger.Debug().Str("user_id", userID).Str("title", title).Int("score", req.Score).Msg("quiz result stored")
	return &QuizResult{ID: id, UserID: userID, Title: title, Score: req.Score, Total: req.Total, CreatedAt: now}, nil
}

// QuizResults returns up to limit of the user's quiz attempts, newest first
func (s *Service) QuizResults(ctx context.Context, userID string, limit int) ([]*QuizResult, error) {
	records, err := s.store.Find(ctx, types.CollectionQuizResults, types.Filter{UserID: userID}, types.FindOptions{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to load quiz results: %w", err)
	}

	out := make([]*QuizResult, 0, len(records))
	for _, rec := range records {
		out = append(out, &QuizResult{
			ID:        rec.ID,
			UserID:    rec.UserID,
			Title:     rec.String("title"),
			Score:     rec.Int("score"),
			Total:     rec.Int("total"),
			CreatedAt: rec.CreatedAt,
		})
	}
	return out, nil
}
