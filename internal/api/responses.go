package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"carebridge/internal/auth"
	"carebridge/internal/history"
	"carebridge/internal/ratelimit"
	"carebridge/internal/reminder"
	"carebridge/internal/reporting"
	"carebridge/internal/session"
	"carebridge/internal/websocket"
	"carebridge/pkg/types"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status      string          `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
	Database    string          `json:"database"`
	Connections websocket.Stats `json:"connections"`
	ActiveUsers int             `json:"active_users"`
	Uptime      string          `json:"uptime"`
}

type SignupResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

type AdminStatsResponse struct {
	SessionStats    session.Summary    `json:"session_stats"`
	ConnectionStats websocket.Stats    `json:"connection_stats"`
	DatabaseStats   *reporting.Summary `json:"database_stats"`
	RateLimitStats  ratelimit.Stats    `json:"rate_limit_stats"`
}

type UserStatsResponse struct {
	UserStats      session.Stats             `json:"user_stats"`
	DatabaseStats  *reporting.UserStatistics `json:"database_stats"`
	RecentActivity []reporting.Entry         `json:"recent_activity"`
	IsConnected    bool                      `json:"is_connected"`
}

type ActivityResponse struct {
	Activity        []reporting.Entry  `json:"activity"`
	SessionActivity []session.Activity `json:"session_activity"`
}

type NotificationsResponse struct {
	Notifications []*types.Notification `json:"notifications"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type ReminderResponse struct {
	Message  string          `json:"message"`
	Reminder *types.Reminder `json:"reminder"`
}

type RemindersResponse struct {
	Reminders []*types.Reminder `json:"reminders"`
}

type ChatHistoryResponse struct {
	Entries []*history.ChatEntry `json:"entries"`
}

type QuizResultsResponse struct {
	Results []*history.QuizResult `json:"results"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// sendServiceError maps domain errors onto status codes; anything unknown is
// logged and reported as 500
func (s *Server) sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, auth.ErrNoUpdate),
		errors.Is(err, reminder.ErrInvalidTime),
		errors.Is(err, reminder.ErrInvalidRequest),
		errors.Is(err, history.ErrEmptyMessage),
		errors.Is(err, history.ErrMessageSize),
		errors.Is(err, history.ErrInvalidQuiz),
		errors.Is(err, types.ErrInvalidUserID),
		errors.Is(err, types.ErrInvalidCollection):
		s.sendError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, auth.ErrEmailTaken):
		s.sendError(w, "Email already registered", http.StatusBadRequest)
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.sendError(w, "Invalid credentials", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrUserNotFound):
		s.sendError(w, "User not found", http.StatusUnauthorized)
	case errors.Is(err, reminder.ErrReminderNotFound):
		s.sendError(w, "Reminder not found", http.StatusNotFound)
	case errors.Is(err, reminder.ErrSchedulerStopped):
		s.sendError(w, "Scheduler unavailable", http.StatusServiceUnavailable)
	default:
		s.logger.Error().Err(err).Msg("request failed")
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
	}
}
