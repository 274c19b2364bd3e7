package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"

	"carebridge/internal/auth"
	"carebridge/internal/history"
	"carebridge/internal/ratelimit"
	"carebridge/internal/reminder"
	"carebridge/internal/reporting"
)

const maxActivityLimit = 100

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "CareBridge backend is running with multi-user support",
		"features": []string{
			"Real-time WebSocket connections",
			"User session management",
			"Rate limiting",
			"User analytics",
			"Notifications system",
			"Medication reminders",
		},
	})
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.deps.Store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Database:    dbStatus,
		Connections: s.deps.Registry.Stats(),
		ActiveUsers: s.deps.Sessions.ActiveUsers(),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	userID, err := s.deps.Auth.Signup(r.Context(), req)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SignupResponse{Message: "User created successfully", UserID: userID})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	resp, err := s.deps.Auth.Login(r.Context(), req)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	writeJSON(w, http.StatusOK, SuccessResponse{Success: s.deps.Auth.Logout(userID)})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	user, err := s.deps.Auth.Me(r.Context(), userID)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var update auth.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())
	user, err := s.deps.Auth.UpdateProfile(r.Context(), userID, update)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) adminStats(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Reporter.Summary(r.Context())
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AdminStatsResponse{
		SessionStats:    s.deps.Sessions.AllStats(),
		ConnectionStats: s.deps.Registry.Stats(),
		DatabaseStats:   summary,
		RateLimitStats:  s.deps.Limiter.Stats(),
	})
}

// rateLimitStatus reads a subject's window without recording a request
func (s *Server) rateLimitStatus(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		category = ratelimit.CategoryGeneral
	}
	writeJSON(w, http.StatusOK, s.deps.Limiter.Status(chi.URLParam(r, "id"), category))
}

func (s *Server) userStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	dbStats, err := s.deps.Reporter.UserStatistics(r.Context(), userID)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	recent, err := s.deps.Reporter.RecentActivity(r.Context(), userID, reporting.DefaultActivityLimit)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UserStatsResponse{
		UserStats:      s.deps.Sessions.Stats(userID),
		DatabaseStats:  dbStats,
		RecentActivity: recent,
		IsConnected:    s.deps.Registry.IsOnline(userID),
	})
}

func (s *Server) userActivity(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	limit, ok := parseLimit(r.URL.Query().Get("limit"))
	if !ok {
		s.sendError(w, fmt.Sprintf("limit must be between 1 and %d", maxActivityLimit), http.StatusBadRequest)
		return
	}
	entries, err := s.deps.Reporter.RecentActivity(r.Context(), userID, limit)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ActivityResponse{
		Activity:        entries,
		SessionActivity: s.deps.Sessions.RecentActivity(userID, limit),
	})
}

func (s *Server) userSearch(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		s.sendError(w, "Query parameter q is required", http.StatusBadRequest)
		return
	}
	results, err := s.deps.Reporter.Search(r.Context(), chi.URLParam(r, "id"), term)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread_only"))
	list, err := s.deps.Notify.List(r.Context(), chi.URLParam(r, "id"), unreadOnly)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NotificationsResponse{Notifications: list})
}

func (s *Server) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	ok, err := s.deps.Notify.MarkRead(r.Context(), chi.URLParam(r, "nid"), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: ok})
}

func (s *Server) scheduleReminder(w http.ResponseWriter, r *http.Request) {
	var req reminder.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())
	rem, err := s.deps.Reminders.Schedule(r.Context(), userID, req)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	s.deps.Sessions.RecordFeatureUsage(userID, "medication_reminder", map[string]interface{}{
		"medication_name": req.MedicationName,
	})
	writeJSON(w, http.StatusCreated, ReminderResponse{
		Message:  "Reminder scheduled for " + rem.SendTime.Format("2006-01-02 15:04"),
		Reminder: rem,
	})
}

func (s *Server) listReminders(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	list, err := s.deps.Reminders.List(r.Context(), userID)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RemindersResponse{Reminders: list})
}

func (s *Server) deleteReminder(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	if err := s.deps.Reminders.Delete(r.Context(), userID, chi.URLParam(r, "rid")); err != nil {
		s.sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func (s *Server) recordChat(w http.ResponseWriter, r *http.Request) {
	var req history.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())
	entry, err := s.deps.History.RecordChat(r.Context(), userID, req)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	s.deps.Sessions.RecordFeatureUsage(userID, "chat", nil)
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) chatHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r.URL.Query().Get("limit"))
	if !ok {
		s.sendError(w, fmt.Sprintf("limit must be between 1 and %d", maxActivityLimit), http.StatusBadRequest)
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())
	entries, err := s.deps.History.ChatHistory(r.Context(), userID, limit)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatHistoryResponse{Entries: entries})
}

func (s *Server) recordQuizResult(w http.ResponseWriter, r *http.Request) {
	var req history.QuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())
	result, err := s.deps.History.RecordQuizResult(r.Context(), userID, req)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	s.deps.Sessions.RecordFeatureUsage(userID, "quiz", map[string]interface{}{"title": result.Title})
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) quizResults(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r.URL.Query().Get("limit"))
	if !ok {
		s.sendError(w, fmt.Sprintf("limit must be between 1 and %d", maxActivityLimit), http.StatusBadRequest)
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())
	results, err := s.deps.History.QuizResults(r.Context(), userID, limit)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, QuizResultsResponse{Results: results})
}

// parseLimit accepts an empty value as the default
func parseLimit(raw string) (int, bool) {
	if raw == "" {
		return reporting.DefaultActivityLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxActivityLimit {
		return 0, false
	}
	return n, true
}
