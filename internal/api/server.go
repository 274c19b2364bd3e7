package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"carebridge/internal/auth"
	"carebridge/internal/history"
	"carebridge/internal/notify"
	"carebridge/internal/ratelimit"
	"carebridge/internal/reminder"
	"carebridge/internal/reporting"
	"carebridge/internal/session"
	"carebridge/internal/websocket"
	"carebridge/pkg/interfaces"
)

// Dependencies are the components the HTTP surface delegates to
type Dependencies struct {
	Store     interfaces.DocumentStore
	Auth      *auth.Service
	Sessions  *session.Tracker
	Registry  *websocket.Registry
	Limiter   *ratelimit.Limiter
	Notify    *notify.Service
	Reporter  *reporting.Reporter
	Reminders *reminder.Scheduler
	History   *history.Service
	WebSocket http.Handler
}

// Config controls cross-origin access
type Config struct {
	AllowedOrigins []string
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	deps    Dependencies
	config  Config
	router  chi.Router
	started time.Time
	logger  zerolog.Logger
}

// NewServer builds the router
func NewServer(deps Dependencies, config Config, logger zerolog.Logger) *Server {
	s := &Server{
		deps:    deps,
		config:  config,
		router:  chi.NewRouter(),
		started: time.Now(),
		logger:  logger.With().Str("component", "api").Logger(),
	}
	s.setupRoutes()
	return s
}

// ARCHITECTURAL DISCOVERY: Route setup follows REST conventions with proper middleware
// CORS applies everywhere, JSON only to the REST routes
func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Handle("/metrics", promhttp.Handler())
	if s.deps.WebSocket != nil {
		r.Handle("/ws/{user_id}", s.deps.WebSocket)
	}

	r.Group(func(r chi.Router) {
		r.Use(jsonMiddleware)

		r.Get("/", s.root)
		r.Get("/health", s.healthCheck)

		r.Route("/api", func(r chi.Router) {
			r.Route("/auth", func(r chi.Router) {
				r.With(ratelimit.Middleware(s.deps.Limiter, ratelimit.CategoryAuth, nil)).Post("/signup", s.signup)
				r.With(ratelimit.Middleware(s.deps.Limiter, ratelimit.CategoryAuth, nil)).Post("/login", s.login)

				r.Group(func(r chi.Router) {
					r.Use(s.identity)
					r.Post("/logout", s.logout)
					r.Get("/me", s.me)
					r.Patch("/me", s.updateProfile)
				})
			})

			r.Get("/admin/stats", s.adminStats)
			r.Get("/rate-limit/{id}/status", s.rateLimitStatus)

			r.Route("/users/{id}", func(r chi.Router) {
				r.Use(s.identity, s.selfOnly)
				r.Get("/stats", s.userStats)
				r.Get("/activity", s.userActivity)
				r.Get("/search", s.userSearch)
				r.Get("/notifications", s.listNotifications)
				r.Post("/notifications/{nid}/read", s.markNotificationRead)
			})

			r.Route("/chat/history", func(r chi.Router) {
				r.Use(s.identity)
				r.With(ratelimit.Middleware(s.deps.Limiter, ratelimit.CategoryChat, subjectFromContext)).Post("/", s.recordChat)
				r.Get("/", s.chatHistory)
			})

			r.Route("/quiz/results", func(r chi.Router) {
				r.Use(s.identity)
				r.With(ratelimit.Middleware(s.deps.Limiter, ratelimit.CategoryQuiz, subjectFromContext)).Post("/", s.recordQuizResult)
				r.Get("/", s.quizResults)
			})

			r.Route("/medications/reminders", func(r chi.Router) {
				r.Use(s.identity)
				r.Use(ratelimit.Middleware(s.deps.Limiter, ratelimit.CategoryGeneral, subjectFromContext))
				r.Post("/", s.scheduleReminder)
				r.Get("/", s.listReminders)
				r.Delete("/{rid}", s.deleteReminder)
			})
		})
	})
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func subjectFromContext(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}
