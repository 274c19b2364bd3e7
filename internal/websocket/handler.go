package websocket

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"carebridge/pkg/interfaces"
	"carebridge/pkg/types"
)

// Dispatcher handles one decoded inbound control message
type Dispatcher interface {
	Route(conn interfaces.Connection, msg Inbound)
}

// Authenticator verifies a bearer token and returns its user id
type Authenticator interface {
	Verify(token string) (string, error)
}

// HandlerConfig tunes the upgrade endpoint
type HandlerConfig struct {
	WriteTimeout time.Duration
	// RequireAuth demands a token for the requested user id
	RequireAuth bool
	// AllowedOrigins restricts the Origin header; empty allows any origin
	AllowedOrigins []string
}

// Handler upgrades GET /ws/{user_id} requests and runs the read loop
// ARCHITECTURAL DISCOVERY: Validation happens before the upgrade so bad
// requests get plain HTTP errors and never consume a socket
type Handler struct {
	registry   *Registry
	dispatcher Dispatcher
	auth       Authenticator
	config     HandlerConfig
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
}

// NewHandler creates the upgrade handler. auth may be nil when
// config.RequireAuth is false.
func NewHandler(registry *Registry, dispatcher Dispatcher, auth Authenticator, config HandlerConfig, logger zerolog.Logger) *Handler {
	h := &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		auth:       auth,
		config:     config,
		logger:     logger.With().Str("component", "websocket").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

// ServeHTTP expects the chi URL parameter "user_id" and an optional "room"
// query parameter
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	if !types.IsValidUserID(userID) {
		http.Error(w, "Invalid user_id format", http.StatusBadRequest)
		return
	}

	room := r.URL.Query().Get("room")
	if room != "" && !types.IsValidRoomName(room) {
		http.Error(w, "Invalid room name", http.StatusBadRequest)
		return
	}

	if h.config.RequireAuth {
		if err := h.authorize(r, userID); err != nil {
			status := http.StatusUnauthorized
			if err == ErrTokenMismatch {
				status = http.StatusForbidden
			}
			http.Error(w, err.Error(), status)
			return
		}
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("websocket upgrade failed")
		return
	}
	ws.SetReadLimit(maxMessageSize)

	conn := NewConnection(ws, userID, h.config.WriteTimeout)
	if err := h.registry.Connect(conn, userID, room); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to register connection")
		_ = conn.Close()
		return
	}

	go h.readLoop(conn)
}

// readLoop processes inbound frames one at a time, in arrival order
func (h *Handler) readLoop(conn *Connection) {
	defer func() {
		// FUNCTIONAL DISCOVERY: Deferred cleanup releases the registry entry
		// even when the peer vanished without a close frame
		h.registry.Disconnect(conn)
		_ = conn.Close()
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("user_id", conn.UserID()).Msg("websocket closed unexpectedly")
			}
			return
		}

		msg := DecodeInbound(data)
		if msg == nil {
			h.logger.Debug().Str("user_id", conn.UserID()).Msg("ignoring unrecognized message")
			continue
		}
		h.dispatcher.Route(conn, msg)
	}
}

func (h *Handler) authorize(r *http.Request, userID string) error {
	if h.auth == nil {
		return interfaces.ErrUnauthorized
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		return interfaces.ErrUnauthorized
	}

	subject, err := h.auth.Verify(token)
	if err != nil {
		return interfaces.ErrUnauthorized
	}
	if subject != userID {
		return ErrTokenMismatch
	}
	return nil
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
