package router

import (
	"github.com/rs/zerolog"

	"carebridge/internal/websocket"
	"carebridge/pkg/interfaces"
)

// Rooms is the slice of the connection registry the router drives
type Rooms interface {
	JoinRoom(conn interfaces.Connection, room string) error
	LeaveRoom(conn interfaces.Connection, room string) bool
	Disconnect(conn interfaces.Connection) bool
}

var _ websocket.Dispatcher = (*Router)(nil)

// Router dispatches inbound control messages for one connection at a time
// ARCHITECTURAL DISCOVERY: Pure dispatch logic; delivery and indices stay in
// the registry so the router holds no state of its own
type Router struct {
	rooms  Rooms
	logger zerolog.Logger
}

// NewRouter creates a router over the registry's room operations
func NewRouter(rooms Rooms, logger zerolog.Logger) *Router {
	return &Router{
		rooms:  rooms,
		logger: logger.With().Str("component", "router").Logger(),
	}
}

// Route handles msg for conn. Failures stay local to conn.
func (r *Router) Route(conn interfaces.Connection, msg websocket.Inbound) {
	switch m := msg.(type) {
	case *websocket.PingRequest:
		// Pong goes straight to the handle, not through the user map
		if err := conn.WriteJSON(websocket.NewPong(m.Timestamp)); err != nil {
			r.logger.Debug().Err(err).Msg("pong failed, dropping connection")
			r.rooms.Disconnect(conn)
		}

	case *websocket.JoinRoomRequest:
		if err := r.rooms.JoinRoom(conn, m.Room); err != nil {
			r.logger.Debug().Err(err).Str("room", m.Room).Msg("join_room ignored")
		}

	case *websocket.LeaveRoomRequest:
		r.rooms.LeaveRoom(conn, m.Room)

	default:
		r.logger.Debug().Err(ErrUnknownMessage).Msgf("%T", msg)
	}
}
