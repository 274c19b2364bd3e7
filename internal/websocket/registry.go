package websocket

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"carebridge/internal/metrics"
	"carebridge/pkg/interfaces"
	"carebridge/pkg/types"
)

var _ interfaces.Notifier = (*Registry)(nil)

// Metadata describes one registered connection
type Metadata struct {
	UserID      string    `json:"user_id"`
	Room        string    `json:"room,omitempty"` // most recently joined room
	Rooms       []string  `json:"rooms"`
	ConnectedAt time.Time `json:"connected_at"`
	LastPing    time.Time `json:"last_ping"`
}

type entry struct {
	userID      string
	room        string
	rooms       map[string]struct{}
	connectedAt time.Time
	lastPing    time.Time
}

// Stats is a point-in-time view of the registry
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	UniqueUsers      int            `json:"unique_users"`
	RoomCount        int            `json:"room_count"`
	RoomSizes        map[string]int `json:"room_sizes"`
}

// Registry tracks live connections by handle, by user and by room.
// ARCHITECTURAL DISCOVERY: The lock guards the three indices only; every
// send happens on a snapshot taken under the lock, so a slow peer never blocks
// registry mutation
type Registry struct {
	mu          sync.RWMutex
	connections map[interfaces.Connection]*entry
	users       map[string]interfaces.Connection
	rooms       map[string]map[interfaces.Connection]struct{}
	now         func() time.Time
	logger      zerolog.Logger
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithRegistryClock replaces the wall clock used for envelopes and metadata
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithRegistryLogger sets the registry's logger
func WithRegistryLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger.With().Str("component", "registry").Logger() }
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		connections: make(map[interfaces.Connection]*entry),
		users:       make(map[string]interfaces.Connection),
		rooms:       make(map[string]map[interfaces.Connection]struct{}),
		now:         time.Now,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect registers conn for userID, optionally in room, then sends the
// connection_established acknowledgement. A previous handle of the same user
// stops being tracked as the user's handle but is neither closed nor removed.
func (r *Registry) Connect(conn interfaces.Connection, userID, room string) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !types.IsValidUserID(userID) {
		return types.ErrInvalidUserID
	}
	if room != "" && !types.IsValidRoomName(room) {
		return types.ErrInvalidRoomName
	}

	now := r.now()

	r.mu.Lock()
	e, exists := r.connections[conn]
	if !exists {
		e = &entry{rooms: make(map[string]struct{}), connectedAt: now}
		r.connections[conn] = e
	} else if e.userID != userID {
		// Re-registering under another user releases the old user's entry
		if current, ok := r.users[e.userID]; ok && current == conn {
			delete(r.users, e.userID)
		}
	}
	e.userID = userID
	e.lastPing = now
	r.users[userID] = conn
	if room != "" {
		r.joinLocked(conn, e, room)
	}
	r.publishLocked()
	r.mu.Unlock()

	r.logger.Debug().Str("user_id", userID).Str("room", room).Msg("connection registered")

	// The acknowledgement goes to this handle, never to whichever handle the
	// user map points at by the time it is sent
	if err := conn.WriteJSON(NewConnectionEstablished(now)); err != nil {
		r.logger.Debug().Err(err).Str("user_id", userID).Msg("acknowledgement failed, dropping connection")
		r.Disconnect(conn)
		metrics.IncDeliveryFailures(1)
	}
	return nil
}

// Disconnect removes conn from every index. It reports whether conn was
// registered; repeated calls are no-ops.
func (r *Registry) Disconnect(conn interfaces.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.connections[conn]
	if !ok {
		return false
	}

	delete(r.connections, conn)
	if current, ok := r.users[e.userID]; ok && current == conn {
		delete(r.users, e.userID)
	}
	for room := range e.rooms {
		r.removeFromRoomLocked(conn, room)
	}
	r.publishLocked()

	r.logger.Debug().Str("user_id", e.userID).Msg("connection removed")
	return true
}

// SendToUser delivers msg to the user's current handle. A failed delivery
// disconnects the handle; absent users are silently skipped.
func (r *Registry) SendToUser(userID string, msg interface{}) bool {
	r.mu.RLock()
	conn, ok := r.users[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	if err := conn.WriteJSON(msg); err != nil {
		r.logger.Debug().Err(err).Str("user_id", userID).Msg("delivery failed, dropping connection")
		r.Disconnect(conn)
		metrics.IncDeliveryFailures(1)
		return false
	}
	return true
}

// SendToRoom delivers msg to every member of room and returns how many
// deliveries succeeded
func (r *Registry) SendToRoom(room string, msg interface{}) int {
	r.mu.RLock()
	members := make([]interfaces.Connection, 0, len(r.rooms[room]))
	for conn := range r.rooms[room] {
		members = append(members, conn)
	}
	r.mu.RUnlock()

	delivered, _ := r.deliver(members, msg)
	return delivered
}

// Broadcast delivers msg to every registered connection
func (r *Registry) Broadcast(msg interface{}) int {
	delivered, _ := r.deliver(r.snapshot(), msg)
	return delivered
}

// SendNotification wraps data in a notification envelope for userID
func (r *Registry) SendNotification(userID, notificationType string, data map[string]interface{}) bool {
	return r.SendToUser(userID, NewNotification(notificationType, data, r.now()))
}

// JoinRoom adds a registered conn to room without leaving its other rooms
func (r *Registry) JoinRoom(conn interfaces.Connection, room string) error {
	if !types.IsValidRoomName(room) {
		return types.ErrInvalidRoomName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.connections[conn]
	if !ok {
		return ErrNotRegistered
	}
	r.joinLocked(conn, e, room)
	r.publishLocked()
	return nil
}

// LeaveRoom removes conn from room only; the recorded room in its metadata
// is left as is. It reports whether conn was a member.
func (r *Registry) LeaveRoom(conn interfaces.Connection, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, member := r.rooms[room][conn]; !member {
		return false
	}
	if e, ok := r.connections[conn]; ok {
		delete(e.rooms, room)
	}
	r.removeFromRoomLocked(conn, room)
	r.publishLocked()
	return true
}

// PingAll sends a ping envelope to every connection, disconnects the ones
// that fail and returns how many were pruned
func (r *Registry) PingAll() int {
	now := r.now()
	targets := r.snapshot()

	delivered, failed := r.deliver(targets, NewPing(now))
	if delivered > 0 {
		r.mu.Lock()
		for _, conn := range targets {
			if e, ok := r.connections[conn]; ok {
				e.lastPing = now
			}
		}
		r.mu.Unlock()
	}

	metrics.IncPruned(failed)
	if failed > 0 {
		r.logger.Info().Int("pruned", failed).Int("alive", delivered).Msg("liveness probe pruned connections")
	}
	return failed
}

// Stats returns connection and room counts
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sizes := make(map[string]int, len(r.rooms))
	for room, members := range r.rooms {
		sizes[room] = len(members)
	}
	return Stats{
		TotalConnections: len(r.connections),
		UniqueUsers:      len(r.users),
		RoomCount:        len(r.rooms),
		RoomSizes:        sizes,
	}
}

// IsOnline reports whether userID has a tracked handle
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

// Lookup returns the current handle of userID
func (r *Registry) Lookup(userID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.users[userID]
	return conn, ok
}

// Metadata returns a copy of conn's metadata
func (r *Registry) Metadata(conn interfaces.Connection) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.connections[conn]
	if !ok {
		return Metadata{}, false
	}
	rooms := make([]string, 0, len(e.rooms))
	for room := range e.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return Metadata{
		UserID:      e.userID,
		Room:        e.room,
		Rooms:       rooms,
		ConnectedAt: e.connectedAt,
		LastPing:    e.lastPing,
	}, true
}

// CloseAll closes every registered handle; read loops then disconnect them
func (r *Registry) CloseAll() {
	for _, conn := range r.snapshot() {
		if err := conn.Close(); err != nil {
			r.logger.Debug().Err(err).Msg("close during shutdown")
		}
	}
}

// deliver sends msg to each target independently and disconnects the
// failures after the pass
func (r *Registry) deliver(targets []interfaces.Connection, msg interface{}) (delivered, failed int) {
	var dead []interfaces.Connection
	for _, conn := range targets {
		if err := conn.WriteJSON(msg); err != nil {
			dead = append(dead, conn)
			continue
		}
		delivered++
	}

	for _, conn := range dead {
		r.Disconnect(conn)
	}
	metrics.IncDeliveryFailures(len(dead))
	return delivered, len(dead)
}

func (r *Registry) snapshot() []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]interfaces.Connection, 0, len(r.connections))
	for conn := range r.connections {
		conns = append(conns, conn)
	}
	return conns
}

// joinLocked records membership. Caller must hold r.mu.
func (r *Registry) joinLocked(conn interfaces.Connection, e *entry, room string) {
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[interfaces.Connection]struct{})
		r.rooms[room] = members
	}
	members[conn] = struct{}{}
	e.rooms[room] = struct{}{}
	e.room = room
}

// removeFromRoomLocked drops conn from room, deleting the room when empty.
// Caller must hold r.mu.
func (r *Registry) removeFromRoomLocked(conn interfaces.Connection, room string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

func (r *Registry) publishLocked() {
	metrics.SetConnections(len(r.connections), len(r.rooms))
}
