package websocket

import (
	"encoding/json"
	"time"
)

// Envelope type discriminators
const (
	TypeConnectionEstablished = "connection_established"
	TypePing                  = "ping"
	TypePong                  = "pong"
	TypeNotification          = "notification"
	TypeJoinRoom              = "join_room"
	TypeLeaveRoom             = "leave_room"
)

// Timestamp formats t the way every envelope carries it
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Outbound is implemented by every server-pushed envelope
type Outbound interface {
	EnvelopeType() string
}

// ConnectionEstablished acknowledges a new connection
type ConnectionEstablished struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (ConnectionEstablished) EnvelopeType() string { return TypeConnectionEstablished }

// NewConnectionEstablished builds the connect acknowledgement
func NewConnectionEstablished(now time.Time) ConnectionEstablished {
	return ConnectionEstablished{
		Type:      TypeConnectionEstablished,
		Message:   "Connected successfully",
		Timestamp: Timestamp(now),
	}
}

// Ping is the liveness probe
type Ping struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

func (Ping) EnvelopeType() string { return TypePing }

// NewPing builds a liveness probe
func NewPing(now time.Time) Ping {
	return Ping{Type: TypePing, Timestamp: Timestamp(now)}
}

// Pong answers a client ping, echoing its timestamp verbatim
type Pong struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
}

func (Pong) EnvelopeType() string { return TypePong }

// NewPong echoes ts; a missing client timestamp is echoed as null
func NewPong(ts json.RawMessage) Pong {
	if len(ts) == 0 {
		ts = json.RawMessage("null")
	}
	return Pong{Type: TypePong, Timestamp: ts}
}

// Notification pushes a typed notification to one user
type Notification struct {
	Type             string                 `json:"type"`
	NotificationType string                 `json:"notification_type"`
	Data             map[string]interface{} `json:"data"`
	Timestamp        string                 `json:"timestamp"`
}

func (Notification) EnvelopeType() string { return TypeNotification }

// NewNotification builds a notification envelope
func NewNotification(notificationType string, data map[string]interface{}, now time.Time) Notification {
	if data == nil {
		data = map[string]interface{}{}
	}
	return Notification{
		Type:             TypeNotification,
		NotificationType: notificationType,
		Data:             data,
		Timestamp:        Timestamp(now),
	}
}

// Inbound is a decoded client control message: *PingRequest,
// *JoinRoomRequest or *LeaveRoomRequest
type Inbound interface {
	inbound()
}

// PingRequest asks for a pong
type PingRequest struct {
	Timestamp json.RawMessage
}

// JoinRoomRequest adds the sender to a room
type JoinRoomRequest struct {
	Room string
}

// LeaveRoomRequest removes the sender from a room
type LeaveRoomRequest struct {
	Room string
}

func (*PingRequest) inbound()      {}
func (*JoinRoomRequest) inbound()  {}
func (*LeaveRoomRequest) inbound() {}

type rawInbound struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
	Room      string          `json:"room"`
}

// DecodeInbound parses a client frame. Undecodable JSON, unknown types and
// room messages without a room all yield nil.
func DecodeInbound(data []byte) Inbound {
	var raw rawInbound
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	switch raw.Type {
	case TypePing:
		return &PingRequest{Timestamp: raw.Timestamp}
	case TypeJoinRoom:
		if raw.Room == "" {
			return nil
		}
		return &JoinRoomRequest{Room: raw.Room}
	case TypeLeaveRoom:
		if raw.Room == "" {
			return nil
		}
		return &LeaveRoomRequest{Room: raw.Room}
	default:
		return nil
	}
}
