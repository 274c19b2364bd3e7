package websocket

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, msg Inbound)
	}{
		{
			name:  "ping with timestamp",
			input: `{"type":"ping","timestamp":1712345678}`,
			check: func(t *testing.T, msg Inbound) {
				ping, ok := msg.(*PingRequest)
				if !ok || string(ping.Timestamp) != "1712345678" {
					t.Errorf("expected ping echoing raw timestamp, got %#v", msg)
				}
			},
		},
		{
			name:  "join room",
			input: `{"type":"join_room","room":"family-42"}`,
			check: func(t *testing.T, msg Inbound) {
				join, ok := msg.(*JoinRoomRequest)
				if !ok || join.Room != "family-42" {
					t.Errorf("expected join_room family-42, got %#v", msg)
				}
			},
		},
		{
			name:  "leave room",
			input: `{"type":"leave_room","room":"family-42"}`,
			check: func(t *testing.T, msg Inbound) {
				if _, ok := msg.(*LeaveRoomRequest); !ok {
					t.Errorf("expected leave_room, got %#v", msg)
				}
			},
		},
		{name: "unknown type", input: `{"type":"dance"}`, check: expectNil},
		{name: "join without room", input: `{"type":"join_room"}`, check: expectNil},
		{name: "malformed json", input: `{"type":`, check: expectNil},
		{name: "not an object", input: `[1,2,3]`, check: expectNil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, DecodeInbound([]byte(tt.input)))
		})
	}
}

func expectNil(t *testing.T, msg Inbound) {
	t.Helper()
	if msg != nil {
		t.Errorf("expected message to be ignored, got %#v", msg)
	}
}

func TestNewPong_EchoesTimestamp(t *testing.T) {
	data, err := json.Marshal(NewPong(json.RawMessage(`"2026-03-01T10:00:00Z"`)))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"type":"pong","timestamp":"2026-03-01T10:00:00Z"}` {
		t.Errorf("unexpected pong %s", data)
	}

	data, _ = json.Marshal(NewPong(nil))
	if string(data) != `{"type":"pong","timestamp":null}` {
		t.Errorf("missing timestamp should echo null, got %s", data)
	}
}

func TestEnvelopes_CarryTypeAndTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		envelope Outbound
		wantType string
	}{
		{NewConnectionEstablished(now), TypeConnectionEstablished},
		{NewPing(now), TypePing},
		{NewNotification("welcome", nil, now), TypeNotification},
	}

	for _, tt := range tests {
		data, err := json.Marshal(tt.envelope)
		if err != nil {
			t.Fatal(err)
		}
		var decoded map[string]interface{}
		_ = json.Unmarshal(data, &decoded)
		if decoded["type"] != tt.wantType || tt.envelope.EnvelopeType() != tt.wantType {
			t.Errorf("expected type %s, got %v", tt.wantType, decoded["type"])
		}
		if decoded["timestamp"] != "2026-03-01T10:00:00Z" {
			t.Errorf("unexpected timestamp %v", decoded["timestamp"])
		}
	}

	data, _ := json.Marshal(NewNotification("reminder", nil, now))
	var n map[string]interface{}
	_ = json.Unmarshal(data, &n)
	if _, ok := n["data"].(map[string]interface{}); !ok {
		t.Error("notification data should default to an empty object")
	}
}
