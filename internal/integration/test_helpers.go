package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"carebridge/internal/app"
	"carebridge/internal/config"
)

// StartApplication boots a full application on an ephemeral port backed by a
// temporary database. The application is stopped through t.Cleanup.
func StartApplication(t *testing.T, modify func(*config.Config)) (*app.Application, string) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Database.DatabasePath = filepath.Join(t.TempDir(), "integration.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.HTTP.ShutdownTimeout = 2 * time.Second
	cfg.Auth.BcryptCost = 4
	cfg.SMS.Timezone = "UTC"
	if modify != nil {
		modify(cfg)
	}

	application, err := app.NewApplication(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}
	if err := application.Start(t.Context()); err != nil {
		t.Fatalf("Failed to start application: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := application.Stop(ctx); err != nil {
			t.Logf("Failed to stop application: %v", err)
		}
	})

	return application, "http://" + application.Addr()
}

// DoJSON sends body as JSON and decodes the response into out when non-nil
func DoJSON(t *testing.T, method, url, token string, body, out interface{}) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to encode request: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode %s %s response: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

// DialWebSocket opens a client connection to an http:// or ws:// URL
func DialWebSocket(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(url, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("Failed to dial %s (status %d): %v", wsURL, status, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// ReadEnvelope reads frames until one of the wanted type arrives
func ReadEnvelope(t *testing.T, conn *websocket.Conn, wantType string) map[string]interface{} {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("Failed to set read deadline: %v", err)
		}
		var envelope map[string]interface{}
		if err := conn.ReadJSON(&envelope); err != nil {
			t.Fatalf("Waiting for %q: %v", wantType, err)
		}
		if envelope["type"] == wantType {
			return envelope
		}
	}
}
