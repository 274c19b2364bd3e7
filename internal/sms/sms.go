// Package sms delivers text messages through an HTTP SMS gateway.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const defaultTimeout = 15 * time.Second

// DefaultBaseURL is the gateway endpoint used when none is configured
const DefaultBaseURL = "https://www.smslocal.com/dev/bulkV2"

// ErrNotConfigured is returned by a client without an API key
var ErrNotConfigured = errors.New("sms: API key not configured")

// Sender delivers one message to one phone number
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// Client posts messages to the gateway as JSON
type Client struct {
	APIKey     string
	BaseURL    string
	SenderID   string
	HTTPClient *http.Client
	limiter    *rate.Limiter
}

// NewClient returns a client sending at most perSecond messages per second.
// A non-positive rate disables throttling.
func NewClient(apiKey, baseURL, senderID string, perSecond float64) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Client{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		SenderID:   senderID,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// Send waits for the throttle and posts message. Does not log the body.
func (c *Client) Send(ctx context.Context, phone, message string) error {
	if c.APIKey == "" {
		return ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("sms: throttle: %w", err)
	}

	body := map[string]interface{}{
		"route":   "transactional",
		"numbers": phone,
		"message": message,
	}
	if c.SenderID != "" {
		body["sender_id"] = c.SenderID
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sms: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

// LogSender records messages in the log instead of sending them; used when
// no gateway is configured
type LogSender struct {
	logger zerolog.Logger
}

// NewLogSender creates a log-only sender
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "sms").Logger()}
}

func (s *LogSender) Send(_ context.Context, phone, message string) error {
	s.logger.Info().Str("phone", phone).Int("length", len(message)).Msg("sms gateway not configured, message logged only")
	return nil
}
