package ratelimit

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
)

// SubjectFunc extracts the subject id of a request, "" when anonymous
type SubjectFunc func(r *http.Request) string

type errorBody struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Limit   int    `json:"limit"`
	Window  int    `json:"window_seconds"`
}

// Middleware checks category before the wrapped handler runs. The address is
// taken from r.RemoteAddr, so mount it behind middleware.RealIP when proxied.
func Middleware(l *Limiter, category string, subject SubjectFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var subjectID string
			if subject != nil {
				subjectID = subject(r)
			}

			err := l.Check(subjectID, category, ClientAddress(r))
			var exceeded *ExceededError
			if errors.As(err, &exceeded) {
				WriteExceeded(w, exceeded)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WriteExceeded renders a 429 with a Retry-After hint
func WriteExceeded(w http.ResponseWriter, e *ExceededError) {
	retry := int(math.Ceil(e.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error:   http.StatusText(http.StatusTooManyRequests),
		Code:    http.StatusTooManyRequests,
		Message: fmt.Sprintf("Rate limit exceeded. Max %d requests per %d seconds.", e.Limit, int(e.Window.Seconds())),
		Limit:   e.Limit,
		Window:  int(e.Window.Seconds()),
	})
}

// ClientAddress returns the host part of r.RemoteAddr
func ClientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
