package session

import "time"

// maxActivities bounds each user's activity log
const maxActivities = 100

// Activity is one entry of a user's activity log
type Activity struct {
	UserID    string                 `json:"user_id"`
	Type      string                 `json:"activity_type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// activityLog is a fixed-capacity ring buffer; once full, each append
// overwrites the oldest entry.
type activityLog struct {
	entries []Activity
	start   int // index of the oldest entry
	size    int
}

func newActivityLog(capacity int) *activityLog {
	return &activityLog{entries: make([]Activity, capacity)}
}

func (l *activityLog) append(a Activity) {
	capacity := len(l.entries)
	if l.size < capacity {
		l.entries[(l.start+l.size)%capacity] = a
		l.size++
		return
	}
	l.entries[l.start] = a
	l.start = (l.start + 1) % capacity
}

func (l *activityLog) len() int {
	return l.size
}

// last copies the newest n entries, oldest of them first
func (l *activityLog) last(n int) []Activity {
	if n > l.size || n < 0 {
		n = l.size
	}
	out := make([]Activity, n)
	capacity := len(l.entries)
	offset := l.size - n
	for i := 0; i < n; i++ {
		out[i] = l.entries[(l.start+offset+i)%capacity]
	}
	return out
}
