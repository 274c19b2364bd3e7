package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Defined application metrics to track
var (
	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "carebridge",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "The number of registered real-time connections",
	})

	wsRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "carebridge",
		Subsystem: "websocket",
		Name:      "rooms_active",
		Help:      "The number of non-empty rooms",
	})

	wsDeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "carebridge",
		Subsystem: "websocket",
		Name:      "delivery_failures_total",
		Help:      "The total number of failed sends that led to a disconnect",
	})

	wsPruned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "carebridge",
		Subsystem: "websocket",
		Name:      "liveness_pruned_total",
		Help:      "The total number of connections pruned by the liveness probe",
	})

	rateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carebridge",
		Subsystem: "ratelimit",
		Name:      "rejections_total",
		Help:      "The total number of rejected requests by category and scope",
	},
		[]string{
			"category",
			"scope",
		})

	sessionLogins = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "carebridge",
		Subsystem: "session",
		Name:      "logins_total",
		Help:      "The total number of recorded logins",
	})

	sessionOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "carebridge",
		Subsystem: "session",
		Name:      "users_online",
		Help:      "The number of users currently marked online",
	})

	remindersSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carebridge",
		Subsystem: "reminder",
		Name:      "dispatched_total",
		Help:      "The total number of fired medication reminders by outcome",
	},
		[]string{
			"outcome",
		})
)

// SetConnections publishes the registry size
func SetConnections(total, rooms int) {
	wsConnections.Set(float64(total))
	wsRooms.Set(float64(rooms))
}

// IncDeliveryFailures counts sends converted into disconnects
func IncDeliveryFailures(n int) {
	if n > 0 {
		wsDeliveryFailures.Add(float64(n))
	}
}

// IncPruned counts connections removed by the liveness probe
func IncPruned(n int) {
	if n > 0 {
		wsPruned.Add(float64(n))
	}
}

// IncRateLimitRejection counts one rejected check
func IncRateLimitRejection(category, scope string) {
	rateLimitRejections.WithLabelValues(category, scope).Inc()
}

// IncLogins counts one login
func IncLogins() {
	sessionLogins.Inc()
}

// SetOnlineUsers publishes the number of online users
func SetOnlineUsers(n int) {
	sessionOnline.Set(float64(n))
}

// IncReminder counts a fired reminder, outcome is "sent" or "failed"
func IncReminder(outcome string) {
	remindersSent.WithLabelValues(outcome).Inc()
}
