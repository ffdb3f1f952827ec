package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	reservationAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campusbook",
			Name:      "reservation_attempts_total",
			Help:      "Count of reservation submissions by outcome.",
		},
		[]string{"outcome"},
	)

	waitlistRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campusbook",
			Name:      "waitlist_requests_total",
			Help:      "Count of waitlist operations by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	realtimeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campusbook",
			Name:      "realtime_events_total",
			Help:      "Count of real-time reservation events by source.",
		},
		[]string{"source"},
	)

	backendRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "campusbook",
			Name:      "backend_request_duration_seconds",
			Help:      "Latency of backend REST calls by method and status class.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	remindersSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "campusbook",
			Name:      "reminders_sent_total",
			Help:      "Count of reminder notifications generated by the dev backend.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campusbook",
			Name:      "devserver_http_requests_total",
			Help:      "Count of dev backend HTTP requests by route and status class.",
		},
		[]string{"route", "status"},
	)

	backupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campusbook",
			Name:      "devserver_backups_total",
			Help:      "Count of dev backend database backups by outcome.",
		},
		[]string{"outcome"},
	)

	waitlistPromotions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "campusbook",
			Name:      "waitlist_promotions_total",
			Help:      "Count of waitlist entries promoted to reservations.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			reservationAttempts,
			waitlistRequests,
			realtimeEvents,
			backendRequestDuration,
			remindersSent,
			waitlistPromotions,
			httpRequests,
			backupsTotal,
		)
	})
}

func IncReservationAttempt(outcome string) {
	reservationAttempts.WithLabelValues(outcome).Inc()
}

func IncWaitlistRequest(action, outcome string) {
	waitlistRequests.WithLabelValues(action, outcome).Inc()
}

func IncRealtimeEvent(source string) {
	realtimeEvents.WithLabelValues(source).Inc()
}

func ObserveBackendRequest(method, status string, d time.Duration) {
	backendRequestDuration.WithLabelValues(method, status).Observe(d.Seconds())
}

func IncReminderSent() {
	remindersSent.Inc()
}

func IncWaitlistPromotion() {
	waitlistPromotions.Inc()
}

func IncHTTP(route, status string) {
	httpRequests.WithLabelValues(route, status).Inc()
}

func IncBackup(outcome string) {
	backupsTotal.WithLabelValues(outcome).Inc()
}
