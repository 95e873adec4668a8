package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OffersBroadcast     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "offers_broadcast_total", Help: "Total offers pushed to candidate drivers"})
	BroadcastsEmpty     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "broadcasts_empty_total", Help: "Broadcasts that found no eligible driver"})
	AssignmentsTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "assignments_total", Help: "Rides successfully assigned to a driver"})
	AssignmentConflicts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "assignment_conflicts_total", Help: "Accept attempts that lost the ride"})
	LockTimeouts        = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "lock_timeouts_total", Help: "Ride lock acquisitions that timed out"})
	OffersSwept         = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "offers_swept_total", Help: "Stale pending offers expired by the sweeper"})
	ChatMessagesTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "chat_messages_total", Help: "Chat messages relayed over ride topics"})
	DriversOnline       = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "drivers_online", Help: "Number of online drivers"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
