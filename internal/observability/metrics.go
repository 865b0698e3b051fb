package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchSessions = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "sessions_total", Help: "Dispatch sessions opened"})
	DispatchDegraded = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "sessions_degraded_total", Help: "Dispatch sessions that fell back to the full online pool"})
	DispatchTimeouts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "sessions_timed_out_total", Help: "Dispatch sessions that expired with no acceptance"})
	OffersSent       = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "offers_sent_total", Help: "Ride offers published to candidates"})

	CandidatePoolSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ride_dispatch", Name: "candidate_pool_size", Help: "Ranked candidates per matching pass",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 10, 15},
	})

	AcceptAttempts  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "accept_attempts_total", Help: "Driver accept attempts"})
	AcceptWins      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "accept_wins_total", Help: "Accept attempts that won the commit"})
	AcceptConflicts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "accept_conflicts_total", Help: "Accept attempts that lost the commit race"})

	OTPVerified = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "otp_verified_total", Help: "Successful ride activations"})
	OTPRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "otp_rejected_total", Help: "Rejected ride activations"},
		[]string{"reason"},
	)

	RideTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "ride_transitions_total", Help: "Ride state transitions committed"},
		[]string{"to"},
	)

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
