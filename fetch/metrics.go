package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "synthsite_fetch_attempts_total",
		Help: "The total number of source fetch attempts",
	})

	fetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synthsite_fetch_failures_total",
		Help: "Source fetches that failed, by reason",
	}, []string{"reason"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "synthsite_fetch_duration_seconds",
		Help:    "Duration of individual source fetches",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms to 6.4s
	})

	raceWins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synthsite_fetch_race_wins_total",
		Help: "Resolved fetches, by payload format",
	}, []string{"format"})

	raceExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "synthsite_fetch_race_exhausted_total",
		Help: "Fetches where every source failed",
	})
)
