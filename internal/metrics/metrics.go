// Package metrics holds the Prometheus collectors shared by the wiki engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Commits counts accepted revisions by operation (create, edit, restore).
	Commits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "babil_commits_total",
		Help: "Total committed revisions by operation",
	}, []string{"operation"})

	// CommitFailures counts rejected commits by error kind.
	CommitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "babil_commit_failures_total",
		Help: "Total rejected commits by error kind",
	}, []string{"kind"})

	// AudioRenders counts audio renders by result: ok, failed, skipped or dropped.
	AudioRenders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "babil_audio_renders_total",
		Help: "Total audio renders by result",
	}, []string{"result"})

	// AudioDuration tracks speech synthesis latency.
	AudioDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "babil_audio_render_duration_seconds",
		Help:    "Audio render duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
	})

	// AudioQueueDepth is the number of audio jobs waiting for a worker.
	AudioQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "babil_audio_queue_depth",
		Help: "Audio jobs waiting for a worker",
	})

	// Searches counts search queries by whether they matched anything.
	Searches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "babil_searches_total",
		Help: "Total page searches by outcome",
	}, []string{"outcome"})
)
