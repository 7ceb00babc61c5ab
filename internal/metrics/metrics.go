// Package metrics exposes the Prometheus collectors referenced from the
// coordinator packages: queue depth, batch size, and translation latency,
// plus the cancellation counters the debounce/ordering invariants make
// observable.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InterimDebounceCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediator_interim_debounce_cancelled_total",
		Help: "Interim translation tasks cancelled before completion (superseded or finalized)",
	})

	InterimTranslationsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediator_interim_translations_emitted_total",
		Help: "Interim translation updates successfully delivered to the sink",
	})

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mediator_batch_size",
		Help:    "Number of sentences per adaptive batch translation request",
		Buckets: prometheus.LinearBuckets(1, 1, 16),
	})

	BatchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediator_batch_queue_depth",
		Help: "Sentences currently waiting in the adaptive batch backlog",
	})

	TranslationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediator_translation_latency_ms",
		Help:    "Translation call latency in milliseconds, by path",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 10),
	}, []string{"path"}) // "interim" or "batch"

	TranslationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediator_translation_errors_total",
		Help: "Translation call failures, by path",
	}, []string{"path"})

	DispatchBufferDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediator_dispatch_buffer_depth",
		Help: "Out-of-order finals currently buffered awaiting their turn",
	})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediator_sessions_active",
		Help: "Currently active translation sessions",
	})
)
