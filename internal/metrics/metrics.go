// Package metrics exposes parse and cache statistics to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects parser events. It implements parser.Observer.
type Metrics struct {
	parses      *prometheus.CounterVec
	duration    prometheus.Histogram
	parts       prometheus.Histogram
	attachments *prometheus.CounterVec
	errorParts  prometheus.Counter
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

// New registers the collectors with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		parses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailparts_parses_total",
			Help: "Total number of finished parses",
		}, []string{"outcome"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailparts_parse_duration_seconds",
			Help:    "Time spent parsing one message",
			Buckets: prometheus.DefBuckets,
		}),
		parts: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailparts_parts_per_message",
			Help:    "Number of parts produced per parse",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		attachments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailparts_attachments_total",
			Help: "Total number of parts wrapped as attachments, by guessed type",
		}, []string{"major_type"}),
		errorParts: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailparts_error_parts_total",
			Help: "Total number of error parts produced",
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailparts_partlist_cache_hits_total",
			Help: "Total number of part list cache hits",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailparts_partlist_cache_misses_total",
			Help: "Total number of part list cache misses",
		}),
	}
}

// ParseFinished records one parse.
func (m *Metrics) ParseFinished(elapsed time.Duration, parts int, cancelled bool) {
	outcome := "complete"
	if cancelled {
		outcome = "cancelled"
	}
	m.parses.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
	m.parts.Observe(float64(parts))
}

// AttachmentWrapped counts attachments by the major part of their type, to
// keep the label set small.
func (m *Metrics) AttachmentWrapped(guessedMimeType string) {
	m.attachments.WithLabelValues(majorType(guessedMimeType)).Inc()
}

func (m *Metrics) ErrorPart() {
	m.errorParts.Inc()
}

// CacheHit and CacheMiss track the part list cache of the HTTP server.
func (m *Metrics) CacheHit()  { m.cacheHits.Inc() }
func (m *Metrics) CacheMiss() { m.cacheMisses.Inc() }

func majorType(mimeType string) string {
	for i := 0; i < len(mimeType); i++ {
		if mimeType[i] == '/' {
			if i == 0 {
				break
			}
			return mimeType[:i]
		}
	}
	return "unknown"
}
