// Package telemetry wires glog, prometheus, and opencensus together
// for both the client and the server binaries: structured logging is
// already each package's own responsibility (see pkg/merkle,
// pkg/cache, pkg/server), this package only owns the metrics every
// binary shares and the per-statement timer the original
// implementation's howlong::ProcessCPUTimer is ported as.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// CacheHits and CacheMisses are client cache hit/miss counters,
	// labeled by opt_level. They are registered, but no code in this
	// module increments them.
	CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vsqldb_cache_hits_total",
		Help: "Number of client cache hits, by opt_level.",
	}, []string{"opt_level"})

	CacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vsqldb_cache_misses_total",
		Help: "Number of client cache misses, by opt_level.",
	}, []string{"opt_level"})

	// CacheSizeBytes and CacheMaxHeight mirror the original
	// implementation's cache_size_and_height report.
	CacheSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vsqldb_cache_size_bytes",
		Help: "Current client cache occupancy in bytes.",
	})
	CacheMaxHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vsqldb_cache_max_height",
		Help: "Maximum tree height currently represented in the client cache.",
	})

	// ProofBytes observes the wire size of each END response's
	// encoded Proof.
	ProofBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vsqldb_proof_bytes",
		Help:    "Size in bytes of each proof received from the server.",
		Buckets: prometheus.ExponentialBuckets(32, 2, 12),
	})

	// SessionsTotal counts outcomes: "ok" once per completed statement,
	// "verification_failed" or "transport_failed" once when a session
	// stops on that failure.
	SessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vsqldb_sessions_total",
		Help: "Outcomes: ok per completed statement; verification_failed, transport_failed per failed session.",
	}, []string{"outcome"})

	// VBFFalsePositiveEstimate tracks the fraction of filled slots in
	// the server's version bloom filter, an upper bound on its false
	// positive rate. It is registered, but no code in this module sets
	// it, and the filter itself does not report this value.
	VBFFalsePositiveEstimate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vsqldb_vbf_false_positive_estimate",
		Help: "Estimated version bloom filter false-positive rate from slot occupancy.",
	})

	// QueryDuration and VerifyDuration are the per-statement timer's
	// histograms: query round-trip time (the C9 client side) and
	// verification time (the C11 driver), tracked separately since the
	// original splits them into two howlong::ProcessCPUTimer spans.
	QueryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vsqldb_query_duration_seconds",
		Help:    "Time spent resolving a statement's page reads, including any cache misses.",
		Buckets: prometheus.DefBuckets,
	})
	VerifyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vsqldb_verify_duration_seconds",
		Help:    "Time spent verifying a statement's read set against the trusted root.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		CacheHits, CacheMisses, CacheSizeBytes, CacheMaxHeight,
		ProofBytes, SessionsTotal, VBFFalsePositiveEstimate,
		QueryDuration, VerifyDuration,
	)
}

// RecordCacheStats publishes a Cache.Stats() sample to the gauges
// above; callers call this once per statement or on an interval.
func RecordCacheStats(sizeBytes int64, maxHeight uint32) {
	CacheSizeBytes.Set(float64(sizeBytes))
	CacheMaxHeight.Set(float64(maxHeight))
}

// StatementTimer measures one SQL statement's query and verify
// phases independently, the Go port of the original's per-statement
// ProcessCPUTimer pair.
type StatementTimer struct {
	queryStart  time.Time
	verifyStart time.Time
	query       time.Duration
	verify      time.Duration
}

// NewStatementTimer returns a zero-valued StatementTimer ready for a
// new statement.
func NewStatementTimer() *StatementTimer {
	return &StatementTimer{}
}

// StartQuery marks the beginning of the query phase.
func (t *StatementTimer) StartQuery() { t.queryStart = time.Now() }

// StopQuery records the query phase's elapsed time and observes it
// into QueryDuration.
func (t *StatementTimer) StopQuery() {
	t.query = time.Since(t.queryStart)
	QueryDuration.Observe(t.query.Seconds())
}

// StartVerify marks the beginning of the verify phase.
func (t *StatementTimer) StartVerify() { t.verifyStart = time.Now() }

// StopVerify records the verify phase's elapsed time and observes it
// into VerifyDuration.
func (t *StatementTimer) StopVerify() {
	t.verify = time.Since(t.verifyStart)
	VerifyDuration.Observe(t.verify.Seconds())
}

// QueryElapsed returns the last recorded query phase duration.
func (t *StatementTimer) QueryElapsed() time.Duration { return t.query }

// VerifyElapsed returns the last recorded verify phase duration.
func (t *StatementTimer) VerifyElapsed() time.Duration { return t.verify }
