// Package metrics provides Prometheus metrics for the community rank service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the rank service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         prometheus.Registerer

	// XP pipeline
	xpAwards       prometheus.Counter
	xpGranted      prometheus.Counter
	levelUps       prometheus.Counter
	cooldownHits   prometheus.Counter
	awardErrors    prometheus.Counter

	// Store durability
	storeSyncs        prometheus.Counter
	storeSyncErrors   prometheus.Counter
	replicaPushes     prometheus.Counter
	replicaPushErrors prometheus.Counter

	// Historical imports
	migrationRuns     *prometheus.CounterVec
	migrationDuration prometheus.Histogram
	importedUsers     prometheus.Counter
	skippedRecords    prometheus.Counter

	// HTTP API
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Registry returns the registry all global metrics are registered on.
func Registry() *prometheus.Registry {
	return customRegistry
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "communityrank",
		subsystem:        "rank",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.xpAwards = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "xp_awards_total",
		Help:      "Total number of XP awards granted",
	})

	m.xpGranted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "xp_granted_total",
		Help:      "Total amount of XP granted across all awards",
	})

	m.levelUps = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "level_ups_total",
		Help:      "Total number of level ups",
	})

	m.cooldownHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cooldown_hits_total",
		Help:      "Total number of awards rejected by the cooldown window",
	})

	m.awardErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "award_errors_total",
		Help:      "Total number of failed XP awards",
	})

	m.storeSyncs = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "store",
		Name:      "syncs_total",
		Help:      "Total number of store flushes to disk",
	})

	m.storeSyncErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "store",
		Name:      "sync_errors_total",
		Help:      "Total number of failed store flushes",
	})

	m.replicaPushes = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "store",
		Name:      "replica_pushes_total",
		Help:      "Total number of successful pushes to the data repository",
	})

	m.replicaPushErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "store",
		Name:      "replica_push_errors_total",
		Help:      "Total number of failed pushes to the data repository",
	})

	m.migrationRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "migration",
		Name:      "runs_total",
		Help:      "Total number of historical import runs by source type",
	}, []string{"source"})

	m.migrationDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "migration",
		Name:      "duration_seconds",
		Help:      "Duration of historical import runs",
		Buckets:   m.histogramBuckets,
	})

	m.importedUsers = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "migration",
		Name:      "imported_users_total",
		Help:      "Total number of user records written by historical imports",
	})

	m.skippedRecords = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "migration",
		Name:      "skipped_records_total",
		Help:      "Total number of historical records skipped (deleted or unresolvable authors)",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests by endpoint, method and status",
	}, []string{"endpoint", "method", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration by endpoint and method",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method"})
}

// Package-level helpers operating on the global manager.

// RecordXPAward records a successful XP award and the amount granted.
func RecordXPAward(gain int) {
	if globalManager.enabled {
		globalManager.xpAwards.Inc()
		globalManager.xpGranted.Add(float64(gain))
	}
}

// RecordLevelUp records a level up.
func RecordLevelUp() {
	if globalManager.enabled {
		globalManager.levelUps.Inc()
	}
}

// RecordCooldownHit records an award rejected by the cooldown window.
func RecordCooldownHit() {
	if globalManager.enabled {
		globalManager.cooldownHits.Inc()
	}
}

// RecordAwardError records a failed XP award.
func RecordAwardError() {
	if globalManager.enabled {
		globalManager.awardErrors.Inc()
	}
}

// RecordStoreSync records a store flush to disk.
func RecordStoreSync(err error) {
	if !globalManager.enabled {
		return
	}
	if err != nil {
		globalManager.storeSyncErrors.Inc()
		return
	}
	globalManager.storeSyncs.Inc()
}

// RecordReplicaPush records a push attempt against the data repository.
func RecordReplicaPush(err error) {
	if !globalManager.enabled {
		return
	}
	if err != nil {
		globalManager.replicaPushErrors.Inc()
		return
	}
	globalManager.replicaPushes.Inc()
}

// RecordMigrationRun records a completed import run for a source type.
func RecordMigrationRun(source string, seconds float64) {
	if globalManager.enabled {
		globalManager.migrationRuns.WithLabelValues(source).Inc()
		globalManager.migrationDuration.Observe(seconds)
	}
}

// RecordImportedUsers adds to the count of user records written by imports.
func RecordImportedUsers(n int) {
	if globalManager.enabled {
		globalManager.importedUsers.Add(float64(n))
	}
}

// RecordSkippedRecords adds to the count of skipped historical records.
func RecordSkippedRecords(n int) {
	if globalManager.enabled {
		globalManager.skippedRecords.Add(float64(n))
	}
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(endpoint, method, status string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
	}
}

// RecordHTTPRequestDuration records the latency of one HTTP request.
func RecordHTTPRequestDuration(endpoint, method string, seconds float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method).Observe(seconds)
	}
}
