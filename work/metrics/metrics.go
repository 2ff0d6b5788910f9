package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CatalogGeneration tracks the generation number of the currently published
// catalog. It only moves forward; a stalled value alongside refresh errors
// means the server is serving a stale-but-available catalog.
var CatalogGeneration = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "m3u_server_catalog_generation",
	Help: "Generation of the currently published catalog",
})

// CatalogEntries tracks the number of channel entries in the current catalog.
var CatalogEntries = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "m3u_server_catalog_entries",
	Help: "Number of channel entries in the current catalog",
})

// RefreshCycles counts completed refresh cycles by outcome. The "outcome"
// label is one of: published, skipped, failed.
var RefreshCycles = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "m3u_server_refresh_cycles_total",
	Help: "Total refresh cycles by outcome",
}, []string{"outcome"})

// RefreshDuration observes the wall time of each refresh cycle.
var RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "m3u_server_refresh_duration_seconds",
	Help:    "Duration of refresh cycles",
	Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
})

// SourceErrors counts per-source fetch and parse failures. The "error_type"
// label carries the failure kind (timeout, unreachable, not_found,
// too_large, parse).
var SourceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "m3u_server_source_errors_total",
	Help: "Total per-source fetch and parse failures",
}, []string{"source", "error_type"})

// PlaylistRequests counts playlist renderings served, split by cache hit.
var PlaylistRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "m3u_server_playlist_requests_total",
	Help: "Total playlist requests served",
}, []string{"cache"})
