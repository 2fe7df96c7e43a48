package metrics

import "github.com/prometheus/client_golang/prometheus"

var BuildBuckets = []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30}

// DebuggerMetrics groups trace engine metrics
type DebuggerMetrics struct {
	TraceStepsTotal       prometheus.Counter
	CallTreeBuildDuration prometheus.Histogram
	ScopesBuiltTotal      prometheus.Counter
	DecodeFailuresTotal   *prometheus.CounterVec
	StorageCacheTotal     *prometheus.CounterVec
	SharedFetchesTotal    *prometheus.CounterVec
}

func NewDebuggerMetrics() *DebuggerMetrics {
	return &DebuggerMetrics{
		TraceStepsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "soldebug_trace_steps_total",
				Help: "Total number of trace steps ingested",
			},
		),
		CallTreeBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "soldebug_calltree_build_duration_seconds",
				Help:    "Time spent building the scope tree of a transaction",
				Buckets: BuildBuckets,
			},
		),
		ScopesBuiltTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "soldebug_scopes_built_total",
				Help: "Total number of scopes built",
			},
		),
		DecodeFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soldebug_decode_failures_total",
				Help: "Values rendered as decoding failures, by data location",
			},
			[]string{"kind"},
		),
		StorageCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soldebug_storage_cache_total",
				Help: "Storage slot lookups by cache result",
			},
			[]string{"result"},
		),
		SharedFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soldebug_shared_fetches_total",
				Help: "Fetches served by an already in-flight request",
			},
			[]string{"resource"},
		),
	}
}

// Register registers all debugger metrics with the given registry
func (d *DebuggerMetrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		d.TraceStepsTotal,
		d.CallTreeBuildDuration,
		d.ScopesBuiltTotal,
		d.DecodeFailuresTotal,
		d.StorageCacheTotal,
		d.SharedFetchesTotal,
	)
}

// TrackStorageLookup counts a slot lookup as a hit or miss.
func TrackStorageLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	GetMetrics().Debugger.StorageCacheTotal.WithLabelValues(result).Inc()
}

// TrackSharedFetch counts a deduplicated fetch.
func TrackSharedFetch(resource string, shared bool) {
	if shared {
		GetMetrics().Debugger.SharedFetchesTotal.WithLabelValues(resource).Inc()
	}
}

func TrackDecodeFailure(kind string) {
	GetMetrics().Debugger.DecodeFailuresTotal.WithLabelValues(kind).Inc()
}
