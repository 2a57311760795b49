package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache Adapter Metrics
var (
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tablecache_operations_total",
		Help: "The total number of cache operations by operation and result",
	}, []string{"op", "result"})

	CacheOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tablecache_operation_duration_seconds",
		Help:    "Time spent in the table store per cache operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	TableCreateFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tablecache_table_create_failures_total",
		Help: "The number of ignored table creation failures at adapter construction",
	})
)

// Result labels
const (
	ResultOK    = "ok"
	ResultMiss  = "miss"
	ResultFault = "fault"
)
