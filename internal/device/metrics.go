package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bracer_stream_ops_enqueued_total",
		Help: "Total number of operations enqueued on device streams",
	}, []string{"api", "kind"})

	opFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bracer_stream_op_failures_total",
		Help: "Total number of device-side operation failures",
	}, []string{"api", "kind"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bracer_stream_queue_depth",
		Help: "Current number of enqueued-but-incomplete operations across streams",
	})

	streamsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bracer_streams_open",
		Help: "Current number of open device streams",
	})

	syncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bracer_stream_sync_duration_seconds",
		Help:    "Time spent blocked in Synchronize",
		Buckets: prometheus.DefBuckets,
	})
)
