package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	allocatedBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bracer_memory_allocated_bytes",
		Help: "Current live buffer bytes by memory space",
	}, []string{"space"})

	buffersLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bracer_memory_buffers_live",
		Help: "Current number of live buffers",
	})
)
