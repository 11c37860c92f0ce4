package kernel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	compileHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bracer_kernel_compile_cache_hits_total",
		Help: "Total number of compile requests served from the cache",
	})

	compileMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bracer_kernel_compile_cache_misses_total",
		Help: "Total number of compile requests that lowered a new kernel",
	})

	launches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bracer_kernel_launches_total",
		Help: "Total number of kernel launches submitted",
	})
)
