package mdposter

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "mdposter"

// poolMetrics are the pool's instruments. They work unregistered when the
// pool was built without a registerer.
type poolMetrics struct {
	acquires       prometheus.Counter
	timeouts       prometheus.Counter
	waitSeconds    prometheus.Histogram
	created        prometheus.Counter
	destroyed      prometheus.Counter
	createFailures prometheus.Counter
}

func newPoolMetrics(reg prometheus.Registerer, p *Pool) *poolMetrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      name,
			Help:      help,
		})
	}
	gauge := func(name, help string, f func(PoolStats) int) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(f(p.Stats())) })
	}

	m := &poolMetrics{
		acquires:       counter("acquires_total", "Sessions lent to callers."),
		timeouts:       counter("acquire_timeouts_total", "Acquire calls that timed out."),
		created:        counter("sessions_created_total", "Browser sessions created."),
		destroyed:      counter("sessions_destroyed_total", "Browser sessions destroyed."),
		createFailures: counter("session_create_failures_total", "Browser session creations that failed."),
		waitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      "acquire_wait_seconds",
			Help:      "Time spent waiting in Acquire.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.acquires, m.timeouts, m.waitSeconds,
			m.created, m.destroyed, m.createFailures,
			gauge("sessions_live", "Live sessions (idle, active and creating).", func(s PoolStats) int { return s.Live }),
			gauge("sessions_idle", "Idle sessions.", func(s PoolStats) int { return s.Idle }),
			gauge("sessions_active", "Sessions lent to callers.", func(s PoolStats) int { return s.Active }),
			gauge("waiters", "Callers waiting in Acquire.", func(s PoolStats) int { return s.Waiting }),
		)
	}
	return m
}

// rendererMetrics are the pipeline's instruments.
type rendererMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	coalesced prometheus.Counter
	failures  *prometheus.CounterVec
	cacheErrs prometheus.Counter
	duration  prometheus.Histogram
}

func newRendererMetrics(reg prometheus.Registerer) *rendererMetrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "renderer",
			Name:      name,
			Help:      help,
		})
	}

	m := &rendererMetrics{
		hits:      counter("cache_hits_total", "Requests served from cache."),
		misses:    counter("cache_misses_total", "Requests that required rendering."),
		coalesced: counter("coalesced_total", "Requests that shared an in-flight render."),
		cacheErrs: counter("cache_write_failures_total", "Rendered posters that could not be persisted."),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "renderer",
			Name:      "failures_total",
			Help:      "Failed generations by pipeline stage.",
		}, []string{"stage"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "renderer",
			Name:      "render_seconds",
			Help:      "Duration of cache-miss renders.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.hits, m.misses, m.coalesced, m.cacheErrs, m.failures, m.duration)
	}
	return m
}
