// Package observability holds the Prometheus collectors, gin middleware, and
// OpenTelemetry setup shared by the proxy.
package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rbright/cgproxy/internal/cgminer"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cgproxy",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cgproxy",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	minerCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cgproxy",
			Subsystem: "miner",
			Name:      "commands_total",
			Help:      "Miner API commands by verb and terminal state.",
		},
		[]string{"verb", "state"},
	)
	minerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cgproxy",
			Subsystem: "miner",
			Name:      "command_duration_seconds",
			Help:      "Miner API command duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"verb", "state"},
	)
	minerResponseBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cgproxy",
			Subsystem: "miner",
			Name:      "response_bytes_total",
			Help:      "Bytes read from the miner API by verb.",
		},
		[]string{"verb"},
	)
	minerUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cgproxy",
			Subsystem: "miner",
			Name:      "up",
			Help:      "1 when the last health probe reached the miner API.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, minerCommands, minerDuration, minerResponseBytes, minerUp)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordMinerCommand(verb, state string, duration time.Duration, bytes int) {
	RegisterMetrics()
	minerCommands.WithLabelValues(verb, state).Inc()
	minerDuration.WithLabelValues(verb, state).Observe(duration.Seconds())
	if bytes > 0 {
		minerResponseBytes.WithLabelValues(verb).Add(float64(bytes))
	}
}

func SetMinerUp(up bool) {
	RegisterMetrics()
	if up {
		minerUp.Set(1)
		return
	}
	minerUp.Set(0)
}

// CommandObserver feeds settled miner commands into the command metrics.
func CommandObserver() cgminer.Observer {
	return cgminer.ObserverFunc(func(r cgminer.Result) {
		RecordMinerCommand(r.Verb, string(r.State), r.Duration, r.Bytes)
	})
}
