package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgedash",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgedash",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	probeResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgedash",
			Subsystem: "probe",
			Name:      "results_total",
			Help:      "Telemetry probe attempts by domain, source and outcome.",
		},
		[]string{"domain", "source", "outcome"},
	)
	commandRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgedash",
			Subsystem: "command",
			Name:      "runs_total",
			Help:      "Whitelisted command invocations by outcome.",
		},
		[]string{"command", "outcome"},
	)
	routerFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgedash",
			Subsystem: "router",
			Name:      "fetch_duration_seconds",
			Help:      "Router lease fetch duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"transport", "outcome"},
	)
)

const (
	ProbeHit         = "hit"
	ProbeMiss        = "miss"
	ProbeUnavailable = "unavailable"

	CommandOK       = "ok"
	CommandFailed   = "failed"
	CommandRejected = "rejected"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, probeResults, commandRuns, routerFetchDuration)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordProbe(domain, source, outcome string) {
	RegisterMetrics()
	probeResults.WithLabelValues(domain, source, outcome).Inc()
}

func RecordCommand(command, outcome string) {
	RegisterMetrics()
	commandRuns.WithLabelValues(command, outcome).Inc()
}

func RecordRouterFetch(transport string, success bool, duration time.Duration) {
	RegisterMetrics()
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	routerFetchDuration.WithLabelValues(transport, outcome).Observe(duration.Seconds())
}
