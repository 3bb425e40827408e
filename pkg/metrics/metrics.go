package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Job queue metrics
	ActiveJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "falcon_active_jobs",
			Help: "Number of jobs currently running",
		},
	)

	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "falcon_jobs_total",
			Help: "Total number of jobs retired by final status",
		},
		[]string{"status"},
	)

	// Pipeline metrics
	PagesGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "falcon_pages_generated_total",
			Help: "Total number of wiki pages generated",
		},
	)

	AgentRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "falcon_agent_runs_total",
			Help: "Total number of external agent invocations by outcome",
		},
		[]string{"outcome"},
	)

	CodexDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "falcon_codex_duration_seconds",
			Help:    "External agent invocation duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// Event bus metrics
	EventSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "falcon_event_subscribers",
			Help: "Number of active event bus subscribers",
		},
	)

	// Agent loop metrics
	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "falcon_tool_calls_total",
			Help: "Total number of virtual shell tool invocations by tool",
		},
		[]string{"tool"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "falcon_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "falcon_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ActiveJobs)
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(PagesGenerated)
	prometheus.MustRegister(AgentRuns)
	prometheus.MustRegister(CodexDuration)
	prometheus.MustRegister(EventSubscribers)
	prometheus.MustRegister(ToolCalls)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed time for histogram observation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in the given histogram
func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed time in a labeled histogram
func (t *Timer) ObserveDurationVec(h *prometheus.HistogramVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
