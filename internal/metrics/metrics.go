package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reelkitchen"

// Metrics owns a private registry so tests can build as many as they like.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	submissions        *prometheus.CounterVec
	extractionRequests *prometheus.CounterVec
	completions        *prometheus.CounterVec
	pollBatch          prometheus.Histogram
	pointsAwarded      *prometheus.CounterVec
	rouletteSpins      prometheus.Counter
	thumbnailMirrors   *prometheus.CounterVec
}

// New registers all application collectors plus the Go and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submissions",
			Name:      "created_total",
			Help:      "Video submissions by platform and outcome (created, duplicate)",
		}, []string{"platform", "outcome"}),
		extractionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "requests_total",
			Help:      "Calls to the extraction webhook by operation and outcome",
		}, []string{"operation", "outcome"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submissions",
			Name:      "finished_total",
			Help:      "Submissions reaching a terminal status",
		}, []string{"status"}),
		pollBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "batch_size",
			Help:      "Submissions refreshed per poll tick",
			Buckets:   []float64{0, 1, 5, 10, 25},
		}),
		pointsAwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gamification",
			Name:      "points_awarded_total",
			Help:      "Points awarded by action",
		}, []string{"action"}),
		rouletteSpins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "roulette",
			Name:      "spins_total",
			Help:      "Roulette spins",
		}),
		thumbnailMirrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "thumbnail_mirrors_total",
			Help:      "Thumbnail mirror attempts by outcome",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.submissions,
		m.extractionRequests,
		m.completions,
		m.pollBatch,
		m.pointsAwarded,
		m.rouletteSpins,
		m.thumbnailMirrors,
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// GinMiddleware records request counts and latency keyed by the matched route
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) SubmissionCreated(platform string, duplicate bool) {
	if m == nil {
		return
	}
	outcome := "created"
	if duplicate {
		outcome = "duplicate"
	}
	m.submissions.WithLabelValues(platform, outcome).Inc()
}

func (m *Metrics) ExtractionCall(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.extractionRequests.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) SubmissionFinished(status string) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(status).Inc()
}

func (m *Metrics) PollBatch(size int) {
	if m == nil {
		return
	}
	m.pollBatch.Observe(float64(size))
}

func (m *Metrics) PointsAwarded(action string, points int) {
	if m == nil || points <= 0 {
		return
	}
	m.pointsAwarded.WithLabelValues(action).Add(float64(points))
}

func (m *Metrics) RouletteSpin() {
	if m == nil {
		return
	}
	m.rouletteSpins.Inc()
}

func (m *Metrics) ThumbnailMirror(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.thumbnailMirrors.WithLabelValues(outcome).Inc()
}
