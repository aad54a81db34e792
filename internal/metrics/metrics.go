package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors of the service. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	editTransitions   *prometheus.CounterVec
	picksRecorded     prometheus.Counter
	resultsRecorded   prometheus.Counter
	summaryCacheLooks *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		editTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "edit_request_actions_total",
			Help: "Edit request submissions and review decisions.",
		}, []string{"action"}),
		picksRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "worldcup_picks_recorded_total",
			Help: "Pairwise picks stored.",
		}),
		resultsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "game_results_recorded_total",
			Help: "Terminal play-through results stored.",
		}),
		summaryCacheLooks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "summary_cache_lookups_total",
			Help: "Global summary cache lookups by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) EditRequestAction(action string) {
	if m == nil {
		return
	}
	m.editTransitions.WithLabelValues(action).Inc()
}

func (m *Metrics) PickRecorded() {
	if m == nil {
		return
	}
	m.picksRecorded.Inc()
}

func (m *Metrics) ResultRecorded() {
	if m == nil {
		return
	}
	m.resultsRecorded.Inc()
}

func (m *Metrics) SummaryCache(outcome string) {
	if m == nil {
		return
	}
	m.summaryCacheLooks.WithLabelValues(outcome).Inc()
}

// Middleware records request counts and latency keyed by the matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
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
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
