package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "impact_story"

// Outcomes of a form action.
const (
	OutcomeSuccess         = "success"
	OutcomeInvalid         = "invalid"
	OutcomeUnconfigured    = "unconfigured"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeFailed          = "failed"
)

// Collector is a prometheus.Collector for form actions, read views and the
// page cache.
type Collector struct {
	actions        *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	pageCache      *prometheus.CounterVec
	revalidations  *prometheus.CounterVec
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "actions_total",
				Help:      "The number of form actions by outcome.",
			}, []string{"action", "outcome"},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "action_duration_seconds",
				Help:      "The time taken by a form action including backend calls.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			}, []string{"action"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "The number of HTTP requests by route pattern and status code.",
			}, []string{"method", "route", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "The time taken to serve an HTTP request.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method", "route"},
		),
		pageCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "page_cache_lookups_total",
				Help:      "The number of page cache lookups by result.",
			}, []string{"result"},
		),
		revalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "page_revalidations_total",
				Help:      "The number of times a route was revalidated by an action.",
			}, []string{"route"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.actions.Describe(ch)
	c.actionDuration.Describe(ch)
	c.httpRequests.Describe(ch)
	c.httpDuration.Describe(ch)
	c.pageCache.Describe(ch)
	c.revalidations.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.actions.Collect(ch)
	c.actionDuration.Collect(ch)
	c.httpRequests.Collect(ch)
	c.httpDuration.Collect(ch)
	c.pageCache.Collect(ch)
	c.revalidations.Collect(ch)
}

func (c *Collector) ObserveAction(action, outcome string, elapsed time.Duration) {
	c.actions.WithLabelValues(action, outcome).Inc()
	c.actionDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (c *Collector) PageCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.pageCache.WithLabelValues(result).Inc()
}

func (c *Collector) Revalidated(routes ...string) {
	for _, r := range routes {
		c.revalidations.WithLabelValues(r).Inc()
	}
}

// NewRegistry returns a registry holding c plus the Go runtime and process collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
