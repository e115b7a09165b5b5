package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the panel's prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	submits         *prometheus.CounterVec
	labourActions   *prometheus.CounterVec
	workspaces      prometheus.Gauge
	liveClients     prometheus.Gauge
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panel_http_requests_total",
			Help: "Panel HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "panel_http_request_duration_seconds",
			Help:    "Panel HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		submits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panel_engineer_submits_total",
			Help: "Engineer form submit attempts by mode and result.",
		}, []string{"mode", "result"}),
		labourActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panel_labour_actions_total",
			Help: "Labour view actions by action and result.",
		}, []string{"action", "result"}),
		workspaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "panel_workspaces_active",
			Help: "Browser sessions holding a workspace.",
		}),
		liveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "panel_live_clients",
			Help: "Open live-update websockets.",
		}),
	}
	c.registry.MustRegister(
		c.requests,
		c.requestDuration,
		c.submits,
		c.labourActions,
		c.workspaces,
		c.liveClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Record(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (c *Collector) ObserveSubmit(mode, result string) {
	c.submits.WithLabelValues(mode, result).Inc()
}

func (c *Collector) ObserveLabourAction(action, result string) {
	c.labourActions.WithLabelValues(action, result).Inc()
}

func (c *Collector) SetWorkspaces(n int) {
	c.workspaces.Set(float64(n))
}

func (c *Collector) LiveClientConnected() {
	c.liveClients.Inc()
}

func (c *Collector) LiveClientDisconnected() {
	c.liveClients.Dec()
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
