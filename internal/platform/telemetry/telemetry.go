// Package telemetry records HTTP and booking metrics on a Prometheus
// registry and serves them at /metrics.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docbook/docbook/internal/platform/events"
)

// Config holds the build attributes exported on docbook_build_info.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "docbook-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// PoolStats reports database pool usage at scrape time.
type PoolStats func() (acquired, idle int64)

// durationBuckets are request duration boundaries in seconds.
var durationBuckets = []float64{
	0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0,
}

// Provider owns the registry and every metric of one server.
type Provider struct {
	cfg Config
	reg *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	activeRequests  prometheus.Gauge
	apptEvents      *prometheus.CounterVec
}

func NewProvider(cfg Config) *Provider {
	cfg.applyDefaults()

	p := &Provider{
		cfg: cfg,
		reg: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_server_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: durationBuckets,
		}, []string{"method", "route", "status_code"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_server_active_requests",
			Help: "Number of active HTTP requests.",
		}),
		apptEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docbook_appointment_events_total",
			Help: "Appointment events published by type.",
		}, []string{"type"}),
	}

	buildInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "docbook_build_info",
		Help: "Build information.",
	}, []string{"service", "version", "environment"})
	buildInfo.WithLabelValues(cfg.ServiceName, cfg.ServiceVersion, cfg.Environment).Set(1)

	p.reg.MustRegister(
		buildInfo,
		p.requestDuration,
		p.activeRequests,
		p.apptEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// SetPoolStats registers pool gauges read from fn on every scrape. Call it
// at most once per Provider.
func (p *Provider) SetPoolStats(fn PoolStats) {
	p.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "db_pool_acquired_connections",
			Help: "Connections currently in use.",
		}, func() float64 {
			acquired, _ := fn()
			return float64(acquired)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "db_pool_idle_connections",
			Help: "Idle pooled connections.",
		}, func() float64 {
			_, idle := fn()
			return float64(idle)
		}),
	)
}

// Publish counts appointment events so the Provider can sit in an
// events.MultiPublisher next to the hub.
func (p *Provider) Publish(_ context.Context, ev events.Event) error {
	p.apptEvents.WithLabelValues(ev.Type).Inc()
	return nil
}

// Middleware records request duration by route pattern and status code.
func (p *Provider) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p.activeRequests.Inc()
			start := time.Now()

			err := next(c)

			p.activeRequests.Dec()

			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				// The error handler has not written yet; report what it will.
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}

			p.requestDuration.
				WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// PrometheusHandler serves the registry in the text exposition format.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{}))
}
