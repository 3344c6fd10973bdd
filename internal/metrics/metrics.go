package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "arbwatch"

// Collector owns the Prometheus series exported by the monitoring services.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry       *prometheus.Registry
	cycles         *prometheus.CounterVec
	opportunities  *prometheus.CounterVec
	gatewayErrors  *prometheus.CounterVec
	quoteLatency   *prometheus.HistogramVec
	cbboSpread     *prometheus.GaugeVec
	monitorRunning *prometheus.GaugeVec
}

// NewCollector registers all series on a fresh registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_cycles_total",
			Help:      "Monitoring loop iterations by service and result",
		}, []string{"service", "result"}),
		opportunities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_total",
			Help:      "Arbitrage opportunities emitted by symbol",
		}, []string{"symbol"}),
		gatewayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_failures_total",
			Help:      "Market data requests that failed by exchange",
		}, []string{"exchange"}),
		quoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_latency_seconds",
			Help:      "Time to obtain an L1 quote",
			Buckets:   prometheus.DefBuckets,
		}, []string{"exchange"}),
		cbboSpread: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cbbo_spread",
			Help:      "Consolidated ask minus bid by symbol",
		}, []string{"symbol"}),
		monitorRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitor_running",
			Help:      "1 when the monitoring loop is running",
		}, []string{"service"}),
	}

	c.registry.MustRegister(
		c.cycles,
		c.opportunities,
		c.gatewayErrors,
		c.quoteLatency,
		c.cbboSpread,
		c.monitorRunning,
		prometheus.NewGoCollector(),
	)
	return c
}

// RecordCycle counts one loop iteration; result is "ok" or "error".
func (c *Collector) RecordCycle(service, result string) {
	if c == nil {
		return
	}
	c.cycles.WithLabelValues(service, result).Inc()
}

func (c *Collector) RecordOpportunity(symbol string) {
	if c == nil {
		return
	}
	c.opportunities.WithLabelValues(symbol).Inc()
}

func (c *Collector) RecordGatewayFailure(exchange string) {
	if c == nil {
		return
	}
	c.gatewayErrors.WithLabelValues(exchange).Inc()
}

func (c *Collector) ObserveQuoteLatency(exchange string, d time.Duration) {
	if c == nil {
		return
	}
	c.quoteLatency.WithLabelValues(exchange).Observe(d.Seconds())
}

func (c *Collector) SetCBBOSpread(symbol string, spread float64) {
	if c == nil {
		return
	}
	c.cbboSpread.WithLabelValues(symbol).Set(spread)
}

func (c *Collector) SetMonitorRunning(service string, running bool) {
	if c == nil {
		return
	}
	v := 0.0
	if running {
		v = 1
	}
	c.monitorRunning.WithLabelValues(service).Set(v)
}

// Registry exposes the underlying registry for tests and custom handlers.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
