package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Realtime metrics
	ConnectionsActive prometheus.Gauge
	EventsReceived    *prometheus.CounterVec
	Broadcasts        *prometheus.CounterVec
	DroppedClients    prometheus.Counter
	UndoSuppressed    prometheus.Counter
	OpsFinalized      prometheus.Counter
	RoomsActive       prometheus.Gauge

	// Event publishing
	EventsPublished *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry so tests and
// multiple servers in one process never collide.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections_active",
			Help:      "Number of open websocket connections",
		}),
		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_events_total",
				Help:      "Inbound protocol events by type",
			},
			[]string{"type"},
		),
		Broadcasts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_broadcasts_total",
				Help:      "Frames enqueued to clients by type",
			},
			[]string{"type"},
		),
		DroppedClients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_dropped_clients_total",
			Help:      "Clients disconnected because their send buffer was full",
		}),
		UndoSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "undo_broadcasts_suppressed_total",
			Help:      "Undo broadcasts dropped by the per-room debounce",
		}),
		OpsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_finalized_total",
			Help:      "Strokes committed to a room history",
		}),
		RoomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Rooms created since start",
		}),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Domain events handed to the event bus by outcome",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.ConnectionsActive,
		c.EventsReceived,
		c.Broadcasts,
		c.DroppedClients,
		c.UndoSuppressed,
		c.OpsFinalized,
		c.RoomsActive,
		c.EventsPublished,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// GetRegistry returns the Prometheus registry for this collector
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, route, status string, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) RecordEvent(eventType string) {
	c.EventsReceived.WithLabelValues(eventType).Inc()
}

func (c *Collector) RecordBroadcast(msgType string, recipients int) {
	c.Broadcasts.WithLabelValues(msgType).Add(float64(recipients))
}

func (c *Collector) RecordUndoSuppressed() {
	c.UndoSuppressed.Inc()
}

func (c *Collector) RecordOperationFinalized() {
	c.OpsFinalized.Inc()
}

func (c *Collector) SetRoomsActive(n int) {
	c.RoomsActive.Set(float64(n))
}

func (c *Collector) ConnectionOpened() {
	c.ConnectionsActive.Inc()
}

func (c *Collector) ConnectionClosed() {
	c.ConnectionsActive.Dec()
}

func (c *Collector) ClientDropped() {
	c.DroppedClients.Inc()
}

// RecordPublish counts events by outcome: published, failed or dropped.
func (c *Collector) RecordPublish(status string, n int) {
	c.EventsPublished.WithLabelValues(status).Add(float64(n))
}
