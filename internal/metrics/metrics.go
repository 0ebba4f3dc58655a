package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/roman-kulish/ismscope/internal/plot"
)

const namespace = "ismscope"

// Collector holds the Prometheus collectors of the update loop and the view
// layer. Each Collector owns its registry.
type Collector struct {
	registry *prometheus.Registry

	ticksTotal        prometheus.Counter       // Completed update ticks
	tickFailures      prometheus.Counter       // Ticks recovered from a failure
	tickDuration      prometheus.Histogram     // Duration of a successful tick
	samplesGenerated  prometheus.Counter       // Samples produced by the generator
	bufferSize        prometheus.Gauge         // Samples currently in the buffer
	selectionSize     *prometheus.GaugeVec     // Selected points (by view)
	recordingFailures prometheus.Counter       // Failed batch writes to storage
	wsClients         prometheus.Gauge         // Connected WebSocket clients
	wsMessagesSent    prometheus.Counter       // Snapshots pushed to WebSocket clients
	commandsTotal     *prometheus.CounterVec   // Control commands (by command)
	httpDuration      *prometheus.HistogramVec // HTTP request latency (by route)
}

// New creates and registers all metrics, including Go runtime and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		ticksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of completed update ticks",
		}),
		tickFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_failures_total",
			Help:      "Total number of update ticks that failed and were skipped",
		}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of an update tick",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		samplesGenerated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_generated_total",
			Help:      "Total number of generated sensor samples",
		}),
		bufferSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_samples",
			Help:      "Number of samples currently held in the rolling buffer",
		}),
		selectionSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "selection_points",
			Help:      "Number of selected points per view",
		}, []string{"view"}),
		recordingFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_failures_total",
			Help:      "Total number of batches that could not be recorded",
		}),
		wsClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Number of connected WebSocket clients",
		}),
		wsMessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_messages_sent_total",
			Help:      "Total number of snapshots sent to WebSocket clients",
		}),
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of control commands",
		}, []string{"command"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// TickCompleted records a successful tick
func (c *Collector) TickCompleted(d time.Duration, generated, buffered int) {
	c.ticksTotal.Inc()
	c.tickDuration.Observe(d.Seconds())
	c.samplesGenerated.Add(float64(generated))
	c.bufferSize.Set(float64(buffered))
}

// TickFailed records a skipped tick
func (c *Collector) TickFailed() {
	c.tickFailures.Inc()
}

// SelectionChanged records the number of selected points of a view
func (c *Collector) SelectionChanged(view plot.View, size int) {
	c.selectionSize.WithLabelValues(string(view)).Set(float64(size))
}

// BufferCleared resets the buffer gauge
func (c *Collector) BufferCleared() {
	c.bufferSize.Set(0)
}

// RecordingFailed records a failed storage write
func (c *Collector) RecordingFailed() {
	c.recordingFailures.Inc()
}

// Command records a control command
func (c *Collector) Command(name string) {
	c.commandsTotal.WithLabelValues(name).Inc()
}

// ClientConnected records a new WebSocket client
func (c *Collector) ClientConnected() {
	c.wsClients.Inc()
}

// ClientDisconnected records a closed WebSocket client
func (c *Collector) ClientDisconnected() {
	c.wsClients.Dec()
}

// MessageSent records a snapshot pushed to a client
func (c *Collector) MessageSent() {
	c.wsMessagesSent.Inc()
}

// Instrument wraps a handler with a latency histogram for the route
func (c *Collector) Instrument(route string, h http.Handler) http.Handler {
	return promhttp.InstrumentHandlerDuration(c.httpDuration.MustCurryWith(prometheus.Labels{"route": route}), h)
}

// Handler returns the /metrics endpoint handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the registry metrics are registered with
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
