package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "roomsync"
	metricsSubsystem = "client"
)

// metrics aggregates the client's Prometheus metrics. Each client registers
// on its own registry unless Config.Registerer says otherwise.
type metrics struct {
	framesSent     prometheus.Counter
	framesReceived prometheus.Counter
	batchFlushes   prometheus.Counter
	eventsSent     prometheus.Counter
	eventsReceived prometheus.Counter
	streamsSent    prometheus.Counter
	streamsRecv    prometheus.Counter
	dropped        prometheus.Counter
	reconnects     prometheus.Counter
	latencyMs      prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      name,
			Help:      help,
		})
	}

	return &metrics{
		framesSent:     counter("frames_sent_total", "Websocket frames written to the room link."),
		framesReceived: counter("frames_received_total", "Websocket frames read from the room link."),
		batchFlushes:   counter("batch_flushes_total", "Reliable batch flushes, timer and threshold driven."),
		eventsSent:     counter("events_sent_total", "Application events sent."),
		eventsReceived: counter("events_received_total", "Application events executed locally."),
		streamsSent:    counter("stream_frames_sent_total", "Stream snapshots sent."),
		streamsRecv:    counter("stream_frames_received_total", "Stream snapshots consumed."),
		dropped:        counter("messages_dropped_total", "Incoming messages dropped: decode failures, unknown tags, unresolved targets."),
		reconnects:     counter("reconnect_attempts_total", "Automatic reconnect attempts after the room link closed."),
		latencyMs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "estimated_latency_ms",
			Help:      "Latest one-way delay estimate from the pong exchange.",
		}),
	}
}
