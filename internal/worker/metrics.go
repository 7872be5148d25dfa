package worker

import "github.com/prometheus/client_golang/prometheus"

var (
	wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dexstream_ws_connections",
		Help: "Current number of active WebSocket connections.",
	})
	eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dexstream_events_total",
		Help: "Total data events applied, by data type.",
	}, []string{"type"})
	messagesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dexstream_messages_delivered_total",
		Help: "Total payload deliveries accepted by client connections.",
	})
	publishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dexstream_publish_latency_seconds",
		Help:    "Latency of fanning one event out to a topic's subscribers.",
		Buckets: prometheus.DefBuckets,
	})
	rateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dexstream_rate_limited_total",
		Help: "Control messages rejected by the per-connection rate limiter.",
	})
)

func init() {
	prometheus.MustRegister(wsConnections, eventsTotal, messagesDelivered, publishLatency, rateLimitedTotal)
}
