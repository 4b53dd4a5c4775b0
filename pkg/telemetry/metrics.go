package telemetry

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatcore_online_users",
		Help: "Users holding at least one live connection.",
	})

	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatcore_push_connections",
		Help: "Open push connections.",
	})

	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatcore_messages_sent_total",
		Help: "Messages persisted by send.",
	})

	StatusTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatcore_status_transitions_total",
		Help: "Message status transitions by target status.",
	}, []string{"status"})

	PushFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatcore_push_frames_total",
		Help: "Frames queued to push connections by event type.",
	}, []string{"type"})

	PushOverflows = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatcore_push_overflow_total",
		Help: "Connections closed because their send queue was full.",
	})

	PresenceEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatcore_presence_frames_total",
		Help: "presence_change frames fanned out.",
	})

	RetentionScrubbed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatcore_retention_scrubbed_total",
		Help: "Deleted messages whose content was scrubbed.",
	})

	DiskUsedPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatcore_disk_used_percent",
		Help: "Used space on the database volume.",
	})

	stepSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatcore_operation_step_seconds",
		Help:    "Duration of traced operation steps.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"op", "step"})

	heapAlloc = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "chatcore_heap_alloc_bytes",
			Help: "Current heap allocation in bytes.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.HeapAlloc)
		},
	)
)

func init() {
	prometheus.MustRegister(
		OnlineUsers,
		Connections,
		MessagesSent,
		StatusTransitions,
		PushFrames,
		PushOverflows,
		PresenceEvents,
		RetentionScrubbed,
		DiskUsedPercent,
		stepSeconds,
		heapAlloc,
	)
}

// Handler serves the default prometheus registry on fasthttp.
func Handler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
}
