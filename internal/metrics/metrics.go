package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/customeros/ticketstack/internal/enum"
)

const namespace = "ticketstack"

// Metrics are the worker's prometheus collectors.
type Metrics struct {
	Registry *prometheus.Registry

	MessagesProcessed   prometheus.Counter
	MessagesFailed      prometheus.Counter
	MessagesSkipped     prometheus.Counter
	AttachmentsAccepted prometheus.Counter
	AttachmentsRejected *prometheus.CounterVec
	TicketsCreated      prometheus.Counter
	IdleFailures        prometheus.Counter
	Drains              prometheus.Counter
	DrainDuration       prometheus.Histogram
	MonitorMode         prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		MessagesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Inbound emails persisted as ticket messages",
		}),
		MessagesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_failed_total",
			Help:      "Inbound emails that failed processing",
		}),
		MessagesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_skipped_total",
			Help:      "Inbound emails skipped for missing source, envelope or sender",
		}),
		AttachmentsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachments_accepted_total",
			Help:      "Attachments stored",
		}),
		AttachmentsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachments_rejected_total",
			Help:      "Attachments rejected by policy",
		}, []string{"reason"}),
		TicketsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_created_total",
			Help:      "Tickets minted from inbound email",
		}),
		IdleFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idle_failures_total",
			Help:      "Failed IMAP IDLE cycles",
		}),
		Drains: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drains_total",
			Help:      "Passes over the unseen message set",
		}),
		DrainDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drain_duration_seconds",
			Help:      "Duration of one drain",
			Buckets:   prometheus.DefBuckets,
		}),
		MonitorMode: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitor_mode",
			Help:      "Monitor mode, 0 idle, 1 polling",
		}),
	}
}

func (m *Metrics) SetMode(mode enum.MonitorMode) {
	if mode == enum.MonitorPolling {
		m.MonitorMode.Set(1)
		return
	}
	m.MonitorMode.Set(0)
}
