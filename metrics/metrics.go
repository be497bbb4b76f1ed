// Package metrics holds the prometheus collectors reported by the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

const namespace = "proxybot"

// Outcome labels for ProcessedMessages.
const (
	OutcomeRelayed   = "relayed"
	OutcomeUnproxied = "unproxied"
	OutcomeFailed    = "failed"
)

// Metrics groups every collector. Each instance owns its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	ProcessedMessages *prometheus.CounterVec
	TagCollisions     prometheus.Counter
	WebhooksCreated   prometheus.Counter
	SendRetries       prometheus.Counter
	RateLimitWaits    prometheus.Counter
	DeleteFailures    prometheus.Counter
	RegisterFailures  prometheus.Counter
	RecordsPurged     prometheus.Counter
}

// New creates the collectors and registers them, together with process and
// host gauges, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ProcessedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Incoming messages by processing outcome.",
		}, []string{"outcome"}),
		TagCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tag_collisions_total",
			Help:      "Messages matched by the proxy tags of more than one member.",
		}),
		WebhooksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_created_total",
			Help:      "Webhooks created on the platform.",
		}),
		SendRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_send_retries_total",
			Help:      "Webhook sends retried after a transient failure.",
		}),
		RateLimitWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_waits_total",
			Help:      "Rate-limit responses honoured before retrying.",
		}),
		DeleteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "original_delete_failures_total",
			Help:      "Originals left in place after their relay succeeded.",
		}),
		RegisterFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "register_failures_total",
			Help:      "Relayed messages that could not be recorded.",
		}),
		RecordsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_records_purged_total",
			Help:      "Relayed-message records removed by retention.",
		}),
	}

	m.Registry.MustRegister(
		m.ProcessedMessages,
		m.TagCollisions,
		m.WebhooksCreated,
		m.SendRetries,
		m.RateLimitWaits,
		m.DeleteFailures,
		m.RegisterFailures,
		m.RecordsPurged,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.Registry.MustRegister(hostCollectors()...)
	return m
}

func hostCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_cpu_percent",
			Help:      "Host CPU utilisation since the previous scrape.",
		}, func() float64 {
			percent, err := cpu.Percent(0, false)
			if err != nil || len(percent) == 0 {
				return 0
			}
			return percent[0]
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_memory_used_percent",
			Help:      "Host memory in use.",
		}, func() float64 {
			vm, err := mem.VirtualMemory()
			if err != nil {
				return 0
			}
			return vm.UsedPercent
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_uptime_seconds",
			Help:      "Host uptime.",
		}, func() float64 {
			uptime, err := host.Uptime()
			if err != nil {
				return 0
			}
			return float64(uptime)
		}),
	}
}
