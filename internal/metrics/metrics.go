package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	CommandsSent     *prometheus.CounterVec // labels: cmd
	CompletionsTotal *prometheus.CounterVec // labels: cmd, status=ok|error
	RunsTotal        *prometheus.CounterVec // labels: pipeline, outcome=success|fail
	RunDuration      *prometheus.HistogramVec
	UnexpectedEvents prometheus.Counter
	ActiveRuns       prometheus.Gauge
	BuffersInUse     prometheus.Gauge
	ProvisionDepth   prometheus.Gauge
	ProvisionJobs    *prometheus.CounterVec // labels: outcome=success|fail|retry|dead
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		CommandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hci_commands_sent_total",
			Help: "HCI commands written to the controller, by command name.",
		}, []string{"cmd"}),
		CompletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hci_completions_total",
			Help: "Command Complete events observed, by command name and status.",
		}, []string{"cmd", "status"}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "config_runs_total",
			Help: "Configuration pipeline runs by pipeline and outcome.",
		}, []string{"pipeline", "outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "config_run_duration_seconds",
			Help:    "Duration of configuration pipeline runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"pipeline"}),
		UnexpectedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hci_unexpected_events_total",
			Help: "Command Complete events whose opcode did not match the pending command.",
		}),
		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "config_active_runs",
			Help: "Configuration pipeline runs currently in flight.",
		}),
		BuffersInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hci_buffers_in_use",
			Help: "Pooled HCI packet buffers currently allocated.",
		}),
		ProvisionDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "provision_queue_depth",
			Help: "Provisioning jobs waiting in the queue.",
		}),
		ProvisionJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provision_jobs_total",
			Help: "Provisioning jobs processed by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		m.CommandsSent, m.CompletionsTotal, m.RunsTotal, m.RunDuration,
		m.UnexpectedEvents, m.ActiveRuns, m.BuffersInUse, m.ProvisionDepth, m.ProvisionJobs,
	)
	return m
}
