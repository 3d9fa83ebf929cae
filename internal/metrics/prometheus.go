package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/maxbolgarin/hookflow/internal/model"
)

// PrometheusRecorder implements Recorder on a Prometheus registry.
type PrometheusRecorder struct {
	webhooks         *prom.CounterVec
	pipelines        *prom.CounterVec
	transitions      *prom.CounterVec
	terminalDuration *prom.HistogramVec
	stateCounts      *prom.GaugeVec
	taskRetries      *prom.CounterVec
	taskExhausted    *prom.CounterVec
	reaped           *prom.CounterVec
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder constructs and registers the metric set.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &PrometheusRecorder{
		webhooks: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "hookflow",
			Name:      "webhooks_received_total",
			Help:      "Inbound webhook deliveries by service and outcome",
		}, []string{"service", "outcome"}),
		pipelines: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "hookflow",
			Name:      "pipelines_created_total",
			Help:      "Pipelines created by service",
		}, []string{"service"}),
		transitions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "hookflow",
			Name:      "pipeline_transitions_total",
			Help:      "Pipeline state transitions by from and to state",
		}, []string{"from", "to"}),
		terminalDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "hookflow",
			Name:      "pipeline_duration_seconds",
			Help:      "Time from pipeline creation to a terminal state",
			Buckets:   prom.DefBuckets,
		}, []string{"service"}),
		stateCounts: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "hookflow",
			Name:      "pipelines_in_state",
			Help:      "Current number of pipelines per state",
		}, []string{"state"}),
		taskRetries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "hookflow",
			Name:      "task_retries_total",
			Help:      "Task retries by task kind",
		}, []string{"kind"}),
		taskExhausted: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "hookflow",
			Name:      "task_retries_exhausted_total",
			Help:      "Tasks that exhausted their retry budget",
		}, []string{"kind"}),
		reaped: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "hookflow",
			Name:      "pipelines_reaped_total",
			Help:      "Reaper actions by outcome",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		r.webhooks, r.pipelines, r.transitions, r.terminalDuration,
		r.stateCounts, r.taskRetries, r.taskExhausted, r.reaped,
	)
	return r
}

func (r *PrometheusRecorder) WebhookReceived(service model.ServiceName, outcome string) {
	r.webhooks.WithLabelValues(string(service), outcome).Inc()
}

func (r *PrometheusRecorder) PipelineCreated(service model.ServiceName) {
	r.pipelines.WithLabelValues(string(service)).Inc()
}

func (r *PrometheusRecorder) Transition(from, to model.PipelineState) {
	r.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (r *PrometheusRecorder) TerminalDuration(service model.ServiceName, d time.Duration) {
	r.terminalDuration.WithLabelValues(string(service)).Observe(d.Seconds())
}

func (r *PrometheusRecorder) SetStateCount(state model.PipelineState, n float64) {
	r.stateCounts.WithLabelValues(string(state)).Set(n)
}

func (r *PrometheusRecorder) TaskRetry(kind model.TaskKind) {
	r.taskRetries.WithLabelValues(string(kind)).Inc()
}

func (r *PrometheusRecorder) TaskExhausted(kind model.TaskKind) {
	r.taskExhausted.WithLabelValues(string(kind)).Inc()
}

func (r *PrometheusRecorder) Reaped(outcome string) {
	r.reaped.WithLabelValues(outcome).Inc()
}
