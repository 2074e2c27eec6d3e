// Package metrics exposes Prometheus instrumentation for the signal
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ordinex/signalrelay/internal/domain"
)

// Recorder counts pipeline events and times the execution fan-out.
type Recorder struct {
	candidates     prometheus.Counter
	qualified      *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	alertDecisions *prometheus.CounterVec
	executions     *prometheus.CounterVec
	fanoutDuration prometheus.Histogram
	activeAccounts prometheus.Gauge
}

// New registers the pipeline collectors with reg. Pass
// prometheus.DefaultRegisterer to publish on the standard /metrics
// endpoint.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		candidates: factory.NewCounter(prometheus.CounterOpts{
			Name: "signalrelay_candidates_total",
			Help: "Candidates received from signal sources",
		}),
		qualified: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signalrelay_qualified_total",
			Help: "Signals that passed qualification, by band",
		}, []string{"band"}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signalrelay_rejections_total",
			Help: "Qualification rejections by reason",
		}, []string{"reason"}),
		alertDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signalrelay_alert_decisions_total",
			Help: "Alert throttle decisions",
		}, []string{"decision"}),
		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signalrelay_executions_total",
			Help: "Per-account execution results by platform and status",
		}, []string{"platform", "status"}),
		fanoutDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalrelay_fanout_duration_seconds",
			Help:    "Wall time of the multi-account execution fan-out",
			Buckets: prometheus.DefBuckets,
		}),
		activeAccounts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "signalrelay_active_accounts",
			Help: "Accounts currently eligible for execution",
		}),
	}
}

// RecordCandidates counts a received candidate batch.
func (r *Recorder) RecordCandidates(n int) {
	r.candidates.Add(float64(n))
}

// RecordQualified counts a signal that passed qualification. band is
// "execution" or "alert".
func (r *Recorder) RecordQualified(band string) {
	r.qualified.WithLabelValues(band).Inc()
}

// RecordRejection counts a qualification rejection.
func (r *Recorder) RecordRejection(reason domain.RejectReason) {
	r.rejections.WithLabelValues(reason.String()).Inc()
}

// RecordAlertDecision counts a throttle verdict.
func (r *Recorder) RecordAlertDecision(decision string) {
	r.alertDecisions.WithLabelValues(decision).Inc()
}

// RecordExecution counts one per-account execution result.
func (r *Recorder) RecordExecution(platform domain.Platform, status domain.ExecStatus) {
	r.executions.WithLabelValues(platform.String(), status.String()).Inc()
}

// ObserveFanout records the wall time of one execution fan-out.
func (r *Recorder) ObserveFanout(d time.Duration) {
	r.fanoutDuration.Observe(d.Seconds())
}

// SetActiveAccounts publishes the current active account count.
func (r *Recorder) SetActiveAccounts(n int) {
	r.activeAccounts.Set(float64(n))
}
