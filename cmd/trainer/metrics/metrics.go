// Package metrics provides Prometheus metrics instrumentation for the trainer.
//
// Metrics exposed:
//   - morepork_epoch_seconds: Histogram of epoch fit duration
//   - morepork_validation_accuracy: Gauge of the last val_binary_accuracy
//   - morepork_validation_loss: Gauge of the last val_loss
//   - morepork_learning_rate: Gauge of the current learning rate
//   - morepork_best_validation_accuracy: Gauge of the last saved accuracy of the current run
//   - morepork_checkpoint_saves_total: Counter of checkpoint saves
//   - morepork_checkpoint_decays_total: Counter of best-value decays
//   - morepork_learning_rate_reductions_total: Counter of plateau reductions
//   - morepork_runs_completed_total: Counter of finished training runs
//   - morepork_errors_total: Counter of errors by component and reason
//
// All metrics carry the experiment label.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the trainer.
type Metrics struct {
	EpochSeconds           prometheus.Histogram
	ValidationAccuracy     prometheus.Gauge
	ValidationLoss         prometheus.Gauge
	LearningRate           prometheus.Gauge
	BestValidationAccuracy prometheus.Gauge
	CheckpointSaves        prometheus.Counter
	CheckpointDecays       prometheus.Counter
	RateReductions         prometheus.Counter
	RunsCompleted          prometheus.Counter
	ErrorsTotal            *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(experiment string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"experiment": experiment}

	return &Metrics{
		EpochSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "morepork_epoch_seconds",
			Help:        "Time spent fitting and evaluating one epoch",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~34m
		}),

		ValidationAccuracy: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "morepork_validation_accuracy",
			Help:        "Validation binary accuracy of the last epoch",
			ConstLabels: labels,
		}),

		ValidationLoss: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "morepork_validation_loss",
			Help:        "Validation loss of the last epoch",
			ConstLabels: labels,
		}),

		LearningRate: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "morepork_learning_rate",
			Help:        "Current optimizer learning rate",
			ConstLabels: labels,
		}),

		BestValidationAccuracy: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "morepork_best_validation_accuracy",
			Help:        "Validation accuracy of the last checkpoint saved in the current run",
			ConstLabels: labels,
		}),

		CheckpointSaves: factory.NewCounter(prometheus.CounterOpts{
			Name:        "morepork_checkpoint_saves_total",
			Help:        "Total number of checkpoints saved",
			ConstLabels: labels,
		}),

		CheckpointDecays: factory.NewCounter(prometheus.CounterOpts{
			Name:        "morepork_checkpoint_decays_total",
			Help:        "Total number of best-value decays",
			ConstLabels: labels,
		}),

		RateReductions: factory.NewCounter(prometheus.CounterOpts{
			Name:        "morepork_learning_rate_reductions_total",
			Help:        "Total number of learning rate reductions on plateau",
			ConstLabels: labels,
		}),

		RunsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name:        "morepork_runs_completed_total",
			Help:        "Total number of completed training runs",
			ConstLabels: labels,
		}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "morepork_errors_total",
			Help:        "Total number of errors by component and reason",
			ConstLabels: labels,
		}, []string{"component", "reason"}),
	}
}

// RecordEpoch records the duration and validation results of an epoch.
func (m *Metrics) RecordEpoch(seconds, valAccuracy, valLoss float64) {
	m.EpochSeconds.Observe(seconds)
	m.ValidationAccuracy.Set(valAccuracy)
	m.ValidationLoss.Set(valLoss)
}

// SetLearningRate sets the current learning rate.
func (m *Metrics) SetLearningRate(rate float64) {
	m.LearningRate.Set(rate)
}

// RecordReduction counts a plateau reduction.
func (m *Metrics) RecordReduction() {
	m.RateReductions.Inc()
}

// RecordSave counts a checkpoint save at the given accuracy.
func (m *Metrics) RecordSave(accuracy float64) {
	m.CheckpointSaves.Inc()
	m.BestValidationAccuracy.Set(accuracy)
}

// RecordDecay counts a best-value decay.
func (m *Metrics) RecordDecay() {
	m.CheckpointDecays.Inc()
}

// RecordRun counts a completed run.
func (m *Metrics) RecordRun() {
	m.RunsCompleted.Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
