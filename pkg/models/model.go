// Package models defines the contract between the trainer and the external
// machine learning framework that owns the network, the optimizer and the
// sample windowing.
//
// The trainer never computes gradients. It builds a Session from a Spec,
// asks it to fit one epoch at a time, and reacts to the returned metrics by
// changing the learning rate or saving checkpoints.
package models

import (
	"context"

	"github.com/HatiCode/morepork/pkg/dataset"
)

// Optimizer configures the framework optimizer.
type Optimizer struct {
	Name         string  `json:"name"`
	LearningRate float64 `json:"learningRate"`
	Epsilon      float64 `json:"epsilon"`
}

// Spec describes the model to build and the data it trains on.
type Spec struct {
	Experiment string `json:"experiment"`
	Run        int    `json:"run"`

	// InputDims is buckets x slices per sample x channels.
	InputDims   [3]int `json:"inputDims"`
	Outputs     int    `json:"outputs"`
	ResnetSize  int    `json:"resnetSize"`
	ConvSize    [2]int `json:"convSize"`
	ConvStrides [2]int `json:"convStrides"`
	Repetitions []int  `json:"repetitions"`
	Pooling     string `json:"pooling"` // "max" or "avg"

	Optimizer Optimizer `json:"optimizer"`
	Loss      string    `json:"loss"`
	Metrics   []string  `json:"metrics"`

	BatchSize       int `json:"batchSize"`
	StepsPerEpoch   int `json:"stepsPerEpoch"`
	ValidationSteps int `json:"validationSteps"`

	Train      []dataset.Sample `json:"train"`
	Validation []dataset.Sample `json:"validation"`
}

// EpochMetrics are the results of one epoch, keyed like a Keras history.
type EpochMetrics struct {
	Epoch             int     `json:"epoch"`
	Loss              float64 `json:"loss"`
	BinaryAccuracy    float64 `json:"binary_accuracy"`
	ValLoss           float64 `json:"val_loss"`
	ValBinaryAccuracy float64 `json:"val_binary_accuracy"`
	LearningRate      float64 `json:"lr"`
}

// History is the per-epoch metric record of one run.
type History []EpochMetrics

// Series extracts one metric per epoch.
func (h History) Series(metric func(EpochMetrics) float64) []float64 {
	out := make([]float64, len(h))
	for i, m := range h {
		out[i] = metric(m)
	}
	return out
}

// Epochs returns the epoch indexes as float64 values for plotting.
func (h History) Epochs() []float64 {
	return h.Series(func(m EpochMetrics) float64 { return float64(m.Epoch) })
}

// Builder creates training sessions.
type Builder interface {
	// Build compiles a fresh model for spec. No weights or optimizer state
	// are shared with sessions built earlier.
	Build(ctx context.Context, spec Spec) (Session, error)

	// Name returns the builder identifier.
	Name() string
}

// Session is one compiled model with its data streams.
type Session interface {
	// Summary returns the human readable architecture summary.
	Summary(ctx context.Context) (string, error)

	// Describe returns the serialized model description (JSON).
	Describe(ctx context.Context) ([]byte, error)

	// FitEpoch trains one epoch and evaluates on the validation stream.
	FitEpoch(ctx context.Context, epoch int) (EpochMetrics, error)

	// SetLearningRate changes the optimizer learning rate.
	SetLearningRate(ctx context.Context, rate float64) error

	// Save writes the current weights to path.
	Save(ctx context.Context, path string) error

	// Close releases the model and all framework state.
	Close(ctx context.Context) error
}
