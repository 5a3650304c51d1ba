package storage

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/HatiCode/morepork/pkg/models"
)

// RunRecord is the outcome of one training run.
type RunRecord struct {
	Experiment string    `json:"experiment"`
	RunID      string    `json:"runId"`
	Index      int       `json:"index"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	Epochs                 int     `json:"epochs"`
	BestValidationAccuracy float64 `json:"bestValidationAccuracy"`
	Saves                  int     `json:"saves"`
	Decays                 int     `json:"decays"`
	FinalLearningRate      float64 `json:"finalLearningRate"`
	RateReductions         int     `json:"rateReductions"`
	CheckpointDir          string  `json:"checkpointDir"`

	History models.History `json:"history,omitempty"`
}

// Store persists run records per experiment.
type Store interface {
	Put(ctx context.Context, run RunRecord) error
	GetLatest(ctx context.Context, experiment string) (RunRecord, bool, error)
	List(ctx context.Context, experiment string) ([]RunRecord, error)

	// Ping reports whether the backend can serve requests.
	Ping(ctx context.Context) error
}

var experimentNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._-]{0,251}[a-zA-Z0-9])?$`)

// ErrInvalidExperiment is returned for empty or malformed experiment names.
var ErrInvalidExperiment = errors.New("invalid experiment name: only alphanumeric, dots, hyphens, and underscores allowed")

// ValidExperiment reports whether name can be used as an experiment key.
func ValidExperiment(name string) bool {
	return experimentNameRegex.MatchString(name)
}
