// Package main implements the training orchestration.
//
// This file contains the Trainer type which repeats independent training runs
// over the same sample set:
//
//	load samples → (shuffle → split → build → fit epochs → plot → store) × trainings
//
// Within a run each epoch's metrics drive two policies: the plateau reducer
// lowers the learning rate when val_loss stalls, and the checkpoint monitor
// decides whether the epoch's weights are saved. The best saved validation
// accuracy of every run is averaged and printed when all runs are done.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HatiCode/morepork/cmd/trainer/config"
	"github.com/HatiCode/morepork/cmd/trainer/metrics"
	"github.com/HatiCode/morepork/pkg/checkpoint"
	"github.com/HatiCode/morepork/pkg/dataset"
	"github.com/HatiCode/morepork/pkg/models"
	"github.com/HatiCode/morepork/pkg/report"
	"github.com/HatiCode/morepork/pkg/samples"
	"github.com/HatiCode/morepork/pkg/schedule"
	"github.com/HatiCode/morepork/pkg/storage"
)

// closeTimeout bounds session teardown, which runs even after cancellation.
const closeTimeout = 30 * time.Second

// Progress is the position of the running job, served on /progress.
type Progress struct {
	Experiment   string  `json:"experiment"`
	Run          int     `json:"run"`
	Trainings    int     `json:"trainings"`
	Epoch        int     `json:"epoch"`
	Epochs       int     `json:"epochs"`
	LearningRate float64 `json:"learningRate"`
	LastSave     float64 `json:"lastSave"`
	Finished     bool    `json:"finished"`
}

// Trainer orchestrates the training runs of one experiment.
type Trainer struct {
	cfg     *config.Config
	source  samples.Source
	builder models.Builder
	store   storage.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	out     io.Writer
	rng     *rand.Rand

	mu       sync.Mutex
	progress Progress
}

// NewTrainer creates a Trainer. Results are printed to out.
func NewTrainer(
	cfg *config.Config,
	source samples.Source,
	builder models.Builder,
	store storage.Store,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	out io.Writer,
) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = os.Stdout
	}

	seed := uint64(cfg.Seed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return &Trainer{
		cfg:     cfg,
		source:  source,
		builder: builder,
		store:   store,
		logger:  logger,
		metrics: metrics,
		out:     out,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		progress: Progress{
			Experiment: cfg.Experiment(),
			Trainings:  cfg.Trainings,
			Epochs:     cfg.Epochs,
		},
	}
}

// Progress returns a snapshot of the job position.
func (t *Trainer) Progress() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

func (t *Trainer) updateProgress(fn func(p *Progress)) {
	t.mu.Lock()
	fn(&t.progress)
	t.mu.Unlock()
}

// Run executes all training runs and returns the average best validation
// accuracy. It stops at the first failing run.
func (t *Trainer) Run(ctx context.Context) (float64, error) {
	set, err := t.source.Load(ctx)
	if err != nil {
		t.recordError("samples", "load_failed")
		return 0, fmt.Errorf("load samples: %w", err)
	}

	all := dataset.Labelled(set)
	trainCount, validationCount := dataset.Counts(len(all), t.cfg.TrainFraction, t.cfg.BatchSize)
	if trainCount == 0 {
		return 0, fmt.Errorf("no training samples left out of %d", len(all))
	}

	saveDir := t.cfg.SaveDirectory()
	if err := os.MkdirAll(saveDir, 0o755); err != nil {
		return 0, fmt.Errorf("create save directory: %w", err)
	}

	t.logger.Info("training",
		"source", t.source.Name(),
		"positive", len(set.Positive),
		"negative", len(set.Negative),
		"train_samples", trainCount,
		"validation_samples", validationCount,
		"save_dir", saveDir,
		"builder", t.builder.Name(),
	)

	var sum float64
	for i := 0; i < t.cfg.Trainings; i++ {
		run, err := t.train(ctx, i, all, trainCount, saveDir)
		if err != nil {
			return 0, fmt.Errorf("run %d: %w", i, err)
		}
		sum += run.BestValidationAccuracy
	}

	avg := sum / float64(t.cfg.Trainings)
	t.updateProgress(func(p *Progress) { p.Finished = true })

	fmt.Fprintf(t.out, "Average best validation accuracy %04f\n", avg)
	return avg, nil
}

// train performs one independent run: a fresh split, a fresh session and
// fresh policies.
func (t *Trainer) train(ctx context.Context, i int, all []dataset.Sample, trainCount int, saveDir string) (storage.RunRecord, error) {
	train, validation, err := dataset.Split(all, trainCount, t.rng)
	if err != nil {
		return storage.RunRecord{}, fmt.Errorf("split: %w", err)
	}

	weightsDir := filepath.Join(saveDir, fmt.Sprintf("weights%d", i))
	if err := os.MkdirAll(weightsDir, 0o755); err != nil {
		return storage.RunRecord{}, fmt.Errorf("create weights directory: %w", err)
	}

	sess, err := t.builder.Build(ctx, t.modelSpec(i, train, validation))
	if err != nil {
		t.recordError("builder", "build_failed")
		return storage.RunRecord{}, fmt.Errorf("build model: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			t.recordError("session", "close_failed")
			t.logger.Error("failed to close session", "run", i, "error", err)
		}
	}()

	if i == 0 {
		if err := t.writeModelFiles(ctx, sess, saveDir); err != nil {
			return storage.RunRecord{}, err
		}
	}

	run := storage.RunRecord{
		Experiment:    t.cfg.Experiment(),
		RunID:         uuid.New().String(),
		Index:         i,
		StartedAt:     time.Now().UTC(),
		CheckpointDir: weightsDir,
	}
	t.logger.Info("run started", "run", i, "run_id", run.RunID, "train", len(train), "validation", len(validation))

	monitor := checkpoint.NewMonitor(t.cfg.Checkpoint)
	plateau := schedule.NewPlateauReducer(t.cfg.Plateau, t.cfg.LearningRate)
	if t.metrics != nil {
		t.metrics.SetLearningRate(plateau.Rate())
	}
	t.updateProgress(func(p *Progress) {
		p.Run, p.Epoch, p.LearningRate, p.LastSave = i, 0, plateau.Rate(), 0
	})

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		start := time.Now()
		m, err := sess.FitEpoch(ctx, epoch)
		if err != nil {
			t.recordError("session", "fit_failed")
			return storage.RunRecord{}, fmt.Errorf("fit epoch %d: %w", epoch, err)
		}
		if m.LearningRate == 0 {
			m.LearningRate = plateau.Rate()
		}
		run.History = append(run.History, m)
		if t.metrics != nil {
			t.metrics.RecordEpoch(time.Since(start).Seconds(), m.ValBinaryAccuracy, m.ValLoss)
		}

		if rate, changed := plateau.Observe(m.ValLoss); changed {
			if err := sess.SetLearningRate(ctx, rate); err != nil {
				t.recordError("session", "set_learning_rate_failed")
				return storage.RunRecord{}, fmt.Errorf("epoch %d: %w", epoch, err)
			}
			t.logger.Info("reduced learning rate", "run", i, "epoch", epoch, "learning_rate", rate)
			if t.metrics != nil {
				t.metrics.RecordReduction()
				t.metrics.SetLearningRate(rate)
			}
		}

		d := monitor.Observe(epoch, m.ValBinaryAccuracy)
		if d.Decayed {
			t.logger.Debug("relaxed best validation accuracy", "run", i, "epoch", epoch, "best", d.Best)
			if t.metrics != nil {
				t.metrics.RecordDecay()
			}
		}
		if d.Save {
			path := filepath.Join(weightsDir, fmt.Sprintf("model-%02d-%.4f", epoch+1, m.ValBinaryAccuracy))
			if err := sess.Save(ctx, path); err != nil {
				t.recordError("session", "save_failed")
				return storage.RunRecord{}, fmt.Errorf("epoch %d: %w", epoch, err)
			}
			t.logger.Info("saved checkpoint", "run", i, "epoch", epoch, "val_binary_accuracy", m.ValBinaryAccuracy, "path", path)
			if t.metrics != nil {
				t.metrics.RecordSave(m.ValBinaryAccuracy)
			}
		}

		t.logger.Debug("epoch finished",
			"run", i,
			"epoch", epoch,
			"loss", m.Loss,
			"binary_accuracy", m.BinaryAccuracy,
			"val_loss", m.ValLoss,
			"val_binary_accuracy", m.ValBinaryAccuracy,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		t.updateProgress(func(p *Progress) {
			p.Epoch, p.LearningRate, p.LastSave = epoch+1, plateau.Rate(), monitor.LastSave()
		})
	}

	state := monitor.State()
	run.FinishedAt = time.Now().UTC()
	run.Epochs = len(run.History)
	run.BestValidationAccuracy = monitor.LastSave()
	run.Saves = state.Saves
	run.Decays = state.Decays
	run.FinalLearningRate = plateau.Rate()
	run.RateReductions = plateau.Reductions()

	plotPath := filepath.Join(weightsDir, report.HistoryFile)
	switch err := report.PlotHistory(plotPath, run.History); {
	case errors.Is(err, report.ErrShortHistory):
		t.logger.Info("skipped history plot", "run", i, "epochs", run.Epochs)
	case err != nil:
		t.recordError("report", "plot_failed")
		t.logger.Warn("failed to plot history", "run", i, "error", err)
	}

	if err := t.store.Put(ctx, run); err != nil {
		t.recordError("store", "put_failed")
		return storage.RunRecord{}, fmt.Errorf("store run: %w", err)
	}
	if t.metrics != nil {
		t.metrics.RecordRun()
	}

	t.logger.Info("run complete",
		"run", i,
		"best_validation_accuracy", run.BestValidationAccuracy,
		"saves", run.Saves,
		"decays", run.Decays,
		"learning_rate", run.FinalLearningRate,
		"rate_reductions", run.RateReductions,
		"duration", run.FinishedAt.Sub(run.StartedAt).Round(time.Second),
	)
	return run, nil
}

func (t *Trainer) modelSpec(i int, train, validation []dataset.Sample) models.Spec {
	return models.Spec{
		Experiment:  t.cfg.Experiment(),
		Run:         i,
		InputDims:   [3]int{t.cfg.NumBuckets, t.cfg.SlicesPerSample, 1},
		Outputs:     1,
		ResnetSize:  t.cfg.ResnetSize,
		ConvSize:    [2]int{t.cfg.ConvSize[0], t.cfg.ConvSize[1]},
		ConvStrides: [2]int{t.cfg.ConvStrides[0], t.cfg.ConvStrides[1]},
		Repetitions: []int{3, 4},
		Pooling:     t.cfg.Pooling(),
		Optimizer: models.Optimizer{
			Name:         "adam",
			LearningRate: t.cfg.LearningRate,
			Epsilon:      t.cfg.Epsilon,
		},
		Loss:            "binary_crossentropy",
		Metrics:         []string{"binary_accuracy"},
		BatchSize:       t.cfg.BatchSize,
		StepsPerEpoch:   dataset.Steps(len(train), t.cfg.BatchSize),
		ValidationSteps: dataset.Steps(len(validation), t.cfg.BatchSize),
		Train:           train,
		Validation:      validation,
	}
}

func (t *Trainer) writeModelFiles(ctx context.Context, sess models.Session, saveDir string) error {
	summary, err := sess.Summary(ctx)
	if err != nil {
		return fmt.Errorf("model summary: %w", err)
	}
	description, err := sess.Describe(ctx)
	if err != nil {
		return fmt.Errorf("model description: %w", err)
	}
	if err := report.WriteModelFiles(saveDir, summary, description); err != nil {
		t.recordError("report", "model_files_failed")
		return err
	}
	fmt.Fprintln(t.out, summary)
	return nil
}

func (t *Trainer) recordError(component, reason string) {
	if t.metrics != nil {
		t.metrics.RecordError(component, reason)
	}
}
