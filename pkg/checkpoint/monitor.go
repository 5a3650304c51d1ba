// Package checkpoint decides when a training run has produced a model worth
// saving.
//
// Monitor tracks the best value of a maximised metric (validation accuracy in
// practice). Unlike a strict best-only policy it tolerates plateaus: after
// every DecayTime epochs without a save, the stored best is multiplied by
// DecayRate so that a later epoch matching the old plateau can still be saved.
//
// The monitor is a plain state machine with no framework hooks. The caller
// feeds it one value per epoch and acts on the returned Decision:
//
//	m := checkpoint.NewMonitor(checkpoint.Config{StartEpoch: 50, DecayTime: 100, DecayRate: 0.9999})
//	for epoch := 0; epoch < epochs; epoch++ {
//	    metrics := fit(epoch)
//	    if d := m.Observe(epoch, metrics.ValBinaryAccuracy); d.Save {
//	        save(epoch, metrics)
//	    }
//	}
package checkpoint

import (
	"errors"
	"fmt"
	"math"
)

// Config holds the monitor parameters.
type Config struct {
	// StartEpoch is the first epoch (zero based) at which saving may happen.
	StartEpoch int

	// DecayTime is the number of epochs without a save between two decay
	// steps. Zero or negative disables decay.
	DecayTime int

	// DecayRate multiplies the stored best value on each decay step.
	// Must be in (0, 1].
	DecayRate float64
}

// DefaultConfig returns the parameters used by the morepork trainer.
func DefaultConfig() Config {
	return Config{
		StartEpoch: 50,
		DecayTime:  100,
		DecayRate:  0.9999,
	}
}

// Validate reports whether the configuration can drive a Monitor.
func (c Config) Validate() error {
	if c.StartEpoch < 0 {
		return errors.New("checkpoint start epoch cannot be negative")
	}
	if c.DecayRate <= 0 || c.DecayRate > 1 || math.IsNaN(c.DecayRate) {
		return fmt.Errorf("checkpoint decay rate %v must be in (0, 1]", c.DecayRate)
	}
	return nil
}

// Decision is the outcome of observing one epoch.
type Decision struct {
	// Save is true when the current value is a new best and saving is active.
	Save bool

	// Decayed is true when this epoch relaxed the stored best.
	Decayed bool

	// Best is the stored best value after the observation.
	Best float64
}

// State is a read-only snapshot of the monitor.
type State struct {
	Best                float64
	LastSave            float64
	EpochsSinceLastSave int
	SaveActive          bool
	Saves               int
	Decays              int
}

// Monitor implements the decaying best-checkpoint policy.
// A Monitor is not safe for concurrent use; one exists per training run.
type Monitor struct {
	cfg Config

	best                float64
	lastSave            float64
	epochsSinceLastSave int
	saveActive          bool
	saves               int
	decays              int
}

// NewMonitor creates a monitor with no recorded best.
func NewMonitor(cfg Config) *Monitor {
	return &Monitor{
		cfg:  cfg,
		best: math.Inf(-1),
	}
}

// Observe records the metric value of one epoch and returns the decision.
//
// Epochs before StartEpoch are ignored entirely: they neither raise the
// stored best nor count towards decay, so the first active epoch always
// saves. Keras-style checkpointers track the best from epoch zero and only
// gate the write; this monitor does not.
//
// From StartEpoch on, any value greater than the stored best is saved and
// resets the stagnation counter. Otherwise the counter advances, and each
// time it reaches a multiple of DecayTime the stored best is multiplied by
// DecayRate. Because a save resets the counter, a constant metric saves again
// right after each decay: with 0.80 throughout and 50/100/0.9999 the saves
// land at epochs 50, 151 and 252 and the decays at 150 and 251.
func (m *Monitor) Observe(epoch int, current float64) Decision {
	if epoch >= m.cfg.StartEpoch {
		m.saveActive = true
	}
	if !m.saveActive {
		return Decision{Best: m.best}
	}

	if current > m.best {
		m.best = current
		m.lastSave = current
		m.epochsSinceLastSave = 0
		m.saves++
		return Decision{Save: true, Best: m.best}
	}

	m.epochsSinceLastSave++
	if m.cfg.DecayTime > 0 && m.epochsSinceLastSave%m.cfg.DecayTime == 0 {
		m.best *= m.cfg.DecayRate
		m.decays++
		return Decision{Decayed: true, Best: m.best}
	}

	return Decision{Best: m.best}
}

// LastSave returns the metric value of the most recent save, or 0 when the
// monitor never saved.
func (m *Monitor) LastSave() float64 {
	return m.lastSave
}

// State returns a snapshot of the monitor state.
func (m *Monitor) State() State {
	return State{
		Best:                m.best,
		LastSave:            m.lastSave,
		EpochsSinceLastSave: m.epochsSinceLastSave,
		SaveActive:          m.saveActive,
		Saves:               m.saves,
		Decays:              m.decays,
	}
}
