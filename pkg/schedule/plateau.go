// Package schedule adjusts the optimizer learning rate during training.
package schedule

import (
	"errors"
	"math"
)

// PlateauConfig configures a PlateauReducer.
type PlateauConfig struct {
	// Factor multiplies the learning rate on each reduction. Must be in (0, 1).
	Factor float64

	// Patience is the number of epochs without improvement before reducing.
	Patience int

	// Cooldown is the number of epochs after a reduction during which the
	// wait counter is held at zero.
	Cooldown int

	// MinRate is the floor for the learning rate.
	MinRate float64

	// MinDelta is the minimum decrease of the monitored loss that counts as
	// an improvement.
	MinDelta float64
}

// DefaultPlateauConfig returns the parameters used by the morepork trainer.
func DefaultPlateauConfig() PlateauConfig {
	return PlateauConfig{
		Factor:   0.65,
		Patience: 25,
		Cooldown: 25,
		MinRate:  0.0002,
		MinDelta: 1e-4,
	}
}

// Validate reports whether the configuration is usable.
func (c PlateauConfig) Validate() error {
	if c.Factor <= 0 || c.Factor >= 1 {
		return errors.New("plateau factor must be in (0, 1)")
	}
	if c.Patience < 0 {
		return errors.New("plateau patience cannot be negative")
	}
	if c.Cooldown < 0 {
		return errors.New("plateau cooldown cannot be negative")
	}
	if c.MinRate < 0 {
		return errors.New("plateau min rate cannot be negative")
	}
	return nil
}

// PlateauReducer lowers the learning rate when a minimised metric (validation
// loss) stops improving.
type PlateauReducer struct {
	cfg             PlateauConfig
	rate            float64
	best            float64
	wait            int
	cooldownCounter int
	reductions      int
}

// NewPlateauReducer creates a reducer starting at the given learning rate.
func NewPlateauReducer(cfg PlateauConfig, initialRate float64) *PlateauReducer {
	return &PlateauReducer{
		cfg:  cfg,
		rate: initialRate,
		best: math.Inf(1),
	}
}

// Observe feeds the loss of one epoch. It returns the learning rate to use
// from now on and whether it changed.
func (p *PlateauReducer) Observe(loss float64) (float64, bool) {
	if p.inCooldown() {
		p.cooldownCounter--
		p.wait = 0
	}

	if loss < p.best-p.cfg.MinDelta {
		p.best = loss
		p.wait = 0
		return p.rate, false
	}
	if p.inCooldown() {
		return p.rate, false
	}

	p.wait++
	if p.wait < p.cfg.Patience {
		return p.rate, false
	}

	// The optimizer holds the rate as float32.
	if float32(p.rate) <= float32(p.cfg.MinRate) {
		return p.rate, false
	}

	p.rate = math.Max(p.rate*p.cfg.Factor, p.cfg.MinRate)
	p.cooldownCounter = p.cfg.Cooldown
	p.wait = 0
	p.reductions++
	return p.rate, true
}

func (p *PlateauReducer) inCooldown() bool {
	return p.cooldownCounter > 0
}

// Rate returns the current learning rate.
func (p *PlateauReducer) Rate() float64 {
	return p.rate
}

// Reductions returns how many times the rate was lowered.
func (p *PlateauReducer) Reductions() int {
	return p.reductions
}
