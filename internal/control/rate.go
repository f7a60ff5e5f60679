package control

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/san-kum/orbitsim/internal/metrics"
)

// ErrInvalidTarget indicates a non-finite or non-positive rate target.
var ErrInvalidTarget = errors.New("control: invalid rate target")

const (
	defaultWakePeriod   = 50 * time.Millisecond
	defaultTickInterval = time.Second
	defaultBand         = 0.10
	defaultFine         = 0.01
	costSmoothing       = 0.2
)

// Decision is the producer's plan for one wake.
type Decision struct {
	StepsPerWake int
	Sleep        time.Duration
}

type RateConfig struct {
	WakePeriod   time.Duration // nominal producer cycle used when re-planning
	TickInterval time.Duration // minimum spacing between control ticks
	Band         float64       // relative error that triggers a re-plan
	Fine         float64       // relative error that triggers a nudge
}

func (c RateConfig) withDefaults() RateConfig {
	if c.WakePeriod <= 0 {
		c.WakePeriod = defaultWakePeriod
	}
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.Band <= 0 {
		c.Band = defaultBand
	}
	if c.Fine <= 0 || c.Fine > c.Band {
		c.Fine = defaultFine
	}
	return c
}

type RateController struct {
	mu     sync.Mutex
	cfg    RateConfig
	clock  metrics.Clock
	logger *slog.Logger

	magnification float64
	dtD           float64
	countD        int

	stepsPerWake int
	sleepMs      int

	stepCost   time.Duration // wall time per coarse step
	renderCost time.Duration // wall time per rendered snapshot, reported only

	lastTick time.Time
	ticked   bool
}

func NewRateController(cfg RateConfig, clock metrics.Clock) *RateController {
	if clock == nil {
		clock = metrics.SystemClock{}
	}
	cfg = cfg.withDefaults()
	return &RateController{
		cfg:           cfg,
		clock:         clock,
		logger:        slog.Default().With("component", "rate"),
		magnification: 1,
		dtD:           1,
		countD:        1,
		stepsPerWake:  1,
		sleepMs:       int(cfg.WakePeriod / time.Millisecond),
	}
}

// SetTarget sets the wall-clock pacing: the target dynamics frequency is
// magnification/dtD, delivered in coarse steps of countD sub-steps.
func (c *RateController) SetTarget(magnification, dtD float64, countD int) error {
	if !positive(magnification) || !positive(dtD) || countD < 1 {
		return ErrInvalidTarget
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.magnification = magnification
	c.dtD = dtD
	c.countD = countD
	c.replanLocked()
	return nil
}

// TargetFrequency is the desired dynamics steps per wall second.
func (c *RateController) TargetFrequency() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.magnification / c.dtD
}

func (c *RateController) ObserveStep(d time.Duration) {
	c.mu.Lock()
	c.stepCost = smooth(c.stepCost, d)
	c.mu.Unlock()
}

func (c *RateController) ObserveRender(d time.Duration) {
	c.mu.Lock()
	c.renderCost = smooth(c.renderCost, d)
	c.mu.Unlock()
}

func (c *RateController) Decision() Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decisionLocked()
}

func (c *RateController) decisionLocked() Decision {
	return Decision{
		StepsPerWake: c.stepsPerWake,
		Sleep:        time.Duration(c.sleepMs) * time.Millisecond,
	}
}

// Tick compares the measured dynamics frequency with the target and adjusts
// the plan. Calls closer together than the tick interval, and calls before
// any frequency has been measured, leave the plan alone. The boolean
// reports whether the plan changed.
func (c *RateController) Tick(actualHz float64) (Decision, bool) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ticked && now.Sub(c.lastTick) < c.cfg.TickInterval {
		return c.decisionLocked(), false
	}
	if !positive(actualHz) {
		return c.decisionLocked(), false
	}
	c.lastTick = now
	c.ticked = true

	before := c.decisionLocked()
	ratio := actualHz / (c.magnification / c.dtD)

	outside := ratio < 1-c.cfg.Band || ratio > 1+c.cfg.Band
	if outside {
		c.replanMeasuredLocked(actualHz)
		c.logger.Debug("replanned",
			"ratio", ratio,
			"steps_per_wake", c.stepsPerWake,
			"sleep_ms", c.sleepMs,
			"step_cost", c.stepCost,
			"render_cost", c.renderCost)
	}
	if !outside || c.decisionLocked() == before {
		c.nudgeLocked(ratio)
	}

	after := c.decisionLocked()
	return after, after != before
}

// nudgeLocked moves the plan one unit toward the target.
func (c *RateController) nudgeLocked(ratio float64) {
	switch {
	case ratio > 1+c.cfg.Fine:
		if c.stepsPerWake > 1 {
			c.stepsPerWake--
		} else {
			c.sleepMs++
		}
	case ratio < 1-c.cfg.Fine:
		if c.sleepMs > 0 {
			c.sleepMs--
		} else {
			c.stepsPerWake++
		}
	}
}

// replanLocked solves for a batch size and idle time from the smoothed step
// cost. A wake period is filled with enough coarse steps to match the target
// coarse rate; whatever the steps do not use is slept. Rendering runs on its
// own goroutine and is not charged to the producer.
func (c *RateController) replanLocked() {
	c.solveLocked(c.stepCost.Seconds())
}

// replanMeasuredLocked infers the real wall cost of one coarse step from the
// measured rate under the current plan, then solves with it. The inferred
// cost includes whatever the producer spends outside Advance.
func (c *RateController) replanMeasuredLocked(actualHz float64) {
	cycle := float64(c.stepsPerWake*c.countD) / actualHz
	busy := cycle - float64(c.sleepMs)/1000
	if busy <= 0 {
		// The sleep was not honoured; fall back to the measured step cost.
		c.replanLocked()
		return
	}
	c.solveLocked(busy / float64(c.stepsPerWake))
}

func (c *RateController) solveLocked(perStep float64) {
	coarseHz := c.magnification / c.dtD / float64(c.countD)
	period := c.cfg.WakePeriod.Seconds()

	steps := int(math.Round(coarseHz * period))
	if steps < 1 {
		steps = 1
	}
	cycle := float64(steps) / coarseHz
	sleepMs := int(math.Round((cycle - float64(steps)*perStep) * 1000))
	if sleepMs < 0 {
		sleepMs = 0
	}

	c.stepsPerWake = steps
	c.sleepMs = sleepMs
}

// Reset clears cost estimates and the tick history.
func (c *RateController) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stepCost = 0
	c.renderCost = 0
	c.ticked = false
	c.replanLocked()
}

// GetParams returns tunable parameters for live adjustment.
func (c *RateController) GetParams() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]float64{
		"StepsPerWake":  float64(c.stepsPerWake),
		"SleepMs":       float64(c.sleepMs),
		"Magnification": c.magnification,
	}
}

// SetParam adjusts a controller parameter. Unknown names and invalid values
// are ignored.
func (c *RateController) SetParam(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch name {
	case "StepsPerWake":
		if value >= 1 {
			c.stepsPerWake = int(value)
		}
	case "SleepMs":
		if value >= 0 {
			c.sleepMs = int(value)
		}
	case "Magnification":
		if positive(value) {
			c.magnification = value
			c.replanLocked()
		}
	}
}

func smooth(prev, sample time.Duration) time.Duration {
	if prev == 0 {
		return sample
	}
	return prev + time.Duration(costSmoothing*float64(sample-prev))
}

func positive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
