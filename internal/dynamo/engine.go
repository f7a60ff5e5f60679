package dynamo

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/san-kum/orbitsim/internal/metrics"
	"github.com/san-kum/orbitsim/internal/ring"
)

// DefaultFrequencyWindow is the trailing window of the engine's rate counters.
const DefaultFrequencyWindow = 2 * time.Second

// EngineConfig holds the two integration resolutions and the cache horizon,
// all in seconds of simulated time.
type EngineConfig struct {
	DynamicsResolution   float64
	KinematicsResolution float64
	CacheHorizon         float64
	FrequencyWindow      time.Duration
	Clock                metrics.Clock
}

func (c EngineConfig) Validate() error {
	if err := validateResolution("dynamics resolution", c.DynamicsResolution); err != nil {
		return err
	}
	if err := validateResolution("kinematics resolution", c.KinematicsResolution); err != nil {
		return err
	}
	if c.KinematicsResolution < c.DynamicsResolution {
		return invalidf("kinematics resolution %v is finer than dynamics resolution %v",
			c.KinematicsResolution, c.DynamicsResolution)
	}
	return validateHorizon(c.CacheHorizon)
}

func validateResolution(name string, v float64) error {
	if !finite(v) || v <= 0 {
		return invalidf("%s must be finite and positive, got %v", name, v)
	}
	return nil
}

func validateHorizon(h float64) error {
	if !finite(h) || h < 0 {
		return invalidf("cache horizon must be finite and non-negative, got %v", h)
	}
	return nil
}

// CapacityFor converts a cache horizon into a frame count, ceil(horizon/dtK),
// never less than one.
func CapacityFor(horizon, dtK float64) int {
	n := int(math.Ceil(horizon/dtK - 1e-9))
	if n < 1 {
		n = 1
	}
	return n
}

// Engine is the multibody system. It integrates at the dynamics resolution,
// caches a Frame every kinematics resolution, and keeps the most recent
// frames inside the cache horizon.
//
// Engine is not safe for concurrent use; see sim.Coordinator.
type Engine struct {
	dtD     float64
	dtK     float64
	horizon float64
	countD  int

	initial *Frame
	history *ring.Ring[*Frame]

	dynFreq *metrics.FrequencyCounter
	kinFreq *metrics.FrequencyCounter
}

func NewEngine(cfg EngineConfig, bodies []Body) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	window := cfg.FrequencyWindow
	if window <= 0 {
		window = DefaultFrequencyWindow
	}
	dynFreq, err := metrics.NewFrequencyCounter(window, cfg.Clock)
	if err != nil {
		return nil, err
	}
	kinFreq, err := metrics.NewFrequencyCounter(window, cfg.Clock)
	if err != nil {
		return nil, err
	}
	history, err := ring.New[*Frame](CapacityFor(cfg.CacheHorizon, cfg.KinematicsResolution))
	if err != nil {
		return nil, err
	}

	e := &Engine{
		dtD:     cfg.DynamicsResolution,
		dtK:     cfg.KinematicsResolution,
		horizon: cfg.CacheHorizon,
		history: history,
		dynFreq: dynFreq,
		kinFreq: kinFreq,
	}
	e.countD = e.subSteps()
	if err := e.Restart(bodies); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) subSteps() int {
	n := int(math.Round(e.dtK / e.dtD))
	if n < 1 {
		n = 1
	}
	return n
}

func (e *Engine) DynamicsResolution() float64   { return e.dtD }
func (e *Engine) KinematicsResolution() float64 { return e.dtK }
func (e *Engine) CacheHorizon() float64         { return e.horizon }

// SubSteps is the number of dynamics steps per kinematics step.
func (e *Engine) SubSteps() int { return e.countD }

func (e *Engine) SetDynamicsResolution(dt float64) error {
	if err := validateResolution("dynamics resolution", dt); err != nil {
		return err
	}
	if dt > e.dtK {
		return invalidf("dynamics resolution %v exceeds kinematics resolution %v", dt, e.dtK)
	}
	e.dtD = dt
	e.countD = e.subSteps()
	return nil
}

// SetKinematicsResolution changes the coarse step and re-derives the cache
// capacity, keeping the most recent frames that still fit.
func (e *Engine) SetKinematicsResolution(dt float64) error {
	if err := validateResolution("kinematics resolution", dt); err != nil {
		return err
	}
	if dt < e.dtD {
		return invalidf("kinematics resolution %v is finer than dynamics resolution %v", dt, e.dtD)
	}
	if err := e.history.Resize(CapacityFor(e.horizon, dt)); err != nil {
		return err
	}
	e.dtK = dt
	e.countD = e.subSteps()
	return nil
}

func (e *Engine) SetCacheHorizon(h float64) error {
	if err := validateHorizon(h); err != nil {
		return err
	}
	if err := e.history.Resize(CapacityFor(h, e.dtK)); err != nil {
		return err
	}
	e.horizon = h
	return nil
}

// Restart replaces the initial frame with bodies at t=0 and clears history.
func (e *Engine) Restart(bodies []Body) error {
	initial, err := NewFrame(0, bodies)
	if err != nil {
		return err
	}
	e.initial = initial
	e.Reset()
	return nil
}

// Reset rewinds history to the initial frame.
func (e *Engine) Reset() {
	e.history.Clear()
	e.history.Enqueue(e.initial)
	e.dynFreq.Reset()
	e.kinFreq.Reset()
}

func (e *Engine) Initial() *Frame { return e.initial }

func (e *Engine) Latest() *Frame {
	f, _ := e.history.Newest()
	return f
}

func (e *Engine) Oldest() *Frame {
	f, _ := e.history.Oldest()
	return f
}

func (e *Engine) Len() int      { return e.history.Len() }
func (e *Engine) Capacity() int { return e.history.Cap() }
func (e *Engine) Full() bool    { return e.history.Full() }

// Frame returns cached frame i, where 0 is the oldest.
func (e *Engine) Frame(i int) (*Frame, error) {
	f, err := e.history.At(i)
	if errors.Is(err, ring.ErrOutOfRange) {
		return nil, fmt.Errorf("%w: %w", ErrOutOfRange, err)
	}
	return f, err
}

func (e *Engine) DynamicsFrequency() float64   { return e.dynFreq.Frequency() }
func (e *Engine) KinematicsFrequency() float64 { return e.kinFreq.Frequency() }

// Advance performs one kinematics step and caches the resulting frame.
func (e *Engine) Advance() error {
	if err := e.step(); err != nil {
		return err
	}
	e.dynFreq.Update(int64(e.countD))
	e.kinFreq.Update(1)
	return nil
}

// AdvanceBy performs round(seconds/dtK) kinematics steps and returns how many
// were cached. Counter updates are batched in chunks of about a tenth of the
// request.
func (e *Engine) AdvanceBy(seconds float64) (int, error) {
	if !finite(seconds) {
		return 0, invalidf("advance span must be finite, got %v", seconds)
	}
	if seconds < e.dtK {
		return 0, fmt.Errorf("%w: advance span %v is shorter than kinematics resolution %v",
			ErrInvalidOperation, seconds, e.dtK)
	}

	countK := int(math.Round(seconds / e.dtK))
	chunk := countK / 10
	if chunk < 1 {
		chunk = 1
	}

	var pendingK int64
	flush := func() {
		if pendingK == 0 {
			return
		}
		e.dynFreq.Update(pendingK * int64(e.countD))
		e.kinFreq.Update(pendingK)
		pendingK = 0
	}
	defer flush()

	for k := 0; k < countK; k++ {
		if err := e.step(); err != nil {
			return k, err
		}
		pendingK++
		if pendingK >= int64(chunk) {
			flush()
		}
	}
	return countK, nil
}

func (e *Engine) step() error {
	prev := e.Latest()
	b := prev.Builder()
	for i := 0; i < e.countD; i++ {
		b.advance(e.dtD)
	}
	b.time = prev.time + float64(e.countD)*e.dtD
	b.dynamicsID += uint64(e.countD)
	b.kinematicsID++
	if err := b.check(); err != nil {
		return err
	}
	e.history.Enqueue(b.Freeze())
	return nil
}

// EvictBefore drops cached frames strictly older than t, always keeping the
// newest frame. It returns the number of frames dropped.
func (e *Engine) EvictBefore(t float64) int {
	n := 0
	for e.history.Len() > 1 {
		oldest, _ := e.history.Oldest()
		if oldest.time >= t {
			break
		}
		e.history.Dequeue()
		n++
	}
	return n
}
