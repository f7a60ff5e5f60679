package sim

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/san-kum/orbitsim/internal/dynamo"
)

// Settings are the playback parameters owned by the coordinator.
type Settings struct {
	TrackLength       float64       // seconds of simulated time shown per render
	TimeMagnification float64       // simulated seconds per wall second
	FrameRate         float64       // consumer renders per wall second
	StepBudget        time.Duration // longest single hold of the engine lock by the producer
}

func DefaultSettings() Settings {
	return Settings{
		TrackLength:       1000,
		TimeMagnification: 100,
		FrameRate:         30,
		StepBudget:        3 * time.Millisecond,
	}
}

func (s Settings) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"track length", s.TrackLength},
		{"time magnification", s.TimeMagnification},
		{"frame rate", s.FrameRate},
	} {
		if !positive(f.v) {
			return fmt.Errorf("%w: %s must be finite and positive, got %v", dynamo.ErrInvalidArgument, f.name, f.v)
		}
	}
	if s.StepBudget <= 0 {
		return fmt.Errorf("%w: step budget must be positive, got %v", dynamo.ErrInvalidArgument, s.StepBudget)
	}
	return nil
}

// Span is the time range covered by the last rendered snapshot.
type Span struct {
	Start  float64
	End    float64
	Frames int
}

// Coordinator guards an Engine with one reader/writer lock per concern:
// run flag, settings, roster, engine and rendered view. Locks are always
// taken in that order. Configuration and roster changes are rejected while
// running.
type Coordinator struct {
	runMu   sync.RWMutex
	running bool

	cfgMu    sync.RWMutex
	settings Settings

	rosterMu sync.RWMutex
	roster   []dynamo.Body

	engMu   sync.RWMutex
	engine  *dynamo.Engine
	evicted uint64

	viewMu   sync.RWMutex
	rendered Span
}

func NewCoordinator(cfg dynamo.EngineConfig, settings Settings, bodies []dynamo.Body) (*Coordinator, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	eng, err := dynamo.NewEngine(cfg, bodies)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		settings: settings,
		roster:   eng.Initial().Bodies(),
		engine:   eng,
	}, nil
}

// Start marks the simulation running. Starting twice is an invalid operation.
func (c *Coordinator) Start() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return fmt.Errorf("%w: already running", dynamo.ErrInvalidOperation)
	}
	c.running = true
	return nil
}

func (c *Coordinator) Stop() {
	c.runMu.Lock()
	c.running = false
	c.runMu.Unlock()
}

func (c *Coordinator) IsRunning() bool {
	c.runMu.RLock()
	defer c.runMu.RUnlock()
	return c.running
}

// whileStopped runs fn with the run flag held for reading, so Start cannot
// interleave with a configuration change.
func (c *Coordinator) whileStopped(fn func() error) error {
	c.runMu.RLock()
	defer c.runMu.RUnlock()
	if c.running {
		return fmt.Errorf("%w: simulation is running", dynamo.ErrInvalidOperation)
	}
	return fn()
}

func (c *Coordinator) SetDynamicsResolution(dt float64) error {
	return c.whileStopped(func() error {
		c.engMu.Lock()
		defer c.engMu.Unlock()
		return c.engine.SetDynamicsResolution(dt)
	})
}

func (c *Coordinator) SetKinematicsResolution(dt float64) error {
	return c.whileStopped(func() error {
		c.engMu.Lock()
		defer c.engMu.Unlock()
		return c.engine.SetKinematicsResolution(dt)
	})
}

func (c *Coordinator) SetCacheHorizon(h float64) error {
	return c.whileStopped(func() error {
		c.engMu.Lock()
		defer c.engMu.Unlock()
		return c.engine.SetCacheHorizon(h)
	})
}

func (c *Coordinator) SetTrackLength(v float64) error {
	return c.updateSettings(func(s *Settings) { s.TrackLength = v })
}

func (c *Coordinator) SetTimeMagnification(v float64) error {
	return c.updateSettings(func(s *Settings) { s.TimeMagnification = v })
}

func (c *Coordinator) SetFrameRate(v float64) error {
	return c.updateSettings(func(s *Settings) { s.FrameRate = v })
}

func (c *Coordinator) SetStepBudget(d time.Duration) error {
	return c.updateSettings(func(s *Settings) { s.StepBudget = d })
}

func (c *Coordinator) updateSettings(mutate func(*Settings)) error {
	return c.whileStopped(func() error {
		c.cfgMu.Lock()
		defer c.cfgMu.Unlock()
		next := c.settings
		mutate(&next)
		if err := next.Validate(); err != nil {
			return err
		}
		c.settings = next
		return nil
	})
}

func (c *Coordinator) Settings() Settings {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.settings
}

func (c *Coordinator) DynamicsResolution() float64 {
	c.engMu.RLock()
	defer c.engMu.RUnlock()
	return c.engine.DynamicsResolution()
}

func (c *Coordinator) KinematicsResolution() float64 {
	c.engMu.RLock()
	defer c.engMu.RUnlock()
	return c.engine.KinematicsResolution()
}

func (c *Coordinator) CacheHorizon() float64 {
	c.engMu.RLock()
	defer c.engMu.RUnlock()
	return c.engine.CacheHorizon()
}

func (c *Coordinator) SubSteps() int {
	c.engMu.RLock()
	defer c.engMu.RUnlock()
	return c.engine.SubSteps()
}

// Roster

func (c *Coordinator) BodyCount() int {
	c.rosterMu.RLock()
	defer c.rosterMu.RUnlock()
	return len(c.roster)
}

func (c *Coordinator) Body(i int) (dynamo.Body, error) {
	c.rosterMu.RLock()
	defer c.rosterMu.RUnlock()
	if err := c.checkIndexLocked(i); err != nil {
		return dynamo.Body{}, err
	}
	return c.roster[i], nil
}

func (c *Coordinator) Bodies() []dynamo.Body {
	c.rosterMu.RLock()
	defer c.rosterMu.RUnlock()
	out := make([]dynamo.Body, len(c.roster))
	copy(out, c.roster)
	return out
}

func (c *Coordinator) AddBody(b dynamo.Body) error {
	return c.updateRoster(func(r []dynamo.Body) ([]dynamo.Body, error) {
		return append(r, b), nil
	})
}

func (c *Coordinator) RemoveBody(i int) error {
	return c.updateRoster(func(r []dynamo.Body) ([]dynamo.Body, error) {
		if err := checkIndex(i, len(r)); err != nil {
			return nil, err
		}
		return append(r[:i], r[i+1:]...), nil
	})
}

func (c *Coordinator) SetBody(i int, b dynamo.Body) error {
	return c.updateRoster(func(r []dynamo.Body) ([]dynamo.Body, error) {
		if err := checkIndex(i, len(r)); err != nil {
			return nil, err
		}
		r[i] = b
		return r, nil
	})
}

// SetBodies replaces the whole roster.
func (c *Coordinator) SetBodies(bodies []dynamo.Body) error {
	if bodies == nil {
		return fmt.Errorf("%w: nil roster", dynamo.ErrInvalidArgument)
	}
	return c.updateRoster(func([]dynamo.Body) ([]dynamo.Body, error) {
		out := make([]dynamo.Body, len(bodies))
		copy(out, bodies)
		return out, nil
	})
}

// updateRoster applies mutate to a copy of the roster and restarts the
// engine from it. On any error the roster and history are left untouched.
func (c *Coordinator) updateRoster(mutate func([]dynamo.Body) ([]dynamo.Body, error)) error {
	return c.whileStopped(func() error {
		c.rosterMu.Lock()
		defer c.rosterMu.Unlock()

		work := make([]dynamo.Body, len(c.roster))
		copy(work, c.roster)
		next, err := mutate(work)
		if err != nil {
			return err
		}

		c.engMu.Lock()
		defer c.engMu.Unlock()
		if err := c.engine.Restart(next); err != nil {
			return err
		}
		c.roster = next
		c.resetViewLocked()
		return nil
	})
}

// Reset rewinds the simulation to the roster at t=0.
func (c *Coordinator) Reset() error {
	return c.whileStopped(func() error {
		c.engMu.Lock()
		defer c.engMu.Unlock()
		c.engine.Reset()
		c.resetViewLocked()
		return nil
	})
}

func (c *Coordinator) resetViewLocked() {
	c.viewMu.Lock()
	c.rendered = Span{}
	c.viewMu.Unlock()
}

func (c *Coordinator) checkIndexLocked(i int) error {
	return checkIndex(i, len(c.roster))
}

func checkIndex(i, n int) error {
	if i < 0 || i >= n {
		return fmt.Errorf("%w: body %d not in [0, %d)", dynamo.ErrOutOfRange, i, n)
	}
	return nil
}

// Dynamic queries

func (c *Coordinator) Latest() *dynamo.Frame {
	c.engMu.RLock()
	defer c.engMu.RUnlock()
	return c.engine.Latest()
}

func (c *Coordinator) Oldest() *dynamo.Frame {
	c.engMu.RLock()
	defer c.engMu.RUnlock()
	return c.engine.Oldest()
}

func (c *Coordinator) FrameCount() int {
	c.engMu.RLock()
	defer c.engMu.RUnlock()
	return c.engine.Len()
}

func (c *Coordinator) Capacity() int {
	c.engMu.RLock()
	defer c.engMu.RUnlock()
	return c.engine.Capacity()
}

func (c *Coordinator) DynamicsFrequency() float64 {
	c.engMu.RLock()
	defer c.engMu.RUnlock()
	return c.engine.DynamicsFrequency()
}

func (c *Coordinator) KinematicsFrequency() float64 {
	c.engMu.RLock()
	defer c.engMu.RUnlock()
	return c.engine.KinematicsFrequency()
}

func (c *Coordinator) Rendered() Span {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.rendered
}

// NeedsFrames reports whether the producer may add a frame: the cache has
// room, or the consumer has already rendered up to the newest frame.
func (c *Coordinator) NeedsFrames() bool {
	c.engMu.RLock()
	defer c.engMu.RUnlock()
	return c.needsFramesLocked()
}

func (c *Coordinator) needsFramesLocked() bool {
	if !c.engine.Full() {
		return true
	}
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.rendered.Frames > 0 && c.rendered.End >= c.engine.Latest().Time()
}

// Advance performs up to max coarse steps under a single hold of the engine
// lock. It stops early when the cache needs no more frames or the step
// budget is spent, and reports each step's wall cost to observe.
func (c *Coordinator) Advance(max int, budget time.Duration, observe func(time.Duration)) (int, error) {
	c.engMu.Lock()
	defer c.engMu.Unlock()

	began := time.Now()
	n := 0
	for n < max && c.needsFramesLocked() {
		t0 := time.Now()
		if err := c.engine.Advance(); err != nil {
			return n, err
		}
		if observe != nil {
			observe(time.Since(t0))
		}
		n++
		if time.Since(began) >= budget {
			break
		}
	}
	return n, nil
}

// AdvanceBy advances the engine by a span of simulated time regardless of
// cache pressure. Used for headless batch runs.
func (c *Coordinator) AdvanceBy(seconds float64) (int, error) {
	c.engMu.Lock()
	defer c.engMu.Unlock()
	return c.engine.AdvanceBy(seconds)
}

// Snapshot returns the cached frames covering [start, end] and then evicts
// every frame older than the first frame returned. The returned span is
// recorded as the rendered view.
func (c *Coordinator) Snapshot(start, end float64) (*dynamo.Snapshot, bool) {
	c.engMu.RLock()
	snap, ok := c.engine.Query(start, end)
	c.engMu.RUnlock()
	if !ok {
		return nil, false
	}

	c.engMu.Lock()
	c.evicted += uint64(c.engine.EvictBefore(snap.StartTime()))
	c.engMu.Unlock()

	c.viewMu.Lock()
	c.rendered = Span{Start: snap.StartTime(), End: snap.EndTime(), Frames: snap.Len()}
	c.viewMu.Unlock()
	return snap, true
}

// Evicted is the running total of frames dropped by Snapshot.
func (c *Coordinator) Evicted() uint64 {
	c.engMu.RLock()
	defer c.engMu.RUnlock()
	return c.evicted
}

func positive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
