package sim

import (
	"errors"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/san-kum/orbitsim/internal/control"
	"github.com/san-kum/orbitsim/internal/dynamo"
	"github.com/san-kum/orbitsim/internal/metrics"
)

// ErrRunnerUsed is returned when Start is called on a runner that has
// already been started once.
var ErrRunnerUsed = errors.New("sim: runner already used")

// idleWait is how long the producer sleeps when backpressure stops it
// before its batch is done and the plan asks for no sleep.
const idleWait = time.Millisecond

// RenderRequest is what the consumer hands to every Sink per render.
type RenderRequest struct {
	Playback float64 // playback clock, in simulated seconds
	Snapshot *dynamo.Snapshot
	Status   Status
}

// Sink receives rendered output. Render is called from the consumer
// goroutine and should not block for long.
type Sink interface {
	Render(req RenderRequest) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(req RenderRequest) error

func (f SinkFunc) Render(req RenderRequest) error { return f(req) }

type RunnerConfig struct {
	Clock    metrics.Clock
	Rate     control.RateConfig
	Exporter *metrics.Exporter
}

// Runner drives a Coordinator with a producer goroutine that fills the
// frame cache and a consumer goroutine that renders snapshots of it.
// A Runner is single use.
type Runner struct {
	coord    *Coordinator
	sinks    []Sink
	rate     *control.RateController
	clock    metrics.Clock
	exporter *metrics.Exporter
	logger   *slog.Logger

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  atomic.Bool
	launched atomic.Bool

	errMu sync.Mutex
	err   error

	viewMu      sync.Mutex
	playback    float64
	lastRender  time.Time
	renders     atomic.Uint64
	lastEvicted uint64
}

func NewRunner(coord *Coordinator, cfg RunnerConfig, sinks ...Sink) *Runner {
	clock := cfg.Clock
	if clock == nil {
		clock = metrics.SystemClock{}
	}
	return &Runner{
		coord:    coord,
		sinks:    sinks,
		rate:     control.NewRateController(cfg.Rate, clock),
		clock:    clock,
		exporter: cfg.Exporter,
		logger:   slog.Default().With("component", "runner"),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (r *Runner) Coordinator() *Coordinator               { return r.coord }
func (r *Runner) RateController() *control.RateController { return r.rate }

// Start marks the coordinator running and launches the producer and
// consumer.
func (r *Runner) Start() error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrRunnerUsed
	}
	settings := r.coord.Settings()
	if err := r.rate.SetTarget(settings.TimeMagnification, r.coord.DynamicsResolution(), r.coord.SubSteps()); err != nil {
		close(r.done)
		return err
	}
	if err := r.coord.Start(); err != nil {
		close(r.done)
		return err
	}
	r.launched.Store(true)

	r.viewMu.Lock()
	r.playback = r.coord.Latest().Time()
	r.lastRender = r.clock.Now()
	r.viewMu.Unlock()

	r.logger.Info("started",
		"bodies", r.coord.BodyCount(),
		"dtD", r.coord.DynamicsResolution(),
		"dtK", r.coord.KinematicsResolution(),
		"magnification", settings.TimeMagnification)

	r.wg.Add(2)
	go r.produce(settings.StepBudget)
	go r.consume(settings.FrameRate)
	go func() {
		r.wg.Wait()
		close(r.done)
	}()
	return nil
}

// Stop clears the run flag, waits for both loops to exit and returns the
// first error either of them hit.
func (r *Runner) Stop() error {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		if !r.launched.Load() {
			if r.started.CompareAndSwap(false, true) {
				close(r.done)
			}
			return
		}
		r.coord.Stop()
		<-r.done
		r.logger.Info("stopped", "renders", r.renders.Load())
	})
	return r.Err()
}

// Done is closed once both loops have exited.
func (r *Runner) Done() <-chan struct{} { return r.done }

func (r *Runner) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

// Renders is the number of snapshots delivered to the sinks.
func (r *Runner) Renders() uint64 { return r.renders.Load() }

func (r *Runner) Playback() float64 {
	r.viewMu.Lock()
	defer r.viewMu.Unlock()
	return r.playback
}

func (r *Runner) Status() Status {
	s := r.coord.Status()
	s.Plan = r.rate.Decision()
	return s
}

func (r *Runner) fail(err error) {
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.errMu.Unlock()
	r.logger.Error("simulation halted", "err", err)
	r.coord.Stop()
}

func (r *Runner) produce(budget time.Duration) {
	defer r.wg.Done()

	timer := time.NewTimer(0)
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	defer timer.Stop()

	for r.coord.IsRunning() {
		plan := r.rate.Decision()
		remaining := plan.StepsPerWake
		for remaining > 0 && r.coord.IsRunning() {
			n, err := r.coord.Advance(remaining, budget, r.rate.ObserveStep)
			if err != nil {
				r.fail(err)
				return
			}
			if n == 0 {
				break
			}
			remaining -= n
			runtime.Gosched()
		}

		if _, changed := r.rate.Tick(r.coord.DynamicsFrequency()); changed {
			r.export()
		}

		wait := plan.Sleep
		if wait < idleWait && remaining > 0 {
			wait = idleWait
		}
		if wait <= 0 {
			continue
		}
		timer.Reset(wait)
		select {
		case <-r.stopCh:
			return
		case <-timer.C:
		}
	}
}

func (r *Runner) consume(frameRate float64) {
	defer r.wg.Done()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / frameRate))
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
		}
		if !r.coord.IsRunning() {
			return
		}
		r.renderOnce()
	}
}

// renderOnce advances the playback clock by the wall time since the last
// render, queries the trailing track and hands the snapshot to every sink.
// It reports whether a snapshot was rendered.
func (r *Runner) renderOnce() bool {
	settings := r.coord.Settings()
	now := r.clock.Now()

	r.viewMu.Lock()
	elapsed := now.Sub(r.lastRender).Seconds()
	r.lastRender = now
	playback := r.playback + elapsed*settings.TimeMagnification
	if latest := r.coord.Latest().Time(); playback > latest {
		playback = latest
	}
	if oldest := r.coord.Oldest().Time(); playback < oldest {
		playback = oldest
	}
	r.playback = playback
	r.viewMu.Unlock()

	snap, ok := r.coord.Snapshot(math.Max(0, playback-settings.TrackLength), playback)
	if !ok {
		return false
	}

	req := RenderRequest{Playback: playback, Snapshot: snap, Status: r.Status()}
	began := time.Now()
	for _, s := range r.sinks {
		if err := s.Render(req); err != nil {
			r.logger.Warn("sink failed", "err", err)
		}
	}
	r.rate.ObserveRender(time.Since(began))
	r.renders.Add(1)
	r.export()
	return true
}

func (r *Runner) export() {
	if r.exporter == nil {
		return
	}
	s := r.Status()

	r.viewMu.Lock()
	delta := s.Evicted - r.lastEvicted
	r.lastEvicted = s.Evicted
	r.viewMu.Unlock()

	r.exporter.Record(metrics.Sample{
		DynamicsHz:   s.DynamicsHz,
		KinematicsHz: s.KinematicsHz,
		Frames:       s.Frames,
		Capacity:     s.Capacity,
		StepsPerWake: s.Plan.StepsPerWake,
		SleepMs:      float64(s.Plan.Sleep) / float64(time.Millisecond),
		Evicted:      int(delta),
	})
}
