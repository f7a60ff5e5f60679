package analysis

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/orbitsim/internal/dynamo"
	"github.com/san-kum/orbitsim/internal/sim"
)

// Conservation tracks how far the conserved quantities of a roster move
// away from their values at the first observed frame. Drifts are relative
// to the initial magnitude; momentum drift is absolute when the initial
// momentum is zero.
type Conservation struct {
	mu sync.Mutex

	samples   int
	lastKinID uint64

	energy0   float64
	momentum0 mgl64.Vec3
	angular0  mgl64.Vec3

	energy      float64
	maxEnergy   float64
	maxMomentum float64
	maxAngular  float64
}

func NewConservation() *Conservation {
	return &Conservation{}
}

func (c *Conservation) Name() string { return "conservation" }

func (c *Conservation) Observe(f *dynamo.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observeLocked(f)
}

func (c *Conservation) observeLocked(f *dynamo.Frame) {
	e, p, l := f.Energy(), f.Momentum(), f.AngularMomentum()
	if c.samples == 0 {
		c.energy0, c.momentum0, c.angular0 = e, p, l
	}
	c.energy = e
	c.samples++
	c.lastKinID = f.KinematicsID()

	c.maxEnergy = math.Max(c.maxEnergy, relative(e-c.energy0, math.Abs(c.energy0)))
	c.maxMomentum = math.Max(c.maxMomentum, relative(p.Sub(c.momentum0).Len(), c.momentum0.Len()))
	c.maxAngular = math.Max(c.maxAngular, relative(l.Sub(c.angular0).Len(), c.angular0.Len()))
}

// Render observes every frame of the snapshot not seen before, so a
// Conservation can be attached to a runner as a sink.
func (c *Conservation) Render(req sim.RenderRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range req.Snapshot.Frames() {
		if c.samples > 0 && f.KinematicsID() <= c.lastKinID {
			continue
		}
		c.observeLocked(f)
	}
	return nil
}

func (c *Conservation) Samples() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.samples
}

// EnergyDrift is the largest relative energy error seen so far.
func (c *Conservation) EnergyDrift() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxEnergy
}

func (c *Conservation) MomentumDrift() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxMomentum
}

func (c *Conservation) AngularMomentumDrift() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxAngular
}

// Energy returns the initial and most recent total energy.
func (c *Conservation) Energy() (initial, current float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.energy0, c.energy
}

func (c *Conservation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples, c.lastKinID = 0, 0
	c.energy0, c.energy = 0, 0
	c.momentum0, c.angular0 = mgl64.Vec3{}, mgl64.Vec3{}
	c.maxEnergy, c.maxMomentum, c.maxAngular = 0, 0, 0
}

func relative(delta, scale float64) float64 {
	delta = math.Abs(delta)
	if scale == 0 {
		return delta
	}
	return delta / scale
}
