package sim

import (
	"github.com/san-kum/orbitsim/internal/control"
)

// Status is a point-in-time summary of the coordinator.
type Status struct {
	Running bool

	DynamicsResolution   float64
	KinematicsResolution float64
	CacheHorizon         float64
	SubSteps             int
	Settings             Settings

	Bodies     int
	Frames     int
	Capacity   int
	OldestTime float64
	LatestTime float64
	Evicted    uint64

	DynamicsHz   float64
	KinematicsHz float64

	Rendered Span
	Plan     control.Decision
}

// Status collects every concern in lock order. Each concern is read
// atomically; the result as a whole is not.
func (c *Coordinator) Status() Status {
	s := Status{
		Running:  c.IsRunning(),
		Settings: c.Settings(),
		Bodies:   c.BodyCount(),
	}

	c.engMu.RLock()
	s.DynamicsResolution = c.engine.DynamicsResolution()
	s.KinematicsResolution = c.engine.KinematicsResolution()
	s.CacheHorizon = c.engine.CacheHorizon()
	s.SubSteps = c.engine.SubSteps()
	s.Frames = c.engine.Len()
	s.Capacity = c.engine.Capacity()
	s.OldestTime = c.engine.Oldest().Time()
	s.LatestTime = c.engine.Latest().Time()
	s.Evicted = c.evicted
	s.DynamicsHz = c.engine.DynamicsFrequency()
	s.KinematicsHz = c.engine.KinematicsFrequency()
	c.engMu.RUnlock()

	s.Rendered = c.Rendered()
	return s
}
