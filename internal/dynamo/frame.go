package dynamo

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// Frame is an immutable record of every body at one kinematics timestamp.
// A Frame owns its bodies; accessors hand out copies.
type Frame struct {
	time         float64
	bodies       []Body
	dynamicsID   uint64
	kinematicsID uint64
}

// NewFrame validates bodies and freezes a copy of them at time t.
func NewFrame(t float64, bodies []Body) (*Frame, error) {
	if !finite(t) || t < 0 {
		return nil, invalidf("frame time must be finite and non-negative, got %v", t)
	}
	for i := range bodies {
		if err := bodies[i].Validate(); err != nil {
			return nil, fmt.Errorf("body %d: %w", i, err)
		}
	}
	return &Frame{time: t, bodies: cloneBodies(bodies)}, nil
}

func (f *Frame) Time() float64        { return f.time }
func (f *Frame) Len() int             { return len(f.bodies) }
func (f *Frame) DynamicsID() uint64   { return f.dynamicsID }
func (f *Frame) KinematicsID() uint64 { return f.kinematicsID }

// Body returns a copy of body i.
func (f *Frame) Body(i int) (Body, error) {
	if i < 0 || i >= len(f.bodies) {
		return Body{}, fmt.Errorf("%w: body %d not in [0, %d)", ErrOutOfRange, i, len(f.bodies))
	}
	return f.bodies[i], nil
}

// Bodies returns a copy of every body in roster order.
func (f *Frame) Bodies() []Body {
	return cloneBodies(f.bodies)
}

// Position returns the position of body i without copying the body. It is
// meant for loops over 0..Len() and panics when i is out of range; use Body
// for a checked lookup.
func (f *Frame) Position(i int) mgl64.Vec3 {
	return f.bodies[i].Position
}

// Builder starts a working copy of the frame for the next coarse step.
func (f *Frame) Builder() *FrameBuilder {
	return &FrameBuilder{
		time:         f.time,
		bodies:       cloneBodies(f.bodies),
		dynamicsID:   f.dynamicsID,
		kinematicsID: f.kinematicsID,
	}
}

// Energy is the total kinetic plus pairwise gravitational potential energy,
// with separations clamped at contact distance.
func (f *Frame) Energy() float64 {
	e := 0.0
	for i := range f.bodies {
		bi := &f.bodies[i]
		e += bi.KineticEnergy()
		for j := i + 1; j < len(f.bodies); j++ {
			bj := &f.bodies[j]
			e -= G * bi.Mass * bj.Mass / softenedDistance(bi, bj)
		}
	}
	return e
}

func (f *Frame) Momentum() mgl64.Vec3 {
	var p mgl64.Vec3
	for i := range f.bodies {
		p = p.Add(f.bodies[i].Velocity.Mul(f.bodies[i].Mass))
	}
	return p
}

// AngularMomentum is taken about the origin.
func (f *Frame) AngularMomentum() mgl64.Vec3 {
	var l mgl64.Vec3
	for i := range f.bodies {
		b := &f.bodies[i]
		l = l.Add(b.Position.Cross(b.Velocity.Mul(b.Mass)))
	}
	return l
}

func (f *Frame) CenterOfMass() mgl64.Vec3 {
	var c mgl64.Vec3
	m := 0.0
	for i := range f.bodies {
		c = c.Add(f.bodies[i].Position.Mul(f.bodies[i].Mass))
		m += f.bodies[i].Mass
	}
	if m == 0 {
		return c
	}
	return c.Mul(1 / m)
}

// FrameBuilder is the mutable working copy used during one coarse step.
// Freeze converts it into a Frame; the builder is unusable afterwards.
type FrameBuilder struct {
	time         float64
	bodies       []Body
	dynamicsID   uint64
	kinematicsID uint64
	frozen       bool
}

func (b *FrameBuilder) Time() float64 { return b.time }

// Advance performs one integration sub-step: clear forces, accumulate all
// pairwise forces once, then step every body by dt.
func (b *FrameBuilder) Advance(dt float64) error {
	if b.frozen {
		return fmt.Errorf("%w: advance on a frozen frame", ErrInvalidOperation)
	}
	if !finite(dt) || dt <= 0 {
		return invalidf("sub-step must be finite and positive, got %v", dt)
	}
	b.advance(dt)
	b.time += dt
	return nil
}

func (b *FrameBuilder) advance(dt float64) {
	bodies := b.bodies
	for i := range bodies {
		bodies[i].Force = mgl64.Vec3{}
	}
	AccumulateForces(bodies)
	ParallelFor(len(bodies), parallelMinChunk, func(start, end int) {
		for i := start; i < end; i++ {
			bodies[i].step(dt)
		}
	})
}

// check reports the first body whose state is no longer finite.
func (b *FrameBuilder) check() error {
	for i := range b.bodies {
		bi := &b.bodies[i]
		if !finiteVec(bi.Position) || !finiteVec(bi.Velocity) || !finiteVec(bi.Force) {
			return &SimulationError{Step: b.dynamicsID, Time: b.time, Body: i, Wrapped: ErrNonFinite}
		}
	}
	return nil
}

// Freeze hands the builder's bodies to a new immutable Frame.
func (b *FrameBuilder) Freeze() *Frame {
	f := &Frame{
		time:         b.time,
		bodies:       b.bodies,
		dynamicsID:   b.dynamicsID,
		kinematicsID: b.kinematicsID,
	}
	b.bodies = nil
	b.frozen = true
	return f
}

func cloneBodies(src []Body) []Body {
	dst := make([]Body, len(src))
	copy(dst, src)
	return dst
}
