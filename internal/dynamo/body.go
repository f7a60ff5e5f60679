package dynamo

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// G is the gravitational constant in m³/(kg·s²).
const G = 6.67259e-11

// Appearance is display data carried alongside a body. The engine copies it
// but never reads it.
type Appearance struct {
	Name  string `yaml:"name" json:"name"`
	Color string `yaml:"color" json:"color"`
}

// Body is a spherical point mass. Mass is in kg, Radius in m, Position in m,
// Velocity in m/s and Force in N. Force is the accumulator for the current
// integration sub-step.
type Body struct {
	Mass       float64
	Radius     float64
	Position   mgl64.Vec3
	Velocity   mgl64.Vec3
	Force      mgl64.Vec3
	Appearance Appearance
}

// Validate rejects non-positive or non-finite mass and radius and any
// non-finite vector component.
func (b Body) Validate() error {
	if !finite(b.Mass) || b.Mass <= 0 {
		return invalidf("mass must be finite and positive, got %v", b.Mass)
	}
	if !finite(b.Radius) || b.Radius <= 0 {
		return invalidf("radius must be finite and positive, got %v", b.Radius)
	}
	if !finiteVec(b.Position) {
		return invalidf("position must be finite, got %v", b.Position)
	}
	if !finiteVec(b.Velocity) {
		return invalidf("velocity must be finite, got %v", b.Velocity)
	}
	if !finiteVec(b.Force) {
		return invalidf("force must be finite, got %v", b.Force)
	}
	return nil
}

// Acceleration is Force/Mass.
func (b *Body) Acceleration() mgl64.Vec3 {
	return b.Force.Mul(1 / b.Mass)
}

// step advances the body by dt using the force accumulated before the call:
//
//	position += (velocity + acceleration*dt/2) * dt
//	velocity += acceleration * dt
func (b *Body) step(dt float64) {
	a := b.Acceleration()
	b.Position = b.Position.Add(b.Velocity.Add(a.Mul(dt / 2)).Mul(dt))
	b.Velocity = b.Velocity.Add(a.Mul(dt))
}

// KineticEnergy is ½mv².
func (b *Body) KineticEnergy() float64 {
	return 0.5 * b.Mass * b.Velocity.Dot(b.Velocity)
}

// AccumulateForces adds the softened pairwise gravitational force to every
// body in the slice. Each unordered pair is visited once; body i receives
// +F and body j receives -F. Forces are not cleared here.
func AccumulateForces(bodies []Body) {
	for i := 0; i < len(bodies)-1; i++ {
		bi := &bodies[i]
		for j := i + 1; j < len(bodies); j++ {
			bj := &bodies[j]
			f, ok := pairForce(bi, bj)
			if !ok {
				continue
			}
			bi.Force = bi.Force.Add(f)
			bj.Force = bj.Force.Sub(f)
		}
	}
}

// pairForce returns the force on a due to b. Coincident bodies exert nothing.
// Below contact distance the magnitude is evaluated at contact and scaled
// linearly to zero at full overlap.
func pairForce(a, b *Body) (mgl64.Vec3, bool) {
	d := b.Position.Sub(a.Position)
	dist := d.Len()
	if dist == 0 {
		return mgl64.Vec3{}, false
	}
	contact := a.Radius + b.Radius
	r := math.Max(dist, contact)
	mag := G * a.Mass * b.Mass / (r * r)
	if dist < contact {
		mag *= dist / contact
	}
	return d.Mul(mag / dist), true
}

// softenedDistance mirrors the radius clamp used by pairForce.
func softenedDistance(a, b *Body) float64 {
	return math.Max(b.Position.Sub(a.Position).Len(), a.Radius+b.Radius)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteVec(v mgl64.Vec3) bool {
	return finite(v[0]) && finite(v[1]) && finite(v[2])
}
