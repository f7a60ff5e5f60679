package dynamo

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestBodyValidate(t *testing.T) {
	good := Body{Mass: 1, Radius: 1}
	tests := []struct {
		name string
		body Body
		ok   bool
	}{
		{"valid", good, true},
		{"zero mass", Body{Mass: 0, Radius: 1}, false},
		{"negative radius", Body{Mass: 1, Radius: -1}, false},
		{"nan mass", Body{Mass: math.NaN(), Radius: 1}, false},
		{"inf position", Body{Mass: 1, Radius: 1, Position: mgl64.Vec3{math.Inf(1), 0, 0}}, false},
		{"nan velocity", Body{Mass: 1, Radius: 1, Velocity: mgl64.Vec3{0, math.NaN(), 0}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.body.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestAccumulateForcesNewton(t *testing.T) {
	bodies := []Body{
		{Mass: 1e10, Radius: 1, Position: mgl64.Vec3{0, 0, 0}},
		{Mass: 2e10, Radius: 1, Position: mgl64.Vec3{100, 0, 0}},
	}
	AccumulateForces(bodies)

	want := G * 1e10 * 2e10 / (100 * 100)
	if math.Abs(bodies[0].Force[0]-want) > want*1e-12 {
		t.Errorf("force on 0: got %g, expected %g", bodies[0].Force[0], want)
	}
	if bodies[0].Force.Add(bodies[1].Force).Len() != 0 {
		t.Errorf("forces not equal and opposite: %v %v", bodies[0].Force, bodies[1].Force)
	}
}

func TestAccumulateForcesSoftening(t *testing.T) {
	// contact distance is 4, separation is 2
	bodies := []Body{
		{Mass: 1e10, Radius: 2, Position: mgl64.Vec3{0, 0, 0}},
		{Mass: 1e10, Radius: 2, Position: mgl64.Vec3{0, 2, 0}},
	}
	AccumulateForces(bodies)

	want := G * 1e10 * 1e10 / 16 * 0.5
	got := bodies[0].Force[1]
	if math.Abs(got-want) > want*1e-12 {
		t.Errorf("softened force: got %g, expected %g", got, want)
	}
}

func TestAccumulateForcesCoincident(t *testing.T) {
	bodies := []Body{
		{Mass: 1, Radius: 1, Position: mgl64.Vec3{5, 5, 5}},
		{Mass: 1, Radius: 1, Position: mgl64.Vec3{5, 5, 5}},
	}
	AccumulateForces(bodies)
	for i := range bodies {
		if bodies[i].Force.Len() != 0 {
			t.Errorf("body %d: expected zero force, got %v", i, bodies[i].Force)
		}
	}
}

func TestAccumulateForcesAddsToExisting(t *testing.T) {
	bodies := []Body{
		{Mass: 1, Radius: 1, Force: mgl64.Vec3{1, 2, 3}},
	}
	AccumulateForces(bodies)
	if bodies[0].Force != (mgl64.Vec3{1, 2, 3}) {
		t.Errorf("single body force changed: %v", bodies[0].Force)
	}
}

func TestBodyStep(t *testing.T) {
	b := Body{
		Mass:     2,
		Radius:   1,
		Position: mgl64.Vec3{1, 0, 0},
		Velocity: mgl64.Vec3{0, 3, 0},
		Force:    mgl64.Vec3{4, 0, 0},
	}
	b.step(0.5)

	// a = (2,0,0); pos += (v + a*dt/2)*dt; vel += a*dt
	wantPos := mgl64.Vec3{1 + 0.25, 1.5, 0}
	wantVel := mgl64.Vec3{1, 3, 0}
	if !b.Position.ApproxEqual(wantPos) {
		t.Errorf("position: got %v, expected %v", b.Position, wantPos)
	}
	if !b.Velocity.ApproxEqual(wantVel) {
		t.Errorf("velocity: got %v, expected %v", b.Velocity, wantVel)
	}
}

func TestKineticEnergy(t *testing.T) {
	b := Body{Mass: 4, Velocity: mgl64.Vec3{3, 4, 0}}
	if got := b.KineticEnergy(); got != 50 {
		t.Errorf("expected 50, got %f", got)
	}
}
