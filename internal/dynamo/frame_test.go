package dynamo

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func pair() []Body {
	return []Body{
		{Mass: 1e10, Radius: 1, Position: mgl64.Vec3{-50, 0, 0}, Appearance: Appearance{Name: "a"}},
		{Mass: 1e10, Radius: 1, Position: mgl64.Vec3{50, 0, 0}, Appearance: Appearance{Name: "b"}},
	}
}

func TestNewFrameRejectsInvalid(t *testing.T) {
	if _, err := NewFrame(math.NaN(), pair()); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("nan time: expected ErrInvalidArgument, got %v", err)
	}
	bodies := pair()
	bodies[1].Mass = -1
	if _, err := NewFrame(0, bodies); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("negative mass: expected ErrInvalidArgument, got %v", err)
	}
}

func TestFrameIsImmutable(t *testing.T) {
	src := pair()
	f, err := NewFrame(0, src)
	if err != nil {
		t.Fatal(err)
	}

	src[0].Mass = 1
	out := f.Bodies()
	out[1].Position = mgl64.Vec3{}

	b0, _ := f.Body(0)
	if b0.Mass != 1e10 {
		t.Errorf("frame shares caller slice: mass %g", b0.Mass)
	}
	if f.Position(1) != (mgl64.Vec3{50, 0, 0}) {
		t.Errorf("frame shares returned slice: %v", f.Position(1))
	}
	if b0.Appearance.Name != "a" {
		t.Errorf("appearance lost: %+v", b0.Appearance)
	}
}

func TestFrameBodyOutOfRange(t *testing.T) {
	f, _ := NewFrame(0, pair())
	for _, i := range []int{-1, 2} {
		if _, err := f.Body(i); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("index %d: expected ErrOutOfRange, got %v", i, err)
		}
	}
}

func TestFramePositionOutOfRange(t *testing.T) {
	f, err := NewFrame(0, pair())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < f.Len(); i++ {
		b, _ := f.Body(i)
		if f.Position(i) != b.Position {
			t.Errorf("got %v at %d, expected %v", f.Position(i), i, b.Position)
		}
	}
	for _, i := range []int{-1, f.Len()} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("Position(%d): expected a panic", i)
				}
			}()
			f.Position(i)
		}()
	}
}

func TestBuilderAdvance(t *testing.T) {
	f, _ := NewFrame(0, pair())
	b := f.Builder()
	for i := 0; i < 3; i++ {
		if err := b.Advance(0.5); err != nil {
			t.Fatal(err)
		}
	}
	if b.Time() != 1.5 {
		t.Errorf("builder time: expected 1.5, got %f", b.Time())
	}

	next := b.Freeze()
	if next.Position(0)[0] <= -50 {
		t.Errorf("bodies did not attract: %v", next.Position(0))
	}
	if f.Position(0) != (mgl64.Vec3{-50, 0, 0}) {
		t.Errorf("builder mutated source frame: %v", f.Position(0))
	}
}

func TestBuilderFrozen(t *testing.T) {
	f, _ := NewFrame(0, pair())
	b := f.Builder()
	b.Freeze()
	if err := b.Advance(1); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("expected ErrInvalidOperation, got %v", err)
	}
}

func TestBuilderRejectsBadStep(t *testing.T) {
	f, _ := NewFrame(0, pair())
	b := f.Builder()
	for _, dt := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if err := b.Advance(dt); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("dt=%v: expected ErrInvalidArgument, got %v", dt, err)
		}
	}
}

func TestFrameConservedQuantities(t *testing.T) {
	bodies := pair()
	bodies[0].Velocity = mgl64.Vec3{0, 1, 0}
	bodies[1].Velocity = mgl64.Vec3{0, -1, 0}
	f, _ := NewFrame(0, bodies)

	if f.Momentum().Len() != 0 {
		t.Errorf("expected zero momentum, got %v", f.Momentum())
	}
	if f.CenterOfMass().Len() != 0 {
		t.Errorf("expected centre of mass at origin, got %v", f.CenterOfMass())
	}
	// each body: r x mv = (∓50,0,0) x (0,±1e10,0) = (0,0,-5e11)
	wantL := mgl64.Vec3{0, 0, -1e12}
	if !f.AngularMomentum().ApproxEqual(wantL) {
		t.Errorf("angular momentum: got %v, expected %v", f.AngularMomentum(), wantL)
	}
	wantE := 1e10 - G*1e20/100
	if math.Abs(f.Energy()-wantE) > math.Abs(wantE)*1e-12 {
		t.Errorf("energy: got %g, expected %g", f.Energy(), wantE)
	}
}
