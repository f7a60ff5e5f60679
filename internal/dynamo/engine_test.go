package dynamo

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/orbitsim/internal/metrics"
)

func trio() []Body {
	return []Body{
		{Mass: 1e12, Radius: 5, Position: mgl64.Vec3{0, 0, 0}},
		{Mass: 1e9, Radius: 1, Position: mgl64.Vec3{100, 0, 0}, Velocity: mgl64.Vec3{0, 0.816, 0}},
		{Mass: 1e9, Radius: 1, Position: mgl64.Vec3{-150, 0, 0}, Velocity: mgl64.Vec3{0, -0.667, 0}},
	}
}

func newTestEngine(t *testing.T, dtD, dtK, horizon float64) *Engine {
	t.Helper()
	e, err := NewEngine(EngineConfig{
		DynamicsResolution:   dtD,
		KinematicsResolution: dtK,
		CacheHorizon:         horizon,
		Clock:                metrics.NewManualClock(time.Unix(0, 0)),
	}, trio())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestNewEngineInitialFrame(t *testing.T) {
	e := newTestEngine(t, 1, 10, 100)
	if e.Len() != 1 {
		t.Fatalf("expected 1 cached frame, got %d", e.Len())
	}
	if e.Latest() != e.Initial() || e.Oldest() != e.Initial() {
		t.Error("initial frame should be both oldest and latest")
	}
	if e.Latest().Time() != 0 {
		t.Errorf("initial time: expected 0, got %f", e.Latest().Time())
	}
	if e.Capacity() != 10 {
		t.Errorf("capacity: expected 10, got %d", e.Capacity())
	}
	if e.SubSteps() != 10 {
		t.Errorf("sub-steps: expected 10, got %d", e.SubSteps())
	}
}

func TestNewEngineValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  EngineConfig
	}{
		{"zero dynamics", EngineConfig{DynamicsResolution: 0, KinematicsResolution: 1, CacheHorizon: 1}},
		{"nan kinematics", EngineConfig{DynamicsResolution: 1, KinematicsResolution: math.NaN(), CacheHorizon: 1}},
		{"kinematics finer", EngineConfig{DynamicsResolution: 2, KinematicsResolution: 1, CacheHorizon: 1}},
		{"negative horizon", EngineConfig{DynamicsResolution: 1, KinematicsResolution: 1, CacheHorizon: -1}},
		{"inf horizon", EngineConfig{DynamicsResolution: 1, KinematicsResolution: 1, CacheHorizon: math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEngine(tt.cfg, trio()); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestCapacityFor(t *testing.T) {
	tests := []struct {
		horizon, dtK float64
		want         int
	}{
		{100, 10, 10},
		{105, 10, 11},
		{0, 10, 1},
		{1, 10, 1},
		{0.3, 0.1, 3},
	}
	for _, tt := range tests {
		if got := CapacityFor(tt.horizon, tt.dtK); got != tt.want {
			t.Errorf("CapacityFor(%v, %v) = %d, expected %d", tt.horizon, tt.dtK, got, tt.want)
		}
	}
}

func TestAdvanceByScenario(t *testing.T) {
	e := newTestEngine(t, 1, 10, 100)

	n, err := e.AdvanceBy(100)
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Errorf("expected 10 coarse steps, got %d", n)
	}
	if e.Len() != 10 {
		t.Errorf("expected 10 cached frames, got %d", e.Len())
	}
	if got := e.Oldest().Time(); got != 10 {
		t.Errorf("oldest time: expected 10, got %f", got)
	}
	latest := e.Latest()
	if latest.Time() != 100 {
		t.Errorf("latest time: expected 100, got %f", latest.Time())
	}
	if latest.KinematicsID() != 10 || latest.DynamicsID() != 100 {
		t.Errorf("ids: kinematics %d dynamics %d", latest.KinematicsID(), latest.DynamicsID())
	}

	for i := 1; i < e.Len(); i++ {
		prev, _ := e.Frame(i - 1)
		cur, _ := e.Frame(i)
		if cur.Time()-prev.Time() != 10 {
			t.Errorf("frame %d: spacing %f", i, cur.Time()-prev.Time())
		}
		if cur.DynamicsID() != uint64(e.SubSteps())*cur.KinematicsID() {
			t.Errorf("frame %d: dynamics id %d, kinematics id %d", i, cur.DynamicsID(), cur.KinematicsID())
		}
	}
}

func TestAdvanceByRejects(t *testing.T) {
	e := newTestEngine(t, 1, 10, 100)
	if _, err := e.AdvanceBy(5); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("short span: expected ErrInvalidOperation, got %v", err)
	}
	if _, err := e.AdvanceBy(math.NaN()); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("nan span: expected ErrInvalidArgument, got %v", err)
	}
	if e.Len() != 1 {
		t.Errorf("rejected advance changed history: %d frames", e.Len())
	}
}

func TestAdvanceByRounds(t *testing.T) {
	e := newTestEngine(t, 1, 10, 1000)
	n, err := e.AdvanceBy(34)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || e.Latest().Time() != 30 {
		t.Errorf("expected 3 steps to t=30, got %d steps to t=%f", n, e.Latest().Time())
	}
}

func TestAdvanceDivergence(t *testing.T) {
	e, err := NewEngine(EngineConfig{
		DynamicsResolution:   1,
		KinematicsResolution: 1,
		CacheHorizon:         10,
	}, []Body{
		{Mass: 1e300, Radius: 1, Position: mgl64.Vec3{0, 0, 0}},
		{Mass: 1e300, Radius: 1, Position: mgl64.Vec3{10, 0, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}

	err = e.Advance()
	if !errors.Is(err, ErrNonFinite) {
		t.Fatalf("expected ErrNonFinite, got %v", err)
	}
	var simErr *SimulationError
	if !errors.As(err, &simErr) {
		t.Fatalf("expected *SimulationError, got %T", err)
	}
	if e.Len() != 1 {
		t.Errorf("diverged frame was cached: %d frames", e.Len())
	}
}

func TestBinaryOrbitConservation(t *testing.T) {
	const (
		m = 1e10
		d = 100.0
	)
	v := math.Sqrt(G * m / (2 * d))
	bodies := []Body{
		{Mass: m, Radius: 1, Position: mgl64.Vec3{-d / 2, 0, 0}, Velocity: mgl64.Vec3{0, -v, 0}},
		{Mass: m, Radius: 1, Position: mgl64.Vec3{d / 2, 0, 0}, Velocity: mgl64.Vec3{0, v, 0}},
	}
	e, err := NewEngine(EngineConfig{
		DynamicsResolution:   0.5,
		KinematicsResolution: 10,
		CacheHorizon:         5000,
	}, bodies)
	if err != nil {
		t.Fatal(err)
	}

	e0 := e.Initial().Energy()
	l0 := e.Initial().AngularMomentum().Len()

	if _, err := e.AdvanceBy(5000); err != nil {
		t.Fatal(err)
	}
	f := e.Latest()

	if rel := math.Abs((f.Energy() - e0) / e0); rel > 1e-2 {
		t.Errorf("energy drift %.4g exceeds 1e-2", rel)
	}
	if rel := math.Abs((f.AngularMomentum().Len() - l0) / l0); rel > 1e-2 {
		t.Errorf("angular momentum drift %.4g exceeds 1e-2", rel)
	}
	if p := f.Momentum().Len(); p > 1e-6 {
		t.Errorf("momentum not conserved: %g", p)
	}

	sep := f.Position(1).Sub(f.Position(0)).Len()
	if math.Abs(sep-d) > 0.05*d {
		t.Errorf("separation drifted to %f", sep)
	}
}

func TestSetResolutions(t *testing.T) {
	e := newTestEngine(t, 1, 10, 100)
	e.AdvanceBy(100)

	if err := e.SetDynamicsResolution(20); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("dtD > dtK: expected ErrInvalidArgument, got %v", err)
	}
	if err := e.SetKinematicsResolution(0.5); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("dtK < dtD: expected ErrInvalidArgument, got %v", err)
	}

	if err := e.SetKinematicsResolution(20); err != nil {
		t.Fatal(err)
	}
	if e.Capacity() != 5 || e.Len() != 5 {
		t.Errorf("after dtK=20: capacity %d len %d", e.Capacity(), e.Len())
	}
	if e.Latest().Time() != 100 || e.Oldest().Time() != 60 {
		t.Errorf("resize kept [%f, %f], expected [60, 100]", e.Oldest().Time(), e.Latest().Time())
	}
	if e.SubSteps() != 20 {
		t.Errorf("sub-steps: expected 20, got %d", e.SubSteps())
	}

	if err := e.SetDynamicsResolution(4); err != nil {
		t.Fatal(err)
	}
	if e.SubSteps() != 5 {
		t.Errorf("sub-steps: expected 5, got %d", e.SubSteps())
	}

	if err := e.SetCacheHorizon(0); err != nil {
		t.Fatal(err)
	}
	if e.Capacity() != 1 || e.Latest().Time() != 100 {
		t.Errorf("zero horizon: capacity %d latest %f", e.Capacity(), e.Latest().Time())
	}
	if err := e.SetCacheHorizon(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("negative horizon: expected ErrInvalidArgument, got %v", err)
	}
}

func TestRestartAndReset(t *testing.T) {
	e := newTestEngine(t, 1, 10, 100)
	e.AdvanceBy(50)

	e.Reset()
	if e.Len() != 1 || e.Latest().Time() != 0 {
		t.Errorf("reset: len %d latest %f", e.Len(), e.Latest().Time())
	}

	bodies := pair()
	if err := e.Restart(bodies); err != nil {
		t.Fatal(err)
	}
	if e.Latest().Len() != 2 {
		t.Errorf("restart roster: expected 2 bodies, got %d", e.Latest().Len())
	}

	bodies[0].Radius = 0
	if err := e.Restart(bodies); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("bad roster: expected ErrInvalidArgument, got %v", err)
	}
	if e.Latest().Len() != 2 {
		t.Error("failed restart replaced roster")
	}
}

func TestEvictBefore(t *testing.T) {
	e := newTestEngine(t, 1, 10, 100)
	e.AdvanceBy(100)

	if n := e.EvictBefore(45); n != 4 {
		t.Errorf("expected 4 evicted, got %d", n)
	}
	if e.Oldest().Time() != 50 {
		t.Errorf("oldest after evict: %f", e.Oldest().Time())
	}
	e.EvictBefore(1e9)
	if e.Len() != 1 || e.Latest().Time() != 100 {
		t.Errorf("evict kept len %d latest %f", e.Len(), e.Latest().Time())
	}
}

func TestFrameOutOfRange(t *testing.T) {
	e := newTestEngine(t, 1, 10, 100)
	if _, err := e.Frame(3); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestEngineFrequencies(t *testing.T) {
	clk := metrics.NewManualClock(time.Unix(0, 0))
	e, err := NewEngine(EngineConfig{
		DynamicsResolution:   1,
		KinematicsResolution: 10,
		CacheHorizon:         1000,
		FrequencyWindow:      10 * time.Second,
		Clock:                clk,
	}, trio())
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		if i > 0 {
			clk.Advance(time.Second)
		}
		if err := e.Advance(); err != nil {
			t.Fatal(err)
		}
	}

	if got := e.KinematicsFrequency(); math.Abs(got-1) > 1e-9 {
		t.Errorf("kinematics frequency: expected 1, got %f", got)
	}
	if got := e.DynamicsFrequency(); math.Abs(got-10) > 1e-9 {
		t.Errorf("dynamics frequency: expected 10, got %f", got)
	}
}
