package analysis

import (
	"math"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/orbitsim/internal/dynamo"
	"github.com/san-kum/orbitsim/internal/sim"
)

func binaryEngine(t *testing.T) *dynamo.Engine {
	t.Helper()
	v := math.Sqrt(dynamo.G * 1e10 / 200)
	e, err := dynamo.NewEngine(dynamo.EngineConfig{
		DynamicsResolution:   1,
		KinematicsResolution: 10,
		CacheHorizon:         1000,
	}, []dynamo.Body{
		{Mass: 1e10, Radius: 1, Position: mgl64.Vec3{-50, 0, 0}, Velocity: mgl64.Vec3{0, -v, 0}, Appearance: dynamo.Appearance{Name: "a"}},
		{Mass: 1e10, Radius: 1, Position: mgl64.Vec3{50, 0, 0}, Velocity: mgl64.Vec3{0, v, 0}, Appearance: dynamo.Appearance{Name: "b"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestConservationTracksDrift(t *testing.T) {
	e := binaryEngine(t)
	c := NewConservation()
	c.Observe(e.Initial())

	if _, err := e.AdvanceBy(1000); err != nil {
		t.Fatal(err)
	}
	c.Observe(e.Latest())

	if c.Samples() != 2 {
		t.Errorf("expected 2 samples, got %d", c.Samples())
	}
	if d := c.EnergyDrift(); d <= 0 || d > 1e-2 {
		t.Errorf("energy drift %g outside (0, 1e-2]", d)
	}
	if d := c.AngularMomentumDrift(); d > 1e-2 {
		t.Errorf("angular momentum drift %g", d)
	}
	if d := c.MomentumDrift(); d > 1e-9 {
		t.Errorf("momentum drift %g", d)
	}

	e0, e1 := c.Energy()
	if e0 != e.Initial().Energy() || e1 != e.Latest().Energy() {
		t.Errorf("energy pair (%g, %g)", e0, e1)
	}

	c.Reset()
	if c.Samples() != 0 || c.EnergyDrift() != 0 {
		t.Error("reset did not clear state")
	}
}

func TestConservationAsSink(t *testing.T) {
	e := binaryEngine(t)
	e.AdvanceBy(100)
	c := NewConservation()

	snap, _ := e.Query(0, 50)
	c.Render(sim.RenderRequest{Snapshot: snap})
	snap, _ = e.Query(30, 100)
	c.Render(sim.RenderRequest{Snapshot: snap})

	if c.Samples() != 11 {
		t.Errorf("overlapping snapshots should count each frame once, got %d", c.Samples())
	}
}

func TestTraceSnapshot(t *testing.T) {
	e := binaryEngine(t)
	e.AdvanceBy(500)
	snap, ok := e.Query(0, 500)
	if !ok {
		t.Fatal("expected a snapshot")
	}

	tr := TraceSnapshot(snap)
	if len(tr.Paths) != 2 || tr.Names[1] != "b" {
		t.Fatalf("unexpected trace %+v", tr.Names)
	}
	if len(tr.Paths[0]) != snap.Len() {
		t.Errorf("path length %d, expected %d", len(tr.Paths[0]), snap.Len())
	}

	minX, maxX, _, _ := tr.Bounds()
	if minX >= -50 || maxX <= 50 {
		t.Errorf("bounds [%f, %f] should pad the orbit", minX, maxX)
	}

	art := tr.ToASCII(40, 20)
	lines := strings.Split(strings.TrimRight(art, "\n"), "\n")
	if len(lines) != 20 {
		t.Errorf("expected 20 rows, got %d", len(lines))
	}
	if !strings.ContainsRune(art, 'A') || !strings.ContainsRune(art, 'B') {
		t.Error("newest positions should be marked")
	}

	if TraceSnapshot(nil) != nil {
		t.Error("nil snapshot should give nil trace")
	}
}
