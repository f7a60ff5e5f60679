package viz

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/orbitsim/internal/dynamo"
)

const (
	minZoom = 0.05
	maxZoom = 50
)

// Camera is an orthographic view of the simulation. Positions are shifted by
// Center, rotated by Yaw about the world Y axis then by Pitch about the
// camera X axis, and scaled so that Extent metres reach the edge of the
// shorter screen side at zoom 1.
type Camera struct {
	Center     mgl64.Vec3
	Extent     float64
	Yaw, Pitch float64
	Zoom       float64
}

func NewCamera() *Camera {
	return &Camera{Extent: 1, Zoom: 1}
}

func (c *Camera) Rotate(yaw, pitch float64) {
	c.Yaw = math.Mod(c.Yaw+yaw, 2*math.Pi)
	c.Pitch = mgl64.Clamp(c.Pitch+pitch, -math.Pi/2, math.Pi/2)
}

func (c *Camera) ZoomIn()  { c.Zoom = math.Min(maxZoom, c.Zoom*1.25) }
func (c *Camera) ZoomOut() { c.Zoom = math.Max(minZoom, c.Zoom/1.25) }

// Reset restores the face-on view without touching Center or Extent.
func (c *Camera) Reset() {
	c.Yaw, c.Pitch, c.Zoom = 0, 0, 1
}

// Fit centres the camera on the frame's centre of mass and sizes Extent to
// the farthest body, with a tenth of margin.
func (c *Camera) Fit(f *dynamo.Frame) {
	if f == nil || f.Len() == 0 {
		return
	}
	c.Center = f.CenterOfMass()
	extent := 0.0
	for i := 0; i < f.Len(); i++ {
		extent = math.Max(extent, f.Position(i).Sub(c.Center).Len())
	}
	if extent == 0 || math.IsNaN(extent) || math.IsInf(extent, 0) {
		extent = 1
	}
	c.Extent = extent * 1.1
}

func (c *Camera) view() mgl64.Mat3 {
	return mgl64.Rotate3DX(c.Pitch).Mul3(mgl64.Rotate3DY(c.Yaw))
}

// Project maps a world position onto a w×h pixel grid with y pointing down.
// depth grows away from the viewer. ok is false when the point falls off the
// grid or is not finite.
func (c *Camera) Project(p mgl64.Vec3, w, h int) (x, y int, depth float64, ok bool) {
	q := c.view().Mul3x1(p.Sub(c.Center))
	half := float64(min(w, h)) / 2
	scale := half * c.Zoom / c.Extent
	fx := float64(w)/2 + q.X()*scale
	fy := float64(h)/2 - q.Y()*scale
	if math.IsNaN(fx) || math.IsNaN(fy) || math.Abs(fx) > 1e6 || math.Abs(fy) > 1e6 {
		return 0, 0, 0, false
	}
	x, y = int(math.Floor(fx)), int(math.Floor(fy))
	return x, y, -q.Z(), x >= 0 && x < w && y >= 0 && y < h
}
