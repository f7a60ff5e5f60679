package export

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/san-kum/orbitsim/internal/dynamo"
	"github.com/san-kum/orbitsim/internal/viz"
)

var defaultColors = []string{"#f9e2af", "#89b4fa", "#f38ba8", "#a6e3a1", "#cba6f7", "#fab387"}

// SVGOptions controls SnapshotToSVG. Zero values fall back to an 800×800
// face-on view fitted to the newest frame.
type SVGOptions struct {
	Width, Height int
	Camera        *viz.Camera
	Background    string
}

// SnapshotToSVG draws every body's track through the snapshot as a polyline
// and marks its newest position with a circle.
func SnapshotToSVG(snap *dynamo.Snapshot, opts SVGOptions) string {
	if snap == nil || snap.Len() == 0 {
		return ""
	}
	if opts.Width <= 0 {
		opts.Width = 800
	}
	if opts.Height <= 0 {
		opts.Height = 800
	}
	if opts.Background == "" {
		opts.Background = "#0a0a0a"
	}
	cam := opts.Camera
	if cam == nil {
		cam = viz.NewCamera()
		cam.Fit(snap.Newest())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
`, opts.Width, opts.Height, opts.Width, opts.Height, opts.Background))
	sb.WriteString(fmt.Sprintf("<!-- t=%g..%g frames=%d -->\n", snap.StartTime(), snap.EndTime(), snap.Len()))

	newest := snap.Newest()
	for i := 0; i < newest.Len(); i++ {
		body, _ := newest.Body(i)
		color := body.Appearance.Color
		if color == "" {
			color = defaultColors[i%len(defaultColors)]
		}

		var d strings.Builder
		for j := 0; j < snap.Len(); j++ {
			x, y, _, ok := cam.Project(snap.At(j).Position(i), opts.Width, opts.Height)
			if !ok {
				continue
			}
			if d.Len() == 0 {
				d.WriteString(fmt.Sprintf("M%d,%d", x, y))
			} else {
				d.WriteString(fmt.Sprintf(" L%d,%d", x, y))
			}
		}
		if d.Len() > 0 {
			sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" stroke-opacity="0.7" d="%s"/>
`, color, d.String()))
		}

		x, y, _, ok := cam.Project(newest.Position(i), opts.Width, opts.Height)
		if !ok {
			continue
		}
		r := math.Max(3, body.Radius*float64(min(opts.Width, opts.Height))/2*cam.Zoom/cam.Extent)
		sb.WriteString(fmt.Sprintf(`<circle cx="%d" cy="%d" r="%.1f" fill="%s"><title>%s</title></circle>
`, x, y, r, color, body.Appearance.Name))
	}

	sb.WriteString("</svg>\n")
	return sb.String()
}

// WriteSVG writes SnapshotToSVG output to w.
func WriteSVG(w io.Writer, snap *dynamo.Snapshot, opts SVGOptions) error {
	svg := SnapshotToSVG(snap, opts)
	if svg == "" {
		return fmt.Errorf("export: empty snapshot")
	}
	_, err := io.WriteString(w, svg)
	return err
}

// SaveSVG writes the snapshot to path.
func SaveSVG(path string, snap *dynamo.Snapshot, opts SVGOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSVG(f, snap, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
