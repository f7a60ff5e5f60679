package analysis

import (
	"strings"

	"github.com/san-kum/orbitsim/internal/dynamo"
)

type Point struct{ X, Y float64 }

// Trace holds the x/y projection of each body's path through a snapshot.
type Trace struct {
	Names []string
	Paths [][]Point
}

// TraceSnapshot projects every body of every frame onto the x/y plane.
// Bodies are taken in roster order from the newest frame.
func TraceSnapshot(snap *dynamo.Snapshot) *Trace {
	if snap == nil || snap.Len() == 0 {
		return nil
	}
	newest := snap.Newest()
	tr := &Trace{
		Names: make([]string, newest.Len()),
		Paths: make([][]Point, newest.Len()),
	}
	for i := range tr.Names {
		b, _ := newest.Body(i)
		tr.Names[i] = b.Appearance.Name
		tr.Paths[i] = make([]Point, 0, snap.Len())
	}
	for k := 0; k < snap.Len(); k++ {
		f := snap.At(k)
		for i := 0; i < f.Len() && i < len(tr.Paths); i++ {
			p := f.Position(i)
			tr.Paths[i] = append(tr.Paths[i], Point{X: p[0], Y: p[1]})
		}
	}
	return tr
}

// Bounds returns the extent of every path, padded by 10% on each side.
func (t *Trace) Bounds() (minX, maxX, minY, maxY float64) {
	first := true
	for _, path := range t.Paths {
		for _, p := range path {
			if first {
				minX, maxX, minY, maxY = p.X, p.X, p.Y, p.Y
				first = false
				continue
			}
			minX, maxX = min(minX, p.X), max(maxX, p.X)
			minY, maxY = min(minY, p.Y), max(maxY, p.Y)
		}
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	return minX - rangeX*0.1, maxX + rangeX*0.1, minY - rangeY*0.1, maxY + rangeY*0.1
}

// ToASCII draws the trace on a width x height character grid. Paths are
// dotted and each body's newest position is marked A, B, C and so on.
func (t *Trace) ToASCII(width, height int) string {
	if t == nil || width < 2 || height < 2 {
		return ""
	}
	minX, maxX, minY, maxY := t.Bounds()
	rangeX := maxX - minX
	rangeY := maxY - minY

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}

	cell := func(p Point) (int, int, bool) {
		col := int((p.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((p.Y-minY)/rangeY*float64(height-1))
		return row, col, row >= 0 && row < height && col >= 0 && col < width
	}

	// Draw axes if they cross the visible area
	if minX <= 0 && maxX >= 0 {
		col := int((0 - minX) / rangeX * float64(width-1))
		for row := 0; row < height; row++ {
			canvas[row][col] = '│'
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int((0-minY)/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			canvas[row][col] = '─'
		}
	}

	for i, path := range t.Paths {
		mark := rune('A' + i%26)
		for _, p := range path {
			if row, col, ok := cell(p); ok {
				canvas[row][col] = '·'
			}
		}
		if len(path) > 0 {
			if row, col, ok := cell(path[len(path)-1]); ok {
				canvas[row][col] = mark
			}
		}
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}
