// Package viz is the live terminal view of a running simulation.
//
// A [Feed] is registered with a sim.Runner as a render sink and delivers
// each render request to a Bubble Tea [Model], which draws the body trails
// on a Braille [Canvas] through an orthographic [Camera] and charts the
// total energy with asciigraph. [Picker] is the preset menu shown before a
// run starts.
//
// # Key Bindings
//
//	Space   - Freeze/unfreeze the view (the simulation keeps running)
//	Arrows  - Rotate the camera
//	+/-     - Zoom
//	F       - Toggle fitting the view to the bodies
//	R       - Reset the camera
//	T       - Cycle color themes
//	?       - Show help
package viz
