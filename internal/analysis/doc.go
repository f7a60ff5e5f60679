// Package analysis provides diagnostics over simulated frames.
//
//   - [Conservation]: drift of energy, momentum and angular momentum
//   - [Trace]: x/y projection of body trajectories in a snapshot
//
// # Drift
//
// A conservative system keeps its invariants; growing drift points at a
// dynamics resolution that is too coarse:
//
//	c := analysis.NewConservation()
//	c.Observe(engine.Initial())
//	c.Observe(engine.Latest())
//	if c.EnergyDrift() > 1e-2 {
//	    // refine dtD
//	}
package analysis
