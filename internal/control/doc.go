// Package control paces the producer loop so that the measured dynamics
// frequency tracks the rate implied by the time magnification.
//
// [RateController] is a threshold-driven feedback loop, not a PID:
//
//   - outside ±10% of target it re-plans from the measured rate and step cost
//   - inside the band it nudges steps-per-wake or sleep by one unit
//     whenever the error exceeds ±1%
//
// # Usage
//
//	rc := control.NewRateController(control.RateConfig{}, nil)
//	rc.SetTarget(magnification, dtD, countD)
//	// producer: rc.ObserveStep(cost) after every coarse step
//	// once per wake: d, _ := rc.Tick(engine.DynamicsFrequency())
//
// Parameters can be adjusted live through GetParams and SetParam.
package control
