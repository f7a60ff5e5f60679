// Package dynamo implements the gravitational multibody core.
//
// Bodies interact pairwise through softened Newtonian gravity. The [Engine]
// integrates them at two resolutions:
//
//   - dynamics resolution (dtD): the integration sub-step
//   - kinematics resolution (dtK): the spacing of cached [Frame] values
//
// Each kinematics step runs round(dtK/dtD) sub-steps on a [FrameBuilder] and
// freezes the result into a new Frame. The engine keeps the frames inside the
// cache horizon in a ring buffer and answers time-range queries with a
// [Snapshot].
//
// # Example
//
//	eng, _ := dynamo.NewEngine(dynamo.EngineConfig{
//		DynamicsResolution:   1,
//		KinematicsResolution: 10,
//		CacheHorizon:         100,
//	}, bodies)
//	eng.AdvanceBy(100)
//	snap, ok := eng.Query(20, 60)
//
// # Thread Safety
//
// Engine is NOT thread-safe. Frames are immutable once frozen and may be
// shared freely. Concurrent access goes through sim.Coordinator.
package dynamo
