package sim

import (
	"errors"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/orbitsim/internal/dynamo"
	"github.com/san-kum/orbitsim/internal/metrics"
)

type recordingSink struct {
	mu   sync.Mutex
	reqs []RenderRequest
}

func (s *recordingSink) Render(req RenderRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return nil
}

func (s *recordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

func (s *recordingSink) Last() RenderRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reqs[len(s.reqs)-1]
}

var _ = Describe("Runner", func() {
	var (
		coord *Coordinator
		sink  *recordingSink
	)

	newCoordinator := func(bodies []dynamo.Body, settings Settings) *Coordinator {
		c, err := NewCoordinator(dynamo.EngineConfig{
			DynamicsResolution:   1,
			KinematicsResolution: 10,
			CacheHorizon:         100,
		}, settings, bodies)
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	BeforeEach(func() {
		settings := DefaultSettings()
		settings.TimeMagnification = 1000
		settings.TrackLength = 50
		settings.FrameRate = 100
		coord = newCoordinator(testBodies(), settings)
		sink = &recordingSink{}
	})

	Context("when running", func() {
		var r *Runner

		BeforeEach(func() {
			r = NewRunner(coord, RunnerConfig{Exporter: metrics.NewExporter()}, sink)
			Expect(r.Start()).To(Succeed())
			DeferCleanup(func() { r.Stop() })
		})

		It("produces frames and renders snapshots", func() {
			Eventually(sink.Len, 2*time.Second, 10*time.Millisecond).Should(BeNumerically(">=", 3))
			Eventually(func() float64 { return coord.Latest().Time() }, 2*time.Second).Should(BeNumerically(">", 0))

			req := sink.Last()
			Expect(req.Snapshot).NotTo(BeNil())
			// bounds snap to the nearest frame, at most half a kinematics step away
			Expect(req.Snapshot.EndTime()).To(BeNumerically("<=", req.Playback+5))
			Expect(req.Playback - req.Snapshot.StartTime()).To(BeNumerically("<=", 50+5))
			Expect(req.Status.Running).To(BeTrue())
		})

		It("keeps the cache within capacity", func() {
			Consistently(func() bool {
				return coord.FrameCount() <= coord.Capacity()
			}, 300*time.Millisecond, 5*time.Millisecond).Should(BeTrue())
		})

		It("rejects configuration changes", func() {
			err := coord.SetDynamicsResolution(0.5)
			Expect(errors.Is(err, dynamo.ErrInvalidOperation)).To(BeTrue())
			Expect(coord.DynamicsResolution()).To(Equal(1.0))
		})

		It("cannot be started twice", func() {
			Expect(r.Start()).To(MatchError(ErrRunnerUsed))
		})

		It("stops cleanly", func() {
			Eventually(sink.Len, 2*time.Second).Should(BeNumerically(">", 0))
			Expect(r.Stop()).To(Succeed())
			Expect(coord.IsRunning()).To(BeFalse())
			Eventually(r.Done()).Should(BeClosed())

			n := sink.Len()
			Consistently(sink.Len, 100*time.Millisecond).Should(Equal(n))
			Expect(coord.SetTrackLength(10)).To(Succeed())
		})
	})

	Context("when the system diverges", func() {
		It("halts and reports the error", func() {
			coord = newCoordinator([]dynamo.Body{
				{Mass: 1e300, Radius: 1},
				{Mass: 1e300, Radius: 1, Position: mgl64.Vec3{10, 0, 0}},
			}, DefaultSettings())
			r := NewRunner(coord, RunnerConfig{}, sink)
			Expect(r.Start()).To(Succeed())

			Eventually(r.Done(), 2*time.Second).Should(BeClosed())
			Expect(errors.Is(r.Err(), dynamo.ErrNonFinite)).To(BeTrue())
			Expect(coord.IsRunning()).To(BeFalse())
			Expect(errors.Is(r.Stop(), dynamo.ErrNonFinite)).To(BeTrue())
		})
	})

	Describe("playback clock", func() {
		var (
			clk *metrics.ManualClock
			r   *Runner
		)

		BeforeEach(func() {
			clk = metrics.NewManualClock(time.Unix(100, 0))
			r = NewRunner(coord, RunnerConfig{Clock: clk}, sink)
			r.lastRender = clk.Now()
			_, err := coord.AdvanceBy(100)
			Expect(err).NotTo(HaveOccurred())
		})

		It("advances by wall time scaled by magnification", func() {
			clk.Advance(50 * time.Millisecond)
			Expect(r.renderOnce()).To(BeTrue())

			req := sink.Last()
			Expect(req.Playback).To(BeNumerically("~", 50, 1e-9))
			Expect(req.Snapshot.StartTime()).To(Equal(10.0))
			Expect(req.Snapshot.EndTime()).To(Equal(50.0))
		})

		It("clamps to the newest frame and evicts behind the track", func() {
			clk.Advance(time.Second)
			Expect(r.renderOnce()).To(BeTrue())

			req := sink.Last()
			Expect(req.Playback).To(Equal(100.0))
			Expect(req.Snapshot.StartTime()).To(Equal(50.0))
			Expect(req.Snapshot.Len()).To(Equal(6))
			Expect(coord.Evicted()).To(BeEquivalentTo(4))
			Expect(coord.NeedsFrames()).To(BeTrue())
		})

		It("counts renders", func() {
			clk.Advance(10 * time.Millisecond)
			r.renderOnce()
			clk.Advance(10 * time.Millisecond)
			r.renderOnce()
			Expect(r.Renders()).To(BeEquivalentTo(2))
			Expect(sink.Len()).To(Equal(2))
		})
	})
})
