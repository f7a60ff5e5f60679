package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sample is one observation of the producer/consumer pipeline.
type Sample struct {
	DynamicsHz   float64
	KinematicsHz float64
	Frames       int
	Capacity     int
	StepsPerWake int
	SleepMs      float64
	Evicted      int
}

// Exporter publishes pipeline samples as Prometheus metrics.
type Exporter struct {
	registry *prometheus.Registry

	dynamicsHz   prometheus.Gauge
	kinematicsHz prometheus.Gauge
	frames       prometheus.Gauge
	capacity     prometheus.Gauge
	stepsPerWake prometheus.Gauge
	sleepMs      prometheus.Gauge
	evicted      prometheus.Counter
}

func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Exporter{
		registry: reg,
		dynamicsHz: factory.NewGauge(prometheus.GaugeOpts{
			Name: "orbitsim_dynamics_frequency_hz",
			Help: "Measured rate of fine integration sub-steps",
		}),
		kinematicsHz: factory.NewGauge(prometheus.GaugeOpts{
			Name: "orbitsim_kinematics_frequency_hz",
			Help: "Measured rate of cached coarse frames",
		}),
		frames: factory.NewGauge(prometheus.GaugeOpts{
			Name: "orbitsim_cached_frames",
			Help: "Frames currently held in the history cache",
		}),
		capacity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "orbitsim_cache_capacity_frames",
			Help: "Frame capacity of the history cache",
		}),
		stepsPerWake: factory.NewGauge(prometheus.GaugeOpts{
			Name: "orbitsim_steps_per_wake",
			Help: "Coarse steps the producer batches per wake-up",
		}),
		sleepMs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "orbitsim_producer_sleep_ms",
			Help: "Producer idle time between batches",
		}),
		evicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "orbitsim_evicted_frames_total",
			Help: "Frames evicted after snapshot queries",
		}),
	}
}

// Registry exposes the collectors for an HTTP handler.
func (e *Exporter) Registry() *prometheus.Registry { return e.registry }

func (e *Exporter) Record(s Sample) {
	e.dynamicsHz.Set(s.DynamicsHz)
	e.kinematicsHz.Set(s.KinematicsHz)
	e.frames.Set(float64(s.Frames))
	e.capacity.Set(float64(s.Capacity))
	e.stepsPerWake.Set(float64(s.StepsPerWake))
	e.sleepMs.Set(s.SleepMs)
	if s.Evicted > 0 {
		e.evicted.Add(float64(s.Evicted))
	}
}
