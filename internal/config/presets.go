package config

import "sort"

var Presets = map[string]*Config{
	// A sun with one planet and its moon. Speeds are circular-orbit speeds.
	"solar": {
		DynamicsResolution: 1, KinematicsResolution: 10, CacheHorizon: 2000,
		TrackLength: 1000, TimeMagnification: 100, FrameRate: 30, StepBudgetMs: 3,
		Bodies: []BodyConfig{
			{Name: "sun", Color: "#f9e2af", Mass: 1e12, Radius: 5},
			{Name: "earth", Color: "#89b4fa", Mass: 1e9, Radius: 1,
				Position: [3]float64{100, 0, 0}, Velocity: [3]float64{0, 0.8169, 0}},
			{Name: "moon", Color: "#a6adc8", Mass: 1e6, Radius: 0.3,
				Position: [3]float64{103, 0, 0}, Velocity: [3]float64{0, 0.9660, 0}},
		},
	},
	"binary": {
		DynamicsResolution: 1, KinematicsResolution: 10, CacheHorizon: 3000,
		TrackLength: 2500, TimeMagnification: 200, FrameRate: 30, StepBudgetMs: 3,
		Bodies: []BodyConfig{
			{Name: "alpha", Color: "#fab387", Mass: 1e10, Radius: 1,
				Position: [3]float64{-50, 0, 0}, Velocity: [3]float64{0, -0.05776, 0}},
			{Name: "beta", Color: "#94e2d5", Mass: 1e10, Radius: 1,
				Position: [3]float64{50, 0, 0}, Velocity: [3]float64{0, 0.05776, 0}},
		},
	},
	// Figure-eight choreography scaled to 1e10 kg and 100 m.
	"trio": {
		DynamicsResolution: 0.5, KinematicsResolution: 10, CacheHorizon: 8000,
		TrackLength: 4000, TimeMagnification: 400, FrameRate: 30, StepBudgetMs: 3,
		Bodies: []BodyConfig{
			{Name: "one", Color: "#f38ba8", Mass: 1e10, Radius: 1,
				Position: [3]float64{97.000436, -24.308753, 0}, Velocity: [3]float64{0.038082, 0.035318, 0}},
			{Name: "two", Color: "#a6e3a1", Mass: 1e10, Radius: 1,
				Position: [3]float64{-97.000436, 24.308753, 0}, Velocity: [3]float64{0.038082, 0.035318, 0}},
			{Name: "three", Color: "#cba6f7", Mass: 1e10, Radius: 1,
				Velocity: [3]float64{-0.076164, -0.070636, 0}},
		},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
