package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/orbitsim/internal/dynamo"
	"github.com/san-kum/orbitsim/internal/sim"
)

const (
	DefaultDynamicsResolution   = 1.0
	DefaultKinematicsResolution = 10.0
	DefaultCacheHorizon         = 2000.0
	DefaultTrackLength          = 1000.0
	DefaultTimeMagnification    = 100.0
	DefaultFrameRate            = 30.0
	DefaultStepBudgetMs         = 3.0
)

type Config struct {
	DynamicsResolution   float64      `yaml:"dynamics_resolution"`
	KinematicsResolution float64      `yaml:"kinematics_resolution"`
	CacheHorizon         float64      `yaml:"cache_horizon"`
	TrackLength          float64      `yaml:"track_length"`
	TimeMagnification    float64      `yaml:"time_magnification"`
	FrameRate            float64      `yaml:"frame_rate"`
	StepBudgetMs         float64      `yaml:"step_budget_ms"`
	Bodies               []BodyConfig `yaml:"bodies"`
}

type BodyConfig struct {
	Name     string     `yaml:"name"`
	Color    string     `yaml:"color,omitempty"`
	Mass     float64    `yaml:"mass"`
	Radius   float64    `yaml:"radius"`
	Position [3]float64 `yaml:"position,flow"`
	Velocity [3]float64 `yaml:"velocity,flow"`
}

func (b BodyConfig) Body() dynamo.Body {
	return dynamo.Body{
		Mass:       b.Mass,
		Radius:     b.Radius,
		Position:   mgl64.Vec3(b.Position),
		Velocity:   mgl64.Vec3(b.Velocity),
		Appearance: dynamo.Appearance{Name: b.Name, Color: b.Color},
	}
}

// DefaultConfig is the solar preset.
func DefaultConfig() *Config {
	return GetPreset("solar")
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		DynamicsResolution:   DefaultDynamicsResolution,
		KinematicsResolution: DefaultKinematicsResolution,
		CacheHorizon:         DefaultCacheHorizon,
		TrackLength:          DefaultTrackLength,
		TimeMagnification:    DefaultTimeMagnification,
		FrameRate:            DefaultFrameRate,
		StepBudgetMs:         DefaultStepBudgetMs,
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) EngineConfig() dynamo.EngineConfig {
	return dynamo.EngineConfig{
		DynamicsResolution:   c.DynamicsResolution,
		KinematicsResolution: c.KinematicsResolution,
		CacheHorizon:         c.CacheHorizon,
	}
}

func (c *Config) Settings() sim.Settings {
	return sim.Settings{
		TrackLength:       c.TrackLength,
		TimeMagnification: c.TimeMagnification,
		FrameRate:         c.FrameRate,
		StepBudget:        time.Duration(c.StepBudgetMs * float64(time.Millisecond)),
	}
}

// Roster converts the body list in file order.
func (c *Config) Roster() []dynamo.Body {
	out := make([]dynamo.Body, len(c.Bodies))
	for i, b := range c.Bodies {
		out[i] = b.Body()
	}
	return out
}

func (c *Config) Validate() error {
	if err := c.EngineConfig().Validate(); err != nil {
		return err
	}
	if err := c.Settings().Validate(); err != nil {
		return err
	}
	for i, b := range c.Bodies {
		if err := b.Body().Validate(); err != nil {
			return fmt.Errorf("body %d (%s): %w", i, b.Name, err)
		}
	}
	return nil
}

// NewCoordinator builds a coordinator from the configuration.
func (c *Config) NewCoordinator() (*sim.Coordinator, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return sim.NewCoordinator(c.EngineConfig(), c.Settings(), c.Roster())
}

func (c *Config) Clone() *Config {
	out := *c
	out.Bodies = append([]BodyConfig(nil), c.Bodies...)
	return &out
}
