// Package config centralises runtime configuration helpers for the sreplay
// tools.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment identifies the runtime environment.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// SessionSettings configures recording session behaviour.
type SessionSettings struct {
	// SnapshotPeriod is the checkpoint interval in seconds of idle time.
	SnapshotPeriod float64 `yaml:"snapshotPeriod"`
	// RetentionBound caps the snapshot count; zero keeps everything.
	RetentionBound int `yaml:"retentionBound"`
	// PhysicsTicksPerSecond is the host's fixed tick rate.
	PhysicsTicksPerSecond int `yaml:"physicsTicksPerSecond"`
}

// TelemetrySettings configures the OTLP metric exporter.
type TelemetrySettings struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"serviceName"`
}

// Settings contains the configuration tree loaded from defaults and
// overrides.
type Settings struct {
	Environment Environment       `yaml:"environment"`
	Session     SessionSettings   `yaml:"session"`
	Telemetry   TelemetrySettings `yaml:"telemetry"`
}

// Default returns the default configuration.
func Default() Settings {
	return Settings{
		Environment: EnvProd,
		Session: SessionSettings{
			SnapshotPeriod:        1.0,
			RetentionBound:        0,
			PhysicsTicksPerSecond: 60,
		},
		Telemetry: TelemetrySettings{
			Enabled:     false,
			Endpoint:    "localhost:4318",
			ServiceName: "sreplay",
		},
	}
}

// FromEnv loads configuration values from SREPLAY_* environment variables,
// overriding defaults.
func FromEnv() Settings {
	cfg := Default()
	if env := strings.TrimSpace(os.Getenv("SREPLAY_ENV")); env != "" {
		cfg.Environment = Environment(strings.ToLower(env))
	}
	if v := strings.TrimSpace(os.Getenv("SREPLAY_SNAPSHOT_PERIOD")); v != "" {
		if period, err := strconv.ParseFloat(v, 64); err == nil && period > 0 {
			cfg.Session.SnapshotPeriod = period
		}
	}
	if v := strings.TrimSpace(os.Getenv("SREPLAY_RETENTION_BOUND")); v != "" {
		if bound, err := strconv.Atoi(v); err == nil && bound >= 0 {
			cfg.Session.RetentionBound = bound
		}
	}
	if v := strings.TrimSpace(os.Getenv("SREPLAY_PHYSICS_TPS")); v != "" {
		if tps, err := strconv.Atoi(v); err == nil && tps > 0 {
			cfg.Session.PhysicsTicksPerSecond = tps
		}
	}
	if v := strings.TrimSpace(os.Getenv("SREPLAY_TELEMETRY_ENDPOINT")); v != "" {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("SREPLAY_TELEMETRY_SERVICE")); v != "" {
		cfg.Telemetry.ServiceName = v
	}
	return cfg
}

// Load reads a yaml configuration file layered on top of the defaults.
func Load(path string) (Settings, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Settings{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Settings{}, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (s Settings) Validate() error {
	if s.Session.SnapshotPeriod <= 0 {
		return fmt.Errorf("session.snapshotPeriod must be positive, got %g", s.Session.SnapshotPeriod)
	}
	if s.Session.RetentionBound < 0 {
		return fmt.Errorf("session.retentionBound must not be negative, got %d", s.Session.RetentionBound)
	}
	if s.Session.PhysicsTicksPerSecond <= 0 {
		return fmt.Errorf("session.physicsTicksPerSecond must be positive, got %d", s.Session.PhysicsTicksPerSecond)
	}
	if s.Telemetry.Enabled && strings.TrimSpace(s.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry.endpoint required when telemetry is enabled")
	}
	return nil
}

// Option mutates Settings when applied via Apply.
type Option func(*Settings)

// Apply applies the provided Option set to a copy of the base Settings.
func Apply(base Settings, opts ...Option) Settings {
	cfg := base
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithEnvironment configures the top-level environment.
func WithEnvironment(env Environment) Option {
	return func(s *Settings) { s.Environment = env }
}

// WithSnapshotPeriod overrides the checkpoint interval.
func WithSnapshotPeriod(period float64) Option {
	return func(s *Settings) {
		if period > 0 {
			s.Session.SnapshotPeriod = period
		}
	}
}

// WithRetentionBound overrides the snapshot retention cap.
func WithRetentionBound(bound int) Option {
	return func(s *Settings) {
		if bound >= 0 {
			s.Session.RetentionBound = bound
		}
	}
}

// WithPhysicsTicksPerSecond overrides the fixed tick rate.
func WithPhysicsTicksPerSecond(tps int) Option {
	return func(s *Settings) {
		if tps > 0 {
			s.Session.PhysicsTicksPerSecond = tps
		}
	}
}

// WithTelemetry enables the OTLP exporter against endpoint.
func WithTelemetry(endpoint, serviceName string) Option {
	return func(s *Settings) {
		s.Telemetry.Enabled = true
		if strings.TrimSpace(endpoint) != "" {
			s.Telemetry.Endpoint = endpoint
		}
		if strings.TrimSpace(serviceName) != "" {
			s.Telemetry.ServiceName = serviceName
		}
	}
}
