package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SREPLAY_ENV", "Dev")
	t.Setenv("SREPLAY_SNAPSHOT_PERIOD", "0.25")
	t.Setenv("SREPLAY_RETENTION_BOUND", "8")
	t.Setenv("SREPLAY_PHYSICS_TPS", "120")
	t.Setenv("SREPLAY_TELEMETRY_ENDPOINT", "collector:4318")

	cfg := FromEnv()
	if cfg.Environment != EnvDev {
		t.Errorf("environment: got %q", cfg.Environment)
	}
	if cfg.Session.SnapshotPeriod != 0.25 {
		t.Errorf("snapshot period: got %g", cfg.Session.SnapshotPeriod)
	}
	if cfg.Session.RetentionBound != 8 {
		t.Errorf("retention bound: got %d", cfg.Session.RetentionBound)
	}
	if cfg.Session.PhysicsTicksPerSecond != 120 {
		t.Errorf("physics tps: got %d", cfg.Session.PhysicsTicksPerSecond)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "collector:4318" {
		t.Errorf("telemetry: got %+v", cfg.Telemetry)
	}
}

func TestFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("SREPLAY_SNAPSHOT_PERIOD", "not-a-number")
	t.Setenv("SREPLAY_PHYSICS_TPS", "-3")

	cfg := FromEnv()
	def := Default()
	if cfg.Session.SnapshotPeriod != def.Session.SnapshotPeriod {
		t.Errorf("invalid period should keep default, got %g", cfg.Session.SnapshotPeriod)
	}
	if cfg.Session.PhysicsTicksPerSecond != def.Session.PhysicsTicksPerSecond {
		t.Errorf("invalid tps should keep default, got %d", cfg.Session.PhysicsTicksPerSecond)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sreplay.yaml")
	body := []byte(`
environment: dev
session:
  snapshotPeriod: 0.5
  retentionBound: 4
telemetry:
  enabled: true
  endpoint: otel:4318
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Session.SnapshotPeriod != 0.5 || cfg.Session.RetentionBound != 4 {
		t.Fatalf("session settings: %+v", cfg.Session)
	}
	// Keys the file omits keep their defaults.
	if cfg.Session.PhysicsTicksPerSecond != 60 {
		t.Fatalf("omitted tps should default to 60, got %d", cfg.Session.PhysicsTicksPerSecond)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "otel:4318" {
		t.Fatalf("telemetry settings: %+v", cfg.Telemetry)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sreplay.yaml")
	if err := os.WriteFile(path, []byte("session:\n  snapshotPeriod: -1\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("negative snapshot period must fail validation")
	}
}

func TestApplyOptionsCopies(t *testing.T) {
	base := Default()
	cfg := Apply(base,
		WithEnvironment(EnvDev),
		WithSnapshotPeriod(2),
		WithRetentionBound(3),
		WithTelemetry("otel:4318", "sreplay-test"),
	)
	if cfg.Environment != EnvDev || cfg.Session.SnapshotPeriod != 2 || cfg.Session.RetentionBound != 3 {
		t.Fatalf("options not applied: %+v", cfg)
	}
	if cfg.Telemetry.ServiceName != "sreplay-test" {
		t.Fatalf("telemetry option not applied: %+v", cfg.Telemetry)
	}
	if base.Environment != EnvProd || base.Session.SnapshotPeriod != 1.0 {
		t.Fatal("apply must not mutate the base settings")
	}
}
