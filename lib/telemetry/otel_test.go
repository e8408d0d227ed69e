package telemetry

import (
	"context"
	"testing"

	"github.com/dresswithpockets/sreplay/config"
)

func TestDisabledProviderIsNoop(t *testing.T) {
	p, err := NewProvider(context.Background(), config.TelemetrySettings{Enabled: false}, config.EnvDev)
	if err != nil {
		t.Fatalf("disabled provider: %v", err)
	}
	if p.meterProvider != nil {
		t.Fatal("disabled provider must not build a meter provider")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	// The fallback meter still hands out usable instruments.
	meter := p.Meter("sreplay-test")
	if _, err := meter.Float64Counter("sreplay.test.counter"); err != nil {
		t.Fatalf("fallback meter: %v", err)
	}
}

func TestMetricsAdapterInstrumentsOnce(t *testing.T) {
	p, err := NewProvider(context.Background(), config.TelemetrySettings{Enabled: false}, config.EnvDev)
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	m := NewMetrics(p.Meter("sreplay-test"))
	labels := map[string]string{"stream": "physics"}

	m.IncCounter("sreplay.deltas.appended", 1, labels)
	m.IncCounter("sreplay.deltas.appended", 2, labels)
	m.ObserveHistogram("sreplay.tick.duration", 0.2, nil)
	m.SetGauge("sreplay.replay.tick", 42, nil)

	if len(m.counters) != 1 {
		t.Fatalf("counter should be cached after first use, have %d", len(m.counters))
	}
	if len(m.histograms) != 1 || len(m.gauges) != 1 {
		t.Fatalf("instruments not cached: %d histograms, %d gauges", len(m.histograms), len(m.gauges))
	}
}

func TestStripScheme(t *testing.T) {
	cases := map[string]string{
		"http://collector:4318":  "collector:4318",
		"https://collector:4318": "collector:4318",
		"collector:4318":         "collector:4318",
	}
	for in, want := range cases {
		if got := stripScheme(in); got != want {
			t.Errorf("stripScheme(%q) = %q, want %q", in, got, want)
		}
	}
}
