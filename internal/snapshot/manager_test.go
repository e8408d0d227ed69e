package snapshot

import (
	"testing"

	"github.com/dresswithpockets/sreplay/core/delta"
	"github.com/dresswithpockets/sreplay/core/input"
	"github.com/dresswithpockets/sreplay/core/recording"
	"github.com/dresswithpockets/sreplay/internal/observability"
)

func tickDelta(tick int64, now float64) delta.Delta {
	return delta.Delta{
		Time: now,
		Tick: tick,
		Changes: map[delta.FieldKey]any{
			delta.FieldActionStrength: []delta.ActionFloat{{Action: "walk", Value: float64(tick)}},
		},
	}
}

// runSession drives ticks at 10Hz through the manager, appending one physics
// delta per tick the way the recorder does, and subtracting reported rebase
// offsets from its running clocks the way a live session must.
func runSession(t *testing.T, m *Manager, rec *recording.Recording, ticks int64) []Rebase {
	t.Helper()
	state := input.NewInputState()
	rebases := make([]Rebase, 0)
	var tickOff int64
	var timeOff float64
	for tick := int64(0); tick < ticks; tick++ {
		sessTick := tick - tickOff
		now := float64(tick)*0.1 - timeOff
		rb, err := m.Observe(rec, sessTick, now, state, state)
		if err != nil {
			t.Fatalf("observe tick %d: %v", tick, err)
		}
		if rb.Took {
			rebases = append(rebases, rb)
		}
		if rb.Trimmed {
			tickOff += rb.TickOffset
			timeOff += rb.TimeOffset
			sessTick -= rb.TickOffset
			now -= rb.TimeOffset
		}
		if err := rec.AppendPhysicsDelta(tickDelta(sessTick, now)); err != nil {
			t.Fatalf("append tick %d: %v", tick, err)
		}
	}
	return rebases
}

func TestManagerSnapshotCadence(t *testing.T) {
	rec := recording.New(1.0)
	m := NewManager(1.0, 0, nil, nil)

	runSession(t, m, rec, 35) // 3.5 seconds

	if len(rec.Snapshots) != 4 {
		t.Fatalf("expected snapshots at 0s, 1s, 2s, 3s, got %d", len(rec.Snapshots))
	}
	prev := int64(-2)
	for i, s := range rec.Snapshots {
		if s.PhysicsDeltaIdx <= prev {
			t.Fatalf("snapshot %d delta index %d not strictly increasing", i, s.PhysicsDeltaIdx)
		}
		prev = s.PhysicsDeltaIdx
	}
	if rec.Snapshots[0].PhysicsTick != 0 {
		t.Errorf("first snapshot should land on the first tick, got %d", rec.Snapshots[0].PhysicsTick)
	}
	if rec.Snapshots[0].PhysicsDeltaIdx != -1 {
		t.Errorf("head snapshot precedes any delta, want index -1 got %d", rec.Snapshots[0].PhysicsDeltaIdx)
	}
}

func TestManagerCapturesPayload(t *testing.T) {
	rec := recording.New(1.0)
	calls := 0
	m := NewManager(1.0, 0, func() any {
		calls++
		return map[string]any{"frame": calls}
	}, nil)

	runSession(t, m, rec, 25)

	if calls != 3 {
		t.Fatalf("payload func should run once per snapshot, got %d calls", calls)
	}
	if rec.Snapshots[1].Payload == nil {
		t.Fatal("snapshot payload missing")
	}
}

func TestManagerTrimsAndRebases(t *testing.T) {
	rec := recording.New(1.0)
	metrics := observability.NewSessionMetrics()
	m := NewManager(1.0, 2, nil, metrics)

	rebases := runSession(t, m, rec, 45) // snapshots due at 0s..4s

	if len(rec.Snapshots) > 2 {
		t.Fatalf("retention bound exceeded: %d snapshots", len(rec.Snapshots))
	}
	trimmed := 0
	for _, rb := range rebases {
		if rb.Trimmed {
			trimmed++
			if rb.TickOffset <= 0 && rb.TimeOffset <= 0 {
				t.Fatalf("trim reported without offsets: %+v", rb)
			}
		}
	}
	if trimmed == 0 {
		t.Fatal("expected at least one trim")
	}
	snap := metrics.Snapshot()
	if snap.SnapshotsTaken != 5 {
		t.Errorf("expected 5 snapshots taken, got %d", snap.SnapshotsTaken)
	}
	if snap.TrimsApplied != int64(trimmed) {
		t.Errorf("trim counter mismatch: %d vs %d", snap.TrimsApplied, trimmed)
	}

	// Streams stay re-based to the retained head.
	if rec.Snapshots[0].PhysicsTick != 0 {
		t.Errorf("head snapshot should re-base to tick 0, got %d", rec.Snapshots[0].PhysicsTick)
	}
}

func TestManagerCadenceSurvivesTrim(t *testing.T) {
	rec := recording.New(1.0)
	m := NewManager(1.0, 2, nil, nil)

	state := input.NewInputState()
	var taken []float64
	offset := 0.0
	for tick := int64(0); tick < 60; tick++ {
		now := float64(tick)*0.1 - offset
		rb, err := m.Observe(rec, tick, now, state, state)
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		if rb.Took {
			taken = append(taken, now+offset)
		}
		if rb.Trimmed {
			offset += rb.TimeOffset
		}
		if err := rec.AppendPhysicsDelta(tickDelta(tick, now)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	// Wall-clock cadence holds at one snapshot per second even though the
	// session clock re-bases after each trim.
	for i := 1; i < len(taken); i++ {
		gap := taken[i] - taken[i-1]
		if gap < 0.95 || gap > 1.05 {
			t.Fatalf("snapshot gap %g at %d, want about 1s", gap, i)
		}
	}
}

func TestManagerResetForcesSnapshot(t *testing.T) {
	rec := recording.New(1.0)
	m := NewManager(1.0, 0, nil, nil)
	state := input.NewInputState()

	if rb, err := m.Observe(rec, 0, 0, state, state); err != nil || !rb.Took {
		t.Fatalf("first tick must checkpoint: rb=%+v err=%v", rb, err)
	}
	if rb, err := m.Observe(rec, 1, 0.1, state, state); err != nil || rb.Took {
		t.Fatalf("second tick inside the period must not checkpoint: rb=%+v err=%v", rb, err)
	}
	m.Reset()
	if rb, err := m.Observe(rec, 2, 0.2, state, state); err != nil || !rb.Took {
		t.Fatalf("reset should force the next tick to checkpoint: rb=%+v err=%v", rb, err)
	}
}
