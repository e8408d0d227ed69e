package recording

import (
	"testing"

	"github.com/dresswithpockets/sreplay/core/delta"
	"github.com/dresswithpockets/sreplay/core/event"
	"github.com/dresswithpockets/sreplay/core/input"
	"github.com/dresswithpockets/sreplay/errs"
)

func pressDelta(tick int64, action string, pressed bool) delta.Delta {
	return delta.Delta{
		Time: float64(tick) / 60,
		Tick: tick,
		Changes: map[delta.FieldKey]any{
			delta.FieldActionPressed: []delta.ActionBool{{Action: action, Value: pressed}},
		},
	}
}

func TestAppendRejectsEmptyDelta(t *testing.T) {
	r := New(0.5)
	err := r.AppendPhysicsDelta(delta.Delta{Tick: 1, Changes: nil})
	if err == nil {
		t.Fatal("expected empty delta to be rejected")
	}
	if len(r.PhysicsDeltas) != 0 {
		t.Fatal("empty delta must not be stored")
	}
}

func TestAppendTracksMaxTick(t *testing.T) {
	r := New(0.5)
	if err := r.AppendPhysicsDelta(pressDelta(4, "jump", true)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if r.MaxTick != 4 {
		t.Fatalf("expected max tick 4, got %d", r.MaxTick)
	}
	r.ObserveTick(9)
	if r.MaxTick != 9 {
		t.Fatalf("expected observed tick to raise max tick, got %d", r.MaxTick)
	}
}

func TestFrozenRejectsAppends(t *testing.T) {
	r := New(0.5)
	r.Freeze()
	if err := r.AppendPhysicsDelta(pressDelta(0, "jump", true)); err == nil {
		t.Fatal("expected frozen recording to reject appends")
	}
	if err := r.AppendEvent(0, event.Event{Kind: event.KindAction, Action: &event.Action{Action: "jump"}}); err == nil {
		t.Fatal("expected frozen recording to reject events")
	}
}

func TestAppendEventValidatesKind(t *testing.T) {
	r := New(0.5)
	err := r.AppendEvent(0, event.Event{Kind: event.Kind(42)})
	if errs.CodeOf(err) != errs.CodeIncompatibleEvent {
		t.Fatalf("expected incompatible_event, got %v", err)
	}
	if len(r.IdleEvents) != 0 {
		t.Fatal("rejected event must not be stored")
	}
}

func TestAppendEventDeepCopies(t *testing.T) {
	r := New(0.5)
	payload := &event.Action{Action: "jump", Pressed: true}
	if err := r.AppendEvent(1, event.Event{Kind: event.KindAction, Action: payload}); err != nil {
		t.Fatalf("append: %v", err)
	}
	payload.Pressed = false
	if !r.IdleEvents[0].Events[0].Action.Pressed {
		t.Fatal("stored event must be decoupled from the live payload")
	}
}

func TestFindSnapshot(t *testing.T) {
	r := New(0.5)
	for _, tick := range []int64{0, 30, 60} {
		r.Snapshots = append(r.Snapshots, Snapshot{
			PhysicsTick:     tick,
			PhysicsDeltaIdx: -1,
			IdleDeltaIdx:    -1,
			IdleEventIdx:    -1,
			IdleState:       input.NewInputState(),
			PhysicsState:    input.NewInputState(),
		})
	}

	cases := []struct {
		tick int64
		want int
	}{
		{0, 0}, {15, 0}, {30, 1}, {59, 1}, {60, 2}, {1000, 2},
	}
	for _, tc := range cases {
		if got := r.FindSnapshot(tc.tick); got != tc.want {
			t.Errorf("FindSnapshot(%d) = %d, want %d", tc.tick, got, tc.want)
		}
	}

	empty := New(0.5)
	if got := empty.FindSnapshot(10); got != -1 {
		t.Errorf("expected -1 for empty snapshot stream, got %d", got)
	}
}
