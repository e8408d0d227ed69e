package engine

import (
	"sort"
	"testing"

	"github.com/dresswithpockets/sreplay/core/event"
	"github.com/dresswithpockets/sreplay/core/input"
	"github.com/dresswithpockets/sreplay/core/recording"
	"github.com/dresswithpockets/sreplay/errs"
	"github.com/dresswithpockets/sreplay/internal/observability"
)

const dtFixed = 1.0 / 60

// fakePoll is a scripted live input source. Edge flags live for exactly one
// sampled tick, mirroring how a real host reports them.
type fakePoll struct {
	actions map[string]input.ActionState
	ptr     PointerSample
}

func newFakePoll(names ...string) *fakePoll {
	p := &fakePoll{actions: make(map[string]input.ActionState)}
	for _, name := range names {
		p.actions[name] = input.ActionState{}
	}
	return p
}

func (p *fakePoll) Actions() []string {
	names := make([]string, 0, len(p.actions))
	for name := range p.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *fakePoll) Sample(action string, exact bool) input.ActionState {
	return p.actions[action]
}

func (p *fakePoll) Pointer() PointerSample { return p.ptr }

func (p *fakePoll) press(name string, strength float64) {
	p.actions[name] = input.ActionState{
		RawStrength: strength,
		Strength:    strength,
		JustPressed: true,
		Pressed:     true,
	}
}

func (p *fakePoll) hold(name string, strength float64) {
	p.actions[name] = input.ActionState{
		RawStrength: strength,
		Strength:    strength,
		Pressed:     true,
	}
}

func (p *fakePoll) release(name string) {
	p.actions[name] = input.ActionState{JustReleased: true}
}

func (p *fakePoll) settle(name string) {
	p.actions[name] = input.ActionState{}
}

type collectSink struct {
	events []event.Event
}

func (s *collectSink) Dispatch(ev event.Event) { s.events = append(s.events, ev) }

func step(e *Engine, n int) {
	for i := 0; i < n; i++ {
		e.PhysicsFrame()
		e.Frame(dtFixed)
	}
}

func TestTransitionsDeferToNextFixedTick(t *testing.T) {
	e := New(WithPollSource(newFakePoll("jump")))

	if err := e.Record(RecordOptions{}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if e.Mode() != ModeOff {
		t.Fatal("mode must not change before the next fixed tick")
	}
	// A second request before the tick sees the queued transition.
	if err := e.Record(RecordOptions{}); !errs.Is(err, errs.CodeInvalidTransition) {
		t.Fatalf("expected invalid_transition, got %v", err)
	}

	e.PhysicsFrame()
	if e.Mode() != ModeRecording {
		t.Fatalf("expected recording after fixed tick, got %v", e.Mode())
	}

	if err := e.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if e.Mode() != ModeRecording {
		t.Fatal("stop must defer to the next fixed tick")
	}
	e.PhysicsFrame()
	if e.Mode() != ModeOff {
		t.Fatalf("expected off after fixed tick, got %v", e.Mode())
	}
}

func TestModeChangeNotifications(t *testing.T) {
	e := New(WithPollSource(newFakePoll("jump")))
	var changes [][2]Mode
	e.OnModeChanged(func(old, new Mode) { changes = append(changes, [2]Mode{old, new}) })

	if err := e.Record(RecordOptions{}); err != nil {
		t.Fatalf("record: %v", err)
	}
	step(e, 2)
	if err := e.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	step(e, 1)

	want := [][2]Mode{{ModeOff, ModeRecording}, {ModeRecording, ModeOff}}
	if len(changes) != len(want) {
		t.Fatalf("expected %d mode changes, got %d", len(want), len(changes))
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Fatalf("change %d: got %v want %v", i, changes[i], want[i])
		}
	}
}

func TestPlayRejectsEmptyRecording(t *testing.T) {
	e := New()
	if err := e.Play(nil, nil); !errs.Is(err, errs.CodeInvalidRecording) {
		t.Fatalf("nil recording: expected invalid_recording, got %v", err)
	}
	if err := e.Play(recording.New(1.0), nil); !errs.Is(err, errs.CodeInvalidRecording) {
		t.Fatalf("empty recording: expected invalid_recording, got %v", err)
	}
}

func TestSeekOutsideReplayRejected(t *testing.T) {
	e := New()
	if err := e.Seek(3, false); !errs.Is(err, errs.CodeInvalidTransition) {
		t.Fatalf("expected invalid_transition, got %v", err)
	}
}

// recordJumpSession records the press-tick-3 release-tick-7 scenario over
// ten ticks and returns the frozen recording.
func recordJumpSession(t *testing.T, poll *fakePoll, e *Engine) *recording.Recording {
	t.Helper()
	if err := e.Record(RecordOptions{SnapshotPeriod: 10}); err != nil {
		t.Fatalf("record: %v", err)
	}
	for tick := 0; tick < 10; tick++ {
		switch tick {
		case 3:
			poll.press("jump", 1)
		case 4:
			poll.hold("jump", 1)
		case 7:
			poll.release("jump")
		case 8:
			poll.settle("jump")
		}
		step(e, 1)
	}
	if err := e.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	rec := e.Recording()
	step(e, 1)
	if !rec.Frozen() {
		t.Fatal("stopped recording must be frozen")
	}
	return rec
}

func TestJumpScenarioRecordsTwoDeltas(t *testing.T) {
	poll := newFakePoll("jump")
	e := New(WithPollSource(poll))
	rec := recordJumpSession(t, poll, e)

	var ticks []int64
	for _, d := range rec.PhysicsDeltas {
		ticks = append(ticks, d.Tick)
	}
	if len(rec.PhysicsDeltas) != 2 {
		t.Fatalf("expected exactly two physics deltas, got %d at ticks %v", len(rec.PhysicsDeltas), ticks)
	}
	if ticks[0] != 3 || ticks[1] != 7 {
		t.Fatalf("expected deltas at ticks 3 and 7, got %v", ticks)
	}
	if rec.MaxTick != 9 {
		t.Fatalf("expected max tick 9, got %d", rec.MaxTick)
	}
}

func TestJumpScenarioReplayAtTickFive(t *testing.T) {
	poll := newFakePoll("jump")
	e := New(WithPollSource(poll))
	rec := recordJumpSession(t, poll, e)

	if err := e.Play(rec, nil); err != nil {
		t.Fatalf("play: %v", err)
	}
	step(e, 6) // ticks 0..5
	if e.rep.clock.tick() != 5 {
		t.Fatalf("expected replay at tick 5, got %d", e.rep.clock.tick())
	}
	st := e.rep.physState.Actions["jump"]
	if !st.Pressed {
		t.Fatal("jump must read pressed at tick 5")
	}
	if st.JustPressed || st.JustReleased {
		t.Fatalf("edge flags must not outlive tick 3: %+v", st)
	}

	step(e, 2) // ticks 6, 7
	st = e.rep.physState.Actions["jump"]
	if st.Pressed || !st.JustReleased {
		t.Fatalf("tick 7 must read released with just_released set: %+v", st)
	}
}

func TestReplayAutoStopsPastMaxTick(t *testing.T) {
	poll := newFakePoll("jump")
	e := New(WithPollSource(poll))
	rec := recordJumpSession(t, poll, e)

	if err := e.Play(rec, nil); err != nil {
		t.Fatalf("play: %v", err)
	}
	step(e, 11) // ticks 0..9, then one past the end
	if e.Mode() != ModeOff {
		t.Fatalf("replay should auto-stop past tick %d, mode %v", rec.MaxTick, e.Mode())
	}
	// The engine is immediately available for a new session.
	if err := e.Record(RecordOptions{}); err != nil {
		t.Fatalf("record after auto-stop: %v", err)
	}
}

func TestReplayDeterminism(t *testing.T) {
	poll := newFakePoll("walk")
	e := New(WithPollSource(poll))
	if err := e.Record(RecordOptions{SnapshotPeriod: 0.25}); err != nil {
		t.Fatalf("record: %v", err)
	}
	for tick := 0; tick < 60; tick++ {
		poll.hold("walk", float64(tick%7)/7)
		step(e, 1)
	}
	if err := e.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	rec := e.Recording()
	step(e, 1)

	run := func() []*input.InputState {
		p := New(WithPollSource(poll))
		if err := p.Play(rec, nil); err != nil {
			t.Fatalf("play: %v", err)
		}
		var states []*input.InputState
		for i := 0; i < 60; i++ {
			p.PhysicsFrame()
			states = append(states, p.rep.physState.Clone())
			p.Frame(dtFixed)
		}
		return states
	}

	first := run()
	second := run()
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Fatalf("replay diverged at step %d", i)
		}
	}
}

func TestCaptureRecordsOnceWhenUnchanged(t *testing.T) {
	poll := newFakePoll()
	e := New(WithPollSource(poll))
	if err := e.Record(RecordOptions{SnapshotPeriod: 10}); err != nil {
		t.Fatalf("record: %v", err)
	}
	step(e, 1)
	if got := e.Capture("score", 10.0); got != 10.0 {
		t.Fatalf("capture must echo the written value, got %v", got)
	}
	step(e, 1)
	e.Capture("score", 10.0) // unchanged
	step(e, 1)
	e.Capture("score", 25.0)
	step(e, 1)
	if err := e.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	rec := e.Recording()
	step(e, 1)

	captureDeltas := 0
	for _, d := range rec.IdleDeltas {
		if !d.Empty() {
			captureDeltas++
		}
	}
	if captureDeltas != 2 {
		t.Fatalf("expected 2 idle deltas (initial write and change), got %d", captureDeltas)
	}
}

func TestCaptureSubstitutesOnReplay(t *testing.T) {
	poll := newFakePoll("move")
	e := New(WithPollSource(poll))
	if err := e.Record(RecordOptions{SnapshotPeriod: 10}); err != nil {
		t.Fatalf("record: %v", err)
	}
	step(e, 1)
	// A held action keeps the physics stream non-empty alongside the
	// idle-domain captures.
	poll.press("move", 1)
	e.Capture("score", 42.0)
	step(e, 1)
	poll.hold("move", 1)
	step(e, 2)
	if err := e.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	rec := e.Recording()
	step(e, 1)

	metrics := observability.NewSessionMetrics()
	p := New(WithPollSource(poll), WithMetrics(metrics))
	if err := p.Play(rec, nil); err != nil {
		t.Fatalf("play: %v", err)
	}
	step(p, 3)
	if got := p.Capture("score", 999.0); got != 42.0 {
		t.Fatalf("replay must substitute the recorded capture, got %v", got)
	}
	// A key never recorded passes the live value through and reports once.
	if got := p.Capture("combo", 7.0); got != 7.0 {
		t.Fatalf("missing capture must return the live value, got %v", got)
	}
	p.Capture("combo", 8.0)
	if n := metrics.Snapshot().MissingPollKeys["capture:combo"]; n != 1 {
		t.Fatalf("missing capture must report once, got %d", n)
	}
}

func TestMissingActionReportsOnceAndReturnsZero(t *testing.T) {
	poll := newFakePoll("jump")
	e := New(WithPollSource(poll))
	rec := recordJumpSession(t, poll, e)

	metrics := observability.NewSessionMetrics()
	p := New(WithPollSource(poll), WithMetrics(metrics))
	if err := p.Play(rec, nil); err != nil {
		t.Fatalf("play: %v", err)
	}
	step(p, 5)

	if p.IsActionPressed("dash", false) {
		t.Fatal("missing action must poll as the zero state")
	}
	if p.GetActionStrength("dash", false) != 0 {
		t.Fatal("missing action strength must be zero")
	}
	p.IsActionPressed("dash", false)
	if n := metrics.Snapshot().MissingPollKeys["action:dash"]; n != 1 {
		t.Fatalf("missing action must report once, got %d", n)
	}
}

func TestEventRecordAndReplay(t *testing.T) {
	poll := newFakePoll("fire")
	e := New(WithPollSource(poll))
	if err := e.Record(RecordOptions{SnapshotPeriod: 10}); err != nil {
		t.Fatalf("record: %v", err)
	}
	step(e, 1)
	poll.press("fire", 1)
	step(e, 1)
	poll.hold("fire", 1)
	err := e.RecordEvent(event.Event{
		Kind: event.KindKey,
		Key:  &event.Key{Keycode: 32, Pressed: true},
	})
	if err != nil {
		t.Fatalf("record event: %v", err)
	}
	// Whitelist rejection drops the event but recording continues.
	if err := e.RecordEvent(event.Event{Kind: event.KindInvalid}); !errs.Is(err, errs.CodeIncompatibleEvent) {
		t.Fatalf("expected incompatible_event, got %v", err)
	}
	step(e, 4)
	if err := e.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	rec := e.Recording()
	step(e, 1)

	if len(rec.IdleEvents) != 1 {
		t.Fatalf("expected one timed event group, got %d", len(rec.IdleEvents))
	}

	sink := &collectSink{}
	p := New(WithPollSource(poll), WithEventSink(sink))
	if err := p.Play(rec, nil); err != nil {
		t.Fatalf("play: %v", err)
	}
	step(p, 6)
	if len(sink.events) != 1 {
		t.Fatalf("expected one dispatched event, got %d", len(sink.events))
	}
	if sink.events[0].Kind != event.KindKey || sink.events[0].Key.Keycode != 32 {
		t.Fatalf("dispatched event mismatch: %+v", sink.events[0])
	}
}

func TestGetPointerModePassthroughAndFallback(t *testing.T) {
	poll := newFakePoll("move")
	poll.ptr = PointerSample{Mode: input.PointerCaptured}
	e := New(WithPollSource(poll))
	if got := e.GetPointerMode(); got != input.PointerCaptured {
		t.Fatalf("off-mode engine should pass through the live pointer mode, got %v", got)
	}

	// Without a poll source the surface reports the default free pointer.
	bare := New()
	if got := bare.GetPointerMode(); got != input.PointerVisible {
		t.Fatalf("expected visible fallback, got %v", got)
	}
}
