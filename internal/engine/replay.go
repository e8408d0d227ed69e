package engine

import (
	"fmt"
	"time"

	"github.com/dresswithpockets/sreplay/core/delta"
	"github.com/dresswithpockets/sreplay/core/event"
	"github.com/dresswithpockets/sreplay/core/input"
	"github.com/dresswithpockets/sreplay/core/recording"
	"github.com/dresswithpockets/sreplay/internal/observability"
)

// replaySession reconstructs recorded input state in tick order. The physics
// domain is exact: every delta at or before the current replay tick is
// folded, in index order, into the live physics state. The idle domain is
// delivered on average once per recorded entry, an approximation inherited
// from the recording model since idle frame counts are not reproducible.
type replaySession struct {
	rec          *recording.Recording
	applyPayload func(any)

	clock *tickClock

	physState *input.InputState
	idleState *input.InputState

	physIdx int64
	idleIdx int64
	events  *event.Cursor
	snapIdx int

	// activeSnap is the index of the last restored snapshot, -1 before any.
	// Seek skips the restore when the target resolves to the same snapshot
	// and lies ahead of the current position.
	activeSnap int

	// edgeTick is the tick whose transient edge flags are live in physState.
	// Edge flags survive exactly one tick; folding into a later tick clears
	// them first.
	edgeTick int64

	// lastCrossed is how many whole ticks the most recent fixed tick
	// advanced; it sizes the idle clamp window until the next fixed tick.
	lastCrossed int64

	// seekTarget, when >= 0, is a play-until in flight: the accumulator rate
	// is boosted until the tick reaches the target, then the configured rate
	// is restored.
	seekTarget int64

	// started flips on the session's first fixed tick, which folds tick 0
	// without advancing the clock.
	started bool

	missingReported map[string]struct{}
}

func newReplaySession(rec *recording.Recording, applyPayload func(any), ticksPerSecond int) *replaySession {
	return &replaySession{
		rec:             rec,
		applyPayload:    applyPayload,
		clock:           newTickClock(ticksPerSecond),
		physState:       input.NewInputState(),
		idleState:       input.NewInputState(),
		events:          event.NewCursor(rec.IdleEvents),
		activeSnap:      -1,
		edgeTick:        -1,
		seekTarget:      -1,
		missingReported: make(map[string]struct{}),
	}
}

func (s *replaySession) applyRate(r Rate) {
	if s.seekTarget >= 0 {
		// A play-until in flight keeps its boosted rate; the new rate takes
		// over once the target is reached.
		return
	}
	s.clock.rate = int64(r)
}

// physicsTick advances the replay clock and folds every snapshot and delta
// the step crossed.
func (s *replaySession) physicsTick(e *Engine) {
	s.assertReplayable("replay")

	// Idle edge flags live one clamp window; the window closes at the top of
	// the next fixed tick.
	s.idleState.ClearEdgeFlags()

	var newTick, crossed int64
	if s.started {
		newTick, crossed = s.clock.advance()
	} else {
		s.started = true
		newTick, crossed = s.clock.start()
	}
	s.lastCrossed = crossed
	s.foldTo(newTick)

	if s.seekTarget >= 0 && newTick >= s.seekTarget {
		target := s.seekTarget
		s.seekTarget = -1
		s.clock.rate = int64(e.rate)
		e.listeners.notifySeekFinished(target)
	}

	if newTick > s.rec.MaxTick {
		// Ran off the end of the recording.
		observability.Log().Info("replay finished",
			observability.Field{Key: "recording_id", Value: s.rec.ID},
			observability.Field{Key: "max_tick", Value: s.rec.MaxTick},
		)
		e.rep = nil
		e.setMode(ModeOff)
	}
}

// foldTo brings the live physics state up to tick. Snapshots crossed are
// applied wholesale (state replace plus re-apply of the snapshot's own bound
// delta, which may not be reflected in its state copy); a large rate step
// may cross several and each is folded in turn so the stream cursors stay
// consistent. The remaining physics deltas at or before tick then apply in
// index order, with edge flags cleared at every tick-group boundary so a
// just-pressed flag never outlives its recorded tick.
func (s *replaySession) foldTo(tick int64) {
	for s.snapIdx < len(s.rec.Snapshots) && s.rec.Snapshots[s.snapIdx].PhysicsTick <= tick {
		s.restoreSnapshot(s.snapIdx)
		s.snapIdx++
	}

	for s.physIdx < int64(len(s.rec.PhysicsDeltas)) && s.rec.PhysicsDeltas[s.physIdx].Tick <= tick {
		d := s.rec.PhysicsDeltas[s.physIdx]
		if d.Tick != s.edgeTick {
			s.physState.ClearEdgeFlags()
			s.edgeTick = d.Tick
		}
		delta.Apply(d, s.physState)
		s.physIdx++
	}
	if s.edgeTick != tick {
		s.physState.ClearEdgeFlags()
		s.edgeTick = tick
	}
}

// restoreSnapshot replaces the live states with the snapshot's copies,
// re-applies its bound deltas, repositions all stream cursors past its
// indices, and hands the snapshot payload to the host.
func (s *replaySession) restoreSnapshot(idx int) {
	snap := s.rec.Snapshots[idx]

	s.physState = snap.PhysicsState.Clone()
	s.idleState = snap.IdleState.Clone()
	if snap.PhysicsDeltaIdx >= 0 && snap.PhysicsDeltaIdx < int64(len(s.rec.PhysicsDeltas)) {
		d := s.rec.PhysicsDeltas[snap.PhysicsDeltaIdx]
		delta.Apply(d, s.physState)
		// Edge flags in a bound delta from an earlier tick were already dead
		// at snapshot time; re-applying must not resurrect them.
		if d.Tick < snap.PhysicsTick {
			s.physState.ClearEdgeFlags()
		}
	}
	if snap.IdleDeltaIdx >= 0 && snap.IdleDeltaIdx < int64(len(s.rec.IdleDeltas)) {
		delta.Apply(s.rec.IdleDeltas[snap.IdleDeltaIdx], s.idleState)
		// The bound idle entry's clamp window closed at the snapshot's tick.
		s.idleState.ClearEdgeFlags()
	}
	s.physIdx = snap.PhysicsDeltaIdx + 1
	s.idleIdx = snap.IdleDeltaIdx + 1
	s.events.Seek(int(snap.IdleEventIdx) + 1)
	s.activeSnap = idx
	s.edgeTick = snap.PhysicsTick

	if s.applyPayload != nil && snap.Payload != nil {
		s.applyPayload(snap.Payload)
	}
}

// idleFrame advances idle time by the frame's elapsed delta, clamped to the
// window the last fixed tick opened, then folds due idle deltas and
// dispatches due events.
func (s *replaySession) idleFrame(e *Engine, dt float64) {
	now := s.clock.advanceIdle(dt, s.lastCrossed)

	for s.idleIdx < int64(len(s.rec.IdleDeltas)) && s.rec.IdleDeltas[s.idleIdx].Time <= now {
		delta.Apply(s.rec.IdleDeltas[s.idleIdx], s.idleState)
		s.idleIdx++
	}
	due := s.events.Due(now)
	if sink := e.opts.sink; sink != nil {
		for _, ev := range due {
			sink.Dispatch(ev)
		}
	}
}

// seek repositions the replay at target. A jump restores the nearest
// preceding snapshot when needed and synchronously folds the remaining
// deltas; playUntil instead boosts the accumulator rate so the engine
// visibly advances to the target over the coming fixed ticks.
func (s *replaySession) seek(e *Engine, target int64, playUntil bool) {
	s.assertReplayable("seek")
	started := time.Now()
	if target > s.rec.MaxTick {
		target = s.rec.MaxTick
	}
	current := s.clock.tick()

	if playUntil && target > current {
		s.seekTarget = target
		s.clock.rate = (target - current) * fullSpeedUnit
		return
	}

	snapIdx := s.rec.FindSnapshot(target)
	if snapIdx != s.activeSnap || target < current {
		if snapIdx >= 0 {
			s.restoreSnapshot(snapIdx)
			s.snapIdx = snapIdx + 1
			snap := s.rec.Snapshots[snapIdx]
			// The bound event entry is behind the repositioned cursor; the
			// host still gets it so its observers land in the checkpoint's
			// event context.
			if sink := e.opts.sink; sink != nil {
				if bound, ok := s.events.At(int(snap.IdleEventIdx)); ok {
					for _, ev := range bound.Events {
						sink.Dispatch(ev)
					}
				}
			}
			s.clock.seekTo(target, snap.IdleTime+float64(target-snap.PhysicsTick)*s.clock.secondsPerTick)
		} else {
			// Nothing recorded before target: full restart from scratch.
			s.physState = input.NewInputState()
			s.idleState = input.NewInputState()
			s.physIdx = 0
			s.idleIdx = 0
			s.snapIdx = 0
			s.events.Seek(0)
			s.activeSnap = -1
			s.edgeTick = -1
			s.clock.seekTo(target, float64(target)*s.clock.secondsPerTick)
		}
	} else {
		// Forward jump inside the active snapshot's window: keep the live
		// state and fold the gap.
		s.clock.seekTo(target, s.clock.idleTime+float64(target-current)*s.clock.secondsPerTick)
	}
	s.lastCrossed = 0
	s.foldTo(target)
	// The tick that drained this seek presents the target instead of
	// advancing past it.
	s.started = false
	if e.opts.metrics != nil {
		e.opts.metrics.IncrementSeekFolds()
	}
	observability.Telemetry().ObserveHistogram("sreplay.seek.duration",
		float64(time.Since(started))/float64(time.Millisecond), nil)
	e.listeners.notifySeekFinished(target)
}

// assertReplayable enforces the fatal invariant that an active replay always
// has at least one physics delta. Play rejects empty recordings up front, so
// tripping this means the recording mutated or corrupted mid-replay.
func (s *replaySession) assertReplayable(op string) {
	if len(s.rec.PhysicsDeltas) == 0 {
		panic(fmt.Sprintf("%s reached zero physics deltas in recording %s; recording is corrupt", op, s.rec.ID))
	}
}
