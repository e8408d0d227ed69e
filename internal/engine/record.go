package engine

import (
	"github.com/dresswithpockets/sreplay/core/delta"
	"github.com/dresswithpockets/sreplay/core/event"
	"github.com/dresswithpockets/sreplay/core/input"
	"github.com/dresswithpockets/sreplay/core/recording"
	"github.com/dresswithpockets/sreplay/internal/observability"
	"github.com/dresswithpockets/sreplay/internal/snapshot"
)

// recordingSession owns an in-progress recording: one delta encoder per tick
// domain, the checkpoint scheduler, and the session clocks. The encoder
// caches double as the polling surface so the recorder and the poll API can
// never diverge.
type recordingSession struct {
	rec     *recording.Recording
	idleEnc *delta.Encoder
	physEnc *delta.Encoder
	snaps   *snapshot.Manager
	metrics *observability.SessionMetrics

	tick     int64
	idleTime float64
}

func newRecordingSession(opts RecordOptions, metrics *observability.SessionMetrics) *recordingSession {
	period := opts.SnapshotPeriod
	if period <= 0 {
		period = recording.DefaultSnapshotPeriod
	}
	return &recordingSession{
		rec:     recording.New(period),
		idleEnc: delta.NewEncoder(),
		physEnc: delta.NewEncoder(),
		snaps:   snapshot.NewManager(period, opts.RetentionBound, opts.Payload, metrics),
		metrics: metrics,
	}
}

// physicsTick samples the fixed-tick domain: checkpoint first, then diff the
// live poll source against the cached state and append any non-empty delta.
func (s *recordingSession) physicsTick(e *Engine) {
	rb, err := s.snaps.Observe(s.rec, s.tick, s.idleTime, s.idleEnc.State(), s.physEnc.State())
	if err != nil {
		observability.Log().Error("snapshot checkpoint failed",
			observability.Field{Key: "tick", Value: s.tick},
			observability.Field{Key: "error", Value: err.Error()},
		)
	}
	if rb.Trimmed {
		s.tick -= rb.TickOffset
		s.idleTime -= rb.TimeOffset
	}

	s.sample(e, s.physEnc)
	if d, ok := s.physEnc.Flush(s.idleTime, s.tick); ok {
		if err := s.rec.AppendPhysicsDelta(d); err != nil {
			observability.Log().Error("append physics delta failed",
				observability.Field{Key: "tick", Value: s.tick},
				observability.Field{Key: "error", Value: err.Error()},
			)
		} else if s.metrics != nil {
			s.metrics.IncrementDeltas("physics")
		}
	} else {
		s.rec.ObserveTick(s.tick)
	}
	s.tick++
}

// idleFrame samples the free-running domain with real elapsed frame time.
func (s *recordingSession) idleFrame(e *Engine, dt float64) {
	s.idleTime += dt
	s.sample(e, s.idleEnc)
	if d, ok := s.idleEnc.Flush(s.idleTime, s.tick); ok {
		if err := s.rec.AppendIdleDelta(d); err != nil {
			observability.Log().Error("append idle delta failed",
				observability.Field{Key: "time", Value: s.idleTime},
				observability.Field{Key: "error", Value: err.Error()},
			)
		} else if s.metrics != nil {
			s.metrics.IncrementDeltas("idle")
		}
	}
}

func (s *recordingSession) sample(e *Engine, enc *delta.Encoder) {
	poll := e.opts.poll
	if poll == nil {
		return
	}
	for _, name := range poll.Actions() {
		enc.SampleAction(name, poll.Sample(name, false), false)
		enc.SampleAction(name, poll.Sample(name, true), true)
	}
	enc.Sample(pointerState(poll.Pointer()))
}

// pointerState lifts one frame's polled pointer values into an InputState so
// the encoder's scalar diff can run over them.
func pointerState(ptr PointerSample) *input.InputState {
	st := input.NewInputState()
	st.PointerMode = ptr.Mode
	st.PointerVelocity = ptr.Velocity
	st.PointerScreenVelocity = ptr.ScreenVelocity
	st.PointerButtonMask = ptr.ButtonMask
	return st
}

// recordEvent appends a live event at the current idle time. Whitelist
// rejections are logged and dropped; the recording continues.
func (s *recordingSession) recordEvent(ev event.Event) error {
	entries := len(s.rec.IdleEvents)
	err := s.rec.AppendEvent(s.idleTime, ev)
	if err != nil {
		observability.Log().Info("event rejected",
			observability.Field{Key: "kind", Value: ev.Kind.String()},
			observability.Field{Key: "error", Value: err.Error()},
		)
		return err
	}
	// An unchanged entry count means the event folded into the last
	// timestamp group.
	if len(s.rec.IdleEvents) == entries && s.metrics != nil {
		s.metrics.IncrementEventsCoalesced()
	}
	return nil
}

// capture records a host value into the active tick domain's pending delta.
func (s *recordingSession) capture(e *Engine, key string, value any) any {
	enc := s.idleEnc
	if e.inPhysicsFrame {
		enc = s.physEnc
	}
	enc.SampleCapture(key, value)
	return value
}

// finish freezes the recording, flushing any still-pending changes first so
// the last sampled tick is not lost.
func (s *recordingSession) finish() {
	if d, ok := s.physEnc.Flush(s.idleTime, s.tick); ok {
		if err := s.rec.AppendPhysicsDelta(d); err == nil && s.metrics != nil {
			s.metrics.IncrementDeltas("physics")
		}
	}
	if d, ok := s.idleEnc.Flush(s.idleTime, s.tick); ok {
		if err := s.rec.AppendIdleDelta(d); err == nil && s.metrics != nil {
			s.metrics.IncrementDeltas("idle")
		}
	}
	s.rec.Freeze()
}
