// Package engine drives recording and seekable playback of input state. One
// Engine instance is wired into the host's frame and fixed-tick callbacks;
// there is no ambient global instance.
package engine

import (
	"time"

	"github.com/dresswithpockets/sreplay/core/event"
	"github.com/dresswithpockets/sreplay/core/input"
	"github.com/dresswithpockets/sreplay/core/recording"
	"github.com/dresswithpockets/sreplay/errs"
	"github.com/dresswithpockets/sreplay/internal/observability"
	"github.com/dresswithpockets/sreplay/internal/snapshot"
)

// DefaultPhysicsTicksPerSecond matches the common fixed-tick cadence of the
// hosts this engine embeds into.
const DefaultPhysicsTicksPerSecond = 60

// Mode is the engine's lifecycle state.
type Mode int

const (
	ModeOff Mode = iota
	ModeRecording
	ModeReplaying
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeRecording:
		return "recording"
	case ModeReplaying:
		return "replaying"
	default:
		return "unknown"
	}
}

// PointerSample carries one frame's polled pointer values.
type PointerSample struct {
	Mode           input.PointerMode
	Velocity       input.Vec2
	ScreenVelocity input.Vec2
	ButtonMask     uint32
}

// PollSource exposes the host's live input values. It is consumed only on
// recording-sampling code paths; replay never touches it.
type PollSource interface {
	// Actions enumerates the action names the session tracks.
	Actions() []string
	// Sample returns the current state of one action, in the exact or
	// default matching mode.
	Sample(action string, exact bool) input.ActionState
	// Pointer returns the current pointer values.
	Pointer() PointerSample
}

// EventSink receives replayed discrete events for dispatch to the host's
// observers.
type EventSink interface {
	Dispatch(ev event.Event)
}

// RecordOptions configures a recording session.
type RecordOptions struct {
	// Payload is invoked at every snapshot to capture an opaque host value.
	Payload snapshot.PayloadFunc
	// RetentionBound caps the snapshot count; zero keeps everything.
	RetentionBound int
	// SnapshotPeriod is the checkpoint interval in seconds; zero applies
	// the default.
	SnapshotPeriod float64
}

type options struct {
	poll           PollSource
	sink           EventSink
	metrics        *observability.SessionMetrics
	ticksPerSecond int
}

// Option configures optional engine behaviour.
type Option func(*options)

// WithPollSource supplies the live input source sampled while recording.
func WithPollSource(poll PollSource) Option {
	return func(o *options) { o.poll = poll }
}

// WithEventSink supplies the dispatch target for replayed events.
func WithEventSink(sink EventSink) Option {
	return func(o *options) { o.sink = sink }
}

// WithMetrics attaches a session metrics accumulator.
func WithMetrics(metrics *observability.SessionMetrics) Option {
	return func(o *options) { o.metrics = metrics }
}

// WithPhysicsRate overrides the fixed tick rate used to size the idle clamp
// window during playback.
func WithPhysicsRate(ticksPerSecond int) Option {
	return func(o *options) { o.ticksPerSecond = ticksPerSecond }
}

// transitionKind enumerates the deferred lifecycle requests.
type transitionKind int

const (
	transitionRecord transitionKind = iota
	transitionStop
	transitionPlay
	transitionRestart
	transitionSeek
)

type transition struct {
	kind transitionKind

	recordOpts RecordOptions

	playRec     *recording.Recording
	playPayload func(any)

	seekTick  int64
	playUntil bool
}

// Engine records input state into a Recording and replays one back with
// seek support. All work happens synchronously inside Frame and
// PhysicsFrame; the engine is single-threaded by contract.
type Engine struct {
	opts options

	mode Mode
	// effectiveMode is the mode after all queued transitions apply; new
	// transition requests validate against it so two record() calls in one
	// frame reject the second.
	effectiveMode Mode
	pending       []transition

	inPhysicsFrame bool
	rate           Rate

	rec *recordingSession
	rep *replaySession

	listeners listeners
}

// New constructs an idle engine. The host wires Frame and PhysicsFrame into
// its per-frame and per-fixed-tick callbacks.
func New(opts ...Option) *Engine {
	o := options{ticksPerSecond: DefaultPhysicsTicksPerSecond}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ticksPerSecond <= 0 {
		o.ticksPerSecond = DefaultPhysicsTicksPerSecond
	}
	return &Engine{opts: o, mode: ModeOff, effectiveMode: ModeOff, rate: RateFull}
}

// Mode returns the engine's current lifecycle state. Queued transitions are
// not reflected until the next fixed tick.
func (e *Engine) Mode() Mode { return e.mode }

// Recording returns the recording owned by the current session: the one
// being written while recording, the one being consumed while replaying,
// nil when off.
func (e *Engine) Recording() *recording.Recording {
	switch {
	case e.rec != nil:
		return e.rec.rec
	case e.rep != nil:
		return e.rep.rec
	default:
		return nil
	}
}

// Record requests a new recording session. The transition takes effect at
// the top of the next fixed tick so the first recorded tick is tick 0.
func (e *Engine) Record(opts RecordOptions) error {
	if e.effectiveMode != ModeOff {
		return errs.New("engine/record", errs.CodeInvalidTransition,
			errs.WithMessage("session already active"),
			errs.WithRemediation("stop the current session first"))
	}
	if e.opts.poll == nil {
		return errs.New("engine/record", errs.CodeInvalidTransition,
			errs.WithMessage("no poll source configured"))
	}
	e.enqueue(transition{kind: transitionRecord, recordOpts: opts}, ModeRecording)
	return nil
}

// Stop requests the active session to end at the next fixed tick. Stopping
// a recording freezes it and hands ownership back to the caller.
func (e *Engine) Stop() error {
	if e.effectiveMode == ModeOff {
		return errs.New("engine/stop", errs.CodeInvalidTransition,
			errs.WithMessage("no active session"))
	}
	e.enqueue(transition{kind: transitionStop}, ModeOff)
	return nil
}

// Play requests playback of rec starting at tick 0. applyPayload, when
// non-nil, receives each crossed snapshot's user payload so the host can
// restore its own state alongside the input state.
func (e *Engine) Play(rec *recording.Recording, applyPayload func(any)) error {
	if e.effectiveMode != ModeOff {
		return errs.New("engine/play", errs.CodeInvalidTransition,
			errs.WithMessage("session already active"))
	}
	if rec == nil || rec.Empty() {
		return errs.New("engine/play", errs.CodeInvalidRecording,
			errs.WithMessage("recording is nil or has no physics deltas"))
	}
	e.enqueue(transition{kind: transitionPlay, playRec: rec, playPayload: applyPayload}, ModeReplaying)
	return nil
}

// Restart requests a seek back to tick 0 of the active replay.
func (e *Engine) Restart() error {
	return e.Seek(0, false)
}

// Seek requests a jump to tick during replay. With playUntil the engine
// advances visibly instead of jumping: the playback rate is raised for
// exactly the fixed ticks needed to reach the target, then restored.
// Seeking backward or to tick 0 is always legal; seeking outside replay is
// rejected.
func (e *Engine) Seek(tick int64, playUntil bool) error {
	if e.effectiveMode != ModeReplaying {
		return errs.New("engine/seek", errs.CodeInvalidTransition,
			errs.WithMessage("seek requires an active replay"))
	}
	if tick < 0 {
		tick = 0
	}
	e.enqueue(transition{kind: transitionSeek, seekTick: tick, playUntil: playUntil}, ModeReplaying)
	return nil
}

// SetRate changes the playback speed immediately. Legal outside replay too;
// the rate applies when playback next runs.
func (e *Engine) SetRate(r Rate) error {
	if !r.Valid() {
		return errs.New("engine/rate", errs.CodeInvalid,
			errs.WithMessage("unsupported playback rate"))
	}
	if r == e.rate {
		return nil
	}
	old := e.rate
	e.rate = r
	if e.rep != nil {
		e.rep.applyRate(r)
	}
	e.listeners.notifyRate(old, r)
	return nil
}

// ActiveRate returns the configured playback rate.
func (e *Engine) ActiveRate() Rate { return e.rate }

func (e *Engine) enqueue(t transition, after Mode) {
	e.pending = append(e.pending, t)
	e.effectiveMode = after
}

// PhysicsFrame runs one fixed tick. Queued transitions drain first so a
// session always starts at the top of a tick. The tick length is fixed by
// the configured physics rate, so the frame takes no elapsed-time argument.
func (e *Engine) PhysicsFrame() {
	started := time.Now()
	e.inPhysicsFrame = true
	defer func() { e.inPhysicsFrame = false }()

	e.drainTransitions()

	switch e.mode {
	case ModeRecording:
		e.rec.physicsTick(e)
	case ModeReplaying:
		e.rep.physicsTick(e)
	}
	observability.Telemetry().ObserveHistogram("sreplay.tick.duration",
		float64(time.Since(started))/float64(time.Millisecond), nil)
}

// Frame runs one idle frame with the frame's elapsed seconds.
func (e *Engine) Frame(dt float64) {
	switch e.mode {
	case ModeRecording:
		e.rec.idleFrame(e, dt)
	case ModeReplaying:
		e.rep.idleFrame(e, dt)
	}
}

func (e *Engine) drainTransitions() {
	if len(e.pending) == 0 {
		return
	}
	queue := e.pending
	e.pending = nil
	for _, t := range queue {
		e.applyTransition(t)
	}
	e.effectiveMode = e.mode
}

func (e *Engine) applyTransition(t transition) {
	switch t.kind {
	case transitionRecord:
		e.startRecording(t.recordOpts)
	case transitionStop:
		e.stopSession()
	case transitionPlay:
		e.startReplay(t.playRec, t.playPayload)
	case transitionRestart:
		if e.rep != nil {
			e.rep.seek(e, 0, false)
		}
	case transitionSeek:
		if e.rep != nil {
			e.rep.seek(e, t.seekTick, t.playUntil)
		}
	}
}

func (e *Engine) startRecording(opts RecordOptions) {
	if e.mode != ModeOff {
		return
	}
	e.rec = newRecordingSession(opts, e.opts.metrics)
	e.setMode(ModeRecording)
	observability.Log().Info("recording started",
		observability.Field{Key: "recording_id", Value: e.rec.rec.ID},
		observability.Field{Key: "snapshot_period", Value: e.rec.rec.SnapshotPeriod},
		observability.Field{Key: "retention_bound", Value: opts.RetentionBound},
	)
}

func (e *Engine) stopSession() {
	switch e.mode {
	case ModeRecording:
		e.rec.finish()
		observability.Log().Info("recording stopped",
			observability.Field{Key: "recording_id", Value: e.rec.rec.ID},
			observability.Field{Key: "max_tick", Value: e.rec.rec.MaxTick},
		)
		e.rec = nil
	case ModeReplaying:
		observability.Log().Info("replay stopped",
			observability.Field{Key: "recording_id", Value: e.rep.rec.ID},
		)
		e.rep = nil
	default:
		return
	}
	e.setMode(ModeOff)
}

func (e *Engine) startReplay(rec *recording.Recording, applyPayload func(any)) {
	if e.mode != ModeOff || rec == nil || rec.Empty() {
		return
	}
	e.rep = newReplaySession(rec, applyPayload, e.opts.ticksPerSecond)
	e.rep.applyRate(e.rate)
	e.setMode(ModeReplaying)
	observability.Log().Info("replay started",
		observability.Field{Key: "recording_id", Value: rec.ID},
		observability.Field{Key: "max_tick", Value: rec.MaxTick},
	)
}

func (e *Engine) setMode(m Mode) {
	if m == e.mode {
		return
	}
	old := e.mode
	e.mode = m
	if len(e.pending) == 0 {
		e.effectiveMode = m
	}
	e.listeners.notifyMode(old, m)
}
