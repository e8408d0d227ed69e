package engine

import (
	"github.com/dresswithpockets/sreplay/core/event"
	"github.com/dresswithpockets/sreplay/core/input"
	"github.com/dresswithpockets/sreplay/internal/observability"
)

// The polling surface mirrors the live poll source's shape so callers can be
// replay-agnostic: during recording it reads the encoder caches (the
// recorded values, never a separately tracked live copy), during replay it
// reads the reconstructed state, and when off it falls through to the live
// source.

// pollState resolves the InputState backing the polling surface for the
// current frame, honoring the active tick domain.
func (e *Engine) pollState() *input.InputState {
	switch e.mode {
	case ModeRecording:
		if e.inPhysicsFrame {
			return e.rec.physEnc.State()
		}
		return e.rec.idleEnc.State()
	case ModeReplaying:
		if e.inPhysicsFrame {
			return e.rep.physState
		}
		return e.rep.idleState
	default:
		return nil
	}
}

// lookupAction returns the action's state for polling. During replay a miss
// is reported once per action and the zero state stands in as the sentinel.
func (e *Engine) lookupAction(action string, exact bool) input.ActionState {
	state := e.pollState()
	if state == nil {
		if e.opts.poll != nil {
			return e.opts.poll.Sample(action, exact)
		}
		return input.ActionState{}
	}
	table := state.Actions
	if exact {
		table = state.ActionsExact
	}
	st, ok := table[action]
	if !ok && e.mode == ModeReplaying {
		e.reportMissing("action:" + action)
	}
	return st
}

func (e *Engine) reportMissing(key string) {
	if _, seen := e.rep.missingReported[key]; seen {
		return
	}
	e.rep.missingReported[key] = struct{}{}
	if e.opts.metrics != nil {
		e.opts.metrics.RecordMissingPollKey(key)
	}
	observability.Log().Info("poll key missing from replay",
		observability.Field{Key: "key", Value: key},
		observability.Field{Key: "recording_id", Value: e.rep.rec.ID},
	)
}

// GetActionStrength returns the action's analog strength.
func (e *Engine) GetActionStrength(action string, exact bool) float64 {
	return e.lookupAction(action, exact).Strength
}

// GetActionRawStrength returns the action's strength before deadzone
// shaping.
func (e *Engine) GetActionRawStrength(action string, exact bool) float64 {
	return e.lookupAction(action, exact).RawStrength
}

// IsActionPressed reports whether the action is held.
func (e *Engine) IsActionPressed(action string, exact bool) bool {
	return e.lookupAction(action, exact).Pressed
}

// IsActionJustPressed reports whether the action started this tick.
func (e *Engine) IsActionJustPressed(action string, exact bool) bool {
	return e.lookupAction(action, exact).JustPressed
}

// IsActionJustReleased reports whether the action ended this tick.
func (e *Engine) IsActionJustReleased(action string, exact bool) bool {
	return e.lookupAction(action, exact).JustReleased
}

// GetAxis composes two opposing actions into a signed axis value.
func (e *Engine) GetAxis(negative, positive string) float64 {
	return e.GetActionStrength(positive, false) - e.GetActionStrength(negative, false)
}

// GetVector composes four directional actions into a 2D vector, matching
// the shape of the live poll source's equivalent call.
func (e *Engine) GetVector(negX, posX, negY, posY string) input.Vec2 {
	return input.Vec2{
		X: e.GetAxis(negX, posX),
		Y: e.GetAxis(negY, posY),
	}
}

// GetPointerMode returns the pointer's capture mode.
func (e *Engine) GetPointerMode() input.PointerMode {
	if state := e.pollState(); state != nil {
		return state.PointerMode
	}
	if e.opts.poll != nil {
		return e.opts.poll.Pointer().Mode
	}
	return input.PointerVisible
}

// GetPointerVelocity returns the pointer's world-space velocity.
func (e *Engine) GetPointerVelocity() input.Vec2 {
	if state := e.pollState(); state != nil {
		return state.PointerVelocity
	}
	if e.opts.poll != nil {
		return e.opts.poll.Pointer().Velocity
	}
	return input.Vec2{}
}

// GetPointerScreenVelocity returns the pointer's screen-space velocity.
func (e *Engine) GetPointerScreenVelocity() input.Vec2 {
	if state := e.pollState(); state != nil {
		return state.PointerScreenVelocity
	}
	if e.opts.poll != nil {
		return e.opts.poll.Pointer().ScreenVelocity
	}
	return input.Vec2{}
}

// GetPointerButtonMask returns the pressed pointer button bitmask.
func (e *Engine) GetPointerButtonMask() uint32 {
	if state := e.pollState(); state != nil {
		return state.PointerButtonMask
	}
	if e.opts.poll != nil {
		return e.opts.poll.Pointer().ButtonMask
	}
	return 0
}

// Capture records value under key during recording and substitutes the
// recorded value back during replay. When off, or when the replayed state
// never recorded the key, the passed value is returned unchanged; a replay
// miss is reported once per key.
func (e *Engine) Capture(key string, value any) any {
	switch e.mode {
	case ModeRecording:
		return e.rec.capture(e, key, value)
	case ModeReplaying:
		state := e.pollState()
		if recorded, ok := state.Captures[key]; ok {
			return recorded
		}
		e.reportMissing("capture:" + key)
		return value
	default:
		return value
	}
}

// RecordEvent feeds a live discrete event into the active recording.
// Outside recording the call is a no-op; kinds outside the whitelist are
// rejected and dropped while the recording continues.
func (e *Engine) RecordEvent(ev event.Event) error {
	if e.mode != ModeRecording {
		return nil
	}
	return e.rec.recordEvent(ev)
}
