// Package script runs a JavaScript program as a deterministic synthetic
// input source. The program exports a global tick(t) function returning the
// polled values for session time t; the source derives press and release
// edges from consecutive frames so scripts only describe held state.
package script

import (
	"fmt"
	"sort"

	"github.com/dop251/goja"

	"github.com/dresswithpockets/sreplay/core/event"
	"github.com/dresswithpockets/sreplay/core/input"
	"github.com/dresswithpockets/sreplay/errs"
	"github.com/dresswithpockets/sreplay/internal/engine"
)

// actionFrame is one action's scripted value for a frame.
type actionFrame struct {
	Strength    float64  `json:"strength"`
	RawStrength *float64 `json:"raw_strength"`
	Pressed     bool     `json:"pressed"`
}

// pointerFrame is the scripted pointer state for a frame.
type pointerFrame struct {
	Mode           string    `json:"mode"`
	Velocity       []float64 `json:"velocity"`
	ScreenVelocity []float64 `json:"screen_velocity"`
	ButtonMask     uint32    `json:"button_mask"`
}

func vec2Of(pair []float64) (input.Vec2, error) {
	switch len(pair) {
	case 0:
		return input.Vec2{}, nil
	case 2:
		return input.Vec2{X: pair[0], Y: pair[1]}, nil
	default:
		return input.Vec2{}, errs.New("script/source", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("pointer vector needs 2 components, got %d", len(pair))))
	}
}

// eventFrame is a scripted discrete action event.
type eventFrame struct {
	Action   string  `json:"action"`
	Pressed  bool    `json:"pressed"`
	Strength float64 `json:"strength"`
}

// frame is the shape tick(t) returns.
type frame struct {
	Actions map[string]actionFrame `json:"actions"`
	Pointer *pointerFrame          `json:"pointer"`
	Events  []eventFrame           `json:"events"`
}

// Source adapts a scripted tick function to the engine's poll boundary. It
// is single-threaded like the engine: Advance must be called from the same
// loop that drives the engine's frames.
type Source struct {
	rt   *goja.Runtime
	tick goja.Callable

	actions map[string]input.ActionState
	ptr     engine.PointerSample
	pending []event.Event
}

// NewSource compiles src and resolves its tick export.
func NewSource(src string) (*Source, error) {
	rt := goja.New()
	rt.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if _, err := rt.RunString(src); err != nil {
		return nil, errs.New("script/source", errs.CodeInvalid, errs.WithCause(err),
			errs.WithMessage("execute input script"))
	}
	tick, ok := goja.AssertFunction(rt.Get("tick"))
	if !ok {
		return nil, errs.New("script/source", errs.CodeInvalid,
			errs.WithMessage("input script must define a tick(t) function"))
	}
	return &Source{
		rt:      rt,
		tick:    tick,
		actions: make(map[string]input.ActionState),
	}, nil
}

// Advance evaluates tick(t) and folds the returned frame into the live
// state, deriving just_pressed/just_released from pressed transitions.
func (s *Source) Advance(t float64) error {
	value, err := s.tick(goja.Undefined(), s.rt.ToValue(t))
	if err != nil {
		return errs.New("script/source", errs.CodeInvalid, errs.WithCause(err),
			errs.WithMessage(fmt.Sprintf("tick(%g)", t)))
	}
	var f frame
	if err := s.rt.ExportTo(value, &f); err != nil {
		return errs.New("script/source", errs.CodeInvalid, errs.WithCause(err),
			errs.WithMessage("tick return value shape"))
	}

	next := make(map[string]input.ActionState, len(f.Actions))
	for name, af := range f.Actions {
		raw := af.Strength
		if af.RawStrength != nil {
			raw = *af.RawStrength
		}
		prev := s.actions[name]
		next[name] = input.ActionState{
			RawStrength:  raw,
			Strength:     af.Strength,
			Pressed:      af.Pressed,
			JustPressed:  af.Pressed && !prev.Pressed,
			JustReleased: !af.Pressed && prev.Pressed,
		}
	}
	// Actions the script stopped mentioning release on this frame.
	for name, prev := range s.actions {
		if _, ok := next[name]; !ok && prev.Pressed {
			next[name] = input.ActionState{JustReleased: true}
		}
	}
	s.actions = next

	if f.Pointer != nil {
		mode := input.PointerVisible
		if f.Pointer.Mode != "" {
			parsed, err := input.ParsePointerMode(f.Pointer.Mode)
			if err != nil {
				return err
			}
			mode = parsed
		}
		vel, err := vec2Of(f.Pointer.Velocity)
		if err != nil {
			return err
		}
		screen, err := vec2Of(f.Pointer.ScreenVelocity)
		if err != nil {
			return err
		}
		s.ptr = engine.PointerSample{
			Mode:           mode,
			Velocity:       vel,
			ScreenVelocity: screen,
			ButtonMask:     f.Pointer.ButtonMask,
		}
	}

	s.pending = s.pending[:0]
	for _, ef := range f.Events {
		s.pending = append(s.pending, event.Event{
			Kind: event.KindAction,
			Action: &event.Action{
				Action:   ef.Action,
				Pressed:  ef.Pressed,
				Strength: ef.Strength,
			},
		})
	}
	return nil
}

// Actions enumerates the currently scripted action names.
func (s *Source) Actions() []string {
	names := make([]string, 0, len(s.actions))
	for name := range s.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sample returns the action's current state. The scripted source does not
// distinguish exact matching; both tables read the same values.
func (s *Source) Sample(action string, exact bool) input.ActionState {
	return s.actions[action]
}

// Pointer returns the current pointer values.
func (s *Source) Pointer() engine.PointerSample { return s.ptr }

// DrainEvents returns the events the last Advance produced, clearing them.
func (s *Source) DrainEvents() []event.Event {
	if len(s.pending) == 0 {
		return nil
	}
	out := make([]event.Event, len(s.pending))
	copy(out, s.pending)
	s.pending = s.pending[:0]
	return out
}
