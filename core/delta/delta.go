// Package delta implements sparse change detection over input states. A delta
// stores only the fields whose values differ from the previous tick, so a
// recording of a mostly-idle session stays proportional to the input activity
// rather than to its duration.
package delta

import (
	"fmt"

	"github.com/dresswithpockets/sreplay/core/input"
)

// FieldKey enumerates the tracked fields. Per-action properties are keyed
// independently, once per property and match mode, so a change to one
// property of an action never re-encodes its other properties.
type FieldKey int

const (
	// FieldPointerMode tracks the pointer presentation mode.
	FieldPointerMode FieldKey = iota
	// FieldPointerVelocity tracks world-space pointer velocity.
	FieldPointerVelocity
	// FieldPointerScreenVelocity tracks screen-space pointer velocity.
	FieldPointerScreenVelocity
	// FieldPointerButtonMask tracks the pressed pointer button bitmask.
	FieldPointerButtonMask
	// FieldCaptures tracks host-supplied opaque capture values.
	FieldCaptures

	// FieldActionRawStrength tracks per-action raw strength.
	FieldActionRawStrength
	// FieldActionStrength tracks per-action deadzone-adjusted strength.
	FieldActionStrength
	// FieldActionJustPressed tracks per-action just-pressed edges.
	FieldActionJustPressed
	// FieldActionJustReleased tracks per-action just-released edges.
	FieldActionJustReleased
	// FieldActionPressed tracks per-action held state.
	FieldActionPressed

	// FieldActionExactRawStrength is FieldActionRawStrength for the exact-match table.
	FieldActionExactRawStrength
	// FieldActionExactStrength is FieldActionStrength for the exact-match table.
	FieldActionExactStrength
	// FieldActionExactJustPressed is FieldActionJustPressed for the exact-match table.
	FieldActionExactJustPressed
	// FieldActionExactJustReleased is FieldActionJustReleased for the exact-match table.
	FieldActionExactJustReleased
	// FieldActionExactPressed is FieldActionPressed for the exact-match table.
	FieldActionExactPressed
)

var fieldKeyNames = map[FieldKey]string{
	FieldPointerMode:             "pointer_mode",
	FieldPointerVelocity:         "pointer_velocity",
	FieldPointerScreenVelocity:   "pointer_screen_velocity",
	FieldPointerButtonMask:       "pointer_button_mask",
	FieldCaptures:                "captures",
	FieldActionRawStrength:       "action_raw_strength",
	FieldActionStrength:          "action_strength",
	FieldActionJustPressed:       "action_just_pressed",
	FieldActionJustReleased:      "action_just_released",
	FieldActionPressed:           "action_pressed",
	FieldActionExactRawStrength:  "action_exact_raw_strength",
	FieldActionExactStrength:     "action_exact_strength",
	FieldActionExactJustPressed:  "action_exact_just_pressed",
	FieldActionExactJustReleased: "action_exact_just_released",
	FieldActionExactPressed:      "action_exact_pressed",
}

var fieldKeyValues = func() map[string]FieldKey {
	m := make(map[string]FieldKey, len(fieldKeyNames))
	for k, name := range fieldKeyNames {
		m[name] = k
	}
	return m
}()

// String returns the serialized name of the field key.
func (k FieldKey) String() string {
	if name, ok := fieldKeyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("field(%d)", int(k))
}

// ParseFieldKey resolves a serialized field key name.
func ParseFieldKey(s string) (FieldKey, error) {
	if k, ok := fieldKeyValues[s]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("delta: unknown field key %q", s)
}

// ActionFloat records one action's new value for a float property.
type ActionFloat struct {
	Action string  `json:"action"`
	Value  float64 `json:"value"`
}

// ActionBool records one action's new value for a boolean property.
type ActionBool struct {
	Action string `json:"action"`
	Value  bool   `json:"value"`
}

// Delta is the sparse change set for one tick of one domain. Change values
// are keyed by FieldKey and carry a concrete type per field family:
// input.PointerMode, input.Vec2, uint32, []ActionFloat, []ActionBool, or
// map[string]any for captures. A delta with no changes is never stored.
type Delta struct {
	Time    float64
	Tick    int64
	Changes map[FieldKey]any
}

// Empty reports whether the delta carries no changes.
func (d Delta) Empty() bool { return len(d.Changes) == 0 }

// floatField binds a float action property to its accessor and mutator; the
// table below replaces per-property callable indirection with a fixed set of
// (key, get, set) triples shared by encoding and application.
type floatField struct {
	key   FieldKey
	exact bool
	get   func(input.ActionState) float64
	set   func(*input.ActionState, float64)
}

// boolField additionally marks the transient edge flags: just_pressed and
// just_released live for exactly one tick, so encoding compares them against
// false rather than the cached value and records only rising edges, and the
// replay engine clears them at the top of every tick.
type boolField struct {
	key       FieldKey
	exact     bool
	transient bool
	get       func(input.ActionState) bool
	set       func(*input.ActionState, bool)
}

var floatFields = []floatField{
	{FieldActionRawStrength, false, func(s input.ActionState) float64 { return s.RawStrength }, func(s *input.ActionState, v float64) { s.RawStrength = v }},
	{FieldActionStrength, false, func(s input.ActionState) float64 { return s.Strength }, func(s *input.ActionState, v float64) { s.Strength = v }},
	{FieldActionExactRawStrength, true, func(s input.ActionState) float64 { return s.RawStrength }, func(s *input.ActionState, v float64) { s.RawStrength = v }},
	{FieldActionExactStrength, true, func(s input.ActionState) float64 { return s.Strength }, func(s *input.ActionState, v float64) { s.Strength = v }},
}

var boolFields = []boolField{
	{FieldActionJustPressed, false, true, func(s input.ActionState) bool { return s.JustPressed }, func(s *input.ActionState, v bool) { s.JustPressed = v }},
	{FieldActionJustReleased, false, true, func(s input.ActionState) bool { return s.JustReleased }, func(s *input.ActionState, v bool) { s.JustReleased = v }},
	{FieldActionPressed, false, false, func(s input.ActionState) bool { return s.Pressed }, func(s *input.ActionState, v bool) { s.Pressed = v }},
	{FieldActionExactJustPressed, true, true, func(s input.ActionState) bool { return s.JustPressed }, func(s *input.ActionState, v bool) { s.JustPressed = v }},
	{FieldActionExactJustReleased, true, true, func(s input.ActionState) bool { return s.JustReleased }, func(s *input.ActionState, v bool) { s.JustReleased = v }},
	{FieldActionExactPressed, true, false, func(s input.ActionState) bool { return s.Pressed }, func(s *input.ActionState, v bool) { s.Pressed = v }},
}

func actionTable(state *input.InputState, exact bool) map[string]input.ActionState {
	if exact {
		return state.ActionsExact
	}
	return state.Actions
}

// Apply folds the delta into state in place. Application is idempotent:
// re-applying a delta already reflected in state leaves it unchanged, which
// seek relies on when it re-applies the delta bound to a snapshot. The
// captures change merges key by key and never replaces the table wholesale.
func Apply(d Delta, state *input.InputState) {
	for _, change := range []struct {
		key FieldKey
		fn  func(any)
	}{
		{FieldPointerMode, func(v any) { state.PointerMode = v.(input.PointerMode) }},
		{FieldPointerVelocity, func(v any) { state.PointerVelocity = v.(input.Vec2) }},
		{FieldPointerScreenVelocity, func(v any) { state.PointerScreenVelocity = v.(input.Vec2) }},
		{FieldPointerButtonMask, func(v any) { state.PointerButtonMask = v.(uint32) }},
	} {
		if v, ok := d.Changes[change.key]; ok {
			change.fn(v)
		}
	}

	for _, field := range floatFields {
		entries, ok := d.Changes[field.key].([]ActionFloat)
		if !ok {
			continue
		}
		table := actionTable(state, field.exact)
		for _, entry := range entries {
			st := table[entry.Action]
			field.set(&st, entry.Value)
			table[entry.Action] = st
		}
	}
	for _, field := range boolFields {
		entries, ok := d.Changes[field.key].([]ActionBool)
		if !ok {
			continue
		}
		table := actionTable(state, field.exact)
		for _, entry := range entries {
			st := table[entry.Action]
			field.set(&st, entry.Value)
			table[entry.Action] = st
		}
	}

	if captures, ok := d.Changes[FieldCaptures].(map[string]any); ok {
		for key, value := range captures {
			state.SetCapture(key, value)
		}
	}
}
