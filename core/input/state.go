// Package input defines the value types describing polled input at a single tick.
package input

import (
	"fmt"
	"reflect"
	"strings"
)

// Vec2 is a two-component vector used for pointer velocities and positions.
type Vec2 struct {
	X float64
	Y float64
}

// Add returns the component-wise sum of v and o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

// IsZero reports whether both components are exactly zero.
func (v Vec2) IsZero() bool { return v.X == 0 && v.Y == 0 }

// MarshalText renders the vector as an opaque "(x, y)" blob for serialization.
func (v Vec2) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("(%g, %g)", v.X, v.Y)), nil
}

// UnmarshalText parses the "(x, y)" form produced by MarshalText.
func (v *Vec2) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return fmt.Errorf("vec2: malformed blob %q", s)
	}
	var x, y float64
	if _, err := fmt.Sscanf(s, "(%g, %g)", &x, &y); err != nil {
		return fmt.Errorf("vec2: parse %q: %w", s, err)
	}
	v.X, v.Y = x, y
	return nil
}

// PointerMode describes how the host currently presents and constrains the pointer.
type PointerMode int

const (
	// PointerVisible is the default free pointer.
	PointerVisible PointerMode = iota
	// PointerHidden hides the cursor without constraining it.
	PointerHidden
	// PointerCaptured locks the pointer to the window centre, reporting relative motion.
	PointerCaptured
	// PointerConfined clips the pointer to the window bounds.
	PointerConfined
)

// String returns the serialized name of the pointer mode.
func (m PointerMode) String() string {
	switch m {
	case PointerVisible:
		return "visible"
	case PointerHidden:
		return "hidden"
	case PointerCaptured:
		return "captured"
	case PointerConfined:
		return "confined"
	default:
		return fmt.Sprintf("pointer_mode(%d)", int(m))
	}
}

// MarshalText serializes the mode name for storage.
func (m PointerMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText parses a serialized pointer mode name.
func (m *PointerMode) UnmarshalText(text []byte) error {
	parsed, err := ParsePointerMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParsePointerMode resolves a serialized pointer mode name.
func ParsePointerMode(s string) (PointerMode, error) {
	switch s {
	case "visible":
		return PointerVisible, nil
	case "hidden":
		return PointerHidden, nil
	case "captured":
		return PointerCaptured, nil
	case "confined":
		return PointerConfined, nil
	default:
		return PointerVisible, fmt.Errorf("input: unknown pointer mode %q", s)
	}
}

// ActionState holds the five recorded properties of a single named action.
// Values are immutable once stored; change detection compares field by field.
type ActionState struct {
	RawStrength  float64 `json:"raw_strength"`
	Strength     float64 `json:"strength"`
	JustPressed  bool    `json:"just_pressed"`
	JustReleased bool    `json:"just_released"`
	Pressed      bool    `json:"pressed"`
}

// InputState is the cumulative polled state of all tracked inputs at one tick.
// Actions and ActionsExact are maintained independently and never merged:
// the exact table backs the host's strict-match polling mode. Captures holds
// host-supplied opaque values; entries persist once set and are only ever
// overwritten, never removed, for the duration of a session.
type InputState struct {
	Actions               map[string]ActionState `json:"actions"`
	ActionsExact          map[string]ActionState `json:"actions_exact"`
	PointerMode           PointerMode            `json:"pointer_mode"`
	PointerVelocity       Vec2                   `json:"pointer_velocity"`
	PointerScreenVelocity Vec2                   `json:"pointer_screen_velocity"`
	PointerButtonMask     uint32                 `json:"pointer_button_mask"`
	Captures              map[string]any         `json:"captures,omitempty"`
}

// NewInputState returns an empty state with allocated tables.
func NewInputState() *InputState {
	return &InputState{
		Actions:               make(map[string]ActionState),
		ActionsExact:          make(map[string]ActionState),
		PointerMode:           PointerVisible,
		PointerVelocity:       Vec2{},
		PointerScreenVelocity: Vec2{},
		PointerButtonMask:     0,
		Captures:              nil,
	}
}

// Clone returns a deep copy sharing no mutable structure with the receiver.
func (s *InputState) Clone() *InputState {
	if s == nil {
		return NewInputState()
	}
	clone := &InputState{
		Actions:               make(map[string]ActionState, len(s.Actions)),
		ActionsExact:          make(map[string]ActionState, len(s.ActionsExact)),
		PointerMode:           s.PointerMode,
		PointerVelocity:       s.PointerVelocity,
		PointerScreenVelocity: s.PointerScreenVelocity,
		PointerButtonMask:     s.PointerButtonMask,
		Captures:              nil,
	}
	for name, st := range s.Actions {
		clone.Actions[name] = st
	}
	for name, st := range s.ActionsExact {
		clone.ActionsExact[name] = st
	}
	if s.Captures != nil {
		clone.Captures = make(map[string]any, len(s.Captures))
		for key, value := range s.Captures {
			clone.Captures[key] = value
		}
	}
	return clone
}

// CopyFrom replaces the receiver's contents with a deep copy of other.
func (s *InputState) CopyFrom(other *InputState) {
	clone := other.Clone()
	*s = *clone
}

// Equal reports whether two states carry identical recorded values.
func (s *InputState) Equal(other *InputState) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.PointerMode != other.PointerMode ||
		s.PointerVelocity != other.PointerVelocity ||
		s.PointerScreenVelocity != other.PointerScreenVelocity ||
		s.PointerButtonMask != other.PointerButtonMask {
		return false
	}
	if !actionsEqual(s.Actions, other.Actions) || !actionsEqual(s.ActionsExact, other.ActionsExact) {
		return false
	}
	if len(s.Captures) != len(other.Captures) {
		return false
	}
	for key, value := range s.Captures {
		if got, ok := other.Captures[key]; !ok || !CaptureEqual(got, value) {
			return false
		}
	}
	return true
}

// CaptureEqual compares two opaque capture values. Captures are host-supplied
// and may not be directly comparable, so equality falls back to deep comparison.
func CaptureEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// ClearEdgeFlags resets the one-tick just-pressed and just-released flags in
// both action tables, called at the top of each replay tick before deltas
// re-assert any rising edge recorded for that tick.
func (s *InputState) ClearEdgeFlags() {
	for name, st := range s.Actions {
		if st.JustPressed || st.JustReleased {
			st.JustPressed = false
			st.JustReleased = false
			s.Actions[name] = st
		}
	}
	for name, st := range s.ActionsExact {
		if st.JustPressed || st.JustReleased {
			st.JustPressed = false
			st.JustReleased = false
			s.ActionsExact[name] = st
		}
	}
}

// SetCapture stores a host-supplied value under key, allocating the table lazily.
func (s *InputState) SetCapture(key string, value any) {
	if s.Captures == nil {
		s.Captures = make(map[string]any)
	}
	s.Captures[key] = value
}

func actionsEqual(a, b map[string]ActionState) bool {
	if len(a) != len(b) {
		return false
	}
	for name, st := range a {
		if got, ok := b[name]; !ok || got != st {
			return false
		}
	}
	return true
}
