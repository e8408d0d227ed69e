package event

import (
	"fmt"

	json "github.com/goccy/go-json"
)

type eventEnvelope struct {
	Kind         string        `json:"kind"`
	Key          *Key          `json:"key,omitempty"`
	MouseButton  *MouseButton  `json:"mouse_button,omitempty"`
	MouseMotion  *MouseMotion  `json:"mouse_motion,omitempty"`
	JoypadButton *JoypadButton `json:"joypad_button,omitempty"`
	JoypadMotion *JoypadMotion `json:"joypad_motion,omitempty"`
	ScreenTouch  *ScreenTouch  `json:"screen_touch,omitempty"`
	ScreenDrag   *ScreenDrag   `json:"screen_drag,omitempty"`
	Action       *Action       `json:"action,omitempty"`
}

// MarshalJSON encodes the event with its kind as an enumerated string key.
func (e Event) MarshalJSON() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return json.Marshal(eventEnvelope{
		Kind:         e.Kind.String(),
		Key:          e.Key,
		MouseButton:  e.MouseButton,
		MouseMotion:  e.MouseMotion,
		JoypadButton: e.JoypadButton,
		JoypadMotion: e.JoypadMotion,
		ScreenTouch:  e.ScreenTouch,
		ScreenDrag:   e.ScreenDrag,
		Action:       e.Action,
	})
}

// UnmarshalJSON decodes an event envelope, rejecting kinds outside the
// whitelist so deserialized recordings honor the same compatibility
// boundary as live recording.
func (e *Event) UnmarshalJSON(data []byte) error {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}
	kind, err := ParseKind(env.Kind)
	if err != nil {
		return err
	}
	decoded := Event{
		Kind:         kind,
		Key:          env.Key,
		MouseButton:  env.MouseButton,
		MouseMotion:  env.MouseMotion,
		JoypadButton: env.JoypadButton,
		JoypadMotion: env.JoypadMotion,
		ScreenTouch:  env.ScreenTouch,
		ScreenDrag:   env.ScreenDrag,
		Action:       env.Action,
	}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*e = decoded
	return nil
}

// MarshalJSON encodes the timestamped group with its ordered event list.
func (te TimedEvents) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Time   float64 `json:"time"`
		Events []Event `json:"events"`
	}{Time: te.Time, Events: te.Events})
}

// UnmarshalJSON decodes a timestamped group.
func (te *TimedEvents) UnmarshalJSON(data []byte) error {
	var raw struct {
		Time   float64 `json:"time"`
		Events []Event `json:"events"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal timed events: %w", err)
	}
	te.Time = raw.Time
	te.Events = raw.Events
	return nil
}
