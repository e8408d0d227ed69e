// Package event defines the closed set of discrete input events the recorder
// accepts, plus the time-stamped log structure used to store and replay them.
package event

import (
	"fmt"

	"github.com/dresswithpockets/sreplay/core/input"
	"github.com/dresswithpockets/sreplay/errs"
)

// Kind enumerates the recordable event variants. The set is closed: kinds
// outside this enumeration are rejected at recording time because arbitrary
// host events can carry payloads that do not reproduce deterministically.
type Kind int

const (
	// KindInvalid is the zero value and never recordable.
	KindInvalid Kind = iota
	// KindKey is a keyboard press or release.
	KindKey
	// KindMouseButton is a mouse button press or release.
	KindMouseButton
	// KindMouseMotion is relative pointer movement.
	KindMouseMotion
	// KindJoypadButton is a gamepad button press or release.
	KindJoypadButton
	// KindJoypadMotion is a gamepad analog axis change.
	KindJoypadMotion
	// KindScreenTouch is a touchscreen contact press or release.
	KindScreenTouch
	// KindScreenDrag is a touchscreen contact movement.
	KindScreenDrag
	// KindAction is a synthetic named-action press or release.
	KindAction
)

// String returns the serialized name of the kind.
func (k Kind) String() string {
	switch k {
	case KindKey:
		return "key"
	case KindMouseButton:
		return "mouse_button"
	case KindMouseMotion:
		return "mouse_motion"
	case KindJoypadButton:
		return "joypad_button"
	case KindJoypadMotion:
		return "joypad_motion"
	case KindScreenTouch:
		return "screen_touch"
	case KindScreenDrag:
		return "screen_drag"
	case KindAction:
		return "action"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind resolves a serialized kind name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "key":
		return KindKey, nil
	case "mouse_button":
		return KindMouseButton, nil
	case "mouse_motion":
		return KindMouseMotion, nil
	case "joypad_button":
		return KindJoypadButton, nil
	case "joypad_motion":
		return KindJoypadMotion, nil
	case "screen_touch":
		return KindScreenTouch, nil
	case "screen_drag":
		return KindScreenDrag, nil
	case "action":
		return KindAction, nil
	default:
		return KindInvalid, errs.New("event", errs.CodeIncompatibleEvent,
			errs.WithMessage(fmt.Sprintf("unrecognized event kind %q", s)))
	}
}

// Key carries keyboard event payload.
type Key struct {
	Keycode         uint32 `json:"keycode"`
	PhysicalKeycode uint32 `json:"physical_keycode"`
	Unicode         uint32 `json:"unicode"`
	Pressed         bool   `json:"pressed"`
	Echo            bool   `json:"echo"`
	Modifiers       uint32 `json:"modifiers"`
}

// MouseButton carries mouse button payload.
type MouseButton struct {
	ButtonIndex    int        `json:"button_index"`
	Pressed        bool       `json:"pressed"`
	DoubleClick    bool       `json:"double_click"`
	Position       input.Vec2 `json:"position"`
	GlobalPosition input.Vec2 `json:"global_position"`
	Factor         float64    `json:"factor"`
}

// MouseMotion carries relative pointer movement payload.
type MouseMotion struct {
	Position       input.Vec2 `json:"position"`
	GlobalPosition input.Vec2 `json:"global_position"`
	Relative       input.Vec2 `json:"relative"`
	Velocity       input.Vec2 `json:"velocity"`
	ButtonMask     uint32     `json:"button_mask"`
}

// JoypadButton carries gamepad button payload.
type JoypadButton struct {
	ButtonIndex int     `json:"button_index"`
	Pressed     bool    `json:"pressed"`
	Pressure    float64 `json:"pressure"`
}

// JoypadMotion carries gamepad axis payload.
type JoypadMotion struct {
	Axis      int     `json:"axis"`
	AxisValue float64 `json:"axis_value"`
}

// ScreenTouch carries touchscreen contact payload.
type ScreenTouch struct {
	Index    int        `json:"index"`
	Position input.Vec2 `json:"position"`
	Pressed  bool       `json:"pressed"`
}

// ScreenDrag carries touchscreen movement payload.
type ScreenDrag struct {
	Index    int        `json:"index"`
	Position input.Vec2 `json:"position"`
	Relative input.Vec2 `json:"relative"`
	Velocity input.Vec2 `json:"velocity"`
}

// Action carries synthetic named-action payload.
type Action struct {
	Action   string  `json:"action"`
	Pressed  bool    `json:"pressed"`
	Strength float64 `json:"strength"`
}

// Event is the tagged variant: exactly one payload pointer matching Kind is
// non-nil. Recorded events are deep copies, never aliases of a live host
// event, so mutation of the source after recording cannot corrupt the log.
type Event struct {
	Kind         Kind
	Key          *Key
	MouseButton  *MouseButton
	MouseMotion  *MouseMotion
	JoypadButton *JoypadButton
	JoypadMotion *JoypadMotion
	ScreenTouch  *ScreenTouch
	ScreenDrag   *ScreenDrag
	Action       *Action
}

// Validate checks that the kind is recordable and the matching payload is set.
func (e Event) Validate() error {
	var ok bool
	switch e.Kind {
	case KindKey:
		ok = e.Key != nil
	case KindMouseButton:
		ok = e.MouseButton != nil
	case KindMouseMotion:
		ok = e.MouseMotion != nil
	case KindJoypadButton:
		ok = e.JoypadButton != nil
	case KindJoypadMotion:
		ok = e.JoypadMotion != nil
	case KindScreenTouch:
		ok = e.ScreenTouch != nil
	case KindScreenDrag:
		ok = e.ScreenDrag != nil
	case KindAction:
		ok = e.Action != nil
	default:
		return errs.New("event", errs.CodeIncompatibleEvent,
			errs.WithMessage(fmt.Sprintf("event kind %s is not recordable", e.Kind)))
	}
	if !ok {
		return errs.New("event", errs.CodeIncompatibleEvent,
			errs.WithMessage(fmt.Sprintf("event kind %s carries no payload", e.Kind)))
	}
	return nil
}

// Clone returns a deep copy decoupled from the receiver.
func (e Event) Clone() Event {
	clone := Event{Kind: e.Kind}
	switch e.Kind {
	case KindKey:
		if e.Key != nil {
			v := *e.Key
			clone.Key = &v
		}
	case KindMouseButton:
		if e.MouseButton != nil {
			v := *e.MouseButton
			clone.MouseButton = &v
		}
	case KindMouseMotion:
		if e.MouseMotion != nil {
			v := *e.MouseMotion
			clone.MouseMotion = &v
		}
	case KindJoypadButton:
		if e.JoypadButton != nil {
			v := *e.JoypadButton
			clone.JoypadButton = &v
		}
	case KindJoypadMotion:
		if e.JoypadMotion != nil {
			v := *e.JoypadMotion
			clone.JoypadMotion = &v
		}
	case KindScreenTouch:
		if e.ScreenTouch != nil {
			v := *e.ScreenTouch
			clone.ScreenTouch = &v
		}
	case KindScreenDrag:
		if e.ScreenDrag != nil {
			v := *e.ScreenDrag
			clone.ScreenDrag = &v
		}
	case KindAction:
		if e.Action != nil {
			v := *e.Action
			clone.Action = &v
		}
	}
	return clone
}

// TimedEvents groups every event recorded at one domain timestamp.
type TimedEvents struct {
	Time   float64
	Events []Event
}

// Coalesce appends ev to the log, folding it into the last entry when the
// timestamp matches exactly and starting a new entry otherwise.
func Coalesce(log []TimedEvents, now float64, ev Event) []TimedEvents {
	if n := len(log); n > 0 && log[n-1].Time == now {
		log[n-1].Events = append(log[n-1].Events, ev)
		return log
	}
	return append(log, TimedEvents{Time: now, Events: []Event{ev}})
}

// Cursor walks a TimedEvents log monotonically during replay. It never
// re-delivers an entry and never skips one while moving forward; rewinding
// requires an explicit Seek.
type Cursor struct {
	log  []TimedEvents
	next int
}

// NewCursor positions a cursor at the start of log.
func NewCursor(log []TimedEvents) *Cursor {
	return &Cursor{log: log, next: 0}
}

// Due returns, in order, every undelivered event whose timestamp is at or
// before now, advancing the cursor past the entries it returns.
func (c *Cursor) Due(now float64) []Event {
	var due []Event
	for c.next < len(c.log) && c.log[c.next].Time <= now {
		due = append(due, c.log[c.next].Events...)
		c.next++
	}
	return due
}

// Seek repositions the cursor so the next delivery starts at entry index idx.
func (c *Cursor) Seek(idx int) {
	if idx < 0 {
		idx = 0
	}
	if idx > len(c.log) {
		idx = len(c.log)
	}
	c.next = idx
}

// Next returns the index of the next undelivered entry.
func (c *Cursor) Next() int { return c.next }

// At returns the entry at idx, for delivering a snapshot's bound events.
func (c *Cursor) At(idx int) (TimedEvents, bool) {
	if idx < 0 || idx >= len(c.log) {
		return TimedEvents{}, false
	}
	return c.log[idx], true
}
