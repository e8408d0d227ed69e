package delta

import (
	"sort"

	"github.com/dresswithpockets/sreplay/core/input"
)

// Encoder accumulates the change set for one tick of one domain. Sampling
// compares against the previous recorded state, mutates that cache in place,
// and notes changed fields in a pending set; Flush materializes the pending
// set as a Delta and clears it for the next tick.
//
// The previous-state cache is also the value source for live polling during
// recording, so the recorded stream and the poll surface can never diverge.
type Encoder struct {
	prev *input.InputState

	scalars  map[FieldKey]any
	floats   map[FieldKey]map[string]float64
	bools    map[FieldKey]map[string]bool
	captures map[string]any
}

// NewEncoder returns an encoder with an empty previous-state cache.
func NewEncoder() *Encoder {
	return &Encoder{
		prev:     input.NewInputState(),
		scalars:  make(map[FieldKey]any),
		floats:   make(map[FieldKey]map[string]float64),
		bools:    make(map[FieldKey]map[string]bool),
		captures: nil,
	}
}

// State exposes the previous-state cache, which during recording is the
// authoritative recorded value for every tracked field.
func (e *Encoder) State() *input.InputState { return e.prev }

// Reset replaces the cache with a deep copy of state and discards any
// pending changes.
func (e *Encoder) Reset(state *input.InputState) {
	e.prev = state.Clone()
	e.scalars = make(map[FieldKey]any)
	e.floats = make(map[FieldKey]map[string]float64)
	e.bools = make(map[FieldKey]map[string]bool)
	e.captures = nil
}

// Sample diffs a freshly polled state against the cache, noting every field
// whose value differs. Sampling twice within one tick overwrites the pending
// entries for re-sampled fields, so the last write of the tick wins.
func (e *Encoder) Sample(current *input.InputState) {
	if current.PointerMode != e.prev.PointerMode {
		e.scalars[FieldPointerMode] = current.PointerMode
		e.prev.PointerMode = current.PointerMode
	}
	if current.PointerVelocity != e.prev.PointerVelocity {
		e.scalars[FieldPointerVelocity] = current.PointerVelocity
		e.prev.PointerVelocity = current.PointerVelocity
	}
	if current.PointerScreenVelocity != e.prev.PointerScreenVelocity {
		e.scalars[FieldPointerScreenVelocity] = current.PointerScreenVelocity
		e.prev.PointerScreenVelocity = current.PointerScreenVelocity
	}
	if current.PointerButtonMask != e.prev.PointerButtonMask {
		e.scalars[FieldPointerButtonMask] = current.PointerButtonMask
		e.prev.PointerButtonMask = current.PointerButtonMask
	}

	for name, st := range current.Actions {
		e.SampleAction(name, st, false)
	}
	for name, st := range current.ActionsExact {
		e.SampleAction(name, st, true)
	}

	for key, value := range current.Captures {
		e.SampleCapture(key, value)
	}
}

// SampleAction diffs one action's sampled state against the cache, field by
// field. An action with no prior recorded state compares against the zero
// ActionState, which is exactly what replay's lazy creation produces, so the
// seed entries cover only the properties that actually carry a value. Each
// property is tracked independently: an action can appear in a delta for
// strength without appearing for pressed. Transient edge flags compare
// against false and record only rising edges; their falling edge is implied
// by the one-tick lifetime the replay engine enforces.
func (e *Encoder) SampleAction(name string, sampled input.ActionState, exact bool) {
	table := actionTable(e.prev, exact)
	cached := table[name]

	for _, field := range floatFields {
		if field.exact != exact {
			continue
		}
		value := field.get(sampled)
		if field.get(cached) != value {
			pending := e.floats[field.key]
			if pending == nil {
				pending = make(map[string]float64)
				e.floats[field.key] = pending
			}
			pending[name] = value
		}
	}
	for _, field := range boolFields {
		if field.exact != exact {
			continue
		}
		value := field.get(sampled)
		if field.transient {
			if value {
				pending := e.bools[field.key]
				if pending == nil {
					pending = make(map[string]bool)
					e.bools[field.key] = pending
				}
				pending[name] = true
			}
			// Cache edge flags as cleared so next tick's false is no change.
			field.set(&sampled, false)
			continue
		}
		if field.get(cached) != value {
			pending := e.bools[field.key]
			if pending == nil {
				pending = make(map[string]bool)
				e.bools[field.key] = pending
			}
			pending[name] = value
		}
	}

	table[name] = sampled
}

// SampleCapture diffs one capture value against the cache, emitting a change
// only when the key is new or its value differs.
func (e *Encoder) SampleCapture(key string, value any) {
	if cached, ok := e.prev.Captures[key]; ok && input.CaptureEqual(cached, value) {
		return
	}
	if e.captures == nil {
		e.captures = make(map[string]any)
	}
	e.captures[key] = value
	e.prev.SetCapture(key, value)
}

// Flush materializes the pending change set as a Delta stamped with the
// domain time and tick, clearing the pending set. The returned bool is false
// when nothing changed; an empty delta must not be appended to a recording.
func (e *Encoder) Flush(time float64, tick int64) (Delta, bool) {
	if len(e.scalars) == 0 && len(e.floats) == 0 && len(e.bools) == 0 && len(e.captures) == 0 {
		return Delta{Time: time, Tick: tick, Changes: nil}, false
	}

	changes := make(map[FieldKey]any, len(e.scalars)+len(e.floats)+len(e.bools)+1)
	for key, value := range e.scalars {
		changes[key] = value
	}
	for key, pending := range e.floats {
		entries := make([]ActionFloat, 0, len(pending))
		for name, value := range pending {
			entries = append(entries, ActionFloat{Action: name, Value: value})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Action < entries[j].Action })
		changes[key] = entries
	}
	for key, pending := range e.bools {
		entries := make([]ActionBool, 0, len(pending))
		for name, value := range pending {
			entries = append(entries, ActionBool{Action: name, Value: value})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Action < entries[j].Action })
		changes[key] = entries
	}
	if len(e.captures) > 0 {
		captures := make(map[string]any, len(e.captures))
		for key, value := range e.captures {
			captures[key] = value
		}
		changes[FieldCaptures] = captures
	}

	e.scalars = make(map[FieldKey]any)
	e.floats = make(map[FieldKey]map[string]float64)
	e.bools = make(map[FieldKey]map[string]bool)
	e.captures = nil

	return Delta{Time: time, Tick: tick, Changes: changes}, true
}
