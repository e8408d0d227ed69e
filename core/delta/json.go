package delta

import (
	"fmt"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/dresswithpockets/sreplay/core/input"
)

type deltaEnvelope struct {
	Time    float64                    `json:"time"`
	Tick    int64                      `json:"tick"`
	Changes map[string]json.RawMessage `json:"changes"`
}

// MarshalJSON encodes the delta with enumerated string field keys. Keys are
// written in a stable sorted order so identical recordings serialize to
// identical bytes.
func (d Delta) MarshalJSON() ([]byte, error) {
	keys := make([]FieldKey, 0, len(d.Changes))
	for key := range d.Changes {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	changes := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		value := d.Changes[key]
		if key == FieldPointerMode {
			value = value.(input.PointerMode).String()
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal delta field %s: %w", key, err)
		}
		changes[key.String()] = encoded
	}
	return json.Marshal(deltaEnvelope{Time: d.Time, Tick: d.Tick, Changes: changes})
}

// UnmarshalJSON decodes the enumerated string field keys back into typed
// change values.
func (d *Delta) UnmarshalJSON(data []byte) error {
	var env deltaEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshal delta: %w", err)
	}

	decoded := Delta{Time: env.Time, Tick: env.Tick, Changes: nil}
	if len(env.Changes) > 0 {
		decoded.Changes = make(map[FieldKey]any, len(env.Changes))
	}
	for name, raw := range env.Changes {
		key, err := ParseFieldKey(name)
		if err != nil {
			return err
		}
		value, err := decodeChange(key, raw)
		if err != nil {
			return err
		}
		decoded.Changes[key] = value
	}
	*d = decoded
	return nil
}

func decodeChange(key FieldKey, raw json.RawMessage) (any, error) {
	switch key {
	case FieldPointerMode:
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		return input.ParsePointerMode(name)
	case FieldPointerVelocity, FieldPointerScreenVelocity:
		var v input.Vec2
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		return v, nil
	case FieldPointerButtonMask:
		var mask uint32
		if err := json.Unmarshal(raw, &mask); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		return mask, nil
	case FieldCaptures:
		var captures map[string]any
		if err := json.Unmarshal(raw, &captures); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		return captures, nil
	case FieldActionRawStrength, FieldActionStrength,
		FieldActionExactRawStrength, FieldActionExactStrength:
		var entries []ActionFloat
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		return entries, nil
	case FieldActionJustPressed, FieldActionJustReleased, FieldActionPressed,
		FieldActionExactJustPressed, FieldActionExactJustReleased, FieldActionExactPressed:
		var entries []ActionBool
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		return entries, nil
	default:
		return nil, fmt.Errorf("delta: no decoder for field key %s", key)
	}
}
