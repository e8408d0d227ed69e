package recording

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/dresswithpockets/sreplay/core/delta"
	"github.com/dresswithpockets/sreplay/core/event"
	"github.com/dresswithpockets/sreplay/core/input"
	"github.com/dresswithpockets/sreplay/errs"
)

type snapshotEnvelope struct {
	PhysicsTick     int64             `json:"physics_tick"`
	PhysicsDeltaIdx int64             `json:"physics_delta_idx"`
	IdleTime        float64           `json:"idle_time"`
	IdleDeltaIdx    int64             `json:"idle_delta_idx"`
	IdleEventIdx    int64             `json:"idle_event_idx"`
	IdleState       *input.InputState `json:"idle_input_state"`
	PhysicsState    *input.InputState `json:"physics_input_state"`
	Payload         any               `json:"user_payload,omitempty"`
}

type recordingEnvelope struct {
	ID             string              `json:"id"`
	SnapshotPeriod float64             `json:"snapshot_period"`
	MaxTick        int64               `json:"max_tick"`
	Payload        any                 `json:"user_payload,omitempty"`
	IdleDeltas     []delta.Delta       `json:"idle_deltas"`
	IdleEvents     []event.TimedEvents `json:"idle_events"`
	PhysicsDeltas  []delta.Delta       `json:"physics_deltas"`
	Snapshots      []snapshotEnvelope  `json:"snapshots"`
}

// Encode serializes the recording as JSON, preserving stream ordering and
// index relationships exactly.
func Encode(r *Recording) ([]byte, error) {
	if r == nil {
		return nil, errs.New("recording/codec", errs.CodeInvalidRecording, errs.WithMessage("nil recording"))
	}
	env := recordingEnvelope{
		ID:             r.ID,
		SnapshotPeriod: r.SnapshotPeriod,
		MaxTick:        r.MaxTick,
		Payload:        r.Payload,
		IdleDeltas:     r.IdleDeltas,
		IdleEvents:     r.IdleEvents,
		PhysicsDeltas:  r.PhysicsDeltas,
		Snapshots:      make([]snapshotEnvelope, 0, len(r.Snapshots)),
	}
	for _, s := range r.Snapshots {
		env.Snapshots = append(env.Snapshots, snapshotEnvelope{
			PhysicsTick:     s.PhysicsTick,
			PhysicsDeltaIdx: s.PhysicsDeltaIdx,
			IdleTime:        s.IdleTime,
			IdleDeltaIdx:    s.IdleDeltaIdx,
			IdleEventIdx:    s.IdleEventIdx,
			IdleState:       s.IdleState,
			PhysicsState:    s.PhysicsState,
			Payload:         s.Payload,
		})
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, errs.New("recording/codec", errs.CodeInvalid, errs.WithCause(err),
			errs.WithMessage("encode recording"))
	}
	return data, nil
}

// Decode deserializes a recording previously produced by Encode. Events with
// kinds outside the whitelist fail decoding, mirroring the live recording
// boundary. The decoded recording is frozen: it is a replay artifact, not an
// active session.
func Decode(data []byte) (*Recording, error) {
	var env recordingEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errs.New("recording/codec", errs.CodeCorruptRecording, errs.WithCause(err),
			errs.WithMessage("decode recording"))
	}
	r := &Recording{
		ID:             env.ID,
		SnapshotPeriod: env.SnapshotPeriod,
		MaxTick:        env.MaxTick,
		Payload:        env.Payload,
		IdleDeltas:     env.IdleDeltas,
		IdleEvents:     env.IdleEvents,
		PhysicsDeltas:  env.PhysicsDeltas,
		Snapshots:      make([]Snapshot, 0, len(env.Snapshots)),
		frozen:         true,
	}
	for _, s := range env.Snapshots {
		idle := s.IdleState
		if idle == nil {
			idle = input.NewInputState()
		}
		physics := s.PhysicsState
		if physics == nil {
			physics = input.NewInputState()
		}
		normalizeState(idle)
		normalizeState(physics)
		r.Snapshots = append(r.Snapshots, Snapshot{
			PhysicsTick:     s.PhysicsTick,
			PhysicsDeltaIdx: s.PhysicsDeltaIdx,
			IdleTime:        s.IdleTime,
			IdleDeltaIdx:    s.IdleDeltaIdx,
			IdleEventIdx:    s.IdleEventIdx,
			IdleState:       idle,
			PhysicsState:    physics,
			Payload:         s.Payload,
		})
	}
	return r, nil
}

// ToMap renders the recording as a nested key-value structure.
func ToMap(r *Recording) (map[string]any, error) {
	data, err := Encode(r)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("recording to map: %w", err)
	}
	return out, nil
}

// FromMap reconstructs a recording from its nested key-value form.
func FromMap(m map[string]any) (*Recording, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("recording from map: %w", err)
	}
	return Decode(data)
}

func normalizeState(s *input.InputState) {
	if s.Actions == nil {
		s.Actions = make(map[string]input.ActionState)
	}
	if s.ActionsExact == nil {
		s.ActionsExact = make(map[string]input.ActionState)
	}
}
