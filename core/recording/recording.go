// Package recording defines the append-only container holding a captured
// session: two delta streams in independent tick domains, the discrete event
// log, the periodic snapshot stream, and session metadata.
package recording

import (
	"sort"

	"github.com/google/uuid"

	"github.com/dresswithpockets/sreplay/core/delta"
	"github.com/dresswithpockets/sreplay/core/event"
	"github.com/dresswithpockets/sreplay/core/input"
	"github.com/dresswithpockets/sreplay/errs"
)

// Snapshot is a periodic full-state checkpoint. The index fields point at the
// last entry of each stream already reflected at snapshot time, so replaying
// entries [idx+1 .. end] from the snapshot reconstructs any later tick. The
// delta at PhysicsDeltaIdx is the snapshot's bound delta: it may not yet be
// folded into the stored state copy and is re-applied after restoring it.
type Snapshot struct {
	PhysicsTick     int64
	PhysicsDeltaIdx int64
	IdleTime        float64
	IdleDeltaIdx    int64
	IdleEventIdx    int64
	IdleState       *input.InputState
	PhysicsState    *input.InputState
	Payload         any
}

// Recording aggregates the ordered streams of one captured session. It is
// mutated append-only while recording, optionally head-trimmed under a
// retention bound, then frozen and consumed read-only during playback.
type Recording struct {
	ID             string
	SnapshotPeriod float64
	MaxTick        int64
	Payload        any
	IdleDeltas     []delta.Delta
	IdleEvents     []event.TimedEvents
	PhysicsDeltas  []delta.Delta
	Snapshots      []Snapshot

	frozen bool
}

// DefaultSnapshotPeriod is the checkpoint interval used when a session does
// not configure one, in seconds of idle time.
const DefaultSnapshotPeriod = 1.0

// New creates an empty recording for a session beginning now.
func New(snapshotPeriod float64) *Recording {
	if snapshotPeriod <= 0 {
		snapshotPeriod = DefaultSnapshotPeriod
	}
	return &Recording{
		ID:             uuid.NewString(),
		SnapshotPeriod: snapshotPeriod,
		MaxTick:        0,
		Payload:        nil,
		IdleDeltas:     nil,
		IdleEvents:     nil,
		PhysicsDeltas:  nil,
		Snapshots:      nil,
		frozen:         false,
	}
}

// Freeze marks the recording read-only; further appends are rejected.
func (r *Recording) Freeze() { r.frozen = true }

// Frozen reports whether the recording has been frozen.
func (r *Recording) Frozen() bool { return r.frozen }

// Empty reports whether the recording holds no physics deltas. Replay cannot
// function against an empty recording.
func (r *Recording) Empty() bool { return r == nil || len(r.PhysicsDeltas) == 0 }

// AppendIdleDelta appends a non-empty delta to the idle-domain stream.
func (r *Recording) AppendIdleDelta(d delta.Delta) error {
	if err := r.appendable(); err != nil {
		return err
	}
	if d.Empty() {
		return errs.New("recording", errs.CodeInvalid, errs.WithMessage("empty delta must not be stored"))
	}
	r.IdleDeltas = append(r.IdleDeltas, d)
	return nil
}

// AppendPhysicsDelta appends a non-empty delta to the physics-domain stream.
func (r *Recording) AppendPhysicsDelta(d delta.Delta) error {
	if err := r.appendable(); err != nil {
		return err
	}
	if d.Empty() {
		return errs.New("recording", errs.CodeInvalid, errs.WithMessage("empty delta must not be stored"))
	}
	r.PhysicsDeltas = append(r.PhysicsDeltas, d)
	if d.Tick > r.MaxTick {
		r.MaxTick = d.Tick
	}
	return nil
}

// AppendEvent validates, deep-copies, and appends ev to the idle event log,
// coalescing entries recorded at the same idle time.
func (r *Recording) AppendEvent(now float64, ev event.Event) error {
	if err := r.appendable(); err != nil {
		return err
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	r.IdleEvents = event.Coalesce(r.IdleEvents, now, ev.Clone())
	return nil
}

// AppendSnapshot appends a checkpoint to the snapshot stream.
func (r *Recording) AppendSnapshot(s Snapshot) error {
	if err := r.appendable(); err != nil {
		return err
	}
	r.Snapshots = append(r.Snapshots, s)
	return nil
}

// ObserveTick raises MaxTick for ticks that produced no stored delta, keeping
// the recorded duration accurate for sparse sessions.
func (r *Recording) ObserveTick(tick int64) {
	if !r.frozen && tick > r.MaxTick {
		r.MaxTick = tick
	}
}

func (r *Recording) appendable() error {
	if r == nil {
		return errs.New("recording", errs.CodeInvalidRecording, errs.WithMessage("nil recording"))
	}
	if r.frozen {
		return errs.New("recording", errs.CodeInvalid, errs.WithMessage("recording is frozen"))
	}
	return nil
}

// FindSnapshot returns the index of the latest snapshot whose physics tick is
// at or before tick, or -1 when none qualifies.
func (r *Recording) FindSnapshot(tick int64) int {
	idx := sort.Search(len(r.Snapshots), func(i int) bool {
		return r.Snapshots[i].PhysicsTick > tick
	})
	return idx - 1
}
