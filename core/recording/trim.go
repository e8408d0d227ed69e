package recording

import (
	"github.com/dresswithpockets/sreplay/core/delta"
	"github.com/dresswithpockets/sreplay/core/event"
)

// TrimTo enforces a bounded snapshot retention policy. When the snapshot
// count exceeds maxSnapshots, the oldest snapshots are dropped and every
// remaining stream is re-based against the new head snapshot: streams are
// sliced to begin at the head's bound entries, and all times, ticks, and
// indices are shifted so index 0 of every stream corresponds to tick/time 0
// of the now-shorter reconstructable window.
//
// The returned offsets are the head's pre-trim physics tick and idle time;
// an active recording session subtracts them from its running clocks to stay
// consistent with the re-based streams. trimmed is false when no trim was
// needed.
func (r *Recording) TrimTo(maxSnapshots int) (tickOffset int64, timeOffset float64, trimmed bool) {
	if maxSnapshots <= 0 || len(r.Snapshots) <= maxSnapshots {
		return 0, 0, false
	}

	drop := len(r.Snapshots) - maxSnapshots
	head := r.Snapshots[drop]

	// The head's bound entries stay: replay re-applies the delta stored at a
	// snapshot's own index after restoring its state copy.
	physStart := clampIndex(head.PhysicsDeltaIdx)
	idleStart := clampIndex(head.IdleDeltaIdx)
	eventStart := clampIndex(head.IdleEventIdx)

	tickOffset = head.PhysicsTick
	timeOffset = head.IdleTime

	r.PhysicsDeltas = append([]delta.Delta(nil), r.PhysicsDeltas[physStart:]...)
	r.IdleDeltas = append([]delta.Delta(nil), r.IdleDeltas[idleStart:]...)
	r.Snapshots = append([]Snapshot(nil), r.Snapshots[drop:]...)

	for i := range r.PhysicsDeltas {
		r.PhysicsDeltas[i].Tick -= tickOffset
		r.PhysicsDeltas[i].Time -= timeOffset
	}
	for i := range r.IdleDeltas {
		r.IdleDeltas[i].Tick -= tickOffset
		r.IdleDeltas[i].Time -= timeOffset
	}
	rebased := make([]event.TimedEvents, 0, len(r.IdleEvents)-int(eventStart))
	for _, te := range r.IdleEvents[eventStart:] {
		te.Time -= timeOffset
		rebased = append(rebased, te)
	}
	r.IdleEvents = rebased

	for i := range r.Snapshots {
		r.Snapshots[i].PhysicsTick -= tickOffset
		r.Snapshots[i].IdleTime -= timeOffset
		r.Snapshots[i].PhysicsDeltaIdx -= physStart
		r.Snapshots[i].IdleDeltaIdx -= idleStart
		r.Snapshots[i].IdleEventIdx -= eventStart
	}
	r.MaxTick -= tickOffset

	return tickOffset, timeOffset, true
}

func clampIndex(idx int64) int64 {
	if idx < 0 {
		return 0
	}
	return idx
}
