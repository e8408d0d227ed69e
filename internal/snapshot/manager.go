// Package snapshot schedules periodic full-state checkpoints during an
// active recording session and applies the bounded retention policy.
package snapshot

import (
	"fmt"

	"github.com/dresswithpockets/sreplay/core/input"
	"github.com/dresswithpockets/sreplay/core/recording"
	"github.com/dresswithpockets/sreplay/internal/observability"
)

// PayloadFunc produces the host-side payload captured alongside a snapshot.
// A nil func records no payload.
type PayloadFunc func() any

// Rebase reports the stream re-basing a retention trim performed. An active
// session subtracts the offsets from its running clocks so that tick and time
// values it produces next stay aligned with the shortened streams.
type Rebase struct {
	TickOffset int64
	TimeOffset float64
	Trimmed    bool
	Took       bool
}

// Manager decides, once per fixed tick, whether the session is due for a
// checkpoint. The first observed tick is always due so every recording
// carries a snapshot at its head.
type Manager struct {
	period       float64
	last         float64
	maxSnapshots int
	payload      PayloadFunc
	metrics      *observability.SessionMetrics
}

// NewManager constructs a checkpoint scheduler. period is the minimum idle
// time between snapshots in seconds; maxSnapshots <= 0 disables retention
// trimming.
func NewManager(period float64, maxSnapshots int, payload PayloadFunc, metrics *observability.SessionMetrics) *Manager {
	if period <= 0 {
		period = recording.DefaultSnapshotPeriod
	}
	return &Manager{
		period:       period,
		last:         -period,
		maxSnapshots: maxSnapshots,
		payload:      payload,
		metrics:      metrics,
	}
}

// Period returns the configured checkpoint interval in seconds.
func (m *Manager) Period() float64 { return m.period }

// Observe runs at the top of a fixed tick, before the tick's deltas are
// flushed. When the checkpoint interval has elapsed it captures a snapshot
// bound to the current stream tails, then trims the recording to the
// retention bound.
func (m *Manager) Observe(rec *recording.Recording, tick int64, now float64, idleState, physicsState *input.InputState) (Rebase, error) {
	if rec == nil {
		return Rebase{}, fmt.Errorf("observe tick %d: nil recording", tick)
	}
	if now-m.last < m.period {
		return Rebase{}, nil
	}
	m.last = now

	var payload any
	if m.payload != nil {
		payload = m.payload()
	}
	snap := recording.Snapshot{
		PhysicsTick:     tick,
		PhysicsDeltaIdx: int64(len(rec.PhysicsDeltas)) - 1,
		IdleTime:        now,
		IdleDeltaIdx:    int64(len(rec.IdleDeltas)) - 1,
		IdleEventIdx:    int64(len(rec.IdleEvents)) - 1,
		IdleState:       idleState.Clone(),
		PhysicsState:    physicsState.Clone(),
		Payload:         payload,
	}
	if err := rec.AppendSnapshot(snap); err != nil {
		return Rebase{}, fmt.Errorf("observe tick %d: %w", tick, err)
	}
	if m.metrics != nil {
		m.metrics.IncrementSnapshots()
	}

	tickOff, timeOff, trimmed := rec.TrimTo(m.maxSnapshots)
	if trimmed {
		m.last -= timeOff
		if m.metrics != nil {
			m.metrics.IncrementTrims()
		}
		observability.Log().Debug("retention trim applied",
			observability.Field{Key: "tick_offset", Value: tickOff},
			observability.Field{Key: "time_offset", Value: timeOff},
			observability.Field{Key: "snapshots", Value: len(rec.Snapshots)},
		)
	}
	return Rebase{TickOffset: tickOff, TimeOffset: timeOff, Trimmed: trimmed, Took: true}, nil
}

// Reset prepares the manager for a fresh session, forcing a snapshot on the
// next observed tick.
func (m *Manager) Reset() {
	m.last = -m.period
}
