package observability

import "sync"

// Metrics provides counters, gauges, and histogram recording primitives.
type Metrics interface {
	IncCounter(name string, value float64, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

var defaultMetrics Metrics = noopMetrics{}

// SetMetrics overrides the global metrics implementation used by the system.
func SetMetrics(metrics Metrics) {
	if metrics == nil {
		defaultMetrics = noopMetrics{}
		return
	}
	defaultMetrics = metrics
}

// Telemetry returns the current global metrics collector.
func Telemetry() Metrics {
	return defaultMetrics
}

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, float64, map[string]string)       {}
func (noopMetrics) ObserveHistogram(string, float64, map[string]string) {}
func (noopMetrics) SetGauge(string, float64, map[string]string)         {}

// SessionMetricsSnapshot captures session-focused runtime counters.
type SessionMetricsSnapshot struct {
	DeltasAppended  map[string]int64 `json:"deltas_appended"`
	EventsCoalesced int64            `json:"events_coalesced"`
	SnapshotsTaken  int64            `json:"snapshots_taken"`
	TrimsApplied    int64            `json:"trims_applied"`
	SeekFolds       int64            `json:"seek_folds"`
	MissingPollKeys map[string]int64 `json:"missing_poll_keys"`
}

// SessionMetrics accumulates recorder and player counters in-memory for
// per-session reporting. Every increment is also mirrored to the global
// Metrics collector, so an installed exporter sees the same counters.
type SessionMetrics struct {
	mu      sync.Mutex
	session SessionMetricsSnapshot
}

// NewSessionMetrics constructs a metrics accumulator with empty maps.
func NewSessionMetrics() *SessionMetrics {
	metrics := new(SessionMetrics)
	metrics.session = SessionMetricsSnapshot{
		DeltasAppended:  make(map[string]int64),
		MissingPollKeys: make(map[string]int64),
	}
	return metrics
}

// IncrementDeltas counts a non-empty delta appended to the named stream.
func (m *SessionMetrics) IncrementDeltas(stream string) {
	m.mu.Lock()
	m.session.DeltasAppended[stream]++
	m.mu.Unlock()
	Telemetry().IncCounter("sreplay.deltas.appended", 1, map[string]string{"stream": stream})
}

// IncrementEventsCoalesced counts an event folded into an existing timestamp
// group.
func (m *SessionMetrics) IncrementEventsCoalesced() {
	m.mu.Lock()
	m.session.EventsCoalesced++
	m.mu.Unlock()
	Telemetry().IncCounter("sreplay.events.coalesced", 1, nil)
}

// IncrementSnapshots counts a new full-state checkpoint.
func (m *SessionMetrics) IncrementSnapshots() {
	m.mu.Lock()
	m.session.SnapshotsTaken++
	m.mu.Unlock()
	Telemetry().IncCounter("sreplay.snapshots.taken", 1, nil)
}

// IncrementTrims counts a retention trim that dropped history.
func (m *SessionMetrics) IncrementTrims() {
	m.mu.Lock()
	m.session.TrimsApplied++
	m.mu.Unlock()
	Telemetry().IncCounter("sreplay.trims.applied", 1, nil)
}

// IncrementSeekFolds counts a snapshot restore performed during seek.
func (m *SessionMetrics) IncrementSeekFolds() {
	m.mu.Lock()
	m.session.SeekFolds++
	m.mu.Unlock()
	Telemetry().IncCounter("sreplay.seek.folds", 1, nil)
}

// RecordMissingPollKey counts a poll for a key the replayed state never
// recorded.
func (m *SessionMetrics) RecordMissingPollKey(key string) {
	m.mu.Lock()
	m.session.MissingPollKeys[key]++
	m.mu.Unlock()
	Telemetry().IncCounter("sreplay.poll.missing", 1, map[string]string{"key": key})
}

// Snapshot copies the current session metrics state for reporting.
func (m *SessionMetrics) Snapshot() SessionMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := SessionMetricsSnapshot{
		DeltasAppended:  make(map[string]int64, len(m.session.DeltasAppended)),
		EventsCoalesced: m.session.EventsCoalesced,
		SnapshotsTaken:  m.session.SnapshotsTaken,
		TrimsApplied:    m.session.TrimsApplied,
		SeekFolds:       m.session.SeekFolds,
		MissingPollKeys: make(map[string]int64, len(m.session.MissingPollKeys)),
	}
	for k, v := range m.session.DeltasAppended {
		snapshot.DeltasAppended[k] = v
	}
	for k, v := range m.session.MissingPollKeys {
		snapshot.MissingPollKeys[k] = v
	}
	return snapshot
}
