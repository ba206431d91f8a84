package metrics

import "sync"

// Event counter names.
const (
	ConnectionsAccepted = "connections_accepted"
	ConnectionsClosed   = "connections_closed"
	ConnectionsRejected = "connections_rejected"
	MessagesReceived    = "messages_received"
	MessagesInvalid     = "messages_invalid"
	MessagesRateLimited = "messages_rate_limited"
	HandlerPanics       = "handler_panics"
	OriginsRejected     = "origins_rejected"

	SignalingDropped  = "signaling_dropped"
	SendFailures      = "send_failures"
	ConnectionsPruned = "connections_pruned"

	ChatAccepted       = "chat_accepted"
	ChatRejectedPrefix = "chat_rejected_"
	ChatPersistFailed  = "chat_persist_failed"
	ChatPersistDropped = "chat_persist_dropped"

	StreamsStarted = "streams_started"
	StreamsEnded   = "streams_ended"
)

// Gauge names.
const (
	GaugeViewers     = "viewers"
	GaugeChatMembers = "chat_members"
	GaugeStreamState = "stream_state"
)

// Metrics is a small concurrency-safe registry of monotonic counters and
// last-value gauges. The zero value is ready to use.
type Metrics struct {
	mu       sync.Mutex
	counters map[string]uint64
	gauges   map[string]int64
}

func New() *Metrics {
	return &Metrics{
		counters: make(map[string]uint64),
		gauges:   make(map[string]int64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.counters == nil {
		m.counters = make(map[string]uint64)
	}
	m.counters[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

func (m *Metrics) SetGauge(name string, v int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.gauges == nil {
		m.gauges = make(map[string]int64)
	}
	m.gauges[name] = v
	m.mu.Unlock()
}

func (m *Metrics) Gauge(name string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gauges[name]
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}

func (m *Metrics) GaugeSnapshot() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.gauges))
	for k, v := range m.gauges {
		out[k] = v
	}
	return out
}
