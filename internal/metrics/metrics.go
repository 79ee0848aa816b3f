package metrics

import "sync"

// Event names. Counters are created lazily on first increment.
const (
	SignalingConnections   = "signaling_connections"
	SignalingDisconnects   = "signaling_disconnects"
	AuthFailure            = "auth_failure"
	OriginRejected         = "origin_rejected"
	MessagesIn             = "messages_in"
	MessagesMalformed      = "messages_malformed"
	MessagesUnknownType    = "messages_unknown_type"
	DropReasonRateLimited  = "rate_limited"
	DropReasonRoomFull     = "room_full"
	UnicastDelivered       = "unicast_delivered"
	UnicastTargetMissing   = "unicast_target_missing"
	BroadcastDelivered     = "broadcast_delivered"
	MailboxDropped         = "mailbox_dropped"
	RoomsCreated           = "rooms_created"
	RecordingsStarted      = "recordings_started"
	RecordingsFailed       = "recordings_failed"
	RecordingLinksIssued   = "recording_links_issued"
	RecordingLinksRejected = "recording_links_rejected"
	RecordingSourceDenied  = "recording_source_denied"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// It backs the /metrics endpoint and keeps relay accounting observable in
// tests without a metrics backend.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil || delta == 0 {
		return
	}
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
