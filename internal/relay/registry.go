package relay

import "github.com/google/uuid"

// DefaultDisplayName is reported for participants that have not sent a join
// message yet.
const DefaultDisplayName = "Anonymous"

type ParticipantID string

func NewParticipantID() ParticipantID {
	return ParticipantID(uuid.NewString())
}

type registryEntry struct {
	sink Sink
	name string
	room string
}

// Registry maps participant ids to their outbound sink and display name.
// It is not synchronized; Hub guards it.
type Registry struct {
	entries map[ParticipantID]*registryEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[ParticipantID]*registryEntry)}
}

// Register reports false if id is already present.
func (r *Registry) Register(id ParticipantID, room string, sink Sink) bool {
	if _, ok := r.entries[id]; ok {
		return false
	}
	r.entries[id] = &registryEntry{sink: sink, room: room}
	return true
}

// Unregister removes id and returns the room it was registered in.
func (r *Registry) Unregister(id ParticipantID) (room string, ok bool) {
	e, ok := r.entries[id]
	if !ok {
		return "", false
	}
	delete(r.entries, id)
	return e.room, true
}

// Resolve returns the sink for id. A miss means the participant is gone.
func (r *Registry) Resolve(id ParticipantID) (Sink, bool) {
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.sink, true
}

func (r *Registry) SetDisplayName(id ParticipantID, name string) bool {
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.name = name
	return true
}

func (r *Registry) DisplayName(id ParticipantID) string {
	if e, ok := r.entries[id]; ok && e.name != "" {
		return e.name
	}
	return DefaultDisplayName
}

// HasName reports whether a join message set a display name for id.
func (r *Registry) HasName(id ParticipantID) bool {
	e, ok := r.entries[id]
	return ok && e.name != ""
}

func (r *Registry) Room(id ParticipantID) (string, bool) {
	e, ok := r.entries[id]
	if !ok {
		return "", false
	}
	return e.room, true
}

func (r *Registry) Len() int {
	return len(r.entries)
}
