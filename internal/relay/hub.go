package relay

import (
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/metrics"
)

type HubConfig struct {
	// MaxParticipantsPerRoom caps room size. Zero means unlimited.
	MaxParticipantsPerRoom int
	Metrics                *metrics.Metrics
	Logger                 *slog.Logger
}

// Participant is the public view of a connected participant. The JSON form
// is the entry format of participant_list messages.
type Participant struct {
	ID   ParticipantID `json:"user_id"`
	Name string        `json:"username"`
}

// Hub owns the process-wide Registry and Directory. Every mutation takes the
// same lock, so registration and room membership change together.
type Hub struct {
	maxPerRoom int
	metrics    *metrics.Metrics
	log        *slog.Logger

	mu        sync.RWMutex
	registry  *Registry
	directory *Directory
}

func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		maxPerRoom: cfg.MaxParticipantsPerRoom,
		metrics:    cfg.Metrics,
		log:        logger,
		registry:   NewRegistry(),
		directory:  NewDirectory(),
	}
}

// Connect registers id with its sink and adds it to room. greet, if not nil,
// runs under the hub lock with the room snapshot including id, so frames it
// sends to sink precede any broadcast.
func (h *Hub) Connect(room string, id ParticipantID, sink Sink, greet func([]Participant)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.registry.Resolve(id); ok {
		return ErrParticipantExists
	}
	if h.maxPerRoom > 0 && h.directory.Size(room) >= h.maxPerRoom {
		h.metrics.Inc(metrics.DropReasonRoomFull)
		return ErrRoomFull
	}
	h.registry.Register(id, room, sink)
	h.directory.Join(room, id)
	if greet != nil {
		greet(h.participantsLocked(room))
	}
	return nil
}

// Departure describes a participant removed by Disconnect.
type Departure struct {
	Room        string
	Participant Participant
}

// Disconnect removes id from the registry and from its room. Repeated calls
// report false.
func (h *Hub) Disconnect(id ParticipantID) (Departure, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	name := h.registry.DisplayName(id)
	room, ok := h.registry.Unregister(id)
	if !ok {
		return Departure{}, false
	}
	h.directory.Leave(room, id)
	return Departure{Room: room, Participant: Participant{ID: id, Name: name}}, true
}

// Join records the display name of id and makes sure it is still a member of
// its room. A blank name keeps the default.
func (h *Hub) Join(id ParticipantID, name string) (room string, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok = h.registry.Room(id)
	if !ok {
		return "", false
	}
	if name != "" {
		h.registry.SetDisplayName(id, name)
	}
	h.directory.Join(room, id)
	return room, true
}

func (h *Hub) Resolve(id ParticipantID) (Sink, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.registry.Resolve(id)
}

func (h *Hub) DisplayName(id ParticipantID) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.registry.DisplayName(id)
}

// LookupName returns the name set by a join message, if any.
func (h *Hub) LookupName(id ParticipantID) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.registry.HasName(id) {
		return "", false
	}
	return h.registry.DisplayName(id), true
}

// Members returns the ids in room in join order.
func (h *Hub) Members(room string) []ParticipantID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.directory.Members(room)
}

// Participants returns a consistent snapshot of room in join order.
func (h *Hub) Participants(room string) []Participant {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.participantsLocked(room)
}

func (h *Hub) participantsLocked(room string) []Participant {
	return lo.Map(h.directory.Members(room), func(id ParticipantID, _ int) Participant {
		return Participant{ID: id, Name: h.registry.DisplayName(id)}
	})
}

type Stats struct {
	Participants int `json:"participants"`
	Rooms        int `json:"rooms"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{Participants: h.registry.Len(), Rooms: h.directory.Len()}
}

// Unicast sends frame to one participant. It reports whether the frame was
// queued; an unknown target is not an error.
func (h *Hub) Unicast(to ParticipantID, frame []byte) bool {
	sink, ok := h.Resolve(to)
	if !ok {
		h.metrics.Inc(metrics.UnicastTargetMissing)
		return false
	}
	if err := sink.Send(frame); err != nil {
		h.metrics.Inc(metrics.MailboxDropped)
		h.log.Debug("unicast_dropped", "participant_id", to, "err", err)
		return false
	}
	h.metrics.Inc(metrics.UnicastDelivered)
	return true
}

// Broadcast sends frame to every member of room.
func (h *Hub) Broadcast(room string, frame []byte) Delivery {
	return h.Group(room).Broadcast(frame)
}

func (h *Hub) Group(room string) Group {
	return Group{hub: h, room: room}
}

func (h *Hub) sinks(room string) []recipient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.directory.Members(room)
	out := make([]recipient, 0, len(members))
	for _, id := range members {
		if sink, ok := h.registry.Resolve(id); ok {
			out = append(out, recipient{id: id, sink: sink})
		}
	}
	return out
}
