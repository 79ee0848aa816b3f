package signaling

import (
	"log/slog"
	"strings"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/relay"
)

// Sender identifies the session a message came from.
type Sender struct {
	ID   relay.ParticipantID
	Room string
}

// Router applies inbound messages to the hub. It holds no per-session state.
type Router struct {
	hub     *relay.Hub
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewRouter(hub *relay.Hub, m *metrics.Metrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Router{hub: hub, metrics: m, log: logger}
}

// Route handles one inbound frame from sender. A *MessageError means the
// frame was rejected; the caller reports it and carries on. Unknown types and
// unresolvable unicast targets are dropped without error.
func (rt *Router) Route(from Sender, data []byte) error {
	t, err := parseEnvelope(data)
	if err != nil {
		rt.metrics.Inc(metrics.MessagesMalformed)
		return err
	}

	switch t {
	case MessageTypeJoin:
		err = rt.join(from, data)
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeICECandidate:
		err = rt.signal(from, t, data)
	case MessageTypeChatMessage:
		err = rt.chat(from, data)
	case MessageTypeRecording:
		err = rt.recording(from, data)
	case MessageTypeAuth:
		// Already authenticated; clients that always send auth are tolerated.
	default:
		rt.metrics.Inc(metrics.MessagesUnknownType)
		rt.log.Debug("signaling_unknown_type", "participant_id", from.ID, "type", t)
	}
	if err != nil {
		rt.metrics.Inc(metrics.MessagesMalformed)
	}
	return err
}

func (rt *Router) join(from Sender, data []byte) error {
	var msg joinMessage
	if err := decodeBody(MessageTypeJoin, data, &msg); err != nil {
		return err
	}
	room, ok := rt.hub.Join(from.ID, strings.TrimSpace(msg.Username))
	if !ok {
		return nil
	}
	g := rt.hub.Group(room)
	g.Broadcast(participantListFrame(g.Participants()))
	return nil
}

func (rt *Router) signal(from Sender, t MessageType, data []byte) error {
	var msg signalMessage
	if err := decodeBody(t, data, &msg); err != nil {
		return err
	}
	// Target first: a message for someone who is not connected is dropped
	// whatever its payload looks like.
	if _, ok := rt.hub.Resolve(msg.To); !ok {
		rt.metrics.Inc(metrics.UnicastTargetMissing)
		rt.log.Debug("signaling_unicast_dropped", "participant_id", from.ID, "to", msg.To, "type", t)
		return nil
	}
	payload, err := msg.payload(t)
	if err != nil {
		return err
	}

	out := relayedSignalMessage{
		Type:         t,
		From:         from.ID,
		FromUsername: rt.hub.DisplayName(from.ID),
	}
	switch t {
	case MessageTypeOffer:
		out.Offer = payload
	case MessageTypeAnswer:
		out.Answer = payload
	case MessageTypeICECandidate:
		out.Candidate = payload
	}

	if !rt.hub.Unicast(msg.To, encode(out)) {
		rt.log.Debug("signaling_unicast_dropped", "participant_id", from.ID, "to", msg.To, "type", t)
	}
	return nil
}

func (rt *Router) chat(from Sender, data []byte) error {
	var msg chatMessage
	if err := decodeBody(MessageTypeChatMessage, data, &msg); err != nil {
		return err
	}
	rt.hub.Broadcast(from.Room, encode(relayedChatMessage{
		Type:         MessageTypeChatMessage,
		Message:      msg.Message,
		From:         from.ID,
		FromUsername: rt.hub.DisplayName(from.ID),
	}))
	return nil
}

func (rt *Router) recording(from Sender, data []byte) error {
	var msg recordingMessage
	if err := decodeBody(MessageTypeRecording, data, &msg); err != nil {
		return err
	}
	by, ok := rt.hub.LookupName(from.ID)
	if !ok {
		by = unknownRecorder
	}
	rt.hub.Broadcast(from.Room, encode(relayedRecordingMessage{
		Type:   MessageTypeRecording,
		Status: msg.Status,
		By:     by,
	}))
	return nil
}
