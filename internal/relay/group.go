package relay

import "github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/metrics"

// Group is the broadcast view of one room. Membership is the room's
// Directory entry: Hub.Connect subscribes and Hub.Disconnect unsubscribes, so
// the group appears with its first member and disappears with its last.
type Group struct {
	hub  *Hub
	room string
}

// Delivery counts the outcome of one broadcast.
type Delivery struct {
	Delivered int
	Failed    int
}

type recipient struct {
	id   ParticipantID
	sink Sink
}

func (g Group) Participants() []Participant {
	return g.hub.Participants(g.room)
}

// Broadcast sends frame to each current member. Recipients are resolved under
// the hub lock and sent to outside it; a failing sink is counted and skipped.
func (g Group) Broadcast(frame []byte) Delivery {
	var d Delivery
	for _, r := range g.hub.sinks(g.room) {
		if err := r.sink.Send(frame); err != nil {
			d.Failed++
			g.hub.log.Debug("broadcast_dropped", "room", g.room, "participant_id", r.id, "err", err)
			continue
		}
		d.Delivered++
	}
	g.hub.metrics.Add(metrics.BroadcastDelivered, uint64(d.Delivered))
	g.hub.metrics.Add(metrics.MailboxDropped, uint64(d.Failed))
	return d
}
