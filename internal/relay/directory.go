package relay

import "github.com/samber/lo"

// Directory maps room names to their members in join order. Rooms exist only
// while they have at least one member. It is not synchronized; Hub guards it.
type Directory struct {
	rooms map[string][]ParticipantID
}

func NewDirectory() *Directory {
	return &Directory{rooms: make(map[string][]ParticipantID)}
}

// Join adds id to room, creating the room if needed. Joining twice is a no-op.
func (d *Directory) Join(room string, id ParticipantID) {
	members := d.rooms[room]
	if lo.Contains(members, id) {
		return
	}
	d.rooms[room] = append(members, id)
}

// Leave removes id from room and drops the room once it is empty. Leaving a
// room one is not in is a no-op.
func (d *Directory) Leave(room string, id ParticipantID) {
	members, ok := d.rooms[room]
	if !ok {
		return
	}
	members = lo.Without(members, id)
	if len(members) == 0 {
		delete(d.rooms, room)
		return
	}
	d.rooms[room] = members
}

// Members returns a copy of room's members in join order.
func (d *Directory) Members(room string) []ParticipantID {
	members := d.rooms[room]
	if len(members) == 0 {
		return nil
	}
	out := make([]ParticipantID, len(members))
	copy(out, members)
	return out
}

func (d *Directory) Size(room string) int {
	return len(d.rooms[room])
}

// Len returns the number of non-empty rooms.
func (d *Directory) Len() int {
	return len(d.rooms)
}
