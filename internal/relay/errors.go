package relay

import "errors"

var (
	ErrMailboxClosed = errors.New("mailbox closed")
	ErrMailboxFull   = errors.New("mailbox full")
	ErrRoomFull      = errors.New("room is full")
	// ErrParticipantExists is returned by Hub.Connect when the id is already
	// registered. Participant ids are never reused.
	ErrParticipantExists = errors.New("participant already connected")
)
