//go:generate go run go.uber.org/mock/mockgen -source=deps.go -destination=../mocks/mock_roomapi.go -package=mocks

package roomapi

import (
	"context"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/relay"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/store"
)

// Recorder starts captures and hands out download links.
type Recorder interface {
	Start(ctx context.Context, roomID, sourceURL string, dur time.Duration) (store.Recording, error)
	List(roomID string) ([]store.Recording, error)
	Link(ctx context.Context, id string) (string, error)
}

// Presence reports who is connected to a room right now.
type Presence interface {
	Participants(room string) []relay.Participant
}
