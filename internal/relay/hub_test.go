package relay

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/metrics"
)

type recordingSink struct {
	mu     sync.Mutex
	frames []string
}

func (s *recordingSink) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, string(frame))
	return nil
}

func (s *recordingSink) Frames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.frames...)
}

type brokenSink struct{}

func (brokenSink) Send([]byte) error { return errors.New("connection reset") }

func TestHub_UnicastToUnknownTargetSendsNothing(t *testing.T) {
	req := require.New(t)
	m := metrics.New()
	h := NewHub(HubConfig{Metrics: m})

	a := &recordingSink{}
	req.NoError(h.Connect("r1", "a", a, nil))

	req.False(h.Unicast("x", []byte("offer")))
	req.Empty(a.Frames())
	req.Equal(uint64(1), m.Get(metrics.UnicastTargetMissing))
}

func TestHub_UnicastPreservesSenderOrder(t *testing.T) {
	h := NewHub(HubConfig{})
	mb := NewMailbox(1024, 1<<20)
	require.NoError(t, h.Connect("r1", "b", mb, nil))

	for i := 0; i < 100; i++ {
		require.True(t, h.Unicast("b", []byte(fmt.Sprint(i))))
	}
	mb.Close()
	for i := 0; i < 100; i++ {
		f, ok := mb.Next()
		require.True(t, ok)
		require.Equal(t, fmt.Sprint(i), string(f))
	}
}

func TestHub_BroadcastIsolatesBrokenSink(t *testing.T) {
	req := require.New(t)
	m := metrics.New()
	h := NewHub(HubConfig{Metrics: m})

	sinks := []*recordingSink{{}, {}, {}}
	req.NoError(h.Connect("r1", "a", sinks[0], nil))
	req.NoError(h.Connect("r1", "broken", brokenSink{}, nil))
	req.NoError(h.Connect("r1", "b", sinks[1], nil))
	req.NoError(h.Connect("r2", "c", sinks[2], nil))

	d := h.Broadcast("r1", []byte("hi"))
	req.Equal(Delivery{Delivered: 2, Failed: 1}, d)
	req.Equal([]string{"hi"}, sinks[0].Frames())
	req.Equal([]string{"hi"}, sinks[1].Frames())
	req.Empty(sinks[2].Frames(), "other rooms are not reached")
	req.Equal(uint64(2), m.Get(metrics.BroadcastDelivered))
	req.Equal(uint64(1), m.Get(metrics.MailboxDropped))
}

func TestHub_BroadcastToClosedMailboxIsIsolated(t *testing.T) {
	h := NewHub(HubConfig{})
	closed := NewMailbox(4, 1024)
	closed.Close()
	live := &recordingSink{}

	require.NoError(t, h.Connect("r1", "gone", closed, nil))
	require.NoError(t, h.Connect("r1", "live", live, nil))

	require.Equal(t, Delivery{Delivered: 1, Failed: 1}, h.Broadcast("r1", []byte("x")))
	require.Equal(t, []string{"x"}, live.Frames())
}

func TestHub_DisconnectPrunesRoomAndIsIdempotent(t *testing.T) {
	req := require.New(t)
	h := NewHub(HubConfig{})

	req.NoError(h.Connect("r1", "a", &recordingSink{}, nil))
	req.NoError(h.Connect("r1", "b", &recordingSink{}, nil))

	h.Join("a", "Alice")
	dep, ok := h.Disconnect("a")
	req.True(ok)
	req.Equal(Departure{Room: "r1", Participant: Participant{ID: "a", Name: "Alice"}}, dep)
	req.Equal([]ParticipantID{"b"}, h.Members("r1"))

	_, ok = h.Disconnect("a")
	req.False(ok)

	h.Disconnect("b")
	req.Empty(h.Members("r1"))
	req.Equal(Stats{}, h.Stats())
}

func TestHub_JoinSetsNameAndParticipantsSnapshot(t *testing.T) {
	req := require.New(t)
	h := NewHub(HubConfig{})
	req.NoError(h.Connect("r1", "a", &recordingSink{}, nil))
	req.NoError(h.Connect("r1", "b", &recordingSink{}, nil))

	room, ok := h.Join("b", "Bob")
	req.True(ok)
	req.Equal("r1", room)

	_, ok = h.LookupName("a")
	req.False(ok)
	name, ok := h.LookupName("b")
	req.True(ok)
	req.Equal("Bob", name)

	req.Equal([]Participant{
		{ID: "a", Name: DefaultDisplayName},
		{ID: "b", Name: "Bob"},
	}, h.Participants("r1"))

	_, ok = h.Join("missing", "X")
	req.False(ok)
}

func TestHub_RejectsDuplicateAndFullRoom(t *testing.T) {
	req := require.New(t)
	m := metrics.New()
	h := NewHub(HubConfig{MaxParticipantsPerRoom: 2, Metrics: m})

	req.NoError(h.Connect("r1", "a", &recordingSink{}, nil))
	req.ErrorIs(h.Connect("r2", "a", &recordingSink{}, nil), ErrParticipantExists)
	req.NoError(h.Connect("r1", "b", &recordingSink{}, nil))
	req.ErrorIs(h.Connect("r1", "c", &recordingSink{}, nil), ErrRoomFull)
	req.NoError(h.Connect("r2", "c", &recordingSink{}, nil))

	_, ok := h.Resolve("c")
	req.True(ok)
	req.Equal(uint64(1), m.Get(metrics.DropReasonRoomFull))
}

// Registration and membership change together: a snapshot never shows a
// member that cannot be resolved.
func TestHub_ConcurrentSnapshotsAreConsistent(t *testing.T) {
	h := NewHub(HubConfig{})
	const workers, rounds = 8, 200

	stop := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, id := range h.Members("r1") {
				if _, ok := h.Resolve(id); !ok {
					// The participant may have left between the two calls; it
					// must then also be gone from the room.
					require.NotContains(t, h.Members("r1"), id)
				}
			}
			h.mu.RLock()
			for _, id := range h.directory.Members("r1") {
				_, ok := h.registry.Resolve(id)
				require.True(t, ok, "member %s not registered", id)
			}
			for id, e := range h.registry.entries {
				require.Contains(t, h.directory.Members(e.room), id)
			}
			h.mu.RUnlock()
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				id := ParticipantID(fmt.Sprintf("p%d-%d", w, i))
				require.NoError(t, h.Connect("r1", id, &recordingSink{}, nil))
				h.Join(id, "n")
				h.Broadcast("r1", []byte("x"))
				h.Disconnect(id)
			}
		}(w)
	}
	wg.Wait()
	close(stop)
	readers.Wait()

	require.Empty(t, h.Members("r1"))
	require.Equal(t, Stats{}, h.Stats())
}

func TestHub_GreetRunsBeforeBroadcastsReachNewMember(t *testing.T) {
	req := require.New(t)
	h := NewHub(HubConfig{})
	req.NoError(h.Connect("r1", "a", &recordingSink{}, nil))

	b := &recordingSink{}
	var snapshot []Participant
	req.NoError(h.Connect("r1", "b", b, func(ps []Participant) {
		snapshot = ps
		_ = b.Send([]byte("welcome"))
	}))
	h.Broadcast("r1", []byte("hello"))

	req.Equal([]Participant{{ID: "a", Name: DefaultDisplayName}, {ID: "b", Name: DefaultDisplayName}}, snapshot)
	req.Equal([]string{"welcome", "hello"}, b.Frames())
}
