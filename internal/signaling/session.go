package signaling

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/auth"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/relay"
)

const wsWriteWait = 1 * time.Second

type sessionState int32

const (
	stateConnecting sessionState = iota
	stateActive
	stateDisconnected
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateActive:
		return "active"
	case stateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type sessionLimits struct {
	authTimeout       time.Duration
	idleTimeout       time.Duration
	pingInterval      time.Duration
	maxMessageBytes   int64
	messagesPerSecond int
	mailboxFrames     int
	mailboxBytes      int
}

// Session is one participant's connection. Its goroutines:
//   - run: authenticates, joins the room, then reads and routes messages;
//   - writeLoop: the only writer of data frames, draining the mailbox;
//   - pingLoop: keepalive pings.
//
// Teardown runs once, whichever side ends the connection.
type Session struct {
	id   relay.ParticipantID
	room string
	conn *websocket.Conn
	req  *http.Request

	hub        *relay.Hub
	router     *Router
	authorizer Authorizer
	metrics    *metrics.Metrics
	log        *slog.Logger
	limits     sessionLimits

	mailbox *relay.Mailbox
	limiter *rate.Limiter

	state atomic.Int32

	closeMu     sync.Mutex
	closeCode   int
	closeReason string

	teardownOnce sync.Once
	done         chan struct{}
	writerDone   chan struct{}
}

func (s *Session) ID() relay.ParticipantID { return s.id }

func (s *Session) Room() string { return s.room }

func (s *Session) currentState() sessionState { return sessionState(s.state.Load()) }

func (s *Session) run() {
	go s.writeLoop()
	defer s.teardown()

	s.conn.SetReadLimit(s.limits.maxMessageBytes)

	if !s.authenticate() {
		return
	}
	if err := s.connect(); err != nil {
		return
	}

	_ = s.conn.SetReadDeadline(time.Now().Add(s.limits.idleTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.limits.idleTimeout))
	})
	go s.pingLoop()

	from := Sender{ID: s.id, Room: s.room}
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			switch {
			case isTimeout(err):
				s.log.Info("signaling_idle_timeout")
				s.closeWith(websocket.CloseNormalClosure, "idle timeout")
			case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				s.log.Debug("signaling_read_failed", "err", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.limits.idleTimeout))
		s.metrics.Inc(metrics.MessagesIn)

		// Rate limit after reading so the frame is consumed and the session
		// stays usable.
		if !s.limiter.Allow() {
			s.metrics.Inc(metrics.DropReasonRateLimited)
			s.notify(errorFrame("rate limit exceeded"))
			continue
		}
		if msgType != websocket.TextMessage {
			s.metrics.Inc(metrics.MessagesMalformed)
			s.notify(errorFrame("expected text message"))
			continue
		}

		if err := s.router.Route(from, data); err != nil {
			s.log.Debug("signaling_message_rejected", "err", err)
			s.notify(errorFrame(err.Error()))
		}
	}
}

// authenticate accepts credentials from the request, or else from a first
// {type:"auth"} message that must arrive within the auth timeout.
func (s *Session) authenticate() bool {
	res, err := s.authorizer.Authorize(s.req, nil)
	if err == nil {
		s.authorized(res)
		return true
	}
	if !IsAuthMissing(err) {
		s.metrics.Inc(metrics.AuthFailure)
		s.fail(unauthorizedMessage(err), websocket.ClosePolicyViolation, "unauthorized")
		return false
	}

	_ = s.conn.SetReadDeadline(time.Now().Add(s.limits.authTimeout))
	msgType, data, err := s.conn.ReadMessage()
	if err != nil {
		if isTimeout(err) {
			s.metrics.Inc(metrics.AuthFailure)
			s.fail("authentication timeout", websocket.ClosePolicyViolation, "authentication timeout")
		}
		return false
	}

	var hello auth.WireAuthMessage
	if msgType != websocket.TextMessage || json.Unmarshal(data, &hello) != nil || MessageType(hello.Type) != MessageTypeAuth {
		s.metrics.Inc(metrics.AuthFailure)
		s.fail("authentication required", websocket.ClosePolicyViolation, "authentication required")
		return false
	}
	res, err = s.authorizer.Authorize(s.req, &hello)
	if err != nil {
		s.metrics.Inc(metrics.AuthFailure)
		s.fail(unauthorizedMessage(err), websocket.ClosePolicyViolation, "unauthorized")
		return false
	}
	_ = s.conn.SetReadDeadline(time.Time{})
	s.authorized(res)
	return true
}

func (s *Session) authorized(res AuthResult) {
	if res.Subject != "" {
		s.log.Info("signaling_authenticated", "subject", res.Subject)
	}
}

// connect registers the participant, greets it and announces it to the room.
// Any failure ends the session.
func (s *Session) connect() error {
	err := s.hub.Connect(s.room, s.id, s.mailbox, func(participants []relay.Participant) {
		s.notify(encode(connectionSuccessMessage{
			Type:    MessageTypeConnectionSuccess,
			UserID:  s.id,
			Message: connectedMessage,
		}))
		s.notify(participantListFrame(participants))
	})
	if err != nil {
		s.log.Warn("signaling_connect_failed", "err", err)
		code := websocket.CloseInternalServerErr
		if errors.Is(err, relay.ErrRoomFull) {
			code = websocket.CloseTryAgainLater
		}
		s.fail("Connection error: "+err.Error(), code, "connection error")
		return err
	}

	s.state.Store(int32(stateActive))
	s.metrics.Inc(metrics.SignalingConnections)
	s.log.Info("signaling_connected")

	s.hub.Broadcast(s.room, encode(participantEventMessage{
		Type:     MessageTypeUserJoined,
		UserID:   s.id,
		Username: s.hub.DisplayName(s.id),
	}))
	return nil
}

// teardown leaves the room and announces the departure. Safe to call more
// than once.
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		prev := s.currentState()
		s.state.Store(int32(stateDisconnected))
		close(s.done)

		if dep, ok := s.hub.Disconnect(s.id); ok {
			s.metrics.Inc(metrics.SignalingDisconnects)
			s.hub.Broadcast(dep.Room, encode(participantEventMessage{
				Type:     MessageTypeUserLeft,
				UserID:   dep.Participant.ID,
				Username: dep.Participant.Name,
			}))
		}
		s.log.Info("signaling_disconnected", "from_state", prev.String(), "mailbox_dropped", s.mailbox.Dropped())
		s.closeWith(websocket.CloseNormalClosure, "")
	})
}

// Close asks the peer to go away. The read loop then observes the closed
// connection and tears the session down.
func (s *Session) Close() {
	s.closeWith(websocket.CloseGoingAway, "server shutting down")
}

// notify queues a frame for this participant only.
func (s *Session) notify(frame []byte) {
	if err := s.mailbox.Send(frame); err != nil {
		s.metrics.Inc(metrics.MailboxDropped)
	}
}

func (s *Session) fail(message string, code int, reason string) {
	s.notify(errorFrame(message))
	s.closeWith(code, reason)
}

// closeWith records the close frame to send (first caller wins) and stops the
// mailbox; writeLoop flushes what is queued, sends the close frame and closes
// the connection.
func (s *Session) closeWith(code int, reason string) {
	s.closeMu.Lock()
	if s.closeCode == 0 {
		s.closeCode = code
		s.closeReason = reason
	}
	s.closeMu.Unlock()
	s.mailbox.Close()
}

func (s *Session) closeFrame() []byte {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	code := s.closeCode
	if code == 0 {
		code = websocket.CloseNormalClosure
	}
	return websocket.FormatCloseMessage(code, s.closeReason)
}

func (s *Session) writeLoop() {
	defer close(s.writerDone)
	defer s.conn.Close()

	for {
		frame, ok := s.mailbox.Next()
		if !ok {
			break
		}
		_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			s.log.Debug("signaling_write_failed", "err", err)
			s.mailbox.Close()
			return
		}
	}
	_ = s.conn.WriteControl(websocket.CloseMessage, s.closeFrame(), time.Now().Add(wsWriteWait))
}

func (s *Session) pingLoop() {
	ticker := time.NewTicker(s.limits.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-s.writerDone:
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
