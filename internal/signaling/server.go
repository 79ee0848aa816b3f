package signaling

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/origin"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/relay"
)

const maxRoomNameLen = 256

// Config wires together the runtime dependencies for the signaling service.
// Zero limits fall back to the config package defaults.
type Config struct {
	Hub        *relay.Hub
	Authorizer Authorizer
	Metrics    *metrics.Metrics
	Logger     *slog.Logger

	// AllowedOrigins is matched against the Origin header of the upgrade
	// request. Empty means same host only.
	AllowedOrigins []string

	SignalingAuthTimeout          time.Duration
	SignalingWSIdleTimeout        time.Duration
	SignalingWSPingInterval       time.Duration
	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int
	MailboxMaxFrames              int
	MailboxMaxBytes               int
}

// Server implements the room WebSocket.
//
// Endpoints:
//   - GET /ws/room/{room}/ : join room and exchange signaling messages
type Server struct {
	cfg      Config
	hub      *relay.Hub
	router   *Router
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Authorizer == nil {
		cfg.Authorizer = AllowAllAuthorizer{}
	}
	if cfg.Hub == nil {
		cfg.Hub = relay.NewHub(relay.HubConfig{Metrics: cfg.Metrics, Logger: logger})
	}

	s := &Server{
		cfg:      cfg,
		hub:      cfg.Hub,
		router:   NewRouter(cfg.Hub, cfg.Metrics, logger),
		log:      logger,
		sessions: make(map[*Session]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	return s
}

func (s *Server) Hub() *relay.Hub { return s.hub }

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/room/{room}/{$}", s.handleRoomSocket)
	mux.HandleFunc("GET /ws/room/{room}", s.handleRoomSocket)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Close ends every live session. New upgrades are refused afterwards.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if _, ok := origin.CheckRequest(r, s.cfg.AllowedOrigins); ok {
		return true
	}
	s.cfg.Metrics.Inc(metrics.OriginRejected)
	s.log.Warn("signaling_origin_rejected", "origin", r.Header.Get("Origin"), "host", r.Host)
	return false
}

func (s *Server) handleRoomSocket(w http.ResponseWriter, r *http.Request) {
	room := strings.TrimSpace(r.PathValue("room"))
	if room == "" || len(room) > maxRoomNameLen {
		httpserver.WriteError(w, http.StatusBadRequest, "bad_room", "invalid room name")
		return
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		httpserver.WriteError(w, http.StatusServiceUnavailable, "shutting_down", "server is shutting down")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return
	}

	sess := s.newSession(conn, r, room)
	if !s.track(sess) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(wsWriteWait))
		_ = conn.Close()
		return
	}
	defer s.untrack(sess)
	sess.run()
}

func (s *Server) newSession(conn *websocket.Conn, r *http.Request, room string) *Session {
	limits := sessionLimits{
		authTimeout:       orDefault(s.cfg.SignalingAuthTimeout, config.DefaultSignalingAuthTimeout),
		idleTimeout:       orDefault(s.cfg.SignalingWSIdleTimeout, config.DefaultSignalingWSIdleTimeout),
		pingInterval:      orDefault(s.cfg.SignalingWSPingInterval, config.DefaultSignalingWSPingInterval),
		maxMessageBytes:   orDefault(s.cfg.MaxSignalingMessageBytes, config.DefaultMaxSignalingMessageBytes),
		messagesPerSecond: orDefault(s.cfg.MaxSignalingMessagesPerSecond, config.DefaultMaxSignalingMessagesPerSecond),
		mailboxFrames:     orDefault(s.cfg.MailboxMaxFrames, config.DefaultMailboxMaxFrames),
		mailboxBytes:      orDefault(s.cfg.MailboxMaxBytes, config.DefaultMailboxMaxBytes),
	}

	id := relay.NewParticipantID()
	sess := &Session{
		id:         id,
		room:       room,
		conn:       conn,
		req:        r,
		hub:        s.hub,
		router:     s.router,
		authorizer: s.cfg.Authorizer,
		metrics:    s.cfg.Metrics,
		log:        s.log.With("room", room, "participant_id", id, "remote_addr", r.RemoteAddr),
		limits:     limits,
		mailbox:    relay.NewMailbox(limits.mailboxFrames, limits.mailboxBytes),
		limiter:    rate.NewLimiter(rate.Limit(limits.messagesPerSecond), limits.messagesPerSecond),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	sess.state.Store(int32(stateConnecting))
	return sess
}

func (s *Server) track(sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[sess] = struct{}{}
	return true
}

func (s *Server) untrack(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

func orDefault[T int | int64 | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}
