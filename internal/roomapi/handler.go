// Package roomapi is the HTTP API for rooms and their recordings. It sits
// beside the signaling relay: the relay accepts any room name and never
// consults these records.
package roomapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/policy"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/recording"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/relay"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/store"
)

const (
	roomIDLen       = 8
	maxRequestBytes = 64 << 10
)

type Config struct {
	Store store.Store
	// Recorder may be nil, which disables the recording endpoints.
	Recorder Recorder
	Presence Presence
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// PublicBaseURL, when set, makes ws_url absolute.
	PublicBaseURL string
	Now           func() time.Time
}

type Handler struct {
	store    store.Store
	recorder Recorder
	presence Presence
	metrics  *metrics.Metrics
	log      *slog.Logger
	baseURL  string
	now      func() time.Time
	validate *validator.Validate
}

func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Handler{
		store:    cfg.Store,
		recorder: cfg.Recorder,
		presence: cfg.Presence,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
		baseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
		now:      cfg.Now,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes adds the API to mux. mw wraps every route, typically with
// the origin policy.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, mw httpserver.Middleware) {
	if mw == nil {
		mw = func(next http.Handler) http.Handler { return next }
	}
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, mw(fn))
	}

	handle("POST /api/rooms", h.createRoom)
	handle("GET /api/rooms/{id}", h.getRoom)
	handle("POST /api/rooms/{id}/join", h.joinRoom)
	handle("GET /api/rooms/{id}/recordings", h.listRecordings)
	handle("POST /api/rooms/{id}/recordings", h.startRecording)
	handle("GET /recording/{id}/{$}", h.recordingLink)
	handle("GET /recording/{id}", h.recordingLink)
	// Preflights are answered by mw; anything reaching here has no CORS request.
	handle("OPTIONS /api/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

type createRoomRequest struct {
	Name      string `json:"name" validate:"max=128"`
	CreatedBy string `json:"created_by" validate:"max=64"`
}

type roomResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	URL       string    `json:"url"`
}

type roomDetailResponse struct {
	roomResponse
	LiveParticipants []relay.Participant `json:"live_participants"`
}

func (h *Handler) toRoomResponse(room store.Room) roomResponse {
	return roomResponse{
		ID:        room.ID,
		Name:      room.Name,
		CreatedBy: room.CreatedBy,
		CreatedAt: room.CreatedAt,
		URL:       "/meeting/" + room.ID + "/",
	}
}

func (h *Handler) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if !h.decode(w, r, &req) {
		return
	}

	name := strings.TrimSpace(req.Name)
	room := store.Room{
		ID:        newRoomID(),
		Name:      lo.Ternary(name != "", name, petname.Generate(2, "-")),
		CreatedBy: strings.TrimSpace(req.CreatedBy),
		CreatedAt: h.now().UTC(),
	}
	if err := h.store.CreateRoom(room); err != nil {
		h.internalError(w, "create room", err)
		return
	}
	h.metrics.Inc(metrics.RoomsCreated)
	h.log.Info("room_created", "room_id", room.ID, "name", room.Name)

	httpserver.WriteJSON(w, http.StatusCreated, h.toRoomResponse(room))
}

func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := h.lookupRoom(w, r)
	if !ok {
		return
	}
	resp := roomDetailResponse{roomResponse: h.toRoomResponse(room)}
	if h.presence != nil {
		resp.LiveParticipants = h.presence.Participants(room.ID)
	}
	if resp.LiveParticipants == nil {
		resp.LiveParticipants = []relay.Participant{}
	}
	httpserver.WriteJSON(w, http.StatusOK, resp)
}

type joinRoomRequest struct {
	Username string `json:"username" validate:"max=64"`
}

type participantResponse struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}

type joinRoomResponse struct {
	Room        roomResponse        `json:"room"`
	Participant participantResponse `json:"participant"`
	WSURL       string              `json:"ws_url"`
}

func (h *Handler) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if !h.decode(w, r, &req) {
		return
	}
	room, ok := h.lookupRoom(w, r)
	if !ok {
		return
	}

	username := strings.TrimSpace(req.Username)
	p := store.Participant{
		ID:       uuid.NewString(),
		RoomID:   room.ID,
		Username: lo.Ternary(username != "", username, relay.DefaultDisplayName),
		JoinedAt: h.now().UTC(),
	}
	if err := h.store.AddParticipant(p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpserver.WriteError(w, http.StatusNotFound, "room_not_found", "room not found")
			return
		}
		h.internalError(w, "add participant", err)
		return
	}

	httpserver.WriteJSON(w, http.StatusOK, joinRoomResponse{
		Room:        h.toRoomResponse(room),
		Participant: participantResponse{ID: p.ID, Username: p.Username, JoinedAt: p.JoinedAt},
		WSURL:       h.wsURL(room.ID),
	})
}

func (h *Handler) wsURL(roomID string) string {
	path := "/ws/room/" + url.PathEscape(roomID) + "/"
	if h.baseURL == "" {
		return path
	}
	u, err := url.Parse(h.baseURL)
	if err != nil {
		return path
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	return u.String() + path
}

type startRecordingRequest struct {
	SourceURL string `json:"source_url" validate:"required,url,max=2048"`
	// Duration in seconds. Zero means the configured maximum.
	Duration int `json:"duration" validate:"min=0"`
}

type recordingResponse struct {
	ID          string                `json:"id"`
	RoomID      string                `json:"room_id"`
	Status      store.RecordingStatus `json:"status"`
	Error       string                `json:"error,omitempty"`
	Duration    int                   `json:"duration"`
	CreatedAt   time.Time             `json:"created_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	URL         string                `json:"url,omitempty"`
}

func toRecordingResponse(rec store.Recording, _ int) recordingResponse {
	return recordingResponse{
		ID:          rec.ID,
		RoomID:      rec.RoomID,
		Status:      rec.Status,
		Error:       rec.Error,
		Duration:    int(rec.Duration / time.Second),
		CreatedAt:   rec.CreatedAt,
		CompletedAt: rec.CompletedAt,
		URL:         lo.Ternary(rec.Status == store.RecordingReady, "/recording/"+rec.ID+"/", ""),
	}
}

func (h *Handler) listRecordings(w http.ResponseWriter, r *http.Request) {
	if !h.recordingsEnabled(w) {
		return
	}
	room, ok := h.lookupRoom(w, r)
	if !ok {
		return
	}
	recs, err := h.recorder.List(room.ID)
	if err != nil {
		h.internalError(w, "list recordings", err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"recordings": lo.Map(recs, toRecordingResponse),
	})
}

func (h *Handler) startRecording(w http.ResponseWriter, r *http.Request) {
	if !h.recordingsEnabled(w) {
		return
	}
	var req startRecordingRequest
	if !h.decode(w, r, &req) {
		return
	}
	room, ok := h.lookupRoom(w, r)
	if !ok {
		return
	}

	rec, err := h.recorder.Start(r.Context(), room.ID, req.SourceURL, time.Duration(req.Duration)*time.Second)
	if err != nil {
		switch {
		case errors.Is(err, recording.ErrInvalidDuration):
			httpserver.WriteError(w, http.StatusBadRequest, "invalid_duration", err.Error())
			return
		case errors.Is(err, policy.ErrSourceDenied):
			httpserver.WriteError(w, http.StatusForbidden, "source_denied", err.Error())
			return
		}
		h.internalError(w, "start recording", err)
		return
	}
	httpserver.WriteJSON(w, http.StatusAccepted, toRecordingResponse(rec, 0))
}

func (h *Handler) recordingLink(w http.ResponseWriter, r *http.Request) {
	if !h.recordingsEnabled(w) {
		return
	}
	link, err := h.recorder.Link(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, recording.ErrStorageDisabled):
		httpserver.WriteError(w, http.StatusServiceUnavailable, "storage_disabled", "recording storage is not configured")
		return
	case errors.Is(err, store.ErrNotFound):
		httpserver.WriteError(w, http.StatusNotFound, "recording_not_found", "recording not found")
		return
	case errors.Is(err, recording.ErrRecordingNotReady):
		httpserver.WriteError(w, http.StatusConflict, "recording_not_ready", "recording is not ready")
		return
	case err != nil:
		h.internalError(w, "recording link", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, link, http.StatusFound)
}

func (h *Handler) recordingsEnabled(w http.ResponseWriter) bool {
	if h.recorder == nil {
		httpserver.WriteError(w, http.StatusServiceUnavailable, "recording_disabled", "recording is not configured")
		return false
	}
	return true
}

func (h *Handler) lookupRoom(w http.ResponseWriter, r *http.Request) (store.Room, bool) {
	room, err := h.store.GetRoom(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpserver.WriteError(w, http.StatusNotFound, "room_not_found", "room not found")
		} else {
			h.internalError(w, "get room", err)
		}
		return store.Room{}, false
	}
	return room, true
}

// decode reads an optional JSON body into v and validates it. An empty body
// leaves v at its zero value.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpserver.WriteError(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
			return false
		}
		httpserver.WriteError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, "invalid_request", describeValidation(err))
		return false
	}
	return true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	return strings.Join(lo.Map(verrs, func(fe validator.FieldError, _ int) string {
		return strings.ToLower(fe.Field()) + ": failed " + fe.Tag()
	}), "; ")
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.log.Error("roomapi_error", "op", op, "err", err)
	httpserver.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
}

func newRoomID() string {
	return uuid.NewString()[:roomIDLen]
}
