// Package recording captures room streams with ffmpeg, uploads them to
// object storage and issues time-limited download links.
package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/policy"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/store"
)

var (
	ErrStorageDisabled   = errors.New("recording storage not configured")
	ErrInvalidDuration   = errors.New("invalid recording duration")
	ErrRecordingNotReady = errors.New("recording not ready")
)

type Config struct {
	Store    store.Store
	Capturer Capturer
	// Storage may be nil; recordings are then kept in Dir only and links
	// are refused with ErrStorageDisabled.
	Storage Storage
	// Sources filters source URLs; nil accepts any URL.
	Sources *policy.SourcePolicy
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	Dir         string
	URLTTL      time.Duration
	MaxDuration time.Duration
	Now         func() time.Time
}

// Service runs capture jobs in the background. Close cancels running jobs
// and waits for them.
type Service struct {
	store    store.Store
	capturer Capturer
	storage  Storage
	sources  *policy.SourcePolicy
	metrics  *metrics.Metrics
	log      *slog.Logger

	dir         string
	urlTTL      time.Duration
	maxDuration time.Duration
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders wg.Add in Start against Close; no job is added once closed.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("recording: store is required")
	}
	if cfg.Capturer == nil {
		return nil, errors.New("recording: capturer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Dir == "" {
		cfg.Dir = os.TempDir()
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = time.Hour
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("recording dir: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:       cfg.Store,
		capturer:    cfg.Capturer,
		storage:     cfg.Storage,
		sources:     cfg.Sources,
		metrics:     cfg.Metrics,
		log:         cfg.Logger,
		dir:         cfg.Dir,
		urlTTL:      cfg.URLTTL,
		maxDuration: cfg.MaxDuration,
		now:         cfg.Now,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// ObjectKey is the storage key of a recording.
func ObjectKey(id string) string { return id + ".mp4" }

// Start stores a capturing record and launches the capture. A zero duration
// means the maximum.
func (s *Service) Start(ctx context.Context, roomID, sourceURL string, dur time.Duration) (store.Recording, error) {
	if dur == 0 {
		dur = s.maxDuration
	}
	if dur < 0 || dur > s.maxDuration {
		return store.Recording{}, fmt.Errorf("%w: must be in (0, %s]", ErrInvalidDuration, s.maxDuration)
	}
	if err := s.acquire(); err != nil {
		return store.Recording{}, err
	}
	launched := false
	defer func() {
		if !launched {
			s.wg.Done()
		}
	}()

	if err := ctx.Err(); err != nil {
		return store.Recording{}, err
	}
	if err := s.sources.CheckURL(ctx, sourceURL); err != nil {
		s.metrics.Inc(metrics.RecordingSourceDenied)
		s.log.Warn("recording_source_denied", "room_id", roomID, "err", err)
		return store.Recording{}, err
	}

	rec := store.Recording{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		SourceURL: sourceURL,
		Status:    store.RecordingCapturing,
		Duration:  dur,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.SaveRecording(rec); err != nil {
		return store.Recording{}, fmt.Errorf("save recording: %w", err)
	}
	s.metrics.Inc(metrics.RecordingsStarted)
	s.log.Info("recording_started", "recording_id", rec.ID, "room_id", roomID, "duration", dur)

	launched = true
	go func() {
		defer s.wg.Done()
		s.run(rec)
	}()
	return rec, nil
}

// acquire counts a job in wg unless Close has been called.
func (s *Service) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("recording service closed: %w", context.Canceled)
	}
	s.wg.Add(1)
	return nil
}

func (s *Service) run(rec store.Recording) {
	// Allow for ffmpeg startup and the upload on top of the capture itself.
	ctx, cancel := context.WithTimeout(s.ctx, rec.Duration+2*time.Minute)
	defer cancel()

	log := s.log.With("recording_id", rec.ID, "room_id", rec.RoomID)
	out := filepath.Join(s.dir, ObjectKey(rec.ID))

	err := s.capturer.Capture(ctx, rec.SourceURL, rec.Duration, out)
	if err == nil && s.storage != nil {
		err = s.storage.UploadFile(ctx, ObjectKey(rec.ID), out)
		if err == nil {
			if rmErr := os.Remove(out); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				log.Warn("recording_cleanup_failed", "err", rmErr)
			}
		}
	}

	done := s.now().UTC()
	rec.CompletedAt = &done
	if err != nil {
		rec.Status = store.RecordingFailed
		rec.Error = err.Error()
		s.metrics.Inc(metrics.RecordingsFailed)
		log.Warn("recording_failed", "err", err)
	} else {
		rec.Status = store.RecordingReady
		rec.ObjectKey = ObjectKey(rec.ID)
		log.Info("recording_ready", "object_key", rec.ObjectKey)
	}
	if err := s.store.SaveRecording(rec); err != nil {
		log.Error("recording_save_failed", "err", err)
	}
}

func (s *Service) List(roomID string) ([]store.Recording, error) {
	return s.store.ListRecordings(roomID)
}

// Link returns a presigned download URL for recording id. Only recordings
// that finished uploading have a link.
func (s *Service) Link(ctx context.Context, id string) (string, error) {
	if s.storage == nil {
		s.metrics.Inc(metrics.RecordingLinksRejected)
		return "", ErrStorageDisabled
	}
	rec, err := s.store.GetRecording(id)
	if err != nil {
		s.metrics.Inc(metrics.RecordingLinksRejected)
		return "", err
	}
	if rec.Status != store.RecordingReady {
		s.metrics.Inc(metrics.RecordingLinksRejected)
		return "", fmt.Errorf("recording %s is %s: %w", id, rec.Status, ErrRecordingNotReady)
	}
	url, err := s.storage.Link(ctx, ObjectKey(id), s.urlTTL)
	if err != nil {
		s.metrics.Inc(metrics.RecordingLinksRejected)
		return "", err
	}
	s.metrics.Inc(metrics.RecordingLinksIssued)
	return url, nil
}

func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until running jobs finish without cancelling them.
func (s *Service) Wait() {
	s.wg.Wait()
}
