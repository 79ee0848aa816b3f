package recording

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/policy"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/store"
)

type fakeCapturer struct {
	err error
	got chan time.Duration
}

func (c *fakeCapturer) Capture(_ context.Context, _ string, dur time.Duration, outPath string) error {
	if c.got != nil {
		c.got <- dur
	}
	if c.err != nil {
		return c.err
	}
	return os.WriteFile(outPath, []byte("mp4"), 0o644)
}

type fakeStorage struct {
	mu       sync.Mutex
	uploaded map[string][]byte
	ttl      time.Duration
}

func (s *fakeStorage) UploadFile(_ context.Context, key, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploaded == nil {
		s.uploaded = make(map[string][]byte)
	}
	s.uploaded[key] = data
	return nil
}

func (s *fakeStorage) Link(_ context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	s.ttl = ttl
	s.mu.Unlock()
	return "https://bucket.example/" + key + "?sig", nil
}

func newTestService(t *testing.T, c Capturer, st Storage) (*Service, *store.BadgerStore, *metrics.Metrics) {
	t.Helper()
	db, err := store.Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m := metrics.New()
	svc, err := NewService(Config{
		Store:    db,
		Capturer: c,
		Storage:  st,
		Metrics:  m,
		Dir:      t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc, db, m
}

func TestService_CaptureUploadAndLink(t *testing.T) {
	storage := &fakeStorage{}
	svc, db, m := newTestService(t, &fakeCapturer{}, storage)

	rec, err := svc.Start(context.Background(), "room1", "rtmp://src/live", 0)
	require.NoError(t, err)
	assert.Equal(t, store.RecordingCapturing, rec.Status)
	assert.Equal(t, 10*time.Minute, rec.Duration)

	svc.Wait()

	got, err := db.GetRecording(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RecordingReady, got.Status)
	assert.Equal(t, rec.ID+".mp4", got.ObjectKey)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, []byte("mp4"), storage.uploaded[rec.ID+".mp4"])
	assert.NoFileExists(t, filepath.Join(svc.dir, rec.ID+".mp4"))

	url, err := svc.Link(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.example/"+rec.ID+".mp4?sig", url)
	assert.Equal(t, time.Hour, storage.ttl)
	assert.EqualValues(t, 1, m.Get(metrics.RecordingLinksIssued))

	list, err := svc.List("room1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)
}

func TestService_CaptureFailureIsRecorded(t *testing.T) {
	svc, db, m := newTestService(t, &fakeCapturer{err: errors.New("boom")}, &fakeStorage{})

	rec, err := svc.Start(context.Background(), "room1", "rtmp://src/live", time.Minute)
	require.NoError(t, err)
	svc.Wait()

	got, err := db.GetRecording(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RecordingFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
	assert.Empty(t, got.ObjectKey)
	assert.EqualValues(t, 1, m.Get(metrics.RecordingsFailed))
}

func TestService_RejectsDurationOverMax(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeCapturer{}, nil)

	_, err := svc.Start(context.Background(), "room1", "rtmp://src/live", time.Hour)
	require.ErrorIs(t, err, ErrInvalidDuration)
	_, err = svc.Start(context.Background(), "room1", "rtmp://src/live", -time.Second)
	require.ErrorIs(t, err, ErrInvalidDuration)
}

func TestService_RejectsDeniedSource(t *testing.T) {
	db, err := store.Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m := metrics.New()
	svc, err := NewService(Config{
		Store:    db,
		Capturer: &fakeCapturer{},
		Sources:  &policy.SourcePolicy{},
		Metrics:  m,
		Dir:      t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	_, err = svc.Start(context.Background(), "room1", "http://127.0.0.1:9000/admin", time.Second)
	require.ErrorIs(t, err, policy.ErrSourceDenied)
	assert.EqualValues(t, 1, m.Get(metrics.RecordingSourceDenied))

	recs, err := svc.List("room1")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestService_WithoutStorage(t *testing.T) {
	svc, db, m := newTestService(t, &fakeCapturer{}, nil)

	rec, err := svc.Start(context.Background(), "room1", "rtmp://src/live", time.Second)
	require.NoError(t, err)
	svc.Wait()

	got, err := db.GetRecording(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RecordingReady, got.Status)
	assert.FileExists(t, filepath.Join(svc.dir, rec.ID+".mp4"))

	_, err = svc.Link(context.Background(), rec.ID)
	require.ErrorIs(t, err, ErrStorageDisabled)
	assert.EqualValues(t, 1, m.Get(metrics.RecordingLinksRejected))
}

func TestService_LinkUnknownRecording(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeCapturer{}, &fakeStorage{})
	_, err := svc.Link(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_StartAfterClose(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeCapturer{}, nil)
	svc.Close()
	_, err := svc.Start(context.Background(), "room1", "rtmp://src/live", time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestService_LinkRequiresReadyRecording(t *testing.T) {
	storage := &fakeStorage{}
	svc, db, m := newTestService(t, &fakeCapturer{}, storage)

	for _, status := range []store.RecordingStatus{store.RecordingCapturing, store.RecordingFailed} {
		id := "rec-" + string(status)
		require.NoError(t, db.SaveRecording(store.Recording{ID: id, RoomID: "room1", Status: status}))

		_, err := svc.Link(context.Background(), id)
		require.ErrorIs(t, err, ErrRecordingNotReady, "status %s", status)
	}
	assert.EqualValues(t, 2, m.Get(metrics.RecordingLinksRejected))
	assert.EqualValues(t, 0, m.Get(metrics.RecordingLinksIssued))
	assert.Zero(t, storage.ttl)
}

type blockingCapturer struct{}

func (blockingCapturer) Capture(ctx context.Context, _ string, _ time.Duration, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestService_CloseWaitsForConcurrentStarts(t *testing.T) {
	svc, db, _ := newTestService(t, blockingCapturer{}, nil)

	var (
		mu      sync.Mutex
		started []string
		wg      sync.WaitGroup
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := svc.Start(context.Background(), "room1", "rtmp://src/live", time.Second)
			if err != nil {
				assert.ErrorIs(t, err, context.Canceled)
				return
			}
			mu.Lock()
			started = append(started, rec.ID)
			mu.Unlock()
		}()
	}
	svc.Close()
	wg.Wait()

	// Every job that got started was finished by Close.
	for _, id := range started {
		got, err := db.GetRecording(id)
		require.NoError(t, err)
		assert.Equal(t, store.RecordingFailed, got.Status, "recording %s", id)
	}

	_, err := svc.Start(context.Background(), "room1", "rtmp://src/live", time.Second)
	require.ErrorIs(t, err, context.Canceled)
}
