//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks

// Package store persists rooms, participants and recordings in BadgerDB.
//
// Keys:
//
//	room:<room_id>                            Room
//	participant:<room_id>:<participant_id>    Participant
//	recording:<recording_id>                  Recording
//	room_recording:<room_id>:<recording_id>   (index, empty value)
//
// The live signaling state is not stored here; it lives in relay.Hub.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Participant struct {
	ID       string    `json:"id"`
	RoomID   string    `json:"room_id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}

type RecordingStatus string

const (
	RecordingCapturing RecordingStatus = "capturing"
	RecordingReady     RecordingStatus = "ready"
	RecordingFailed    RecordingStatus = "failed"
)

type Recording struct {
	ID          string          `json:"id"`
	RoomID      string          `json:"room_id"`
	SourceURL   string          `json:"source_url"`
	ObjectKey   string          `json:"object_key,omitempty"`
	Status      RecordingStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
	Duration    time.Duration   `json:"duration"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

type Store interface {
	CreateRoom(room Room) error
	GetRoom(id string) (Room, error)
	AddParticipant(p Participant) error
	ListParticipants(roomID string) ([]Participant, error)
	SaveRecording(rec Recording) error
	GetRecording(id string) (Recording, error)
	ListRecordings(roomID string) ([]Recording, error)
}

type BadgerStore struct {
	db  *badger.DB
	log *slog.Logger
}

// Open opens the store at path. An empty path keeps everything in memory.
func Open(path string, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	logger.Info("store_opened", "path", path, "in_memory", path == "")
	return &BadgerStore{db: db, log: logger}, nil
}

func New(db *badger.DB, logger *slog.Logger) *BadgerStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BadgerStore{db: db, log: logger}
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func roomKey(id string) []byte { return []byte("room:" + id) }

func participantPrefix(roomID string) []byte { return []byte("participant:" + roomID + ":") }

func recordingKey(id string) []byte { return []byte("recording:" + id) }

func roomRecordingPrefix(roomID string) []byte { return []byte("room_recording:" + roomID + ":") }

func (s *BadgerStore) CreateRoom(room Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		key := roomKey(room.ID)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("room %s: %w", room.ID, ErrAlreadyExists)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
}

func (s *BadgerStore) GetRoom(id string) (Room, error) {
	var room Room
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, roomKey(id), &room)
	})
	if err != nil {
		return Room{}, fmt.Errorf("room %s: %w", id, err)
	}
	return room, nil
}

// AddParticipant records p under its room. The room must exist.
func (s *BadgerStore) AddParticipant(p Participant) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal participant: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(p.RoomID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("room %s: %w", p.RoomID, ErrNotFound)
			}
			return err
		}
		return txn.Set(append(participantPrefix(p.RoomID), p.ID...), data)
	})
}

func (s *BadgerStore) ListParticipants(roomID string) ([]Participant, error) {
	var out []Participant
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, participantPrefix(roomID), func(val []byte) error {
			var p Participant
			if err := json.Unmarshal(val, &p); err != nil {
				return err
			}
			out = append(out, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

// SaveRecording inserts or replaces rec.
func (s *BadgerStore) SaveRecording(rec Recording) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal recording: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(recordingKey(rec.ID), data); err != nil {
			return err
		}
		return txn.Set(append(roomRecordingPrefix(rec.RoomID), rec.ID...), nil)
	})
}

func (s *BadgerStore) GetRecording(id string) (Recording, error) {
	var rec Recording
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, recordingKey(id), &rec)
	})
	if err != nil {
		return Recording{}, fmt.Errorf("recording %s: %w", id, err)
	}
	return rec, nil
}

// ListRecordings returns the recordings of a room, oldest first.
func (s *BadgerStore) ListRecordings(roomID string) ([]Recording, error) {
	var out []Recording
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := roomRecordingPrefix(roomID)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := string(it.Item().Key()[len(prefix):])
			var rec Recording
			if err := getJSON(txn, recordingKey(id), &rec); err != nil {
				if errors.Is(err, ErrNotFound) {
					s.log.Warn("store_dangling_recording_index", "room_id", roomID, "recording_id", id)
					continue
				}
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func scanPrefix(txn *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}
