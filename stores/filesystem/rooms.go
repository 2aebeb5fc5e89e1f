package filesystem

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"liveroom/core"
)

const roomFileExt = ".json"

type roomFile struct {
	ID          string `json:"id"`
	Viewers     int    `json:"viewers"`
	PeakViewers int    `json:"peak_viewers"`
	LastActive  int64  `json:"last_active"`
}

// roomRegistry keeps one JSON file per room under basePath. File names are
// derived from the room id so ids can never escape the directory.
type roomRegistry struct {
	basePath string
	mu       sync.Mutex
	now      func() time.Time
}

func NewRoomRegistry(basePath string) core.RoomRegistry {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		stdlog.Fatal(err)
	}
	return &roomRegistry{basePath: basePath, now: time.Now}
}

func (s *roomRegistry) path(roomID string) string {
	return filepath.Join(s.basePath, base64.RawURLEncoding.EncodeToString([]byte(roomID))+roomFileExt)
}

func (s *roomRegistry) read(roomID string) (*roomFile, error) {
	data, err := os.ReadFile(s.path(roomID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, core.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	var rf roomFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", roomID, err)
	}
	return &rf, nil
}

func (s *roomRegistry) write(rf *roomFile) error {
	data, err := json.Marshal(rf)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.basePath, "room-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(rf.ID))
}

// update applies fn to the stored room, creating it when missing.
func (s *roomRegistry) update(roomID string, fn func(*roomFile)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rf, err := s.read(roomID)
	if errors.Is(err, core.ErrRoomNotFound) {
		rf = &roomFile{ID: roomID}
	} else if err != nil {
		return err
	}
	fn(rf)
	return s.write(rf)
}

func (s *roomRegistry) ListRooms(ctx context.Context) ([]core.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		logrus.WithField("error", err).Error("Failed to list room files")
		return nil, err
	}

	rooms := make([]core.Room, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, roomFileExt) {
			continue
		}
		id, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, roomFileExt))
		if err != nil {
			continue
		}
		rf, err := s.read(string(id))
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"file":  name,
				"error": err,
			}).Warn("Skipping unreadable room file")
			continue
		}
		rooms = append(rooms, rf.room())
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].LastActive == rooms[j].LastActive {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].LastActive > rooms[j].LastActive
	})
	return rooms, nil
}

func (s *roomRegistry) GetRoom(ctx context.Context, roomID string) (*core.Room, error) {
	s.mu.Lock()
	rf, err := s.read(roomID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	room := rf.room()
	return &room, nil
}

func (s *roomRegistry) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	return s.update(roomID, func(rf *roomFile) {
		rf.LastActive = s.now().UnixMilli()
	})
}

func (s *roomRegistry) RecordViewers(ctx context.Context, roomID string, viewers int) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	if viewers < 0 {
		return fmt.Errorf("viewer count must not be negative: %d", viewers)
	}
	err := s.update(roomID, func(rf *roomFile) {
		rf.Viewers = viewers
		if viewers > rf.PeakViewers {
			rf.PeakViewers = viewers
		}
		if rf.LastActive == 0 {
			rf.LastActive = s.now().UnixMilli()
		}
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"room_id": roomID,
			"error":   err,
		}).Error("Failed to record viewers")
	}
	return err
}

func (s *roomRegistry) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(roomID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	logrus.WithField("room_id", roomID).Info("Room deleted successfully")
	return nil
}

func (rf *roomFile) room() core.Room {
	return core.Room{
		ID:          rf.ID,
		Viewers:     rf.Viewers,
		PeakViewers: rf.PeakViewers,
		LastActive:  rf.LastActive,
	}
}
