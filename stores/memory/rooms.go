package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"liveroom/core"
)

type roomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]core.Room
	now   func() time.Time
}

func NewRoomRegistry() core.RoomRegistry {
	return &roomRegistry{
		rooms: make(map[string]core.Room),
		now:   time.Now,
	}
}

func (s *roomRegistry) ListRooms(ctx context.Context) ([]core.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]core.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
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
	s.mu.RLock()
	room, ok := s.rooms[roomID]
	s.mu.RUnlock()

	if !ok {
		logrus.WithField("room_id", roomID).Debug("Room not found")
		return nil, core.ErrRoomNotFound
	}
	return &room, nil
}

func (s *roomRegistry) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	s.mu.Lock()
	room := s.rooms[roomID]
	room.ID = roomID
	room.LastActive = s.now().UnixMilli()
	s.rooms[roomID] = room
	s.mu.Unlock()

	return nil
}

func (s *roomRegistry) RecordViewers(ctx context.Context, roomID string, viewers int) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	if viewers < 0 {
		return fmt.Errorf("viewer count must not be negative: %d", viewers)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.rooms[roomID]
	room.ID = roomID
	room.Viewers = viewers
	if viewers > room.PeakViewers {
		room.PeakViewers = viewers
	}
	if room.LastActive == 0 {
		room.LastActive = s.now().UnixMilli()
	}
	s.rooms[roomID] = room

	logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"viewers": viewers,
	}).Debug("Viewers recorded successfully")
	return nil
}

func (s *roomRegistry) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rooms, roomID)
	logrus.WithField("room_id", roomID).Info("Room deleted successfully")
	return nil
}
