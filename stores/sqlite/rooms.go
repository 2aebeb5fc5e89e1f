package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	stdlog "log"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"liveroom/core"
)

type roomRegistry struct {
	db  *sql.DB
	now func() time.Time
}

func NewRoomRegistry(dataSourceName string) core.RoomRegistry {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		stdlog.Fatal(err)
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)

	roomsTable := `CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		viewers INTEGER NOT NULL DEFAULT 0,
		peak_viewers INTEGER NOT NULL DEFAULT 0,
		last_active INTEGER NOT NULL DEFAULT 0
	);`
	_, err = db.Exec(roomsTable)
	if err != nil {
		stdlog.Fatal(err)
	}

	return &roomRegistry{db: db, now: time.Now}
}

func (s *roomRegistry) ListRooms(ctx context.Context) ([]core.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, viewers, peak_viewers, last_active FROM rooms ORDER BY last_active DESC, id ASC")
	if err != nil {
		logrus.WithField("error", err).Error("Failed to list rooms")
		return nil, err
	}
	defer rows.Close()

	rooms := []core.Room{}
	for rows.Next() {
		var room core.Room
		if err := rows.Scan(&room.ID, &room.Viewers, &room.PeakViewers, &room.LastActive); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (s *roomRegistry) GetRoom(ctx context.Context, roomID string) (*core.Room, error) {
	log := logrus.WithField("room_id", roomID)

	var room core.Room
	err := s.db.QueryRowContext(ctx,
		"SELECT id, viewers, peak_viewers, last_active FROM rooms WHERE id = ?", roomID).
		Scan(&room.ID, &room.Viewers, &room.PeakViewers, &room.LastActive)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug("Room not found")
		return nil, core.ErrRoomNotFound
	}
	if err != nil {
		log.WithField("error", err).Error("Failed to get room")
		return nil, err
	}
	return &room, nil
}

func (s *roomRegistry) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO rooms (id, last_active) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET last_active = excluded.last_active`,
		roomID, s.now().UnixMilli())
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"room_id": roomID,
			"error":   err,
		}).Error("Failed to touch room")
	}
	return err
}

func (s *roomRegistry) RecordViewers(ctx context.Context, roomID string, viewers int) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	if viewers < 0 {
		return fmt.Errorf("viewer count must not be negative: %d", viewers)
	}

	log := logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"viewers": viewers,
	})
	_, err := s.db.ExecContext(ctx, `INSERT INTO rooms (id, viewers, peak_viewers, last_active) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			viewers = excluded.viewers,
			peak_viewers = MAX(rooms.peak_viewers, excluded.viewers)`,
		roomID, viewers, viewers, s.now().UnixMilli())
	if err != nil {
		log.WithField("error", err).Error("Failed to record viewers")
		return err
	}
	log.Debug("Viewers recorded successfully")
	return nil
}

func (s *roomRegistry) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	log := logrus.WithField("room_id", roomID)
	if _, err := s.db.ExecContext(ctx, "DELETE FROM rooms WHERE id = ?", roomID); err != nil {
		log.WithField("error", err).Error("Failed to delete room")
		return err
	}
	log.Info("Room deleted successfully")
	return nil
}

func (s *roomRegistry) Close() error {
	return s.db.Close()
}
