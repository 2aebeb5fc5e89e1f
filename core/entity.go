package core

import (
	"context"
	"errors"
	"time"
)

// GuestUsername is shown for participants who did not supply a username.
const GuestUsername = "Guest"

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrInvalidPayload = errors.New("invalid payload")
)

type (
	// RoomID identifies a live room. It is opaque and stable for the
	// lifetime of a room view.
	RoomID string

	// UserProfile is the identity snapshot a participant announces when
	// joining and attaches to every message it sends.
	UserProfile struct {
		ID       *int64 `json:"id"`
		Username string `json:"username"`
		Avatar   string `json:"avatar,omitempty"`
	}

	ChatMessage struct {
		RoomID RoomID
		Author UserProfile
		Body   string
		SentAt time.Time
	}

	GiftEvent struct {
		RoomID   RoomID
		Author   UserProfile
		GiftType string
		SentAt   time.Time
	}

	Room struct {
		ID          string
		Viewers     int
		PeakViewers int
		LastActive  int64
	}

	RoomRegistry interface {
		ListRooms(ctx context.Context) ([]Room, error)
		GetRoom(ctx context.Context, roomID string) (*Room, error)
		TouchRoom(ctx context.Context, roomID string) error
		RecordViewers(ctx context.Context, roomID string, viewers int) error
		DeleteRoom(ctx context.Context, roomID string) error
	}
)

// NewProfile builds a profile, substituting GuestUsername for an empty
// username.
func NewProfile(id *int64, username, avatar string) UserProfile {
	return UserProfile{ID: id, Username: username, Avatar: avatar}.Normalize()
}

// Normalize returns a copy of p with defaults applied.
func (p UserProfile) Normalize() UserProfile {
	if p.Username == "" {
		p.Username = GuestUsername
	}
	if p.ID != nil {
		id := *p.ID
		p.ID = &id
	}
	return p
}

func (r RoomID) String() string {
	return string(r)
}
