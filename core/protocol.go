package core

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Event names exchanged with the relay.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventSendGift    = "send_gift"

	EventUserJoined = "user_joined"
	EventUserLeft   = "user_left"
	EventNewMessage = "new_message"
	EventNewGift    = "new_gift"
)

// TimestampLayout is the ISO-8601 layout used on the wire. It matches what
// browsers produce with Date.toISOString.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

type (
	JoinRoomPayload struct {
		RoomID   string      `json:"room_id"`
		UserInfo UserProfile `json:"user_info"`
	}

	LeaveRoomPayload struct {
		RoomID string `json:"room_id"`
	}

	// MessagePayload is the shape of both send_message and new_message.
	MessagePayload struct {
		RoomID    string      `json:"room_id,omitempty"`
		Message   *string     `json:"message"`
		UserInfo  UserProfile `json:"user_info"`
		Timestamp string      `json:"timestamp"`
	}

	// GiftPayload is the shape of both send_gift and new_gift.
	GiftPayload struct {
		RoomID    string      `json:"room_id,omitempty"`
		GiftType  string      `json:"gift_type"`
		UserInfo  UserProfile `json:"user_info"`
		Timestamp string      `json:"timestamp"`
	}

	// PresencePayload is the shape of user_joined and user_left.
	PresencePayload struct {
		RoomID    string       `json:"room_id,omitempty"`
		UserCount *int         `json:"user_count"`
		UserInfo  *UserProfile `json:"user_info,omitempty"`
	}
)

// FormatTimestamp renders t the way it travels on the wire.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts any RFC 3339 timestamp. An empty string yields the
// zero time.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q: %v", ErrInvalidPayload, s, err)
	}
	return t, nil
}

// Decode copies a loosely typed event argument (as produced by the Socket.IO
// parser) into out. Numeric room ids are accepted and stringified.
func Decode(raw any, out any) error {
	if raw == nil {
		return fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}
	if _, ok := raw.(map[string]any); !ok {
		return fmt.Errorf("%w: expected object, got %T", ErrInvalidPayload, raw)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.DecodeHookFuncKind(wholeNumbers),
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// wholeNumbers rejects fractional JSON numbers bound for integer fields
// instead of letting them truncate.
func wholeNumbers(from, to reflect.Kind, data any) (any, error) {
	switch to {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return data, nil
	}
	var f float64
	switch v := data.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	default:
		return data, nil
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%v is not a whole number", f)
	}
	return data, nil
}

func DecodeJoin(raw any) (JoinRoomPayload, error) {
	var p JoinRoomPayload
	if err := Decode(raw, &p); err != nil {
		return p, err
	}
	p.RoomID = strings.TrimSpace(p.RoomID)
	if p.RoomID == "" {
		return p, fmt.Errorf("%w: room_id is required", ErrInvalidPayload)
	}
	p.UserInfo = p.UserInfo.Normalize()
	return p, nil
}

func DecodeLeave(raw any) (LeaveRoomPayload, error) {
	var p LeaveRoomPayload
	if err := Decode(raw, &p); err != nil {
		return p, err
	}
	p.RoomID = strings.TrimSpace(p.RoomID)
	if p.RoomID == "" {
		return p, fmt.Errorf("%w: room_id is required", ErrInvalidPayload)
	}
	return p, nil
}

func DecodePresence(raw any) (PresencePayload, error) {
	var p PresencePayload
	if err := Decode(raw, &p); err != nil {
		return p, err
	}
	if p.UserCount == nil {
		return p, fmt.Errorf("%w: user_count is required", ErrInvalidPayload)
	}
	if *p.UserCount < 0 {
		return p, fmt.Errorf("%w: negative user_count %d", ErrInvalidPayload, *p.UserCount)
	}
	return p, nil
}

func DecodeMessage(raw any) (MessagePayload, ChatMessage, error) {
	var p MessagePayload
	if err := Decode(raw, &p); err != nil {
		return p, ChatMessage{}, err
	}
	if p.Message == nil {
		return p, ChatMessage{}, fmt.Errorf("%w: message is required", ErrInvalidPayload)
	}
	sentAt, err := ParseTimestamp(p.Timestamp)
	if err != nil {
		return p, ChatMessage{}, err
	}
	return p, ChatMessage{
		RoomID: RoomID(p.RoomID),
		Author: p.UserInfo.Normalize(),
		Body:   *p.Message,
		SentAt: sentAt,
	}, nil
}

func DecodeGift(raw any) (GiftPayload, GiftEvent, error) {
	var p GiftPayload
	if err := Decode(raw, &p); err != nil {
		return p, GiftEvent{}, err
	}
	if p.GiftType == "" {
		return p, GiftEvent{}, fmt.Errorf("%w: gift_type is required", ErrInvalidPayload)
	}
	sentAt, err := ParseTimestamp(p.Timestamp)
	if err != nil {
		return p, GiftEvent{}, err
	}
	return p, GiftEvent{
		RoomID:   RoomID(p.RoomID),
		Author:   p.UserInfo.Normalize(),
		GiftType: p.GiftType,
		SentAt:   sentAt,
	}, nil
}
