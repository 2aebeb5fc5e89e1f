package client

import (
	"fmt"

	"liveroom/core"
)

// Channel sends and receives chat messages and gifts for a handle's room.
// Sent items are not echoed locally; the relay broadcasts them back.
type Channel struct {
	h *Handle

	messages observers[core.ChatMessage]
	gifts    observers[core.GiftEvent]
}

// Send emits body to the room. It fails with ErrNotConnected unless the
// connection is up.
func (c *Channel) Send(body string) error {
	t, payload, err := c.prepare(func(room string, author core.UserProfile, ts string) any {
		return core.MessagePayload{RoomID: room, Message: &body, UserInfo: author, Timestamp: ts}
	})
	if err != nil {
		return err
	}
	if err := t.Emit(core.EventSendMessage, payload); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (c *Channel) SendGift(giftType string) error {
	if giftType == "" {
		return fmt.Errorf("%w: gift type is required", core.ErrInvalidPayload)
	}
	t, payload, err := c.prepare(func(room string, author core.UserProfile, ts string) any {
		return core.GiftPayload{RoomID: room, GiftType: giftType, UserInfo: author, Timestamp: ts}
	})
	if err != nil {
		return err
	}
	if err := t.Emit(core.EventSendGift, payload); err != nil {
		return fmt.Errorf("send gift: %w", err)
	}
	return nil
}

func (c *Channel) OnMessage(fn func(core.ChatMessage)) func() {
	return c.messages.add(fn)
}

func (c *Channel) OnGift(fn func(core.GiftEvent)) func() {
	return c.gifts.add(fn)
}

func (c *Channel) prepare(build func(room string, author core.UserProfile, ts string) any) (Transport, any, error) {
	h := c.h
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != core.StateConnected || h.transport == nil {
		return nil, nil, ErrNotConnected
	}
	return h.transport, build(string(h.room), h.profile, core.FormatTimestamp(h.opts.Now())), nil
}

func (c *Channel) messageLocked(args []any) {
	h := c.h
	_, msg, err := core.DecodeMessage(firstArg(args))
	if err != nil {
		h.log.WithError(err).Warn("Dropping malformed message")
		return
	}
	if msg.RoomID != "" && msg.RoomID != h.room {
		h.log.WithField("event_room", msg.RoomID).Debug("Dropping message for another room")
		return
	}
	msg.RoomID = h.room
	h.disp.post(func() { c.messages.notify(msg, h.disp.call) })
}

func (c *Channel) giftLocked(args []any) {
	h := c.h
	_, gift, err := core.DecodeGift(firstArg(args))
	if err != nil {
		h.log.WithError(err).Warn("Dropping malformed gift")
		return
	}
	if gift.RoomID != "" && gift.RoomID != h.room {
		h.log.WithField("event_room", gift.RoomID).Debug("Dropping gift for another room")
		return
	}
	gift.RoomID = h.room
	h.disp.post(func() { c.gifts.notify(gift, h.disp.call) })
}
