package client

import (
	"fmt"
	"time"

	"liveroom/core"
)

type SessionState int

const (
	SessionUnjoined SessionState = iota
	// SessionJoining covers the window between deciding to join and
	// join_room reaching the transport.
	SessionJoining
	// SessionJoined is entered optimistically once join_room is sent. The
	// first presence event on the connection confirms it.
	SessionJoined
	SessionLeft
)

func (s SessionState) String() string {
	switch s {
	case SessionUnjoined:
		return "unjoined"
	case SessionJoining:
		return "joining"
	case SessionJoined:
		return "joined"
	case SessionLeft:
		return "left"
	default:
		return "unknown"
	}
}

// Session tracks room membership and the participant count for a handle.
// It joins automatically once per connection.
type Session struct {
	h *Handle

	// Guarded by h.mu.
	state     SessionState
	joinedGen uint64
	confirmed bool
	heard     bool
	count     int

	subs observers[core.PresenceEvent]
}

func (s *Session) State() SessionState {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	return s.state
}

// ParticipantCount returns the count carried by the most recently received
// presence event, or zero before any arrived.
func (s *Session) ParticipantCount() int {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	return s.count
}

// OnPresence registers fn for presence changes and returns a function that
// unregisters it.
func (s *Session) OnPresence(fn func(core.PresenceEvent)) func() {
	return s.subs.add(fn)
}

// Join sends join_room on the current connection. The handle already does
// this on connect, so an explicit call only succeeds when that send was
// skipped.
func (s *Session) Join() error {
	h := s.h
	h.mu.Lock()
	if s.state == SessionLeft {
		h.mu.Unlock()
		return ErrSessionLeft
	}
	if h.state != core.StateConnected || h.transport == nil {
		h.mu.Unlock()
		return ErrNotConnected
	}
	gen := h.gen
	payload, ok := s.joinLocked(gen)
	if !ok {
		h.mu.Unlock()
		return ErrAlreadyJoined
	}
	t := h.transport
	h.mu.Unlock()

	if err := t.Emit(core.EventJoinRoom, payload); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	s.sent(gen)
	return nil
}

// sent marks the join as joined once join_room is on the wire. The server
// does not acknowledge it; the first presence event confirms it.
func (s *Session) sent(gen uint64) {
	h := s.h
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.state == SessionJoining && s.joinedGen == gen && h.gen == gen {
		s.state = SessionJoined
	}
}

// Leave sends leave_room when joined and connected. The session stays left
// for the rest of the handle's life and no reconnect is attempted.
func (s *Session) Leave() error {
	h := s.h
	h.mu.Lock()
	if s.state == SessionLeft {
		h.mu.Unlock()
		return nil
	}
	send := h.state == core.StateConnected && h.transport != nil && s.member()
	s.state = SessionLeft
	stopTimer(&h.joinWait)
	if h.state == core.StateReconnecting {
		stopTimer(&h.retryWait)
		h.setStateLocked(core.StateDisconnected, StateChange{Reason: core.ReasonClosedByClient})
	}
	t := h.transport
	h.mu.Unlock()

	h.log.Info("Left room")
	if !send {
		return nil
	}
	if err := t.Emit(core.EventLeaveRoom, core.LeaveRoomPayload{RoomID: string(h.room)}); err != nil {
		return fmt.Errorf("leave room: %w", err)
	}
	return nil
}

func (s *Session) member() bool {
	return s.state == SessionJoining || s.state == SessionJoined
}

func (s *Session) joinLocked(gen uint64) (core.JoinRoomPayload, bool) {
	h := s.h
	if s.state == SessionLeft || s.joinedGen == gen {
		return core.JoinRoomPayload{}, false
	}
	s.joinedGen = gen
	s.state = SessionJoining
	s.confirmed = false
	if h.opts.JoinTimeout > 0 {
		timeout := h.opts.JoinTimeout
		h.joinWait = time.AfterFunc(timeout, func() {
			h.expire(gen, core.StateConnected, fmt.Errorf("join not confirmed after %s", timeout))
		})
	}
	return core.JoinRoomPayload{RoomID: string(h.room), UserInfo: h.profile}, true
}

func (s *Session) leaveOnCloseLocked(connected bool) bool {
	send := connected && s.member()
	s.state = SessionLeft
	return send
}

func (s *Session) disconnectedLocked() {
	if s.state != SessionLeft {
		s.state = SessionUnjoined
	}
	s.confirmed = false
}

func (s *Session) presenceLocked(kind core.PresenceKind, args []any) {
	h := s.h
	p, err := core.DecodePresence(firstArg(args))
	if err != nil {
		h.log.WithError(err).WithField("kind", kind).Warn("Dropping malformed presence event")
		return
	}
	if p.RoomID != "" && core.RoomID(p.RoomID) != h.room {
		h.log.WithField("event_room", p.RoomID).Debug("Dropping presence event for another room")
		return
	}
	if s.state == SessionLeft {
		return
	}
	if s.member() && !s.confirmed {
		s.state = SessionJoined
		s.confirmed = true
		stopTimer(&h.joinWait)
	}
	s.heard = true
	s.count = *p.UserCount

	ev := core.PresenceEvent{
		Kind:             kind,
		RoomID:           h.room,
		ParticipantCount: s.count,
	}
	if p.UserInfo != nil {
		u := p.UserInfo.Normalize()
		ev.User = &u
	}
	h.disp.post(func() { s.subs.notify(ev, h.disp.call) })
}

// syncLocked applies a count fetched out of band, unless a presence event
// already arrived.
func (s *Session) syncLocked(count int) {
	h := s.h
	if s.heard || s.state == SessionLeft || count < 0 {
		return
	}
	s.count = count
	ev := core.PresenceEvent{
		Kind:             core.PresenceSync,
		RoomID:           h.room,
		ParticipantCount: count,
	}
	h.disp.post(func() { s.subs.notify(ev, h.disp.call) })
}

func firstArg(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}
