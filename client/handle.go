package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"liveroom/core"
)

// StateChange describes one connection state transition.
type StateChange struct {
	From   core.ConnectionState
	To     core.ConnectionState
	Reason core.DisconnectReason
	Err    error
	// Attempt and RetryIn are set while reconnecting.
	Attempt int
	RetryIn time.Duration
}

// Handle owns the single live transport of one room view. A handle is
// created per room view, started once and closed when the view goes away.
// All of its methods are safe for concurrent use.
type Handle struct {
	id      string
	room    core.RoomID
	profile core.UserProfile
	opts    Options
	log     *logrus.Entry
	disp    *dispatcher

	mu          sync.Mutex
	state       core.ConnectionState
	started     bool
	closed      bool
	gen         uint64
	transport   Transport
	connectWait *time.Timer
	joinWait    *time.Timer
	retryWait   *time.Timer
	backoff     *backoff.ExponentialBackOff
	attempt     int
	cancelSeed  context.CancelFunc

	stateSubs observers[StateChange]
	session   *Session
	channel   *Channel
}

// New creates an idle handle for roomID. Subscribe first, then call Start.
func New(roomID core.RoomID, profile core.UserProfile, opts Options) (*Handle, error) {
	roomID = core.RoomID(strings.TrimSpace(string(roomID)))
	if roomID == "" {
		return nil, errors.New("room id is required")
	}
	if opts.Dial == nil {
		return nil, errors.New("dialer is required")
	}
	opts = opts.withDefaults()

	h := &Handle{
		id:      ulid.Make().String(),
		room:    roomID,
		profile: profile.Normalize(),
		opts:    opts,
		state:   core.StateDisconnected,
		backoff: opts.Reconnect.newBackOff(),
	}
	h.log = opts.Logger.WithFields(logrus.Fields{
		"handle_id": h.id,
		"room_id":   roomID,
	})
	h.disp = newDispatcher(h.log)
	h.session = &Session{h: h}
	h.channel = &Channel{h: h}
	return h, nil
}

// Open creates a handle and starts connecting. Notifications produced before
// the caller subscribes are not replayed; use New and Start to subscribe
// first.
func Open(roomID core.RoomID, profile core.UserProfile, opts Options) (*Handle, error) {
	h, err := New(roomID, profile, opts)
	if err != nil {
		return nil, err
	}
	if err := h.Start(); err != nil {
		return nil, err
	}
	return h, nil
}

// Start begins the first connection attempt. It returns immediately.
func (h *Handle) Start() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	if h.started {
		h.mu.Unlock()
		return errors.New("handle already started")
	}
	h.started = true
	if h.opts.Directory != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelSeed = cancel
		go h.seed(ctx)
	}
	h.mu.Unlock()

	h.log.Info("Room handle started")
	h.dial()
	return nil
}

// Close tears the handle down: a best-effort leave_room when connected, then
// the transport is released. No callback starts after Close returns. Calling
// Close again is a no-op.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.gen++
	t := h.transport
	h.transport = nil
	h.stopTimersLocked()
	sendLeave := h.session.leaveOnCloseLocked(h.state == core.StateConnected)
	h.state = core.StateDisconnected
	cancel := h.cancelSeed
	h.mu.Unlock()

	h.disp.close()
	if cancel != nil {
		cancel()
	}
	if t != nil {
		if sendLeave {
			if err := t.Emit(core.EventLeaveRoom, core.LeaveRoomPayload{RoomID: string(h.room)}); err != nil {
				h.log.WithError(err).Debug("Failed to send leave_room on close")
			}
		}
		if err := t.Close(); err != nil {
			h.log.WithError(err).Warn("Failed to close transport")
		}
	}
	h.log.Info("Room handle closed")
	return nil
}

func (h *Handle) ID() string {
	return h.id
}

func (h *Handle) Room() core.RoomID {
	return h.room
}

func (h *Handle) Profile() core.UserProfile {
	return h.profile
}

func (h *Handle) State() core.ConnectionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) Session() *Session {
	return h.session
}

func (h *Handle) Channel() *Channel {
	return h.channel
}

// OnStateChange registers fn for every state transition and returns a
// function that unregisters it.
func (h *Handle) OnStateChange(fn func(StateChange)) func() {
	return h.stateSubs.add(fn)
}

func (h *Handle) dial() {
	t, err := h.opts.Dial()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		if t != nil {
			_ = t.Close()
		}
		return
	}
	h.gen++
	gen := h.gen
	h.setStateLocked(core.StateConnecting, StateChange{Attempt: h.attempt})
	if err != nil {
		after := h.failLocked(core.ReasonRefused, fmt.Errorf("create transport: %w", err))
		h.mu.Unlock()
		run(after)
		return
	}
	h.transport = t
	if h.opts.ConnectTimeout > 0 {
		h.connectWait = time.AfterFunc(h.opts.ConnectTimeout, func() {
			h.expire(gen, core.StateConnecting, fmt.Errorf("connect timed out after %s", h.opts.ConnectTimeout))
		})
	}
	h.mu.Unlock()

	if err := t.Open(func(event string, args ...any) {
		h.handle(gen, event, args)
	}); err != nil {
		h.handle(gen, transportConnectError, []any{err})
	}
}

func (h *Handle) redial(gen uint64) {
	h.mu.Lock()
	if h.closed || gen != h.gen || h.state != core.StateReconnecting {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	h.dial()
}

// handle routes one transport event. Events from a superseded transport are
// dropped.
func (h *Handle) handle(gen uint64, event string, args []any) {
	var after []func()

	h.mu.Lock()
	if h.closed || gen != h.gen {
		h.mu.Unlock()
		return
	}
	switch event {
	case transportConnect:
		after = h.connectedLocked(gen)
	case transportConnectError:
		reason, err := classifyConnectError(args)
		after = h.failLocked(reason, err)
	case transportDisconnect:
		reason, err := classifyDisconnect(args)
		after = h.failLocked(reason, err)
	case core.EventUserJoined:
		h.session.presenceLocked(core.PresenceJoined, args)
	case core.EventUserLeft:
		h.session.presenceLocked(core.PresenceLeft, args)
	case core.EventNewMessage:
		h.channel.messageLocked(args)
	case core.EventNewGift:
		h.channel.giftLocked(args)
	default:
		h.log.WithField("event", event).Debug("Ignoring unknown event")
	}
	h.mu.Unlock()

	run(after)
}

func (h *Handle) connectedLocked(gen uint64) []func() {
	if h.state != core.StateConnecting {
		return nil
	}
	stopTimer(&h.connectWait)
	h.attempt = 0
	h.backoff.Reset()
	h.setStateLocked(core.StateConnected, StateChange{})
	h.log.Info("Connected to relay")

	payload, ok := h.session.joinLocked(gen)
	if !ok {
		return nil
	}
	t := h.transport
	return []func(){func() {
		if err := t.Emit(core.EventJoinRoom, payload); err != nil {
			h.log.WithError(err).Warn("Failed to send join_room")
			return
		}
		h.session.sent(gen)
	}}
}

// failLocked drops the current transport and moves to Disconnected,
// scheduling a reconnect when the policy allows it.
func (h *Handle) failLocked(reason core.DisconnectReason, err error) []func() {
	t := h.transport
	h.transport = nil
	h.gen++
	h.stopTimersLocked()
	h.session.disconnectedLocked()

	entry := h.log.WithField("reason", reason)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn("Disconnected from relay")
	h.setStateLocked(core.StateDisconnected, StateChange{Reason: reason, Err: err})

	var after []func()
	if t != nil {
		after = append(after, func() { _ = t.Close() })
	}
	h.scheduleReconnectLocked(reason)
	return after
}

func (h *Handle) scheduleReconnectLocked(reason core.DisconnectReason) {
	p := h.opts.Reconnect
	if !p.Enabled || reason == core.ReasonClosedByClient || h.session.state == SessionLeft {
		return
	}
	h.attempt++
	if p.MaxAttempts > 0 && h.attempt > p.MaxAttempts {
		h.log.WithField("attempts", h.attempt-1).Warn("Giving up reconnecting")
		return
	}
	delay := h.backoff.NextBackOff()
	if delay == backoff.Stop {
		h.log.Warn("Giving up reconnecting")
		return
	}
	h.setStateLocked(core.StateReconnecting, StateChange{Reason: reason, Attempt: h.attempt, RetryIn: delay})
	gen := h.gen
	h.retryWait = time.AfterFunc(delay, func() { h.redial(gen) })
}

// expire fails the connection if it is still in the given state when a
// timer fires.
func (h *Handle) expire(gen uint64, want core.ConnectionState, err error) {
	h.mu.Lock()
	if h.closed || gen != h.gen || h.state != want {
		h.mu.Unlock()
		return
	}
	if want == core.StateConnected && h.session.confirmed {
		h.mu.Unlock()
		return
	}
	after := h.failLocked(core.ReasonTimedOut, err)
	h.mu.Unlock()
	run(after)
}

func (h *Handle) setStateLocked(to core.ConnectionState, change StateChange) {
	if h.state == to {
		return
	}
	change.From = h.state
	change.To = to
	h.state = to
	h.log.WithFields(logrus.Fields{
		"from": change.From,
		"to":   change.To,
	}).Debug("Connection state changed")
	h.disp.post(func() { h.stateSubs.notify(change, h.disp.call) })
}

func (h *Handle) stopTimersLocked() {
	stopTimer(&h.connectWait)
	stopTimer(&h.joinWait)
	stopTimer(&h.retryWait)
}

func (h *Handle) seed(ctx context.Context) {
	count, err := h.opts.Directory.ViewerCount(ctx, h.room)
	if err != nil {
		if ctx.Err() == nil {
			h.log.WithError(err).Warn("Failed to fetch room viewer count")
		}
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.session.syncLocked(count)
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func run(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

func argError(args []any, fallback string) error {
	for _, a := range args {
		switch v := a.(type) {
		case error:
			return v
		case string:
			if v != "" {
				return errors.New(v)
			}
		}
	}
	return errors.New(fallback)
}

func classifyConnectError(args []any) (core.DisconnectReason, error) {
	err := argError(args, "connect error")
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return core.ReasonTimedOut, err
	case strings.Contains(msg, "parse"), strings.Contains(msg, "not compatible"), strings.Contains(msg, "unsupported protocol"):
		return core.ReasonProtocolError, err
	default:
		return core.ReasonRefused, err
	}
}

// classifyDisconnect maps a Socket.IO disconnect reason onto a
// DisconnectReason.
func classifyDisconnect(args []any) (core.DisconnectReason, error) {
	var reason string
	if len(args) > 0 {
		reason, _ = args[0].(string)
	}
	var err error
	if len(args) > 1 {
		if e, ok := args[1].(error); ok {
			err = e
		}
	}
	if err == nil && reason != "" {
		err = errors.New(reason)
	}

	switch reason {
	case "ping timeout":
		return core.ReasonTimedOut, err
	case "parse error":
		return core.ReasonProtocolError, err
	case "io client disconnect", "forced close":
		return core.ReasonClosedByClient, err
	default:
		return core.ReasonClosedByPeer, err
	}
}
