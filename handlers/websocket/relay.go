package websocket

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"liveroom/core"
)

const (
	DefaultMaxMessageLength  = 500
	defaultMaxHttpBufferSize = 1000000
	registryTimeout          = 5 * time.Second
)

var localhostOrigin = regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)

type Options struct {
	Path string
	// AllowedOrigins lists CORS origins. Empty means localhost only; "*"
	// allows any origin.
	AllowedOrigins   []string
	MaxMessageLength int
	Logger           *logrus.Entry
	Now              func() time.Time
}

// Relay is the server side of the live-room protocol. It keeps room
// membership, broadcasts presence counts, and fans chat messages and gifts
// out to every member of a room, sender included.
type Relay struct {
	srv      *socketio.Server
	presence *presence
	registry core.RoomRegistry
	opts     Options
	log      *logrus.Entry
}

func SetupSocketIO(registry core.RoomRegistry, opts Options) *Relay {
	if opts.Path == "" {
		opts.Path = "/socket.io"
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = DefaultMaxMessageLength
	}
	if opts.Logger == nil {
		opts.Logger = logrus.WithField("component", "relay")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	serverOpts := socketio.DefaultServerOptions()
	serverOpts.SetMaxHttpBufferSize(defaultMaxHttpBufferSize)
	serverOpts.SetPath(opts.Path)
	serverOpts.SetAllowEIO3(true)
	serverOpts.SetCors(corsFor(opts.AllowedOrigins))

	r := &Relay{
		srv:      socketio.NewServer(nil, serverOpts),
		presence: newPresence(),
		registry: registry,
		opts:     opts,
		log:      opts.Logger,
	}

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	r.srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		r.bind(socket)
	})

	return r
}

func corsFor(origins []string) *types.Cors {
	if len(origins) == 0 {
		return &types.Cors{
			Origin:      []any{localhostOrigin},
			Credentials: true,
		}
	}
	allowed := make([]any, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return &types.Cors{Origin: "*"}
		}
		allowed = append(allowed, o)
	}
	return &types.Cors{Origin: allowed, Credentials: true}
}

func (r *Relay) Server() *socketio.Server {
	return r.srv
}

func (r *Relay) Handler() http.Handler {
	return r.srv.ServeHandler(nil)
}

// ActiveRooms returns the current member count of every non-empty room.
func (r *Relay) ActiveRooms() map[string]int {
	return r.presence.snapshot()
}

func (r *Relay) Close() {
	r.srv.Close(nil)
}

func (r *Relay) bind(socket *socketio.Socket) {
	me := socket.Id()
	log := r.log.WithField("sid", me)
	log.Debug("Socket connected")

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On(core.EventJoinRoom, func(datas ...any) {
		ack, args := extractAck(datas)
		r.handleJoin(socket, log, ack, firstArg(args))
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On(core.EventLeaveRoom, func(datas ...any) {
		ack, args := extractAck(datas)
		r.handleLeave(socket, log, ack, firstArg(args))
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On(core.EventSendMessage, func(datas ...any) {
		ack, args := extractAck(datas)
		r.handleMessage(socket, log, ack, firstArg(args))
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On(core.EventSendGift, func(datas ...any) {
		ack, args := extractAck(datas)
		r.handleGift(socket, log, ack, firstArg(args))
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("disconnecting", func(datas ...any) {
		for _, d := range r.presence.drop(me) {
			r.announceLeave(d, func(payload core.PresencePayload) error {
				return socket.Broadcast().To(socketio.Room(d.Room)).Emit(core.EventUserLeft, payload)
			})
		}
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("disconnect", func(datas ...any) {
		log.WithField("reason", firstArg(datas)).Debug("Socket disconnected")
	})
}

func (r *Relay) handleJoin(socket *socketio.Socket, log *logrus.Entry, ack socketio.Ack, raw any) {
	p, err := core.DecodeJoin(raw)
	if err != nil {
		log.WithError(err).Warn("Rejected join_room")
		respondWithAck(ack, errorAck(err), err)
		return
	}

	room := socketio.Room(p.RoomID)
	socket.Join(room)
	count := r.presence.join(p.RoomID, socket.Id(), p.UserInfo)
	r.recordViewers(p.RoomID, count, true)

	log.WithFields(logrus.Fields{
		"room_id":  p.RoomID,
		"username": p.UserInfo.Username,
		"users":    count,
	}).Info("Socket joined room")

	user := p.UserInfo
	if err := r.srv.To(room).Emit(core.EventUserJoined, core.PresencePayload{
		RoomID:    p.RoomID,
		UserCount: &count,
		UserInfo:  &user,
	}); err != nil {
		log.WithError(err).Error("Failed to emit user_joined")
	}

	respondWithAck(ack, map[string]any{
		"status":     "ok",
		"user_count": count,
	}, nil)
}

func (r *Relay) handleLeave(socket *socketio.Socket, log *logrus.Entry, ack socketio.Ack, raw any) {
	p, err := core.DecodeLeave(raw)
	if err != nil {
		log.WithError(err).Warn("Rejected leave_room")
		respondWithAck(ack, errorAck(err), err)
		return
	}

	room := socketio.Room(p.RoomID)
	d, ok := r.presence.leave(p.RoomID, socket.Id())
	socket.Leave(room)
	if !ok {
		respondWithAck(ack, map[string]any{"status": "ok", "user_count": r.presence.count(p.RoomID)}, nil)
		return
	}

	log.WithFields(logrus.Fields{
		"room_id": p.RoomID,
		"users":   d.Count,
	}).Info("Socket left room")

	r.announceLeave(d, func(payload core.PresencePayload) error {
		return r.srv.To(room).Emit(core.EventUserLeft, payload)
	})
	respondWithAck(ack, map[string]any{"status": "ok", "user_count": d.Count}, nil)
}

func (r *Relay) announceLeave(d departure, emit func(core.PresencePayload) error) {
	count := d.Count
	user := d.Profile
	r.recordViewers(d.Room, count, false)
	if err := emit(core.PresencePayload{
		RoomID:    d.Room,
		UserCount: &count,
		UserInfo:  &user,
	}); err != nil {
		r.log.WithError(err).WithField("room_id", d.Room).Error("Failed to emit user_left")
	}
}

func (r *Relay) handleMessage(socket *socketio.Socket, log *logrus.Entry, ack socketio.Ack, raw any) {
	p, msg, err := core.DecodeMessage(raw)
	if err == nil {
		err = r.checkSender(socket, p.RoomID)
	}
	if err == nil && utf8.RuneCountInString(msg.Body) > r.opts.MaxMessageLength {
		err = fmt.Errorf("%w: message longer than %d characters", core.ErrInvalidPayload, r.opts.MaxMessageLength)
	}
	if err != nil {
		log.WithError(err).Warn("Rejected send_message")
		respondWithAck(ack, errorAck(err), err)
		return
	}

	p.UserInfo = msg.Author
	if p.Timestamp == "" {
		p.Timestamp = core.FormatTimestamp(r.opts.Now())
	}
	if err := r.srv.To(socketio.Room(p.RoomID)).Emit(core.EventNewMessage, p); err != nil {
		log.WithError(err).Error("Failed to broadcast message")
		respondWithAck(ack, errorAck(err), err)
		return
	}
	r.touch(p.RoomID)
	log.WithField("room_id", p.RoomID).Debug("Message broadcast")
	respondWithAck(ack, map[string]any{"status": "ok"}, nil)
}

func (r *Relay) handleGift(socket *socketio.Socket, log *logrus.Entry, ack socketio.Ack, raw any) {
	p, gift, err := core.DecodeGift(raw)
	if err == nil {
		err = r.checkSender(socket, p.RoomID)
	}
	if err != nil {
		log.WithError(err).Warn("Rejected send_gift")
		respondWithAck(ack, errorAck(err), err)
		return
	}

	p.UserInfo = gift.Author
	if p.Timestamp == "" {
		p.Timestamp = core.FormatTimestamp(r.opts.Now())
	}
	if err := r.srv.To(socketio.Room(p.RoomID)).Emit(core.EventNewGift, p); err != nil {
		log.WithError(err).Error("Failed to broadcast gift")
		respondWithAck(ack, errorAck(err), err)
		return
	}
	r.touch(p.RoomID)
	log.WithFields(logrus.Fields{
		"room_id":   p.RoomID,
		"gift_type": p.GiftType,
	}).Info("Gift broadcast")
	respondWithAck(ack, map[string]any{"status": "ok"}, nil)
}

// checkSender requires the sending socket to be a member of the room it
// addresses.
func (r *Relay) checkSender(socket *socketio.Socket, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("%w: room_id is required", core.ErrInvalidPayload)
	}
	if !r.presence.member(roomID, socket.Id()) {
		return fmt.Errorf("%w: socket has not joined room %s", core.ErrInvalidPayload, roomID)
	}
	return nil
}

func (r *Relay) recordViewers(roomID string, count int, touch bool) {
	if r.registry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
	defer cancel()

	if touch {
		if err := r.registry.TouchRoom(ctx, roomID); err != nil {
			r.log.WithError(err).WithField("room_id", roomID).Warn("Failed to touch room")
		}
	}
	if err := r.registry.RecordViewers(ctx, roomID, count); err != nil {
		r.log.WithError(err).WithField("room_id", roomID).Warn("Failed to record viewers")
	}
}

func (r *Relay) touch(roomID string) {
	if r.registry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
	defer cancel()
	if err := r.registry.TouchRoom(ctx, roomID); err != nil {
		r.log.WithError(err).WithField("room_id", roomID).Warn("Failed to touch room")
	}
}
