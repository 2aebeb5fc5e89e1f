package client

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// SocketIOOptions configures the Socket.IO transport.
type SocketIOOptions struct {
	URL  string
	Path string
	// Timeout bounds the engine handshake. The handle applies its own
	// connect timeout on top of it.
	Timeout time.Duration
	// Transports names the engine.io transports to try, in order:
	// "websocket", "polling" or "webtransport". Empty means websocket then
	// polling.
	Transports []string
	Logger     *logrus.Entry
}

func transportSet(names []string) (*types.Set[transports.TransportCtor], error) {
	if len(names) == 0 {
		return types.NewSet(transports.WebSocket, transports.Polling), nil
	}
	set := types.NewSet[transports.TransportCtor]()
	for _, name := range names {
		switch name {
		case "websocket":
			set.Add(transports.WebSocket)
		case "polling":
			set.Add(transports.Polling)
		case "webtransport":
			set.Add(transports.WebTransport)
		default:
			return nil, fmt.Errorf("unknown socket.io transport %q", name)
		}
	}
	return set, nil
}

// SocketIODialer returns a Dialer producing Socket.IO transports. WebSocket
// is tried first with HTTP long-polling as fallback; the library negotiates
// the mode. The library's own reconnection is disabled because the handle
// drives reconnects itself.
func SocketIODialer(opts SocketIOOptions) Dialer {
	if opts.Path == "" {
		opts.Path = "/socket.io"
	}
	if opts.Logger == nil {
		opts.Logger = logrus.WithField("component", "socketio")
	}
	return func() (Transport, error) {
		if opts.URL == "" {
			return nil, errors.New("socket.io url is required")
		}
		set, err := transportSet(opts.Transports)
		if err != nil {
			return nil, err
		}
		return &socketIOTransport{opts: opts, modes: set}, nil
	}
}

type socketIOTransport struct {
	opts  SocketIOOptions
	modes *types.Set[transports.TransportCtor]

	mu     sync.Mutex
	sock   *socket.Socket
	closed bool
}

func (t *socketIOTransport) Open(sink Sink) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.sock != nil {
		t.mu.Unlock()
		return errors.New("transport already opened")
	}

	o := socket.DefaultOptions()
	o.SetPath(t.opts.Path)
	o.SetTransports(t.modes)
	o.SetTryAllTransports(true)
	o.SetForceNew(true)
	o.SetReconnection(false)
	o.SetAutoConnect(false)
	if t.opts.Timeout > 0 {
		o.SetTimeout(t.opts.Timeout)
	}

	sock, err := socket.Connect(t.opts.URL, o)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.sock = sock
	t.mu.Unlock()

	log := t.opts.Logger.WithField("url", t.opts.URL)

	//nolint:errcheck // listener registration only fails for nil listeners
	sock.On(transportConnect, func(...any) {
		log.WithFields(logrus.Fields{
			"sid":  sock.Id(),
			"mode": t.mode(sock),
		}).Debug("socket.io connected")
		sink(transportConnect)
	})
	//nolint:errcheck // listener registration only fails for nil listeners
	sock.On(transportConnectError, func(args ...any) {
		sink(transportConnectError, args...)
	})
	//nolint:errcheck // listener registration only fails for nil listeners
	sock.On(transportDisconnect, func(args ...any) {
		sink(transportDisconnect, args...)
	})
	sock.OnAny(func(args ...any) {
		if len(args) == 0 {
			return
		}
		name, ok := args[0].(string)
		if !ok {
			log.WithField("event", args[0]).Warn("Dropping event with non-string name")
			return
		}
		sink(name, args[1:]...)
	})

	sock.Connect()
	return nil
}

func (t *socketIOTransport) Emit(event string, payload any) error {
	t.mu.Lock()
	sock, closed := t.sock, t.closed
	t.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if sock == nil {
		return ErrNotConnected
	}
	return sock.Emit(event, payload)
}

func (t *socketIOTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	sock := t.sock
	t.mu.Unlock()

	if sock != nil {
		t.teardown(func() {
			sock.Clear()
			sock.OffAny(nil)
			sock.Disconnect()
		})
	}
	return nil
}

// teardown runs disconnect and absorbs panics from it. socket.io-client-go
// v1.1.0 panics on a nil close error when a socket is disconnected after the
// engine opened but before the namespace connected.
func (t *socketIOTransport) teardown(disconnect func()) {
	defer func() {
		if r := recover(); r != nil {
			t.opts.Logger.WithFields(logrus.Fields{
				"url":   t.opts.URL,
				"panic": r,
			}).Warn("socket.io disconnect panicked")
		}
	}()
	disconnect()
}

func (t *socketIOTransport) mode(sock *socket.Socket) string {
	engine := sock.Io().Engine()
	if engine == nil {
		return ""
	}
	if transport := engine.Transport(); transport != nil {
		return transport.Name()
	}
	return ""
}
