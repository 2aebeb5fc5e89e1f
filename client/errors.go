package client

import "errors"

var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyJoined = errors.New("already joined on this connection")
	ErrSessionLeft   = errors.New("session has left the room")
	ErrClosed        = errors.New("handle closed")
)
