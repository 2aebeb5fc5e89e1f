package client

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"liveroom/core"
)

const (
	DefaultConnectTimeout = 20 * time.Second
	DefaultJoinTimeout    = 10 * time.Second
)

// ReconnectPolicy controls automatic reconnection after an unexpected
// disconnect. The zero value disables it; callers then retry by opening a
// new handle.
type ReconnectPolicy struct {
	Enabled             bool
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	// MaxAttempts bounds consecutive failed attempts. Zero means unlimited.
	MaxAttempts int
}

// RoomDirectory is the REST side of a room, used to seed the participant
// count before the first presence event arrives.
type RoomDirectory interface {
	ViewerCount(ctx context.Context, roomID core.RoomID) (int, error)
}

type Options struct {
	Dial Dialer

	// ConnectTimeout and JoinTimeout default when zero and are disabled
	// when negative.
	ConnectTimeout time.Duration
	JoinTimeout    time.Duration

	Reconnect ReconnectPolicy
	Directory RoomDirectory
	Logger    *logrus.Entry
	Now       func() time.Time
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.JoinTimeout == 0 {
		o.JoinTimeout = DefaultJoinTimeout
	}
	if o.Logger == nil {
		o.Logger = logrus.WithField("component", "liveroom")
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (p ReconnectPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	if p.RandomizationFactor > 0 {
		b.RandomizationFactor = p.RandomizationFactor
	}
	b.Reset()
	return b
}
