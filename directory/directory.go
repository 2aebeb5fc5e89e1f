package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"resty.dev/v3"

	"liveroom/core"
)

// RoomInfo is the REST representation of a live room.
type RoomInfo struct {
	ID         string `json:"id"`
	Users      int    `json:"users"`
	PeakUsers  int    `json:"peak_users"`
	LastActive int64  `json:"last_active"`
}

// Client queries the relay's room API.
type Client struct {
	http *resty.Client
}

func New(baseURL string, timeout time.Duration, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.WithField("component", "directory")
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetLogger(log)
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &Client{http: c}
}

func (c *Client) Room(ctx context.Context, roomID core.RoomID) (*RoomInfo, error) {
	var info RoomInfo
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("roomId", roomID.String()).
		SetResult(&info).
		Get("/api/rooms/{roomId}")
	if err != nil {
		return nil, fmt.Errorf("fetch room %s: %w", roomID, err)
	}
	if res.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("room %s: %w", roomID, core.ErrRoomNotFound)
	}
	if res.IsError() {
		return nil, fmt.Errorf("fetch room %s: unexpected status %s", roomID, res.Status())
	}
	return &info, nil
}

func (c *Client) Rooms(ctx context.Context) ([]RoomInfo, error) {
	var rooms []RoomInfo
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&rooms).
		Get("/api/rooms")
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("list rooms: unexpected status %s", res.Status())
	}
	return rooms, nil
}

// ViewerCount reports the current number of viewers. An unknown room has
// none.
func (c *Client) ViewerCount(ctx context.Context, roomID core.RoomID) (int, error) {
	info, err := c.Room(ctx, roomID)
	if errors.Is(err, core.ErrRoomNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Users, nil
}

func (c *Client) Close() error {
	return c.http.Close()
}
