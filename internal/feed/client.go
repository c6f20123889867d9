package feed

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"sia/internal/presenter"
)

// Client reads transcript entries from a feed hub.
type Client struct {
	ws *websocket.Conn
}

func Dial(ctx context.Context, url string) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial feed: %w", err)
	}
	return &Client{ws: ws}, nil
}

func (c *Client) Read() (presenter.Entry, error) {
	var e presenter.Entry
	if err := c.ws.ReadJSON(&e); err != nil {
		return presenter.Entry{}, err
	}
	return e, nil
}

func (c *Client) Close() error {
	return c.ws.Close()
}
