package feed

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sia/internal/presenter"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHub_BacklogThenLive(t *testing.T) {
	hub := NewHub(10, nil)
	hub.Publish(presenter.Entry{ID: "1", Text: "Hello!"})
	hub.Publish(presenter.Entry{ID: "2", Speaker: presenter.SpeakerUser, Text: "open youtube"})

	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, wsURL(srv))
	require.NoError(t, err)
	defer c.Close()

	for _, want := range []string{"1", "2"} {
		e, err := c.Read()
		require.NoError(t, err)
		assert.Equal(t, want, e.ID)
	}

	hub.Publish(presenter.Entry{ID: "3", Speaker: presenter.SpeakerSia, Text: "Opening youtube..."})
	e, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, "Opening youtube...", e.Text)
	assert.Equal(t, 1, hub.Clients())
}

func TestHub_BacklogIsBounded(t *testing.T) {
	hub := NewHub(2, nil)
	for _, id := range []string{"a", "b", "c"} {
		hub.Publish(presenter.Entry{ID: id})
	}

	srv := httptest.NewServer(hub)
	defer srv.Close()

	c, err := Dial(context.Background(), wsURL(srv))
	require.NoError(t, err)
	defer c.Close()

	first, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, "b", first.ID)
}

func TestHub_ViewerDisconnect(t *testing.T) {
	hub := NewHub(0, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	c, err := Dial(context.Background(), wsURL(srv))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
