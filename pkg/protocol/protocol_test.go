package protocol

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	m, err := Parse("SIA:get:lights:HOME")
	require.NoError(t, err)
	assert.Equal(t, &Message{To: "SIA", Verb: "GET", Noun: "LIGHTS", From: "HOME"}, m)

	m, err = Parse("HOME:SET:VOLUME:60:SIA\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"60"}, m.Args)
	assert.Equal(t, "HOME:SET:VOLUME:60:SIA", m.String())

	for _, bad := range []string{
		"",
		"SIA:GET:LIGHTS",
		"SIA:GET:LIGHTS ON:HOME",
		"SIA:GET::HOME",
		"S!A:GET:LIGHTS:HOME",
		"SIA:GET:LIGHTS:a/b:HOME",
	} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestReply(t *testing.T) {
	in, err := Parse("SIA:GET:VOLUME:HOME")
	require.NoError(t, err)

	r := in.Reply()
	r.Ok("VOLUME", "50")
	assert.Equal(t, "HOME:OK:VOLUME:50:", r.String())

	r.Error("UNKNOWN")
	assert.Equal(t, "HOME:ERR:UNKNOWN:", r.String())
}

func TestTransmitAndRun(t *testing.T) {
	fromSia := make(chan string, 4)
	upgrader := ws.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(ws.TextMessage, []byte("OTHER:SET:LIGHTS:ON:HOME"))
		_ = conn.WriteMessage(ws.TextMessage, []byte("SIA:GET:LIGHTS:HOME"))

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			fromSia <- string(msg)
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Message, 4)
	p, err := NewProtocol(ctx, PtclConfig{
		Shard:   "SIA",
		Url:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		Reconn:  10 * time.Millisecond,
		EmitOut: func(m *Message) { got <- m },
	})
	require.NoError(t, err)
	go p.Run(ctx)

	select {
	case m := <-got:
		assert.Equal(t, "GET", m.Verb)
		assert.Equal(t, "HOME", m.From)
	case <-time.After(2 * time.Second):
		t.Fatal("frame for SIA was not emitted")
	}

	require.NoError(t, p.Transmit([]string{"HOME", "SET", "LIGHTS", "ON"}))
	select {
	case s := <-fromSia:
		assert.Equal(t, "HOME:SET:LIGHTS:ON:SIA", s)
	case <-time.After(2 * time.Second):
		t.Fatal("bus did not receive the frame")
	}

	assert.Error(t, p.Transmit(42))
}
