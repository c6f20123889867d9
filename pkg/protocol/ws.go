package protocol

import (
	"context"
	"errors"
	log "log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

var errClosed = errors.New("websocket closed")

type WebSocket struct {
	mu     sync.Mutex
	conn   *ws.Conn
	url    string
	reconn time.Duration
	closed bool
}

func NewWebSocket(ctx context.Context, url string, reconn time.Duration) (*WebSocket, error) {
	log.Debug("init websocket protocol", "url", url)

	if reconn <= 0 {
		reconn = time.Second
	}

	conn, _, err := ws.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &WebSocket{conn: conn, url: url, reconn: reconn}, nil
}

func (web *WebSocket) Write(payload []byte) error {
	web.mu.Lock()
	defer web.mu.Unlock()

	if web.closed {
		return errClosed
	}
	log.Debug("Write ws", "msg", string(payload))
	_ = web.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return web.conn.WriteMessage(ws.TextMessage, payload)
}

type WsIncomeKind uint

const (
	CONN_CLOSE WsIncomeKind = iota
	READ_FAILURE
	READ_OK
)

type Income struct {
	kind WsIncomeKind
	msg  []byte
	err  error
}

// Read blocks for the next frame. Only one goroutine may read.
func (web *WebSocket) Read() Income {
	web.mu.Lock()
	conn := web.conn
	web.mu.Unlock()

	_, msg, err := conn.ReadMessage()
	if err != nil {
		if WsIsClosed(err) {
			return Income{kind: CONN_CLOSE, err: err}
		}
		return Income{kind: READ_FAILURE, err: err}
	}

	log.Debug("Read ws", "msg", string(msg))
	return Income{kind: READ_OK, msg: msg}
}

// TryReconn redials every reconn interval until it succeeds or ctx is done.
func (web *WebSocket) TryReconn(ctx context.Context) error {
	t := time.NewTicker(web.reconn)
	defer t.Stop()

	for {
		conn, _, err := ws.DefaultDialer.DialContext(ctx, web.url, nil)
		if err == nil {
			web.mu.Lock()
			web.conn.Close()
			web.conn = conn
			web.mu.Unlock()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (web *WebSocket) Close() error {
	web.mu.Lock()
	defer web.mu.Unlock()
	web.closed = true
	return web.conn.Close()
}

func WsIsClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
