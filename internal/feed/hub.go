package feed

import (
	log "log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sia/internal/metrics"
	"sia/internal/presenter"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 10

	sendBuffer     = 64
	DefaultBacklog = 200
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans transcript entries out to websocket viewers. New viewers get the
// backlog first. A viewer that cannot keep up is dropped.
type Hub struct {
	mu      sync.Mutex
	backlog []presenter.Entry
	limit   int
	clients map[*conn]struct{}

	log *log.Logger
}

type conn struct {
	ws   *websocket.Conn
	send chan presenter.Entry
	once sync.Once
}

func NewHub(limit int, logger *log.Logger) *Hub {
	if limit <= 0 {
		limit = DefaultBacklog
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		limit:   limit,
		clients: make(map[*conn]struct{}),
		log:     logger,
	}
}

// Publish implements presenter.Sink.
func (h *Hub) Publish(e presenter.Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.backlog = append(h.backlog, e)
	if over := len(h.backlog) - h.limit; over > 0 {
		h.backlog = append([]presenter.Entry(nil), h.backlog[over:]...)
	}

	for c := range h.clients {
		select {
		case c.send <- e:
		default:
			h.log.Warn("Dropping slow feed viewer", "remote", c.ws.RemoteAddr())
			h.drop(c)
		}
	}
}

// Clients reports the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Feed upgrade failed", "err", err)
		return
	}

	c := &conn{ws: ws, send: make(chan presenter.Entry, sendBuffer)}

	h.mu.Lock()
	backlog := append([]presenter.Entry(nil), h.backlog...)
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.FeedClients.Inc()

	h.log.Debug("Feed viewer connected", "remote", ws.RemoteAddr(), "backlog", len(backlog))

	done := make(chan struct{})
	go h.readLoop(c, done)
	h.writeLoop(c, backlog, done)
}

func (h *Hub) readLoop(c *conn, done chan<- struct{}) {
	defer close(done)

	c.ws.SetReadLimit(maxMsgSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *conn, backlog []presenter.Entry, done <-chan struct{}) {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		h.mu.Lock()
		h.drop(c)
		h.mu.Unlock()
		_ = c.ws.Close()
	}()

	for _, e := range backlog {
		if err := h.write(c, e); err != nil {
			return
		}
	}

	for {
		select {
		case <-done:
			return
		case e, ok := <-c.send:
			if !ok {
				_ = c.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too slow"),
					time.Now().Add(writeWait))
				return
			}
			if err := h.write(c, e); err != nil {
				return
			}
		case <-ping.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) write(c *conn, e presenter.Entry) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(e); err != nil {
		h.log.Debug("Feed write failed", "err", err)
		return err
	}
	return nil
}

// drop must be called with h.mu held.
func (h *Hub) drop(c *conn) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	metrics.FeedClients.Dec()
	c.once.Do(func() { close(c.send) })
}
