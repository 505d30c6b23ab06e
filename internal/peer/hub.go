package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrNotDelivered is returned when a message could not be queued for every
// client before the context ended or a client went away.
var ErrNotDelivered = errors.New("peer: message not delivered")

const (
	// clientBuffer is the number of messages queued per connection; senders
	// wait for room beyond it.
	clientBuffer = 64
	writeWait    = 10 * time.Second
	hubName      = "hub"
)

type conn struct {
	id  string
	ws  *websocket.Conn
	out chan Message
	// done is closed when the writer stops.
	done chan struct{}
}

// Hub relays every message received from a client to all the other
// clients. It is an http.Handler.
type Hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	conns   map[*conn]struct{}
	handler func(Message)

	sent    atomic.Int64
	dropped atomic.Int64
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:   log.With("component", "hub"),
		conns: make(map[*conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 16,
			WriteBufferSize: 1 << 16,
		},
	}
}

// OnMessage sets the callback for messages coming from clients.
func (h *Hub) OnMessage(fn func(Message)) {
	h.mu.Lock()
	h.handler = fn
	h.mu.Unlock()
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	c := &conn{
		id:   uuid.NewString(),
		ws:   ws,
		out:  make(chan Message, clientBuffer),
		done: make(chan struct{}),
	}
	h.add(c)
	defer h.remove(c)
	go h.write(c)

	for {
		var m Message
		if err := ws.ReadJSON(&m); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("read failed", "client", c.id, "err", err)
			}
			return
		}
		if m.From == "" {
			m.From = c.id
		}
		ctx, cancel := context.WithTimeout(r.Context(), writeWait)
		if err := h.deliver(ctx, m, c); err != nil {
			h.log.Warn("relay incomplete", "client", c.id, "err", err)
		}
		cancel()

		h.mu.RLock()
		fn := h.handler
		h.mu.RUnlock()
		if fn != nil {
			fn(m)
		}
	}
}

func (h *Hub) add(c *conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	h.log.Info("peer connected", "client", c.id, "total", n)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	_, ok := h.conns[c]
	delete(h.conns, c)
	n := len(h.conns)
	if ok {
		close(c.out)
	}
	h.mu.Unlock()
	if ok {
		h.log.Info("peer disconnected", "client", c.id, "total", n)
	}
}

func (h *Hub) write(c *conn) {
	defer close(c.done)
	defer c.ws.Close()
	for m := range c.out {
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteJSON(m); err != nil {
			h.log.Debug("write failed", "client", c.id, "err", err)
			return
		}
		h.sent.Add(1)
	}
}

// deliver queues m for every connection but skip, waiting for room in full
// queues until ctx is done. Messages are never reordered; a client that
// misses one makes deliver fail.
func (h *Hub) deliver(ctx context.Context, m Message, skip *conn) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	failed := 0
	for c := range h.conns {
		if c == skip {
			continue
		}
		select {
		case c.out <- m:
		case <-c.done:
			failed++
		case <-ctx.Done():
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	h.dropped.Add(int64(failed))
	h.log.Warn("message dropped", "type", m.Type, "target", m.Target, "clients", failed)
	return fmt.Errorf("%w: %s %s to %d clients", ErrNotDelivered, m.Type, m.Target, failed)
}

// Send broadcasts a message to every client. It waits for room in the
// queues of slow clients and fails with ErrNotDelivered when ctx ends
// first, so that a later message never overtakes a lost one.
func (h *Hub) Send(ctx context.Context, typ, target string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.deliver(ctx, newMessage(hubName, typ, target, payload), nil)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Stats returns the number of messages written and dropped.
func (h *Hub) Stats() (sent, dropped int64) {
	return h.sent.Load(), h.dropped.Load()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
		c.ws.Close()
	}
}
