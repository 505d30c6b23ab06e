package peer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is a connection to a Hub.
type Client struct {
	id  string
	ws  *websocket.Conn
	log *slog.Logger

	wmu  sync.Mutex
	done chan struct{}
	once sync.Once
}

// Dial connects to the hub at url (ws:// or wss://).
func Dial(ctx context.Context, url string, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("peer: dial %s: %w", url, err)
	}
	id := uuid.NewString()
	return &Client{
		id:   id,
		ws:   ws,
		log:  log.With("peer", id),
		done: make(chan struct{}),
	}, nil
}

func (c *Client) ID() string { return c.id }

// OnMessage starts reading messages and calls fn for each of them, from a
// single goroutine. It must be called once.
func (c *Client) OnMessage(fn func(Message)) {
	go func() {
		defer c.once.Do(func() { close(c.done) })
		for {
			var m Message
			if err := c.ws.ReadJSON(&m); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Debug("read failed", "err", err)
				}
				return
			}
			fn(m)
		}
	}()
}

// Done is closed when the connection is lost.
func (c *Client) Done() <-chan struct{} { return c.done }

// Send writes a message to the hub, which relays it to the other clients.
func (c *Client) Send(ctx context.Context, typ, target string, payload []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteJSON(newMessage(c.id, typ, target, payload)); err != nil {
		return fmt.Errorf("peer: send %s: %w", typ, err)
	}
	return nil
}

// Close cleanly closes the connection.
func (c *Client) Close() error {
	c.wmu.Lock()
	err := c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.wmu.Unlock()
	if cerr := c.ws.Close(); err == nil {
		err = cerr
	}
	return err
}
