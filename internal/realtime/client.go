package realtime

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one live websocket connection. Writes go through the buffered
// send channel so no event producer ever blocks on a slow socket.
type Client struct {
	id       uuid.UUID
	identity Identity
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
}

func newClient(conn *websocket.Conn, identity Identity, sendBuffer int) *Client {
	return &Client{
		id:       uuid.New(),
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
}

// Identity returns the principal bound at handshake.
func (c *Client) Identity() Identity { return c.identity }

// close shuts the connection down exactly once. Safe from any goroutine.
func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
