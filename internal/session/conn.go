package session

import (
	"sync"
	"time"
)

// Conn is the session binding of one live connection: its identity, the
// bounded outbound queue drained by the transport writer, and a done signal
// closed when the connection must go away.
type Conn struct {
	ID          string
	UserID      string
	ConnectedAt time.Time

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Outbound returns the queue of encoded events waiting to be written.
func (c *Conn) Outbound() <-chan []byte { return c.send }

// Done is closed once the connection is evicted or torn down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close signals the transport to stop. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// enqueue never blocks; it reports false when the queue is full or the
// connection is already closed.
func (c *Conn) enqueue(data []byte) bool {
	if c.closed() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}
