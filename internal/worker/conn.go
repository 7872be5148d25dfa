package worker

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait bounds a single frame write to the peer.
	writeWait = 10 * time.Second

	// maxControlBytes caps inbound control frames. Data flows one way;
	// clients only ever send small subscription requests.
	maxControlBytes = 4096
)

// Conn is one client connection owned by a worker. Outbound traffic goes
// through a bounded send channel; a connection that cannot keep up is
// closed rather than allowed to queue without limit.
type Conn struct {
	id     string
	sock   *websocket.Conn
	send   chan []byte
	worker *Worker
	log    *zap.Logger

	mu     sync.Mutex
	closed bool

	done     chan struct{}
	doneOnce sync.Once
}

func (c *Conn) ID() string { return c.id }

// Deliver enqueues a data payload without blocking. A full buffer means the
// peer is not draining: the connection is forced closed and false returned.
func (c *Conn) Deliver(payload string) bool {
	return c.enqueue([]byte(payload))
}

func (c *Conn) enqueue(frame []byte) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	select {
	case c.send <- frame:
		c.mu.Unlock()
		return true
	default:
		c.closed = true
		c.mu.Unlock()
		c.log.Warn("closing connection on backpressure", zap.String("conn", c.id))
		c.shutdown()
		return false
	}
}

// sendJSON serializes and enqueues a control frame (confirmation or error).
// Only control frames are serialized here; data payloads pass through
// verbatim.
func (c *Conn) sendJSON(v interface{}) {
	frame, err := json.Marshal(v)
	if err != nil {
		c.log.Error("marshal control frame", zap.Error(err), zap.String("conn", c.id))
		return
	}
	c.enqueue(frame)
}

func (c *Conn) sendError(message string) {
	c.sendJSON(errorFrame{Type: "error", Message: message, Timestamp: time.Now().UTC()})
}

// closeAbnormal sends close code 1011 with a generic message and tears the
// connection down. Used when handling one of its messages failed
// unexpectedly; other connections are unaffected.
func (c *Conn) closeAbnormal(message string) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	deadline := time.Now().Add(writeWait)
	frame := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, message)
	_ = c.sock.WriteControl(websocket.CloseMessage, frame, deadline)
	c.shutdown()
}

// shutdown closes the socket and releases the write pump. Safe to call more
// than once and from any goroutine; the read pump's exit drives the
// worker-side teardown.
func (c *Conn) shutdown() {
	c.doneOnce.Do(func() { close(c.done) })
	_ = c.sock.Close()
}

func (c *Conn) readPump(idleTimeout time.Duration) {
	defer c.worker.dropConn(c)
	c.sock.SetReadLimit(maxControlBytes)
	_ = c.sock.SetReadDeadline(time.Now().Add(idleTimeout))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(idleTimeout))
	})
	for {
		_, raw, err := c.sock.ReadMessage()
		if err != nil {
			return
		}
		// Any inbound frame counts as activity for the idle timer.
		_ = c.sock.SetReadDeadline(time.Now().Add(idleTimeout))
		c.worker.handleControl(c, raw)
	}
}

func (c *Conn) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.sock.Close()
	}()
	for {
		select {
		case frame := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
