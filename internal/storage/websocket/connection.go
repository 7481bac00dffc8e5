package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/vortexreplay/recorder/pkg/streaming"
)

const (
	sendChSize   = 64
	maxReconnect = 5
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
)

var errClosed = errors.New("websocket connection closed")

// connection manages a WebSocket connection with a single write goroutine.
// Acks are routed to waiters by request id.
type connection struct {
	mu      sync.Mutex
	conn    *ws.Conn
	sendCh  chan []byte
	done    chan struct{} // closed on shutdown
	closed  bool
	waiters map[string]chan streaming.AckMessage

	wsURL       string
	secret      string
	dialTimeout time.Duration

	logger *slog.Logger
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		sendCh:  make(chan []byte, sendChSize),
		done:    make(chan struct{}),
		waiters: make(map[string]chan streaming.AckMessage),
		logger:  logger,
	}
}

// dial connects to the server and starts read/write loops.
func (c *connection) dial(rawURL, secret string, dialTimeout time.Duration) error {
	c.wsURL = rawURL
	c.secret = secret
	c.dialTimeout = dialTimeout

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.writeLoop(conn)
	go c.readLoop(conn)
	return nil
}

// dialOnce performs a single dial with the secret query param.
func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", c.secret)
	u.RawQuery = q.Encode()

	dialer := *ws.DefaultDialer
	if c.dialTimeout > 0 {
		dialer.HandshakeTimeout = c.dialTimeout
	}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// writeLoop drains sendCh into conn. It returns on error or shutdown; a
// write error hands over to reconnect.
func (c *connection) writeLoop(conn *ws.Conn) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				go c.reconnect(conn)
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				go c.reconnect(conn)
				return
			}
		}
	}
}

// readLoop routes acks to their waiters.
func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("WebSocket read error", "error", err)
			go c.reconnect(conn)
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != streaming.TypeAck {
			c.logger.Debug("Non-ack message received", "raw", string(message))
			continue
		}

		c.mu.Lock()
		ch, ok := c.waiters[ack.ID]
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("Ack without waiter", "for", ack.For, "id", ack.ID)
			continue
		}
		select {
		case ch <- ack:
		default:
		}
	}
}

// reconnect replaces a failed conn with exponential backoff. Only the first
// caller for a given conn does the work.
func (c *connection) reconnect(failed *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != failed {
		c.mu.Unlock()
		return
	}
	_ = failed.Close()
	c.conn = nil
	c.mu.Unlock()

	backoff := time.Second
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		c.logger.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()

		c.logger.Info("WebSocket reconnected", "attempt", attempt)
		go c.writeLoop(conn)
		go c.readLoop(conn)
		return
	}

	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

// request sends data and blocks until the ack carrying id arrives, the
// timeout expires or ctx is done.
func (c *connection) request(ctx context.Context, data []byte, id string, timeout time.Duration) (streaming.AckMessage, error) {
	ch := make(chan streaming.AckMessage, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return streaming.AckMessage{}, errClosed
	}
	c.waiters[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.waiters, id)
		c.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.sendCh <- data:
	case <-ctx.Done():
		return streaming.AckMessage{}, ctx.Err()
	case <-timer.C:
		return streaming.AckMessage{}, fmt.Errorf("timeout queueing request %s", id)
	case <-c.done:
		return streaming.AckMessage{}, errClosed
	}

	select {
	case ack := <-ch:
		return ack, nil
	case <-ctx.Done():
		return streaming.AckMessage{}, ctx.Err()
	case <-timer.C:
		return streaming.AckMessage{}, fmt.Errorf("timeout waiting for ack of %s", id)
	case <-c.done:
		return streaming.AckMessage{}, fmt.Errorf("%w while waiting for ack of %s", errClosed, id)
	}
}

// close sends a close frame and shuts down all goroutines.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}
	return nil
}
