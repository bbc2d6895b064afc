// Package server manages individual chat connections: each Client owns a
// WebSocket connection, a buffered outbound channel drained by a write pump,
// and a done signal that ties teardown of both together.
package server

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// sendBufferSize is the outbound queue depth per connection. A member that
// falls this far behind a room's broadcast stream is dropped.
const sendBufferSize = 256

var (
	errClientClosed = errors.New("client closed")
	errSendTimeout  = errors.New("send timed out")
)

// Client represents one chat participant's connection. The handler goroutine
// reads inbound frames while the write pump serializes all outbound traffic,
// so the connection is never written from two goroutines at once.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	logger *zap.Logger

	closeOnce sync.Once
}

// NewClient wraps a WebSocket connection. A nil conn is tolerated so unit
// tests can exercise queueing without a network peer.
func NewClient(conn *websocket.Conn, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// ID returns the connection identifier used for log correlation.
func (c *Client) ID() string {
	return c.id
}

// SendQueue exposes the outbound channel for tests.
func (c *Client) SendQueue() <-chan []byte {
	return c.send
}

// Close signals the client to shut down. The write pump flushes whatever is
// queued, sends a close frame, and closes the connection, which in turn
// unblocks the handler's read loop. Safe to call from any goroutine, any
// number of times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// trySend queues data without blocking. It reports false when the buffer is
// full or the client is shutting down; broadcast treats that as a failed
// delivery and drops the member.
func (c *Client) trySend(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// deliver queues data, waiting up to timeout for buffer space. The handler
// uses it for init acks, history replay, and private error events, where
// silently dropping the frame would break the protocol sequence.
func (c *Client) deliver(data []byte, timeout time.Duration) error {
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errClientClosed
	case <-time.After(timeout):
		return errSendTimeout
	}
}

// writePump drains the send channel onto the connection and keeps the
// connection alive with periodic pings. It exits when a write fails or Close
// is called, flushing queued frames first, and closes the connection on the
// way out so a blocked read loop unblocks too.
func (c *Client) writePump(pingInterval, writeWait time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Debug("closing connection", zap.String("conn", c.id), zap.Error(err))
		}
	}()

	for {
		select {
		case data := <-c.send:
			if !c.writeFrame(data, writeWait) {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.flushQueue(writeWait)
			// Best effort; the peer may already be gone.
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) writeFrame(data []byte, writeWait time.Duration) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Debug("setting write deadline", zap.String("conn", c.id), zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Debug("writing frame", zap.String("conn", c.id), zap.Error(err))
		}
		return false
	}
	return true
}

// flushQueue writes out frames that were queued before Close was signaled,
// so protocol sequences like an error event followed by teardown reach the
// peer.
func (c *Client) flushQueue(writeWait time.Duration) {
	for {
		select {
		case data := <-c.send:
			if !c.writeFrame(data, writeWait) {
				return
			}
		default:
			return
		}
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
