package ws

import (
	"chat-match/contract"
	"chat-match/domain"
	"chat-match/errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var _ contract.ConnectionSink = (*Client)(nil)

// Client owns one WebSocket connection.
// A single goroutine writes (WriteLoop), a single goroutine reads (ReadLoop).
type Client struct {
	id        domain.ConnectionID
	conn      *websocket.Conn
	log       *slog.Logger
	settings  Settings
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(id domain.ConnectionID, conn *websocket.Conn, log *slog.Logger, settings Settings) *Client {
	return &Client{
		id:       id,
		conn:     conn,
		log:      log,
		settings: settings,
		send:     make(chan []byte, settings.ConnectionBufferSize),
		done:     make(chan struct{}),
	}
}

// Send queues data for the write loop and never blocks.
func (c *Client) Send(data []byte) error {
	select {
	case <-c.done:
		return errors.ErrConnectionGone
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errors.ErrConnectionGone
	default:
		return errors.ErrSlowConsumer
	}
}

// Close stops the write loop, which closes the socket. Safe to call many times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// WriteLoop flushes queued frames and pings the peer until Close or a write failure.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(c.settings.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.drain()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.settings.WriteTimeout))
			return
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.log.Debug("Write failed, closing connection", "conn", c.id.Suffix(), "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.log.Debug("Ping failed, closing connection", "conn", c.id.Suffix(), "error", err)
				c.Close()
				return
			}
		}
	}
}

// drain writes what is already queued so a last status reaches the peer.
func (c *Client) drain() {
	for {
		select {
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
	return c.conn.WriteMessage(messageType, data)
}

// ReadLoop hands every text frame to onFrame until the peer goes away
// or misses a pong for longer than the ping interval plus the pong timeout.
func (c *Client) ReadLoop(onFrame func([]byte)) {
	pongWait := c.settings.PingInterval + c.settings.PongTimeout
	c.conn.SetReadLimit(c.settings.readLimit())
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Debug("Unexpected close", "conn", c.id.Suffix(), "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage || len(data) == 0 {
			continue
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		onFrame(data)
	}
}
