package websocket

import (
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// client is one upgraded WebSocket connection. The read pump runs on the
// HTTP handler goroutine; the write pump runs on its own goroutine and is
// the only writer to conn.
type client struct {
	id     string
	conn   *gorilla.Conn
	out    *outbox
	logger *zap.Logger

	done      chan struct{}
	written   chan struct{} // closed when writePump returns
	closeOnce sync.Once
}

func newClient(id string, conn *gorilla.Conn, sendBuffer int, logger *zap.Logger) *client {
	return &client{
		id:      id,
		conn:    conn,
		out:     newOutbox(sendBuffer),
		logger:  logger,
		done:    make(chan struct{}),
		written: make(chan struct{}),
	}
}

// readPump feeds inbound text frames to handle until the peer goes away or
// stays silent past pongWait.
func (c *client) readPump(maxMessageSize int64, pongWait time.Duration, handle func([]byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Debug("setting read deadline", zap.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, frame, err := c.conn.ReadMessage()
		if err != nil {
			if gorilla.IsUnexpectedCloseError(err, gorilla.CloseGoingAway, gorilla.CloseNormalClosure) {
				c.logger.Info("connection closed unexpectedly", zap.Error(err))
			}
			return
		}
		if msgType != gorilla.TextMessage && msgType != gorilla.BinaryMessage {
			continue
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		handle(frame)
	}
}

// writePump drains the outbox and keeps the connection alive with pings.
func (c *client) writePump(pingInterval, writeWait time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		close(c.written)
	}()

	for {
		select {
		case frame, ok := <-c.out.Frames():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(gorilla.TextMessage, frame); err != nil {
				c.logger.Debug("writing frame", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(gorilla.PingMessage, nil); err != nil {
				c.logger.Debug("writing ping", zap.Error(err))
				return
			}
		case <-c.done:
			return
		}
	}
}

// close tears the connection down. Safe to call from any goroutine, more
// than once.
func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.out.Close()
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
