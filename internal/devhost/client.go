package devhost

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/millennium/bridge"
)

// client is one connected context.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	target bridge.Target
	send   chan []byte
}

// readPump records inbound envelopes until the connection drops.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopped:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Debug("read failed", zap.Stringer("target", c.target), zap.Error(err))
			}
			return
		}
		env, err := bridge.DecodeEnvelope(data)
		if err != nil {
			c.hub.logger.Warn("dropping malformed envelope", zap.Stringer("target", c.target), zap.Error(err))
			continue
		}
		c.hub.record(Message{Target: c.target, Envelope: env, At: time.Now()})
	}
}

// writePump forwards queued frames and keeps the connection alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
