// Package ws carries chat sessions over WebSocket connections.
package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lalith-99/panelchat/internal/chat"
	"github.com/lalith-99/panelchat/internal/session"
)

const (
	writeWait = 10 * time.Second
	// maxMessageSize fits a full-length message body of multi-byte runes
	// plus the envelope.
	maxMessageSize = 32 << 10
)

// client pumps frames between one WebSocket connection and its session.
// readPump runs on the handler goroutine, writePump on its own.
type client struct {
	conn       *websocket.Conn
	session    *session.Session
	manager    *chat.Manager
	router     *chat.Router
	pongWait   time.Duration
	pingPeriod time.Duration
	logger     *zap.Logger
}

func newClient(conn *websocket.Conn, s *session.Session, manager *chat.Manager, router *chat.Router, pongWait time.Duration, logger *zap.Logger) *client {
	return &client{
		conn:       conn,
		session:    s,
		manager:    manager,
		router:     router,
		pongWait:   pongWait,
		pingPeriod: (pongWait * 9) / 10,
		logger:     logger.With(zap.String("session_id", s.ID.String())),
	}
}

// readPump dispatches inbound frames in order until the peer goes away.
// Leaving it always disconnects the session, which stops writePump.
func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.manager.Disconnect(c.session)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		c.router.Dispatch(ctx, c.session, data)
	}
}

// writePump drains the session's queue onto the socket and keeps the
// connection alive with pings. It exits once the session is closed.
func (c *client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.session.Outbound():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				c.manager.Disconnect(c.session)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.manager.Disconnect(c.session)
				return
			}
		case <-c.session.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
