package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lalith-99/panelchat/internal/chat"
)

// Handler serves GET /v1/ws. The session is authenticated before the
// upgrade, so a bad token gets a plain 401 and never a socket.
type Handler struct {
	manager  *chat.Manager
	router   *chat.Router
	upgrader websocket.Upgrader
	pongWait time.Duration
	logger   *zap.Logger
}

func NewHandler(manager *chat.Manager, router *chat.Router, pongWait time.Duration, logger *zap.Logger) *Handler {
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}
	return &Handler{
		manager: manager,
		router:  router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Sockets authenticate with a token, not a cookie.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		pongWait: pongWait,
		logger:   logger,
	}
}

// Serve handles GET /v1/ws?token=... (or Authorization: Bearer ...).
func (h *Handler) Serve(c *gin.Context) {
	s, err := h.manager.Connect(c.Request.Context(), tokenFrom(c))
	if err != nil {
		h.logger.Info("websocket connect refused",
			zap.String("remote_addr", c.ClientIP()),
			zap.Error(err),
		)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		h.manager.Disconnect(s)
		return
	}

	cl := newClient(conn, s, h.manager, h.router, h.pongWait, h.logger)
	go cl.writePump()
	cl.readPump(c.Request.Context())
}

func tokenFrom(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
