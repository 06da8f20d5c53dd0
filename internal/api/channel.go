package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/panelchat/internal/chat"
	"github.com/lalith-99/panelchat/internal/middleware"
)

// ChannelHandler serves the channel directory. Both routes run behind
// OptionalAuth: anonymous viewers see the global channel and the public
// room list.
type ChannelHandler struct {
	directory *chat.Directory
	logger    *zap.Logger
}

func NewChannelHandler(directory *chat.Directory, logger *zap.Logger) *ChannelHandler {
	return &ChannelHandler{directory: directory, logger: logger}
}

// List handles GET /v1/channels
func (h *ChannelHandler) List(c *gin.Context) {
	channels, err := h.directory.ListChannelsFor(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "failed to list channels", err)
		return
	}

	// The store returns make([]..., 0), so this is [] rather than null.
	c.JSON(http.StatusOK, channels)
}

// Rooms handles GET /v1/rooms
func (h *ChannelHandler) Rooms(c *gin.Context) {
	rooms, err := h.directory.ListDiscoverableRooms(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "failed to list rooms", err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}
