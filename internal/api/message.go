package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/panelchat/internal/chat"
	"github.com/lalith-99/panelchat/internal/middleware"
)

// MessageHandler serves history and pins. Messages are only ever created
// through the socket, so there is no POST here.
type MessageHandler struct {
	directory *chat.Directory
	pipeline  *chat.Pipeline
	logger    *zap.Logger
}

func NewMessageHandler(directory *chat.Directory, pipeline *chat.Pipeline, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{directory: directory, pipeline: pipeline, logger: logger}
}

// List handles GET /v1/channels/:id/messages?before=&limit=
func (h *MessageHandler) List(c *gin.Context) {
	channelID, ok := channelParam(c)
	if !ok {
		return
	}

	var before int64
	if b := c.Query("before"); b != "" {
		var err error
		before, err = strconv.ParseInt(b, 10, 64)
		if err != nil || before < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'before' parameter"})
			return
		}
	}

	limit := chat.DefaultHistoryLimit
	if l := c.Query("limit"); l != "" {
		var err error
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter"})
			return
		}
	}

	messages, err := h.directory.GetHistory(c.Request.Context(), middleware.GetUserID(c), channelID, before, limit)
	if err != nil {
		respondError(c, h.logger, "failed to list messages", err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// Pinned handles GET /v1/channels/:id/pins
func (h *MessageHandler) Pinned(c *gin.Context) {
	channelID, ok := channelParam(c)
	if !ok {
		return
	}

	pins, err := h.directory.ListPinned(c.Request.Context(), middleware.GetUserID(c), channelID)
	if err != nil {
		respondError(c, h.logger, "failed to list pinned messages", err)
		return
	}
	c.JSON(http.StatusOK, pins)
}

// Pin handles POST /v1/messages/:id/pin
func (h *MessageHandler) Pin(c *gin.Context) { h.setPinned(c, true) }

// Unpin handles POST /v1/messages/:id/unpin
func (h *MessageHandler) Unpin(c *gin.Context) { h.setPinned(c, false) }

func (h *MessageHandler) setPinned(c *gin.Context, pinned bool) {
	messageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || messageID < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	msg, err := h.pipeline.SetPinned(c.Request.Context(), middleware.GetUserID(c), messageID, pinned)
	if err != nil {
		respondError(c, h.logger, "failed to update pin", err)
		return
	}
	c.JSON(http.StatusOK, msg)
}
