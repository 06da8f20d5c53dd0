package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/panelchat/internal/chat"
)

// respondError maps a chat error onto a status code. Server errors are
// logged here and never shown to the client.
func respondError(c *gin.Context, logger *zap.Logger, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, chat.ErrChannelNotFound), errors.Is(err, chat.ErrMessageNotFound):
		status = http.StatusNotFound
	case errors.Is(err, chat.ErrForbidden), errors.Is(err, chat.ErrNotAMember):
		status = http.StatusForbidden
	case errors.Is(err, chat.ErrNotARoom):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		logger.Error(msg, zap.Error(err))
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": chat.Code(err)})
}

func channelParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return uuid.Nil, false
	}
	return id, true
}
