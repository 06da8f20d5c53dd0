package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/panelchat/internal/chat"
	"github.com/lalith-99/panelchat/internal/middleware"
)

type MembershipHandler struct {
	directory *chat.Directory
	logger    *zap.Logger
}

func NewMembershipHandler(directory *chat.Directory, logger *zap.Logger) *MembershipHandler {
	return &MembershipHandler{directory: directory, logger: logger}
}

// Join handles POST /v1/channels/:id/join
//
// 201 when the membership was created, 200 when it already existed. Either
// way the client still has to send "join" on its socket to receive events.
func (h *MembershipHandler) Join(c *gin.Context) {
	channelID, ok := channelParam(c)
	if !ok {
		return
	}

	created, err := h.directory.JoinRoom(c.Request.Context(), middleware.GetUserID(c), channelID)
	if err != nil {
		respondError(c, h.logger, "failed to join room", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"channel_id": channelID, "joined": true})
}

// Leave handles POST /v1/channels/:id/leave
func (h *MembershipHandler) Leave(c *gin.Context) {
	channelID, ok := channelParam(c)
	if !ok {
		return
	}

	if err := h.directory.LeaveRoom(c.Request.Context(), middleware.GetUserID(c), channelID); err != nil {
		respondError(c, h.logger, "failed to leave room", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListMembers handles GET /v1/channels/:id/members
func (h *MembershipHandler) ListMembers(c *gin.Context) {
	channelID, ok := channelParam(c)
	if !ok {
		return
	}

	members, err := h.directory.ListMembers(c.Request.Context(), middleware.GetUserID(c), channelID)
	if err != nil {
		respondError(c, h.logger, "failed to list members", err)
		return
	}
	c.JSON(http.StatusOK, members)
}
