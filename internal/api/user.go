package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/panelchat/internal/chat"
	"github.com/lalith-99/panelchat/internal/middleware"
	"github.com/lalith-99/panelchat/internal/models"
	"github.com/lalith-99/panelchat/internal/repository"
)

type UserHandler struct {
	repo    repository.UserRepository
	manager *chat.Manager
	logger  *zap.Logger
}

func NewUserHandler(repo repository.UserRepository, manager *chat.Manager, logger *zap.Logger) *UserHandler {
	return &UserHandler{repo: repo, manager: manager, logger: logger}
}

type meResponse struct {
	User *models.User `json:"user"`
	// ActiveSessions counts the caller's live sockets, one per device.
	ActiveSessions int `json:"active_sessions"`
}

// GetMe handles GET /v1/users/me
func (h *UserHandler) GetMe(c *gin.Context) {
	userID := middleware.GetUserID(c)

	user, err := h.repo.GetByID(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user"})
		return
	}

	// Token is valid but the account service has since removed the user.
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	// Accounts provisioned without a display name fall back to the one
	// the token was issued with.
	if user.DisplayName == "" {
		user.DisplayName = middleware.GetDisplayName(c)
	}

	c.JSON(http.StatusOK, meResponse{User: user, ActiveSessions: len(h.manager.Sessions(userID))})
}
