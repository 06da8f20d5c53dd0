package api

import (
	"github.com/gin-gonic/gin"

	"github.com/lalith-99/panelchat/internal/middleware"
)

type Handlers struct {
	Channels *ChannelHandler
	Members  *MembershipHandler
	Messages *MessageHandler
	Users    *UserHandler
	// Socket authenticates on its own, from ?token= or the header.
	Socket gin.HandlerFunc
}

// RegisterRoutes mounts the /v1 API. Channel and room listings accept
// anonymous callers; history, pins and everything that acts as a user
// need a token.
func RegisterRoutes(r *gin.Engine, secret string, h Handlers) {
	v1 := r.Group("/v1")

	if h.Socket != nil {
		v1.GET("/ws", h.Socket)
	}

	public := v1.Group("")
	public.Use(middleware.OptionalAuth(secret))
	public.GET("/channels", h.Channels.List)
	public.GET("/rooms", h.Channels.Rooms)

	private := v1.Group("")
	private.Use(middleware.AuthMiddleware(secret))
	private.GET("/users/me", h.Users.GetMe)
	private.GET("/channels/:id/messages", h.Messages.List)
	private.GET("/channels/:id/pins", h.Messages.Pinned)
	private.POST("/channels/:id/join", h.Members.Join)
	private.POST("/channels/:id/leave", h.Members.Leave)
	private.GET("/channels/:id/members", h.Members.ListMembers)
	private.POST("/messages/:id/pin", h.Messages.Pin)
	private.POST("/messages/:id/unpin", h.Messages.Unpin)
}
