package cmd

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chat-server/internal/handlers"
	"chat-server/internal/middleware"
	"chat-server/internal/ws"
)

type routeDeps struct {
	auth     *handlers.AuthHandler
	profile  *handlers.ProfileHandler
	friends  *handlers.FriendHandler
	groups   *handlers.GroupHandler
	channels *handlers.ChannelHandler
	ws       *ws.UserWebSocketHandler
	authn    *middleware.Authenticator
}

func registerRoutes(router *gin.Engine, d routeDeps) {
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/register", d.auth.Register)
	router.POST("/login", d.auth.Login)

	authMiddleware := middleware.AuthMiddleware(d.authn)

	router.GET("/profile/:username", authMiddleware, d.profile.GetProfile)
	router.PUT("/profile", authMiddleware, d.profile.UpdateProfile)

	router.POST("/friends/requests", authMiddleware, d.friends.SendRequest)
	router.GET("/friends/requests", authMiddleware, d.friends.ListRequests)
	router.POST("/friends/requests/:request_id/respond", authMiddleware, d.friends.RespondRequest)
	router.GET("/dms", authMiddleware, d.friends.ListDMs)

	router.POST("/groups", authMiddleware, d.groups.CreateGroup)
	router.GET("/groups", authMiddleware, d.groups.ListGroups)
	router.POST("/groups/:group_id/members", authMiddleware, d.groups.AddMember)

	router.GET("/channels/:channel/search", authMiddleware, d.channels.Search)
	router.GET("/online", authMiddleware, d.channels.Online)

	router.GET("/ws", d.ws.Handle)
}
