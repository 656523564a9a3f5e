// Package server exposes the per-client Session Manager, Feed Aggregator,
// profile and notification services over a JSON HTTP API.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/it35lab/campusfeed/app_config"
	"github.com/it35lab/campusfeed/notification"
	"github.com/it35lab/campusfeed/server/middlewares"
	"github.com/it35lab/campusfeed/utils"
)

type Server struct {
	registry *Registry
	signals  *notification.SignalChannels
	config   app_config.ServerAppConfig
	upgrader websocket.Upgrader
}

func New(registry *Registry, signals *notification.SignalChannels, config app_config.ServerAppConfig) *Server {
	return &Server{
		registry: registry,
		signals:  signals,
		config:   config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are checked by the cors middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// CorsConfig allows credentialed requests from any origin so the client
// cookie travels with them.
func CorsConfig() cors.Config {
	config := cors.DefaultConfig()
	config.AllowOriginFunc = func(origin string) bool { return true }
	config.AllowCredentials = true
	config.AddAllowHeaders(middlewares.ClientHeader)
	config.MaxAge = 12 * time.Hour
	return config
}

// AddRoutes registers every route on router.
func (s *Server) AddRoutes(router gin.IRouter) {
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	api := router.Group("/")
	api.Use(middlewares.ClientKey())

	authGroup := api.Group("/auth")
	authGroup.POST("/register", s.Register)
	authGroup.POST("/login", s.Login)
	authGroup.POST("/logout", s.Logout)
	authGroup.GET("/session", s.Session)

	guarded := api.Group("/")
	guarded.Use(middlewares.Guard(s.viewer, s.config.BackendTimeout()))

	guarded.GET("/posts", s.ListPosts)
	guarded.POST("/posts", s.CreatePost)
	guarded.PUT("/posts/:id", s.EditPost)
	guarded.DELETE("/posts/:id", s.DeletePost)
	guarded.POST("/posts/:id/like", s.ToggleLike)
	guarded.GET("/posts/:id/comments", s.ListComments)
	guarded.POST("/posts/:id/comments", s.AddComment)
	guarded.PUT("/posts/:id/reply-target", s.SetReplyTarget)
	guarded.DELETE("/posts/:id/reply-target", s.ClearReplyTarget)

	guarded.GET("/profile", s.GetProfile)
	guarded.PUT("/profile", s.UpdateProfile)
	guarded.POST("/profile/verify-password", s.VerifyPassword)

	guarded.GET("/notifications", s.ListNotifications)
	guarded.POST("/notifications/read", s.MarkNotificationsRead)

	guarded.GET("/subscription", s.Subscribe)
}

func (s *Server) client(c *gin.Context) *Client {
	return s.registry.Get(middlewares.GetClientKey(c))
}

func (s *Server) viewer(key string) middlewares.Viewer {
	return s.registry.Get(key).Session
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(err error) int {
	switch utils.KindOf(err) {
	case utils.IdentityError:
		return http.StatusUnauthorized
	case utils.AuthorizationError:
		return http.StatusForbidden
	case utils.NotFoundError:
		return http.StatusNotFound
	case utils.ValidationError:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(StatusOf(err), gin.H{
		"code": utils.ErrorCodeOf(err),
		"msg":  utils.UserMessage(err),
	})
}

func abortWithBadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"code": utils.ErrorBadRequest,
		"msg":  err.Error(),
	})
}
