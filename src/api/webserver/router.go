package webserver

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func attachRoutes(r *gin.Engine, deps Deps) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
	}))

	authH := NewAuth(deps.DB, deps.Verifier, deps.Log)
	chanH := NewChannels(deps.Dir, deps.Audit)
	msgH := NewMessages(deps.Store, deps.Hub, deps.Audit)
	upH := NewUploads(deps.Store, deps.Hub, deps.Audit, deps.Cfg.MaxFileSize)
	reqH := NewRequests(deps.Workflow, deps.Audit)
	wsH := NewWS(deps.Hub, deps.RDB, deps.Verifier, deps.Log)

	msgLimiter := NewRateLimiter(deps.Cfg.MsgRate, time.Minute)

	v1 := r.Group("/v1")
	{
		v1.POST("/auth/login", authH.Login)

		secured := v1.Group("")
		secured.Use(JWTMiddleware(deps.Verifier))
		{
			secured.GET("/channels", chanH.List)
			secured.POST("/channels", chanH.Create)
			secured.GET("/channels/:id", chanH.Get)
			secured.GET("/channels/:id/messages", msgH.List)
			secured.POST("/channels/:id/messages", RateLimitMiddleware(msgLimiter), msgH.Create)
			secured.POST("/channels/:id/files", upH.Create)
			secured.GET("/files/:id", upH.Download)

			secured.POST("/requests", reqH.Create)
			secured.GET("/requests", reqH.List)
			secured.POST("/requests/:id/approve", reqH.Approve)
			secured.POST("/requests/:id/reject", reqH.Reject)

			secured.POST("/ws/ticket", wsH.Ticket)
		}
	}

	// The upgrade authenticates itself via ticket or token query param.
	r.GET("/ws", wsH.Connect)
}
