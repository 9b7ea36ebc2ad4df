package app

import (
	"time"

	"github.com/communekit/core/internal/middleware"
	"github.com/communekit/core/internal/modules/comment"
	"github.com/communekit/core/internal/modules/event"
	"github.com/communekit/core/internal/modules/notification"
	"github.com/communekit/core/internal/modules/user"
	pkgredis "github.com/communekit/core/internal/pkg/redis"
	"github.com/communekit/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

var processStart = time.Now()

func (a *App) registerRoutes(rc *pkgredis.Client) {
	a.router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{
			"status": "ok",
			"uptime": time.Since(processStart).Round(time.Second).String(),
		})
	})

	a.router.Any("/socket.io/*any", gin.WrapH(a.hub.Handler()))

	authMW := middleware.Auth(a.db)

	api := a.router.Group("/api/v1")
	api.Use(middleware.OptionalAuth(a.db))
	api.Use(middleware.RateLimit(rc.Raw()))

	user.NewHandler(user.NewService(a.db)).RegisterRoutes(api, authMW)
	event.NewHandler(event.NewService(a.db)).RegisterRoutes(api, authMW)
	comment.NewHandler(a.commentReg, a.gw).RegisterRoutes(api, authMW)
	notification.NewHandler(a.notifReg).RegisterRoutes(api, authMW)

	admin := api.Group("/admin", authMW, middleware.RequireModerator())
	admin.GET("/cron", func(c *gin.Context) {
		response.OK(c, a.sched.List())
	})
	admin.POST("/cron/:name/run", func(c *gin.Context) {
		if err := a.sched.Run(c.Request.Context(), c.Param("name")); err != nil {
			response.NotFoundMsg(c, err.Error())
			return
		}
		response.NoContent(c)
	})
	admin.GET("/realtime/online", func(c *gin.Context) {
		response.OK(c, gin.H{"count": a.hub.ClientCount("")})
	})
}
