// Package app wires config, database, redis, the sync registries and the
// HTTP router together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/communekit/core/internal/config"
	"github.com/communekit/core/internal/database"
	"github.com/communekit/core/internal/gateway/gormgw"
	"github.com/communekit/core/internal/middleware"
	"github.com/communekit/core/internal/modules/comment"
	"github.com/communekit/core/internal/modules/notification"
	"github.com/communekit/core/internal/modules/realtime"
	pkgcron "github.com/communekit/core/internal/pkg/cron"
	"github.com/communekit/core/internal/pkg/jwt"
	pkgredis "github.com/communekit/core/internal/pkg/redis"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	db     *gorm.DB
	gw     *gormgw.Gateway
	hub    *realtime.Hub
	logger *zap.Logger
	cancel context.CancelFunc
	sched  *pkgcron.Scheduler

	commentReg *comment.Registry
	notifReg   *notification.Registry
}

// New initializes the application: config → DB → Redis → hub → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	jwt.SetSecret(cfg.JWTSecret)

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.Redis.URLValue())
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(corsConfig(cfg)))

	hub := realtime.NewHub(logger, func(token string) (string, bool) {
		claims, err := middleware.ValidateTokenClaims(db, token)
		if err != nil {
			return "", false
		}
		return claims.UserID, true
	})

	gw := gormgw.New(db, rc, logger)
	commentReg := comment.NewRegistry(gw, logger,
		cfg.Sync.CommentPageSize, cfg.Sync.ReplyPageSize)
	notifReg := notification.NewRegistry(gw, logger, hub,
		cfg.Sync.NotificationPageSize)

	ctx, cancel := context.WithCancel(context.Background())
	sched := pkgcron.New()
	registerCronJobs(sched, db, logger)
	go sched.Start(ctx)

	app := &App{
		cfg:        cfg,
		router:     router,
		db:         db,
		gw:         gw,
		hub:        hub,
		logger:     logger,
		cancel:     cancel,
		sched:      sched,
		commentReg: commentReg,
		notifReg:   notifReg,
	}
	app.registerRoutes(rc)

	return app, nil
}

func corsConfig(cfg *config.AppConfig) cors.Config {
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 && cfg.IsProd() {
		patterns := cfg.AllowedOrigins
		corsConfig.AllowOriginFunc = func(origin string) bool {
			host := extractOriginHost(origin)
			for _, pattern := range patterns {
				if matchOriginPattern(pattern, host) {
					return true
				}
			}
			return false
		}
	} else {
		corsConfig.AllowOriginFunc = func(origin string) bool { return true }
	}
	return corsConfig
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown tears down the sync registries, the hub and background jobs.
func (a *App) Shutdown() {
	a.cancel()
	a.notifReg.Close()
	a.commentReg.Close()
	a.hub.Close()
}
