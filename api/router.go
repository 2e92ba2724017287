package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/egor6820/price-tracker-server/api/handler"
	"github.com/egor6820/price-tracker-server/api/middleware"
	"github.com/egor6820/price-tracker-server/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
// ctx bounds the background goroutines the middleware starts.
//
// Middleware chain:
//
//	Global:  Recovery → RequestLog
//	/parse:  Auth (if keys configured) → RateLimit
//
// /ping sits outside auth so monitoring probes always work.
func NewRouter(ctx context.Context, ex handler.Extractor, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLog())

	r.GET("/ping", handler.Ping())

	protected := r.Group("")
	protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	protected.Use(middleware.RateLimit(ctx, cfg.RateLimit))
	protected.POST("/parse", handler.Parse(ex))

	return r
}
