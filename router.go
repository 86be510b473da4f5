package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/usersync/handlers"
	"github.com/gogotex/usersync/internal/app"
	"github.com/gogotex/usersync/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var startTime = time.Now()

func newRouter(a *app.App, verifier middleware.Verifier) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// ready only when shared backends answer and auth is wired as configured
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		deps := a.Ping(ctx)
		deps["oidc"] = !a.Config.APIAuth || verifier != nil
		deps["user_service"] = a.Config.UserService.BaseURL != ""

		status, code := "ready", http.StatusOK
		for _, ok := range deps {
			if !ok {
				status, code = "not_ready", http.StatusServiceUnavailable
			}
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r)

	api := r.Group("/api/v1")
	tokenHandler := handlers.NewTokenHandler(a.Tokens)
	if verifier != nil {
		api.Use(middleware.AuthMiddleware(verifier), middleware.ServiceRole(a.Config.APIServiceRole))
		// raw tokens are only served to identified callers
		tokenHandler.WithAccessRoute()
	}
	if a.Config.RateLimit.Enabled {
		api.Use(middleware.RateLimit(a.Config.RateLimit, a.Redis))
	}
	tokenHandler.Register(api)
	handlers.NewSyncHandler(a.Sync).Register(api)
	handlers.NewDirectoryHandler(a.Directory).Register(api)
	return r
}
