package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gogotex/usersync/internal/app"
	"github.com/gogotex/usersync/internal/config"
	"github.com/gogotex/usersync/internal/oidc"
	"github.com/gogotex/usersync/pkg/logger"
	"github.com/gogotex/usersync/pkg/metrics"
	"github.com/gogotex/usersync/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.SetOutput(os.Stdout, os.Getenv("LOG_FORMAT"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: keycloak=%v user_service=%v token_store=%s sync=%v mode=%s",
		cfg.Keycloak.Configured(), cfg.UserService.BaseURL != "", cfg.Token.Store, cfg.Sync.Enabled, cfg.Sync.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to initialize: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Warnf("shutdown: %v", err)
		}
	}()

	verifier := apiVerifier(ctx, cfg)
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r := newRouter(a, verifier)

	workerDone := make(chan struct{})
	if a.RunsWorkerInProcess() {
		go func() {
			defer close(workerDone)
			a.NewWorker().Run(ctx)
		}()
	} else {
		close(workerDone)
	}

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("Starting usersync service on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	<-workerDone
}

// apiVerifier picks the bearer verifier for /api/v1, or nil when auth is off.
func apiVerifier(ctx context.Context, cfg *config.Config) middleware.Verifier {
	if !cfg.APIAuth {
		logger.Warnf("API authentication disabled")
		return nil
	}
	if cfg.AllowInsecureToken {
		logger.Warn("enabling insecure OIDC verifier (integration mode)")
		return oidc.NewInsecureVerifier()
	}
	ver, err := oidc.NewVerifier(ctx, cfg.Keycloak, "")
	if err != nil {
		logger.Fatalf("failed to initialize OIDC verifier: %v", err)
	}
	return ver
}
