// Command worker drains the Redis sync queue outside the API process.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gogotex/usersync/internal/app"
	"github.com/gogotex/usersync/internal/config"
	"github.com/gogotex/usersync/pkg/logger"
	"github.com/gogotex/usersync/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.SetOutput(os.Stdout, os.Getenv("LOG_FORMAT"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if cfg.Redis.Addr() == "" {
		logger.Fatalf("the standalone worker needs REDIS_HOST: a memory queue is only consumed by the API process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to initialize: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Close(closeCtx)
	}()

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	port := os.Getenv("WORKER_METRICS_PORT")
	if port == "" {
		port = "5012"
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Infof("worker metrics listening on :%s", port)
		if err := http.ListenAndServe(":"+port, mux); err != nil {
			logger.Warnf("metrics listener stopped: %v", err)
		}
	}()

	a.NewWorker().Run(ctx)
}
