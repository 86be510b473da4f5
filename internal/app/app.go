// Package app composes the token manager, directory client and sync pipeline
// shared by the API server and the standalone worker.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogotex/usersync/internal/config"
	"github.com/gogotex/usersync/internal/database"
	"github.com/gogotex/usersync/internal/directory"
	"github.com/gogotex/usersync/internal/events"
	"github.com/gogotex/usersync/internal/queue"
	"github.com/gogotex/usersync/internal/tokens"
	"github.com/gogotex/usersync/internal/usersync"
	"github.com/gogotex/usersync/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	mongoConnectAttempts = 5
	tokensCollection     = "user_service_tokens"
	memoryQueueSize      = 1024
)

// App holds every long-lived dependency of the process.
type App struct {
	Config    *config.Config
	Redis     *redis.Client
	Mongo     *mongo.Client
	Store     tokens.Store
	Tokens    *tokens.Manager
	Directory *directory.Client
	Events    *events.Bus
	Queue     queue.Queue
	Task      *queue.Task
	Sync      *usersync.Service

	closers []func(context.Context) error
}

// New connects the configured backends and wires the services.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if addr := cfg.Redis.Addr(); addr != "" {
		a.Redis = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		a.onClose(func(context.Context) error { return a.Redis.Close() })
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("redis ping %s: %w", addr, err)
		}
		logger.Infof("connected to Redis at %s", addr)
	}

	store, err := a.openStore(ctx)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Store = store

	idp := tokens.NewKeycloakClient(cfg.Keycloak, cfg.UserService.Timeout)
	a.Tokens = tokens.NewManager(store, idp, cfg.Token)
	a.Directory = directory.NewClient(cfg.UserService, a.Tokens, cfg.Sync.RegistrationEnabled)
	a.Events = events.NewBus(events.LogNotifier{}, events.MetricsNotifier{})

	if a.Redis != nil {
		a.Queue = queue.NewRedisQueue(a.Redis, cfg.Sync.Queue)
	} else {
		mq := queue.NewMemoryQueue(cfg.Sync.Queue, memoryQueueSize)
		a.Queue = mq
		a.onClose(func(context.Context) error { mq.Close(); return nil })
	}
	a.Task = queue.NewTask(a.Directory, a.Events, queue.RetryPolicy{MaxAttempts: cfg.Sync.RetryAttempts, Delay: cfg.Sync.RetryDelay})

	a.Sync = usersync.NewService(a.Tokens, a.Directory, a.Events, cfg.Sync, cfg.FieldMapping)
	if cfg.Sync.Queued() {
		a.Sync.WithDispatcher(queue.NewDispatcher(a.Queue))
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) (tokens.Store, error) {
	switch a.Config.Token.Store {
	case "redis":
		if a.Redis == nil {
			return nil, errors.New("redis token store requires REDIS_HOST")
		}
		return tokens.NewRedisStore(a.Redis), nil
	case "mongo":
		client, db, err := database.Open(ctx, a.Config.MongoDB, mongoConnectAttempts)
		if err != nil {
			return nil, err
		}
		a.Mongo = client
		a.onClose(client.Disconnect)
		s := tokens.NewMongoStore(db.Collection(tokensCollection))
		if err := s.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("token store indexes: %w", err)
		}
		return s, nil
	default:
		s := tokens.NewMemoryStore()
		a.onClose(func(context.Context) error { s.Close(); return nil })
		return s, nil
	}
}

// NewWorker returns a worker draining the sync queue.
func (a *App) NewWorker() *queue.Worker {
	return queue.NewWorker(a.Queue, a.Task, a.Config.Sync.Workers)
}

// RunsWorkerInProcess reports whether the API process must consume the queue
// itself. A memory queue is only visible to its own process.
func (a *App) RunsWorkerInProcess() bool {
	if !a.Config.Sync.Enabled || !a.Config.Sync.Queued() {
		return false
	}
	_, memory := a.Queue.(*queue.MemoryQueue)
	return memory || a.Config.Sync.InProcessWorker
}

// Ping checks the shared backends.
func (a *App) Ping(ctx context.Context) map[string]bool {
	deps := map[string]bool{}
	if a.Redis != nil {
		deps["redis"] = a.Redis.Ping(ctx).Err() == nil
	}
	if a.Mongo != nil {
		deps["mongodb"] = a.Mongo.Ping(ctx, nil) == nil
	}
	return deps
}

func (a *App) onClose(f func(context.Context) error) {
	a.closers = append(a.closers, f)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
