// Package database opens the MongoDB connection used by the durable token store.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gogotex/usersync/internal/config"
	"github.com/gogotex/usersync/pkg/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectMongo opens a connection and returns the client. Caller should call client.Disconnect(ctx).
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	clientOpts := options.Client().ApplyURI(uri).SetAppName("usersync")
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// Open connects with up to attempts tries and returns the configured database.
func Open(ctx context.Context, cfg config.MongoDBConfig, attempts int) (*mongo.Client, *mongo.Database, error) {
	if attempts < 1 {
		attempts = 1
	}
	client, err := backoff.Retry(ctx, func() (*mongo.Client, error) {
		return ConnectMongo(ctx, cfg.URI, cfg.Timeout)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warnf("mongo not reachable, retrying in %s: %v", next.Round(time.Millisecond), err)
		}),
	)
	if err != nil {
		return nil, nil, err
	}
	logger.Infof("connected to MongoDB database %s", cfg.Database)
	return client, client.Database(cfg.Database), nil
}
