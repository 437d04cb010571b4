package cmd

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/pytake/flowbroker/internal/config"
	"github.com/pytake/flowbroker/internal/logging"
	"github.com/pytake/flowbroker/internal/session"
	"github.com/pytake/flowbroker/internal/webhook"
)

func cmdCtx() context.Context { return context.Background() }

// loadConfig resolves flowbroker's configuration the same way every
// one-shot operator command does: `internal/config`'s $include/env-merge
// loader, falling back to defaults when no config file exists.
func loadConfig() (*config.Config, error) {
	return config.Load()
}

func redisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func sessionStore(cfg *config.Config) session.Store {
	return session.NewRedisStore(redisClient(cfg))
}

func webhookStoreAndDispatcher(cfg *config.Config) (*webhook.Store, *webhook.Dispatcher, error) {
	store, err := webhook.NewStore(cmdCtx(), cfg.SQLite.Path)
	if err != nil {
		return nil, nil, err
	}
	opts := logging.DefaultOptions()
	opts.Color = false
	d := webhook.NewDispatcher(store, nil, logging.New(opts))
	return store, d, nil
}
