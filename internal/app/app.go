// Package app assembles the pipeline from configuration: store, mapping
// engine, transformation pipeline, job controller, optional Redis progress
// mirror and the core service. The server and the CLI share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/factflow/internal/config"
	"github.com/JonMunkholm/factflow/internal/core"
	"github.com/JonMunkholm/factflow/internal/jobs"
	"github.com/JonMunkholm/factflow/internal/mapping"
	"github.com/JonMunkholm/factflow/internal/store"
	"github.com/JonMunkholm/factflow/internal/transform"
)

// App is a wired service and the resources it holds.
type App struct {
	Service    *core.Service
	Controller *jobs.Controller
	Store      store.Store

	closers []func()
}

// Build wires every component cfg describes. On error, anything already
// opened is closed.
func Build(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Store, err = openStore(ctx, cfg); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Store.Close)

	vocab, err := mapping.LoadVocabulary(cfg.Mapping.GazetteerFile)
	if err != nil {
		return nil, err
	}
	engine := mapping.NewEngine(vocab, cfg.Mapping.ConfidenceThreshold)

	pipeline := transform.NewPipeline(a.Store, transform.Options{
		BatchSize:            cfg.Processing.BatchSize,
		Workers:              cfg.Processing.Workers,
		AggregationThreshold: cfg.Processing.AggregationThreshold,
	})
	limiter := jobs.NewLimiter(cfg.Processing.MaxConcurrent, cfg.Processing.MaxWaitTime)

	var publishers []jobs.Publisher
	if cfg.Redis.URL != "" {
		client, err := openRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { client.Close() })
		publishers = append(publishers, jobs.NewRedisPublisher(client, cfg.Redis.ProgressTTL))
	}

	a.Controller = jobs.NewController(a.Store, pipeline, limiter, publishers...)
	a.Service = core.NewService(a.Store, engine, a.Controller, core.Options{
		UploadDir:         cfg.Upload.Dir,
		MaxFileSize:       cfg.Upload.MaxFileSize,
		ProfileRows:       cfg.Upload.ProfileRows,
		MappingSampleRows: cfg.Mapping.SampleRows,
	})
	return a, nil
}

// JanitorConfig returns the orphan sweep settings of cfg.
func JanitorConfig(cfg *config.Config) jobs.JanitorConfig {
	return jobs.JanitorConfig{
		Interval:  cfg.Processing.JanitorInterval,
		Grace:     cfg.Processing.OrphanGrace,
		SlowAfter: cfg.Processing.Timeout,
	}
}

// Close releases the store and Redis connections in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if strings.ToLower(cfg.Store.Driver) == config.DriverMemory {
		slog.Info("using in-memory store")
		return store.NewMemory(), nil
	}

	pool, err := store.OpenPool(ctx, cfg.Database.URL, store.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Store.Migrate {
		if err := store.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		slog.Info("database schema applied")
	}
	slog.Info("connected to database", "max_conns", cfg.Database.MaxConns)
	return store.NewPostgres(pool), nil
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("publishing job progress to redis", "addr", opts.Addr)
	return client, nil
}
