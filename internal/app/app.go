// Package app initializes and holds the long-lived application
// services, acting as the dependency injection container.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mkarlsen/newsdex/internal/api"
	"github.com/mkarlsen/newsdex/internal/clock/system"
	"github.com/mkarlsen/newsdex/internal/config"
	"github.com/mkarlsen/newsdex/internal/coordinator"
	"github.com/mkarlsen/newsdex/internal/crawler"
	"github.com/mkarlsen/newsdex/internal/extractor"
	collyfetcher "github.com/mkarlsen/newsdex/internal/fetcher/colly"
	"github.com/mkarlsen/newsdex/internal/frontier"
	"github.com/mkarlsen/newsdex/internal/hash/sha256"
	"github.com/mkarlsen/newsdex/internal/id/uuid"
	"github.com/mkarlsen/newsdex/internal/policy/ratelimit"
	"github.com/mkarlsen/newsdex/internal/storage/memory"
	mongostore "github.com/mkarlsen/newsdex/internal/storage/mongo"
	"github.com/mkarlsen/newsdex/internal/storage/postgres"
)

// App holds the shared, long-lived services: store backends, the
// frontier, the crawl coordinator and the search API server. It is
// built once at startup and fails fast if any backend is unreachable.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	coordinator *coordinator.Coordinator
	server      *api.Server
	closers     []func(context.Context) error
}

// New assembles the service graph from configuration.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	frontierStore, err := a.buildFrontierStore(ctx)
	if err != nil {
		return nil, err
	}
	articles, err := a.buildArticleStore(ctx)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	front, err := frontier.New(
		ctx,
		frontierStore,
		system.New(),
		frontier.NewBackoff(cfg.BackoffInitial(), cfg.BackoffMax()),
		frontier.Config{
			MaxRetries:    cfg.Crawler.MaxRetries,
			DefaultPolicy: crawler.HostPolicy{MinDelay: cfg.Politeness.MinDelay(), MaxConcurrent: cfg.Politeness.MaxConcurrentPerHost},
			Policies:      hostPolicies(cfg.Politeness),
		},
		logger.Named("frontier"),
	)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("initialize frontier: %w", err)
	}

	fetcher := collyfetcher.New(
		collyfetcher.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.HTTPTimeout(),
		},
		ratelimit.New(),
		collyfetcher.NewRobotsPolicy(cfg.Crawler.RespectRobots, cfg.Crawler.UserAgent, logger.Named("robots")),
	)
	ext := extractor.New(
		extractor.Config{MinTextLength: cfg.Crawler.MinArticleTextLength},
		logger.Named("extractor"),
	)

	a.coordinator = coordinator.New(
		front,
		fetcher,
		ext,
		articles,
		sha256.New(),
		system.New(),
		uuid.New(),
		coordinator.Config{
			Workers:      cfg.Crawler.Workers,
			AllowedHosts: cfg.Crawler.AllowedHosts,
			DrainTimeout: cfg.DrainTimeout(),
		},
		logger.Named("coordinator"),
	)
	a.server = api.NewServer(articles, api.Config{}, logger.Named("api"))
	return a, nil
}

// Coordinator returns the crawl coordinator.
func (a *App) Coordinator() *coordinator.Coordinator {
	return a.coordinator
}

// Server returns the search API server.
func (a *App) Server() *api.Server {
	return a.server
}

// Close shuts down store backends.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *App) buildFrontierStore(ctx context.Context) (crawler.FrontierStore, error) {
	switch a.cfg.Frontier.Provider {
	case "postgres":
		a.logger.Info("using postgres frontier store", zap.String("table", a.cfg.Frontier.Postgres.Table))
		store, err := postgres.NewURLStore(ctx, postgres.URLStoreConfig{
			DSN:   a.cfg.Frontier.Postgres.DSN,
			Table: a.cfg.Frontier.Postgres.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize postgres frontier store: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error {
			store.Close()
			return nil
		})
		return store, nil
	case "memory":
		a.logger.Info("using in-memory frontier store; crawl state will not survive restarts")
		return memory.NewURLStore(), nil
	default:
		return nil, fmt.Errorf("unknown frontier provider: %s", a.cfg.Frontier.Provider)
	}
}

func (a *App) buildArticleStore(ctx context.Context) (crawler.ArticleStore, error) {
	switch a.cfg.Articles.Provider {
	case "mongo":
		a.logger.Info("using mongo article store",
			zap.String("database", a.cfg.Articles.Mongo.Database),
			zap.String("collection", a.cfg.Articles.Mongo.Collection))
		store, err := mongostore.New(ctx, mongostore.Config{
			URI:        a.cfg.Articles.Mongo.URI,
			Database:   a.cfg.Articles.Mongo.Database,
			Collection: a.cfg.Articles.Mongo.Collection,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize mongo article store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case "memory":
		a.logger.Info("using in-memory article store; articles will not survive restarts")
		return memory.NewArticleStore(), nil
	default:
		return nil, fmt.Errorf("unknown articles provider: %s", a.cfg.Articles.Provider)
	}
}

func hostPolicies(p config.PolitenessConfig) map[string]crawler.HostPolicy {
	if len(p.Hosts) == 0 {
		return nil
	}
	policies := make(map[string]crawler.HostPolicy, len(p.Hosts))
	for host, override := range p.Hosts {
		policy := crawler.HostPolicy{
			Host:          host,
			MinDelay:      p.MinDelay(),
			MaxConcurrent: p.MaxConcurrentPerHost,
		}
		if override.MinDelaySeconds > 0 {
			policy.MinDelay = override.MinDelay()
		}
		if override.MaxConcurrentPerHost > 0 {
			policy.MaxConcurrent = override.MaxConcurrentPerHost
		}
		policies[host] = policy
	}
	return policies
}
