// Package app assembles the Real-Debrid stack shared by the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/Zerr0-C00L/rdfetch/internal/config"
	"github.com/Zerr0-C00L/rdfetch/internal/database"
	"github.com/Zerr0-C00L/rdfetch/internal/notify"
	"github.com/Zerr0-C00L/rdfetch/internal/services"
	"github.com/Zerr0-C00L/rdfetch/internal/services/debrid"
)

// Options adjusts what Build wires on top of the configuration.
type Options struct {
	OnEvent func(services.Event)
	// Sinks receive every notification in addition to the log and feed.
	Sinks []notify.Sink
	// FeedSize bounds the in-memory notification history. Zero uses the feed default.
	FeedSize int
}

// App is a fully wired stack. Close releases the database and Redis handles.
type App struct {
	Config     config.Config
	DB         *database.DB
	Store      database.Store
	RealDebrid *debrid.RealDebrid
	Client     debrid.Client
	Redis      *redis.Client
	Feed       *notify.Feed
	Manager    *services.DebridManager

	logger *slog.Logger
}

// Build connects storage, constructs the Real-Debrid client and the manager,
// and restores the persisted enabled flag.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	a.RealDebrid = debrid.NewRealDebrid(a.Store, logger.With("component", "realdebrid"),
		debrid.WithHTTPClient(debrid.NewHTTPClient(cfg.HTTPTimeout.Std())),
		debrid.WithBaseURL(cfg.RealDebridBaseURL),
		debrid.WithAuthURL(cfg.RealDebridAuthURL),
		debrid.WithClientID(cfg.RealDebridClientID),
		debrid.WithAPIKey(cfg.RealDebridAPIKey),
		debrid.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		debrid.WithPollInterval(cfg.PollInterval.Std()),
	)
	a.Client = a.RealDebrid
	a.connectCache(ctx)

	a.Feed = notify.NewFeed(opts.FeedSize)
	sinks := notify.Multi{notify.LogSink{Logger: logger}, a.Feed}
	if cfg.EnableNotifications {
		if discord := notify.NewDiscordSink(cfg.DiscordWebhookURL, cfg.HTTPTimeout.Std(), logger); discord != nil {
			sinks = append(sinks, discord)
		}
	}
	sinks = append(sinks, opts.Sinks...)

	a.Manager = services.NewDebridManager(services.ManagerConfig{
		Client:         a.Client,
		Store:          a.Store,
		Sink:           sinks,
		Logger:         logger,
		CleanupTimeout: cfg.CleanupTimeout.Std(),
		OnEvent:        opts.OnEvent,
	})

	if a.RealDebrid.UsesAPIKey() {
		// a static token needs no device authorization
		if err := a.Store.SetEnabled(ctx, true); err != nil {
			a.Close()
			return nil, fmt.Errorf("enable api key mode: %w", err)
		}
	}
	if err := a.Manager.Load(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("load debrid state: %w", err)
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	if strings.TrimSpace(a.Config.CredentialSecret) == "" {
		if a.Config.RealDebridAPIKey == "" {
			return database.ErrSecretRequired
		}
		a.logger.Info("no credential secret, keeping state in memory")
		a.Store = database.NewMemoryStore()
		return nil
	}

	db, err := database.Connect(ctx, a.Config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	store, err := database.NewCredentialStore(db, a.Config.CredentialSecret)
	if err != nil {
		_ = db.Close()
		return err
	}
	a.DB = db
	a.Store = store
	a.logger.Info("database connection established", "dialect", db.Dialect())
	return nil
}

// connectCache puts a Redis availability cache in front of the client when
// REDIS_URL is set. An unreachable server only disables the cache.
func (a *App) connectCache(ctx context.Context) {
	if strings.TrimSpace(a.Config.RedisURL) == "" {
		return
	}
	redisOpts, err := redis.ParseURL(a.Config.RedisURL)
	if err != nil {
		a.logger.Warn("invalid redis url, availability cache disabled", "error", err)
		return
	}
	client := redis.NewClient(redisOpts)
	backend := debrid.NewRedisAvailabilityBackend(client)
	if err := backend.Ping(ctx); err != nil {
		a.logger.Warn("redis unreachable, availability cache disabled", "error", err)
		_ = client.Close()
		return
	}
	a.Redis = client
	a.Client = debrid.NewCachedAvailability(a.RealDebrid, backend, a.Config.AvailabilityCacheTTL.Std(), a.logger.With("component", "availability_cache"))
	a.logger.Info("availability cache enabled", "ttl", a.Config.AvailabilityCacheTTL.Std())
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
