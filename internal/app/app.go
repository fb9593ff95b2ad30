// Package app conecta la infraestructura (store, cache, redis, rate limit)
// con el AuthServer y el router HTTP. Lo usan los comandos del CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/hellojohn-oidc/internal/cache"
	"github.com/dropDatabas3/hellojohn-oidc/internal/config"
	"github.com/dropDatabas3/hellojohn-oidc/internal/http/router"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/authserver"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-oidc/internal/rate"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store"

	// adapters se registran en init()
	_ "github.com/dropDatabas3/hellojohn-oidc/internal/store/adapters/memory"
	_ "github.com/dropDatabas3/hellojohn-oidc/internal/store/adapters/pg"
)

// Container es el grafo armado de dependencias del proceso.
type Container struct {
	Config     *config.Config
	DAL        store.DataAccessLayer
	Cache      cache.Client
	Redis      *redis.Client // nil si ni cache ni rate usan redis
	AuthServer *authserver.AuthServer
	Limiter    rate.Limiter // nil si rate.enabled es false
}

// Build abre store y cache, aplica migraciones si corresponde y arma el
// AuthServer. Ante error cierra lo que ya abrió.
func Build(ctx context.Context, cfg *config.Config) (c *Container, err error) {
	log := logger.From(ctx).With(logger.Component("app"))
	c = &Container{Config: cfg}
	defer func() {
		if err != nil {
			_ = c.Close()
			c = nil
		}
	}()

	if cfg.Storage.Driver == "postgres" && cfg.Storage.MigrateOnStart {
		if err := store.Migrate(ctx, cfg.Storage.DSN, "up"); err != nil {
			return c, err
		}
		log.Info("migrations applied")
	}

	c.DAL, err = store.Open(ctx, store.AdapterConfig{
		Name:     cfg.Storage.Driver,
		DSN:      cfg.Storage.DSN,
		MaxConns: cfg.Storage.MaxConns,
		MinConns: cfg.Storage.MinConns,
	})
	if err != nil {
		return c, fmt.Errorf("open store: %w", err)
	}

	ccfg := cacheConfig(cfg)
	if cfg.Cache.Driver == "redis" || (cfg.Rate.Enabled && cfg.Rate.Driver == "redis") {
		c.Redis, err = cache.Dial(ctx, ccfg)
		if err != nil {
			return c, err
		}
	}
	if cfg.Cache.Driver == "redis" {
		c.Cache = cache.NewRedisFromClient(c.Redis, cfg.Cache.Prefix)
	} else {
		c.Cache = cache.NewMemory(cfg.Cache.Prefix)
	}

	if cfg.Rate.Enabled {
		if cfg.Rate.Driver == "redis" {
			c.Limiter = rate.NewRedisLimiter(c.Redis, cfg.Cache.Prefix+":rl", cfg.Rate.MaxRequests, cfg.Rate.Window)
		} else {
			c.Limiter = rate.NewMemoryLimiter(cfg.Rate.MaxRequests, cfg.Rate.Window)
		}
	}

	c.AuthServer, err = authserver.New(ctx, cfg, authserver.Deps{DAL: c.DAL, Cache: c.Cache})
	if err != nil {
		return c, err
	}
	log.Info("auth server ready",
		logger.String("storage", c.DAL.Name()),
		logger.String("cache", cfg.Cache.Driver),
		logger.Bool("rate_limit", c.Limiter != nil))
	return c, nil
}

// Handler arma el router HTTP.
func (c *Container) Handler(version string) http.Handler {
	return router.New(router.Deps{AuthServer: c.AuthServer, Limiter: c.Limiter, Version: version})
}

// Close libera store y conexiones. La conexión redis compartida se cierra
// una sola vez.
func (c *Container) Close() error {
	var errs []error
	if c.Cache != nil {
		errs = append(errs, c.Cache.Close())
	}
	if c.Redis != nil && (c.Cache == nil || c.Config.Cache.Driver != "redis") {
		errs = append(errs, c.Redis.Close())
	}
	if c.DAL != nil {
		errs = append(errs, c.DAL.Close())
	}
	return errors.Join(errs...)
}

func cacheConfig(cfg *config.Config) cache.Config {
	return cache.Config{
		Driver:   cfg.Cache.Driver,
		Host:     cfg.Cache.Host,
		Port:     cfg.Cache.Port,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
		Prefix:   cfg.Cache.Prefix,
	}
}
