// Package app wires the store, cache and aging service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recurring-billing-backend/internal/cache"
	"recurring-billing-backend/internal/config"
	"recurring-billing-backend/internal/logger"
	"recurring-billing-backend/internal/repository"
	"recurring-billing-backend/internal/repository/memory"
	"recurring-billing-backend/internal/repository/postgres"
	"recurring-billing-backend/internal/service"
)

// Components are the long-lived dependencies shared by the binaries.
type Components struct {
	Source  repository.SnapshotSource
	Aging   service.AgingService
	closers []func() error
}

// Close releases the cache client and database pool.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}

// Build opens the configured store and report cache. A Redis that cannot be
// reached at startup is logged and replaced by the no-op cache.
func Build(ctx context.Context, cfg *config.Config) (*Components, error) {
	c := &Components{}

	switch cfg.Store.Type {
	case "memory":
		logger.Info("Using in-memory store with demo schedules")
		c.Source = memory.NewSeeded()
	default:
		logger.Info("Connecting to database...",
			"driver", cfg.Database.Driver,
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Database)
		db, err := postgres.Open(ctx, cfg.Database.Driver, cfg.GetDatabaseConnectionString(), postgres.PoolOptions{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Aging.Workers + 1,
			ConnMaxLifetime: 30 * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, err)
		}
		logger.Info("Database connection established")
		c.closers = append(c.closers, db.Close)
		c.Source = postgres.NewStore(db, cfg.Aging.Workers)
	}

	aging := service.NewAgingService(c.Source, service.AgingOptions{
		Workers:       cfg.Aging.Workers,
		LookupTimeout: cfg.LookupTimeout(),
		BatchTimeout:  cfg.BatchTimeout(),
		Strict:        cfg.Aging.Strict,
	})

	var reportCache cache.ReportCache = cache.NoopReportCache{}
	if cfg.Redis.Addr != "" {
		rc := cache.NewRedisReportCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rc.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("Redis unavailable, report cache disabled", "addr", cfg.Redis.Addr, "error", err)
			_ = rc.Close()
		} else {
			logger.Info("Report cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.ReportTTL())
			reportCache = rc
			c.closers = append(c.closers, rc.Close)
		}
	}
	c.Aging = service.NewCachedAgingService(aging, reportCache, cfg.ReportTTL())

	return c, nil
}
