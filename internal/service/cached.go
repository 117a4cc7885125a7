package service

import (
	"context"
	"time"

	"recurring-billing-backend/internal/cache"
	"recurring-billing-backend/internal/domain"
	"recurring-billing-backend/internal/logger"
	"recurring-billing-backend/internal/utils"
)

type cachedAgingService struct {
	inner AgingService
	cache cache.ReportCache
	ttl   time.Duration
}

// NewCachedAgingService serves complete reports from c for ttl. Partial
// reports and errors are never cached, and cache failures fall through to inner.
func NewCachedAgingService(inner AgingService, c cache.ReportCache, ttl time.Duration) AgingService {
	return &cachedAgingService{inner: inner, cache: c, ttl: ttl}
}

func (s *cachedAgingService) Generate(ctx context.Context, asOf utils.Date, filter domain.AgingFilter) (*domain.AgingReport, error) {
	key := cache.ReportKey(asOf, filter)

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("Report cache read failed", "key", key, "error", err)
	} else if ok {
		logger.Debug("Report cache hit", "key", key)
		cached.Filter = filter
		return cached, nil
	}

	report, err := s.inner.Generate(ctx, asOf, filter)
	if err != nil {
		return nil, err
	}
	if report.Complete() && s.ttl > 0 {
		if err := s.cache.Set(ctx, key, report, s.ttl); err != nil {
			logger.Warn("Report cache write failed", "key", key, "error", err)
		}
	}
	return report, nil
}
