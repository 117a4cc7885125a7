package cache

import (
	"context"
	"fmt"
	"time"

	"recurring-billing-backend/internal/domain"
	"recurring-billing-backend/internal/utils"
)

// ReportCache stores rendered aging reports for a short time.
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.AgingReport, bool, error)
	Set(ctx context.Context, key string, value *domain.AgingReport, ttl time.Duration) error
}

// ReportKey identifies a report by as-of date and filter.
func ReportKey(asOf utils.Date, filter domain.AgingFilter) string {
	scheduleType := string(filter.ScheduleType)
	if scheduleType == "" {
		scheduleType = "all"
	}
	return fmt.Sprintf("aging:v1:%s:%s:%t", asOf.String(), scheduleType, filter.OverdueOnly)
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.AgingReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.AgingReport, _ time.Duration) error {
	return nil
}
