package jobs

import (
	"context"
	"fmt"
	"time"

	"recurring-billing-backend/internal/domain"
	"recurring-billing-backend/internal/logger"
	"recurring-billing-backend/internal/utils"
)

const chaseListTimeout = 2 * time.Minute

// ChaseSummary totals one chase list by bucket.
type ChaseSummary struct {
	AsOf             utils.Date
	Records          int
	Omitted          int
	OutstandingCents int64
	ByBucket         map[domain.Bucket]BucketTotal
}

type BucketTotal struct {
	Count            int
	OutstandingCents int64
}

// RunChaseList logs today's overdue schedules for the collections team.
func (jr *JobRunner) RunChaseList() {
	jr.runWithRecovery("ChaseList", func() {
		ctx, cancel := context.WithTimeout(context.Background(), chaseListTimeout)
		defer cancel()

		if _, err := jr.ChaseList(ctx); err != nil {
			logger.Error("Failed to build chase list", "error", err)
		}
	})
}

// ChaseList builds the overdue-only aging report for today in the business
// timezone, logs every record, and returns the per-bucket summary.
func (jr *JobRunner) ChaseList(ctx context.Context) (*ChaseSummary, error) {
	asOf := utils.DateOf(jr.now(), jr.loc)
	report, err := jr.services.Aging.Generate(ctx, asOf, domain.AgingFilter{OverdueOnly: true})
	if err != nil {
		return nil, fmt.Errorf("generate chase list for %s: %w", asOf, err)
	}

	summary := &ChaseSummary{
		AsOf:     asOf,
		Records:  len(report.Records),
		Omitted:  report.Omitted,
		ByBucket: make(map[domain.Bucket]BucketTotal, len(domain.AllBuckets)),
	}
	currency := jr.config.Billing.Currency

	for _, rec := range report.Records {
		logger.Info("Chase",
			"order_code", rec.OrderCode,
			"customer", rec.CustomerName,
			"phone", rec.Phone,
			"schedule_type", rec.ScheduleType,
			"due_date", rec.DueDate.String(),
			"outstanding", currency+" "+utils.FormatMajor(rec.OutstandingCents),
			"days_late", rec.DaysLate,
			"bucket", rec.Bucket)

		total := summary.ByBucket[rec.Bucket]
		total.Count++
		total.OutstandingCents += rec.OutstandingCents
		summary.ByBucket[rec.Bucket] = total
		summary.OutstandingCents += rec.OutstandingCents
	}

	for _, b := range domain.AllBuckets {
		total := summary.ByBucket[b]
		logger.Info("Chase list bucket",
			"bucket", b,
			"count", total.Count,
			"outstanding", currency+" "+utils.FormatMajor(total.OutstandingCents))
	}
	if report.Omitted > 0 {
		for _, f := range report.Failures {
			logger.Warn("Chase list omitted schedule", "schedule_id", f.ScheduleID, "reason", f.Reason)
		}
	}
	logger.Info("Chase list built",
		"as_of", asOf.String(),
		"records", summary.Records,
		"omitted", summary.Omitted,
		"outstanding", currency+" "+utils.FormatMajor(summary.OutstandingCents))

	return summary, nil
}
