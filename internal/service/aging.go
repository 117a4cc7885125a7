package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"recurring-billing-backend/internal/billing"
	"recurring-billing-backend/internal/domain"
	"recurring-billing-backend/internal/logger"
	"recurring-billing-backend/internal/repository"
	"recurring-billing-backend/internal/utils"
)

var (
	// ErrReportIncomplete is returned when per-schedule lookups failed and
	// the report cannot be served: every lookup failed, or strict mode is on.
	ErrReportIncomplete = errors.New("aging report incomplete")
	ErrInvalidFilter    = errors.New("invalid aging filter")
)

// AgingOptions bounds the per-schedule ledger lookups of one report.
type AgingOptions struct {
	Workers       int
	LookupTimeout time.Duration
	BatchTimeout  time.Duration
	// Strict fails the whole report when any schedule could not be reconciled.
	Strict bool
}

func (o AgingOptions) withDefaults() AgingOptions {
	if o.Workers < 1 {
		o.Workers = 1
	}
	return o
}

type agingService struct {
	source repository.SnapshotSource
	opts   AgingOptions
}

func NewAgingService(source repository.SnapshotSource, opts AgingOptions) AgingService {
	return &agingService{source: source, opts: opts.withDefaults()}
}

type outcome struct {
	rec domain.Reconciliation
	err error
}

func (s *agingService) Generate(ctx context.Context, asOf utils.Date, filter domain.AgingFilter) (*domain.AgingReport, error) {
	log := logger.WithComponent("aging")
	started := time.Now()

	if filter.ScheduleType != "" && !filter.ScheduleType.Valid() {
		return nil, fmt.Errorf("%w: unknown schedule type %q", ErrInvalidFilter, filter.ScheduleType)
	}

	snap, err := s.source.BeginSnapshot(ctx)
	if err != nil {
		return nil, storeUnavailable("begin snapshot", err)
	}
	defer func() {
		if err := snap.Close(); err != nil {
			log.Warn("Failed to close snapshot", "error", err)
		}
	}()

	accounts, err := snap.ListActiveDueBy(ctx, asOf, filter.ScheduleType)
	if err != nil {
		return nil, storeUnavailable("list schedules", err)
	}

	outcomes := s.reconcileAll(ctx, snap, asOf, accounts)

	report := &domain.AgingReport{
		AsOf:    asOf,
		Filter:  filter,
		Records: make([]domain.AgingRecord, 0, len(accounts)),
	}
	for i, out := range outcomes {
		acc := accounts[i]
		if out.err != nil {
			report.Omitted++
			report.Failures = append(report.Failures, domain.ScheduleFailure{
				ScheduleID: acc.Schedule.ID,
				Reason:     failureReason(out.err),
			})
			log.Warn("Schedule omitted from aging report",
				"schedule_id", acc.Schedule.ID,
				"order_id", acc.Schedule.OrderID,
				"error", out.err)
			continue
		}
		if filter.OverdueOnly && out.rec.OutstandingCents == 0 {
			continue
		}
		report.Records = append(report.Records, newAgingRecord(acc, out.rec))
	}

	SortRecords(report.Records)
	slices.SortFunc(report.Failures, func(a, b domain.ScheduleFailure) int {
		return strings.Compare(a.ScheduleID.String(), b.ScheduleID.String())
	})

	if report.Omitted > 0 && (s.opts.Strict || report.Omitted == len(accounts)) {
		log.Error("Aging report incomplete",
			"as_of", asOf.String(),
			"schedules", len(accounts),
			"omitted", report.Omitted)
		return nil, fmt.Errorf("%w: %d of %d schedules could not be reconciled", ErrReportIncomplete, report.Omitted, len(accounts))
	}

	log.Info("Aging report generated",
		"as_of", asOf.String(),
		"schedule_type", filter.ScheduleType,
		"overdue_only", filter.OverdueOnly,
		"schedules", len(accounts),
		"records", len(report.Records),
		"omitted", report.Omitted,
		"duration", time.Since(started))
	return report, nil
}

// reconcileAll looks up every schedule's cycle window concurrently, bounded
// by Workers. Results are indexed like accounts; lookups share nothing else.
func (s *agingService) reconcileAll(ctx context.Context, snap repository.AgingSnapshot, asOf utils.Date, accounts []domain.ScheduleAccount) []outcome {
	outcomes := make([]outcome, len(accounts))

	batchCtx := ctx
	if s.opts.BatchTimeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, s.opts.BatchTimeout)
		defer cancel()
	}

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for i := range accounts {
		i := i
		g.Go(func() error {
			outcomes[i] = s.reconcileOne(batchCtx, snap, asOf, accounts[i].Schedule)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (s *agingService) reconcileOne(ctx context.Context, snap repository.AgingSnapshot, asOf utils.Date, sch domain.RecurringSchedule) outcome {
	if err := ctx.Err(); err != nil {
		return outcome{err: err}
	}
	if sch.Frequency != domain.FrequencyWeekly && sch.Frequency != domain.FrequencyMonthly {
		logger.Warn("Unknown schedule frequency, using 30-day cycle",
			"schedule_id", sch.ID, "frequency", sch.Frequency)
	}

	lookupCtx := ctx
	if s.opts.LookupTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, s.opts.LookupTimeout)
		defer cancel()
	}

	start, end := billing.CycleWindow(sch, asOf)
	paid, err := snap.SumPaymentsInWindow(lookupCtx, sch.OrderID, start, end)
	if err != nil {
		return outcome{err: err}
	}
	return outcome{rec: billing.Reconcile(sch, asOf, paid)}
}

func newAgingRecord(acc domain.ScheduleAccount, rec domain.Reconciliation) domain.AgingRecord {
	sch := acc.Schedule
	return domain.AgingRecord{
		ScheduleID:       sch.ID,
		OrderID:          sch.OrderID,
		OrderCode:        acc.OrderCode,
		ScheduleType:     sch.ScheduleType,
		Frequency:        sch.Frequency,
		CustomerName:     acc.CustomerName,
		Phone:            acc.Phone,
		DueDate:          sch.NextDueDate,
		AmountCents:      rec.DueCents,
		PaidCents:        rec.PaidCents,
		OutstandingCents: rec.OutstandingCents,
		Amount:           utils.MinorToMajor(rec.DueCents),
		Paid:             utils.MinorToMajor(rec.PaidCents),
		Outstanding:      utils.MinorToMajor(rec.OutstandingCents),
		DaysLate:         rec.DaysLate,
		Bucket:           rec.Bucket,
	}
}

// SortRecords orders records by due date, then schedule id.
func SortRecords(records []domain.AgingRecord) {
	slices.SortFunc(records, func(a, b domain.AgingRecord) int {
		if c := a.DueDate.Compare(b.DueDate); c != 0 {
			return c
		}
		return strings.Compare(a.ScheduleID.String(), b.ScheduleID.String())
	})
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "ledger lookup timed out"
	case errors.Is(err, context.Canceled):
		return "ledger lookup cancelled"
	default:
		return "ledger lookup failed: " + err.Error()
	}
}

func storeUnavailable(op string, err error) error {
	if errors.Is(err, repository.ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", repository.ErrStoreUnavailable, op, err)
}
