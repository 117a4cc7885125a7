package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"recurring-billing-backend/internal/domain"
	"recurring-billing-backend/internal/utils"
)

// ErrStoreUnavailable wraps failures to open a snapshot or list schedules.
var ErrStoreUnavailable = errors.New("schedule store unavailable")

type ScheduleRepository interface {
	// ListActiveDueBy returns active schedules with next_due_date <= asOf,
	// joined with order and customer display fields. An empty scheduleType
	// matches every type.
	ListActiveDueBy(ctx context.Context, asOf utils.Date, scheduleType domain.ScheduleType) ([]domain.ScheduleAccount, error)
}

type LedgerRepository interface {
	// SumPaymentsInWindow totals payment and deposit entries for the order
	// with paid_at in [start, endExclusive).
	SumPaymentsInWindow(ctx context.Context, orderID uuid.UUID, start, endExclusive time.Time) (int64, error)
}

// AgingSnapshot is a read-only view of schedules and ledger fixed at the
// moment it was opened. It is safe for concurrent use; Close releases it.
type AgingSnapshot interface {
	ScheduleRepository
	LedgerRepository
	Close() error
}

type SnapshotSource interface {
	BeginSnapshot(ctx context.Context) (AgingSnapshot, error)
	Ping(ctx context.Context) error
}
