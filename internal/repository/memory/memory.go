// Package memory is an in-process schedule store and ledger used for local
// development and tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"recurring-billing-backend/internal/domain"
	"recurring-billing-backend/internal/repository"
	"recurring-billing-backend/internal/utils"
)

type Store struct {
	mu        sync.RWMutex
	schedules []domain.ScheduleAccount
	ledger    []domain.Transaction
}

func New() *Store {
	return &Store{}
}

// NewSeeded returns a store with a handful of demo schedules around today.
func NewSeeded() *Store {
	s := New()
	today := utils.Today(time.UTC)

	seed := []struct {
		code, name, phone string
		typ               domain.ScheduleType
		freq              domain.Frequency
		amount            int64
		dueOffset         int
		paid              int64
	}{
		{"ORD-DEMO0001", "Aisyah Rahman", "0123456789", domain.ScheduleTypeInstalment, domain.FrequencyMonthly, 50000, -9, 0},
		{"ORD-DEMO0002", "Lim Wei Jie", "0198765432", domain.ScheduleTypeRental, domain.FrequencyWeekly, 10000, -35, 4000},
		{"ORD-DEMO0003", "Kumar Subramaniam", "0172223333", domain.ScheduleTypeInstalment, domain.FrequencyMonthly, 30000, -2, 30000},
		{"ORD-DEMO0004", "Nurul Huda", "0134445555", domain.ScheduleTypeRental, domain.FrequencyMonthly, 15000, -15, 0},
	}

	for _, row := range seed {
		orderID := uuid.New()
		due := today.AddDays(row.dueOffset)
		s.AddSchedule(domain.ScheduleAccount{
			Schedule: domain.RecurringSchedule{
				ID:           uuid.New(),
				OrderID:      orderID,
				ScheduleType: row.typ,
				Frequency:    row.freq,
				AmountCents:  row.amount,
				NextDueDate:  due,
				GraceDays:    domain.DefaultGraceDays,
				Status:       domain.ScheduleStatusActive,
			},
			OrderCode:    row.code,
			CustomerName: row.name,
			Phone:        row.phone,
		})
		if row.paid > 0 {
			s.AddTransaction(domain.Transaction{
				ID:          uuid.New(),
				OrderID:     orderID,
				Type:        domain.TransactionTypePayment,
				AmountCents: row.paid,
				PaidAt:      due.Time().Add(10 * time.Hour),
			})
		}
	}
	return s
}

// AddSchedule stores or replaces a schedule keyed by its ID.
func (s *Store) AddSchedule(acc domain.ScheduleAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.schedules {
		if s.schedules[i].Schedule.ID == acc.Schedule.ID {
			s.schedules[i] = acc
			return
		}
	}
	s.schedules = append(s.schedules, acc)
}

// AddTransaction appends a ledger entry. Entries are never modified.
func (s *Store) AddTransaction(tx domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = append(s.ledger, tx)
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

// BeginSnapshot copies the current schedules and ledger. Writes made after
// this call are not visible through the snapshot.
func (s *Store) BeginSnapshot(ctx context.Context) (repository.AgingSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &snapshot{
		schedules: slices.Clone(s.schedules),
		ledger:    slices.Clone(s.ledger),
	}, nil
}

type snapshot struct {
	schedules []domain.ScheduleAccount
	ledger    []domain.Transaction
}

func (sn *snapshot) ListActiveDueBy(ctx context.Context, asOf utils.Date, scheduleType domain.ScheduleType) ([]domain.ScheduleAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.ScheduleAccount, 0, len(sn.schedules))
	for _, acc := range sn.schedules {
		sch := acc.Schedule
		if sch.Status != domain.ScheduleStatusActive || sch.NextDueDate.After(asOf) {
			continue
		}
		if scheduleType != "" && sch.ScheduleType != scheduleType {
			continue
		}
		out = append(out, acc)
	}
	return out, nil
}

func (sn *snapshot) SumPaymentsInWindow(ctx context.Context, orderID uuid.UUID, start, endExclusive time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var paid int64
	for _, tx := range sn.ledger {
		if tx.OrderID != orderID || !tx.Type.ReducesBalance() {
			continue
		}
		if tx.PaidAt.Before(start) || !tx.PaidAt.Before(endExclusive) {
			continue
		}
		paid += tx.AmountCents
	}
	return paid, nil
}

func (sn *snapshot) Close() error {
	return nil
}
