package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recurring-billing-backend/internal/domain"
	"recurring-billing-backend/internal/utils"
)

func account(typ domain.ScheduleType, status domain.ScheduleStatus, due utils.Date) domain.ScheduleAccount {
	return domain.ScheduleAccount{
		Schedule: domain.RecurringSchedule{
			ID:           uuid.New(),
			OrderID:      uuid.New(),
			ScheduleType: typ,
			Frequency:    domain.FrequencyMonthly,
			AmountCents:  1000,
			NextDueDate:  due,
			GraceDays:    3,
			Status:       status,
		},
	}
}

func TestStore_ListActiveDueBy(t *testing.T) {
	store := New()
	asOf := utils.NewDate(2024, 3, 10)

	dueInstalment := account(domain.ScheduleTypeInstalment, domain.ScheduleStatusActive, utils.NewDate(2024, 3, 1))
	dueRental := account(domain.ScheduleTypeRental, domain.ScheduleStatusActive, asOf)
	future := account(domain.ScheduleTypeRental, domain.ScheduleStatusActive, utils.NewDate(2024, 3, 11))
	paused := account(domain.ScheduleTypeRental, domain.ScheduleStatusPaused, utils.NewDate(2024, 1, 1))
	for _, acc := range []domain.ScheduleAccount{dueInstalment, dueRental, future, paused} {
		store.AddSchedule(acc)
	}

	snap, err := store.BeginSnapshot(context.Background())
	require.NoError(t, err)
	defer snap.Close()

	all, err := snap.ListActiveDueBy(context.Background(), asOf, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	rentals, err := snap.ListActiveDueBy(context.Background(), asOf, domain.ScheduleTypeRental)
	require.NoError(t, err)
	require.Len(t, rentals, 1)
	assert.Equal(t, dueRental.Schedule.ID, rentals[0].Schedule.ID)
}

func TestStore_SnapshotIsolation(t *testing.T) {
	store := New()
	orderID := uuid.New()
	paidAt := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	store.AddTransaction(domain.Transaction{ID: uuid.New(), OrderID: orderID, Type: domain.TransactionTypePayment, AmountCents: 100, PaidAt: paidAt})

	snap, err := store.BeginSnapshot(context.Background())
	require.NoError(t, err)

	store.AddTransaction(domain.Transaction{ID: uuid.New(), OrderID: orderID, Type: domain.TransactionTypeDeposit, AmountCents: 900, PaidAt: paidAt})

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

	paid, err := snap.SumPaymentsInWindow(context.Background(), orderID, start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(100), paid)

	fresh, err := store.BeginSnapshot(context.Background())
	require.NoError(t, err)
	paid, err = fresh.SumPaymentsInWindow(context.Background(), orderID, start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), paid)
}

func TestStore_SumPaymentsInWindow_IgnoresRefundsAndPenalties(t *testing.T) {
	store := New()
	orderID := uuid.New()
	at := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	store.AddTransaction(domain.Transaction{OrderID: orderID, Type: domain.TransactionTypeRefund, AmountCents: 500, PaidAt: at})
	store.AddTransaction(domain.Transaction{OrderID: orderID, Type: domain.TransactionTypePenalty, AmountCents: 500, PaidAt: at})
	store.AddTransaction(domain.Transaction{OrderID: orderID, Type: domain.TransactionTypePayment, AmountCents: 250, PaidAt: at})

	snap, err := store.BeginSnapshot(context.Background())
	require.NoError(t, err)

	paid, err := snap.SumPaymentsInWindow(context.Background(), orderID, at, at.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(250), paid)
}

func TestNewSeeded(t *testing.T) {
	store := NewSeeded()
	snap, err := store.BeginSnapshot(context.Background())
	require.NoError(t, err)

	rows, err := snap.ListActiveDueBy(context.Background(), utils.Today(time.UTC), "")
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}
