package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recurring-billing-backend/internal/domain"
	"recurring-billing-backend/internal/repository"
	"recurring-billing-backend/internal/repository/memory"
	"recurring-billing-backend/internal/utils"
)

var scenarioAsOf = utils.NewDate(2024, 3, 10)

func addSchedule(store *memory.Store, typ domain.ScheduleType, freq domain.Frequency, amount int64, due utils.Date, grace int32, status domain.ScheduleStatus) domain.RecurringSchedule {
	sch := domain.RecurringSchedule{
		ID:           uuid.New(),
		OrderID:      uuid.New(),
		ScheduleType: typ,
		Frequency:    freq,
		AmountCents:  amount,
		NextDueDate:  due,
		GraceDays:    grace,
		Status:       status,
	}
	store.AddSchedule(domain.ScheduleAccount{
		Schedule:     sch,
		OrderCode:    "ORD-" + sch.OrderID.String()[:8],
		CustomerName: "Customer",
		Phone:        "0123456789",
	})
	return sch
}

func pay(store *memory.Store, orderID uuid.UUID, typ domain.TransactionType, cents int64, at time.Time) {
	store.AddTransaction(domain.Transaction{ID: uuid.New(), OrderID: orderID, Type: typ, AmountCents: cents, PaidAt: at})
}

func newTestService(source repository.SnapshotSource) AgingService {
	return NewAgingService(source, AgingOptions{Workers: 4, LookupTimeout: time.Second, BatchTimeout: 5 * time.Second})
}

func TestAgingService_ScenarioA(t *testing.T) {
	store := memory.New()
	sch := addSchedule(store, domain.ScheduleTypeInstalment, domain.FrequencyMonthly, 50000, utils.NewDate(2024, 3, 1), 3, domain.ScheduleStatusActive)

	report, err := newTestService(store).Generate(context.Background(), scenarioAsOf, domain.AgingFilter{})
	require.NoError(t, err)
	require.Len(t, report.Records, 1)

	rec := report.Records[0]
	assert.Equal(t, sch.ID, rec.ScheduleID)
	assert.Equal(t, int64(50000), rec.OutstandingCents)
	assert.Equal(t, "500.00", rec.Outstanding.StringFixed(2))
	assert.Equal(t, 6, rec.DaysLate)
	assert.Equal(t, domain.BucketOneToSeven, rec.Bucket)
	assert.True(t, report.Complete())
}

func TestAgingService_ScenarioB_OverdueOnly(t *testing.T) {
	store := memory.New()
	sch := addSchedule(store, domain.ScheduleTypeInstalment, domain.FrequencyMonthly, 50000, utils.NewDate(2024, 3, 1), 3, domain.ScheduleStatusActive)
	pay(store, sch.OrderID, domain.TransactionTypePayment, 50000, time.Date(2024, 3, 5, 11, 0, 0, 0, time.UTC))

	svc := newTestService(store)
	ctx := context.Background()

	report, err := svc.Generate(ctx, scenarioAsOf, domain.AgingFilter{})
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, int64(0), report.Records[0].OutstandingCents)
	assert.Equal(t, int64(50000), report.Records[0].PaidCents)

	report, err = svc.Generate(ctx, scenarioAsOf, domain.AgingFilter{OverdueOnly: true})
	require.NoError(t, err)
	assert.Empty(t, report.Records)
}

func TestAgingService_ScenarioC(t *testing.T) {
	store := memory.New()
	addSchedule(store, domain.ScheduleTypeRental, domain.FrequencyWeekly, 10000, utils.NewDate(2024, 3, 1), 0, domain.ScheduleStatusActive)

	report, err := newTestService(store).Generate(context.Background(), utils.NewDate(2024, 4, 5), domain.AgingFilter{})
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, 35, report.Records[0].DaysLate)
	assert.Equal(t, domain.BucketOver30, report.Records[0].Bucket)
}

func TestAgingService_ScenarioD_PausedNeverReturned(t *testing.T) {
	store := memory.New()
	for _, status := range []domain.ScheduleStatus{domain.ScheduleStatusPaused, domain.ScheduleStatusCompleted, domain.ScheduleStatusCancelled} {
		addSchedule(store, domain.ScheduleTypeRental, domain.FrequencyMonthly, 10000, utils.NewDate(2023, 1, 1), 3, status)
	}

	report, err := newTestService(store).Generate(context.Background(), scenarioAsOf, domain.AgingFilter{})
	require.NoError(t, err)
	assert.Empty(t, report.Records)
}

func TestAgingService_FutureDueExcluded(t *testing.T) {
	store := memory.New()
	addSchedule(store, domain.ScheduleTypeRental, domain.FrequencyMonthly, 10000, scenarioAsOf.AddDays(1), 3, domain.ScheduleStatusActive)
	inGrace := addSchedule(store, domain.ScheduleTypeRental, domain.FrequencyMonthly, 10000, scenarioAsOf.AddDays(-2), 3, domain.ScheduleStatusActive)

	report, err := newTestService(store).Generate(context.Background(), scenarioAsOf, domain.AgingFilter{})
	require.NoError(t, err)
	require.Len(t, report.Records, 1)

	rec := report.Records[0]
	assert.Equal(t, inGrace.ID, rec.ScheduleID)
	assert.Equal(t, 0, rec.DaysLate)
	assert.Equal(t, domain.BucketCurrent, rec.Bucket)
	assert.Equal(t, int64(10000), rec.OutstandingCents)
}

func TestAgingService_TypeFilter(t *testing.T) {
	store := memory.New()
	addSchedule(store, domain.ScheduleTypeInstalment, domain.FrequencyMonthly, 50000, utils.NewDate(2024, 3, 1), 3, domain.ScheduleStatusActive)
	rental := addSchedule(store, domain.ScheduleTypeRental, domain.FrequencyWeekly, 10000, utils.NewDate(2024, 3, 2), 3, domain.ScheduleStatusActive)

	report, err := newTestService(store).Generate(context.Background(), scenarioAsOf, domain.AgingFilter{ScheduleType: domain.ScheduleTypeRental})
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, rental.ID, report.Records[0].ScheduleID)

	_, err = newTestService(store).Generate(context.Background(), scenarioAsOf, domain.AgingFilter{ScheduleType: "lease"})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestAgingService_OrderingAndIdempotence(t *testing.T) {
	store := memory.New()
	due := []utils.Date{
		utils.NewDate(2024, 3, 5),
		utils.NewDate(2024, 2, 1),
		utils.NewDate(2024, 3, 5),
		utils.NewDate(2024, 1, 15),
		utils.NewDate(2024, 3, 5),
	}
	for _, d := range due {
		addSchedule(store, domain.ScheduleTypeRental, domain.FrequencyMonthly, 10000, d, 3, domain.ScheduleStatusActive)
	}

	svc := newTestService(store)
	first, err := svc.Generate(context.Background(), scenarioAsOf, domain.AgingFilter{})
	require.NoError(t, err)
	second, err := svc.Generate(context.Background(), scenarioAsOf, domain.AgingFilter{})
	require.NoError(t, err)

	assert.Equal(t, first.Records, second.Records)
	require.Len(t, first.Records, len(due))
	for i := 1; i < len(first.Records); i++ {
		prev, cur := first.Records[i-1], first.Records[i]
		if prev.DueDate == cur.DueDate {
			assert.Less(t, prev.ScheduleID.String(), cur.ScheduleID.String())
		} else {
			assert.True(t, prev.DueDate.Before(cur.DueDate))
		}
	}
}

func TestAgingService_OutstandingNeverNegative(t *testing.T) {
	store := memory.New()
	sch := addSchedule(store, domain.ScheduleTypeInstalment, domain.FrequencyMonthly, 20000, utils.NewDate(2024, 3, 1), 3, domain.ScheduleStatusActive)
	pay(store, sch.OrderID, domain.TransactionTypePayment, 15000, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC))
	pay(store, sch.OrderID, domain.TransactionTypeDeposit, 15000, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC))
	pay(store, sch.OrderID, domain.TransactionTypeRefund, 30000, time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC))

	report, err := newTestService(store).Generate(context.Background(), scenarioAsOf, domain.AgingFilter{})
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, int64(30000), report.Records[0].PaidCents)
	assert.Equal(t, int64(0), report.Records[0].OutstandingCents)
}

// faultySource wraps the memory store and injects ledger failures per order.
type faultySource struct {
	store    *memory.Store
	beginErr error
	listErr  error
	fail     map[uuid.UUID]error
	hang     map[uuid.UUID]bool
	delay    time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *faultySource) Ping(context.Context) error { return nil }

func (f *faultySource) BeginSnapshot(ctx context.Context) (repository.AgingSnapshot, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	inner, err := f.store.BeginSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &faultySnapshot{AgingSnapshot: inner, src: f}, nil
}

type faultySnapshot struct {
	repository.AgingSnapshot
	src *faultySource
}

func (s *faultySnapshot) ListActiveDueBy(ctx context.Context, asOf utils.Date, t domain.ScheduleType) ([]domain.ScheduleAccount, error) {
	if s.src.listErr != nil {
		return nil, s.src.listErr
	}
	return s.AgingSnapshot.ListActiveDueBy(ctx, asOf, t)
}

func (s *faultySnapshot) SumPaymentsInWindow(ctx context.Context, orderID uuid.UUID, start, end time.Time) (int64, error) {
	n := s.src.inFlight.Add(1)
	defer s.src.inFlight.Add(-1)
	for {
		cur := s.src.maxInFlight.Load()
		if n <= cur || s.src.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	if s.src.hang[orderID] {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if err := s.src.fail[orderID]; err != nil {
		return 0, err
	}
	if s.src.delay > 0 {
		time.Sleep(s.src.delay)
	}
	return s.AgingSnapshot.SumPaymentsInWindow(ctx, orderID, start, end)
}

func TestAgingService_StoreUnavailable(t *testing.T) {
	store := memory.New()
	addSchedule(store, domain.ScheduleTypeRental, domain.FrequencyMonthly, 10000, utils.NewDate(2024, 3, 1), 3, domain.ScheduleStatusActive)

	t.Run("Snapshot fails", func(t *testing.T) {
		src := &faultySource{store: store, beginErr: errors.New("dial tcp: connection refused")}
		_, err := newTestService(src).Generate(context.Background(), scenarioAsOf, domain.AgingFilter{})
		assert.ErrorIs(t, err, repository.ErrStoreUnavailable)
	})

	t.Run("Schedule list fails", func(t *testing.T) {
		src := &faultySource{store: store, listErr: errors.New("relation does not exist")}
		_, err := newTestService(src).Generate(context.Background(), scenarioAsOf, domain.AgingFilter{})
		assert.ErrorIs(t, err, repository.ErrStoreUnavailable)
	})
}

func TestAgingService_PartialFailure(t *testing.T) {
	store := memory.New()
	ok := addSchedule(store, domain.ScheduleTypeRental, domain.FrequencyMonthly, 10000, utils.NewDate(2024, 3, 1), 3, domain.ScheduleStatusActive)
	broken := addSchedule(store, domain.ScheduleTypeRental, domain.FrequencyMonthly, 10000, utils.NewDate(2024, 3, 2), 3, domain.ScheduleStatusActive)
	slow := addSchedule(store, domain.ScheduleTypeRental, domain.FrequencyMonthly, 10000, utils.NewDate(2024, 3, 3), 3, domain.ScheduleStatusActive)

	src := &faultySource{
		store: store,
		fail:  map[uuid.UUID]error{broken.OrderID: errors.New("connection reset by peer")},
		hang:  map[uuid.UUID]bool{slow.OrderID: true},
	}
	svc := NewAgingService(src, AgingOptions{Workers: 2, LookupTimeout: 50 * time.Millisecond, BatchTimeout: time.Second})

	report, err := svc.Generate(context.Background(), scenarioAsOf, domain.AgingFilter{})
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, ok.ID, report.Records[0].ScheduleID)
	assert.Equal(t, 2, report.Omitted)
	assert.False(t, report.Complete())

	reasons := map[uuid.UUID]string{}
	for _, f := range report.Failures {
		reasons[f.ScheduleID] = f.Reason
	}
	assert.Contains(t, reasons[broken.ID], "connection reset by peer")
	assert.Equal(t, "ledger lookup timed out", reasons[slow.ID])
}

func TestAgingService_StrictModeFailsReport(t *testing.T) {
	store := memory.New()
	addSchedule(store, domain.ScheduleTypeRental, domain.FrequencyMonthly, 10000, utils.NewDate(2024, 3, 1), 3, domain.ScheduleStatusActive)
	broken := addSchedule(store, domain.ScheduleTypeRental, domain.FrequencyMonthly, 10000, utils.NewDate(2024, 3, 2), 3, domain.ScheduleStatusActive)

	src := &faultySource{store: store, fail: map[uuid.UUID]error{broken.OrderID: errors.New("boom")}}
	svc := NewAgingService(src, AgingOptions{Workers: 2, Strict: true})

	report, err := svc.Generate(context.Background(), scenarioAsOf, domain.AgingFilter{})
	assert.ErrorIs(t, err, ErrReportIncomplete)
	assert.Nil(t, report)
}

func TestAgingService_AllLookupsFail(t *testing.T) {
	store := memory.New()
	a := addSchedule(store, domain.ScheduleTypeRental, domain.FrequencyMonthly, 10000, utils.NewDate(2024, 3, 1), 3, domain.ScheduleStatusActive)
	b := addSchedule(store, domain.ScheduleTypeRental, domain.FrequencyMonthly, 10000, utils.NewDate(2024, 3, 2), 3, domain.ScheduleStatusActive)

	src := &faultySource{store: store, fail: map[uuid.UUID]error{
		a.OrderID: errors.New("ledger down"),
		b.OrderID: errors.New("ledger down"),
	}}

	_, err := newTestService(src).Generate(context.Background(), scenarioAsOf, domain.AgingFilter{})
	assert.ErrorIs(t, err, ErrReportIncomplete)
}

func TestAgingService_BoundedConcurrency(t *testing.T) {
	store := memory.New()
	for i := 0; i < 20; i++ {
		addSchedule(store, domain.ScheduleTypeRental, domain.FrequencyWeekly, 1000, utils.NewDate(2024, 3, 1), 0, domain.ScheduleStatusActive)
	}

	src := &faultySource{store: store, delay: 5 * time.Millisecond}
	svc := NewAgingService(src, AgingOptions{Workers: 3})

	report, err := svc.Generate(context.Background(), scenarioAsOf, domain.AgingFilter{})
	require.NoError(t, err)
	assert.Len(t, report.Records, 20)
	assert.LessOrEqual(t, src.maxInFlight.Load(), int32(3))
	assert.Greater(t, src.maxInFlight.Load(), int32(1))
}

func TestAgingService_ConcurrentReportsAgree(t *testing.T) {
	store := memory.New()
	for i := 0; i < 10; i++ {
		sch := addSchedule(store, domain.ScheduleTypeInstalment, domain.FrequencyMonthly, int64(1000*(i+1)), utils.NewDate(2024, 2, 20+i%5), 3, domain.ScheduleStatusActive)
		pay(store, sch.OrderID, domain.TransactionTypePayment, int64(500*i), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	}
	svc := newTestService(store)

	baseline, err := svc.Generate(context.Background(), scenarioAsOf, domain.AgingFilter{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := svc.Generate(context.Background(), scenarioAsOf, domain.AgingFilter{})
			assert.NoError(t, err)
			assert.Equal(t, baseline.Records, report.Records)
		}()
	}
	wg.Wait()
}

func TestAgingService_BatchTimeoutOmitsQueuedSchedules(t *testing.T) {
	store := memory.New()
	healthy := addSchedule(store, domain.ScheduleTypeRental, domain.FrequencyMonthly, 10000, utils.NewDate(2024, 2, 1), 3, domain.ScheduleStatusActive)
	hang := map[uuid.UUID]bool{}
	var stuck []uuid.UUID
	for i := 0; i < 4; i++ {
		sch := addSchedule(store, domain.ScheduleTypeRental, domain.FrequencyMonthly, 10000, utils.NewDate(2024, 3, 1+i), 3, domain.ScheduleStatusActive)
		hang[sch.OrderID] = true
		stuck = append(stuck, sch.ID)
	}

	// One worker: without the batch deadline the hung lookups would take
	// 4 x LookupTimeout in sequence.
	src := &faultySource{store: store, hang: hang}
	svc := NewAgingService(src, AgingOptions{Workers: 1, LookupTimeout: 200 * time.Millisecond, BatchTimeout: 300 * time.Millisecond})

	started := time.Now()
	report, err := svc.Generate(context.Background(), scenarioAsOf, domain.AgingFilter{})
	elapsed := time.Since(started)
	require.NoError(t, err)

	assert.Less(t, elapsed, 700*time.Millisecond)
	require.Len(t, report.Records, 1)
	assert.Equal(t, healthy.ID, report.Records[0].ScheduleID)
	assert.Equal(t, 4, report.Omitted)

	omitted := map[uuid.UUID]string{}
	for _, f := range report.Failures {
		omitted[f.ScheduleID] = f.Reason
	}
	for _, id := range stuck {
		assert.Equal(t, "ledger lookup timed out", omitted[id])
	}
}
