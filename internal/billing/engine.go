// Package billing reconciles recurring schedules against the payment ledger
// and classifies delinquency. Everything here is a pure function of its
// inputs: no I/O, no clock reads.
package billing

import (
	"time"

	"recurring-billing-backend/internal/domain"
	"recurring-billing-backend/internal/utils"
)

const (
	weeklyCycleDays  = 7
	monthlyCycleDays = 30
)

// CycleDays returns the cycle length for a billing frequency. Unknown
// frequencies fall back to the monthly length so that one malformed
// schedule still appears on the report.
func CycleDays(f domain.Frequency) int {
	if f == domain.FrequencyWeekly {
		return weeklyCycleDays
	}
	return monthlyCycleDays
}

// CycleWindow returns the half-open range [start, endExclusive) in which
// payments count toward the schedule's current cycle: from one cycle before
// the due date up to the end of the as-of day. Both bounds are UTC midnight.
func CycleWindow(s domain.RecurringSchedule, asOf utils.Date) (time.Time, time.Time) {
	start := s.NextDueDate.AddDays(-CycleDays(s.Frequency))
	return start.Time(), asOf.AddDays(1).Time()
}

// RawDaysLate is the whole days from the due date to asOf, less grace.
// Negative while the schedule is not yet due or still inside its grace period.
func RawDaysLate(s domain.RecurringSchedule, asOf utils.Date) int {
	return utils.DaysBetween(s.NextDueDate, asOf) - int(s.GraceDays)
}

// ClassifyBucket maps unclamped days late onto a collections bucket.
func ClassifyBucket(rawDaysLate int) domain.Bucket {
	switch {
	case rawDaysLate <= 0:
		return domain.BucketCurrent
	case rawDaysLate <= 7:
		return domain.BucketOneToSeven
	case rawDaysLate <= 30:
		return domain.BucketEightTo30
	default:
		return domain.BucketOver30
	}
}

// Reconcile computes the schedule's position given the amount paid inside
// its cycle window. Overpayment is not carried forward: outstanding is
// clamped at zero.
func Reconcile(s domain.RecurringSchedule, asOf utils.Date, paidCents int64) domain.Reconciliation {
	due := s.AmountCents
	outstanding := due - paidCents
	if outstanding < 0 {
		outstanding = 0
	}

	raw := RawDaysLate(s, asOf)
	daysLate := raw
	if daysLate < 0 {
		daysLate = 0
	}

	return domain.Reconciliation{
		PaidCents:        paidCents,
		DueCents:         due,
		OutstandingCents: outstanding,
		DaysLate:         daysLate,
		Bucket:           ClassifyBucket(raw),
	}
}

// ReconcilePayments sums the balance-reducing entries of txs that belong to
// the schedule's order and fall inside its cycle window, then reconciles.
// Entries outside the window or for other orders are ignored.
func ReconcilePayments(s domain.RecurringSchedule, asOf utils.Date, txs []domain.Transaction) domain.Reconciliation {
	return Reconcile(s, asOf, SumWindow(s, asOf, txs))
}

// SumWindow totals the payments and deposits of txs inside the schedule's
// cycle window.
func SumWindow(s domain.RecurringSchedule, asOf utils.Date, txs []domain.Transaction) int64 {
	start, end := CycleWindow(s, asOf)
	var paid int64
	for _, tx := range txs {
		if tx.OrderID != s.OrderID || !tx.Type.ReducesBalance() {
			continue
		}
		if tx.PaidAt.Before(start) || !tx.PaidAt.Before(end) {
			continue
		}
		paid += tx.AmountCents
	}
	return paid
}
