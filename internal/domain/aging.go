package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"recurring-billing-backend/internal/utils"
)

// Bucket classifies delinquency severity by days late past grace.
type Bucket string

const (
	BucketCurrent    Bucket = "current"
	BucketOneToSeven Bucket = "1-7"
	BucketEightTo30  Bucket = "8-30"
	BucketOver30     Bucket = ">30"
)

// AllBuckets lists buckets in increasing severity.
var AllBuckets = []Bucket{BucketCurrent, BucketOneToSeven, BucketEightTo30, BucketOver30}

// Reconciliation is the point-in-time position of one schedule's current cycle.
type Reconciliation struct {
	PaidCents        int64
	DueCents         int64
	OutstandingCents int64
	DaysLate         int // clamped at 0
	Bucket           Bucket
}

// AgingFilter narrows an aging report. An empty ScheduleType means all types.
type AgingFilter struct {
	ScheduleType ScheduleType
	OverdueOnly  bool
}

// AgingRecord is one row of the collections aging view. Minor-unit fields
// are authoritative; major-unit fields are derived for display.
type AgingRecord struct {
	ScheduleID   uuid.UUID    `json:"schedule_id"`
	OrderID      uuid.UUID    `json:"order_id"`
	OrderCode    string       `json:"order_code"`
	ScheduleType ScheduleType `json:"schedule_type"`
	Frequency    Frequency    `json:"frequency"`
	CustomerName string       `json:"customer_name"`
	Phone        string       `json:"phone"`
	DueDate      utils.Date   `json:"due_date"`

	AmountCents      int64 `json:"amount_cents"`
	PaidCents        int64 `json:"paid_cents"`
	OutstandingCents int64 `json:"outstanding_cents"`

	Amount      decimal.Decimal `json:"amount"`
	Paid        decimal.Decimal `json:"paid"`
	Outstanding decimal.Decimal `json:"outstanding"`

	DaysLate int    `json:"days_late"`
	Bucket   Bucket `json:"bucket"`
}

// ScheduleFailure records a schedule omitted from a report.
type ScheduleFailure struct {
	ScheduleID uuid.UUID `json:"schedule_id"`
	Reason     string    `json:"reason"`
}

// AgingReport is the ordered aging view for one as-of date.
type AgingReport struct {
	AsOf     utils.Date        `json:"as_of"`
	Filter   AgingFilter       `json:"-"`
	Records  []AgingRecord     `json:"records"`
	Omitted  int               `json:"omitted"`
	Failures []ScheduleFailure `json:"failures,omitempty"`
}

// Complete reports whether every matching schedule made it into the report.
func (r *AgingReport) Complete() bool {
	return r.Omitted == 0
}
