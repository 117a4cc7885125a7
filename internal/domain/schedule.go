package domain

import (
	"github.com/google/uuid"

	"recurring-billing-backend/internal/utils"
)

type ScheduleType string

const (
	ScheduleTypeInstalment ScheduleType = "instalment"
	ScheduleTypeRental     ScheduleType = "rental"
)

// Valid reports whether t is a known schedule type.
func (t ScheduleType) Valid() bool {
	return t == ScheduleTypeInstalment || t == ScheduleTypeRental
}

type Frequency string

const (
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

type ScheduleStatus string

const (
	ScheduleStatusActive    ScheduleStatus = "active"
	ScheduleStatusPaused    ScheduleStatus = "paused"
	ScheduleStatusCompleted ScheduleStatus = "completed"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
)

// DefaultGraceDays applies when a schedule is created without one.
const DefaultGraceDays = 3

// RecurringSchedule is an instalment plan or rental agreement billed per cycle.
type RecurringSchedule struct {
	ID              uuid.UUID      `json:"id"`
	OrderID         uuid.UUID      `json:"order_id"`
	ScheduleType    ScheduleType   `json:"schedule_type"`
	Frequency       Frequency      `json:"frequency"`
	AmountCents     int64          `json:"amount_cents"`
	TotalCycles     *int32         `json:"total_cycles,omitempty"` // nil for open-ended rentals
	CyclesCompleted int32          `json:"cycles_completed"`
	NextDueDate     utils.Date     `json:"next_due_date"`
	GraceDays       int32          `json:"grace_days"`
	Status          ScheduleStatus `json:"status"`
}

// ScheduleAccount is a schedule joined with the order and customer fields
// shown on collections reports.
type ScheduleAccount struct {
	Schedule     RecurringSchedule
	OrderCode    string
	CustomerName string
	Phone        string
}
