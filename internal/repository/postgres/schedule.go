package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"recurring-billing-backend/internal/domain"
	"recurring-billing-backend/internal/logger"
	"recurring-billing-backend/internal/utils"
)

const listActiveDueByQuery = `
	SELECT s.id, s.order_id, s.schedule_type, s.frequency, s.amount_cents,
	       s.total_cycles, s.cycles_completed, s.next_due_date, s.grace_days, s.status,
	       o.order_code, c.name, COALESCE(c.phone_primary, '')
	FROM recurring_schedules s
	JOIN orders o ON o.id = s.order_id
	JOIN customers c ON c.id = o.customer_id
	WHERE s.status = 'active' AND s.next_due_date <= $1`

func listActiveDueBy(ctx context.Context, q queryer, asOf utils.Date, scheduleType domain.ScheduleType) ([]domain.ScheduleAccount, error) {
	query := listActiveDueByQuery
	args := []any{asOf.String()}
	if scheduleType != "" {
		args = append(args, string(scheduleType))
		query += fmt.Sprintf(" AND s.schedule_type = $%d", len(args))
	}
	query += " ORDER BY s.next_due_date ASC, s.id ASC"

	logger.DatabaseCall("list_active_due_by", query, "as_of", asOf.String(), "schedule_type", scheduleType)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		logger.DatabaseResult("list_active_due_by", 0, err)
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.ScheduleAccount
	for rows.Next() {
		var (
			acc         domain.ScheduleAccount
			totalCycles sql.NullInt32
		)
		sch := &acc.Schedule
		if err := rows.Scan(
			&sch.ID, &sch.OrderID, &sch.ScheduleType, &sch.Frequency, &sch.AmountCents,
			&totalCycles, &sch.CyclesCompleted, &sch.NextDueDate, &sch.GraceDays, &sch.Status,
			&acc.OrderCode, &acc.CustomerName, &acc.Phone,
		); err != nil {
			logger.DatabaseResult("list_active_due_by", int64(len(accounts)), err)
			return nil, err
		}
		if totalCycles.Valid {
			n := totalCycles.Int32
			sch.TotalCycles = &n
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		logger.DatabaseResult("list_active_due_by", int64(len(accounts)), err)
		return nil, err
	}

	logger.DatabaseResult("list_active_due_by", int64(len(accounts)), nil)
	return accounts, nil
}
