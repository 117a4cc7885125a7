package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"recurring-billing-backend/internal/domain"
	"recurring-billing-backend/internal/logger"
)

// The window is half-open so a payment at midnight after the as-of day is
// never counted twice across adjacent reports.
const sumPaymentsInWindowQuery = `
	SELECT COALESCE(SUM(amount_cents), 0)
	FROM transactions
	WHERE order_id = $1
	  AND paid_at >= $2 AND paid_at < $3
	  AND type = ANY($4)`

// balanceReducingTypes is domain.BalanceReducingTypes as a text[] argument.
func balanceReducingTypes() pq.StringArray {
	types := make(pq.StringArray, len(domain.BalanceReducingTypes))
	for i, t := range domain.BalanceReducingTypes {
		types[i] = string(t)
	}
	return types
}

func sumPaymentsInWindow(ctx context.Context, q queryer, orderID uuid.UUID, start, endExclusive time.Time) (int64, error) {
	logger.DatabaseCall("sum_payments_in_window", sumPaymentsInWindowQuery,
		"order_id", orderID, "start", start, "end", endExclusive)

	var paid int64
	err := q.QueryRowContext(ctx, sumPaymentsInWindowQuery, orderID, start.UTC(), endExclusive.UTC(), balanceReducingTypes()).Scan(&paid)
	logger.DatabaseResult("sum_payments_in_window", 1, err, "order_id", orderID)
	if err != nil {
		return 0, err
	}
	return paid, nil
}
