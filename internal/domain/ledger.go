package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypePayment TransactionType = "payment"
	TransactionTypeRefund  TransactionType = "refund"
	TransactionTypePenalty TransactionType = "penalty"
	TransactionTypeDeposit TransactionType = "deposit"
)

// BalanceReducingTypes lists the ledger types summed into a cycle window.
// Refunds are stored unsigned and are not among them.
var BalanceReducingTypes = []TransactionType{TransactionTypePayment, TransactionTypeDeposit}

// ReducesBalance reports whether entries of this type count toward the
// amount paid in a billing cycle.
func (t TransactionType) ReducesBalance() bool {
	return slices.Contains(BalanceReducingTypes, t)
}

// Transaction is an append-only ledger entry against an order.
type Transaction struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	Type        TransactionType `json:"type"`
	AmountCents int64           `json:"amount_cents"`
	PaidAt      time.Time       `json:"paid_at"`
}
