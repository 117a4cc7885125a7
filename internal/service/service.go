package service

import (
	"context"

	"recurring-billing-backend/internal/domain"
	"recurring-billing-backend/internal/utils"
)

// AgingService produces the collections aging view. Every consumer (the
// report endpoint, the chase-list job, the operator CLI) goes through it so
// that the aging rules live in one place.
type AgingService interface {
	Generate(ctx context.Context, asOf utils.Date, filter domain.AgingFilter) (*domain.AgingReport, error)
}
