// Package rate resolves the per-minute price in effect for an operator
// and channel. The resolver is a pure lookup over the operator catalog;
// callers freeze the returned rate into the session at creation time, so
// later catalog edits never affect sessions already in progress.
package rate

import (
	"context"
	"errors"
	"fmt"

	"consora/internal/models"
	"consora/internal/repositories"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownChannel = errors.New("unknown consultation channel")
	ErrNoRate         = errors.New("operator has no rate for channel")
)

// Resolver looks up operator rates.
type Resolver interface {
	Rate(ctx context.Context, operatorID uint, channel string) (decimal.Decimal, error)
}

type resolver struct {
	operators repositories.OperatorRepository
}

// NewResolver creates a catalog-backed Resolver.
func NewResolver(operators repositories.OperatorRepository) Resolver {
	if operators == nil {
		panic("operator repository is required")
	}
	return &resolver{operators: operators}
}

func (r *resolver) Rate(ctx context.Context, operatorID uint, channel string) (decimal.Decimal, error) {
	switch channel {
	case models.ChannelChat, models.ChannelCall, models.ChannelWritten:
	default:
		return decimal.Zero, ErrUnknownChannel
	}

	operator, err := r.operators.GetByID(ctx, operatorID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to resolve rate: %w", err)
	}

	rate := operator.RateFor(channel)
	if rate.Sign() <= 0 {
		return decimal.Zero, ErrNoRate
	}
	return rate, nil
}
