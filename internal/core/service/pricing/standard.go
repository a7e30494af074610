package pricing

import (
	"context"
	"fmt"

	"github.com/vantutran2k1/haulbook/internal/core/domain"
)

// StandardStrategy charges base_fare + distance_km * per_km_rate.
type StandardStrategy struct {
	BaseFare  float64
	PerKmRate float64
}

func NewStandardStrategy(baseFare, perKmRate float64) *StandardStrategy {
	return &StandardStrategy{BaseFare: baseFare, PerKmRate: perKmRate}
}

func (s *StandardStrategy) CalculatePrice(ctx context.Context, input domain.PricingInput) (float64, error) {
	if input.DistanceKm < 0 {
		return 0, fmt.Errorf("%w: distance must not be negative", domain.ErrValidation)
	}

	variable := input.DistanceKm * s.PerKmRate
	total := domain.Round2(s.BaseFare + variable)

	if total < s.BaseFare {
		total = s.BaseFare
	}

	return total, nil
}
