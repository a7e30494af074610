package pricing

import "github.com/vantutran2k1/haulbook/internal/core/domain"

// PercentCommission takes Percent of the final fare, clamped to [Min, Max]
// and never more than the fare itself.
type PercentCommission struct {
	Percent float64
	Min     float64
	Max     float64
}

func NewPercentCommission(percent, min, max float64) *PercentCommission {
	return &PercentCommission{Percent: percent, Min: min, Max: max}
}

func (p *PercentCommission) Split(finalFare float64) domain.FareSplit {
	commission := finalFare * p.Percent / 100
	if commission < p.Min {
		commission = p.Min
	}
	if p.Max > 0 && commission > p.Max {
		commission = p.Max
	}
	if commission > finalFare {
		commission = finalFare
	}
	commission = domain.Round2(commission)

	return domain.FareSplit{
		FinalFare:     domain.Round2(finalFare),
		Commission:    commission,
		DriverEarning: domain.Round2(finalFare - commission),
	}
}
