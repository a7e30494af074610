package domain

import "context"

type PricingInput struct {
	DistanceKm float64
	Goods      GoodsType
}

type PricingStrategy interface {
	CalculatePrice(ctx context.Context, input PricingInput) (float64, error)
}

// FareQuote is the advisory estimate shown before and stored at creation.
type FareQuote struct {
	DistanceKm    float64 `json:"distance_km"`
	EstimatedFare float64 `json:"estimated_fare"`
}

// FareSplit is the authoritative division of a final fare.
type FareSplit struct {
	FinalFare     float64 `json:"final_fare"`
	Commission    float64 `json:"admin_commission"`
	DriverEarning float64 `json:"driver_earning"`
}

type CommissionPolicy interface {
	Split(finalFare float64) FareSplit
}
