package port

import (
	"context"

	"github.com/vantutran2k1/haulbook/internal/core/domain"
)

// GeoHit is a driver found by a radius search, nearest first.
type GeoHit struct {
	DriverID   string
	DistanceKm float64
}

type GeoFinder interface {
	FindNearestDrivers(ctx context.Context, loc domain.Location, radiusKm float64, limit int) ([]GeoHit, error)
}

type LocationIndex interface {
	GeoFinder
	UpsertDriverLocation(ctx context.Context, driverID string, loc domain.Location) error
	RemoveDriver(ctx context.Context, driverID string) error
}
