package redis

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/redis/go-redis/v9"
	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"github.com/vantutran2k1/haulbook/internal/core/port"
)

const driverLocationsKey = "driver_locations"

type GeoStore struct {
	client redis.Cmdable
	key    string
}

var _ port.LocationIndex = (*GeoStore)(nil)

func NewGeoStore(client redis.Cmdable) *GeoStore {
	return &GeoStore{client: client, key: driverLocationsKey}
}

func (r *GeoStore) UpsertDriverLocation(ctx context.Context, driverID string, loc domain.Location) error {
	err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Name:      driverID,
		Longitude: loc.Longitude,
		Latitude:  loc.Latitude,
	}).Err()
	return mapError(err)
}

func (r *GeoStore) RemoveDriver(ctx context.Context, driverID string) error {
	return mapError(r.client.ZRem(ctx, r.key, driverID).Err())
}

func (r *GeoStore) FindNearestDrivers(ctx context.Context, loc domain.Location, radiusKm float64, limit int) ([]port.GeoHit, error) {
	locations, err := r.client.GeoSearchLocation(ctx, r.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  loc.Longitude,
			Latitude:   loc.Latitude,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, mapError(err)
	}

	hits := make([]port.GeoHit, len(locations))
	for i, l := range locations {
		hits[i] = port.GeoHit{DriverID: l.Name, DistanceKm: l.Dist}
	}
	return hits, nil
}

// mapError reports connectivity problems as ErrUnavailable so callers retry.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.ErrClosed) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: redis: %v", domain.ErrUnavailable, err)
	}
	return fmt.Errorf("redis: %w", err)
}
