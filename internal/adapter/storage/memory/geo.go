package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"github.com/vantutran2k1/haulbook/internal/core/port"
)

// GeoIndex is a LocationIndex backed by a map, searched by brute force.
type GeoIndex struct {
	mu        sync.RWMutex
	locations map[string]domain.Location
}

var _ port.LocationIndex = (*GeoIndex)(nil)

func NewGeoIndex() *GeoIndex {
	return &GeoIndex{locations: map[string]domain.Location{}}
}

func (g *GeoIndex) UpsertDriverLocation(ctx context.Context, driverID string, loc domain.Location) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.locations[driverID] = loc
	return nil
}

func (g *GeoIndex) RemoveDriver(ctx context.Context, driverID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.locations, driverID)
	return nil
}

func (g *GeoIndex) FindNearestDrivers(ctx context.Context, loc domain.Location, radiusKm float64, limit int) ([]port.GeoHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	hits := make([]port.GeoHit, 0, len(g.locations))
	for id, l := range g.locations {
		km := domain.DistanceKm(loc, l)
		if radiusKm > 0 && km > radiusKm {
			continue
		}
		hits = append(hits, port.GeoHit{DriverID: id, DistanceKm: km})
	}
	g.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceKm == hits[j].DistanceKm {
			return hits[i].DriverID < hits[j].DriverID
		}
		return hits[i].DistanceKm < hits[j].DistanceKm
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
