package domain

import (
	"fmt"
	"math"
	"strings"
)

const earthRadiusKm = 6371.0

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (l Location) Validate(field string) error {
	if !finite(l.Latitude) || !finite(l.Longitude) {
		return invalid(field, "must have finite coordinates")
	}
	if l.Latitude < -90 || l.Latitude > 90 {
		return invalid(field+".latitude", "must be between -90 and 90")
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return invalid(field+".longitude", "must be between -180 and 180")
	}
	return nil
}

// Place is a pickup or drop point of a booking.
type Place struct {
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city,omitempty"`
}

func (p Place) Location() Location {
	return Location{Latitude: p.Latitude, Longitude: p.Longitude}
}

func (p Place) Validate(field string) error {
	if strings.TrimSpace(p.Address) == "" {
		return invalid(field+".address", "is required")
	}
	return p.Location().Validate(field)
}

// DistanceKm is the great-circle distance between a and b, rounded to 10 m.
func DistanceKm(a, b Location) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return Round2(earthRadiusKm * c)
}

// Round2 rounds to two decimal places, the precision used for money and distances.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func invalid(field, msg string) error {
	return fmt.Errorf("%w: %s %s", ErrValidation, field, msg)
}
