package domain

import (
	"fmt"
	"time"
)

type DriverStatus string

const (
	DriverStatusAvailable DriverStatus = "available"
	DriverStatusBusy      DriverStatus = "busy"
	DriverStatusOffline   DriverStatus = "offline"
)

func ParseDriverStatus(s string) (DriverStatus, error) {
	switch st := DriverStatus(s); st {
	case DriverStatusAvailable, DriverStatusBusy, DriverStatusOffline:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown driver status %q", ErrValidation, s)
	}
}

type Driver struct {
	ID                string       `json:"id"`
	UserID            string       `json:"user_id"`
	Name              string       `json:"name,omitempty"`
	Phone             string       `json:"phone,omitempty"`
	LicenseNumber     string       `json:"license_number,omitempty"`
	ServiceArea       string       `json:"service_area,omitempty"`
	Status            DriverStatus `json:"status"`
	Latitude          *float64     `json:"latitude,omitempty"`
	Longitude         *float64     `json:"longitude,omitempty"`
	LocationUpdatedAt *time.Time   `json:"location_updated_at,omitempty"`
	IsVerified        bool         `json:"is_verified"`
	TotalTrips        int          `json:"total_trips"`
	TotalEarnings     float64      `json:"total_earnings"`
	WalletBalance     float64      `json:"wallet_balance"`
	Rating            float64      `json:"rating"`
	RatingCount       int          `json:"rating_count"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

func (d *Driver) CanAcceptOrder() bool {
	return d.Status == DriverStatusAvailable
}

func (d *Driver) Location() (Location, bool) {
	if d.Latitude == nil || d.Longitude == nil {
		return Location{}, false
	}
	return Location{Latitude: *d.Latitude, Longitude: *d.Longitude}, true
}

// LocationFresh reports whether the last known location is usable for matching
// at now. A zero maxAge disables the staleness check.
func (d *Driver) LocationFresh(now time.Time, maxAge time.Duration) bool {
	if _, ok := d.Location(); !ok {
		return false
	}
	if maxAge <= 0 {
		return true
	}
	return d.LocationUpdatedAt != nil && now.Sub(*d.LocationUpdatedAt) <= maxAge
}

// MatchEligible reports whether the driver may be offered a pending booking.
func (d *Driver) MatchEligible(now time.Time, maxAge time.Duration) bool {
	return d.CanAcceptOrder() && d.IsVerified && d.LocationFresh(now, maxAge)
}

func (d *Driver) SetLocation(loc Location, at time.Time) {
	lat, lng := loc.Latitude, loc.Longitude
	d.Latitude = &lat
	d.Longitude = &lng
	d.LocationUpdatedAt = &at
	d.UpdatedAt = at
}

// AddRating folds a per-trip rating into the running average.
func (d *Driver) AddRating(r int) {
	total := d.Rating*float64(d.RatingCount) + float64(r)
	d.RatingCount++
	d.Rating = Round2(total / float64(d.RatingCount))
}

// NearbyDriver is a matching candidate with its distance from the pickup.
type NearbyDriver struct {
	Driver     Driver  `json:"driver"`
	DistanceKm float64 `json:"distance_from_driver"`
}
