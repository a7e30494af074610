package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type VehicleType string

const (
	VehicleMiniDCM  VehicleType = "mini_dcm"
	VehicleDCM      VehicleType = "dcm"
	VehicleLargeDCM VehicleType = "large_dcm"
)

// ParseVehicleType accepts the stored form and display names like "Mini DCM".
func ParseVehicleType(s string) (VehicleType, error) {
	norm := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch vt := VehicleType(norm); vt {
	case VehicleMiniDCM, VehicleDCM, VehicleLargeDCM:
		return vt, nil
	default:
		return "", fmt.Errorf("%w: unknown vehicle type %q", ErrValidation, s)
	}
}

// Vehicle is a truck registered by a driver. Verifying a driver verifies all
// of their vehicles.
type Vehicle struct {
	ID              string      `json:"id"`
	DriverID        string      `json:"driver_id"`
	Number          string      `json:"vehicle_number"`
	Type            VehicleType `json:"vehicle_type"`
	CapacityKg      float64     `json:"capacity_kg"`
	CapacityCubicFt *float64    `json:"capacity_cubic_ft,omitempty"`
	InsuranceExpiry *time.Time  `json:"insurance_expiry,omitempty"`
	IsVerified      bool        `json:"is_verified"`
	IsActive        bool        `json:"is_active"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

type VehicleDraft struct {
	Number          string
	Type            VehicleType
	CapacityKg      float64
	CapacityCubicFt *float64
	InsuranceExpiry *time.Time
}

// NormalizeVehicleNumber uppercases a registration number and strips spaces
// and dashes, so "ts 09 ab-1234" and "TS09AB1234" are the same vehicle.
func NormalizeVehicleNumber(s string) string {
	s = strings.ToUpper(s)
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, s)
}

func (d *VehicleDraft) Validate(now time.Time) error {
	d.Number = NormalizeVehicleNumber(d.Number)
	if d.Number == "" {
		return invalid("vehicle_number", "is required")
	}
	if len(d.Number) > 20 {
		return invalid("vehicle_number", "must be at most 20 characters")
	}
	vt, err := ParseVehicleType(string(d.Type))
	if err != nil {
		return err
	}
	d.Type = vt
	if !finite(d.CapacityKg) || d.CapacityKg <= 0 {
		return invalid("capacity_kg", "must be positive")
	}
	if d.CapacityCubicFt != nil && (!finite(*d.CapacityCubicFt) || *d.CapacityCubicFt <= 0) {
		return invalid("capacity_cubic_ft", "must be positive")
	}
	if d.InsuranceExpiry != nil && d.InsuranceExpiry.Before(now) {
		return invalid("insurance_expiry", "must not be in the past")
	}
	return nil
}

// NewVehicle builds an unverified, active vehicle from a validated draft.
func NewVehicle(driverID string, d VehicleDraft, now time.Time) Vehicle {
	return Vehicle{
		ID:              uuid.NewString(),
		DriverID:        driverID,
		Number:          d.Number,
		Type:            d.Type,
		CapacityKg:      d.CapacityKg,
		CapacityCubicFt: d.CapacityCubicFt,
		InsuranceExpiry: d.InsuranceExpiry,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
