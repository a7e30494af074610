package service

import (
	"context"
	"time"

	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"github.com/vantutran2k1/haulbook/internal/core/port"
	"go.uber.org/zap"
)

// DriverProfile is a driver together with the vehicles they registered.
type DriverProfile struct {
	domain.Driver
	Vehicles []domain.Vehicle `json:"vehicles"`
}

// RegisterVehicle adds an unverified vehicle to a driver. Vehicle numbers are
// unique across all drivers.
func (s *DispatchService) RegisterVehicle(ctx context.Context, actor domain.Identity, driverID string, draft domain.VehicleDraft) (domain.Vehicle, error) {
	if err := s.gate.AuthorizeDriver(actor, ActionManageVehicles, driverID); err != nil {
		return domain.Vehicle{}, err
	}
	now := s.now()
	if err := draft.Validate(now); err != nil {
		return domain.Vehicle{}, err
	}

	v := domain.NewVehicle(driverID, draft, now)
	err := runTx(ctx, s.store, s.cfg.StoreTimeout, func(ctx context.Context, q port.Querier) error {
		if _, err := q.GetDriver(ctx, driverID); err != nil {
			return err
		}
		return q.CreateVehicle(ctx, v)
	})
	if err != nil {
		return domain.Vehicle{}, err
	}

	s.logger.Info("vehicle registered",
		zap.String("driver_id", driverID),
		zap.String("vehicle_id", v.ID),
		zap.String("vehicle_number", v.Number))
	return v, nil
}

func (s *DispatchService) ListVehicles(ctx context.Context, actor domain.Identity, driverID string) ([]domain.Vehicle, error) {
	if err := s.gate.AuthorizeDriver(actor, ActionManageVehicles, driverID); err != nil {
		return nil, err
	}
	return read(ctx, s.cfg.StoreTimeout, func(ctx context.Context) ([]domain.Vehicle, error) {
		if _, err := s.store.GetDriver(ctx, driverID); err != nil {
			return nil, err
		}
		return s.store.ListVehicles(ctx, port.VehicleFilter{DriverIDs: []string{driverID}})
	})
}

// ListPendingDrivers returns unverified drivers with their vehicles, oldest
// registration first.
func (s *DispatchService) ListPendingDrivers(ctx context.Context, actor domain.Identity) ([]DriverProfile, error) {
	if err := s.gate.Authorize(actor, ActionVerifyDriver); err != nil {
		return nil, err
	}

	unverified := false
	return read(ctx, s.cfg.StoreTimeout, func(ctx context.Context) ([]DriverProfile, error) {
		drivers, err := s.store.ListDrivers(ctx, port.DriverFilter{Verified: &unverified})
		if err != nil || len(drivers) == 0 {
			return []DriverProfile{}, err
		}

		ids := make([]string, len(drivers))
		for i, d := range drivers {
			ids[i] = d.ID
		}
		vehicles, err := s.store.ListVehicles(ctx, port.VehicleFilter{DriverIDs: ids})
		if err != nil {
			return nil, err
		}
		byDriver := make(map[string][]domain.Vehicle, len(drivers))
		for _, v := range vehicles {
			byDriver[v.DriverID] = append(byDriver[v.DriverID], v)
		}

		out := make([]DriverProfile, len(drivers))
		for i, d := range drivers {
			vs := byDriver[d.ID]
			if vs == nil {
				vs = []domain.Vehicle{}
			}
			out[i] = DriverProfile{Driver: d, Vehicles: vs}
		}
		return out, nil
	})
}

func verifyVehicles(ctx context.Context, q port.Querier, driverID string, now time.Time) error {
	vehicles, err := q.ListVehicles(ctx, port.VehicleFilter{DriverIDs: []string{driverID}})
	if err != nil {
		return err
	}
	for _, v := range vehicles {
		if v.IsVerified {
			continue
		}
		v.IsVerified = true
		v.UpdatedAt = now
		if err := q.UpdateVehicle(ctx, v); err != nil {
			return err
		}
	}
	return nil
}
