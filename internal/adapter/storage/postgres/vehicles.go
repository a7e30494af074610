package postgres

import (
	"context"
	"fmt"

	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"github.com/vantutran2k1/haulbook/internal/core/port"
)

const vehicleColumns = `id, driver_id, vehicle_number, vehicle_type, capacity_kg, capacity_cubic_ft,
	insurance_expiry, is_verified, is_active, created_at, updated_at`

func scanVehicle(row scanner) (domain.Vehicle, error) {
	var (
		v  domain.Vehicle
		vt string
	)
	err := row.Scan(
		&v.ID, &v.DriverID, &v.Number, &vt, &v.CapacityKg, &v.CapacityCubicFt,
		&v.InsuranceExpiry, &v.IsVerified, &v.IsActive, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return domain.Vehicle{}, err
	}
	v.Type = domain.VehicleType(vt)
	return v, nil
}

const createVehicle = `INSERT INTO vehicles (` + vehicleColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

func (q *Queries) CreateVehicle(ctx context.Context, v domain.Vehicle) error {
	_, err := q.db.Exec(ctx, createVehicle,
		v.ID, v.DriverID, v.Number, string(v.Type), v.CapacityKg, v.CapacityCubicFt,
		v.InsuranceExpiry, v.IsVerified, v.IsActive, v.CreatedAt, v.UpdatedAt,
	)
	return mapError(err)
}

func (q *Queries) ListVehicles(ctx context.Context, f port.VehicleFilter) ([]domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles`
	var args []any
	if len(f.DriverIDs) > 0 {
		args = append(args, f.DriverIDs)
		query += ` WHERE driver_id = ANY($1)`
	}
	query += ` ORDER BY created_at, id`

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := []domain.Vehicle{}
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, v)
	}
	return out, mapError(rows.Err())
}

const updateVehicle = `UPDATE vehicles SET
	vehicle_type = $2, capacity_kg = $3, capacity_cubic_ft = $4, insurance_expiry = $5,
	is_verified = $6, is_active = $7, updated_at = $8
WHERE id = $1`

func (q *Queries) UpdateVehicle(ctx context.Context, v domain.Vehicle) error {
	tag, err := q.db.Exec(ctx, updateVehicle,
		v.ID, string(v.Type), v.CapacityKg, v.CapacityCubicFt, v.InsuranceExpiry,
		v.IsVerified, v.IsActive, v.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: vehicle %s", domain.ErrNotFound, v.ID)
	}
	return nil
}
