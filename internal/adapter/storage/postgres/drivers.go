package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"github.com/vantutran2k1/haulbook/internal/core/port"
)

const driverColumns = `d.id, d.user_id, u.name, u.phone, d.license_number, d.service_area, d.status,
	d.latitude, d.longitude, d.location_updated_at, d.is_verified, d.total_trips,
	d.total_earnings, d.wallet_balance, d.rating, d.rating_count, d.created_at, d.updated_at`

const driverFrom = ` FROM drivers d JOIN users u ON u.id = d.user_id`

func scanDriver(row scanner) (domain.Driver, error) {
	var (
		d      domain.Driver
		status string
	)
	err := row.Scan(
		&d.ID, &d.UserID, &d.Name, &d.Phone, &d.LicenseNumber, &d.ServiceArea, &status,
		&d.Latitude, &d.Longitude, &d.LocationUpdatedAt, &d.IsVerified, &d.TotalTrips,
		&d.TotalEarnings, &d.WalletBalance, &d.Rating, &d.RatingCount, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return domain.Driver{}, err
	}
	d.Status = domain.DriverStatus(status)
	return d, nil
}

const createDriver = `INSERT INTO drivers (
	id, user_id, license_number, service_area, status, latitude, longitude, location_updated_at,
	is_verified, total_trips, total_earnings, wallet_balance, rating, rating_count, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

func (q *Queries) CreateDriver(ctx context.Context, d domain.Driver) error {
	_, err := q.db.Exec(ctx, createDriver,
		d.ID, d.UserID, d.LicenseNumber, d.ServiceArea, string(d.Status), d.Latitude, d.Longitude, d.LocationUpdatedAt,
		d.IsVerified, d.TotalTrips, d.TotalEarnings, d.WalletBalance, d.Rating, d.RatingCount, d.CreatedAt, d.UpdatedAt,
	)
	return mapError(err)
}

const getDriver = `SELECT ` + driverColumns + driverFrom + ` WHERE d.id = $1`

func (q *Queries) GetDriver(ctx context.Context, id string) (domain.Driver, error) {
	d, err := scanDriver(q.db.QueryRow(ctx, getDriver, id))
	if err != nil {
		return domain.Driver{}, notFound(err, "driver", id)
	}
	return d, nil
}

const getDriverByUserID = `SELECT ` + driverColumns + driverFrom + ` WHERE d.user_id = $1`

func (q *Queries) GetDriverByUserID(ctx context.Context, userID string) (domain.Driver, error) {
	d, err := scanDriver(q.db.QueryRow(ctx, getDriverByUserID, userID))
	if err != nil {
		return domain.Driver{}, notFound(err, "driver for user", userID)
	}
	return d, nil
}

const lockDriver = getDriver + ` FOR UPDATE OF d`

// LockDriver reads a driver and holds its row until the transaction ends.
func (q *Queries) LockDriver(ctx context.Context, id string) (domain.Driver, error) {
	d, err := scanDriver(q.db.QueryRow(ctx, lockDriver, id))
	if err != nil {
		return domain.Driver{}, notFound(err, "driver", id)
	}
	return d, nil
}

func (q *Queries) ListDrivers(ctx context.Context, f port.DriverFilter) ([]domain.Driver, error) {
	var (
		where []string
		args  []any
	)
	if len(f.IDs) > 0 {
		args = append(args, f.IDs)
		where = append(where, fmt.Sprintf("d.id = ANY($%d)", len(args)))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("d.status = ANY($%d)", len(args)))
	}
	if f.Verified != nil {
		args = append(args, *f.Verified)
		where = append(where, fmt.Sprintf("d.is_verified = $%d", len(args)))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + driverColumns + driverFrom)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY d.created_at, d.id")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if f.SkipLocked {
		sb.WriteString(" FOR SHARE OF d SKIP LOCKED")
	}

	rows, err := q.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := []domain.Driver{}
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, d)
	}
	return out, mapError(rows.Err())
}

const updateDriver = `UPDATE drivers SET
	license_number = $2, service_area = $3, status = $4, latitude = $5, longitude = $6,
	location_updated_at = $7, is_verified = $8, total_trips = $9, total_earnings = $10,
	wallet_balance = $11, rating = $12, rating_count = $13, updated_at = $14
WHERE id = $1`

func (q *Queries) UpdateDriver(ctx context.Context, d domain.Driver) error {
	tag, err := q.db.Exec(ctx, updateDriver,
		d.ID, d.LicenseNumber, d.ServiceArea, string(d.Status), d.Latitude, d.Longitude,
		d.LocationUpdatedAt, d.IsVerified, d.TotalTrips, d.TotalEarnings,
		d.WalletBalance, d.Rating, d.RatingCount, d.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: driver %s", domain.ErrNotFound, d.ID)
	}
	return nil
}
