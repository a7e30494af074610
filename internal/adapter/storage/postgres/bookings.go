package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"github.com/vantutran2k1/haulbook/internal/core/port"
)

const bookingColumns = `id, customer_id, driver_id,
	pickup_address, pickup_lat, pickup_lng, pickup_city,
	drop_address, drop_lat, drop_lng, drop_city,
	goods_type, weight_kg, volume_cubic_ft, special_instructions, scheduled_date,
	distance_km, estimated_fare, final_fare, admin_commission, driver_earning, cancellation_fee,
	payment_status, status, rating, feedback, cancelled_by, cancel_reason,
	created_at, assigned_at, reached_at, started_at, completed_at, cancelled_at, finalized_at, updated_at`

func scanBooking(row scanner) (domain.Booking, error) {
	var (
		b                                   domain.Booking
		goods, payment, status, cancelledBy string
	)
	err := row.Scan(
		&b.ID, &b.CustomerID, &b.DriverID,
		&b.Pickup.Address, &b.Pickup.Latitude, &b.Pickup.Longitude, &b.Pickup.City,
		&b.Drop.Address, &b.Drop.Latitude, &b.Drop.Longitude, &b.Drop.City,
		&goods, &b.WeightKg, &b.VolumeCubicFt, &b.SpecialInstructions, &b.ScheduledDate,
		&b.DistanceKm, &b.EstimatedFare, &b.FinalFare, &b.AdminCommission, &b.DriverEarning, &b.CancellationFee,
		&payment, &status, &b.Rating, &b.Feedback, &cancelledBy, &b.CancelReason,
		&b.CreatedAt, &b.AssignedAt, &b.ReachedAt, &b.StartedAt, &b.CompletedAt, &b.CancelledAt, &b.FinalizedAt, &b.UpdatedAt,
	)
	if err != nil {
		return domain.Booking{}, err
	}
	b.GoodsType = domain.GoodsType(goods)
	b.PaymentStatus = domain.PaymentStatus(payment)
	b.Status = domain.BookingStatus(status)
	b.CancelledBy = domain.Role(cancelledBy)
	return b, nil
}

// bookingArgs lists b's values in bookingColumns order.
func bookingArgs(b domain.Booking) []any {
	return []any{
		b.ID, b.CustomerID, b.DriverID,
		b.Pickup.Address, b.Pickup.Latitude, b.Pickup.Longitude, b.Pickup.City,
		b.Drop.Address, b.Drop.Latitude, b.Drop.Longitude, b.Drop.City,
		string(b.GoodsType), b.WeightKg, b.VolumeCubicFt, b.SpecialInstructions, b.ScheduledDate,
		b.DistanceKm, b.EstimatedFare, b.FinalFare, b.AdminCommission, b.DriverEarning, b.CancellationFee,
		string(b.PaymentStatus), string(b.Status), b.Rating, b.Feedback, string(b.CancelledBy), b.CancelReason,
		b.CreatedAt, b.AssignedAt, b.ReachedAt, b.StartedAt, b.CompletedAt, b.CancelledAt, b.FinalizedAt, b.UpdatedAt,
	}
}

func placeholders(from, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(ps, ", ")
}

var createBooking = `INSERT INTO bookings (` + bookingColumns + `) VALUES (` + placeholders(1, 36) + `)`

func (q *Queries) CreateBooking(ctx context.Context, b domain.Booking) error {
	_, err := q.db.Exec(ctx, createBooking, bookingArgs(b)...)
	return mapError(err)
}

const getBooking = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

func (q *Queries) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	b, err := scanBooking(q.db.QueryRow(ctx, getBooking, id))
	if err != nil {
		return domain.Booking{}, notFound(err, "booking", id)
	}
	return b, nil
}

const lockBooking = getBooking + ` FOR UPDATE`

// LockBooking reads a booking and holds its row until the transaction ends.
// Concurrent accepts of one booking queue here.
func (q *Queries) LockBooking(ctx context.Context, id string) (domain.Booking, error) {
	b, err := scanBooking(q.db.QueryRow(ctx, lockBooking, id))
	if err != nil {
		return domain.Booking{}, notFound(err, "booking", id)
	}
	return b, nil
}

func (q *Queries) ListBookings(ctx context.Context, f port.BookingFilter) ([]domain.Booking, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.CustomerID != "" {
		add("customer_id = $%d", f.CustomerID)
	}
	if f.DriverID != "" {
		add("driver_id = $%d", f.DriverID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", statuses)
	}
	if f.CompletedFrom != nil {
		add("completed_at >= $%d", *f.CompletedFrom)
	}
	if f.CompletedTo != nil {
		add("completed_at <= $%d", *f.CompletedTo)
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + bookingColumns + ` FROM bookings`)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY created_at DESC, id DESC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := q.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := []domain.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, b)
	}
	return out, mapError(rows.Err())
}

const updateBooking = `UPDATE bookings SET
	driver_id = $2, final_fare = $3, admin_commission = $4, driver_earning = $5, cancellation_fee = $6,
	payment_status = $7, status = $8, rating = $9, feedback = $10, cancelled_by = $11, cancel_reason = $12,
	assigned_at = $13, reached_at = $14, started_at = $15, completed_at = $16, cancelled_at = $17,
	finalized_at = $18, updated_at = $19
WHERE id = $1 AND status = $20`

const bookingExists = `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`

// UpdateBooking is a compare-and-swap on status: zero affected rows means
// another writer moved the booking first.
func (q *Queries) UpdateBooking(ctx context.Context, b domain.Booking, expected domain.BookingStatus) error {
	tag, err := q.db.Exec(ctx, updateBooking,
		b.ID, b.DriverID, b.FinalFare, b.AdminCommission, b.DriverEarning, b.CancellationFee,
		string(b.PaymentStatus), string(b.Status), b.Rating, b.Feedback, string(b.CancelledBy), b.CancelReason,
		b.AssignedAt, b.ReachedAt, b.StartedAt, b.CompletedAt, b.CancelledAt,
		b.FinalizedAt, b.UpdatedAt, string(expected),
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := q.db.QueryRow(ctx, bookingExists, b.ID).Scan(&exists); err != nil {
		return mapError(err)
	}
	if !exists {
		return fmt.Errorf("%w: booking %s", domain.ErrNotFound, b.ID)
	}
	return fmt.Errorf("%w: booking %s is no longer %s", domain.ErrConflict, b.ID, expected)
}

const hasActiveBooking = `SELECT EXISTS (
	SELECT 1 FROM bookings
	WHERE driver_id = $1 AND status IN ('driver_assigned', 'driver_reached', 'ongoing')
)`

func (q *Queries) HasActiveBooking(ctx context.Context, driverID string) (bool, error) {
	var active bool
	if err := q.db.QueryRow(ctx, hasActiveBooking, driverID).Scan(&active); err != nil {
		return false, mapError(err)
	}
	return active, nil
}
