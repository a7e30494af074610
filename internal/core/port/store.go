package port

import (
	"context"
	"time"

	"github.com/vantutran2k1/haulbook/internal/core/domain"
)

type BookingFilter struct {
	CustomerID    string
	DriverID      string
	Statuses      []domain.BookingStatus
	CompletedFrom *time.Time
	CompletedTo   *time.Time
	Limit         int
}

type DriverFilter struct {
	IDs      []string
	Statuses []domain.DriverStatus
	Verified *bool
	// SkipLocked hides drivers whose rows are held by an in-flight transaction.
	SkipLocked bool
	Limit      int
}

type VehicleFilter struct {
	DriverIDs []string
}

type Querier interface {
	CreateUser(ctx context.Context, u domain.User) error
	GetUser(ctx context.Context, id string) (domain.User, error)
	GetUserByPhone(ctx context.Context, phone string) (domain.User, error)
	CountUsersByRole(ctx context.Context, role domain.Role) (int, error)
	// UpdateUser writes the mutable profile fields: name and is_active.
	UpdateUser(ctx context.Context, u domain.User) error

	CreateDriver(ctx context.Context, d domain.Driver) error
	GetDriver(ctx context.Context, id string) (domain.Driver, error)
	GetDriverByUserID(ctx context.Context, userID string) (domain.Driver, error)
	LockDriver(ctx context.Context, id string) (domain.Driver, error)
	ListDrivers(ctx context.Context, f DriverFilter) ([]domain.Driver, error)
	UpdateDriver(ctx context.Context, d domain.Driver) error

	CreateVehicle(ctx context.Context, v domain.Vehicle) error
	ListVehicles(ctx context.Context, f VehicleFilter) ([]domain.Vehicle, error)
	UpdateVehicle(ctx context.Context, v domain.Vehicle) error

	CreateBooking(ctx context.Context, b domain.Booking) error
	GetBooking(ctx context.Context, id string) (domain.Booking, error)
	LockBooking(ctx context.Context, id string) (domain.Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]domain.Booking, error)
	// UpdateBooking writes b only if the stored status still equals expected.
	UpdateBooking(ctx context.Context, b domain.Booking, expected domain.BookingStatus) error
	HasActiveBooking(ctx context.Context, driverID string) (bool, error)
}

type Store interface {
	Querier
	ExecTx(ctx context.Context, fn func(Querier) error) error
}
