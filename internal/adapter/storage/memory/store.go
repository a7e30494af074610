// Package memory is an in-process Store used for local runs and tests.
// Transactions are serialized by one mutex and applied to a copy of the
// state, which replaces the live state only on commit.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"github.com/vantutran2k1/haulbook/internal/core/port"
)

type state struct {
	users    map[string]domain.User
	drivers  map[string]domain.Driver
	bookings map[string]domain.Booking
	vehicles map[string]domain.Vehicle
}

func newState() *state {
	return &state{
		users:    map[string]domain.User{},
		drivers:  map[string]domain.Driver{},
		bookings: map[string]domain.Booking{},
		vehicles: map[string]domain.Vehicle{},
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.drivers {
		out.drivers[k] = v
	}
	for k, v := range s.bookings {
		out.bookings[k] = v
	}
	for k, v := range s.vehicles {
		out.vehicles[k] = v
	}
	return out
}

type Store struct {
	mu sync.Mutex
	st *state
}

var _ port.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) ExecTx(ctx context.Context, fn func(port.Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := s.st.clone()
	if err := fn(&querier{st: tx}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = tx
	return nil
}

func (s *Store) do(fn func(q *querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&querier{st: s.st})
}

func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	return s.do(func(q *querier) error { return q.CreateUser(ctx, u) })
}

func (s *Store) GetUser(ctx context.Context, id string) (u domain.User, err error) {
	err = s.do(func(q *querier) error { u, err = q.GetUser(ctx, id); return err })
	return u, err
}

func (s *Store) GetUserByPhone(ctx context.Context, phone string) (u domain.User, err error) {
	err = s.do(func(q *querier) error { u, err = q.GetUserByPhone(ctx, phone); return err })
	return u, err
}

func (s *Store) CountUsersByRole(ctx context.Context, role domain.Role) (n int, err error) {
	err = s.do(func(q *querier) error { n, err = q.CountUsersByRole(ctx, role); return err })
	return n, err
}

func (s *Store) UpdateUser(ctx context.Context, u domain.User) error {
	return s.do(func(q *querier) error { return q.UpdateUser(ctx, u) })
}

func (s *Store) CreateDriver(ctx context.Context, d domain.Driver) error {
	return s.do(func(q *querier) error { return q.CreateDriver(ctx, d) })
}

func (s *Store) GetDriver(ctx context.Context, id string) (d domain.Driver, err error) {
	err = s.do(func(q *querier) error { d, err = q.GetDriver(ctx, id); return err })
	return d, err
}

func (s *Store) GetDriverByUserID(ctx context.Context, userID string) (d domain.Driver, err error) {
	err = s.do(func(q *querier) error { d, err = q.GetDriverByUserID(ctx, userID); return err })
	return d, err
}

func (s *Store) LockDriver(ctx context.Context, id string) (domain.Driver, error) {
	return s.GetDriver(ctx, id)
}

func (s *Store) ListDrivers(ctx context.Context, f port.DriverFilter) (ds []domain.Driver, err error) {
	err = s.do(func(q *querier) error { ds, err = q.ListDrivers(ctx, f); return err })
	return ds, err
}

func (s *Store) UpdateDriver(ctx context.Context, d domain.Driver) error {
	return s.do(func(q *querier) error { return q.UpdateDriver(ctx, d) })
}

func (s *Store) CreateVehicle(ctx context.Context, v domain.Vehicle) error {
	return s.do(func(q *querier) error { return q.CreateVehicle(ctx, v) })
}

func (s *Store) ListVehicles(ctx context.Context, f port.VehicleFilter) (vs []domain.Vehicle, err error) {
	err = s.do(func(q *querier) error { vs, err = q.ListVehicles(ctx, f); return err })
	return vs, err
}

func (s *Store) UpdateVehicle(ctx context.Context, v domain.Vehicle) error {
	return s.do(func(q *querier) error { return q.UpdateVehicle(ctx, v) })
}

func (s *Store) CreateBooking(ctx context.Context, b domain.Booking) error {
	return s.do(func(q *querier) error { return q.CreateBooking(ctx, b) })
}

func (s *Store) GetBooking(ctx context.Context, id string) (b domain.Booking, err error) {
	err = s.do(func(q *querier) error { b, err = q.GetBooking(ctx, id); return err })
	return b, err
}

func (s *Store) LockBooking(ctx context.Context, id string) (domain.Booking, error) {
	return s.GetBooking(ctx, id)
}

func (s *Store) ListBookings(ctx context.Context, f port.BookingFilter) (bs []domain.Booking, err error) {
	err = s.do(func(q *querier) error { bs, err = q.ListBookings(ctx, f); return err })
	return bs, err
}

func (s *Store) UpdateBooking(ctx context.Context, b domain.Booking, expected domain.BookingStatus) error {
	return s.do(func(q *querier) error { return q.UpdateBooking(ctx, b, expected) })
}

func (s *Store) HasActiveBooking(ctx context.Context, driverID string) (ok bool, err error) {
	err = s.do(func(q *querier) error { ok, err = q.HasActiveBooking(ctx, driverID); return err })
	return ok, err
}

// querier works on a state the caller already holds exclusively.
type querier struct {
	st *state
}

func (q *querier) CreateUser(ctx context.Context, u domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := q.st.users[u.ID]; ok {
		return fmt.Errorf("%w: user %s exists", domain.ErrConflict, u.ID)
	}
	for _, existing := range q.st.users {
		if existing.Phone == u.Phone {
			return fmt.Errorf("%w: phone %s is already registered", domain.ErrConflict, u.Phone)
		}
	}
	q.st.users[u.ID] = u
	return nil
}

func (q *querier) GetUser(ctx context.Context, id string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	u, ok := q.st.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("%w: user %s", domain.ErrNotFound, id)
	}
	return u, nil
}

func (q *querier) GetUserByPhone(ctx context.Context, phone string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	for _, u := range q.st.users {
		if u.Phone == phone {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("%w: user with phone %s", domain.ErrNotFound, phone)
}

func (q *querier) CountUsersByRole(ctx context.Context, role domain.Role) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	for _, u := range q.st.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

func (q *querier) UpdateUser(ctx context.Context, u domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cur, ok := q.st.users[u.ID]
	if !ok {
		return fmt.Errorf("%w: user %s", domain.ErrNotFound, u.ID)
	}
	cur.Name = u.Name
	cur.IsActive = u.IsActive
	q.st.users[u.ID] = cur
	return nil
}

// withUser fills the profile fields a driver row borrows from its user.
func (q *querier) withUser(d domain.Driver) domain.Driver {
	if u, ok := q.st.users[d.UserID]; ok {
		d.Name = u.Name
		d.Phone = u.Phone
	}
	return d
}

func (q *querier) CreateDriver(ctx context.Context, d domain.Driver) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := q.st.drivers[d.ID]; ok {
		return fmt.Errorf("%w: driver %s exists", domain.ErrConflict, d.ID)
	}
	for _, existing := range q.st.drivers {
		if existing.UserID == d.UserID {
			return fmt.Errorf("%w: user %s already has a driver profile", domain.ErrConflict, d.UserID)
		}
	}
	q.st.drivers[d.ID] = d
	return nil
}

func (q *querier) GetDriver(ctx context.Context, id string) (domain.Driver, error) {
	if err := ctx.Err(); err != nil {
		return domain.Driver{}, err
	}
	d, ok := q.st.drivers[id]
	if !ok {
		return domain.Driver{}, fmt.Errorf("%w: driver %s", domain.ErrNotFound, id)
	}
	return q.withUser(d), nil
}

func (q *querier) GetDriverByUserID(ctx context.Context, userID string) (domain.Driver, error) {
	if err := ctx.Err(); err != nil {
		return domain.Driver{}, err
	}
	for _, d := range q.st.drivers {
		if d.UserID == userID {
			return q.withUser(d), nil
		}
	}
	return domain.Driver{}, fmt.Errorf("%w: driver for user %s", domain.ErrNotFound, userID)
}

func (q *querier) LockDriver(ctx context.Context, id string) (domain.Driver, error) {
	return q.GetDriver(ctx, id)
}

func (q *querier) ListDrivers(ctx context.Context, f port.DriverFilter) ([]domain.Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []domain.Driver{}
	for _, d := range q.st.drivers {
		if len(f.IDs) > 0 && !slices.Contains(f.IDs, d.ID) {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, d.Status) {
			continue
		}
		if f.Verified != nil && d.IsVerified != *f.Verified {
			continue
		}
		out = append(out, q.withUser(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (q *querier) UpdateDriver(ctx context.Context, d domain.Driver) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := q.st.drivers[d.ID]; !ok {
		return fmt.Errorf("%w: driver %s", domain.ErrNotFound, d.ID)
	}
	d.Name, d.Phone = "", ""
	q.st.drivers[d.ID] = d
	return nil
}

func (q *querier) CreateVehicle(ctx context.Context, v domain.Vehicle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := q.st.drivers[v.DriverID]; !ok {
		return fmt.Errorf("%w: driver %s", domain.ErrNotFound, v.DriverID)
	}
	for _, existing := range q.st.vehicles {
		if existing.ID == v.ID || existing.Number == v.Number {
			return fmt.Errorf("%w: vehicle %s is already registered", domain.ErrConflict, v.Number)
		}
	}
	q.st.vehicles[v.ID] = v
	return nil
}

func (q *querier) ListVehicles(ctx context.Context, f port.VehicleFilter) ([]domain.Vehicle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []domain.Vehicle{}
	for _, v := range q.st.vehicles {
		if len(f.DriverIDs) > 0 && !slices.Contains(f.DriverIDs, v.DriverID) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (q *querier) UpdateVehicle(ctx context.Context, v domain.Vehicle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := q.st.vehicles[v.ID]; !ok {
		return fmt.Errorf("%w: vehicle %s", domain.ErrNotFound, v.ID)
	}
	q.st.vehicles[v.ID] = v
	return nil
}

func (q *querier) CreateBooking(ctx context.Context, b domain.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := q.st.bookings[b.ID]; ok {
		return fmt.Errorf("%w: booking %s exists", domain.ErrConflict, b.ID)
	}
	q.st.bookings[b.ID] = b
	return nil
}

func (q *querier) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return domain.Booking{}, err
	}
	b, ok := q.st.bookings[id]
	if !ok {
		return domain.Booking{}, fmt.Errorf("%w: booking %s", domain.ErrNotFound, id)
	}
	return b, nil
}

func (q *querier) LockBooking(ctx context.Context, id string) (domain.Booking, error) {
	return q.GetBooking(ctx, id)
}

func (q *querier) ListBookings(ctx context.Context, f port.BookingFilter) ([]domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []domain.Booking{}
	for _, b := range q.st.bookings {
		if f.CustomerID != "" && b.CustomerID != f.CustomerID {
			continue
		}
		if f.DriverID != "" && !b.AssignedTo(f.DriverID) {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, b.Status) {
			continue
		}
		if f.CompletedFrom != nil && (b.CompletedAt == nil || b.CompletedAt.Before(*f.CompletedFrom)) {
			continue
		}
		if f.CompletedTo != nil && (b.CompletedAt == nil || b.CompletedAt.After(*f.CompletedTo)) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (q *querier) UpdateBooking(ctx context.Context, b domain.Booking, expected domain.BookingStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cur, ok := q.st.bookings[b.ID]
	if !ok {
		return fmt.Errorf("%w: booking %s", domain.ErrNotFound, b.ID)
	}
	if cur.Status != expected {
		return fmt.Errorf("%w: booking %s is %s, expected %s", domain.ErrConflict, b.ID, cur.Status, expected)
	}
	q.st.bookings[b.ID] = b
	return nil
}

func (q *querier) HasActiveBooking(ctx context.Context, driverID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	for _, b := range q.st.bookings {
		if b.AssignedTo(driverID) && b.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}
