package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"github.com/vantutran2k1/haulbook/internal/core/port"
	"go.uber.org/zap"
)

type DispatchConfig struct {
	RadiusKm           float64
	LocationStaleAfter time.Duration
	// CandidateLimit caps how many geo hits one search pulls from the index.
	CandidateLimit int
	StoreTimeout   time.Duration
}

type DispatchService struct {
	store  port.Store
	geo    port.LocationIndex
	gate   *Gate
	events port.EventPublisher
	cfg    DispatchConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewDispatchService(store port.Store, geo port.LocationIndex, gate *Gate, events port.EventPublisher, cfg DispatchConfig, logger *zap.Logger) *DispatchService {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 50
	}
	return &DispatchService{
		store:  store,
		geo:    geo,
		gate:   gate,
		events: events,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetEvents replaces the publisher. The websocket hub both consumes this
// service and publishes its events, so it is attached after construction.
func (s *DispatchService) SetEvents(events port.EventPublisher) {
	s.events = events
}

// AvailableDrivers yields match-eligible drivers around pickup, nearest first.
// Nothing is fetched until the sequence is ranged over, and every range
// restarts the search against current state. The index also holds busy and
// unverified drivers, so candidates are pulled in growing pages until the
// index has no more within the radius. Drivers whose rows are locked by an
// in-flight accept are skipped.
func (s *DispatchService) AvailableDrivers(ctx context.Context, pickup domain.Location) iter.Seq2[domain.NearbyDriver, error] {
	return func(yield func(domain.NearbyDriver, error) bool) {
		if err := pickup.Validate("pickup"); err != nil {
			yield(domain.NearbyDriver{}, err)
			return
		}

		seen := make(map[string]bool)
		for count := s.cfg.CandidateLimit; ; count *= 2 {
			hits, err := read(ctx, s.cfg.StoreTimeout, func(ctx context.Context) ([]port.GeoHit, error) {
				return s.geo.FindNearestDrivers(ctx, pickup, s.cfg.RadiusKm, count)
			})
			if err != nil {
				yield(domain.NearbyDriver{}, unavailable("location index", err))
				return
			}

			page := make([]port.GeoHit, 0, len(hits))
			for _, h := range hits {
				if !seen[h.DriverID] {
					seen[h.DriverID] = true
					page = append(page, h)
				}
			}
			if !s.yieldEligible(ctx, page, yield) {
				return
			}
			if len(hits) < count {
				return
			}
		}
	}
}

// yieldEligible loads the drivers behind one page of hits and yields the
// match-eligible ones in hit order. It reports whether ranging should go on.
func (s *DispatchService) yieldEligible(ctx context.Context, hits []port.GeoHit, yield func(domain.NearbyDriver, error) bool) bool {
	if len(hits) == 0 {
		return true
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.DriverID
	}
	drivers, err := read(ctx, s.cfg.StoreTimeout, func(ctx context.Context) ([]domain.Driver, error) {
		return s.store.ListDrivers(ctx, port.DriverFilter{
			IDs:        ids,
			Statuses:   []domain.DriverStatus{domain.DriverStatusAvailable},
			SkipLocked: true,
		})
	})
	if err != nil {
		yield(domain.NearbyDriver{}, err)
		return false
	}

	byID := make(map[string]domain.Driver, len(drivers))
	for _, d := range drivers {
		byID[d.ID] = d
	}

	now := s.now()
	for _, h := range hits {
		d, ok := byID[h.DriverID]
		if !ok || !d.MatchEligible(now, s.cfg.LocationStaleAfter) {
			continue
		}
		if !yield(domain.NearbyDriver{Driver: d, DistanceKm: domain.Round2(h.DistanceKm)}, nil) {
			return false
		}
	}
	return true
}

// FindDrivers materializes AvailableDrivers for an admin assigning by hand.
func (s *DispatchService) FindDrivers(ctx context.Context, actor domain.Identity, pickup domain.Location, limit int) ([]domain.NearbyDriver, error) {
	if err := s.gate.Authorize(actor, ActionFindDrivers); err != nil {
		return nil, err
	}

	out := []domain.NearbyDriver{}
	for nd, err := range s.AvailableDrivers(ctx, pickup) {
		if err != nil {
			return nil, err
		}
		out = append(out, nd)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// AvailableBooking is a pending booking as seen from a driver's position.
type AvailableBooking struct {
	domain.Booking
	DistanceFromDriver *float64 `json:"distance_from_driver,omitempty"`
}

// ListAvailableBookings shows pending bookings to a driver who can take one.
// With a known location only bookings within the match radius are listed,
// nearest pickup first; otherwise all pending bookings by schedule.
func (s *DispatchService) ListAvailableBookings(ctx context.Context, actor domain.Identity) ([]AvailableBooking, error) {
	if err := s.gate.Authorize(actor, ActionListAvailableBookings); err != nil {
		return nil, err
	}

	type snapshot struct {
		driver   domain.Driver
		bookings []domain.Booking
	}
	snap, err := read(ctx, s.cfg.StoreTimeout, func(ctx context.Context) (snapshot, error) {
		d, err := s.store.GetDriver(ctx, actor.DriverID)
		if err != nil {
			return snapshot{}, err
		}
		if !d.CanAcceptOrder() {
			return snapshot{driver: d}, nil
		}
		bs, err := s.store.ListBookings(ctx, port.BookingFilter{
			Statuses: []domain.BookingStatus{domain.BookingPending},
		})
		return snapshot{driver: d, bookings: bs}, err
	})
	if err != nil {
		return nil, err
	}

	out := make([]AvailableBooking, 0, len(snap.bookings))
	loc, located := snap.driver.Location()
	for _, b := range snap.bookings {
		ab := AvailableBooking{Booking: b}
		if located {
			km := domain.DistanceKm(loc, b.Pickup.Location())
			if s.cfg.RadiusKm > 0 && km > s.cfg.RadiusKm {
				continue
			}
			ab.DistanceFromDriver = &km
		}
		out = append(out, ab)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if located {
			return *out[i].DistanceFromDriver < *out[j].DistanceFromDriver
		}
		return out[i].ScheduledDate.Before(out[j].ScheduledDate)
	})
	return out, nil
}

// AcceptBooking lets the calling driver claim a pending booking. Among
// concurrent accepts of one booking exactly one succeeds; the rest fail with
// ErrBookingAlreadyTaken.
func (s *DispatchService) AcceptBooking(ctx context.Context, actor domain.Identity, bookingID string) (domain.Booking, error) {
	if err := s.gate.Authorize(actor, ActionAcceptBooking); err != nil {
		return domain.Booking{}, err
	}
	return s.assign(ctx, actor, ActionAcceptBooking, bookingID, actor.DriverID)
}

// AssignDriver is the admin override of AcceptBooking with the same guards.
func (s *DispatchService) AssignDriver(ctx context.Context, actor domain.Identity, bookingID, driverID string) (domain.Booking, error) {
	if err := s.gate.Authorize(actor, ActionAssignDriver); err != nil {
		return domain.Booking{}, err
	}
	return s.assign(ctx, actor, ActionAssignDriver, bookingID, driverID)
}

// assign locks the booking and then the driver, always in that order, so
// racing accepts serialize on the booking row and cannot deadlock.
func (s *DispatchService) assign(ctx context.Context, actor domain.Identity, action Action, bookingID, driverID string) (domain.Booking, error) {
	now := s.now()
	var out domain.Booking
	err := runTx(ctx, s.store, s.cfg.StoreTimeout, func(ctx context.Context, q port.Querier) error {
		b, err := q.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := s.gate.AuthorizeBooking(actor, action, b); err != nil {
			return err
		}
		switch {
		case b.Status == domain.BookingCancelled:
			return fmt.Errorf("%w: booking %s was cancelled", domain.ErrInvalidTransition, b.ID)
		case b.Status != domain.BookingPending:
			return fmt.Errorf("%w: booking %s is %s", domain.ErrBookingAlreadyTaken, b.ID, b.Status)
		}

		d, err := q.LockDriver(ctx, driverID)
		if err != nil {
			return err
		}
		if !d.CanAcceptOrder() {
			return fmt.Errorf("%w: driver %s is %s", domain.ErrDriverUnavailable, d.ID, d.Status)
		}
		active, err := q.HasActiveBooking(ctx, d.ID)
		if err != nil {
			return err
		}
		if active {
			return fmt.Errorf("%w: driver %s already holds an active booking", domain.ErrDriverUnavailable, d.ID)
		}

		if err := b.Assign(d.ID, now); err != nil {
			return err
		}
		if err := q.UpdateBooking(ctx, b, domain.BookingPending); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return fmt.Errorf("%w: booking %s", domain.ErrBookingAlreadyTaken, b.ID)
			}
			return err
		}

		d.Status = domain.DriverStatusBusy
		d.UpdatedAt = now
		if err := q.UpdateDriver(ctx, d); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		s.logger.Debug("assignment rejected",
			zap.String("booking_id", bookingID),
			zap.String("driver_id", driverID),
			zap.Error(err))
		return domain.Booking{}, err
	}

	s.logger.Info("booking assigned",
		zap.String("booking_id", out.ID),
		zap.String("driver_id", driverID),
		zap.String("by", string(actor.Role)))
	publish(ctx, s.events, s.logger, domain.NewEvent(domain.EventBookingAssigned, out, now))
	return out, nil
}

func (s *DispatchService) GetDriver(ctx context.Context, actor domain.Identity, driverID string) (domain.Driver, error) {
	if err := s.gate.AuthorizeDriver(actor, ActionViewDriver, driverID); err != nil {
		return domain.Driver{}, err
	}
	return read(ctx, s.cfg.StoreTimeout, func(ctx context.Context) (domain.Driver, error) {
		return s.store.GetDriver(ctx, driverID)
	})
}

func (s *DispatchService) ListDrivers(ctx context.Context, actor domain.Identity, statuses []domain.DriverStatus) ([]domain.Driver, error) {
	if err := s.gate.Authorize(actor, ActionFindDrivers); err != nil {
		return nil, err
	}
	return read(ctx, s.cfg.StoreTimeout, func(ctx context.Context) ([]domain.Driver, error) {
		return s.store.ListDrivers(ctx, port.DriverFilter{Statuses: statuses})
	})
}

// UpdateDriverStatus switches a driver between available and offline. Busy is
// owned by assignment and cannot be set directly, nor can a driver holding an
// active booking change status.
func (s *DispatchService) UpdateDriverStatus(ctx context.Context, actor domain.Identity, driverID string, status domain.DriverStatus) (domain.Driver, error) {
	if err := s.gate.AuthorizeDriver(actor, ActionUpdateDriverStatus, driverID); err != nil {
		return domain.Driver{}, err
	}
	if _, err := domain.ParseDriverStatus(string(status)); err != nil {
		return domain.Driver{}, err
	}
	if status == domain.DriverStatusBusy {
		return domain.Driver{}, fmt.Errorf("%w: busy is set by assignment", domain.ErrInvalidTransition)
	}

	now := s.now()
	var out domain.Driver
	err := runTx(ctx, s.store, s.cfg.StoreTimeout, func(ctx context.Context, q port.Querier) error {
		d, err := q.LockDriver(ctx, driverID)
		if err != nil {
			return err
		}
		active, err := q.HasActiveBooking(ctx, d.ID)
		if err != nil {
			return err
		}
		if active {
			return fmt.Errorf("%w: driver %s has an active booking", domain.ErrInvalidTransition, d.ID)
		}
		if status == domain.DriverStatusAvailable && !d.IsVerified {
			return fmt.Errorf("%w: driver %s is not verified", domain.ErrForbidden, d.ID)
		}
		d.Status = status
		d.UpdatedAt = now
		if err := q.UpdateDriver(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return domain.Driver{}, err
	}

	s.syncIndex(ctx, out)
	s.logger.Info("driver status updated", zap.String("driver_id", out.ID), zap.String("status", string(out.Status)))
	return out, nil
}

// UpdateDriverLocation records a driver's position in the store and the
// location index. Retrying after an index failure is safe.
func (s *DispatchService) UpdateDriverLocation(ctx context.Context, actor domain.Identity, driverID string, loc domain.Location) (domain.Driver, error) {
	if err := s.gate.AuthorizeDriver(actor, ActionUpdateDriverLocation, driverID); err != nil {
		return domain.Driver{}, err
	}
	if err := loc.Validate("location"); err != nil {
		return domain.Driver{}, err
	}

	now := s.now()
	var out domain.Driver
	err := runTx(ctx, s.store, s.cfg.StoreTimeout, func(ctx context.Context, q port.Querier) error {
		d, err := q.LockDriver(ctx, driverID)
		if err != nil {
			return err
		}
		d.SetLocation(loc, now)
		if err := q.UpdateDriver(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return domain.Driver{}, err
	}

	_, err = read(ctx, s.cfg.StoreTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.geo.UpsertDriverLocation(ctx, out.ID, loc)
	})
	if err != nil {
		return domain.Driver{}, unavailable("location index", err)
	}
	return out, nil
}

// VerifyDriver approves or rejects a driver. Approval also verifies every
// vehicle the driver has registered; rejection takes an available driver
// offline.
func (s *DispatchService) VerifyDriver(ctx context.Context, actor domain.Identity, driverID string, verified bool) (domain.Driver, error) {
	if err := s.gate.Authorize(actor, ActionVerifyDriver); err != nil {
		return domain.Driver{}, err
	}

	now := s.now()
	var out domain.Driver
	err := runTx(ctx, s.store, s.cfg.StoreTimeout, func(ctx context.Context, q port.Querier) error {
		d, err := q.LockDriver(ctx, driverID)
		if err != nil {
			return err
		}
		d.IsVerified = verified
		if !verified && d.Status == domain.DriverStatusAvailable {
			d.Status = domain.DriverStatusOffline
		}
		d.UpdatedAt = now
		if err := q.UpdateDriver(ctx, d); err != nil {
			return err
		}
		if verified {
			if err := verifyVehicles(ctx, q, d.ID, now); err != nil {
				return err
			}
		}
		out = d
		return nil
	})
	if err != nil {
		return domain.Driver{}, err
	}

	s.syncIndex(ctx, out)
	s.logger.Info("driver verification changed", zap.String("driver_id", out.ID), zap.Bool("verified", verified))
	return out, nil
}

// syncIndex drops offline drivers from the location index and re-adds
// available ones. Failures only delay matching, so they are logged.
func (s *DispatchService) syncIndex(ctx context.Context, d domain.Driver) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	var err error
	switch loc, ok := d.Location(); {
	case d.Status == domain.DriverStatusOffline:
		err = s.geo.RemoveDriver(ctx, d.ID)
	case ok:
		err = s.geo.UpsertDriverLocation(ctx, d.ID, loc)
	}
	if err != nil {
		s.logger.Warn("location index sync failed", zap.String("driver_id", d.ID), zap.Error(err))
	}
}

func unavailable(what string, err error) error {
	if errors.Is(err, domain.ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrUnavailable, what, err)
}
