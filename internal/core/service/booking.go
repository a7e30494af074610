package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"github.com/vantutran2k1/haulbook/internal/core/port"
	"go.uber.org/zap"
)

type BookingConfig struct {
	// CancellationFee is charged when a customer cancels after a driver was assigned.
	CancellationFee float64
	StoreTimeout    time.Duration
}

type BookingService struct {
	store      port.Store
	gate       *Gate
	pricing    domain.PricingStrategy
	commission domain.CommissionPolicy
	events     port.EventPublisher
	invoices   port.InvoiceRenderer
	cfg        BookingConfig
	logger     *zap.Logger
	now        func() time.Time
}

func NewBookingService(
	store port.Store,
	gate *Gate,
	pricing domain.PricingStrategy,
	commission domain.CommissionPolicy,
	events port.EventPublisher,
	invoices port.InvoiceRenderer,
	cfg BookingConfig,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		store:      store,
		gate:       gate,
		pricing:    pricing,
		commission: commission,
		events:     events,
		invoices:   invoices,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// EstimateFare quotes a fare from the great-circle distance between the points.
func (s *BookingService) EstimateFare(ctx context.Context, pickup, drop domain.Location, goods domain.GoodsType) (domain.FareQuote, error) {
	if err := pickup.Validate("pickup"); err != nil {
		return domain.FareQuote{}, err
	}
	if err := drop.Validate("drop"); err != nil {
		return domain.FareQuote{}, err
	}

	km := domain.DistanceKm(pickup, drop)
	fare, err := s.pricing.CalculatePrice(ctx, domain.PricingInput{DistanceKm: km, Goods: goods})
	if err != nil {
		return domain.FareQuote{}, err
	}
	return domain.FareQuote{DistanceKm: km, EstimatedFare: fare}, nil
}

func (s *BookingService) CreateBooking(ctx context.Context, actor domain.Identity, draft domain.BookingDraft) (domain.Booking, error) {
	if err := s.gate.Authorize(actor, ActionCreateBooking); err != nil {
		return domain.Booking{}, err
	}

	now := s.now()
	draft.CustomerID = actor.UserID
	if err := draft.Validate(now); err != nil {
		return domain.Booking{}, err
	}

	quote, err := s.EstimateFare(ctx, draft.Pickup.Location(), draft.Drop.Location(), draft.GoodsType)
	if err != nil {
		return domain.Booking{}, err
	}

	b := domain.NewBooking(draft, quote, now)
	_, err = read(ctx, s.cfg.StoreTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.CreateBooking(ctx, b)
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.logger.Info("booking created",
		zap.String("booking_id", b.ID),
		zap.String("customer_id", b.CustomerID),
		zap.Float64("distance_km", b.DistanceKm),
		zap.Float64("estimated_fare", b.EstimatedFare))
	publish(ctx, s.events, s.logger, domain.NewEvent(domain.EventBookingCreated, b, now))
	return b, nil
}

func (s *BookingService) GetBooking(ctx context.Context, actor domain.Identity, id string) (domain.Booking, error) {
	if err := s.gate.Authorize(actor, ActionViewBooking); err != nil {
		return domain.Booking{}, err
	}

	b, err := read(ctx, s.cfg.StoreTimeout, func(ctx context.Context) (domain.Booking, error) {
		return s.store.GetBooking(ctx, id)
	})
	if err != nil {
		return domain.Booking{}, err
	}
	if err := s.gate.AuthorizeBooking(actor, ActionViewBooking, b); err != nil {
		return domain.Booking{}, err
	}
	return b, nil
}

// ListBookings returns the caller's bookings: own bookings for customers,
// assigned ones for drivers and everything for admins.
func (s *BookingService) ListBookings(ctx context.Context, actor domain.Identity, statuses []domain.BookingStatus, limit int) ([]domain.Booking, error) {
	if err := s.gate.Authorize(actor, ActionListBookings); err != nil {
		return nil, err
	}

	f := port.BookingFilter{Statuses: statuses, Limit: limit}
	switch actor.Role {
	case domain.RoleCustomer:
		f.CustomerID = actor.UserID
	case domain.RoleDriver:
		f.DriverID = actor.DriverID
	case domain.RoleAdmin:
	}

	return read(ctx, s.cfg.StoreTimeout, func(ctx context.Context) ([]domain.Booking, error) {
		return s.store.ListBookings(ctx, f)
	})
}

func (s *BookingService) CancelBooking(ctx context.Context, actor domain.Identity, id, reason string) (domain.Booking, error) {
	if err := s.gate.Authorize(actor, ActionCancelBooking); err != nil {
		return domain.Booking{}, err
	}

	now := s.now()
	var (
		out        domain.Booking
		prevDriver string
	)
	err := runTx(ctx, s.store, s.cfg.StoreTimeout, func(ctx context.Context, q port.Querier) error {
		b, err := q.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		if err := s.gate.AuthorizeBooking(actor, ActionCancelBooking, b); err != nil {
			return err
		}

		prev := b.Status
		assigned := b.DriverID
		fee := 0.0
		if prev == domain.BookingDriverAssigned && actor.Role == domain.RoleCustomer {
			fee = s.cfg.CancellationFee
		}
		if err := b.Cancel(actor.Role, reason, fee, now); err != nil {
			return err
		}

		if assigned != nil {
			prevDriver = *assigned
			d, err := q.LockDriver(ctx, *assigned)
			if err != nil {
				return err
			}
			if d.Status == domain.DriverStatusBusy {
				d.Status = domain.DriverStatusAvailable
			}
			d.WalletBalance = domain.Round2(d.WalletBalance + b.CancellationFee)
			d.UpdatedAt = now
			if err := q.UpdateDriver(ctx, d); err != nil {
				return err
			}
		}

		if err := q.UpdateBooking(ctx, b, prev); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.logger.Info("booking cancelled",
		zap.String("booking_id", out.ID),
		zap.String("cancelled_by", string(actor.Role)),
		zap.Float64("cancellation_fee", out.CancellationFee))
	// the booking no longer names its driver; the event still goes to them
	ev := domain.NewEvent(domain.EventBookingCancelled, out, now)
	ev.DriverID = prevDriver
	publish(ctx, s.events, s.logger, ev)
	return out, nil
}

// UpdateBookingStatus moves a booking forward to target, which must be
// driver_reached, ongoing or completed.
func (s *BookingService) UpdateBookingStatus(ctx context.Context, actor domain.Identity, id string, target domain.BookingStatus) (domain.Booking, error) {
	action := ActionAdvanceBooking
	if target == domain.BookingCompleted {
		action = ActionCompleteBooking
	}
	if err := s.gate.Authorize(actor, action); err != nil {
		return domain.Booking{}, err
	}

	now := s.now()
	var out domain.Booking
	err := runTx(ctx, s.store, s.cfg.StoreTimeout, func(ctx context.Context, q port.Querier) error {
		b, err := q.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		if err := s.gate.AuthorizeBooking(actor, action, b); err != nil {
			return err
		}
		ev, err := domain.EventFor(target)
		if err != nil {
			return err
		}

		prev := b.Status
		if err := b.Advance(ev, now); err != nil {
			return err
		}

		if ev == domain.EventComplete {
			d, err := q.LockDriver(ctx, *b.DriverID)
			if err != nil {
				return err
			}
			d.TotalTrips++
			if d.Status == domain.DriverStatusBusy {
				d.Status = domain.DriverStatusAvailable
			}
			d.UpdatedAt = now
			if err := q.UpdateDriver(ctx, d); err != nil {
				return err
			}
		}

		if err := q.UpdateBooking(ctx, b, prev); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.logger.Info("booking status updated",
		zap.String("booking_id", out.ID),
		zap.String("status", string(out.Status)),
		zap.String("by", actor.UserID))
	publish(ctx, s.events, s.logger, domain.NewEvent(domain.EventBookingProgress, out, now))
	return out, nil
}

func (s *BookingService) RateBooking(ctx context.Context, actor domain.Identity, id string, rating int, feedback string) (domain.Booking, error) {
	if err := s.gate.Authorize(actor, ActionRateBooking); err != nil {
		return domain.Booking{}, err
	}

	now := s.now()
	var out domain.Booking
	err := runTx(ctx, s.store, s.cfg.StoreTimeout, func(ctx context.Context, q port.Querier) error {
		b, err := q.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		if err := s.gate.AuthorizeBooking(actor, ActionRateBooking, b); err != nil {
			return err
		}

		prev := b.Status
		if err := b.Rate(rating, feedback, now); err != nil {
			return err
		}

		d, err := q.LockDriver(ctx, *b.DriverID)
		if err != nil {
			return err
		}
		d.AddRating(rating)
		d.UpdatedAt = now
		if err := q.UpdateDriver(ctx, d); err != nil {
			return err
		}

		if err := q.UpdateBooking(ctx, b, prev); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}
	return out, nil
}

// FinalizeBooking fixes the final fare of a completed booking and credits the
// driver's share. A nil finalFare finalizes at the estimated fare.
func (s *BookingService) FinalizeBooking(ctx context.Context, actor domain.Identity, id string, finalFare *float64, payment domain.PaymentStatus) (domain.Booking, error) {
	if err := s.gate.Authorize(actor, ActionFinalizeBooking); err != nil {
		return domain.Booking{}, err
	}
	if payment == "" {
		payment = domain.PaymentPaid
	}

	now := s.now()
	var out domain.Booking
	err := runTx(ctx, s.store, s.cfg.StoreTimeout, func(ctx context.Context, q port.Querier) error {
		b, err := q.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		if err := s.gate.AuthorizeBooking(actor, ActionFinalizeBooking, b); err != nil {
			return err
		}

		fare := b.EstimatedFare
		if finalFare != nil {
			fare = *finalFare
		}
		if fare < 0 {
			return fmt.Errorf("%w: final_fare must not be negative", domain.ErrValidation)
		}

		prev := b.Status
		if err := b.Finalize(s.commission.Split(fare), payment, now); err != nil {
			return err
		}

		d, err := q.LockDriver(ctx, *b.DriverID)
		if err != nil {
			return err
		}
		d.TotalEarnings = domain.Round2(d.TotalEarnings + *b.DriverEarning)
		d.WalletBalance = domain.Round2(d.WalletBalance + *b.DriverEarning)
		d.UpdatedAt = now
		if err := q.UpdateDriver(ctx, d); err != nil {
			return err
		}

		if err := q.UpdateBooking(ctx, b, prev); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.logger.Info("booking finalized",
		zap.String("booking_id", out.ID),
		zap.Float64("final_fare", *out.FinalFare),
		zap.Float64("admin_commission", *out.AdminCommission),
		zap.Float64("driver_earning", *out.DriverEarning))
	publish(ctx, s.events, s.logger, domain.NewEvent(domain.EventBookingFinalized, out, now))
	return out, nil
}

func (s *BookingService) UpdatePaymentStatus(ctx context.Context, actor domain.Identity, id string, payment domain.PaymentStatus) (domain.Booking, error) {
	if err := s.gate.Authorize(actor, ActionUpdatePayment); err != nil {
		return domain.Booking{}, err
	}

	now := s.now()
	var out domain.Booking
	err := runTx(ctx, s.store, s.cfg.StoreTimeout, func(ctx context.Context, q port.Querier) error {
		b, err := q.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		if err := s.gate.AuthorizeBooking(actor, ActionUpdatePayment, b); err != nil {
			return err
		}
		if err := b.UpdatePayment(payment, now); err != nil {
			return err
		}
		if err := q.UpdateBooking(ctx, b, b.Status); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

// WriteInvoice renders the invoice of a finalized booking to w.
func (s *BookingService) WriteInvoice(ctx context.Context, actor domain.Identity, id string, w io.Writer) error {
	if err := s.gate.Authorize(actor, ActionInvoice); err != nil {
		return err
	}
	if s.invoices == nil {
		return fmt.Errorf("%w: invoicing is not configured", domain.ErrUnavailable)
	}

	type parts struct {
		booking    domain.Booking
		customer   domain.User
		driverName string
	}
	p, err := read(ctx, s.cfg.StoreTimeout, func(ctx context.Context) (parts, error) {
		b, err := s.store.GetBooking(ctx, id)
		if err != nil {
			return parts{}, err
		}
		if err := s.gate.AuthorizeBooking(actor, ActionInvoice, b); err != nil {
			return parts{}, err
		}
		customer, err := s.store.GetUser(ctx, b.CustomerID)
		if err != nil {
			return parts{}, err
		}
		out := parts{booking: b, customer: customer}
		if b.DriverID != nil {
			d, err := s.store.GetDriver(ctx, *b.DriverID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return parts{}, err
			}
			out.driverName = d.Name
		}
		return out, nil
	})
	if err != nil {
		return err
	}

	inv, err := domain.NewInvoice(p.booking, p.customer, p.driverName, s.now())
	if err != nil {
		return err
	}
	return s.invoices.Render(w, inv)
}

func (s *BookingService) InvoiceContentType() string {
	if s.invoices == nil {
		return "application/octet-stream"
	}
	return s.invoices.ContentType()
}
