package service

import (
	"context"
	"sort"
	"time"

	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"github.com/vantutran2k1/haulbook/internal/core/port"
	"go.uber.org/zap"
)

type ReportService struct {
	store   port.Store
	gate    *Gate
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

func NewReportService(store port.Store, gate *Gate, storeTimeout time.Duration, logger *zap.Logger) *ReportService {
	return &ReportService{store: store, gate: gate, timeout: storeTimeout, logger: logger, now: time.Now}
}

type Dashboard struct {
	Overview struct {
		TotalCustomers  int `json:"total_customers"`
		TotalDrivers    int `json:"total_drivers"`
		VerifiedDrivers int `json:"verified_drivers"`
		TotalBookings   int `json:"total_bookings"`
	} `json:"overview"`
	Bookings struct {
		Pending   int `json:"pending"`
		Ongoing   int `json:"ongoing"`
		Completed int `json:"completed"`
		Cancelled int `json:"cancelled"`
	} `json:"bookings"`
	Drivers struct {
		Available int `json:"available"`
		Busy      int `json:"busy"`
		Offline   int `json:"offline"`
	} `json:"drivers"`
	Revenue        Revenue       `json:"revenue"`
	RecentActivity RecentSummary `json:"recent_activity"`
	TopDrivers     []TopDriver   `json:"top_drivers"`
}

type Revenue struct {
	Total          float64 `json:"total"`
	Commission     float64 `json:"commission"`
	DriverEarnings float64 `json:"driver_earnings"`
}

type RecentSummary struct {
	Bookings int     `json:"bookings_last_7_days"`
	Revenue  float64 `json:"revenue_last_7_days"`
}

type TopDriver struct {
	Name       string  `json:"name"`
	Phone      string  `json:"phone"`
	TotalTrips int     `json:"total_trips"`
	Rating     float64 `json:"rating"`
	Earnings   float64 `json:"earnings"`
}

// billedFare is the final fare once set, the estimate before that.
func billedFare(b domain.Booking) float64 {
	if b.FinalFare != nil {
		return *b.FinalFare
	}
	return b.EstimatedFare
}

func commissionOf(b domain.Booking) float64 {
	if b.AdminCommission != nil {
		return *b.AdminCommission
	}
	return 0
}

func (s *ReportService) Dashboard(ctx context.Context, actor domain.Identity) (Dashboard, error) {
	if err := s.gate.Authorize(actor, ActionViewReports); err != nil {
		return Dashboard{}, err
	}

	type snapshot struct {
		customers int
		drivers   []domain.Driver
		bookings  []domain.Booking
	}
	snap, err := read(ctx, s.timeout, func(ctx context.Context) (snapshot, error) {
		customers, err := s.store.CountUsersByRole(ctx, domain.RoleCustomer)
		if err != nil {
			return snapshot{}, err
		}
		drivers, err := s.store.ListDrivers(ctx, port.DriverFilter{})
		if err != nil {
			return snapshot{}, err
		}
		bookings, err := s.store.ListBookings(ctx, port.BookingFilter{})
		if err != nil {
			return snapshot{}, err
		}
		return snapshot{customers: customers, drivers: drivers, bookings: bookings}, nil
	})
	if err != nil {
		return Dashboard{}, err
	}

	var out Dashboard
	out.Overview.TotalCustomers = snap.customers
	out.Overview.TotalDrivers = len(snap.drivers)
	out.Overview.TotalBookings = len(snap.bookings)

	for _, d := range snap.drivers {
		if d.IsVerified {
			out.Overview.VerifiedDrivers++
		}
		switch d.Status {
		case domain.DriverStatusAvailable:
			out.Drivers.Available++
		case domain.DriverStatusBusy:
			out.Drivers.Busy++
		case domain.DriverStatusOffline:
			out.Drivers.Offline++
		}
	}

	weekAgo := s.now().AddDate(0, 0, -7)
	for _, b := range snap.bookings {
		switch {
		case b.Status == domain.BookingPending:
			out.Bookings.Pending++
		case b.Status.Active():
			out.Bookings.Ongoing++
		case b.Status == domain.BookingCompleted:
			out.Bookings.Completed++
			out.Revenue.Total += billedFare(b)
			out.Revenue.Commission += commissionOf(b)
		case b.Status == domain.BookingCancelled:
			out.Bookings.Cancelled++
		}
		if !b.CreatedAt.Before(weekAgo) {
			out.RecentActivity.Bookings++
			if b.Status == domain.BookingCompleted {
				out.RecentActivity.Revenue += billedFare(b)
			}
		}
	}
	out.Revenue.Total = domain.Round2(out.Revenue.Total)
	out.Revenue.Commission = domain.Round2(out.Revenue.Commission)
	out.Revenue.DriverEarnings = domain.Round2(out.Revenue.Total - out.Revenue.Commission)
	out.RecentActivity.Revenue = domain.Round2(out.RecentActivity.Revenue)

	top := append([]domain.Driver(nil), snap.drivers...)
	sort.SliceStable(top, func(i, j int) bool { return top[i].TotalTrips > top[j].TotalTrips })
	if len(top) > 5 {
		top = top[:5]
	}
	out.TopDrivers = make([]TopDriver, 0, len(top))
	for _, d := range top {
		out.TopDrivers = append(out.TopDrivers, TopDriver{
			Name:       d.Name,
			Phone:      d.Phone,
			TotalTrips: d.TotalTrips,
			Rating:     d.Rating,
			Earnings:   d.TotalEarnings,
		})
	}
	return out, nil
}

type RevenueReport struct {
	Summary struct {
		TotalBookings       int     `json:"total_bookings"`
		TotalRevenue        float64 `json:"total_revenue"`
		TotalCommission     float64 `json:"total_commission"`
		TotalDriverEarnings float64 `json:"total_driver_earnings"`
		AverageFare         float64 `json:"average_fare"`
	} `json:"summary"`
	DailyBreakdown map[string]*DailyRevenue `json:"daily_breakdown"`
}

type DailyRevenue struct {
	Bookings   int     `json:"bookings"`
	Revenue    float64 `json:"revenue"`
	Commission float64 `json:"commission"`
}

// RevenueReport aggregates completed bookings by completion day. Either bound
// may be nil.
func (s *ReportService) RevenueReport(ctx context.Context, actor domain.Identity, from, to *time.Time) (RevenueReport, error) {
	if err := s.gate.Authorize(actor, ActionViewReports); err != nil {
		return RevenueReport{}, err
	}

	bookings, err := read(ctx, s.timeout, func(ctx context.Context) ([]domain.Booking, error) {
		return s.store.ListBookings(ctx, port.BookingFilter{
			Statuses:      []domain.BookingStatus{domain.BookingCompleted},
			CompletedFrom: from,
			CompletedTo:   to,
		})
	})
	if err != nil {
		return RevenueReport{}, err
	}

	out := RevenueReport{DailyBreakdown: map[string]*DailyRevenue{}}
	for _, b := range bookings {
		fare, commission := billedFare(b), commissionOf(b)
		out.Summary.TotalBookings++
		out.Summary.TotalRevenue += fare
		out.Summary.TotalCommission += commission

		if b.CompletedAt == nil {
			continue
		}
		key := b.CompletedAt.UTC().Format(time.DateOnly)
		day, ok := out.DailyBreakdown[key]
		if !ok {
			day = &DailyRevenue{}
			out.DailyBreakdown[key] = day
		}
		day.Bookings++
		day.Revenue = domain.Round2(day.Revenue + fare)
		day.Commission = domain.Round2(day.Commission + commission)
	}

	sum := &out.Summary
	sum.TotalRevenue = domain.Round2(sum.TotalRevenue)
	sum.TotalCommission = domain.Round2(sum.TotalCommission)
	sum.TotalDriverEarnings = domain.Round2(sum.TotalRevenue - sum.TotalCommission)
	if sum.TotalBookings > 0 {
		sum.AverageFare = domain.Round2(sum.TotalRevenue / float64(sum.TotalBookings))
	}
	return out, nil
}
