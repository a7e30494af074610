package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vantutran2k1/haulbook/internal/adapter/storage/memory"
	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"github.com/vantutran2k1/haulbook/internal/core/port"
	"github.com/vantutran2k1/haulbook/internal/core/service/pricing"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Mumbai pickup and a drop about 16 km away.
var (
	pickup = domain.Place{Address: "Andheri East", Latitude: 19.1136, Longitude: 72.8697, City: "Mumbai"}
	drop   = domain.Place{Address: "Thane West", Latitude: 19.2183, Longitude: 72.9781, City: "Thane"}
)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Publish(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) last() domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type stubRenderer struct {
	got domain.Invoice
}

func (r *stubRenderer) Render(w io.Writer, inv domain.Invoice) error {
	r.got = inv
	_, err := fmt.Fprintf(w, "invoice %s for %s", inv.Number, inv.Customer.Name)
	return err
}

func (r *stubRenderer) ContentType() string { return "text/plain" }

// countingGeo records how often the index is searched.
type countingGeo struct {
	port.LocationIndex
	mu       sync.Mutex
	searches int
	failWith error
}

func (g *countingGeo) FindNearestDrivers(ctx context.Context, loc domain.Location, radiusKm float64, limit int) ([]port.GeoHit, error) {
	g.mu.Lock()
	g.searches++
	g.mu.Unlock()
	return g.LocationIndex.FindNearestDrivers(ctx, loc, radiusKm, limit)
}

func (g *countingGeo) UpsertDriverLocation(ctx context.Context, driverID string, loc domain.Location) error {
	if g.failWith != nil {
		return g.failWith
	}
	return g.LocationIndex.UpsertDriverLocation(ctx, driverID, loc)
}

func (g *countingGeo) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.searches
}

type fixture struct {
	store    *memory.Store
	geo      *countingGeo
	events   *recorder
	invoices *stubRenderer
	bookings *BookingService
	dispatch *DispatchService
	reports  *ReportService
	admin    domain.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	geo := &countingGeo{LocationIndex: memory.NewGeoIndex()}
	events := &recorder{}
	invoices := &stubRenderer{}
	gate := NewGate()
	logger := zap.NewNop()
	clock := func() time.Time { return testNow }

	bookings := NewBookingService(store, gate,
		pricing.NewStandardStrategy(150, 15),
		pricing.NewPercentCommission(10, 100, 300),
		events, invoices,
		BookingConfig{CancellationFee: 50, StoreTimeout: time.Second},
		logger)
	bookings.now = clock

	dispatch := NewDispatchService(store, geo, gate, events, DispatchConfig{
		RadiusKm:     50,
		StoreTimeout: time.Second,
	}, logger)
	dispatch.now = clock

	reports := NewReportService(store, gate, time.Second, logger)
	reports.now = clock

	f := &fixture{
		store:    store,
		geo:      geo,
		events:   events,
		invoices: invoices,
		bookings: bookings,
		dispatch: dispatch,
		reports:  reports,
	}
	f.admin = f.user(t, domain.RoleAdmin, "Admin")
	return f
}

func (f *fixture) user(t *testing.T, role domain.Role, name string) domain.Identity {
	t.Helper()
	u := domain.User{
		ID:        uuid.NewString(),
		Phone:     "+91" + uuid.NewString()[:10],
		Name:      name,
		Role:      role,
		IsActive:  true,
		CreatedAt: testNow,
	}
	require.NoError(t, f.store.CreateUser(context.Background(), u))
	return domain.Identity{UserID: u.ID, Role: role}
}

func (f *fixture) customer(t *testing.T) domain.Identity {
	return f.user(t, domain.RoleCustomer, "Asha")
}

// driver registers a verified, available driver positioned at loc.
func (f *fixture) driver(t *testing.T, name string, loc domain.Location) domain.Identity {
	t.Helper()
	id := f.user(t, domain.RoleDriver, name)
	d := domain.Driver{
		ID:         uuid.NewString(),
		UserID:     id.UserID,
		Status:     domain.DriverStatusAvailable,
		IsVerified: true,
		CreatedAt:  testNow,
		UpdatedAt:  testNow,
	}
	d.SetLocation(loc, testNow)
	require.NoError(t, f.store.CreateDriver(context.Background(), d))
	require.NoError(t, f.geo.UpsertDriverLocation(context.Background(), d.ID, loc))
	id.DriverID = d.ID
	return id
}

func (f *fixture) getDriver(t *testing.T, id domain.Identity) domain.Driver {
	t.Helper()
	d, err := f.store.GetDriver(context.Background(), id.DriverID)
	require.NoError(t, err)
	return d
}

func (f *fixture) getBooking(t *testing.T, id string) domain.Booking {
	t.Helper()
	b, err := f.store.GetBooking(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (f *fixture) draft() domain.BookingDraft {
	return domain.BookingDraft{
		Pickup:        pickup,
		Drop:          drop,
		GoodsType:     domain.GoodsFurniture,
		ScheduledDate: testNow.Add(24 * time.Hour),
	}
}

func (f *fixture) book(t *testing.T, customer domain.Identity) domain.Booking {
	t.Helper()
	b, err := f.bookings.CreateBooking(context.Background(), customer, f.draft())
	require.NoError(t, err)
	return b
}

// advance drives an assigned booking through to target.
func (f *fixture) advance(t *testing.T, driver domain.Identity, id string, targets ...domain.BookingStatus) domain.Booking {
	t.Helper()
	var b domain.Booking
	for _, target := range targets {
		var err error
		b, err = f.bookings.UpdateBookingStatus(context.Background(), driver, id, target)
		require.NoError(t, err)
	}
	return b
}

// completed returns a booking accepted by driver and driven to completion.
func (f *fixture) completed(t *testing.T, customer, driver domain.Identity) domain.Booking {
	t.Helper()
	b := f.book(t, customer)
	_, err := f.dispatch.AcceptBooking(context.Background(), driver, b.ID)
	require.NoError(t, err)
	return f.advance(t, driver, b.ID, domain.BookingDriverReached, domain.BookingOngoing, domain.BookingCompleted)
}

// stalledStore never finishes a transaction before the deadline.
type stalledStore struct {
	port.Store
}

func (s stalledStore) ExecTx(ctx context.Context, _ func(port.Querier) error) error {
	<-ctx.Done()
	return ctx.Err()
}

var errIndexDown = errors.New("connection refused")
