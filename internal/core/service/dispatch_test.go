package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vantutran2k1/haulbook/internal/core/domain"
)

var (
	near    = domain.Location{Latitude: 19.12, Longitude: 72.87} // ~0.7 km from pickup
	mid     = domain.Location{Latitude: 19.30, Longitude: 72.87} // ~20.7 km
	faraway = domain.Location{Latitude: 19.60, Longitude: 72.87} // ~54 km, outside the radius
)

func TestDispatchService_AcceptBooking_ExactlyOneWinner(t *testing.T) {
	f := newFixture(t)
	customer := f.customer(t)
	b := f.book(t, customer)

	const n = 12
	drivers := make([]domain.Identity, n)
	for i := range drivers {
		drivers[i] = f.driver(t, "driver", near)
	}

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make([]error, n)
	)
	for i, d := range drivers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, results[i] = f.dispatch.AcceptBooking(context.Background(), d, b.ID)
		}()
	}
	close(start)
	wg.Wait()

	winner := -1
	for i, err := range results {
		if err == nil {
			require.Equal(t, -1, winner, "more than one driver won")
			winner = i
			continue
		}
		assert.ErrorIs(t, err, domain.ErrBookingAlreadyTaken)
	}
	require.NotEqual(t, -1, winner, "no driver won")

	stored := f.getBooking(t, b.ID)
	assert.Equal(t, domain.BookingDriverAssigned, stored.Status)
	assert.True(t, stored.AssignedTo(drivers[winner].DriverID))

	for i, d := range drivers {
		want := domain.DriverStatusAvailable
		if i == winner {
			want = domain.DriverStatusBusy
		}
		assert.Equal(t, want, f.getDriver(t, d).Status)
	}

	assigned := 0
	for _, typ := range f.events.types() {
		if typ == domain.EventBookingAssigned {
			assigned++
		}
	}
	assert.Equal(t, 1, assigned)
}

func TestDispatchService_AcceptBooking_Guards(t *testing.T) {
	ctx := context.Background()

	t.Run("Busy Driver", func(t *testing.T) {
		f := newFixture(t)
		customer := f.customer(t)
		driver := f.driver(t, "Ravi", near)
		first, second := f.book(t, customer), f.book(t, customer)

		_, err := f.dispatch.AcceptBooking(ctx, driver, first.ID)
		require.NoError(t, err)
		_, err = f.dispatch.AcceptBooking(ctx, driver, second.ID)
		assert.ErrorIs(t, err, domain.ErrDriverUnavailable)
		assert.Equal(t, domain.BookingPending, f.getBooking(t, second.ID).Status)
	})

	t.Run("Offline Driver", func(t *testing.T) {
		f := newFixture(t)
		driver := f.driver(t, "Ravi", near)
		_, err := f.dispatch.UpdateDriverStatus(ctx, driver, driver.DriverID, domain.DriverStatusOffline)
		require.NoError(t, err)

		b := f.book(t, f.customer(t))
		_, err = f.dispatch.AcceptBooking(ctx, driver, b.ID)
		assert.ErrorIs(t, err, domain.ErrDriverUnavailable)
	})

	t.Run("Cancelled Booking", func(t *testing.T) {
		f := newFixture(t)
		customer := f.customer(t)
		b := f.book(t, customer)
		_, err := f.bookings.CancelBooking(ctx, customer, b.ID, "")
		require.NoError(t, err)

		_, err = f.dispatch.AcceptBooking(ctx, f.driver(t, "Ravi", near), b.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("Completed Booking", func(t *testing.T) {
		f := newFixture(t)
		b := f.completed(t, f.customer(t), f.driver(t, "Ravi", near))

		_, err := f.dispatch.AcceptBooking(ctx, f.driver(t, "Kiran", near), b.ID)
		assert.ErrorIs(t, err, domain.ErrBookingAlreadyTaken)
	})

	t.Run("Customer Cannot Accept", func(t *testing.T) {
		f := newFixture(t)
		customer := f.customer(t)
		b := f.book(t, customer)

		_, err := f.dispatch.AcceptBooking(ctx, customer, b.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("Unknown Booking", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.dispatch.AcceptBooking(ctx, f.driver(t, "Ravi", near), "SRTA-nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestDispatchService_AssignDriver(t *testing.T) {
	f := newFixture(t)
	customer := f.customer(t)
	driver := f.driver(t, "Ravi", near)
	b := f.book(t, customer)
	ctx := context.Background()

	_, err := f.dispatch.AssignDriver(ctx, customer, b.ID, driver.DriverID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	out, err := f.dispatch.AssignDriver(ctx, f.admin, b.ID, driver.DriverID)
	require.NoError(t, err)
	assert.True(t, out.AssignedTo(driver.DriverID))

	_, err = f.dispatch.AssignDriver(ctx, f.admin, b.ID, f.driver(t, "Kiran", near).DriverID)
	assert.ErrorIs(t, err, domain.ErrBookingAlreadyTaken)

	_, err = f.dispatch.AssignDriver(ctx, f.admin, f.book(t, customer).ID, "no-such-driver")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDispatchService_AvailableDrivers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	closest := f.driver(t, "Closest", near)
	second := f.driver(t, "Second", mid)
	f.driver(t, "Outside", faraway)

	unverified := f.driver(t, "Unverified", near)
	_, err := f.dispatch.VerifyDriver(ctx, f.admin, unverified.DriverID, false)
	require.NoError(t, err)

	offline := f.driver(t, "Offline", near)
	_, err = f.dispatch.UpdateDriverStatus(ctx, offline, offline.DriverID, domain.DriverStatusOffline)
	require.NoError(t, err)

	var got []domain.NearbyDriver
	for nd, err := range f.dispatch.AvailableDrivers(ctx, pickup.Location()) {
		require.NoError(t, err)
		got = append(got, nd)
	}

	require.Len(t, got, 2)
	assert.Equal(t, closest.DriverID, got[0].Driver.ID)
	assert.Equal(t, second.DriverID, got[1].Driver.ID)
	assert.Less(t, got[0].DistanceKm, got[1].DistanceKm)
	assert.Equal(t, "Closest", got[0].Driver.Name)
}

func TestDispatchService_AvailableDrivers_IsLazy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.driver(t, "A", near)
	f.driver(t, "B", mid)

	seq := f.dispatch.AvailableDrivers(ctx, pickup.Location())
	assert.Zero(t, f.geo.count(), "building the sequence must not search")

	for nd, err := range seq {
		require.NoError(t, err)
		assert.Equal(t, first.DriverID, nd.Driver.ID)
		break
	}
	assert.Equal(t, 1, f.geo.count())

	// each range sees current state
	_, err := f.dispatch.AcceptBooking(ctx, first, f.book(t, f.customer(t)).ID)
	require.NoError(t, err)
	for nd, err := range seq {
		require.NoError(t, err)
		assert.NotEqual(t, first.DriverID, nd.Driver.ID)
	}
	assert.Equal(t, 2, f.geo.count())
}

func TestDispatchService_AvailableDrivers_PagesPastBusyDrivers(t *testing.T) {
	f := newFixture(t)
	customer := f.customer(t)

	// More busy drivers than one index page holds, all closer than the free one.
	for range f.dispatch.cfg.CandidateLimit + 5 {
		d := f.driver(t, "busy", near)
		_, err := f.dispatch.AcceptBooking(context.Background(), d, f.book(t, customer).ID)
		require.NoError(t, err)
	}
	free := f.driver(t, "free", mid)

	var got []string
	for nd, err := range f.dispatch.AvailableDrivers(context.Background(), pickup.Location()) {
		require.NoError(t, err)
		got = append(got, nd.Driver.ID)
	}

	assert.Equal(t, []string{free.DriverID}, got)
	assert.Equal(t, 2, f.geo.count())

	found, err := f.dispatch.FindDrivers(context.Background(), f.admin, pickup.Location(), 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, free.DriverID, found[0].Driver.ID)
}

func TestDispatchService_AvailableDrivers_StaleLocation(t *testing.T) {
	f := newFixture(t)
	f.dispatch.cfg.LocationStaleAfter = 10 * time.Minute
	f.driver(t, "Fresh", near)

	later := testNow.Add(time.Hour)
	f.dispatch.now = func() time.Time { return later }

	count := 0
	for _, err := range f.dispatch.AvailableDrivers(context.Background(), pickup.Location()) {
		require.NoError(t, err)
		count++
	}
	assert.Zero(t, count)
}

func TestDispatchService_AvailableDrivers_Errors(t *testing.T) {
	f := newFixture(t)

	for _, err := range f.dispatch.AvailableDrivers(context.Background(), domain.Location{Latitude: -100}) {
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
}

func TestDispatchService_FindDrivers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	driver := f.driver(t, "A", near)
	f.driver(t, "B", mid)

	_, err := f.dispatch.FindDrivers(ctx, driver, pickup.Location(), 0)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	all, err := f.dispatch.FindDrivers(ctx, f.admin, pickup.Location(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := f.dispatch.FindDrivers(ctx, f.admin, pickup.Location(), 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, driver.DriverID, one[0].Driver.ID)
}

func TestDispatchService_ListAvailableBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.customer(t)
	driver := f.driver(t, "Ravi", near)

	nearBooking := f.book(t, customer)

	farDraft := f.draft()
	farDraft.Pickup = domain.Place{Address: "Virar", Latitude: mid.Latitude, Longitude: mid.Longitude}
	farBooking, err := f.bookings.CreateBooking(ctx, customer, farDraft)
	require.NoError(t, err)

	outsideDraft := f.draft()
	outsideDraft.Pickup = domain.Place{Address: "Palghar", Latitude: faraway.Latitude + 0.5, Longitude: faraway.Longitude}
	_, err = f.bookings.CreateBooking(ctx, customer, outsideDraft)
	require.NoError(t, err)

	list, err := f.dispatch.ListAvailableBookings(ctx, driver)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, nearBooking.ID, list[0].ID)
	assert.Equal(t, farBooking.ID, list[1].ID)
	require.NotNil(t, list[0].DistanceFromDriver)
	assert.Less(t, *list[0].DistanceFromDriver, *list[1].DistanceFromDriver)

	_, err = f.dispatch.ListAvailableBookings(ctx, customer)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.dispatch.AcceptBooking(ctx, driver, nearBooking.ID)
	require.NoError(t, err)
	busyList, err := f.dispatch.ListAvailableBookings(ctx, driver)
	require.NoError(t, err)
	assert.Empty(t, busyList)
}

func TestDispatchService_UpdateDriverStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	driver := f.driver(t, "Ravi", near)
	other := f.driver(t, "Kiran", near)

	_, err := f.dispatch.UpdateDriverStatus(ctx, driver, driver.DriverID, domain.DriverStatusBusy)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.dispatch.UpdateDriverStatus(ctx, driver, other.DriverID, domain.DriverStatusOffline)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.dispatch.UpdateDriverStatus(ctx, driver, driver.DriverID, "asleep")
	assert.ErrorIs(t, err, domain.ErrValidation)

	d, err := f.dispatch.UpdateDriverStatus(ctx, driver, driver.DriverID, domain.DriverStatusOffline)
	require.NoError(t, err)
	assert.Equal(t, domain.DriverStatusOffline, d.Status)

	hits, err := f.geo.FindNearestDrivers(ctx, pickup.Location(), 50, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, other.DriverID, hits[0].DriverID)

	d, err = f.dispatch.UpdateDriverStatus(ctx, f.admin, driver.DriverID, domain.DriverStatusAvailable)
	require.NoError(t, err)
	assert.Equal(t, domain.DriverStatusAvailable, d.Status)

	hits, err = f.geo.FindNearestDrivers(ctx, pickup.Location(), 50, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	_, err = f.dispatch.AcceptBooking(ctx, driver, f.book(t, f.customer(t)).ID)
	require.NoError(t, err)
	_, err = f.dispatch.UpdateDriverStatus(ctx, driver, driver.DriverID, domain.DriverStatusOffline)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestDispatchService_VerifyDriver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	driver := f.driver(t, "Ravi", near)

	_, err := f.dispatch.VerifyDriver(ctx, driver, driver.DriverID, true)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	d, err := f.dispatch.VerifyDriver(ctx, f.admin, driver.DriverID, false)
	require.NoError(t, err)
	assert.False(t, d.IsVerified)
	assert.Equal(t, domain.DriverStatusOffline, d.Status)

	_, err = f.dispatch.UpdateDriverStatus(ctx, driver, driver.DriverID, domain.DriverStatusAvailable)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.dispatch.VerifyDriver(ctx, f.admin, driver.DriverID, true)
	require.NoError(t, err)
	d, err = f.dispatch.UpdateDriverStatus(ctx, driver, driver.DriverID, domain.DriverStatusAvailable)
	require.NoError(t, err)
	assert.Equal(t, domain.DriverStatusAvailable, d.Status)
}

func TestDispatchService_UpdateDriverLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	driver := f.driver(t, "Ravi", faraway)

	_, err := f.dispatch.UpdateDriverLocation(ctx, driver, driver.DriverID, domain.Location{Latitude: 120})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.dispatch.UpdateDriverLocation(ctx, f.admin, driver.DriverID, near)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	d, err := f.dispatch.UpdateDriverLocation(ctx, driver, driver.DriverID, near)
	require.NoError(t, err)
	loc, ok := d.Location()
	require.True(t, ok)
	assert.Equal(t, near, loc)

	got, err := f.dispatch.FindDrivers(ctx, f.admin, pickup.Location(), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, driver.DriverID, got[0].Driver.ID)
}

func TestDispatchService_UpdateDriverLocation_IndexDown(t *testing.T) {
	f := newFixture(t)
	driver := f.driver(t, "Ravi", near)
	f.geo.failWith = errIndexDown

	_, err := f.dispatch.UpdateDriverLocation(context.Background(), driver, driver.DriverID, mid)
	require.ErrorIs(t, err, domain.ErrUnavailable)
	assert.True(t, domain.IsRetryable(err))
}

func TestDispatchService_GetAndListDrivers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	driver := f.driver(t, "Ravi", near)
	other := f.driver(t, "Kiran", near)
	_, err := f.dispatch.UpdateDriverStatus(ctx, other, other.DriverID, domain.DriverStatusOffline)
	require.NoError(t, err)

	d, err := f.dispatch.GetDriver(ctx, driver, driver.DriverID)
	require.NoError(t, err)
	assert.Equal(t, "Ravi", d.Name)

	_, err = f.dispatch.GetDriver(ctx, driver, other.DriverID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.dispatch.ListDrivers(ctx, driver, nil)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	offline, err := f.dispatch.ListDrivers(ctx, f.admin, []domain.DriverStatus{domain.DriverStatusOffline})
	require.NoError(t, err)
	require.Len(t, offline, 1)
	assert.Equal(t, other.DriverID, offline[0].ID)
}
