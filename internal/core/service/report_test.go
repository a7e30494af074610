package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vantutran2k1/haulbook/internal/core/domain"
)

func TestReportService_Dashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.customer(t)
	ravi := f.driver(t, "Ravi", near)
	kiran := f.driver(t, "Kiran", near)

	done := f.completed(t, customer, ravi)
	fare := 1000.0
	_, err := f.bookings.FinalizeBooking(ctx, f.admin, done.ID, &fare, domain.PaymentPaid)
	require.NoError(t, err)

	active := f.book(t, customer)
	_, err = f.dispatch.AcceptBooking(ctx, kiran, active.ID)
	require.NoError(t, err)

	f.book(t, customer)
	cancelled := f.book(t, customer)
	_, err = f.bookings.CancelBooking(ctx, customer, cancelled.ID, "")
	require.NoError(t, err)

	_, err = f.reports.Dashboard(ctx, customer)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	d, err := f.reports.Dashboard(ctx, f.admin)
	require.NoError(t, err)

	assert.Equal(t, 1, d.Overview.TotalCustomers)
	assert.Equal(t, 2, d.Overview.TotalDrivers)
	assert.Equal(t, 2, d.Overview.VerifiedDrivers)
	assert.Equal(t, 4, d.Overview.TotalBookings)

	assert.Equal(t, 1, d.Bookings.Pending)
	assert.Equal(t, 1, d.Bookings.Ongoing)
	assert.Equal(t, 1, d.Bookings.Completed)
	assert.Equal(t, 1, d.Bookings.Cancelled)

	assert.Equal(t, 1, d.Drivers.Available)
	assert.Equal(t, 1, d.Drivers.Busy)

	assert.Equal(t, 1000.0, d.Revenue.Total)
	assert.Equal(t, 100.0, d.Revenue.Commission)
	assert.Equal(t, 900.0, d.Revenue.DriverEarnings)
	assert.Equal(t, 4, d.RecentActivity.Bookings)

	require.Len(t, d.TopDrivers, 2)
	assert.Equal(t, "Ravi", d.TopDrivers[0].Name)
	assert.Equal(t, 1, d.TopDrivers[0].TotalTrips)
	assert.Equal(t, 900.0, d.TopDrivers[0].Earnings)
}

func TestReportService_RevenueReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.customer(t)
	driver := f.driver(t, "Ravi", near)

	day1 := f.completed(t, customer, driver)
	fare := 2000.0
	_, err := f.bookings.FinalizeBooking(ctx, f.admin, day1.ID, &fare, domain.PaymentPaid)
	require.NoError(t, err)

	// the next trip completes a day later and is never finalized
	nextDay := testNow.Add(24 * time.Hour)
	f.bookings.now = func() time.Time { return nextDay }
	f.dispatch.now = func() time.Time { return nextDay }
	f.completed(t, customer, driver)

	report, err := f.reports.RevenueReport(ctx, f.admin, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Summary.TotalBookings)
	assert.Equal(t, 2394.2, report.Summary.TotalRevenue)
	assert.Equal(t, 200.0, report.Summary.TotalCommission)
	assert.Equal(t, 2194.2, report.Summary.TotalDriverEarnings)
	assert.Equal(t, 1197.1, report.Summary.AverageFare)

	require.Len(t, report.DailyBreakdown, 2)
	assert.Equal(t, 2000.0, report.DailyBreakdown["2026-03-01"].Revenue)
	assert.Equal(t, 1, report.DailyBreakdown["2026-03-02"].Bookings)

	from := nextDay.Truncate(24 * time.Hour)
	report, err = f.reports.RevenueReport(ctx, f.admin, &from, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.TotalBookings)
	assert.Equal(t, 394.2, report.Summary.TotalRevenue)

	to := testNow.Add(time.Hour)
	report, err = f.reports.RevenueReport(ctx, f.admin, nil, &to)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.TotalBookings)

	_, err = f.reports.RevenueReport(ctx, driver, nil, nil)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
