package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func pendingBooking() Booking {
	draft := BookingDraft{
		CustomerID:    "cust-1",
		Pickup:        Place{Address: "Andheri", Latitude: 19.1136, Longitude: 72.8697},
		Drop:          Place{Address: "Thane", Latitude: 19.2183, Longitude: 72.9781},
		GoodsType:     GoodsCement,
		ScheduledDate: t0.Add(24 * time.Hour),
	}
	return NewBooking(draft, FareQuote{DistanceKm: 16.1, EstimatedFare: 391.5}, t0)
}

func TestNextStatus(t *testing.T) {
	tests := []struct {
		from    BookingStatus
		ev      BookingEvent
		want    BookingStatus
		wantErr bool
	}{
		{BookingPending, EventAssign, BookingDriverAssigned, false},
		{BookingPending, EventCancel, BookingCancelled, false},
		{BookingDriverAssigned, EventMarkReached, BookingDriverReached, false},
		{BookingDriverAssigned, EventCancel, BookingCancelled, false},
		{BookingDriverReached, EventStart, BookingOngoing, false},
		{BookingOngoing, EventComplete, BookingCompleted, false},
		{BookingCompleted, EventFinalize, BookingCompleted, false},

		{BookingPending, EventStart, "", true},
		{BookingDriverAssigned, EventAssign, "", true},
		{BookingDriverReached, EventCancel, "", true},
		{BookingOngoing, EventCancel, "", true},
		{BookingCompleted, EventCancel, "", true},
		{BookingCancelled, EventAssign, "", true},
		{BookingCancelled, EventFinalize, "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev), func(t *testing.T) {
			got, err := NextStatus(tt.from, tt.ev)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextStatus_AllPairs(t *testing.T) {
	allowed := map[[2]string]BookingStatus{
		{"pending", "assign"}:               BookingDriverAssigned,
		{"pending", "cancel"}:               BookingCancelled,
		{"driver_assigned", "mark_reached"}: BookingDriverReached,
		{"driver_assigned", "cancel"}:       BookingCancelled,
		{"driver_reached", "start"}:         BookingOngoing,
		{"ongoing", "complete"}:             BookingCompleted,
		{"completed", "finalize"}:           BookingCompleted,
	}
	statuses := []BookingStatus{
		BookingPending, BookingDriverAssigned, BookingDriverReached,
		BookingOngoing, BookingCompleted, BookingCancelled,
	}
	events := []BookingEvent{
		EventAssign, EventCancel, EventMarkReached, EventStart, EventComplete, EventFinalize,
	}

	checked := 0
	for _, from := range statuses {
		for _, ev := range events {
			got, err := NextStatus(from, ev)
			want, ok := allowed[[2]string{string(from), string(ev)}]
			if ok {
				require.NoError(t, err, "%s/%s", from, ev)
				assert.Equal(t, want, got, "%s/%s", from, ev)
				checked++
				continue
			}
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s/%s", from, ev)
			assert.Empty(t, got)
		}
	}
	assert.Equal(t, len(allowed), checked)
}

func TestEventFor(t *testing.T) {
	ev, err := EventFor(BookingOngoing)
	require.NoError(t, err)
	assert.Equal(t, EventStart, ev)

	_, err = EventFor(BookingDriverAssigned)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = EventFor(BookingCancelled)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestNewBooking(t *testing.T) {
	b := pendingBooking()

	assert.True(t, strings.HasPrefix(b.ID, "SRTA-20260301-"))
	assert.Len(t, b.ID, len("SRTA-20260301-")+8)
	assert.Equal(t, BookingPending, b.Status)
	assert.Equal(t, PaymentUnpaid, b.PaymentStatus)
	assert.Nil(t, b.DriverID)
	assert.Nil(t, b.FinalFare)
	assert.NoError(t, b.CheckInvariants())
}

func TestBookingDraft_Validate(t *testing.T) {
	base := BookingDraft{
		CustomerID:    "cust-1",
		Pickup:        Place{Address: "A", Latitude: 19, Longitude: 72},
		Drop:          Place{Address: "B", Latitude: 19.1, Longitude: 72.1},
		GoodsType:     GoodsSand,
		ScheduledDate: t0.Add(time.Hour),
	}
	require.NoError(t, base.Validate(t0))

	neg := -1.0
	tests := []struct {
		name   string
		mutate func(d *BookingDraft)
	}{
		{"missing customer", func(d *BookingDraft) { d.CustomerID = " " }},
		{"missing pickup address", func(d *BookingDraft) { d.Pickup.Address = "" }},
		{"latitude out of range", func(d *BookingDraft) { d.Drop.Latitude = 91 }},
		{"longitude out of range", func(d *BookingDraft) { d.Pickup.Longitude = -181 }},
		{"unknown goods", func(d *BookingDraft) { d.GoodsType = "livestock" }},
		{"negative weight", func(d *BookingDraft) { d.WeightKg = &neg }},
		{"negative volume", func(d *BookingDraft) { d.VolumeCubicFt = &neg }},
		{"no schedule", func(d *BookingDraft) { d.ScheduledDate = time.Time{} }},
		{"past schedule", func(d *BookingDraft) { d.ScheduledDate = t0.Add(-time.Minute) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base
			tt.mutate(&d)
			assert.ErrorIs(t, d.Validate(t0), ErrValidation)
		})
	}
}

func TestBooking_HappyPath(t *testing.T) {
	b := pendingBooking()

	require.NoError(t, b.Assign("drv-1", t0.Add(time.Minute)))
	assert.Equal(t, BookingDriverAssigned, b.Status)
	assert.True(t, b.AssignedTo("drv-1"))
	assert.False(t, b.AssignedTo("drv-2"))
	require.NotNil(t, b.AssignedAt)

	require.NoError(t, b.Advance(EventMarkReached, t0.Add(2*time.Minute)))
	require.NoError(t, b.Advance(EventStart, t0.Add(3*time.Minute)))
	require.NoError(t, b.Advance(EventComplete, t0.Add(4*time.Minute)))
	assert.Equal(t, BookingCompleted, b.Status)
	require.NotNil(t, b.ReachedAt)
	require.NotNil(t, b.StartedAt)
	require.NotNil(t, b.CompletedAt)
	assert.NoError(t, b.CheckInvariants())

	split := FareSplit{FinalFare: 420, Commission: 100, DriverEarning: 320}
	require.NoError(t, b.Finalize(split, PaymentPaid, t0.Add(5*time.Minute)))
	assert.True(t, b.IsFinalized())
	assert.Equal(t, 420.0, *b.FinalFare)
	assert.Equal(t, 100.0, *b.AdminCommission)
	assert.Equal(t, 320.0, *b.DriverEarning)
	assert.Equal(t, BookingCompleted, b.Status)
	assert.NoError(t, b.CheckInvariants())

	err := b.Finalize(split, PaymentPaid, t0.Add(6*time.Minute))
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestBooking_AssignRequiresDriver(t *testing.T) {
	b := pendingBooking()
	assert.ErrorIs(t, b.Assign("", t0), ErrValidation)
	assert.Equal(t, BookingPending, b.Status)
}

func TestBooking_AdvanceRejectsNonProgressEvents(t *testing.T) {
	b := pendingBooking()
	assert.ErrorIs(t, b.Advance(EventAssign, t0), ErrInvalidTransition)
	assert.ErrorIs(t, b.Advance(EventStart, t0), ErrInvalidTransition)
	assert.Equal(t, BookingPending, b.Status)
}

func TestBooking_Cancel(t *testing.T) {
	b := pendingBooking()
	require.NoError(t, b.Assign("drv-1", t0))

	require.NoError(t, b.Cancel(RoleCustomer, "  changed plans ", 50.556, t0.Add(time.Minute)))
	assert.Equal(t, BookingCancelled, b.Status)
	assert.Nil(t, b.DriverID)
	assert.Equal(t, RoleCustomer, b.CancelledBy)
	assert.Equal(t, "changed plans", b.CancelReason)
	assert.Equal(t, 50.56, b.CancellationFee)
	assert.NoError(t, b.CheckInvariants())

	assert.ErrorIs(t, b.Cancel(RoleAdmin, "", 0, t0), ErrInvalidTransition)
	assert.ErrorIs(t, b.Assign("drv-2", t0), ErrInvalidTransition)
}

func TestBooking_CancelAfterPickupFails(t *testing.T) {
	b := pendingBooking()
	require.NoError(t, b.Assign("drv-1", t0))
	require.NoError(t, b.Advance(EventMarkReached, t0))

	assert.ErrorIs(t, b.Cancel(RoleCustomer, "", 0, t0), ErrInvalidTransition)
	assert.Equal(t, BookingDriverReached, b.Status)
}

func TestBooking_FinalizeBeforeCompletionFails(t *testing.T) {
	b := pendingBooking()
	err := b.Finalize(FareSplit{FinalFare: 100}, PaymentPaid, t0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.False(t, b.IsFinalized())
}

func TestBooking_TimestampsNeverGoBackwards(t *testing.T) {
	b := pendingBooking()
	require.NoError(t, b.Assign("drv-1", t0.Add(-time.Hour)))
	assert.Equal(t, t0, *b.AssignedAt)
	assert.False(t, b.UpdatedAt.Before(b.CreatedAt))
}

func TestBooking_UpdatePayment(t *testing.T) {
	b := pendingBooking()
	assert.ErrorIs(t, b.UpdatePayment(PaymentPaid, t0), ErrInvalidTransition)

	require.NoError(t, b.Assign("drv-1", t0))
	require.NoError(t, b.Advance(EventMarkReached, t0))
	require.NoError(t, b.Advance(EventStart, t0))
	require.NoError(t, b.Advance(EventComplete, t0))
	require.NoError(t, b.Finalize(FareSplit{FinalFare: 300, Commission: 100, DriverEarning: 200}, PaymentPartial, t0))

	require.NoError(t, b.UpdatePayment(PaymentPaid, t0))
	assert.Equal(t, PaymentPaid, b.PaymentStatus)
	assert.ErrorIs(t, b.UpdatePayment(PaymentUnpaid, t0), ErrInvalidTransition)
	assert.ErrorIs(t, b.UpdatePayment("refunded", t0), ErrValidation)
}

func TestBooking_Rate(t *testing.T) {
	b := pendingBooking()
	assert.ErrorIs(t, b.Rate(5, "", t0), ErrInvalidTransition)

	require.NoError(t, b.Assign("drv-1", t0))
	require.NoError(t, b.Advance(EventMarkReached, t0))
	require.NoError(t, b.Advance(EventStart, t0))
	require.NoError(t, b.Advance(EventComplete, t0))

	assert.ErrorIs(t, b.Rate(0, "", t0), ErrValidation)
	assert.ErrorIs(t, b.Rate(6, "", t0), ErrValidation)
	require.NoError(t, b.Rate(4, " good ", t0))
	assert.Equal(t, 4, *b.Rating)
	assert.Equal(t, "good", b.Feedback)
	assert.ErrorIs(t, b.Rate(5, "", t0), ErrInvalidTransition)
}

func TestBooking_CheckInvariants(t *testing.T) {
	b := pendingBooking()
	driver := "drv-1"
	b.DriverID = &driver
	assert.Error(t, b.CheckInvariants())

	b = pendingBooking()
	b.Status = BookingOngoing
	assert.Error(t, b.CheckInvariants())

	b = pendingBooking()
	fare := 100.0
	b.FinalFare = &fare
	assert.Error(t, b.CheckInvariants())
}
