package invoice

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vantutran2k1/haulbook/internal/core/domain"
)

func finalizedInvoice(t *testing.T) domain.Invoice {
	t.Helper()
	now := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)
	fare := 394.2
	driverID := "d1"
	b := domain.Booking{
		ID:            "SRTA-20260301-ABCD1234",
		CustomerID:    "c1",
		DriverID:      &driverID,
		Pickup:        domain.Place{Address: "Andheri East, Mumbai", Latitude: 19.1136, Longitude: 72.8697},
		Drop:          domain.Place{Address: "Thane West", Latitude: 19.2183, Longitude: 72.9781},
		GoodsType:     domain.GoodsFoodItems,
		ScheduledDate: now.Add(-6 * time.Hour),
		DistanceKm:    16.28,
		EstimatedFare: fare,
		FinalFare:     &fare,
		PaymentStatus: domain.PaymentPaid,
		Status:        domain.BookingCompleted,
	}
	inv, err := domain.NewInvoice(b, domain.User{Name: "Asha Kulkarni", Phone: "+919876543210"}, "Ravi", now)
	require.NoError(t, err)
	return inv
}

func TestPDFRenderer_Render(t *testing.T) {
	r := NewPDFRenderer("")
	assert.Equal(t, "Haulbook Goods Transport", r.Company)
	assert.Equal(t, "application/pdf", r.ContentType())

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, finalizedInvoice(t)))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, buf.Len(), 500)
}

func TestPDFRenderer_RejectsUnfinalized(t *testing.T) {
	inv := finalizedInvoice(t)
	inv.Booking.FinalFare = nil

	var buf bytes.Buffer
	err := NewPDFRenderer("Acme Logistics").Render(&buf, inv)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Zero(t, buf.Len())
}

func TestMoney(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "Rs. 0.00"},
		{394.2, "Rs. 394.20"},
		{999.999, "Rs. 1,000.00"},
		{12345, "Rs. 12,345.00"},
		{123456.5, "Rs. 1,23,456.50"},
		{12345678.25, "Rs. 1,23,45,678.25"},
		{-1500, "-Rs. 1,500.00"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, money(tt.in))
		})
	}
}

func TestPDFRenderer_UnicodeText(t *testing.T) {
	inv := finalizedInvoice(t)
	inv.Customer.Name = "Zoë Łukasz"
	inv.DriverName = "Сергей"
	inv.Booking.Pickup.Address = "Ameerpet, హైదరాబాద్"

	var buf bytes.Buffer
	require.NoError(t, NewPDFRenderer("Haulbook ₹ Transport").Render(&buf, inv))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Contains(t, buf.String(), "/BaseFont /utf8dejavu")
	assert.NotContains(t, buf.String(), "Helvetica")
}

func TestPDFRenderer_LoadFont(t *testing.T) {
	data, err := fonts.ReadFile("fonts/DejaVuSansCondensed-Bold.ttf")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "custom.ttf")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	r := NewPDFRenderer("")
	require.NoError(t, r.LoadFont(path))

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, finalizedInvoice(t)))
	assert.Contains(t, buf.String(), "/BaseFont /utf8invoice")
	assert.NotContains(t, buf.String(), "utf8dejavu")
}

func TestPDFRenderer_LoadFontErrors(t *testing.T) {
	r := NewPDFRenderer("")
	assert.Error(t, r.LoadFont(filepath.Join(t.TempDir(), "missing.ttf")))

	garbage := filepath.Join(t.TempDir(), "garbage.ttf")
	require.NoError(t, os.WriteFile(garbage, []byte("not a font"), 0o600))
	assert.Error(t, r.LoadFont(garbage))
	assert.Nil(t, r.custom)
}
