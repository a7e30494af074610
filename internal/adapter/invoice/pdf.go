// Package invoice renders booking invoices.
package invoice

import (
	"embed"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/phpdave11/gofpdf"
	"github.com/vantutran2k1/haulbook/internal/core/domain"
)

const timeLayout = "2006-01-02 15:04"

//go:embed fonts/*.ttf
var fonts embed.FS

// PDFRenderer writes A4 invoices in UTF-8. Text is set in the embedded DejaVu
// Sans Condensed unless LoadFont supplied a TTF with wider script coverage.
type PDFRenderer struct {
	Company string
	custom  []byte
}

func NewPDFRenderer(company string) *PDFRenderer {
	if company == "" {
		company = "Haulbook Goods Transport"
	}
	return &PDFRenderer{Company: company}
}

// LoadFont reads a TrueType font used for every style in place of DejaVu.
// The renderer does not shape complex scripts, so conjuncts in Indic text
// print as their component glyphs.
func (r *PDFRenderer) LoadFont(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load invoice font: %w", err)
	}
	check := gofpdf.New("P", "mm", "A4", "")
	check.AddUTF8FontFromBytes("Invoice", "", data)
	check.SetFont("Invoice", "", 11)
	if err := check.Error(); err != nil {
		return fmt.Errorf("load invoice font %s: %w", path, err)
	}
	r.custom = data
	return nil
}

func (r *PDFRenderer) addFonts(pdf *gofpdf.Fpdf) (string, error) {
	if r.custom != nil {
		for _, style := range []string{"", "B", "I"} {
			pdf.AddUTF8FontFromBytes("Invoice", style, r.custom)
		}
		return "Invoice", pdf.Error()
	}
	for style, file := range map[string]string{
		"":  "fonts/DejaVuSansCondensed.ttf",
		"B": "fonts/DejaVuSansCondensed-Bold.ttf",
		"I": "fonts/DejaVuSansCondensed-Oblique.ttf",
	} {
		data, err := fonts.ReadFile(file)
		if err != nil {
			return "", err
		}
		pdf.AddUTF8FontFromBytes("DejaVu", style, data)
	}
	return "DejaVu", pdf.Error()
}

func (r *PDFRenderer) ContentType() string {
	return "application/pdf"
}

func (r *PDFRenderer) Render(w io.Writer, inv domain.Invoice) error {
	b := inv.Booking
	if !b.IsFinalized() {
		return fmt.Errorf("%w: booking %s is not finalized", domain.ErrInvalidTransition, b.ID)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Invoice "+inv.Number, true)
	family, err := r.addFonts(pdf)
	if err != nil {
		return fmt.Errorf("render invoice %s: %w", inv.Number, err)
	}
	pdf.AddPage()

	pdf.SetFont(family, "B", 18)
	pdf.Cell(0, 10, r.Company)
	pdf.Ln(10)
	pdf.SetFont(family, "B", 14)
	pdf.Cell(0, 8, "INVOICE")
	pdf.Ln(10)

	pdf.SetFont(family, "", 11)
	line := func(label, value string) {
		pdf.CellFormat(45, 6, label, "", 0, "L", false, 0, "")
		pdf.MultiCell(0, 6, safe(value, "-"), "", "L", false)
	}
	line("Invoice No", inv.Number)
	line("Issued", inv.IssuedAt.Format(timeLayout))
	line("Booking ID", b.ID)
	line("Scheduled", b.ScheduledDate.Format(timeLayout))
	pdf.Ln(4)

	pdf.SetFont(family, "B", 12)
	pdf.Cell(0, 7, "Billed to")
	pdf.Ln(7)
	pdf.SetFont(family, "", 11)
	line("Name", inv.Customer.Name)
	line("Phone", inv.Customer.Phone)
	pdf.Ln(4)

	pdf.SetFont(family, "B", 12)
	pdf.Cell(0, 7, "Trip")
	pdf.Ln(7)
	pdf.SetFont(family, "", 11)
	line("Pickup", b.Pickup.Address)
	line("Drop", b.Drop.Address)
	line("Goods", strings.ReplaceAll(string(b.GoodsType), "_", " "))
	line("Distance", strconv.FormatFloat(b.DistanceKm, 'f', 2, 64)+" km")
	line("Driver", inv.DriverName)
	pdf.Ln(4)

	pdf.SetFont(family, "B", 12)
	pdf.Cell(0, 7, "Charges")
	pdf.Ln(8)
	pdf.SetFont(family, "", 11)
	amount := func(label string, v float64) {
		pdf.CellFormat(120, 7, label, "B", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, money(v), "B", 1, "R", false, 0, "")
	}
	amount("Estimated fare", b.EstimatedFare)
	amount("Final fare", *b.FinalFare)
	pdf.SetFont(family, "B", 12)
	pdf.CellFormat(120, 9, "Total", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 9, money(*b.FinalFare), "", 1, "R", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont(family, "I", 10)
	pdf.Cell(0, 6, "Payment status: "+strings.ToUpper(string(b.PaymentStatus)))

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render invoice %s: %w", inv.Number, err)
	}
	return nil
}

// money formats v as rupees with Indian digit grouping, e.g. Rs. 1,23,456.50.
func money(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")

	if len(whole) > 3 {
		head, tail := whole[:len(whole)-3], whole[len(whole)-3:]
		var groups []string
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		if head != "" {
			groups = append([]string{head}, groups...)
		}
		whole = strings.Join(groups, ",") + "," + tail
	}

	out := "Rs. " + whole + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}

func safe(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}
