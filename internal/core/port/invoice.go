package port

import (
	"io"

	"github.com/vantutran2k1/haulbook/internal/core/domain"
)

type InvoiceRenderer interface {
	Render(w io.Writer, inv domain.Invoice) error
	ContentType() string
}
