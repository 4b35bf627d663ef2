package pdf

import (
	"context"
	"errors"

	invoicedomain "github.com/smallbiznis/worksuite/internal/invoice/domain"
)

var ErrNoLines = errors.New("pdf_invoice_has_no_lines")

// Issuer is the seller block printed on every document.
type Issuer struct {
	Name    string
	Address string
	Email   string
	TaxID   string
}

// Document is everything needed to render one invoice.
type Document struct {
	Issuer        Issuer
	Invoice       invoicedomain.Invoice
	BillToName    string
	BillToEmail   string
	BillToTaxID   string
	BankDetails   string
	ServicePeriod string
}

type Renderer interface {
	RenderInvoice(ctx context.Context, doc Document) ([]byte, error)
}
