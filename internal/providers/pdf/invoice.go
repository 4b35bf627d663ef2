package pdf

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	invoicedomain "github.com/smallbiznis/worksuite/internal/invoice/domain"
)

const dateLayout = "2006-01-02"

type MarotoRenderer struct{}

func New() Renderer {
	return &MarotoRenderer{}
}

// RenderInvoice lays out a paid invoice as a receipt and anything else as an invoice.
func (r *MarotoRenderer) RenderInvoice(ctx context.Context, doc Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inv := doc.Invoice
	if len(inv.Lines) == 0 {
		return nil, ErrNoLines
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	title := "Invoice"
	if inv.Status == invoicedomain.InvoiceStatusPaid {
		title = "Receipt"
	}
	m.AddRow(14,
		text.NewCol(8, title, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, string(inv.Status), props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
			Top:   4,
		}),
	)

	meta := []string{
		"Invoice number: " + inv.Number,
		"Date of issue: " + inv.IssuedAt.Format(dateLayout),
	}
	if inv.DueAt != nil {
		meta = append(meta, "Date due: "+inv.DueAt.Format(dateLayout))
	}
	if inv.PaidAt != nil {
		meta = append(meta, "Date paid: "+inv.PaidAt.Format(dateLayout))
	}
	if doc.ServicePeriod != "" {
		meta = append(meta, "Service period: "+doc.ServicePeriod)
	}
	metaCol := col.New(6)
	for i, s := range meta {
		metaCol.Add(text.New(s, props.Text{Top: float64(i * 4)}))
	}
	m.AddRow(float64(len(meta)*4+6), metaCol, col.New(6))

	m.AddRow(30,
		col.New(6).Add(
			text.New(doc.Issuer.Name, props.Text{Style: fontstyle.Bold}),
			text.New(doc.Issuer.Address, props.Text{Top: 5}),
			text.New(doc.Issuer.TaxID, props.Text{Top: 10}),
			text.New(doc.Issuer.Email, props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(doc.BillToName, props.Text{Top: 5}),
			text.New(doc.BillToTaxID, props.Text{Top: 10}),
			text.New(doc.BillToEmail, props.Text{Top: 15}),
		),
	)

	m.AddRow(12,
		text.NewCol(12, fmt.Sprintf("%s %s due", inv.Total.StringFixed(2), inv.Currency), props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   3,
		}),
	)
	if doc.BankDetails != "" && inv.Status != invoicedomain.InvoiceStatusPaid {
		m.AddRow(10, text.NewCol(12, doc.BankDetails, props.Text{Size: 9}))
	}
	if inv.Description != "" {
		m.AddRow(8, text.NewCol(12, inv.Description, props.Text{Size: 9}))
	}

	m.AddRow(8,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range inv.Lines {
		m.AddRow(8,
			text.NewCol(6, item.Concept, props.Text{Size: 9}),
			text.NewCol(2, item.Quantity.String(), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.UnitPrice.StringFixed(2), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.LineTotal.StringFixed(2), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Subtotal", props.Text{Size: 9}),
		text.NewCol(2, inv.Subtotal.StringFixed(2), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "VAT "+inv.VATPercent.String()+"%", props.Text{Size: 9}),
		text.NewCol(2, inv.VATAmount.StringFixed(2), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, inv.Total.StringFixed(2), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	out, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return out.GetBytes(), nil
}
