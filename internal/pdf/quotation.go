// Package pdf renders quotation documents and inspects PDF files.
package pdf

import (
	"bytes"
	"context"
	"fmt"

	"github.com/diewo77/go-esign/internal/models"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// QuotationItem is one line of the quotation table.
type QuotationItem struct {
	Description string
	Quantity    float64
	UnitPrice   float64
	Total       float64
}

// QuotationData is everything printed on a quotation.
type QuotationData struct {
	Number       string
	Date         string
	CustomerName string
	Email        string
	Currency     string
	Items        []QuotationItem
	Total        float64
}

// QuotationPDF renders a quotation. The last page ends with an empty area
// reserved for the signature.
func QuotationPDF(data QuotationData) ([]byte, error) {
	cfg := config.NewBuilder().
		WithLeftMargin(15).
		WithRightMargin(15).
		WithTopMargin(15).
		Build()
	m := maroto.New(cfg)

	m.AddRow(14, text.NewCol(12, "Quotation "+data.Number, props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Center}))
	m.AddRow(6,
		text.NewCol(6, "Customer: "+data.CustomerName, props.Text{Size: 9}),
		text.NewCol(6, "Date: "+data.Date, props.Text{Size: 9, Align: align.Right}),
	)
	if data.Email != "" {
		m.AddRow(6, text.NewCol(12, data.Email, props.Text{Size: 9}))
	}
	m.AddRow(4, line.NewCol(12))

	header := props.Text{Size: 9, Style: fontstyle.Bold}
	m.AddRow(8,
		text.NewCol(6, "Description", header),
		text.NewCol(2, "Quantity", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)
	for _, it := range data.Items {
		m.AddRow(7,
			text.NewCol(6, it.Description, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%.2f", it.Quantity), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(it.UnitPrice, data.Currency), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(it.Total, data.Currency), props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(4, line.NewCol(12))
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right}),
		text.NewCol(2, money(data.Total, data.Currency), props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right}),
	)
	m.AddRow(10, text.NewCol(12, "Signature", props.Text{Size: 9, Style: fontstyle.Italic, Top: 4}))
	m.AddRow(30, col.New(12))

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate quotation %s: %w", data.Number, err)
	}
	return doc.GetBytes(), nil
}

func money(v float64, currency string) string {
	return fmt.Sprintf("%.2f %s", v, currency)
}

// PageCount returns the number of pages of a PDF document.
func PageCount(doc []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(doc), nil)
	if err != nil {
		return 0, fmt.Errorf("count pdf pages: %w", err)
	}
	return n, nil
}

// Renderer renders the quotation of an order.
type Renderer struct{}

func NewRenderer() *Renderer { return &Renderer{} }

// Render builds the quotation from an order whose Partner and Lines are loaded.
func (Renderer) Render(_ context.Context, order *models.SaleOrder) ([]byte, error) {
	return QuotationPDF(DataFromOrder(order))
}

// DataFromOrder maps an order to the printed quotation.
func DataFromOrder(order *models.SaleOrder) QuotationData {
	data := QuotationData{
		Number:   order.Name,
		Date:     order.CreatedAt.Format("2006-01-02"),
		Currency: order.Currency,
		Total:    order.AmountTotal,
	}
	if order.Partner != nil {
		data.CustomerName = order.Partner.Name
		data.Email = order.Partner.Email
	}
	var sum float64
	for _, l := range order.Lines {
		data.Items = append(data.Items, QuotationItem{
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Total:       l.Subtotal(),
		})
		sum += l.Subtotal()
	}
	if data.Total == 0 {
		data.Total = sum
	}
	return data
}
