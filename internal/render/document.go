// Package render builds the client-facing quote document. The same document
// feeds the PDF and the email body, so both always show identical amounts:
// every figure comes from one totals computation, formatted once here.
package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"

	"github.com/skip2/go-qrcode"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gardia-secu/gardia/internal/catalog"
	"github.com/gardia-secu/gardia/internal/devis"
)

// DocumentLine is one displayed row, quantities already resolved to what the
// client sees.
type DocumentLine struct {
	Reference   string
	Name        string
	Description string
	Quantity    int
	UnitPriceHT string
	TotalHT     string
}

// VATLine is one row of the VAT breakdown.
type VATLine struct {
	Rate   string
	Amount string
}

// Document is the fully formatted view model handed to the HTML template.
type Document struct {
	Number        string
	Title         string
	Kind          devis.Kind
	ClientName    string
	ClientAddress string
	ClientCity    string
	Intro         string
	Observations  string
	Options       devis.Options

	BaseLines []DocumentLine
	AddOns    []DocumentLine

	TotalHT      string
	VATBreakdown []VATLine
	TotalTTC     string
	Deposit      string

	Accepted      bool
	SignatoryName string
	AcceptedAt    string

	PublicURL string
	// QRCodePNG is a base64 data URI embedding the public link.
	QRCodePNG string
}

// Builder assembles documents from the aggregate plus the optional catalog.
type Builder struct {
	products      devis.ProductSource
	publicBaseURL string
	printer       *message.Printer
}

// NewBuilder constructs a document builder. publicBaseURL is the origin the
// client-facing links are built on.
func NewBuilder(products devis.ProductSource, publicBaseURL string) *Builder {
	return &Builder{
		products:      products,
		publicBaseURL: publicBaseURL,
		printer:       message.NewPrinter(language.French),
	}
}

// Build produces the document for a quote. Accepted quotes render from their
// frozen acceptance snapshot; pending ones re-price live selections.
func (b *Builder) Build(ctx context.Context, d *devis.Devis) (*Document, error) {
	doc := &Document{
		Number:        d.Number,
		Title:         d.Title,
		Kind:          d.Kind,
		ClientName:    d.Client.FullName(),
		ClientAddress: d.Client.Address,
		ClientCity:    d.Client.PostalCode + " " + d.Client.City,
		Intro:         d.Intro.Text,
		Observations:  d.Observations,
		Options:       d.Options,
		Accepted:      d.IsAccepted(),
	}

	for _, line := range d.Lines {
		qty := d.EffectiveQuantity(line)
		doc.BaseLines = append(doc.BaseLines, DocumentLine{
			Reference:   line.Reference,
			Name:        line.Name,
			Description: line.Description,
			Quantity:    qty,
			UnitPriceHT: b.euros(line.UnitPriceHT),
			TotalHT:     b.euros(float64(qty) * line.UnitPriceHT),
		})
	}

	var totals devis.Totals
	if d.IsAccepted() {
		totals = d.Totals
		for _, a := range d.AcceptedAddOns {
			doc.AddOns = append(doc.AddOns, DocumentLine{
				Reference:   a.Reference,
				Name:        a.Name,
				Quantity:    a.Quantity,
				UnitPriceHT: b.euros(a.UnitPriceHT),
				TotalHT:     b.euros(float64(a.Quantity) * a.UnitPriceHT),
			})
		}
		doc.SignatoryName = d.Acceptance.SignatoryName
		if d.Acceptance.At != nil {
			doc.AcceptedAt = d.Acceptance.At.Format("02/01/2006 à 15:04")
		}
	} else {
		addOnLines, addOnItems, err := b.pendingAddOns(ctx, d)
		if err != nil {
			return nil, err
		}
		doc.AddOns = addOnLines
		totals = d.DisplayTotals(addOnItems)
	}

	doc.TotalHT = b.euros(totals.HT)
	doc.TotalTTC = b.euros(totals.TTC)
	doc.Deposit = b.euros(totals.Deposit)
	doc.VATBreakdown = b.vatBreakdown(totals)

	doc.PublicURL = b.publicBaseURL + "/p/" + d.AccessToken
	png, err := qrcode.Encode(doc.PublicURL, qrcode.Medium, 160)
	if err != nil {
		return nil, fmt.Errorf("render: encode qr code: %w", err)
	}
	doc.QRCodePNG = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	return doc, nil
}

func (b *Builder) pendingAddOns(ctx context.Context, d *devis.Devis) ([]DocumentLine, []devis.PricedItem, error) {
	if len(d.SelectedAddOns) == 0 {
		return nil, nil, nil
	}

	optionable, err := b.products.ListOptionable(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("render: load optionable products: %w", err)
	}
	byID := make(map[string]catalog.Product, len(optionable))
	for _, p := range optionable {
		byID[p.ID] = p
	}

	ids := make([]string, 0, len(d.SelectedAddOns))
	for id := range d.SelectedAddOns {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var lines []DocumentLine
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			continue
		}
		qty := d.SelectedAddOns[id]
		lines = append(lines, DocumentLine{
			Reference:   p.Reference,
			Name:        p.Name,
			Description: p.DescriptionShort,
			Quantity:    qty,
			UnitPriceHT: b.euros(p.PriceHT),
			TotalHT:     b.euros(float64(qty) * p.PriceHT),
		})
	}

	return lines, devis.AddOnItems(d.SelectedAddOns, byID), nil
}

func (b *Builder) vatBreakdown(totals devis.Totals) []VATLine {
	keys := make([]string, 0, len(totals.VATByRate))
	for k := range totals.VATByRate {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.ParseFloat(keys[i], 64)
		c, _ := strconv.ParseFloat(keys[j], 64)
		return a < c
	})

	lines := make([]VATLine, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, VATLine{
			Rate:   k + " %",
			Amount: b.euros(totals.VATByRate[k]),
		})
	}
	return lines
}

// euros formats an amount the French way: space-grouped thousands, comma
// decimals, trailing euro sign.
func (b *Builder) euros(v float64) string {
	return b.printer.Sprintf("%.2f", v) + " €"
}
