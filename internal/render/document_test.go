package render

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gardia-secu/gardia/internal/catalog"
	"github.com/gardia-secu/gardia/internal/devis"
)

type staticCatalog struct {
	optionable []catalog.Product
}

func (c staticCatalog) Get(_ context.Context, id string) (*catalog.Product, error) {
	for _, p := range c.optionable {
		if p.ID == id {
			out := p
			return &out, nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (c staticCatalog) ListOptionable(context.Context) ([]catalog.Product, error) {
	return c.optionable, nil
}

func (c staticCatalog) ListUpsell(context.Context) ([]catalog.Product, error) { return nil, nil }

type echoConverter struct{ lastHTML string }

func (c *echoConverter) FromHTML(_ context.Context, html string) ([]byte, error) {
	c.lastHTML = html
	return []byte("%PDF-1.7 fake"), nil
}

func frenchEuros(v float64) string {
	return message.NewPrinter(language.French).Sprintf("%.2f", v) + " €"
}

func pendingDevis() *devis.Devis {
	return &devis.Devis{
		ID:          "devis-1",
		Number:      "DEV-2026-0042",
		Title:       "Alarme maison",
		Kind:        devis.KindInstallation,
		VATRate:     20,
		AccessToken: "tok-render",
		Client: devis.Client{
			FirstName:  "Jean",
			LastName:   "Dupont",
			Address:    "12 rue des Lilas",
			PostalCode: "69001",
			City:       "Lyon",
		},
		Acceptance: devis.Acceptance{Status: devis.AcceptancePending},
		Lines: []devis.Line{
			{ID: "line-1", Reference: "AL-100", Name: "Centrale", Quantity: 2, UnitPriceHT: 100, VATRate: 20},
		},
		SelectedAddOns: map[string]int{"prod-detector": 1},
	}
}

func renderFixture() (*Builder, staticCatalog) {
	products := staticCatalog{optionable: []catalog.Product{{
		ID:             "prod-detector",
		Reference:      "DET-10",
		Name:           "Détecteur de mouvement",
		PriceHT:        50,
		DefaultVATRate: 10,
		IsActive:       true,
		Optionable:     true,
	}}}
	return NewBuilder(products, "https://devis.example.fr"), products
}

func TestBuildMatchesComputedTotalsToTheCent(t *testing.T) {
	builder, _ := renderFixture()
	d := pendingDevis()

	doc, err := builder.Build(context.Background(), d)
	require.NoError(t, err)

	want := devis.ComputeTotals(
		[]devis.PricedItem{{Quantity: 2, UnitPriceHT: 100, VATRate: 20}},
		[]devis.PricedItem{{Quantity: 1, UnitPriceHT: 50, VATRate: 10}},
	)
	require.Equal(t, frenchEuros(want.HT), doc.TotalHT)
	require.Equal(t, frenchEuros(want.TTC), doc.TotalTTC)
	require.Equal(t, frenchEuros(want.Deposit), doc.Deposit)

	require.Len(t, doc.BaseLines, 1)
	require.Equal(t, 2, doc.BaseLines[0].Quantity)
	require.Len(t, doc.AddOns, 1)
	require.Equal(t, "DET-10", doc.AddOns[0].Reference)
}

func TestBuildAppliesClientQuantityOverrides(t *testing.T) {
	builder, _ := renderFixture()
	d := pendingDevis()
	d.SelectedAddOns = nil
	d.CustomQuantities = map[string]int{"line-1": 5}

	doc, err := builder.Build(context.Background(), d)
	require.NoError(t, err)
	require.Equal(t, 5, doc.BaseLines[0].Quantity)
	require.Equal(t, frenchEuros(500), doc.BaseLines[0].TotalHT)
	require.Equal(t, frenchEuros(600), doc.TotalTTC)
}

func TestBuildSortsVATBreakdownByRate(t *testing.T) {
	builder, _ := renderFixture()
	d := pendingDevis()

	doc, err := builder.Build(context.Background(), d)
	require.NoError(t, err)
	require.Len(t, doc.VATBreakdown, 2)
	require.Equal(t, "10 %", doc.VATBreakdown[0].Rate)
	require.Equal(t, "20 %", doc.VATBreakdown[1].Rate)
	require.Equal(t, frenchEuros(5), doc.VATBreakdown[0].Amount)
	require.Equal(t, frenchEuros(40), doc.VATBreakdown[1].Amount)
}

func TestBuildAcceptedQuoteUsesFrozenSnapshot(t *testing.T) {
	builder, _ := renderFixture()
	d := pendingDevis()
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	d.Acceptance = devis.Acceptance{
		Status:        devis.AcceptanceAccepted,
		At:            &at,
		SignatoryName: "Jean Dupont",
		TermsAccepted: true,
	}
	d.AcceptedAddOns = []devis.AcceptedAddOn{{
		ProductID:   "prod-detector",
		Reference:   "DET-10",
		Name:        "Détecteur de mouvement",
		Quantity:    1,
		UnitPriceHT: 50,
		VATRate:     10,
	}}
	d.Totals = devis.ComputeTotals(
		[]devis.PricedItem{{Quantity: 2, UnitPriceHT: 100, VATRate: 20}},
		[]devis.PricedItem{{Quantity: 1, UnitPriceHT: 50, VATRate: 10}},
	)
	// Live selections must be ignored once accepted.
	d.SelectedAddOns = map[string]int{"prod-detector": 9}

	doc, err := builder.Build(context.Background(), d)
	require.NoError(t, err)
	require.True(t, doc.Accepted)
	require.Equal(t, "Jean Dupont", doc.SignatoryName)
	require.Equal(t, "14/03/2026 à 09:30", doc.AcceptedAt)
	require.Len(t, doc.AddOns, 1)
	require.Equal(t, 1, doc.AddOns[0].Quantity)
	require.Equal(t, frenchEuros(295), doc.TotalTTC)
}

func TestBuildEmbedsPublicLinkAndQRCode(t *testing.T) {
	builder, _ := renderFixture()

	doc, err := builder.Build(context.Background(), pendingDevis())
	require.NoError(t, err)
	require.Equal(t, "https://devis.example.fr/p/tok-render", doc.PublicURL)
	require.True(t, strings.HasPrefix(doc.QRCodePNG, "data:image/png;base64,"))
}

func TestRenderHTMLAndPDFCarryTheSameAmounts(t *testing.T) {
	builder, _ := renderFixture()
	converter := &echoConverter{}
	svc, err := NewService(builder, converter)
	require.NoError(t, err)

	d := pendingDevis()
	html, err := svc.RenderHTML(context.Background(), d)
	require.NoError(t, err)
	require.Contains(t, html, "DEV-2026-0042")
	require.Contains(t, html, frenchEuros(295))
	require.Contains(t, html, frenchEuros(118))

	pdf, err := svc.RenderPDF(context.Background(), d)
	require.NoError(t, err)
	require.NotEmpty(t, pdf)
	require.Equal(t, html, converter.lastHTML)
}
