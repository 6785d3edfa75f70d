package devis

import "time"

const CurrentSchemaVersion = 1

type Kind string

const (
	// New lines default to quantity 1 on installations, 0 on upsells.
	KindInstallation Kind = "installation_neuve"
	KindMaintenanceUpsell Kind = "upsell_entretien"
)

type Status string

const (
	StatusDraft  Status = "draft"
	StatusSent   Status = "sent"
	StatusSigned Status = "signed"
)

type AcceptanceStatus string

const (
	AcceptancePending  AcceptanceStatus = "pending"
	AcceptanceAccepted AcceptanceStatus = "accepted"
	AcceptanceRejected AcceptanceStatus = "rejected"
)

type Client struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
	ERPID      *int64 `json:"erp_id,omitempty"`
}

func (c Client) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}

type Line struct {
	ID           string  `json:"id"`
	ProductID    *string `json:"product_id,omitempty"`
	Reference    string  `json:"reference"`
	Name         string  `json:"name"`
	Description  string  `json:"description,omitempty"`
	Quantity     int     `json:"quantity"`
	UnitPriceHT  float64 `json:"price_ht"`
	VATRate      float64 `json:"vat_rate"`
	TotalHT      float64 `json:"total_ht"`
	TotalVAT     float64 `json:"total_vat"`
	TotalTTC     float64 `json:"total_ttc"`
	ERPReference *string `json:"erp_reference,omitempty"`
}

func (l *Line) recompute(vatRate float64) {
	l.VATRate = vatRate
	l.TotalHT = float64(l.Quantity) * l.UnitPriceHT
	l.TotalVAT = l.TotalHT * (vatRate / 100)
	l.TotalTTC = l.TotalHT + l.TotalVAT
}

type Options struct {
	Leasing    bool `json:"leasing"`
	Monitoring bool `json:"monitoring"`
}

type IntroMode string

const (
	IntroAuto   IntroMode = "auto"
	IntroManual IntroMode = "manual"
)

type IntroState struct {
	Mode        IntroMode  `json:"mode,omitempty"`
	Text        string     `json:"text,omitempty"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
	EditedAt    *time.Time `json:"edited_at,omitempty"`
}

type Acceptance struct {
	Status        AcceptanceStatus `json:"status"`
	At            *time.Time       `json:"at,omitempty"`
	SignatoryName string           `json:"signatory_name,omitempty"`
	TermsAccepted bool             `json:"terms_accepted,omitempty"`
	SignaturePath string           `json:"signature_path,omitempty"`
	ClientIP      string           `json:"client_ip,omitempty"`
	RejectedAt    *time.Time       `json:"rejected_at,omitempty"`
	RejectReason  string           `json:"reject_reason,omitempty"`
}

type AcceptedAddOn struct {
	ProductID   string  `json:"product_id"`
	Reference   string  `json:"reference"`
	Name        string  `json:"name"`
	Quantity    int     `json:"quantity"`
	UnitPriceHT float64 `json:"price_ht"`
	VATRate     float64 `json:"vat_rate"`
}

type Devis struct {
	ID           string  `json:"id"`
	Number       string  `json:"number,omitempty"`
	Client       Client  `json:"client"`
	Title        string  `json:"title"`
	Kind         Kind    `json:"kind"`
	VATRate      float64 `json:"vat_rate"`
	Lines        []Line  `json:"lines"`
	Totals       Totals  `json:"totals"`
	Observations string  `json:"observations,omitempty"`
	Options      Options `json:"options"`
	Status       Status  `json:"status"`

	AccessToken      string  `json:"access_token,omitempty"`
	PaymentLinkToken *string `json:"payment_link_token,omitempty"`

	Acceptance Acceptance `json:"acceptance"`

	// CustomQuantities holds the client's per-line quantity overrides,
	// kept apart from Line.Quantity.
	CustomQuantities map[string]int `json:"custom_quantities,omitempty"`

	// SelectedAddOns maps product id to the client-picked quantity;
	// zero is never stored.
	SelectedAddOns map[string]int `json:"selected_add_ons,omitempty"`

	// AcceptedAddOns is the priced snapshot taken by the acceptance.
	AcceptedAddOns []AcceptedAddOn `json:"accepted_add_ons,omitempty"`

	Intro IntroState `json:"intro"`

	ERPDevisID *int64 `json:"erp_devis_id,omitempty"`

	SchemaVersion int   `json:"schema_version"`
	Version       int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (d *Devis) EffectiveQuantity(line Line) int {
	if q, ok := d.CustomQuantities[line.ID]; ok {
		return q
	}
	return line.Quantity
}

func (d *Devis) LineByID(id string) *Line {
	for i := range d.Lines {
		if d.Lines[i].ID == id {
			return &d.Lines[i]
		}
	}
	return nil
}

func (d *Devis) IsAccepted() bool {
	return d.Acceptance.Status == AcceptanceAccepted
}

func (d *Devis) basePricedItems(withOverrides bool) []PricedItem {
	items := make([]PricedItem, 0, len(d.Lines))
	for _, line := range d.Lines {
		qty := line.Quantity
		if withOverrides {
			qty = d.EffectiveQuantity(line)
		}
		items = append(items, PricedItem{
			Quantity:    qty,
			UnitPriceHT: line.UnitPriceHT,
			VATRate:     line.VATRate,
		})
	}
	return items
}

// DisplayTotals computes what the client currently sees: overridden base
// quantities plus the given add-on items.
func (d *Devis) DisplayTotals(addOns []PricedItem) Totals {
	return ComputeTotals(d.basePricedItems(true), addOns)
}

func (d *Devis) AcceptedAddOnItems() []PricedItem {
	items := make([]PricedItem, 0, len(d.AcceptedAddOns))
	for _, a := range d.AcceptedAddOns {
		items = append(items, PricedItem{
			Quantity:    a.Quantity,
			UnitPriceHT: a.UnitPriceHT,
			VATRate:     a.VATRate,
		})
	}
	return items
}
