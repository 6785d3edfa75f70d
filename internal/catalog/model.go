package catalog

import "time"

// Product is a sellable catalog entry. The quote engine treats products as
// read-only reference data: pricing is copied onto a quote line when the line
// is created, so later catalog changes never alter existing quotes.
type Product struct {
	ID               string     `json:"id"`
	Reference        string     `json:"reference"`
	Name             string     `json:"name"`
	Category         string     `json:"category"`
	DescriptionShort string     `json:"description_short"`
	DescriptionLong  string     `json:"description_long"`
	PriceHT          float64    `json:"price_ht"`
	DefaultVATRate   float64    `json:"default_vat_rate"`
	IsActive         bool       `json:"is_active"`
	Optionable       bool       `json:"optionable"`
	Upsell           bool       `json:"upsell"`
	ERPReference     *string    `json:"erp_reference,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
