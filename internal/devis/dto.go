package devis

type ClientPayload struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name" validate:"required"`
	Email      string `json:"email" validate:"omitempty,email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
	ERPID      *int64 `json:"erp_id,omitempty"`
}

type CreateDevisRequest struct {
	Client  ClientPayload `json:"client" validate:"required"`
	Title   string        `json:"title"`
	Kind    Kind          `json:"kind" validate:"omitempty,oneof=installation_neuve upsell_entretien"`
	VATRate float64       `json:"vat_rate" validate:"omitempty,oneof=10 20"`
}

type UpdateDevisRequest struct {
	Client       *ClientPayload `json:"client,omitempty"`
	Title        *string        `json:"title,omitempty"`
	Observations *string        `json:"observations,omitempty"`
	Options      *Options       `json:"options,omitempty"`
	IntroText    *string        `json:"intro_text,omitempty"`
	Version      *int64         `json:"version,omitempty"`
}

type AddLineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  *int   `json:"quantity,omitempty" validate:"omitempty,gte=0"`
}

type SetQuantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

type SetPriceRequest struct {
	PriceHT float64 `json:"price_ht" validate:"gte=0"`
}

type SetVATRateRequest struct {
	Rate float64 `json:"rate" validate:"required,oneof=10 20"`
}

type SwitchKindRequest struct {
	Kind Kind `json:"kind" validate:"required,oneof=installation_neuve upsell_entretien"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type AcceptRequest struct {
	SignatoryName string `json:"signatory_name" validate:"required"`
	TermsAccepted bool   `json:"terms_accepted" validate:"eq=true"`
	SignaturePNG  []byte `json:"signature_png,omitempty"`
	ClientIP      string `json:"-"`
}

type AcceptResult struct {
	Devis    *Devis   `json:"devis"`
	Warnings []string `json:"warnings,omitempty"`
}
