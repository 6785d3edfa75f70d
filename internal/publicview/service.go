// Package publicview serves the client-facing quote viewer reached through
// the bearer access token. Everything here is scoped to one quote: the token
// is the only credential, and a miss is indistinguishable from a quote that
// never existed.
package publicview

import (
	"context"
	"log/slog"

	"github.com/gardia-secu/gardia/internal/catalog"
	"github.com/gardia-secu/gardia/internal/devis"
	"github.com/gardia-secu/gardia/internal/payment"
)

// View is the read model for the public page: the quote, the optional
// products the client may add, and the totals as the client currently sees
// them (overrides and selections applied).
type View struct {
	Devis      *devis.Devis       `json:"devis"`
	Optionable []catalog.Product  `json:"optionable_products"`
	Totals     devis.Totals       `json:"totals"`
}

// Service implements the client-side adjustments. Client writes go through
// field-scoped repository updates so they can never clobber a concurrent
// staff save.
type Service struct {
	devis    *devis.Service
	repo     devis.Repository
	products devis.ProductSource
	payments *payment.Builder
	logger   *slog.Logger
}

// NewService constructs the public viewer service. payments may be nil when
// no payment gateway is configured.
func NewService(ds *devis.Service, repo devis.Repository, products devis.ProductSource, payments *payment.Builder, logger *slog.Logger) *Service {
	return &Service{devis: ds, repo: repo, products: products, payments: payments, logger: logger}
}

// View loads the quote behind the token together with the optionable catalog
// and the client-facing totals.
func (s *Service) View(ctx context.Context, token string) (*View, error) {
	d, err := s.devis.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	optionable, err := s.products.ListOptionable(ctx)
	if err != nil {
		return nil, err
	}

	return &View{
		Devis:      d,
		Optionable: optionable,
		Totals:     s.displayTotals(d, optionable),
	}, nil
}

// displayTotals derives what the client sees. An accepted quote shows its
// frozen acceptance snapshot; a pending one re-prices the live selections
// against the optionable catalog.
func (s *Service) displayTotals(d *devis.Devis, optionable []catalog.Product) devis.Totals {
	if d.IsAccepted() {
		return d.Totals
	}
	byID := make(map[string]catalog.Product, len(optionable))
	for _, p := range optionable {
		byID[p.ID] = p
	}
	return d.DisplayTotals(devis.AddOnItems(d.SelectedAddOns, byID))
}

// AdjustLineQuantity applies a client +/- step to a base line. The effective
// quantity never drops below one: a client can reduce, not cancel, a line the
// staff proposed. When the adjustment lands back on the staff quantity the
// override is removed rather than stored as a no-op.
func (s *Service) AdjustLineQuantity(ctx context.Context, token, lineID string, delta int) (*View, error) {
	d, err := s.devis.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if d.Acceptance.Status != devis.AcceptancePending {
		return nil, devis.ErrLocked
	}

	line := d.LineByID(lineID)
	if line == nil {
		return nil, devis.ErrNotFound
	}

	next := d.EffectiveQuantity(*line) + delta
	if next < 1 {
		next = 1
	}

	overrides := cloneCounts(d.CustomQuantities)
	if next == line.Quantity {
		delete(overrides, lineID)
	} else {
		overrides[lineID] = next
	}

	if err := s.repo.UpdateCustomQuantities(ctx, d.ID, overrides); err != nil {
		return nil, err
	}
	return s.View(ctx, token)
}

// SelectAddOn applies a client +/- step to an optional product selection.
// The quantity floors at zero and a selection that reaches zero is removed;
// only active optionable products are accepted.
func (s *Service) SelectAddOn(ctx context.Context, token, productID string, delta int) (*View, error) {
	d, err := s.devis.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if d.Acceptance.Status != devis.AcceptancePending {
		return nil, devis.ErrLocked
	}

	selections := cloneCounts(d.SelectedAddOns)
	next := selections[productID] + delta
	if next <= 0 {
		delete(selections, productID)
	} else {
		product, err := s.products.Get(ctx, productID)
		if err != nil {
			return nil, devis.ErrNotFound
		}
		if !product.IsActive || !product.Optionable {
			return nil, devis.ErrValidation
		}
		selections[productID] = next
	}

	if err := s.repo.UpdateSelectedAddOns(ctx, d.ID, selections); err != nil {
		return nil, err
	}
	return s.View(ctx, token)
}

// PaymentForm builds the signed deposit payment form behind a payment link
// token. The token was minted from the totals in force at generation time and
// is cleared by any later totals-affecting change, so the deposit here always
// matches what the client last saw.
func (s *Service) PaymentForm(ctx context.Context, paymentToken string) (*payment.Request, error) {
	if s.payments == nil {
		return nil, devis.ErrNotFound
	}
	d, err := s.repo.GetByPaymentToken(ctx, paymentToken)
	if err != nil {
		return nil, err
	}

	totals := d.Totals
	if !d.IsAccepted() {
		optionable, err := s.products.ListOptionable(ctx)
		if err != nil {
			return nil, err
		}
		totals = s.displayTotals(d, optionable)
	}

	req := s.payments.Build(d.ID, d.Client.Email, totals.Deposit)
	return &req, nil
}

// Accept runs the one-time binding acceptance.
func (s *Service) Accept(ctx context.Context, token string, req devis.AcceptRequest) (*devis.AcceptResult, error) {
	return s.devis.Accept(ctx, token, req)
}

func cloneCounts(src map[string]int) map[string]int {
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
