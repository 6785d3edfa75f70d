package devis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"

	"github.com/gardia-secu/gardia/internal/catalog"
	"github.com/gardia-secu/gardia/internal/intro"
	"github.com/gardia-secu/gardia/internal/notify"
	"github.com/gardia-secu/gardia/internal/shared"
)

var (
	ErrNotFound        = errors.New("devis not found")
	ErrValidation      = errors.New("validation failed")
	ErrLineNotFound    = errors.New("line not found")
	ErrVersionConflict = errors.New("devis was modified concurrently")
	ErrAlreadyAccepted = errors.New("devis already accepted")
	ErrLocked          = errors.New("devis is locked")
	ErrIntroManual     = errors.New("introduction was edited manually")
)

const defaultUpsellTitle = "Quelques idées d'amélioration en prévision de votre visite d'entretien"

type ProductSource interface {
	Get(ctx context.Context, id string) (*catalog.Product, error)
	ListOptionable(ctx context.Context) ([]catalog.Product, error)
	ListUpsell(ctx context.Context) ([]catalog.Product, error)
}

type Notifier interface {
	Record(ctx context.Context, n notify.Notification) error
}

type TaskEnqueuer interface {
	EnqueueAcceptanceEmail(ctx context.Context, devisID string) error
	EnqueueDevisEmail(ctx context.Context, devisID string) error
	EnqueueERPSync(ctx context.Context, devisID string) error
}

type IntroGenerator interface {
	Generate(ctx context.Context, req intro.Request) (string, error)
}

type SignatureStore interface {
	PutSignature(ctx context.Context, devisID string, png []byte) (string, error)
}

type Service struct {
	repo       Repository
	products   ProductSource
	notifier   Notifier
	tasks      TaskEnqueuer
	intro      IntroGenerator
	signatures SignatureStore
	logger     *slog.Logger
}

type ServiceParams struct {
	Repo       Repository
	Products   ProductSource
	Notifier   Notifier
	Tasks      TaskEnqueuer
	Intro      IntroGenerator
	Signatures SignatureStore
	Logger     *slog.Logger
}

func NewService(p ServiceParams) *Service {
	return &Service{
		repo:       p.Repo,
		products:   p.Products,
		notifier:   p.Notifier,
		tasks:      p.Tasks,
		intro:      p.Intro,
		signatures: p.Signatures,
		logger:     p.Logger,
	}
}

// Maintenance-upsell quotes are seeded with the catalog's upsell products
// at quantity zero.
func (s *Service) Create(ctx context.Context, req CreateDevisRequest) (*Devis, error) {
	kind := req.Kind
	if kind == "" {
		kind = KindInstallation
	}
	rate := req.VATRate
	if rate == 0 {
		rate = 10
	}

	token, err := shared.NewAccessToken()
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	now := time.Now()
	d := &Devis{
		ID:            uuid.NewString(),
		Client:        clientFromPayload(req.Client),
		Title:         req.Title,
		Kind:          kind,
		VATRate:       rate,
		Status:        StatusDraft,
		AccessToken:   token,
		Acceptance:    Acceptance{Status: AcceptancePending},
		SchemaVersion: CurrentSchemaVersion,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if kind == KindMaintenanceUpsell {
		if d.Title == "" {
			d.Title = defaultUpsellTitle
		}
		upsells, err := s.products.ListUpsell(ctx)
		if err != nil {
			return nil, fmt.Errorf("load upsell products: %w", err)
		}
		for _, p := range upsells {
			d.Lines = append(d.Lines, newLineFromProduct(p, 0, d.VATRate))
		}
	}

	s.recompute(d)

	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create devis: %w", err)
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Devis, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByToken(ctx context.Context, token string) (*Devis, error) {
	return s.repo.GetByToken(ctx, token)
}

func (s *Service) List(ctx context.Context) ([]Devis, error) {
	return s.repo.List(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) Update(ctx context.Context, id string, req UpdateDevisRequest) (*Devis, error) {
	return s.mutate(ctx, id, func(d *Devis) error {
		if req.Version != nil && *req.Version != d.Version {
			return ErrVersionConflict
		}
		if req.Client != nil {
			d.Client = clientFromPayload(*req.Client)
		}
		if req.Title != nil {
			d.Title = *req.Title
		}
		if req.Observations != nil {
			d.Observations = *req.Observations
		}
		if req.Options != nil {
			d.Options = *req.Options
		}
		if req.IntroText != nil {
			now := time.Now()
			d.Intro = IntroState{Mode: IntroManual, Text: *req.IntroText, EditedAt: &now}
		}
		return nil
	})
}

// A line for the same product has its quantity replaced, never duplicated.
func (s *Service) AddOrUpdateLine(ctx context.Context, id string, req AddLineRequest) (*Devis, error) {
	product, err := s.products.Get(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown product", ErrValidation)
		}
		return nil, fmt.Errorf("load product: %w", err)
	}

	return s.mutate(ctx, id, func(d *Devis) error {
		qty := 1
		if d.Kind == KindMaintenanceUpsell {
			qty = 0
		}
		if req.Quantity != nil {
			if *req.Quantity < 0 {
				return fmt.Errorf("%w: quantity must not be negative", ErrValidation)
			}
			qty = *req.Quantity
		}

		for i := range d.Lines {
			if d.Lines[i].ProductID != nil && *d.Lines[i].ProductID == product.ID {
				d.Lines[i].Quantity = qty
				d.Lines[i].recompute(d.VATRate)
				return nil
			}
		}

		d.Lines = append(d.Lines, newLineFromProduct(*product, qty, d.VATRate))
		return nil
	})
}

func (s *Service) SetLineQuantity(ctx context.Context, id, lineID string, quantity int) (*Devis, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", ErrValidation)
	}
	return s.mutate(ctx, id, func(d *Devis) error {
		line := d.LineByID(lineID)
		if line == nil {
			return ErrLineNotFound
		}
		line.Quantity = quantity
		line.recompute(d.VATRate)
		return nil
	})
}

func (s *Service) SetLinePrice(ctx context.Context, id, lineID string, priceHT float64) (*Devis, error) {
	if priceHT < 0 || math.IsNaN(priceHT) || math.IsInf(priceHT, 0) {
		return nil, fmt.Errorf("%w: price must be a non-negative number", ErrValidation)
	}
	return s.mutate(ctx, id, func(d *Devis) error {
		line := d.LineByID(lineID)
		if line == nil {
			return ErrLineNotFound
		}
		line.UnitPriceHT = priceHT
		line.recompute(d.VATRate)
		return nil
	})
}

func (s *Service) RemoveLine(ctx context.Context, id, lineID string) (*Devis, error) {
	return s.mutate(ctx, id, func(d *Devis) error {
		kept := d.Lines[:0]
		found := false
		for _, line := range d.Lines {
			if line.ID == lineID {
				found = true
				continue
			}
			kept = append(kept, line)
		}
		if !found {
			return ErrLineNotFound
		}
		d.Lines = kept
		delete(d.CustomQuantities, lineID)
		return nil
	})
}

// SetVATRate switches the quote-wide rate and recomputes every base line.
// Add-on selections keep their product rate.
func (s *Service) SetVATRate(ctx context.Context, id string, rate float64) (*Devis, error) {
	if rate != 10 && rate != 20 {
		return nil, fmt.Errorf("%w: vat rate must be 10 or 20", ErrValidation)
	}
	return s.mutate(ctx, id, func(d *Devis) error {
		d.VATRate = rate
		for i := range d.Lines {
			d.Lines[i].recompute(rate)
		}
		return nil
	})
}

// SwitchKind changes the quantity policy in bulk: maintenance-upsell zeroes
// every line, installation restores quantity 1 on lines currently at zero.
func (s *Service) SwitchKind(ctx context.Context, id string, kind Kind) (*Devis, error) {
	if kind != KindInstallation && kind != KindMaintenanceUpsell {
		return nil, fmt.Errorf("%w: unknown devis kind", ErrValidation)
	}
	return s.mutate(ctx, id, func(d *Devis) error {
		if d.Kind == kind {
			return nil
		}
		d.Kind = kind
		switch kind {
		case KindMaintenanceUpsell:
			if d.Title == "" {
				d.Title = defaultUpsellTitle
			}
			for i := range d.Lines {
				d.Lines[i].Quantity = 0
				d.Lines[i].recompute(d.VATRate)
			}
		case KindInstallation:
			for i := range d.Lines {
				if d.Lines[i].Quantity == 0 {
					d.Lines[i].Quantity = 1
					d.Lines[i].recompute(d.VATRate)
				}
			}
		}
		return nil
	})
}

func (s *Service) GenerateIntro(ctx context.Context, id string, force bool) (*Devis, error) {
	if s.intro == nil {
		return nil, fmt.Errorf("%w: introduction generation is not configured", ErrValidation)
	}
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(d.Lines) == 0 {
		return nil, fmt.Errorf("%w: add at least one line before generating the introduction", ErrValidation)
	}
	if d.Intro.Mode == IntroManual && !force {
		return nil, ErrIntroManual
	}

	clientKind := intro.ClientResidential
	if d.VATRate == 20 {
		clientKind = intro.ClientProfessional
	}
	items := make([]intro.Item, 0, len(d.Lines))
	for _, line := range d.Lines {
		items = append(items, intro.Item{
			Name:             line.Name,
			DescriptionShort: line.Description,
		})
	}

	text, err := s.intro.Generate(ctx, intro.Request{ClientKind: clientKind, Items: items})
	if err != nil {
		s.logger.Warn("intro generation failed, using fallback", slog.Any("error", err))
		text = intro.FallbackText
	}

	return s.mutate(ctx, id, func(d *Devis) error {
		now := time.Now()
		d.Intro = IntroState{Mode: IntroAuto, Text: text, GeneratedAt: &now}
		return nil
	})
}

func (s *Service) Send(ctx context.Context, id string) (*Devis, error) {
	d, err := s.mutate(ctx, id, func(d *Devis) error {
		if d.Client.Email == "" {
			return fmt.Errorf("%w: client email is required to send the devis", ErrValidation)
		}
		d.Status = StatusSent
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.tasks != nil {
		if err := s.tasks.EnqueueDevisEmail(ctx, d.ID); err != nil {
			s.logger.Warn("enqueue devis email", slog.String("devis_id", d.ID), slog.Any("error", err))
		}
	}
	return d, nil
}

// Any later totals-affecting mutation clears the minted token.
func (s *Service) GeneratePaymentLink(ctx context.Context, id string) (*Devis, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.PaymentLinkToken != nil {
		return d, nil
	}
	token, err := shared.NewAccessToken()
	if err != nil {
		return nil, fmt.Errorf("generate payment token: %w", err)
	}
	if err := s.repo.SetPaymentLinkToken(ctx, id, token); err != nil {
		return nil, fmt.Errorf("store payment token: %w", err)
	}
	d.PaymentLinkToken = &token
	return d, nil
}

func (s *Service) Reject(ctx context.Context, id, reason string) (*Devis, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch d.Acceptance.Status {
	case AcceptanceAccepted:
		return nil, ErrAlreadyAccepted
	case AcceptanceRejected:
		return d, nil
	}

	now := time.Now()
	ok, err := s.repo.Reject(ctx, id, now, reason)
	if err != nil {
		return nil, fmt.Errorf("reject devis: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyAccepted
	}
	return s.repo.Get(ctx, id)
}

// mutate loads the aggregate, guards the pending state, applies fn, then
// recomputes totals and saves with a version compare-and-swap.
func (s *Service) mutate(ctx context.Context, id string, fn func(d *Devis) error) (*Devis, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Acceptance.Status != AcceptancePending {
		return nil, ErrLocked
	}

	before := d.Totals

	if err := fn(d); err != nil {
		return nil, err
	}

	s.recompute(d)

	if d.PaymentLinkToken != nil && !totalsEqual(before, d.Totals) {
		d.PaymentLinkToken = nil
	}

	d.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) recompute(d *Devis) {
	d.Totals = ComputeTotals(d.basePricedItems(false), nil)
}

func totalsEqual(a, b Totals) bool {
	const eps = 1e-9
	return math.Abs(a.TTC-b.TTC) < eps && math.Abs(a.HT-b.HT) < eps
}

func clientFromPayload(p ClientPayload) Client {
	return Client{
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Email:      p.Email,
		Phone:      normalizePhone(p.Phone),
		Address:    p.Address,
		PostalCode: p.PostalCode,
		City:       p.City,
		ERPID:      p.ERPID,
	}
}

func normalizePhone(raw string) string {
	if raw == "" {
		return ""
	}
	num, err := phonenumbers.Parse(raw, "FR")
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

func newLineFromProduct(p catalog.Product, quantity int, vatRate float64) Line {
	productID := p.ID
	line := Line{
		ID:           uuid.NewString(),
		ProductID:    &productID,
		Reference:    p.Reference,
		Name:         p.Name,
		Description:  p.DescriptionShort,
		Quantity:     quantity,
		UnitPriceHT:  p.PriceHT,
		ERPReference: p.ERPReference,
	}
	line.recompute(vatRate)
	return line
}

// AddOnItems projects the client's add-on selections into calculator inputs.
// Add-ons keep their product's own VAT rate, unlike base lines.
func AddOnItems(selections map[string]int, products map[string]catalog.Product) []PricedItem {
	ids := make([]string, 0, len(selections))
	for productID := range selections {
		ids = append(ids, productID)
	}
	sort.Strings(ids)

	items := make([]PricedItem, 0, len(ids))
	for _, productID := range ids {
		p, ok := products[productID]
		if !ok || selections[productID] <= 0 {
			continue
		}
		items = append(items, PricedItem{
			Quantity:    selections[productID],
			UnitPriceHT: p.PriceHT,
			VATRate:     p.DefaultVATRate,
		})
	}
	return items
}
