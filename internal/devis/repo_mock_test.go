package devis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gardia-secu/gardia/internal/catalog"
	"github.com/gardia-secu/gardia/internal/intro"
)

// memRepo is an in-memory Repository with the same conditional-write
// semantics as the postgres implementation.
type memRepo struct {
	mu sync.Mutex
	m  map[string]*Devis
}

func newMemRepo() *memRepo {
	return &memRepo{m: make(map[string]*Devis)}
}

func cloneDevis(d *Devis) *Devis {
	raw, _ := json.Marshal(d)
	var out Devis
	_ = json.Unmarshal(raw, &out)
	return &out
}

func (r *memRepo) Create(_ context.Context, d *Devis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d.Version = 1
	r.m[d.ID] = cloneDevis(d)
	return nil
}

func (r *memRepo) Update(_ context.Context, d *Devis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.m[d.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != d.Version {
		return ErrVersionConflict
	}
	d.Version++
	stored := cloneDevis(d)
	stored.CustomQuantities = cur.CustomQuantities
	stored.SelectedAddOns = cur.SelectedAddOns
	r.m[d.ID] = stored
	return nil
}

func (r *memRepo) Get(_ context.Context, id string) (*Devis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.m[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDevis(d), nil
}

func (r *memRepo) GetByToken(_ context.Context, token string) (*Devis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.m {
		if d.AccessToken == token {
			return cloneDevis(d), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo) GetByPaymentToken(_ context.Context, token string) (*Devis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.m {
		if d.PaymentLinkToken != nil && *d.PaymentLinkToken == token {
			return cloneDevis(d), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo) List(_ context.Context) ([]Devis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []Devis
	for _, d := range r.m {
		all = append(all, *cloneDevis(d))
	}
	return all, nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[id]; !ok {
		return ErrNotFound
	}
	delete(r.m, id)
	return nil
}

func (r *memRepo) UpdateCustomQuantities(_ context.Context, id string, overrides map[string]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.m[id]
	if !ok || d.Acceptance.Status != AcceptancePending {
		return ErrLocked
	}
	if len(overrides) == 0 {
		d.CustomQuantities = nil
	} else {
		d.CustomQuantities = overrides
	}
	d.PaymentLinkToken = nil
	d.Version++
	return nil
}

func (r *memRepo) UpdateSelectedAddOns(_ context.Context, id string, selections map[string]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.m[id]
	if !ok || d.Acceptance.Status != AcceptancePending {
		return ErrLocked
	}
	if len(selections) == 0 {
		d.SelectedAddOns = nil
	} else {
		d.SelectedAddOns = selections
	}
	d.PaymentLinkToken = nil
	d.Version++
	return nil
}

func (r *memRepo) SetPaymentLinkToken(_ context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.m[id]
	if !ok {
		return ErrNotFound
	}
	d.PaymentLinkToken = &token
	return nil
}

func (r *memRepo) Accept(_ context.Context, id string, record AcceptanceRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.m[id]
	if !ok || d.Acceptance.Status != AcceptancePending {
		return false, nil
	}
	at := record.At
	d.Acceptance = Acceptance{
		Status:        AcceptanceAccepted,
		At:            &at,
		SignatoryName: record.SignatoryName,
		TermsAccepted: record.TermsAccepted,
		SignaturePath: record.SignaturePath,
		ClientIP:      record.ClientIP,
	}
	d.AcceptedAddOns = record.AddOns
	d.Totals = record.Totals
	d.Status = StatusSigned
	d.Version++
	return true, nil
}

func (r *memRepo) Reject(_ context.Context, id string, at time.Time, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.m[id]
	if !ok || d.Acceptance.Status != AcceptancePending {
		return false, nil
	}
	d.Acceptance.Status = AcceptanceRejected
	d.Acceptance.RejectedAt = &at
	d.Acceptance.RejectReason = reason
	d.Version++
	return true, nil
}

func (r *memRepo) SetERPResult(_ context.Context, id, number string, erpDevisID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.m[id]
	if !ok {
		return ErrNotFound
	}
	d.Number = number
	d.ERPDevisID = &erpDevisID
	return nil
}

// stubProducts is a fixed catalog for tests.
type stubProducts struct {
	byID map[string]catalog.Product
}

func newStubProducts(products ...catalog.Product) *stubProducts {
	byID := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &stubProducts{byID: byID}
}

func (s *stubProducts) Get(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func (s *stubProducts) ListOptionable(_ context.Context) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range s.byID {
		if p.Optionable && p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubProducts) ListUpsell(_ context.Context) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range s.byID {
		if p.Upsell && p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

// stubIntro fails on demand so the fallback path is exercised.
type stubIntro struct {
	text string
	err  error
}

func (s stubIntro) Generate(context.Context, intro.Request) (string, error) {
	return s.text, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func alarmProduct() catalog.Product {
	return catalog.Product{
		ID:             "prod-alarm",
		Reference:      "AL-100",
		Name:           "Centrale d'alarme",
		PriceHT:        100,
		DefaultVATRate: 10,
		IsActive:       true,
	}
}

func cameraProduct() catalog.Product {
	return catalog.Product{
		ID:             "prod-camera",
		Reference:      "CAM-50",
		Name:           "Caméra extérieure",
		PriceHT:        50,
		DefaultVATRate: 10,
		IsActive:       true,
		Optionable:     true,
		Upsell:         true,
	}
}

func newTestService(t *testing.T, products ...catalog.Product) (*Service, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	svc := NewService(ServiceParams{
		Repo:     repo,
		Products: newStubProducts(products...),
		Intro:    stubIntro{err: errors.New("model unavailable")},
		Logger:   testLogger(),
	})
	return svc, repo
}

func mustCreate(t *testing.T, svc *Service, req CreateDevisRequest) *Devis {
	t.Helper()
	d, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	return d
}
