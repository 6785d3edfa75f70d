package devis

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/gardia-secu/gardia/internal/catalog"
	"github.com/gardia-secu/gardia/internal/notify"
)

type AcceptanceRecord struct {
	At            time.Time
	SignatoryName string
	TermsAccepted bool
	SignaturePath string
	ClientIP      string
	AddOns        []AcceptedAddOn
	Totals        Totals
}

// Accept runs the one-way pending→accepted transition for the quote behind
// the given token. The commit is a single conditional write on the acceptance
// status; post-commit side effects are best-effort and surface as warnings.
func (s *Service) Accept(ctx context.Context, token string, req AcceptRequest) (*AcceptResult, error) {
	d, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.SignatoryName) == "" {
		return nil, fmt.Errorf("%w: signatory name is required", ErrValidation)
	}
	if !req.TermsAccepted {
		return nil, fmt.Errorf("%w: terms must be accepted", ErrValidation)
	}
	switch d.Acceptance.Status {
	case AcceptanceAccepted:
		return nil, ErrAlreadyAccepted
	case AcceptanceRejected:
		return nil, ErrLocked
	}

	addOnProducts, err := s.addOnProducts(ctx, d.SelectedAddOns)
	if err != nil {
		return nil, fmt.Errorf("load add-on products: %w", err)
	}
	acceptedAddOns := acceptedAddOnsFrom(d.SelectedAddOns, addOnProducts)
	finalTotals := ComputeTotals(d.basePricedItems(true), AddOnItems(d.SelectedAddOns, addOnProducts))

	var warnings []string

	signaturePath := ""
	if len(req.SignaturePNG) > 0 && s.signatures != nil {
		path, err := s.signatures.PutSignature(ctx, d.ID, req.SignaturePNG)
		if err != nil {
			s.logger.Warn("store signature image", slog.String("devis_id", d.ID), slog.Any("error", err))
			warnings = append(warnings, "la signature n'a pas pu être archivée")
		} else {
			signaturePath = path
		}
	}

	record := AcceptanceRecord{
		At:            time.Now(),
		SignatoryName: strings.TrimSpace(req.SignatoryName),
		TermsAccepted: true,
		SignaturePath: signaturePath,
		ClientIP:      req.ClientIP,
		AddOns:        acceptedAddOns,
		Totals:        finalTotals,
	}

	committed, err := s.repo.Accept(ctx, d.ID, record)
	if err != nil {
		return nil, fmt.Errorf("commit acceptance: %w", err)
	}
	if !committed {
		return nil, ErrAlreadyAccepted
	}

	warnings = append(warnings, s.acceptanceSideEffects(ctx, d, record)...)

	accepted, err := s.repo.Get(ctx, d.ID)
	if err != nil {
		s.logger.Warn("reload accepted devis", slog.String("devis_id", d.ID), slog.Any("error", err))
		accepted = d
	}

	return &AcceptResult{Devis: accepted, Warnings: warnings}, nil
}

// acceptanceSideEffects runs the post-commit notifications; failures become
// warnings.
func (s *Service) acceptanceSideEffects(ctx context.Context, d *Devis, record AcceptanceRecord) []string {
	var warnings []string

	if s.notifier != nil {
		hasOptions := len(record.AddOns) > 0
		message := fmt.Sprintf("Le devis %q a été accepté par %s", d.Title, d.Client.FullName())
		if hasOptions {
			message += " avec options"
		}
		err := s.notifier.Record(ctx, notify.Notification{
			Type:    notify.TypeDevisAccepted,
			DevisID: d.ID,
			Title:   "Nouveau devis accepté - " + d.Client.FullName(),
			Message: message,
			Metadata: map[string]any{
				"title":       d.Title,
				"ttc":         record.Totals.TTC,
				"deposit":     record.Totals.Deposit,
				"has_options": hasOptions,
				"accepted_at": record.At,
			},
		})
		if err != nil {
			s.logger.Error("record acceptance notification", slog.String("devis_id", d.ID), slog.Any("error", err))
			warnings = append(warnings, "la notification interne n'a pas pu être enregistrée")
		}
	}

	if s.tasks != nil {
		if err := s.tasks.EnqueueAcceptanceEmail(ctx, d.ID); err != nil {
			s.logger.Error("enqueue acceptance email", slog.String("devis_id", d.ID), slog.Any("error", err))
			warnings = append(warnings, "devis accepté, mais l'envoi des emails de confirmation a échoué ; nous vous contacterons prochainement")
		}
		if d.Client.ERPID != nil {
			if err := s.tasks.EnqueueERPSync(ctx, d.ID); err != nil {
				s.logger.Warn("enqueue erp sync", slog.String("devis_id", d.ID), slog.Any("error", err))
			}
		}
	}

	return warnings
}

func (s *Service) addOnProducts(ctx context.Context, selections map[string]int) (map[string]catalog.Product, error) {
	products := make(map[string]catalog.Product, len(selections))
	for productID := range selections {
		p, err := s.products.Get(ctx, productID)
		if err != nil {
			return nil, err
		}
		products[productID] = *p
	}
	return products, nil
}

func acceptedAddOnsFrom(selections map[string]int, products map[string]catalog.Product) []AcceptedAddOn {
	ids := make([]string, 0, len(selections))
	for productID := range selections {
		ids = append(ids, productID)
	}
	sort.Strings(ids)

	addOns := make([]AcceptedAddOn, 0, len(ids))
	for _, productID := range ids {
		qty := selections[productID]
		p, ok := products[productID]
		if !ok || qty <= 0 {
			continue
		}
		addOns = append(addOns, AcceptedAddOn{
			ProductID:   productID,
			Reference:   p.Reference,
			Name:        p.Name,
			Quantity:    qty,
			UnitPriceHT: p.PriceHT,
			VATRate:     p.DefaultVATRate,
		})
	}
	return addOns
}
