package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/gardia-secu/gardia/internal/devis"
	"github.com/gardia-secu/gardia/internal/erp"
	"github.com/gardia-secu/gardia/internal/mailer"
)

// ERPPusher pushes an accepted quote and returns its ERP identity.
type ERPPusher interface {
	PushDevis(ctx context.Context, d *devis.Devis) (*erp.PushResult, error)
}

// Handlers executes the quote background tasks.
type Handlers struct {
	devis         *devis.Service
	repo          devis.Repository
	renderer      devis.PDFRenderer
	mailer        *mailer.Mailer
	erp           ERPPusher
	companyEmail  string
	publicBaseURL string
	logger        *slog.Logger
}

// HandlersParams collects the handler dependencies. ERP may be nil when no
// ERP is configured; the sync task then succeeds as a no-op.
type HandlersParams struct {
	Devis         *devis.Service
	Repo          devis.Repository
	Renderer      devis.PDFRenderer
	Mailer        *mailer.Mailer
	ERP           ERPPusher
	CompanyEmail  string
	PublicBaseURL string
	Logger        *slog.Logger
}

// NewHandlers constructs the task handlers.
func NewHandlers(p HandlersParams) *Handlers {
	return &Handlers{
		devis:         p.Devis,
		repo:          p.Repo,
		renderer:      p.Renderer,
		mailer:        p.Mailer,
		erp:           p.ERP,
		companyEmail:  p.CompanyEmail,
		publicBaseURL: p.PublicBaseURL,
		logger:        p.Logger,
	}
}

func (h *Handlers) loadDevis(ctx context.Context, t *asynq.Task) (*devis.Devis, error) {
	var payload DevisTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", asynq.SkipRetry)
	}
	d, err := h.devis.Get(ctx, payload.DevisID)
	if err != nil {
		// A deleted quote makes the task pointless, not failed.
		return nil, fmt.Errorf("devis %s: %w", payload.DevisID, asynq.SkipRetry)
	}
	return d, nil
}

// HandleAcceptanceEmail sends the post-acceptance pair: the confirmation to
// the client and the internal alert to the company inbox. The PDF is rendered
// once and attached to both; the sends run concurrently and a failure on
// either side fails the task so Asynq retries it.
func (h *Handlers) HandleAcceptanceEmail(ctx context.Context, t *asynq.Task) error {
	d, err := h.loadDevis(ctx, t)
	if err != nil {
		return err
	}
	if !d.IsAccepted() {
		return fmt.Errorf("devis %s is not accepted: %w", d.ID, asynq.SkipRetry)
	}

	pdf, err := h.renderer.RenderPDF(ctx, d)
	if err != nil {
		return fmt.Errorf("render acceptance pdf: %w", err)
	}
	attachment := mailer.Attachment{FileName: "devis-" + d.ID + ".pdf", Content: pdf}

	g, gctx := errgroup.WithContext(ctx)
	if d.Client.Email != "" {
		g.Go(func() error {
			err := h.mailer.Send(gctx, mailer.Message{
				To:      d.Client.Email,
				Subject: "Confirmation de votre devis accepté",
				HTML: fmt.Sprintf(
					"<p>Bonjour %s,</p><p>Nous vous confirmons l'acceptation de votre devis. "+
						"Vous trouverez en pièce jointe le document signé récapitulant votre commande.</p>"+
						"<p>Un acompte de 40 %% vous sera demandé à la commande.</p>"+
						"<p>L'équipe Gardia Sécurité</p>",
					d.Client.FullName()),
				Attachments: []mailer.Attachment{attachment},
			})
			if err != nil {
				return fmt.Errorf("client email: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		err := h.mailer.Send(gctx, mailer.Message{
			To:      h.companyEmail,
			Subject: "Devis accepté - " + d.Client.FullName(),
			HTML: fmt.Sprintf(
				"<p>Le devis %q a été accepté par %s le %s.</p><p>Total TTC : %.2f € ; Acompte : %.2f €</p>",
				d.Title, d.Acceptance.SignatoryName,
				d.Acceptance.At.Format("02/01/2006 15:04"),
				d.Totals.TTC, d.Totals.Deposit),
			Attachments: []mailer.Attachment{attachment},
		})
		if err != nil {
			return fmt.Errorf("company email: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		h.logger.Error("acceptance emails failed", slog.String("devis_id", d.ID), slog.Any("error", err))
		return err
	}
	return nil
}

// HandleDevisEmail sends the quote to the client with the PDF attached and
// the public viewer link in the body.
func (h *Handlers) HandleDevisEmail(ctx context.Context, t *asynq.Task) error {
	d, err := h.loadDevis(ctx, t)
	if err != nil {
		return err
	}
	if d.Client.Email == "" {
		return fmt.Errorf("devis %s has no client email: %w", d.ID, asynq.SkipRetry)
	}

	pdf, err := h.renderer.RenderPDF(ctx, d)
	if err != nil {
		return fmt.Errorf("render devis pdf: %w", err)
	}

	publicURL := h.publicBaseURL + "/p/" + d.AccessToken
	err = h.mailer.Send(ctx, mailer.Message{
		To:      d.Client.Email,
		Subject: "Votre devis Gardia Sécurité",
		HTML: fmt.Sprintf(
			"<p>Bonjour %s,</p><p>Veuillez trouver ci-joint votre devis. "+
				"Vous pouvez également le consulter, l'ajuster et l'accepter en ligne :</p>"+
				"<p><a href=%q>%s</a></p><p>L'équipe Gardia Sécurité</p>",
			d.Client.FullName(), publicURL, publicURL),
		Attachments: []mailer.Attachment{{FileName: "devis-" + d.ID + ".pdf", Content: pdf}},
	})
	if err != nil {
		h.logger.Error("devis email failed", slog.String("devis_id", d.ID), slog.Any("error", err))
		return err
	}
	return nil
}

// HandleERPSync pushes the accepted quote into the ERP and records the
// assigned number. Re-running the task after a partial failure is safe: the
// ERP deduplicates on our quote id.
func (h *Handlers) HandleERPSync(ctx context.Context, t *asynq.Task) error {
	if h.erp == nil {
		return nil
	}
	d, err := h.loadDevis(ctx, t)
	if err != nil {
		return err
	}
	if !d.IsAccepted() {
		return fmt.Errorf("devis %s is not accepted: %w", d.ID, asynq.SkipRetry)
	}
	if d.ERPDevisID != nil {
		return nil
	}

	identity, err := h.erp.PushDevis(ctx, d)
	if err != nil {
		h.logger.Error("erp sync failed", slog.String("devis_id", d.ID), slog.Any("error", err))
		return err
	}
	if err := h.repo.SetERPResult(ctx, d.ID, identity.Number, identity.DevisID); err != nil {
		return fmt.Errorf("record erp result: %w", err)
	}
	return nil
}
