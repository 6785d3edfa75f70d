package devis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gardia-secu/gardia/internal/platform/httpx"
)

// PDFRenderer produces the client-facing PDF for a quote. The same renderer
// backs the email attachment so both surfaces show identical amounts.
type PDFRenderer interface {
	RenderPDF(ctx context.Context, d *Devis) ([]byte, error)
}

// Handler exposes the staff quote editor API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	renderer PDFRenderer
	validate *validator.Validate
}

// NewHandler constructs the staff devis handler.
func NewHandler(logger *slog.Logger, service *Service, renderer PDFRenderer) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		renderer: renderer,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateDevisRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	d, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.respondError(w, "create devis", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, "list devis", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"devis": all})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "get devis", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateDevisRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if req.Client != nil {
		if err := h.validate.Struct(req.Client); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
	}

	d, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.respondError(w, "update devis", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, "delete devis", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	var req AddLineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	d, err := h.service.AddOrUpdateLine(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.respondError(w, "add devis line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) SetLineQuantity(w http.ResponseWriter, r *http.Request) {
	var req SetQuantityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}

	d, err := h.service.SetLineQuantity(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "lineID"), req.Quantity)
	if err != nil {
		h.respondError(w, "set line quantity", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) SetLinePrice(w http.ResponseWriter, r *http.Request) {
	var req SetPriceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}

	d, err := h.service.SetLinePrice(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "lineID"), req.PriceHT)
	if err != nil {
		h.respondError(w, "set line price", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.RemoveLine(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "lineID"))
	if err != nil {
		h.respondError(w, "remove devis line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) SetVATRate(w http.ResponseWriter, r *http.Request) {
	var req SetVATRateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	d, err := h.service.SetVATRate(r.Context(), chi.URLParam(r, "id"), req.Rate)
	if err != nil {
		h.respondError(w, "set vat rate", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) SwitchKind(w http.ResponseWriter, r *http.Request) {
	var req SwitchKindRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	d, err := h.service.SwitchKind(r.Context(), chi.URLParam(r, "id"), req.Kind)
	if err != nil {
		h.respondError(w, "switch devis kind", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) GenerateIntro(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	d, err := h.service.GenerateIntro(r.Context(), chi.URLParam(r, "id"), force)
	if err != nil {
		if errors.Is(err, ErrIntroManual) {
			httpx.Problem(w, http.StatusConflict, "Conflict",
				"l'introduction a été modifiée manuellement, utilisez force=true pour la régénérer")
			return
		}
		h.respondError(w, "generate intro", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Send(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "send devis", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) GeneratePaymentLink(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.GeneratePaymentLink(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "generate payment link", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}

	d, err := h.service.Reject(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.respondError(w, "reject devis", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) PDF(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get devis for pdf", err)
		return
	}

	pdf, err := h.renderer.RenderPDF(r.Context(), d)
	if err != nil {
		h.logger.Error("render devis pdf failed", slog.String("devis_id", id), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Render Failed", "PDF generation is unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="devis-%s.pdf"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrLineNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrVersionConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", "le devis a été modifié entre-temps, rechargez-le")
	case errors.Is(err, ErrAlreadyAccepted):
		httpx.Problem(w, http.StatusConflict, "Conflict", "le devis a déjà été accepté")
	case errors.Is(err, ErrLocked):
		httpx.Problem(w, http.StatusConflict, "Conflict", "le devis n'est plus modifiable")
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
