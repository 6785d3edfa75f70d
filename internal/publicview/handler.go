package publicview

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"log/slog"

	"github.com/gardia-secu/gardia/internal/devis"
	"github.com/gardia-secu/gardia/internal/platform/httpx"
)

// PDFRenderer mirrors the staff-side renderer so the client can download the
// same document the email carries.
type PDFRenderer interface {
	RenderPDF(ctx context.Context, d *devis.Devis) ([]byte, error)
}

// Handler serves the token-scoped public endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	renderer PDFRenderer
	validate *validator.Validate
}

// NewHandler constructs the public viewer handler.
func NewHandler(logger *slog.Logger, service *Service, renderer PDFRenderer) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		renderer: renderer,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

type adjustQuantityRequest struct {
	Delta int `json:"delta" validate:"required"`
}

type selectAddOnRequest struct {
	Delta int `json:"delta" validate:"required"`
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.View(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.respondError(w, "public view", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) AdjustLineQuantity(w http.ResponseWriter, r *http.Request) {
	var req adjustQuantityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	view, err := h.service.AdjustLineQuantity(r.Context(), chi.URLParam(r, "token"), chi.URLParam(r, "lineID"), req.Delta)
	if err != nil {
		h.respondError(w, "adjust line quantity", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) SelectAddOn(w http.ResponseWriter, r *http.Request) {
	var req selectAddOnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	view, err := h.service.SelectAddOn(r.Context(), chi.URLParam(r, "token"), chi.URLParam(r, "productID"), req.Delta)
	if err != nil {
		h.respondError(w, "select add-on", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	var req devis.AcceptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	req.ClientIP = clientIP(r)

	result, err := h.service.Accept(r.Context(), chi.URLParam(r, "token"), req)
	if err != nil {
		h.respondError(w, "accept devis", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) PaymentForm(w http.ResponseWriter, r *http.Request) {
	form, err := h.service.PaymentForm(r.Context(), chi.URLParam(r, "paymentToken"))
	if err != nil {
		h.respondError(w, "payment form", err)
		return
	}
	httpx.JSON(w, http.StatusOK, form)
}

func (h *Handler) PDF(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.View(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.respondError(w, "public view for pdf", err)
		return
	}

	pdf, err := h.renderer.RenderPDF(r.Context(), view.Devis)
	if err != nil {
		h.logger.Error("render public pdf failed", slog.String("devis_id", view.Devis.ID), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Render Failed", "PDF generation is unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="devis-%s.pdf"`, view.Devis.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// respondError keeps the public surface uniform: a bad token, a deleted quote
// and a missing line all answer 404 with no further detail.
func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, devis.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "devis introuvable")
	case errors.Is(err, devis.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, devis.ErrAlreadyAccepted):
		httpx.Problem(w, http.StatusConflict, "Conflict", "le devis a déjà été accepté")
	case errors.Is(err, devis.ErrLocked):
		httpx.Problem(w, http.StatusConflict, "Conflict", "le devis n'est plus modifiable")
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
