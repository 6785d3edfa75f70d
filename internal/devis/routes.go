package devis

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Show)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)

		r.Post("/lines", h.AddLine)
		r.Put("/lines/{lineID}/quantity", h.SetLineQuantity)
		r.Put("/lines/{lineID}/price", h.SetLinePrice)
		r.Delete("/lines/{lineID}", h.RemoveLine)

		r.Put("/vat-rate", h.SetVATRate)
		r.Put("/kind", h.SwitchKind)

		r.Post("/intro/generate", h.GenerateIntro)
		r.Post("/send", h.Send)
		r.Post("/payment-link", h.GeneratePaymentLink)
		r.Post("/reject", h.Reject)

		r.Get("/pdf", h.PDF)
	})
}
