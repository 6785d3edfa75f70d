package publicview

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/pay/{paymentToken}", h.PaymentForm)

	r.Route("/{token}", func(r chi.Router) {
		r.Get("/", h.Show)
		r.Get("/pdf", h.PDF)
		r.Post("/lines/{lineID}/quantity", h.AdjustLineQuantity)
		r.Post("/add-ons/{productID}", h.SelectAddOn)
		r.Post("/accept", h.Accept)
	})
}
