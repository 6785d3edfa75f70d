package catalog

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.List)
	r.Get("/products/optionable", h.ListOptionable)
	r.Get("/products/{id}", h.Show)
}
