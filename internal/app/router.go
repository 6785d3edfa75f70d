package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/gardia-secu/gardia/internal/catalog"
	"github.com/gardia-secu/gardia/internal/devis"
	"github.com/gardia-secu/gardia/internal/notify"
	"github.com/gardia-secu/gardia/internal/publicview"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	CatalogHandler *catalog.Handler
	DevisHandler   *devis.Handler
	PublicHandler  *publicview.Handler
	NotifyHandler  *notify.Handler
}

// NewRouter constructs the chi.Router with Gardia defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Internal editor surface: staff identity forwarded by the auth gateway.
	r.Group(func(r chi.Router) {
		r.Use(RequireStaff)
		r.Route("/catalog", params.CatalogHandler.MountRoutes)
		r.Route("/devis", params.DevisHandler.MountRoutes)
		r.Route("/notifications", params.NotifyHandler.MountRoutes)
	})

	// Public viewer surface: bearer token only, rate limited per client IP.
	r.Group(func(r chi.Router) {
		limit := 60
		if params.Config != nil && params.Config.PublicRateLimit > 0 {
			limit = params.Config.PublicRateLimit
		}
		r.Use(httprate.LimitByIP(limit, time.Minute))
		r.Route("/p", params.PublicHandler.MountRoutes)
	})

	return r
}
