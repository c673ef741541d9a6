package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/smmpanel/panelsync/internal/middlewares"
)

// router for http services
func (bs *BackendServer) router() chi.Router {
	r := chi.NewRouter()

	r.Use(middlewares.VerifyMiddleware(bs.DB))

	r.Route("/api/user/", func(r chi.Router) {
		r.Post("/register", bs.registerHandler)
		r.Post("/login", bs.loginHandler)
	})

	r.Route("/api/orders", func(r chi.Router) {
		r.Post("/", bs.createOrderHandler)
		r.Get("/", bs.getOrdersHandler)
		r.Post("/sync", bs.syncOrdersHandler)
		r.Post("/{id}/sync", bs.syncOrderHandler)
	})

	r.Route("/api/internal", func(r chi.Router) {
		r.Use(httprate.Limit(
			2,
			1*time.Minute,
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "Sync already running, try again later\n", http.StatusTooManyRequests)
			}),
		))
		r.Post("/sync", bs.scheduledSyncHandler)
	})

	r.Route("/api/admin/providers", func(r chi.Router) {
		r.Get("/{id}/balance", bs.providerBalanceHandler)
		r.Get("/{id}/services", bs.providerServicesHandler)
	})

	return r
}
