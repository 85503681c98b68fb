package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/pickup-storefront/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware витрины.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Use(h.sessions.Middleware)

		r.Get("/cart", h.GetCart)
		r.Post("/cart/items", h.AddItem)
		r.Post("/cart/items/{index}/increment", h.IncrementItem)
		r.Post("/cart/items/{index}/decrement", h.DecrementItem)
		r.Delete("/cart/items/{index}", h.RemoveItem)

		r.Get("/availability", h.GetAvailability)
		r.Get("/availability/{date}", h.GetDateAvailability)

		r.Get("/form", h.GetForm)
		r.Put("/form", h.UpdateForm)
		r.Get("/form/valid", h.GetFormValid)

		r.Post("/checkout", h.Checkout)
		r.Post("/capacity/refresh", h.RefreshCapacity)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
