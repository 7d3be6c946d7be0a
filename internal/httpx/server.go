package httpx

import (
	"net/http"
	"time"

	"storefront-cart/internal/logger"
	"storefront-cart/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *CartHandler, limiter *middleware.RateLimiter, currentUser middleware.UserFunc) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, chimw.Recoverer)
	r.Use(logger.RequestIDMiddleware)
	r.Use(middleware.SessionUser(currentUser))
	r.Use(middleware.LoggingMiddleware)
	if limiter != nil {
		r.Use(limiter.Middleware)
	}
	r.Use(chimw.Timeout(15 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	h.Register(r)
	return r
}
