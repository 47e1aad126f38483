// Package http exposes the storefront over a JSON API.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/health"
	"github.com/fjod/storefront/internal/storefront"
)

const maxRequestBodySize = 1 << 20 // 1MB

type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

type RouterConfig struct {
	Products       catalog.RepoInterface
	Registry       *storefront.Registry
	Checkout       *checkout.Service
	Health         HealthChecker
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger

	products := NewProductHandler(cfg.Products, timeout, logger)
	carts := NewCartHandler(cfg.Products, timeout, logger)
	sessions := NewSessionHandler(timeout, logger)
	prefs := NewPreferencesHandler(logger)
	checkouts := NewCheckoutHandler(cfg.Checkout, timeout, logger)
	orders := NewOrdersHandler(cfg.Checkout, timeout, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout + 5*time.Second))
	r.Use(middleware.RequestSize(maxRequestBodySize))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		report := cfg.Health.Check(r.Context())
		status := http.StatusOK
		if report.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		respondJSON(w, status, report)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", products.List)
		r.Get("/products/{id}", products.Get)

		r.Group(func(r chi.Router) {
			r.Use(ClientMiddleware(cfg.Registry, logger))

			r.Get("/cart", carts.GetCart)
			r.Post("/cart/items", carts.AddItem)
			r.Post("/cart/items/{id}/increment", carts.Increment)
			r.Post("/cart/items/{id}/decrement", carts.Decrement)
			r.Delete("/cart", carts.ClearCart)

			r.Get("/session", sessions.GetSession)
			r.Post("/session/sign-in", sessions.SignIn)
			r.Post("/session/sign-out", sessions.SignOut)

			r.Get("/preferences/theme", prefs.GetTheme)
			r.Post("/preferences/theme/toggle", prefs.ToggleTheme)

			r.Post("/checkout", checkouts.PlaceOrder)

			r.Route("/admin/orders", func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Get("/", orders.List)
				r.Patch("/{id}", orders.UpdateStatus)
				r.Delete("/{id}", orders.Delete)
			})
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
