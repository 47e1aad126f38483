package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/storefront"
)

const ClientIDHeader = "X-Client-ID"

type contextKey string

const clientKey contextKey = "storefront_client"

// ClientMiddleware resolves the X-Client-ID header to the client's state.
func ClientMiddleware(registry *storefront.Registry, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(ClientIDHeader)
			if id == "" {
				respondError(w, http.StatusBadRequest, "missing_client_id", "X-Client-ID header is required")
				return
			}
			c, err := registry.Get(r.Context(), id)
			if err != nil {
				handleError(w, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientKey, c)))
		})
	}
}

func clientFromContext(ctx context.Context) *storefront.Client {
	c, _ := ctx.Value(clientKey).(*storefront.Client)
	return c
}

// RequireAdmin lets through only clients whose session has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := clientFromContext(r.Context())
		if c == nil || !c.Session.IsAuthenticated() {
			respondError(w, http.StatusUnauthorized, "unauthorized", "sign in required")
			return
		}
		if !c.Session.IsAdmin() {
			respondError(w, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
