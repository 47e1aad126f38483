package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/checkout"
)

type CheckoutHandler struct {
	service *checkout.Service
	timeout time.Duration
	logger  *zap.Logger
}

func NewCheckoutHandler(service *checkout.Service, timeout time.Duration, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{service: service, timeout: timeout, logger: logger}
}

func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var in checkout.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	c := clientFromContext(r.Context())
	userID := ""
	if snap := c.Session.Snapshot(); snap != nil {
		userID = snap.UID
	}

	order, err := h.service.PlaceOrder(ctx, userID, c.Cart, in)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}
