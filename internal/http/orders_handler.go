package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/domain"
)

// OrdersHandler serves the admin order panel.
type OrdersHandler struct {
	service *checkout.Service
	timeout time.Duration
	logger  *zap.Logger
}

func NewOrdersHandler(service *checkout.Service, timeout time.Duration, logger *zap.Logger) *OrdersHandler {
	return &OrdersHandler{service: service, timeout: timeout, logger: logger}
}

type OrdersResponse struct {
	Orders []*domain.Order `json:"orders"`
}

type UpdateStatusRequestDTO struct {
	Status domain.OrderStatus `json:"status"`
	Note   *string            `json:"note,omitempty"`
}

func (h *OrdersHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	list, err := h.service.ListOrders(ctx)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []*domain.Order{}
	}
	respondJSON(w, http.StatusOK, OrdersResponse{Orders: list})
}

func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateStatusRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, err := h.service.UpdateStatus(ctx, chi.URLParam(r, "id"), req.Status, req.Note)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.service.DeleteOrder(ctx, chi.URLParam(r, "id")); err != nil {
		handleError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
