package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
)

type CartHandler struct {
	products catalog.RepoInterface
	timeout  time.Duration
	logger   *zap.Logger
}

func NewCartHandler(products catalog.RepoInterface, timeout time.Duration, logger *zap.Logger) *CartHandler {
	return &CartHandler{products: products, timeout: timeout, logger: logger}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
}

type CartResponse struct {
	Items         []domain.CartLine `json:"items"`
	TotalPrice    float64           `json:"total_price"`
	TotalQuantity int               `json:"total_quantity"`
}

func cartResponse(c *cart.Aggregate) CartResponse {
	lines := c.Lines()
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return CartResponse{Items: lines, TotalPrice: c.TotalPrice(), TotalQuantity: c.TotalQuantity()}
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, cartResponse(clientFromContext(r.Context()).Cart))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}

	p, err := h.products.GetProduct(ctx, req.ProductID)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	c := clientFromContext(r.Context()).Cart
	if err := c.Add(ctx, *p); err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, cartResponse(c))
}

func (h *CartHandler) Increment(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, (*cart.Aggregate).Increment)
}

func (h *CartHandler) Decrement(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, (*cart.Aggregate).Decrement)
}

func (h *CartHandler) adjust(w http.ResponseWriter, r *http.Request, op func(*cart.Aggregate, context.Context, int64) error) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := productIDParam(w, r)
	if !ok {
		return
	}
	c := clientFromContext(r.Context()).Cart
	if err := op(c, ctx, id); err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, cartResponse(c))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	c := clientFromContext(r.Context()).Cart
	if err := c.Clear(ctx); err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, cartResponse(c))
}
