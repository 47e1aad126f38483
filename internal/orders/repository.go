// Package orders stores order records in the document store.
package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/docstore"
	"github.com/fjod/storefront/internal/domain"
)

const collection = "orders"

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrInvalidStatus = errors.New("invalid order status")
)

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context) ([]*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, note *string) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id string) error
}

type Repository struct {
	store  docstore.Store
	logger *zap.Logger
}

func NewRepository(store docstore.Store, logger *zap.Logger) *Repository {
	return &Repository{store: store, logger: logger}
}

// CreateOrder assigns an id when the order has none.
func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if err := order.Validate(); err != nil {
		return err
	}
	if err := r.store.Set(ctx, collection, order.ID, order); err != nil {
		return fmt.Errorf("failed to create order %s: %w", order.ID, err)
	}
	return nil
}

func (r *Repository) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	snap, err := r.store.Get(ctx, collection, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	if !snap.Exists() {
		return nil, ErrOrderNotFound
	}
	return decode(snap)
}

// ListOrders returns every order, newest first. Records that fail validation
// are logged and left out.
func (r *Repository) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	snaps, err := r.store.List(ctx, collection, "created_at", true)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	orders := make([]*domain.Order, 0, len(snaps))
	for _, snap := range snaps {
		o, err := decode(snap)
		if err != nil {
			r.logger.Warn("skipping malformed order", zap.String("id", snap.ID), zap.Error(err))
			continue
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (r *Repository) ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	all, err := r.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	var orders []*domain.Order
	for _, o := range all {
		if o.UserID == userID {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

// UpdateStatus sets the status and, when note is not nil, the note. An
// existing note is kept otherwise.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, note *string) (*domain.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	fields := map[string]any{"status": status}
	if note != nil {
		fields["note"] = *note
	}
	err := r.store.Update(ctx, collection, id, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update order %s: %w", id, err)
	}
	return r.GetOrder(ctx, id)
}

func (r *Repository) DeleteOrder(ctx context.Context, id string) error {
	err := r.store.Delete(ctx, collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete order %s: %w", id, err)
	}
	return nil
}

func decode(snap *docstore.Snapshot) (*domain.Order, error) {
	var o domain.Order
	if err := snap.Decode(&o); err != nil {
		return nil, err
	}
	o.ID = snap.ID
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return &o, nil
}
