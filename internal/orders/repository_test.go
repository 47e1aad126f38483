package orders_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/docstore"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/orders"
)

func newOrder(userID string, createdAt time.Time) *domain.Order {
	return &domain.Order{
		UserID:     userID,
		Items:      []domain.CartLine{{ProductID: 1, UnitPrice: 100, Quantity: 2}},
		TotalPrice: 200,
		Info: domain.OrderInfo{
			Recipient: domain.Recipient{Name: "Ada", Phone: "0912345678"},
			Delivery:  domain.Delivery{Method: "store_pickup", StoreName: "Main St", StoreAddress: "1 Main St"},
			Payment:   domain.Payment{Method: "cash_on_delivery"},
		},
		Status:    domain.OrderStatusPending,
		CreatedAt: createdAt,
	}
}

func TestCreateAndGetOrder(t *testing.T) {
	ctx := context.Background()
	repo := orders.NewRepository(docstore.NewMemoryStore(), zap.NewNop())

	o := newOrder("u1", time.Now().UTC().Truncate(time.Millisecond))
	require.NoError(t, repo.CreateOrder(ctx, o))
	require.NotEmpty(t, o.ID)

	got, err := repo.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.UserID, got.UserID)
	assert.Equal(t, o.Items, got.Items)
	assert.Equal(t, o.Info, got.Info)
	assert.True(t, o.CreatedAt.Equal(got.CreatedAt))

	_, err = repo.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestCreateOrder_RejectsInvalid(t *testing.T) {
	repo := orders.NewRepository(docstore.NewMemoryStore(), zap.NewNop())

	o := newOrder("u1", time.Now())
	o.Status = "lost"

	assert.ErrorIs(t, repo.CreateOrder(context.Background(), o), domain.ErrMalformedRecord)
}

func TestListOrders_NewestFirstSkippingMalformed(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	repo := orders.NewRepository(store, zap.NewNop())
	now := time.Now().UTC()

	older := newOrder("u1", now.Add(-time.Hour))
	newer := newOrder("u2", now)
	require.NoError(t, repo.CreateOrder(ctx, older))
	require.NoError(t, repo.CreateOrder(ctx, newer))
	require.NoError(t, store.Set(ctx, "orders", "broken", map[string]any{"status": "pending", "created_at": now.Add(-time.Minute)}))

	list, err := repo.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)

	mine, err := repo.ListOrdersByUserID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, older.ID, mine[0].ID)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	repo := orders.NewRepository(docstore.NewMemoryStore(), zap.NewNop())
	o := newOrder("u1", time.Now())
	require.NoError(t, repo.CreateOrder(ctx, o))

	note := "parcel damaged"
	updated, err := repo.UpdateStatus(ctx, o.ID, domain.OrderStatusProblem, &note)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProblem, updated.Status)
	require.NotNil(t, updated.Note)
	assert.Equal(t, note, *updated.Note)

	// the note survives a status change without one
	updated, err = repo.UpdateStatus(ctx, o.ID, domain.OrderStatusShipped, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, updated.Status)
	require.NotNil(t, updated.Note)

	_, err = repo.UpdateStatus(ctx, o.ID, "lost", nil)
	assert.ErrorIs(t, err, orders.ErrInvalidStatus)

	_, err = repo.UpdateStatus(ctx, "missing", domain.OrderStatusShipped, nil)
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestDeleteOrder(t *testing.T) {
	ctx := context.Background()
	repo := orders.NewRepository(docstore.NewMemoryStore(), zap.NewNop())
	o := newOrder("u1", time.Now())
	require.NoError(t, repo.CreateOrder(ctx, o))

	require.NoError(t, repo.DeleteOrder(ctx, o.ID))

	_, err := repo.GetOrder(ctx, o.ID)
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
	assert.ErrorIs(t, repo.DeleteOrder(ctx, o.ID), orders.ErrOrderNotFound)
}
