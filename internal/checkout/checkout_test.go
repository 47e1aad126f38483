package checkout_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/docstore"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/kvstore"
	"github.com/fjod/storefront/internal/orders"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func validInput() checkout.Input {
	return checkout.Input{
		Recipient: domain.Recipient{Name: " Ada ", Phone: "0912-345-678"},
		Delivery:  domain.Delivery{Method: checkout.DeliveryStorePickup, StoreName: "Main St", StoreAddress: "1 Main St", StoreCity: "Taipei"},
		Payment:   domain.Payment{Method: "cash_on_delivery"},
	}
}

func setup(t *testing.T) (*checkout.Service, *orders.Repository, *recordingPublisher, *cart.Aggregate) {
	t.Helper()
	repo := orders.NewRepository(docstore.NewMemoryStore(), zap.NewNop())
	pub := &recordingPublisher{}
	c := cart.New(kvstore.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, c.Add(ctx, domain.Product{ID: 1, Name: "Hoverboard", Price: 100}))
	require.NoError(t, c.Add(ctx, domain.Product{ID: 1, Name: "Hoverboard", Price: 100}))
	require.NoError(t, c.Add(ctx, domain.Product{ID: 2, Name: "Battery", Price: 50}))
	return checkout.NewService(repo, pub, zap.NewNop()), repo, pub, c
}

func TestPlaceOrder(t *testing.T) {
	ctx := context.Background()
	svc, repo, pub, c := setup(t)

	order, err := svc.PlaceOrder(ctx, "u1", c, validInput())
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.InDelta(t, 250.0, order.TotalPrice, 1e-9)
	assert.Len(t, order.Items, 2)
	assert.Equal(t, "Ada", order.Info.Recipient.Name)
	assert.Equal(t, "0912345678", order.Info.Recipient.Phone)
	assert.Equal(t, 0, c.Len())

	stored, err := repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", stored.UserID)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.OrderPlaced, pub.events[0].Type)
	assert.Equal(t, order.ID, pub.events[0].OrderID)
}

func TestPlaceOrder_PublishFailureKeepsOrder(t *testing.T) {
	ctx := context.Background()
	svc, repo, pub, c := setup(t)
	pub.err = errors.New("broker down")

	order, err := svc.PlaceOrder(ctx, "u1", c, validInput())
	require.NoError(t, err)

	_, err = repo.GetOrder(ctx, order.ID)
	assert.NoError(t, err)
}

func TestPlaceOrder_Validation(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		mutate func(*checkout.Input)
		field  string
	}{
		{name: "signed out", userID: "", mutate: func(*checkout.Input) {}, field: "user"},
		{name: "no name", userID: "u1", mutate: func(in *checkout.Input) { in.Recipient.Name = "  " }, field: "recipient.name"},
		{name: "no phone", userID: "u1", mutate: func(in *checkout.Input) { in.Recipient.Phone = "" }, field: "recipient.phone"},
		{name: "bad phone", userID: "u1", mutate: func(in *checkout.Input) { in.Recipient.Phone = "call me" }, field: "recipient.phone"},
		{name: "no method", userID: "u1", mutate: func(in *checkout.Input) { in.Delivery.Method = "" }, field: "delivery.method"},
		{name: "unknown method", userID: "u1", mutate: func(in *checkout.Input) { in.Delivery.Method = "drone" }, field: "delivery.method"},
		{name: "no store", userID: "u1", mutate: func(in *checkout.Input) { in.Delivery.StoreName = "" }, field: "delivery.store_name"},
		{name: "no address", userID: "u1", mutate: func(in *checkout.Input) {
			in.Delivery.Method = checkout.DeliveryHome
			in.Delivery.StoreAddress = ""
		}, field: "delivery.store_address"},
		{name: "no payment", userID: "u1", mutate: func(in *checkout.Input) { in.Payment.Method = "" }, field: "payment.method"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, pub, c := setup(t)
			in := validInput()
			tt.mutate(&in)

			_, err := svc.PlaceOrder(context.Background(), tt.userID, c, in)

			var verr *checkout.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, 2, c.Len())
			assert.Empty(t, pub.events)
		})
	}
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	svc, _, _, _ := setup(t)

	_, err := svc.PlaceOrder(context.Background(), "u1", cart.New(kvstore.NewMemoryStore()), validInput())

	var verr *checkout.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "items", verr.Field)
}

type failingOrders struct {
	orders.OrderRepository
}

func (failingOrders) CreateOrder(context.Context, *domain.Order) error {
	return errors.New("order store down")
}

func TestPlaceOrder_StoreFailureKeepsCart(t *testing.T) {
	_, repo, pub, c := setup(t)
	svc := checkout.NewService(failingOrders{repo}, pub, zap.NewNop())

	_, err := svc.PlaceOrder(context.Background(), "u1", c, validInput())

	require.Error(t, err)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 3, c.TotalQuantity())
	assert.Empty(t, pub.events)
}

func TestUpdateStatusAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, _, pub, c := setup(t)
	order, err := svc.PlaceOrder(ctx, "u1", c, validInput())
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, order.ID, domain.OrderStatusShipped, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, updated.Status)

	require.NoError(t, svc.DeleteOrder(ctx, order.ID))
	assert.ErrorIs(t, svc.DeleteOrder(ctx, order.ID), orders.ErrOrderNotFound)

	require.Len(t, pub.events, 3)
	assert.Equal(t, events.OrderStatusChanged, pub.events[1].Type)
	assert.Equal(t, events.OrderDeleted, pub.events[2].Type)

	list, err := svc.ListOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
