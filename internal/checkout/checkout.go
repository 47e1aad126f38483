// Package checkout turns a client's cart into an order.
package checkout

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/orders"
)

const (
	DeliveryStorePickup = "store_pickup"
	DeliveryHome        = "home_delivery"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{8,15}$`)

// ValidationError names the first input field that was missing or wrong.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type Input struct {
	Recipient domain.Recipient `json:"recipient"`
	Delivery  domain.Delivery  `json:"delivery"`
	Payment   domain.Payment   `json:"payment"`
}

// Validate trims the input in place and checks the required fields.
func (in *Input) Validate() error {
	in.Recipient.Name = strings.TrimSpace(in.Recipient.Name)
	in.Recipient.Phone = strings.ReplaceAll(strings.TrimSpace(in.Recipient.Phone), "-", "")
	in.Delivery.Method = strings.TrimSpace(in.Delivery.Method)
	in.Delivery.StoreName = strings.TrimSpace(in.Delivery.StoreName)
	in.Delivery.StoreAddress = strings.TrimSpace(in.Delivery.StoreAddress)
	in.Payment.Method = strings.TrimSpace(in.Payment.Method)

	switch {
	case in.Recipient.Name == "":
		return &ValidationError{Field: "recipient.name", Message: "recipient name is required"}
	case in.Recipient.Phone == "":
		return &ValidationError{Field: "recipient.phone", Message: "recipient phone is required"}
	case !phonePattern.MatchString(in.Recipient.Phone):
		return &ValidationError{Field: "recipient.phone", Message: "recipient phone is not a phone number"}
	}

	switch in.Delivery.Method {
	case DeliveryStorePickup:
		if in.Delivery.StoreName == "" {
			return &ValidationError{Field: "delivery.store_name", Message: "pickup store is required"}
		}
		if in.Delivery.StoreAddress == "" {
			return &ValidationError{Field: "delivery.store_address", Message: "pickup store address is required"}
		}
	case DeliveryHome:
		if in.Delivery.StoreAddress == "" {
			return &ValidationError{Field: "delivery.store_address", Message: "delivery address is required"}
		}
	case "":
		return &ValidationError{Field: "delivery.method", Message: "delivery method is required"}
	default:
		return &ValidationError{Field: "delivery.method", Message: fmt.Sprintf("unknown delivery method %q", in.Delivery.Method)}
	}

	if in.Payment.Method == "" {
		return &ValidationError{Field: "payment.method", Message: "payment method is required"}
	}
	return nil
}

// Cart is the part of the cart aggregate checkout needs. Checkout must hold
// the cart still while place runs and empty it when place succeeds.
type Cart interface {
	Checkout(ctx context.Context, place func(lines []domain.CartLine, total float64) error) error
}

type Service struct {
	orders    orders.OrderRepository
	publisher events.Publisher
	logger    *zap.Logger
}

func NewService(repo orders.OrderRepository, publisher events.Publisher, logger *zap.Logger) *Service {
	return &Service{orders: repo, publisher: publisher, logger: logger}
}

// PlaceOrder records the cart of userID as a pending order and empties the
// cart. Event publishing and cart clearing failures are logged; the order
// stands either way.
func (s *Service) PlaceOrder(ctx context.Context, userID string, c Cart, in Input) (*domain.Order, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "user", Message: "sign in to place an order"}
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var order *domain.Order
	err := c.Checkout(ctx, func(lines []domain.CartLine, total float64) error {
		if len(lines) == 0 {
			return &ValidationError{Field: "items", Message: "cart is empty"}
		}
		o := &domain.Order{
			UserID:     userID,
			Items:      lines,
			TotalPrice: total,
			Info: domain.OrderInfo{
				Recipient: in.Recipient,
				Delivery:  in.Delivery,
				Payment:   in.Payment,
			},
			Status:    domain.OrderStatusPending,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.orders.CreateOrder(ctx, o); err != nil {
			return fmt.Errorf("place order: %w", err)
		}
		order = o
		return nil
	})
	if order == nil {
		return nil, err
	}
	if err != nil {
		s.logger.Error("failed to clear cart after checkout", zap.String("order_id", order.ID), zap.Error(err))
	}
	s.logger.Info("order placed", zap.String("order_id", order.ID), zap.String("user_id", userID), zap.Float64("total", order.TotalPrice))

	if err := s.publisher.Publish(ctx, events.NewOrderEvent(events.OrderPlaced, order)); err != nil {
		s.logger.Error("failed to publish order event", zap.String("order_id", order.ID), zap.Error(err))
	}
	return order, nil
}

// UpdateStatus changes an order's status and announces it.
func (s *Service) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, note *string) (*domain.Order, error) {
	order, err := s.orders.UpdateStatus(ctx, id, status, note)
	if err != nil {
		return nil, err
	}
	if err := s.publisher.Publish(ctx, events.NewOrderEvent(events.OrderStatusChanged, order)); err != nil {
		s.logger.Error("failed to publish order event", zap.String("order_id", id), zap.Error(err))
	}
	return order, nil
}

func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	if err := s.orders.DeleteOrder(ctx, id); err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, events.OrderEvent{Type: events.OrderDeleted, OrderID: id, OccurredAt: time.Now().UTC()}); err != nil {
		s.logger.Error("failed to publish order event", zap.String("order_id", id), zap.Error(err))
	}
	return nil
}

func (s *Service) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	return s.orders.ListOrders(ctx)
}
