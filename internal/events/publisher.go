// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/domain"
)

const DefaultTopic = "order-events"

type Type string

const (
	OrderPlaced        Type = "order_placed"
	OrderStatusChanged Type = "order_status_changed"
	OrderDeleted       Type = "order_deleted"
)

type OrderEvent struct {
	Type       Type               `json:"type"`
	OrderID    string             `json:"order_id"`
	UserID     string             `json:"user_id,omitempty"`
	Status     domain.OrderStatus `json:"status,omitempty"`
	TotalPrice float64            `json:"total_price,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// NewOrderEvent describes order at the moment of t.
func NewOrderEvent(t Type, order *domain.Order) OrderEvent {
	return OrderEvent{
		Type:       t,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     order.Status,
		TotalPrice: order.TotalPrice,
		OccurredAt: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, event OrderEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireOne,
	}
	return &KafkaPublisher{writer: w, logger: logger}
}

// Publish writes event keyed by order id, so events of one order stay in one
// partition and in order.
func (p *KafkaPublisher) Publish(ctx context.Context, event OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s event for order %s: %w", event.Type, event.OrderID, err)
	}
	p.logger.Debug("event published", zap.String("type", string(event.Type)), zap.String("order_id", event.OrderID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops events. It is used when no brokers are configured.
type NopPublisher struct {
	logger *zap.Logger
}

func NewNopPublisher(logger *zap.Logger) *NopPublisher {
	return &NopPublisher{logger: logger}
}

func (p *NopPublisher) Publish(_ context.Context, event OrderEvent) error {
	p.logger.Debug("event dropped, no brokers configured", zap.String("type", string(event.Type)), zap.String("order_id", event.OrderID))
	return nil
}

func (p *NopPublisher) Close() error { return nil }
