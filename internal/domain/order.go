package domain

import (
	"fmt"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusProblem   OrderStatus = "problem"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusShipped, OrderStatusDelivered, OrderStatusProblem:
		return true
	}
	return false
}

type Recipient struct {
	Name  string `bson:"name" json:"name"`
	Phone string `bson:"phone" json:"phone"`
}

type Delivery struct {
	Method        string `bson:"method" json:"method"`
	StoreName     string `bson:"store_name" json:"store_name"`
	StoreAddress  string `bson:"store_address" json:"store_address"`
	StoreID       string `bson:"store_id,omitempty" json:"store_id,omitempty"`
	StoreCity     string `bson:"store_city,omitempty" json:"store_city,omitempty"`
	StoreDistrict string `bson:"store_district,omitempty" json:"store_district,omitempty"`
}

type Payment struct {
	Method string `bson:"method" json:"method"`
}

type OrderInfo struct {
	Recipient Recipient `bson:"recipient" json:"recipient"`
	Delivery  Delivery  `bson:"delivery" json:"delivery"`
	Payment   Payment   `bson:"payment" json:"payment"`
}

type Order struct {
	ID         string      `bson:"-" json:"id"`
	UserID     string      `bson:"user_id" json:"user_id"`
	Items      []CartLine  `bson:"items" json:"items"`
	TotalPrice float64     `bson:"total_price" json:"total_price"`
	Info       OrderInfo   `bson:"info" json:"info"`
	Status     OrderStatus `bson:"status" json:"status"`
	Note       *string     `bson:"note,omitempty" json:"note,omitempty"`
	CreatedAt  time.Time   `bson:"created_at" json:"created_at"`
}

// Validate rejects records that cannot be shown on the admin panel. A
// problem order without a note is allowed.
func (o Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("%w: order without id", ErrMalformedRecord)
	}
	if o.UserID == "" {
		return fmt.Errorf("%w: order %s has no owner", ErrMalformedRecord, o.ID)
	}
	if !o.Status.Valid() {
		return fmt.Errorf("%w: order %s has status %q", ErrMalformedRecord, o.ID, o.Status)
	}
	if o.TotalPrice < 0 {
		return fmt.Errorf("%w: order %s has negative total", ErrMalformedRecord, o.ID)
	}
	return ValidateLines(o.Items)
}
