package domain

import (
	"errors"
	"fmt"
)

var ErrMalformedRecord = errors.New("malformed record")

type Rating struct {
	Rate  float64 `json:"rate" bson:"rate"`
	Count int     `json:"count" bson:"count"`
}

// CartLine is one product in a cart. Display fields are copied from the
// product at the moment it was first added.
type CartLine struct {
	ProductID   int64   `json:"id" bson:"product_id"`
	UnitPrice   float64 `json:"price" bson:"unit_price"`
	Quantity    int     `json:"quantity" bson:"quantity"`
	Name        string  `json:"name,omitempty" bson:"name,omitempty"`
	Title       string  `json:"title,omitempty" bson:"title,omitempty"`
	Category    string  `json:"category,omitempty" bson:"category,omitempty"`
	Description string  `json:"description,omitempty" bson:"description,omitempty"`
	Image       string  `json:"image,omitempty" bson:"image,omitempty"`
	Rating      *Rating `json:"rating,omitempty" bson:"rating,omitempty"`
}

func (l CartLine) Subtotal() float64 {
	return l.UnitPrice * float64(l.Quantity)
}

// ValidateLines checks the cart invariants: one line per product and a
// positive quantity on every line.
func ValidateLines(lines []CartLine) error {
	seen := make(map[int64]struct{}, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			return fmt.Errorf("%w: product %d has quantity %d", ErrMalformedRecord, l.ProductID, l.Quantity)
		}
		if l.UnitPrice < 0 {
			return fmt.Errorf("%w: product %d has negative price", ErrMalformedRecord, l.ProductID)
		}
		if _, dup := seen[l.ProductID]; dup {
			return fmt.Errorf("%w: duplicate line for product %d", ErrMalformedRecord, l.ProductID)
		}
		seen[l.ProductID] = struct{}{}
	}
	return nil
}
