// Package cart holds a client's shopping cart. Every mutation writes the
// whole cart to the client's store before it returns.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/kvstore"
)

type Aggregate struct {
	mu    sync.Mutex
	store kvstore.Store
	lines []domain.CartLine
}

func New(store kvstore.Store) *Aggregate {
	return &Aggregate{store: store}
}

// Load rehydrates the cart from the store. A missing key is an empty cart; a
// payload that is not a cart or breaks the cart invariants fails with
// domain.ErrMalformedRecord.
func Load(ctx context.Context, store kvstore.Store) (*Aggregate, error) {
	var lines []domain.CartLine
	data, err := store.Get(ctx, kvstore.KeyCart)
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load cart: %w", err)
	default:
		if err := json.Unmarshal(data, &lines); err != nil {
			return nil, fmt.Errorf("load cart: %w: %v", domain.ErrMalformedRecord, err)
		}
	}
	if err := domain.ValidateLines(lines); err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return &Aggregate{store: store, lines: lines}, nil
}

// Add puts one unit of p in the cart, appending a line when p is new.
func (a *Aggregate) Add(ctx context.Context, p domain.Product) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := slices.Clone(a.lines)
	if i := indexOf(next, p.ID); i >= 0 {
		next[i].Quantity++
	} else {
		next = append(next, lineFor(p))
	}
	return a.commit(ctx, next)
}

func (a *Aggregate) Increment(ctx context.Context, productID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := indexOf(a.lines, productID)
	if i < 0 {
		return nil
	}
	next := slices.Clone(a.lines)
	next[i].Quantity++
	return a.commit(ctx, next)
}

// Decrement takes one unit away. The line goes away instead of reaching zero.
func (a *Aggregate) Decrement(ctx context.Context, productID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := indexOf(a.lines, productID)
	if i < 0 {
		return nil
	}
	next := slices.Clone(a.lines)
	if next[i].Quantity <= 1 {
		next = slices.Delete(next, i, i+1)
	} else {
		next[i].Quantity--
	}
	return a.commit(ctx, next)
}

func (a *Aggregate) Clear(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.commit(ctx, []domain.CartLine{})
}

// Checkout hands the current lines and their total to place and empties the
// cart once place succeeds. The cart is locked throughout, so the lines,
// the total and what gets cleared are the same cart. An empty cart is
// passed through; place decides what to do with it. If clearing fails the
// order stands and the error is returned.
func (a *Aggregate) Checkout(ctx context.Context, place func(lines []domain.CartLine, total float64) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	lines := slices.Clone(a.lines)
	var total float64
	for _, l := range lines {
		total += l.Subtotal()
	}
	if err := place(lines, total); err != nil {
		return err
	}
	return a.commit(ctx, []domain.CartLine{})
}

// commit persists next and only then makes it the current state, so a
// failed write leaves the last persisted cart in place.
func (a *Aggregate) commit(ctx context.Context, next []domain.CartLine) error {
	if err := kvstore.SetJSON(ctx, a.store, kvstore.KeyCart, next); err != nil {
		return fmt.Errorf("persist cart: %w", err)
	}
	a.lines = next
	return nil
}

// Lines returns a copy of the cart lines in display order.
func (a *Aggregate) Lines() []domain.CartLine {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.lines)
}

func (a *Aggregate) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.lines)
}

func (a *Aggregate) TotalPrice() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var total float64
	for _, l := range a.lines {
		total += l.Subtotal()
	}
	return total
}

func (a *Aggregate) TotalQuantity() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	var n int
	for _, l := range a.lines {
		n += l.Quantity
	}
	return n
}

func indexOf(lines []domain.CartLine, productID int64) int {
	return slices.IndexFunc(lines, func(l domain.CartLine) bool { return l.ProductID == productID })
}

func lineFor(p domain.Product) domain.CartLine {
	line := domain.CartLine{
		ProductID:   p.ID,
		UnitPrice:   p.Price,
		Quantity:    1,
		Name:        p.Name,
		Title:       p.Title,
		Category:    p.Category,
		Description: p.Description,
		Image:       p.ImageURL,
	}
	if p.Rating != nil {
		r := *p.Rating
		line.Rating = &r
	}
	return line
}
