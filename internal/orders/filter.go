package orders

import (
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/fjod/storefront/internal/domain"
)

// filterEnv is what a filter expression sees of an order, e.g.
//
//	status == "problem" && total > 500
//	delivery == "home_delivery" && created_at > now() - duration("24h")
type filterEnv struct {
	ID        string    `expr:"id"`
	UserID    string    `expr:"user_id"`
	Status    string    `expr:"status"`
	Total     float64   `expr:"total"`
	Items     int       `expr:"items"`
	Delivery  string    `expr:"delivery"`
	Payment   string    `expr:"payment"`
	Recipient string    `expr:"recipient"`
	HasNote   bool      `expr:"has_note"`
	CreatedAt time.Time `expr:"created_at"`
}

func envOf(o *domain.Order) filterEnv {
	items := 0
	for _, l := range o.Items {
		items += l.Quantity
	}
	return filterEnv{
		ID:        o.ID,
		UserID:    o.UserID,
		Status:    string(o.Status),
		Total:     o.TotalPrice,
		Items:     items,
		Delivery:  o.Info.Delivery.Method,
		Payment:   o.Info.Payment.Method,
		Recipient: o.Info.Recipient.Name,
		HasNote:   o.Note != nil && *o.Note != "",
		CreatedAt: o.CreatedAt,
	}
}

type Filter struct {
	program *vm.Program
}

// CompileFilter checks expression against the order fields. It must
// evaluate to a bool.
func CompileFilter(expression string) (*Filter, error) {
	program, err := expr.Compile(expression, expr.Env(filterEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid order filter: %w", err)
	}
	return &Filter{program: program}, nil
}

func (f *Filter) Match(o *domain.Order) (bool, error) {
	out, err := expr.Run(f.program, envOf(o))
	if err != nil {
		return false, fmt.Errorf("filter order %s: %w", o.ID, err)
	}
	return out.(bool), nil
}

// Apply keeps the orders that match, in their original order.
func (f *Filter) Apply(list []*domain.Order) ([]*domain.Order, error) {
	out := make([]*domain.Order, 0, len(list))
	for _, o := range list {
		ok, err := f.Match(o)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, o)
		}
	}
	return out, nil
}
