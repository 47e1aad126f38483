package docstore

import (
	"context"

	"github.com/fjod/storefront/internal/retry"
)

// Retrying retries reads that fail transiently. Writes pass straight
// through.
type Retrying struct {
	Store
	policy retry.Policy
}

func NewRetrying(store Store, policy retry.Policy) *Retrying {
	if policy.Retryable == nil {
		policy.Retryable = IsTransient
	}
	return &Retrying{Store: store, policy: policy}
}

func (r *Retrying) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	var snap *Snapshot
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		snap, err = r.Store.Get(ctx, collection, id)
		return err
	})
	return snap, err
}

func (r *Retrying) List(ctx context.Context, collection, sortField string, descending bool) ([]*Snapshot, error) {
	var out []*Snapshot
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.Store.List(ctx, collection, sortField, descending)
		return err
	})
	return out, err
}
