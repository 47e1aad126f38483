// Package docstore is the remote document store: named collections of
// documents addressed by id. Documents travel as BSON so that typed records
// are decoded, and validated, by the repositories that own them.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

var ErrNotFound = errors.New("document not found")

// Snapshot is the result of reading one document. A snapshot of a missing
// document has Exists() == false.
type Snapshot struct {
	ID  string
	raw bson.Raw
}

func NewSnapshot(id string, raw bson.Raw) *Snapshot {
	return &Snapshot{ID: id, raw: raw}
}

func (s *Snapshot) Exists() bool {
	return s != nil && s.raw != nil
}

func (s *Snapshot) Decode(v any) error {
	if !s.Exists() {
		return ErrNotFound
	}
	if err := bson.Unmarshal(s.raw, v); err != nil {
		return fmt.Errorf("decode %s failed: %w", s.ID, err)
	}
	return nil
}

type setOptions struct {
	merge bool
}

type SetOption func(*setOptions)

// Merge makes Set overlay the given fields on the existing document instead
// of replacing it.
func Merge() SetOption {
	return func(o *setOptions) { o.merge = true }
}

func applySetOptions(opts []SetOption) setOptions {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Tx is the view of the store available inside a transaction.
type Tx interface {
	Get(ctx context.Context, collection, id string) (*Snapshot, error)
	Set(ctx context.Context, collection, id string, doc any, opts ...SetOption) error
}

type Store interface {
	Tx
	// Update sets top-level fields of an existing document. It fails with
	// ErrNotFound when the document is absent.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	// List returns every document of a collection ordered by sortField.
	List(ctx context.Context, collection, sortField string, descending bool) ([]*Snapshot, error)
	// RunTransaction runs fn atomically. An error from fn aborts every write
	// made through tx.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
