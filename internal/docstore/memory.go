package docstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// MemoryStore keeps documents in process. Transactions hold the store lock
// for their whole duration and buffer writes until fn returns nil.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]bson.Raw
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]bson.Raw)}
}

func (m *MemoryStore) Get(_ context.Context, collection, id string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.get(collection, id), nil
}

func (m *MemoryStore) Set(_ context.Context, collection, id string, doc any, opts ...SetOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := m.prepare(collection, id, doc, applySetOptions(opts))
	if err != nil {
		return err
	}
	m.put(collection, id, raw)
	return nil
}

func (m *MemoryStore) Update(_ context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.get(collection, id).Exists() {
		return ErrNotFound
	}
	raw, err := m.prepare(collection, id, fields, setOptions{merge: true})
	if err != nil {
		return err
	}
	m.put(collection, id, raw)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.data[collection]
	if _, ok := docs[id]; !ok {
		return ErrNotFound
	}
	delete(docs, id)
	return nil
}

func (m *MemoryStore) List(_ context.Context, collection, sortField string, descending bool) ([]*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Snapshot, 0, len(m.data[collection]))
	for id := range m.data[collection] {
		out = append(out, m.get(collection, id))
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := compareRaw(out[i].raw.Lookup(sortField), out[j].raw.Lookup(sortField))
		if c == 0 {
			return out[i].ID < out[j].ID
		}
		if descending {
			return c > 0
		}
		return c < 0
	})
	return out, nil
}

func (m *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{store: m, pending: make(map[string]map[string]bson.Raw)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for collection, docs := range tx.pending {
		for id, raw := range docs {
			m.put(collection, id, raw)
		}
	}
	return nil
}

func (m *MemoryStore) get(collection, id string) *Snapshot {
	raw, ok := m.data[collection][id]
	if !ok {
		return NewSnapshot(id, nil)
	}
	return NewSnapshot(id, append(bson.Raw(nil), raw...))
}

func (m *MemoryStore) put(collection, id string, raw bson.Raw) {
	docs, ok := m.data[collection]
	if !ok {
		docs = make(map[string]bson.Raw)
		m.data[collection] = docs
	}
	docs[id] = raw
}

// prepare encodes doc and, for a merge, overlays it on the stored document.
func (m *MemoryStore) prepare(collection, id string, doc any, o setOptions) (bson.Raw, error) {
	return encode(m.get(collection, id), id, doc, o)
}

func encode(existing *Snapshot, id string, doc any, o setOptions) (bson.Raw, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s failed: %w", id, err)
	}
	fields := bson.M{}
	if o.merge && existing.Exists() {
		if err := bson.Unmarshal(existing.raw, &fields); err != nil {
			return nil, fmt.Errorf("decode %s failed: %w", id, err)
		}
	}
	var incoming bson.M
	if err := bson.Unmarshal(data, &incoming); err != nil {
		return nil, fmt.Errorf("decode %s failed: %w", id, err)
	}
	for k, v := range incoming {
		fields[k] = v
	}
	fields["_id"] = id
	return bson.Marshal(fields)
}

type memoryTx struct {
	store   *MemoryStore
	pending map[string]map[string]bson.Raw
}

func (t *memoryTx) Get(_ context.Context, collection, id string) (*Snapshot, error) {
	if raw, ok := t.pending[collection][id]; ok {
		return NewSnapshot(id, append(bson.Raw(nil), raw...)), nil
	}
	return t.store.get(collection, id), nil
}

func (t *memoryTx) Set(ctx context.Context, collection, id string, doc any, opts ...SetOption) error {
	existing, _ := t.Get(ctx, collection, id)
	raw, err := encode(existing, id, doc, applySetOptions(opts))
	if err != nil {
		return err
	}
	docs, ok := t.pending[collection]
	if !ok {
		docs = make(map[string]bson.Raw)
		t.pending[collection] = docs
	}
	docs[id] = raw
	return nil
}

// compareRaw orders the value types the repositories sort on. Missing values
// sort first.
func compareRaw(a, b bson.RawValue) int {
	switch {
	case a.Type == 0 && b.Type == 0:
		return 0
	case a.Type == 0:
		return -1
	case b.Type == 0:
		return 1
	}
	if af, ok := number(a); ok {
		if bf, ok := number(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	if as, ok := a.StringValueOK(); ok {
		if bs, ok := b.StringValueOK(); ok {
			switch {
			case as < bs:
				return -1
			case as > bs:
				return 1
			}
			return 0
		}
	}
	return bytes.Compare(a.Value, b.Value)
}

func number(v bson.RawValue) (float64, bool) {
	if dt, ok := v.DateTimeOK(); ok {
		return float64(dt), true
	}
	if i, ok := v.Int64OK(); ok {
		return float64(i), true
	}
	if i, ok := v.Int32OK(); ok {
		return float64(i), true
	}
	if f, ok := v.DoubleOK(); ok {
		return f, true
	}
	return 0, false
}
