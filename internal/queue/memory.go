package queue

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a Store kept in process memory. Transactions run against a
// copy that replaces the live state only when fn succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*Item
	seq   int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Item)}
}

func (s *MemoryStore) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{items: make(map[string]*Item, len(s.items)), seq: s.seq}
	for id, it := range s.items {
		tx.items[id] = it.clone()
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.items, s.seq = tx.items, tx.seq
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memoryTx{items: s.items, seq: s.seq, readOnly: true})
}

func (s *MemoryStore) Close() error { return nil }

type memoryTx struct {
	items    map[string]*Item
	seq      int64
	readOnly bool
}

func (t *memoryTx) Get(id string) (*Item, error) {
	if it, ok := t.items[id]; ok {
		return it.clone(), nil
	}
	return nil, nil
}

func (t *memoryTx) Insert(item *Item) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, ok := t.items[item.ID]; ok {
		return errDuplicateID
	}
	t.seq++
	item.Seq = t.seq
	t.items[item.ID] = item.clone()
	return nil
}

func (t *memoryTx) Update(item *Item) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, ok := t.items[item.ID]; !ok {
		return errMissingID
	}
	t.items[item.ID] = item.clone()
	return nil
}

func (t *memoryTx) Delete(id string) error {
	if t.readOnly {
		return errReadOnly
	}
	delete(t.items, id)
	return nil
}

func (t *memoryTx) List(f Filter) ([]*Item, error) {
	out := make([]*Item, 0, len(t.items))
	for _, it := range t.items {
		if f.matches(it) {
			out = append(out, it.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (t *memoryTx) Totals() (int, int64, error) {
	var bytes int64
	for _, it := range t.items {
		bytes += it.Size
	}
	return len(t.items), bytes, nil
}
