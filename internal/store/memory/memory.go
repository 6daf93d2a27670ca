package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"dukkan/backend/internal/domain"
	"dukkan/backend/internal/store"
	"dukkan/backend/internal/xid"
)

// Store keeps every collection in process memory. Atomic runs against a
// copy of the data and swaps it in on success.
type Store struct {
	mu   sync.RWMutex
	data dataset
	now  func() time.Time
}

type dataset map[string]*collection

type collection struct {
	order []string
	docs  map[string]store.Document
}

func New() *Store {
	return &Store{
		data: make(dataset),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// NewSeeded returns a store holding a small demo catalog.
func NewSeeded() *Store {
	s := New()
	ctx := context.Background()

	suppliers := []domain.Supplier{
		{ID: "sup-0001", Name: "Al Noor Trading", Contact: "Khaled", Phone: "0550000001", Active: true},
		{ID: "sup-0002", Name: "Fresh Dairy Co", Contact: "Mona", Phone: "0550000002", Active: true},
	}
	products := []domain.Product{
		{ID: "prd-0001", Name: "Rice 5kg", Category: "grocery", Barcode: "6281000000011", PriceCents: 2500, CostCents: 2000, Quantity: 50, MinQuantity: 10, SupplierID: "sup-0001", Active: true},
		{ID: "prd-0002", Name: "Sugar 1kg", Category: "grocery", Barcode: "6281000000028", PriceCents: 800, CostCents: 600, Quantity: 30, MinQuantity: 10, SupplierID: "sup-0001", Active: true},
		{ID: "prd-0003", Name: "Black Tea 100 bags", Category: "beverage", Barcode: "6281000000035", PriceCents: 1500, CostCents: 1100, Quantity: 20, MinQuantity: 5, SupplierID: "sup-0001", Active: true},
		{ID: "prd-0004", Name: "Fresh Milk 1L", Category: "dairy", Barcode: "6281000000042", PriceCents: 650, CostCents: 500, Quantity: 8, MinQuantity: 10, SupplierID: "sup-0002", ExpiryDate: "2026-12-31", Active: true},
		{ID: "prd-0005", Name: "Cooking Oil 1.5L", Category: "grocery", Barcode: "6281000000059", PriceCents: 1800, CostCents: 1450, Quantity: 0, MinQuantity: 10, SupplierID: "sup-0001", Active: true},
	}

	for _, sup := range suppliers {
		if err := seed(ctx, s, domain.CollectionSuppliers, sup); err != nil {
			panic(err)
		}
	}
	for _, p := range products {
		if err := seed(ctx, s, domain.CollectionProducts, p); err != nil {
			panic(err)
		}
	}
	return s
}

func seed(ctx context.Context, s *Store, name string, value any) error {
	doc, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = s.Add(ctx, name, doc)
	return err
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) GetAll(ctx context.Context, name string) ([]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetAll(ctx, name)
}

func (s *Store) GetByID(ctx context.Context, name string, id string) (store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetByID(ctx, name, id)
}

func (s *Store) FindByField(ctx context.Context, name string, field string, value any) ([]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().FindByField(ctx, name, field, value)
}

func (s *Store) Add(ctx context.Context, name string, doc store.Document) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Add(ctx, name, doc)
}

func (s *Store) Update(ctx context.Context, name string, id string, patch store.Document) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Update(ctx, name, id, patch)
}

func (s *Store) Remove(ctx context.Context, name string, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Remove(ctx, name, id)
}

func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Backend) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.data.clone()
	if err := fn(ctx, &view{data: working, now: s.now}); err != nil {
		return err
	}
	s.data = working
	return nil
}

func (s *Store) view() *view {
	return &view{data: s.data, now: s.now}
}

// view implements store.Backend over a dataset. Callers hold the lock.
type view struct {
	data dataset
	now  func() time.Time
}

func (v *view) GetAll(_ context.Context, name string) ([]store.Document, error) {
	c, ok := v.data[name]
	if !ok {
		return []store.Document{}, nil
	}
	out := make([]store.Document, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, store.Clone(c.docs[id]))
	}
	return out, nil
}

func (v *view) GetByID(_ context.Context, name string, id string) (store.Document, error) {
	c, ok := v.data[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", store.ErrNotFound, name, id)
	}
	doc, ok := c.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", store.ErrNotFound, name, id)
	}
	return store.Clone(doc), nil
}

func (v *view) FindByField(ctx context.Context, name string, field string, value any) ([]store.Document, error) {
	all, err := v.GetAll(ctx, name)
	if err != nil {
		return nil, err
	}
	out := make([]store.Document, 0)
	for _, doc := range all {
		if store.FieldEquals(doc, field, value) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (v *view) Add(_ context.Context, name string, doc store.Document) (store.Document, error) {
	prepared, id, err := store.Prepare(doc, v.now(), func() string { return xid.New(domain.IDPrefix(name)) })
	if err != nil {
		return nil, err
	}
	c := v.collection(name)
	if _, exists := c.docs[id]; exists {
		return nil, fmt.Errorf("%w: duplicate id %s in %s", store.ErrValidation, id, name)
	}
	c.docs[id] = prepared
	c.order = append(c.order, id)
	return store.Clone(prepared), nil
}

func (v *view) Update(_ context.Context, name string, id string, patch store.Document) (store.Document, error) {
	c, ok := v.data[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", store.ErrNotFound, name, id)
	}
	current, ok := c.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", store.ErrNotFound, name, id)
	}
	merged, err := store.Merge(current, patch, v.now())
	if err != nil {
		return nil, err
	}
	c.docs[id] = merged
	return store.Clone(merged), nil
}

func (v *view) Remove(_ context.Context, name string, id string) (bool, error) {
	c, ok := v.data[name]
	if !ok {
		return false, nil
	}
	if _, ok := c.docs[id]; !ok {
		return false, nil
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (v *view) collection(name string) *collection {
	c, ok := v.data[name]
	if !ok {
		c = &collection{docs: make(map[string]store.Document)}
		v.data[name] = c
	}
	return c
}

// clone copies the maps and ordering. Documents are never mutated in place so
// they can be shared between copies.
func (d dataset) clone() dataset {
	out := make(dataset, len(d))
	for name, c := range d {
		docs := make(map[string]store.Document, len(c.docs))
		for id, doc := range c.docs {
			docs[id] = doc
		}
		out[name] = &collection{
			order: append([]string(nil), c.order...),
			docs:  docs,
		}
	}
	return out
}
