package order

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/sales-order-api/internal/domain/catalog"
	"github.com/xenking/sales-order-api/internal/domain/customer"
)

// --- Mock implementations ---

type mockCatalog struct {
	mu    sync.Mutex
	items map[int64]catalog.Item
	calls [][]int64
	err   error
}

func newCatalog(items ...catalog.Item) *mockCatalog {
	m := &mockCatalog{items: make(map[int64]catalog.Item, len(items))}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return m
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []int64) (map[int64]catalog.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, slices.Clone(ids))
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[int64]catalog.Item, len(ids))
	for _, id := range ids {
		if it, ok := m.items[id]; ok {
			out[id] = it
		}
	}
	return out, nil
}

func (m *mockCatalog) setPrice(id int64, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.items[id]
	it.Price = decimal.RequireFromString(price)
	m.items[id] = it
}

type mockCustomers struct {
	mu        sync.Mutex
	byID      map[int64]customer.Customer
	existsErr error
	getErr    error
	batches   int
}

func newCustomers(cs ...customer.Customer) *mockCustomers {
	m := &mockCustomers{byID: make(map[int64]customer.Customer, len(cs))}
	for _, c := range cs {
		m.byID[c.ID] = c
	}
	return m
}

func (m *mockCustomers) Exists(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.byID[id]
	return ok, nil
}

func (m *mockCustomers) GetByID(_ context.Context, id int64) (*customer.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.byID[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &c, nil
}

func (m *mockCustomers) GetByIDs(_ context.Context, ids []int64) (map[int64]customer.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make(map[int64]customer.Customer, len(ids))
	for _, id := range ids {
		if c, ok := m.byID[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (m *mockCustomers) remove(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
}

// memStore is an in-memory Repository with optimistic version checks.
type memStore struct {
	mu        sync.Mutex
	orders    map[int64]*Order
	nextID    int64
	nextLine  int64
	creates   int
	cancels   atomic.Int32
	createErr error
	// beforeSave runs inside SaveCancellation before the version check.
	beforeSave func()
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[int64]*Order)}
}

func cloneOrder(o *Order) *Order {
	c := *o
	c.Lines = slices.Clone(o.Lines)
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}

func (s *memStore) Create(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	o.ID = s.nextID
	for i := range o.Lines {
		s.nextLine++
		o.Lines[i].ID = s.nextLine
	}
	o.Version = 1
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *memStore) GetByID(_ context.Context, id int64) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *memStore) SaveCancellation(_ context.Context, o *Order) error {
	if s.beforeSave != nil {
		s.beforeSave()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != o.Version {
		return ErrVersionConflict
	}
	o.Version++
	s.orders[o.ID] = cloneOrder(o)
	s.cancels.Add(1)
	return nil
}

func (s *memStore) List(_ context.Context, q Query) ([]Order, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []Order
	for _, o := range s.orders {
		if q.CreatedFrom != nil && o.CreatedAt.Before(*q.CreatedFrom) {
			continue
		}
		if q.CreatedBefore != nil && !o.CreatedAt.Before(*q.CreatedBefore) {
			continue
		}
		if o.CancelledAt != nil {
			if q.CancelledFrom != nil && o.CancelledAt.Before(*q.CancelledFrom) {
				continue
			}
			if q.CancelledBefore != nil && !o.CancelledAt.Before(*q.CancelledBefore) {
				continue
			}
		}
		matched = append(matched, *cloneOrder(o))
	}

	slices.SortFunc(matched, func(a, b Order) int {
		c := a.CreatedAt.Compare(b.CreatedAt)
		if q.SortBy == SortByTotal {
			c = a.Total.Cmp(b.Total)
		}
		if c == 0 {
			c = int(a.ID - b.ID)
		}
		if q.Desc {
			return -c
		}
		return c
	})

	total := int64(len(matched))
	from := min(q.Offset(), len(matched))
	to := min(from+q.Size, len(matched))
	return matched[from:to], total, nil
}

// --- Helpers ---

func item(id int64, name, price string) catalog.Item {
	return catalog.Item{
		ID:        id,
		SKU:       "SKU-" + name,
		Name:      name,
		Price:     decimal.RequireFromString(price),
		UpdatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

type fixture struct {
	svc       *Service
	catalog   *mockCatalog
	customers *mockCustomers
	store     *memStore
}

func newFixture(t interface{ Fatalf(string, ...any) }) *fixture {
	f := &fixture{
		catalog: newCatalog(
			item(1, "Blue Widget", "19.99"),
			item(2, "Red Widget", "29.50"),
		),
		customers: newCustomers(
			customer.Customer{ID: 1, Name: "Alice"},
			customer.Customer{ID: 2, Name: "Bob"},
		),
		store: newMemStore(),
	}
	svc, err := NewService(f.catalog, f.customers, f.store, Config{
		VATRate: decimal.RequireFromString("0.15"),
		Scale:   2,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

// clock returns a now func that advances by step on every call.
func clock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := cur
		cur = cur.Add(step)
		return t
	}
}

var errDBDown = errors.New("db down")
