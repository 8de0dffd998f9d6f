package handler

import (
	"context"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/xenking/sales-order-api/internal/domain/auth"
	"github.com/xenking/sales-order-api/internal/domain/catalog"
	"github.com/xenking/sales-order-api/internal/domain/customer"
	"github.com/xenking/sales-order-api/internal/domain/order"
)

type catalogRepo map[int64]catalog.Item

func (c catalogRepo) GetByIDs(_ context.Context, ids []int64) (map[int64]catalog.Item, error) {
	out := make(map[int64]catalog.Item, len(ids))
	for _, id := range ids {
		if it, ok := c[id]; ok {
			out[id] = it
		}
	}
	return out, nil
}

type customerRepo map[int64]customer.Customer

func (c customerRepo) Exists(_ context.Context, id int64) (bool, error) {
	_, ok := c[id]
	return ok, nil
}

func (c customerRepo) GetByID(_ context.Context, id int64) (*customer.Customer, error) {
	cu, ok := c[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &cu, nil
}

func (c customerRepo) GetByIDs(_ context.Context, ids []int64) (map[int64]customer.Customer, error) {
	out := make(map[int64]customer.Customer, len(ids))
	for _, id := range ids {
		if cu, ok := c[id]; ok {
			out[id] = cu
		}
	}
	return out, nil
}

type orderStore struct {
	mu       sync.Mutex
	nextID   int64
	nextLine int64
	orders   map[int64]order.Order

	getErr  error
	saveErr error
}

func newOrderStore() *orderStore {
	return &orderStore{orders: make(map[int64]order.Order)}
}

func (s *orderStore) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	o.ID = s.nextID
	o.Version = 1
	for i := range o.Lines {
		s.nextLine++
		o.Lines[i].ID = s.nextLine
	}
	s.orders[o.ID] = clone(*o)
	return nil
}

func (s *orderStore) GetByID(_ context.Context, id int64) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	c := clone(o)
	return &c, nil
}

func (s *orderStore) SaveCancellation(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	cur, ok := s.orders[o.ID]
	if !ok {
		return order.ErrNotFound
	}
	if cur.Version != o.Version {
		return order.ErrVersionConflict
	}
	o.Version++
	s.orders[o.ID] = clone(*o)
	return nil
}

func (s *orderStore) List(_ context.Context, q order.Query) ([]order.Order, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.orders))
	for id := range s.orders {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var page []order.Order
	for i := q.Offset(); i < len(ids) && len(page) < q.Size; i++ {
		page = append(page, clone(s.orders[ids[i]]))
	}
	return page, int64(len(ids)), nil
}

func clone(o order.Order) order.Order {
	o.Lines = slices.Clone(o.Lines)
	return o
}

type keyRepo struct {
	keys map[string]auth.APIKeyInfo
	err  error
}

func (k keyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if k.err != nil {
		return nil, k.err
	}
	info, ok := k.keys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return &info, nil
}

func testCatalog() catalogRepo {
	return catalogRepo{
		1: {ID: 1, SKU: "SKU-001", Name: "Blue Widget", Price: decimal.RequireFromString("19.99")},
		2: {ID: 2, SKU: "SKU-002", Name: "Red Widget", Price: decimal.RequireFromString("29.50")},
	}
}

func testCustomers() customerRepo {
	return customerRepo{
		1: {ID: 1, Name: "Alice"},
		2: {ID: 2, Name: "Bob"},
	}
}
