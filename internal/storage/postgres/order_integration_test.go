//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/sales-order-api/internal/domain/auth"
	"github.com/xenking/sales-order-api/internal/domain/catalog"
	"github.com/xenking/sales-order-api/internal/domain/customer"
	"github.com/xenking/sales-order-api/internal/domain/order"
)

type StoreSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	pool      *pgxpool.Pool

	orders    *OrderRepository
	catalog   *CatalogRepository
	customers *CustomerRepository
	apikeys   *APIKeyRepository
	svc       *order.Service
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("sales"),
		tcpostgres.WithUsername("sales"),
		tcpostgres.WithPassword("sales"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	pool, err := NewPool(ctx, dsn, 8)
	s.Require().NoError(err)
	s.pool = pool
	s.Require().NoError(RunMigrations(ctx, pool))

	s.orders = NewOrderRepository(pool)
	s.catalog = NewCatalogRepository(pool)
	s.customers = NewCustomerRepository(pool)
	s.apikeys = NewAPIKeyRepository(pool)

	svc, err := order.NewService(s.catalog, s.customers, s.orders, order.Config{
		VATRate: decimal.RequireFromString("0.15"),
		Scale:   2,
	})
	s.Require().NoError(err)
	s.svc = svc
}

func (s *StoreSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		s.Require().NoError(s.container.Terminate(context.Background()))
	}
}

func (s *StoreSuite) SetupTest() {
	ctx := context.Background()
	_, err := s.pool.Exec(ctx, `TRUNCATE order_lines, sales_orders, catalog_items, customers, api_keys RESTART IDENTITY CASCADE`)
	s.Require().NoError(err)

	s.Require().NoError(s.customers.Upsert(ctx,
		customer.Customer{ID: 1, Name: "Alice"},
		customer.Customer{ID: 2, Name: "Bob"},
	))
	_, err = s.catalog.Upsert(ctx, catalog.Item{SKU: "SKU-001", Name: "Blue Widget", Price: decimal.RequireFromString("19.99")})
	s.Require().NoError(err)
	_, err = s.catalog.Upsert(ctx, catalog.Item{SKU: "SKU-002", Name: "Red Widget", Price: decimal.RequireFromString("29.50")})
	s.Require().NoError(err)
}

func (s *StoreSuite) countOrders() int {
	var n int
	s.Require().NoError(s.pool.QueryRow(context.Background(), `SELECT count(*) FROM sales_orders`).Scan(&n))
	return n
}

func (s *StoreSuite) create(customerID int64) *order.View {
	v, err := s.svc.Create(context.Background(), order.CreateRequest{
		CustomerID: customerID,
		Items: []order.ItemRequest{
			{CatalogItemID: 1, Quantity: 2},
			{CatalogItemID: 2, Quantity: 1},
		},
	})
	s.Require().NoError(err)
	return v
}

func (s *StoreSuite) TestCreate_RoundTrip() {
	created := s.create(1)

	fetched, err := s.svc.Get(context.Background(), created.Order.ID)
	s.Require().NoError(err)

	s.Equal(created.Order.Reference, fetched.Order.Reference)
	s.Equal("69.48", fetched.Order.Subtotal.StringFixed(2))
	s.Equal("10.42", fetched.Order.VAT.StringFixed(2))
	s.Equal("79.90", fetched.Order.Total.StringFixed(2))
	s.True(created.Order.Total.Equal(fetched.Order.Total))
	s.True(created.Order.CreatedAt.Equal(fetched.Order.CreatedAt))
	s.Require().Len(fetched.Order.Lines, 2)
	s.Equal("Blue Widget", fetched.Order.Lines[0].ItemName)
	s.Equal(created.Order.Lines[0].ID, fetched.Order.Lines[0].ID)
	s.Equal("Red Widget", fetched.Order.Lines[1].ItemName)
	s.Equal(int64(1), fetched.Order.Version)
	s.Equal("Alice", fetched.CustomerName)
}

func (s *StoreSuite) TestCreate_MissingItemPersistsNothing() {
	_, err := s.svc.Create(context.Background(), order.CreateRequest{
		CustomerID: 1,
		Items:      []order.ItemRequest{{CatalogItemID: 1, Quantity: 1}, {CatalogItemID: 404, Quantity: 1}},
	})

	var nfErr *order.NotFoundError
	s.Require().ErrorAs(err, &nfErr)
	s.Zero(s.countOrders())
}

func (s *StoreSuite) TestCreate_PriceChangeKeepsSnapshot() {
	created := s.create(1)

	_, err := s.catalog.Upsert(context.Background(), catalog.Item{SKU: "SKU-001", Name: "Blue Widget v2", Price: decimal.RequireFromString("99.00")})
	s.Require().NoError(err)

	fetched, err := s.svc.Get(context.Background(), created.Order.ID)
	s.Require().NoError(err)
	s.Equal("Blue Widget", fetched.Order.Lines[0].ItemName)
	s.Equal("19.99", fetched.Order.Lines[0].UnitPrice.StringFixed(2))
}

func (s *StoreSuite) TestGetByID_NotFound() {
	_, err := s.orders.GetByID(context.Background(), 999)
	s.ErrorIs(err, order.ErrNotFound)
}

func (s *StoreSuite) TestCancel_IdempotentAndVersioned() {
	ctx := context.Background()
	created := s.create(1)

	first, err := s.svc.Cancel(ctx, created.Order.ID)
	s.Require().NoError(err)
	s.Equal(order.StatusCancelled, first.Order.Status)
	s.Equal(int64(2), first.Order.Version)

	second, err := s.svc.Cancel(ctx, created.Order.ID)
	s.Require().NoError(err)
	s.True(first.Order.CancelledAt.Equal(*second.Order.CancelledAt))
	s.Equal(int64(2), second.Order.Version)
}

func (s *StoreSuite) TestSaveCancellation_StaleVersion() {
	ctx := context.Background()
	created := s.create(1)

	stale, err := s.orders.GetByID(ctx, created.Order.ID)
	s.Require().NoError(err)
	fresh, err := s.orders.GetByID(ctx, created.Order.ID)
	s.Require().NoError(err)

	now := time.Now().Truncate(time.Microsecond)
	fresh.Status, fresh.CancelledAt = order.StatusCancelled, &now
	s.Require().NoError(s.orders.SaveCancellation(ctx, fresh))

	stale.Status, stale.CancelledAt = order.StatusCancelled, &now
	s.ErrorIs(s.orders.SaveCancellation(ctx, stale), order.ErrVersionConflict)

	missing := &order.Order{ID: 12345, Status: order.StatusCancelled, CancelledAt: &now, Version: 1}
	s.ErrorIs(s.orders.SaveCancellation(ctx, missing), order.ErrNotFound)
}

func (s *StoreSuite) TestCancel_Concurrent() {
	ctx := context.Background()
	created := s.create(1)

	const callers = 6
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.svc.Cancel(ctx, created.Order.ID)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			var cErr *order.ConflictError
			s.Require().ErrorAs(err, &cErr)
		}
	}

	final, err := s.orders.GetByID(ctx, created.Order.ID)
	s.Require().NoError(err)
	s.Equal(order.StatusCancelled, final.Status)
	s.NotNil(final.CancelledAt)
	s.Equal(int64(2), final.Version, "exactly one cancellation write")
}

func (s *StoreSuite) TestList_FilterSortPage() {
	ctx := context.Background()
	for _, cid := range []int64{1, 2, 1} {
		s.create(cid)
	}
	_, err := s.pool.Exec(ctx, `UPDATE sales_orders SET created_at = ('2024-01-0' || id || ' 12:00:00+00')::timestamptz`)
	s.Require().NoError(err)

	page, err := s.svc.List(ctx, order.ListParams{
		CreationDateFrom: &order.Date{Year: 2024, Month: time.January, Day: 2},
		SortBy:           "createdAt",
		SortDirection:    "asc",
		Size:             1,
	})
	s.Require().NoError(err)

	s.Equal(int64(2), page.TotalElements)
	s.Equal(2, page.TotalPages)
	s.True(page.First)
	s.False(page.Last)
	s.Require().Len(page.Content, 1)
	s.Equal(int64(2), page.Content[0].Order.ID)
	s.Equal("Bob", page.Content[0].CustomerName)
	s.Len(page.Content[0].Order.Lines, 2)
}

func (s *StoreSuite) TestList_EmptyRange() {
	s.create(1)

	page, err := s.svc.List(context.Background(), order.ListParams{
		CreationDateTo: &order.Date{Year: 2000, Month: time.January, Day: 1},
	})
	s.Require().NoError(err)
	s.Empty(page.Content)
	s.Zero(page.TotalElements)
	s.Zero(page.TotalPages)
	s.True(page.First)
	s.True(page.Last)
}

func (s *StoreSuite) TestList_CancellationRangeKeepsOpenOrders() {
	ctx := context.Background()
	open := s.create(1)
	cancelled := s.create(2)
	_, err := s.svc.Cancel(ctx, cancelled.Order.ID)
	s.Require().NoError(err)

	page, err := s.svc.List(ctx, order.ListParams{
		CancellationDateTo: &order.Date{Year: 2000, Month: time.January, Day: 1},
	})
	s.Require().NoError(err)
	s.Require().Len(page.Content, 1)
	s.Equal(open.Order.ID, page.Content[0].Order.ID)
}

func (s *StoreSuite) TestCustomers() {
	ctx := context.Background()

	ok, err := s.customers.Exists(ctx, 2)
	s.Require().NoError(err)
	s.True(ok)

	_, err = s.customers.GetByID(ctx, 77)
	s.ErrorIs(err, customer.ErrNotFound)

	got, err := s.customers.GetByIDs(ctx, []int64{1, 77})
	s.Require().NoError(err)
	s.Len(got, 1)
	s.Equal("Alice", got[1].Name)
}

func (s *StoreSuite) TestAPIKeys() {
	ctx := context.Background()
	s.Require().NoError(s.apikeys.Upsert(ctx, auth.APIKeyInfo{
		ID: "default", KeyHash: "abc", Name: "test", Scopes: []string{auth.ScopeOrders},
	}))

	info, err := s.apikeys.FindByHash(ctx, "abc")
	s.Require().NoError(err)
	s.True(info.HasScope(auth.ScopeOrders))

	_, err = s.apikeys.FindByHash(ctx, "nope")
	s.ErrorIs(err, auth.ErrKeyNotFound)
}
