package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sales-order-api/internal/domain/catalog"
)

const (
	getCatalogItemsByIDsSQL = `SELECT id, sku, name, price, updated_at
		FROM catalog_items WHERE id = ANY($1)`

	upsertCatalogItemSQL = `INSERT INTO catalog_items (sku, name, price, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (sku) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, updated_at = now()
		RETURNING id`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetByIDs returns the catalog items matching any of the given IDs.
func (r *CatalogRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]catalog.Item, error) {
	rows, err := r.pool.Query(ctx, getCatalogItemsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting catalog items by ids: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanCatalogItem)
	if err != nil {
		return nil, fmt.Errorf("getting catalog items by ids: %w", err)
	}

	out := make(map[int64]catalog.Item, len(items))
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}

// Upsert inserts an item or updates the name and price of the item with the
// same SKU, returning its ID. Orders already placed keep their snapshots.
func (r *CatalogRepository) Upsert(ctx context.Context, it catalog.Item) (int64, error) {
	var id int64
	if err := r.pool.QueryRow(ctx, upsertCatalogItemSQL, it.SKU, it.Name, it.Price).Scan(&id); err != nil {
		return 0, fmt.Errorf("upserting catalog item %q: %w", it.SKU, err)
	}
	return id, nil
}

func scanCatalogItem(row pgx.CollectableRow) (catalog.Item, error) {
	var it catalog.Item
	err := row.Scan(&it.ID, &it.SKU, &it.Name, &it.Price, &it.UpdatedAt)
	return it, err
}
