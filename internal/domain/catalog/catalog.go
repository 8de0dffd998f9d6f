// Package catalog describes the read-only product catalog orders are priced
// from.
package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Item is a sellable catalog entry.
type Item struct {
	ID        int64
	SKU       string
	Name      string
	Price     decimal.Decimal
	UpdatedAt time.Time
}

// Repository defines read operations for the catalog.
type Repository interface {
	// GetByIDs returns the items that exist among ids, keyed by ID. Missing
	// ids are simply absent from the result; an error always means the
	// lookup itself failed.
	GetByIDs(ctx context.Context, ids []int64) (map[int64]Item, error)
}
