// Package customer describes the read-only customer reference data.
package customer

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested customer does not exist.
var ErrNotFound = errors.New("customer not found")

// Customer is a party orders are placed for.
type Customer struct {
	ID   int64
	Name string
}

// Repository defines read operations for customers. Lookups that fail for
// any reason other than absence return an error that is not ErrNotFound.
type Repository interface {
	Exists(ctx context.Context, id int64) (bool, error)
	GetByID(ctx context.Context, id int64) (*Customer, error)
	// GetByIDs returns the customers that exist among ids, keyed by ID.
	GetByIDs(ctx context.Context, ids []int64) (map[int64]Customer, error)
}
