package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sales-order-api/internal/domain/customer"
)

const (
	customerExistsSQL       = `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`
	getCustomerByIDSQL      = `SELECT id, name FROM customers WHERE id = $1`
	getCustomersByIDsSQL    = `SELECT id, name FROM customers WHERE id = ANY($1)`
	upsertCustomerSQL       = `INSERT INTO customers (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`
	syncCustomerSequenceSQL = `SELECT setval(pg_get_serial_sequence('customers', 'id'),
		GREATEST((SELECT COALESCE(MAX(id), 0) FROM customers), 1))`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// Exists reports whether a customer with the given ID exists.
func (r *CustomerRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, customerExistsSQL, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking customer %d: %w", id, err)
	}
	return ok, nil
}

// GetByID returns a single customer. Returns customer.ErrNotFound when no
// such customer exists.
func (r *CustomerRepository) GetByID(ctx context.Context, id int64) (*customer.Customer, error) {
	var c customer.Customer
	err := r.pool.QueryRow(ctx, getCustomerByIDSQL, id).Scan(&c.ID, &c.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %d: %w", id, err)
	}
	return &c, nil
}

// GetByIDs returns the customers matching any of the given IDs.
func (r *CustomerRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]customer.Customer, error) {
	rows, err := r.pool.Query(ctx, getCustomersByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting customers by ids: %w", err)
	}
	cs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[customer.Customer])
	if err != nil {
		return nil, fmt.Errorf("getting customers by ids: %w", err)
	}

	out := make(map[int64]customer.Customer, len(cs))
	for _, c := range cs {
		out[c.ID] = c
	}
	return out, nil
}

// Upsert inserts or renames customers with explicit IDs and moves the ID
// sequence past them, all in one transaction.
func (r *CustomerRepository) Upsert(ctx context.Context, cs ...customer.Customer) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, c := range cs {
			if _, err := tx.Exec(ctx, upsertCustomerSQL, c.ID, c.Name); err != nil {
				return fmt.Errorf("upserting customer %d: %w", c.ID, err)
			}
		}
		if _, err := tx.Exec(ctx, syncCustomerSequenceSQL); err != nil {
			return fmt.Errorf("syncing customer id sequence: %w", err)
		}
		return nil
	})
}
