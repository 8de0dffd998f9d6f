package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sales-order-api/internal/domain/order"
)

const (
	orderColumns = `id, order_reference, customer_id, subtotal, vat, total,
		status, created_at, cancelled_at, version`

	insertOrderSQL = `INSERT INTO sales_orders
		(order_reference, customer_id, subtotal, vat, total, status, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
		RETURNING id, version`

	insertOrderLineSQL = `INSERT INTO order_lines
		(order_id, position, catalog_item_id, item_name, unit_price, quantity, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM sales_orders WHERE id = $1`

	getOrderLinesSQL = `SELECT order_id, id, catalog_item_id, item_name, unit_price, quantity, line_total
		FROM order_lines WHERE order_id = ANY($1) ORDER BY order_id, position`

	saveCancellationSQL = `UPDATE sales_orders
		SET status = $2, cancelled_at = $3, version = version + 1
		WHERE id = $1 AND version = $4
		RETURNING version`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM sales_orders WHERE id = $1)`
)

// sortColumns maps every sortable field to its column. Only these strings are
// ever interpolated into ORDER BY.
var sortColumns = map[order.SortField]string{
	order.SortByID:          "id",
	order.SortByReference:   "order_reference",
	order.SortByCustomerID:  "customer_id",
	order.SortBySubtotal:    "subtotal",
	order.SortByVAT:         "vat",
	order.SortByTotal:       "total",
	order.SortByCreatedAt:   "created_at",
	order.SortByCancelledAt: "cancelled_at",
	order.SortByStatus:      "status",
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order and its lines in a single transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertOrderSQL,
			o.Reference, o.CustomerID, o.Subtotal, o.VAT, o.Total, string(o.Status), o.CreatedAt,
		).Scan(&o.ID, &o.Version)
		if err != nil {
			return fmt.Errorf("inserting order: %w", err)
		}

		batch := &pgx.Batch{}
		for i := range o.Lines {
			l := &o.Lines[i]
			batch.Queue(insertOrderLineSQL,
				o.ID, i, l.CatalogItemID, l.ItemName, l.UnitPrice, l.Quantity, l.LineTotal,
			).QueryRow(func(row pgx.Row) error {
				return row.Scan(&l.ID)
			})
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting order lines: %w", err)
		}
		return nil
	})
	if err != nil {
		o.ID, o.Version = 0, 0
		for i := range o.Lines {
			o.Lines[i].ID = 0
		}
		return fmt.Errorf("creating order %q: %w", o.Reference, err)
	}
	return nil
}

// GetByID loads an order and its lines. Returns order.ErrNotFound when no
// such order exists.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}

	orders := []order.Order{o}
	if err := attachLines(ctx, r.pool, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// SaveCancellation writes the cancellation if the stored version still
// matches o.Version.
func (r *OrderRepository) SaveCancellation(ctx context.Context, o *order.Order) error {
	var version int64
	err := r.pool.QueryRow(ctx, saveCancellationSQL,
		o.ID, string(o.Status), o.CancelledAt, o.Version,
	).Scan(&version)
	if err == nil {
		o.Version = version
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("saving cancellation of order %d: %w", o.ID, err)
	}

	// Nothing matched: either the row is gone or its version moved on.
	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, o.ID).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %d: %w", o.ID, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrVersionConflict
}

// List returns one page of orders and the total number of matches. Count and
// page are read from the same snapshot.
func (r *OrderRepository) List(ctx context.Context, q order.Query) ([]order.Order, int64, error) {
	col, ok := sortColumns[q.SortBy]
	if !ok {
		return nil, 0, errors.Errorf("unsupported sort field %q", q.SortBy)
	}
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}

	where, args := filterClause(q)
	countSQL := `SELECT count(*) FROM sales_orders` + where
	pageSQL := `SELECT ` + orderColumns + ` FROM sales_orders` + where +
		` ORDER BY ` + col + ` ` + dir + `, id ` + dir +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)

	var (
		total  int64
		orders []order.Order
	)
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
			return fmt.Errorf("counting orders: %w", err)
		}
		if total == 0 {
			return nil
		}

		rows, err := tx.Query(ctx, pageSQL, append(args, q.Size, q.Offset())...)
		if err != nil {
			return fmt.Errorf("listing orders: %w", err)
		}
		orders, err = pgx.CollectRows(rows, scanOrder)
		if err != nil {
			return fmt.Errorf("listing orders: %w", err)
		}
		return attachLines(ctx, tx, orders)
	})
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// filterClause renders the WHERE clause for q. A NULL cancelled_at satisfies
// both cancellation bounds.
func filterClause(q order.Query) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(format string, v time.Time) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(format, len(args)))
	}
	if q.CreatedFrom != nil {
		add("created_at >= $%d", *q.CreatedFrom)
	}
	if q.CreatedBefore != nil {
		add("created_at < $%d", *q.CreatedBefore)
	}
	if q.CancelledFrom != nil {
		add("(cancelled_at IS NULL OR cancelled_at >= $%d)", *q.CancelledFrom)
	}
	if q.CancelledBefore != nil {
		add("(cancelled_at IS NULL OR cancelled_at < $%d)", *q.CancelledBefore)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// attachLines loads the lines of every order in one query.
func attachLines(ctx context.Context, db querier, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	byID := make(map[int64]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	rows, err := db.Query(ctx, getOrderLinesSQL, ids)
	if err != nil {
		return fmt.Errorf("getting order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID int64
			l       order.Line
		)
		if err := rows.Scan(&orderID, &l.ID, &l.CatalogItemID, &l.ItemName,
			&l.UnitPrice, &l.Quantity, &l.LineTotal); err != nil {
			return fmt.Errorf("scanning order line: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Lines = append(o.Lines, l)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("getting order lines: %w", err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.Reference, &o.CustomerID, &o.Subtotal, &o.VAT, &o.Total,
		&status, &o.CreatedAt, &o.CancelledAt, &o.Version,
	)
	o.Status = order.Status(status)
	return o, err
}
