package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/sales-order-api/internal/domain/money"
)

// Status is the lifecycle state of an order.
type Status string

// Order statuses. The only transition is StatusCreated → StatusCancelled.
const (
	StatusCreated   Status = "CREATED"
	StatusCancelled Status = "CANCELLED"
)

// Store errors. Implementations of Repository return these so the engine
// can tell absence and lost updates apart from infrastructure failures.
var (
	ErrNotFound        = errors.New("order not found")
	ErrVersionConflict = errors.New("order version conflict")
)

// Order is a sales order together with the lines it owns.
type Order struct {
	ID          int64
	Reference   string
	CustomerID  int64
	Lines       []Line
	Subtotal    decimal.Decimal
	VAT         decimal.Decimal
	Total       decimal.Decimal
	Status      Status
	CreatedAt   time.Time
	CancelledAt *time.Time
	Version     int64
}

// Line is a priced order line. ItemName and UnitPrice are snapshots taken
// when the order was placed and never follow later catalog changes.
type Line struct {
	ID            int64
	CatalogItemID int64
	ItemName      string
	UnitPrice     decimal.Decimal
	Quantity      int
	LineTotal     decimal.Decimal
}

// Cancelled reports whether the order has been cancelled.
func (o *Order) Cancelled() bool {
	return o.Status == StatusCancelled
}

// Totals returns the order's derived monetary fields.
func (o *Order) Totals() money.Totals {
	return money.Totals{Subtotal: o.Subtotal, VAT: o.VAT, Total: o.Total}
}

// LineTotals returns the line totals in line order.
func (o *Order) LineTotals() []decimal.Decimal {
	out := make([]decimal.Decimal, len(o.Lines))
	for i, l := range o.Lines {
		out[i] = l.LineTotal
	}
	return out
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists o and all of its lines atomically, assigning o.ID,
	// the line IDs and the initial o.Version.
	Create(ctx context.Context, o *Order) error
	// GetByID loads an order with its lines in placement order. Returns
	// ErrNotFound when absent.
	GetByID(ctx context.Context, id int64) (*Order, error)
	// SaveCancellation persists o.Status and o.CancelledAt only if the stored
	// version still equals o.Version, then increments o.Version. Returns
	// ErrVersionConflict when the stored version moved on and ErrNotFound
	// when the order vanished.
	SaveCancellation(ctx context.Context, o *Order) error
	// List returns one page of orders matching q and the total match count.
	List(ctx context.Context, q Query) ([]Order, int64, error)
}
