package order

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/sales-order-api/internal/domain/catalog"
	"github.com/xenking/sales-order-api/internal/domain/customer"
	"github.com/xenking/sales-order-api/internal/domain/money"
)

// UnknownCustomerName is shown when an order's customer no longer resolves.
const UnknownCustomerName = "Unknown"

// DateLayout formats creation and cancellation dates (day/month/year).
const DateLayout = "02/01/2006"

// Config holds the non-dependency settings of the Service.
type Config struct {
	// VATRate is applied to the subtotal, e.g. 0.15.
	VATRate decimal.Decimal
	// Scale is the number of fractional digits VAT is rounded to.
	Scale int32
	// Location is the reference zone for date filters and formatted dates.
	Location        *time.Location
	DefaultPageSize int
	MaxPageSize     int

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// ItemRequest is one requested order line.
type ItemRequest struct {
	CatalogItemID int64
	Quantity      int
}

// CreateRequest holds the input for placing an order.
type CreateRequest struct {
	CustomerID int64
	Items      []ItemRequest
}

// View is an order assembled for presentation.
type View struct {
	Order        *Order
	CustomerName string
	// CreationDate and CancellationDate are formatted with DateLayout in the
	// configured zone. CancellationDate is empty until the order is
	// cancelled.
	CreationDate     string
	CancellationDate string
}

// Service encapsulates the order lifecycle and query logic.
type Service struct {
	catalog    catalog.Repository
	customers  customer.Repository
	orders     Repository
	vatRate    decimal.Decimal
	scale      int32
	loc        *time.Location
	translator Translator

	now    func() time.Time
	newRef func() string

	tracer    trace.Tracer
	created   metric.Int64Counter
	cancelled metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	items catalog.Repository,
	customers customer.Repository,
	orders Repository,
	cfg Config,
) (*Service, error) {
	if cfg.VATRate.IsNegative() {
		return nil, errors.Errorf("vat rate must not be negative, got %s", cfg.VATRate)
	}
	if cfg.Scale < 0 {
		return nil, errors.Errorf("money scale must not be negative, got %d", cfg.Scale)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = tracenoop.NewTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = metricnoop.NewMeterProvider()
	}

	meter := cfg.MeterProvider.Meter("sales-order-api/order")
	created, err := meter.Int64Counter("orders.created",
		metric.WithDescription("Number of orders placed"))
	if err != nil {
		return nil, errors.Wrap(err, "create counter")
	}
	cancelled, err := meter.Int64Counter("orders.cancelled",
		metric.WithDescription("Number of orders cancelled"))
	if err != nil {
		return nil, errors.Wrap(err, "create counter")
	}

	return &Service{
		catalog:   items,
		customers: customers,
		orders:    orders,
		vatRate:   cfg.VATRate,
		scale:     cfg.Scale,
		loc:       cfg.Location,
		translator: Translator{
			Location:    cfg.Location,
			DefaultSize: cfg.DefaultPageSize,
			MaxSize:     cfg.MaxPageSize,
		},
		now:       time.Now,
		newRef:    uuid.NewString,
		tracer:    cfg.TracerProvider.Tracer("sales-order-api/order"),
		created:   created,
		cancelled: cancelled,
	}, nil
}

// Scale reports the number of fractional digits VAT is rounded to.
func (s *Service) Scale() int32 { return s.scale }

// Create validates the request against reference data, prices every line
// from a catalog snapshot, and persists the order with its lines in one unit.
// Nothing is persisted unless every referenced entity exists.
func (s *Service) Create(ctx context.Context, req CreateRequest) (_ *View, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Create",
		trace.WithAttributes(attribute.Int64("customer.id", req.CustomerID)))
	defer func() { endSpan(span, rerr) }()

	if err := validate(req); err != nil {
		return nil, err
	}

	ok, err := s.customers.Exists(ctx, req.CustomerID)
	if err != nil {
		return nil, errors.Wrap(err, "check customer")
	}
	if !ok {
		return nil, &NotFoundError{Entity: EntityCustomer, ID: req.CustomerID}
	}

	// Batch fetch the distinct catalog items in a single lookup.
	ids := make([]int64, 0, len(req.Items))
	seen := make(map[int64]struct{}, len(req.Items))
	for _, item := range req.Items {
		if _, dup := seen[item.CatalogItemID]; dup {
			continue
		}
		seen[item.CatalogItemID] = struct{}{}
		ids = append(ids, item.CatalogItemID)
	}
	items, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get catalog items")
	}

	lines := make([]Line, len(req.Items))
	for i, item := range req.Items {
		ci, ok := items[item.CatalogItemID]
		if !ok {
			return nil, &NotFoundError{Entity: EntityCatalogItem, ID: item.CatalogItemID}
		}
		lines[i] = Line{
			CatalogItemID: ci.ID,
			ItemName:      ci.Name,
			UnitPrice:     ci.Price,
			Quantity:      item.Quantity,
			LineTotal:     money.LineTotal(ci.Price, item.Quantity),
		}
	}

	o := &Order{
		Reference:  s.newRef(),
		CustomerID: req.CustomerID,
		Lines:      lines,
		Status:     StatusCreated,
		// Stored timestamps carry microsecond precision.
		CreatedAt: s.now().Truncate(time.Microsecond),
	}
	totals := money.Compute(o.LineTotals(), s.vatRate, s.scale)
	o.Subtotal, o.VAT, o.Total = totals.Subtotal, totals.VAT, totals.Total

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	s.created.Add(ctx, 1)
	span.SetAttributes(attribute.Int64("order.id", o.ID))

	return s.viewAfterWrite(ctx, o), nil
}

// MaxQuantity is the largest quantity a single order line can carry.
const MaxQuantity = math.MaxInt32

func validate(req CreateRequest) error {
	if req.CustomerID <= 0 {
		return &ValidationError{Field: "customerId", Reason: "is required"}
	}
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	for i, item := range req.Items {
		if item.CatalogItemID <= 0 {
			return &ValidationError{
				Field:  fmt.Sprintf("items[%d].catalogItemId", i),
				Reason: "is required",
			}
		}
		if item.Quantity <= 0 {
			return &ValidationError{
				Field:  fmt.Sprintf("items[%d].quantity", i),
				Reason: "must be greater than 0",
			}
		}
		if item.Quantity > MaxQuantity {
			return &ValidationError{
				Field:  fmt.Sprintf("items[%d].quantity", i),
				Reason: "must be at most " + strconv.Itoa(MaxQuantity),
			}
		}
	}
	return nil
}

// Get returns a single order.
func (s *Service) Get(ctx context.Context, id int64) (_ *View, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Get",
		trace.WithAttributes(attribute.Int64("order.id", id)))
	defer func() { endSpan(span, rerr) }()

	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	name, err := s.customerName(ctx, o.CustomerID)
	if err != nil {
		return nil, err
	}
	return s.view(o, name), nil
}

// Cancel moves an order to StatusCancelled. Cancelling an already cancelled
// order returns it unchanged. A concurrent modification detected on write is
// reported as a ConflictError.
func (s *Service) Cancel(ctx context.Context, id int64) (_ *View, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Cancel",
		trace.WithAttributes(attribute.Int64("order.id", id)))
	defer func() { endSpan(span, rerr) }()

	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if o.Cancelled() {
		name, err := s.customerName(ctx, o.CustomerID)
		if err != nil {
			return nil, err
		}
		return s.view(o, name), nil
	}

	at := s.now().Truncate(time.Microsecond)
	o.Status = StatusCancelled
	o.CancelledAt = &at

	if err := s.orders.SaveCancellation(ctx, o); err != nil {
		switch {
		case errors.Is(err, ErrVersionConflict):
			return nil, &ConflictError{OrderID: id}
		case errors.Is(err, ErrNotFound):
			return nil, &NotFoundError{Entity: EntityOrder, ID: id}
		default:
			return nil, errors.Wrapf(err, "cancel order %d", id)
		}
	}
	s.cancelled.Add(ctx, 1)

	return s.viewAfterWrite(ctx, o), nil
}

// List returns one page of orders matching p.
func (s *Service) List(ctx context.Context, p ListParams) (_ Page[View], rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.List")
	defer func() { endSpan(span, rerr) }()

	q, err := s.translator.Translate(p)
	if err != nil {
		return Page[View]{}, err
	}

	orders, total, err := s.orders.List(ctx, q)
	if err != nil {
		return Page[View]{}, errors.Wrap(err, "list orders")
	}

	// Resolve customer names for the whole page at once.
	var ids []int64
	seen := make(map[int64]struct{}, len(orders))
	for _, o := range orders {
		if _, dup := seen[o.CustomerID]; !dup {
			seen[o.CustomerID] = struct{}{}
			ids = append(ids, o.CustomerID)
		}
	}
	customers := map[int64]customer.Customer{}
	if len(ids) > 0 {
		customers, err = s.customers.GetByIDs(ctx, ids)
		if err != nil {
			return Page[View]{}, errors.Wrap(err, "get customers")
		}
	}

	views := make([]View, len(orders))
	for i := range orders {
		name := UnknownCustomerName
		if c, ok := customers[orders[i].CustomerID]; ok {
			name = c.Name
		}
		views[i] = *s.view(&orders[i], name)
	}
	span.SetAttributes(attribute.Int64("orders.total", total))

	return NewPage(views, q, total), nil
}

func (s *Service) load(ctx context.Context, id int64) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Entity: EntityOrder, ID: id}
		}
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	return o, nil
}

// customerName resolves the display name, substituting UnknownCustomerName
// for customers that no longer exist.
func (s *Service) customerName(ctx context.Context, id int64) (string, error) {
	c, err := s.customers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return UnknownCustomerName, nil
		}
		return "", errors.Wrapf(err, "get customer %d", id)
	}
	return c.Name, nil
}

// viewAfterWrite assembles the view of an order that is already durable.
// A failed customer lookup must not fail the operation at this point.
func (s *Service) viewAfterWrite(ctx context.Context, o *Order) *View {
	name, err := s.customerName(ctx, o.CustomerID)
	if err != nil {
		zctx.From(ctx).Warn("Resolve customer name",
			zap.Int64("order_id", o.ID),
			zap.Int64("customer_id", o.CustomerID),
			zap.Error(err),
		)
		name = UnknownCustomerName
	}
	return s.view(o, name)
}

func (s *Service) view(o *Order, name string) *View {
	v := &View{
		Order:        o,
		CustomerName: name,
		CreationDate: o.CreatedAt.In(s.loc).Format(DateLayout),
	}
	if o.CancelledAt != nil {
		v.CancellationDate = o.CancelledAt.In(s.loc).Format(DateLayout)
	}
	return v
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
