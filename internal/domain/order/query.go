package order

import (
	"math"
	"strings"
	"time"
)

// Paging defaults.
const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// SortField is a sortable order attribute, named as the API exposes it.
type SortField string

// Sortable fields. Anything else is rejected.
const (
	SortByID          SortField = "id"
	SortByReference   SortField = "orderReference"
	SortByCustomerID  SortField = "customerId"
	SortBySubtotal    SortField = "subtotal"
	SortByVAT         SortField = "vat"
	SortByTotal       SortField = "total"
	SortByCreatedAt   SortField = "createdAt"
	SortByCancelledAt SortField = "cancelledAt"
	SortByStatus      SortField = "status"
)

var sortFields = map[SortField]struct{}{
	SortByID:          {},
	SortByReference:   {},
	SortByCustomerID:  {},
	SortBySubtotal:    {},
	SortByVAT:         {},
	SortByTotal:       {},
	SortByCreatedAt:   {},
	SortByCancelledAt: {},
	SortByStatus:      {},
}

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, err
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// start returns the first instant of the date in loc.
func (d Date) start(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// end returns the first instant of the following day in loc, the exclusive
// upper bound that covers the whole date.
func (d Date) end(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day+1, 0, 0, 0, 0, loc)
}

// ListParams holds the caller-supplied listing parameters. Zero values mean
// "use the default".
type ListParams struct {
	CreationDateFrom     *Date
	CreationDateTo       *Date
	CancellationDateFrom *Date
	CancellationDateTo   *Date
	Page                 int
	Size                 int
	SortBy               string
	SortDirection        string
}

// Query is a validated, bounded listing query. Time ranges are half-open:
// From is inclusive, Before is exclusive. Orders without a cancellation time
// always satisfy the cancellation bounds.
type Query struct {
	CreatedFrom     *time.Time
	CreatedBefore   *time.Time
	CancelledFrom   *time.Time
	CancelledBefore *time.Time
	Page            int
	Size            int
	SortBy          SortField
	Desc            bool
}

// Offset returns the number of rows preceding the requested page.
func (q Query) Offset() int {
	return q.Page * q.Size
}

// Translator turns ListParams into a Query.
type Translator struct {
	// Location is the reference zone calendar dates are interpreted in.
	Location    *time.Location
	DefaultSize int
	MaxSize     int
}

// Translate normalizes p: page floors at 0 and is capped so the row offset
// fits an int, non-positive size falls back to the default, size is capped,
// the sort field must be allow-listed and an unrecognized direction means
// descending.
func (t Translator) Translate(p ListParams) (Query, error) {
	loc := t.Location
	if loc == nil {
		loc = time.UTC
	}
	defSize, maxSize := t.DefaultSize, t.MaxSize
	if defSize <= 0 {
		defSize = DefaultPageSize
	}
	if maxSize <= 0 {
		maxSize = MaxPageSize
	}

	q := Query{
		Page:   max(p.Page, 0),
		Size:   p.Size,
		SortBy: SortByCreatedAt,
		Desc:   !strings.EqualFold(strings.TrimSpace(p.SortDirection), "asc"),
	}
	if q.Size <= 0 {
		q.Size = defSize
	}
	q.Size = min(q.Size, maxSize)
	// Keep Offset and Page+1 inside int.
	q.Page = min(q.Page, math.MaxInt/q.Size-1)

	if s := strings.TrimSpace(p.SortBy); s != "" {
		f := SortField(s)
		if _, ok := sortFields[f]; !ok {
			return Query{}, &ValidationError{Field: "sortBy", Reason: "unsupported sort field " + s}
		}
		q.SortBy = f
	}

	q.CreatedFrom = startOf(p.CreationDateFrom, loc)
	q.CreatedBefore = endOf(p.CreationDateTo, loc)
	q.CancelledFrom = startOf(p.CancellationDateFrom, loc)
	q.CancelledBefore = endOf(p.CancellationDateTo, loc)

	return q, nil
}

func startOf(d *Date, loc *time.Location) *time.Time {
	if d == nil {
		return nil
	}
	t := d.start(loc)
	return &t
}

func endOf(d *Date, loc *time.Location) *time.Time {
	if d == nil {
		return nil
	}
	t := d.end(loc)
	return &t
}

// Page is a slice of results with pagination metadata.
type Page[T any] struct {
	Content       []T
	Number        int
	Size          int
	TotalElements int64
	TotalPages    int
	First         bool
	Last          bool
}

// NewPage builds the envelope for content fetched with q out of total
// matching rows.
func NewPage[T any](content []T, q Query, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	pages := 0
	if q.Size > 0 {
		pages = int((total + int64(q.Size) - 1) / int64(q.Size))
	}
	return Page[T]{
		Content:       content,
		Number:        q.Page,
		Size:          q.Size,
		TotalElements: total,
		TotalPages:    pages,
		First:         q.Page == 0,
		Last:          q.Page >= pages-1,
	}
}
