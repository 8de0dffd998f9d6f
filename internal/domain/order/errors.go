package order

import (
	"fmt"
	"strconv"
)

// ErrEmptyItems is returned when an order request carries no lines.
var ErrEmptyItems = &ValidationError{Field: "items", Reason: "at least one item is required"}

// ValidationError indicates malformed or semantically invalid input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Entity names the kind of record a NotFoundError refers to.
type Entity string

// Entities that can be reported missing.
const (
	EntityCustomer    Entity = "customer"
	EntityCatalogItem Entity = "catalog item"
	EntityOrder       Entity = "order"
)

// NotFoundError indicates a referenced customer, catalog item or order does
// not exist.
type NotFoundError struct {
	Entity Entity
	ID     int64
}

func (e *NotFoundError) Error() string {
	return string(e.Entity) + " " + strconv.FormatInt(e.ID, 10) + " not found"
}

// ConflictError indicates the order was modified concurrently. Callers may
// retry the operation.
type ConflictError struct {
	OrderID int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("order %d was modified concurrently", e.OrderID)
}
