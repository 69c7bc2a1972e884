// Package docstore is the boundary to the remote document store holding the
// parking status record, bookings and payments. Adapters normalize values
// (timestamps in particular) before documents reach the parking core.
package docstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
)

// Fields is the field set of a single document.
type Fields map[string]interface{}

// Document is a stored document and its metadata.
type Document struct {
	ID         string
	Fields     Fields
	UpdateTime time.Time
}

// Filter is an equality condition used by Query.
type Filter struct {
	Field string
	Value interface{}
}

// Where builds an equality filter.
func Where(field string, value interface{}) Filter {
	return Filter{Field: field, Value: value}
}

// UpdateFunc receives the current document and returns the fields to merge
// into it. Returning an error aborts the update without writing.
type UpdateFunc func(doc Document) (Fields, error)

// Store is the set of operations the parking core consumes. Each call is
// atomic on its own; Update is the only read-modify-write primitive.
type Store interface {
	// Get reads one document. Missing documents yield ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Set merges fields into the document, creating it when absent.
	Set(ctx context.Context, collection, id string, fields Fields) error
	// Create inserts a document under a generated id.
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	// Query returns documents matching all filters. Order is unspecified.
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	// Update atomically reads the document, applies fn and merges the result.
	// Missing documents yield ErrNotFound without calling fn.
	Update(ctx context.Context, collection, id string, fn UpdateFunc) error
	Close() error
}
