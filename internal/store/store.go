// Package store provides the generic record-store consumed by the voice
// pipeline: insert and select over named collections with filter, order and
// limit. Backends classify their failures into the shared error kinds so
// callers can tell a missing collection from a denied write.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Row is a single record in a collection.
type Row map[string]any

// Query narrows and orders a Select.
type Query struct {
	// Filter matches rows whose fields equal the given values.
	Filter map[string]any
	// OrderBy names the field to sort on; empty means insertion order.
	OrderBy    string
	Descending bool
	// Limit caps the number of returned rows; <= 0 means no limit.
	Limit int
}

// Store is the record-store collaborator.
type Store interface {
	Insert(ctx context.Context, collection string, row Row) error
	Select(ctx context.Context, collection string, q Query) ([]Row, error)
	Close() error
}

var (
	// ErrPermissionDenied marks a row-level-security style denial.
	ErrPermissionDenied = errors.New("store: permission denied")
	// ErrCollectionNotFound marks a read or write against a collection that
	// does not exist.
	ErrCollectionNotFound = errors.New("store: collection not found")
)

func validCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("store: empty collection name")
	}
	for i, c := range name {
		switch {
		case c >= 'a' && c <= 'z':
		case c == '_':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return fmt.Errorf("store: invalid collection name %q", name)
		}
	}
	return nil
}
