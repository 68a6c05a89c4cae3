// Package storage is the Document Store: schemaless documents addressed by collection and id,
// with filtered and ordered queries.
package storage

import (
	"context"
	"errors"

	"igstore/collections"
)

// ErrNoDocument is returned by Get when the document does not exist.
var ErrNoDocument = errors.New("could not find the Document")

// Direction orders query results.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Filter is a single field comparison. Op uses Firestore operators ("==", "<", ">=", ...).
type Filter struct {
	Path  string
	Op    string
	Value interface{}
}

// Order sorts query results by a single field.
type Order struct {
	Path      string
	Direction Direction
}

// Document is a stored record. References in Data are collections.Ref values.
type Document struct {
	ID   string
	Data map[string]interface{}
}

// Store defines the methods necessary for interacting with the underlying datastore.
// Useful for dependency injection in testing.
type Store interface {
	// Get returns ErrNoDocument when id does not exist in collection.
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Query returns the matching documents; order may be nil.
	Query(ctx context.Context, collection string, filters []Filter, order *Order) ([]*Document, error)
	// Set creates or overwrites the document.
	Set(ctx context.Context, collection, id string, data map[string]interface{}) error
	// Update merges fields into an existing document. Updating a missing document fails.
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, collection, id string) error
	// Add creates a document with a generated id.
	Add(ctx context.Context, collection string, data map[string]interface{}) (string, error)
	Close() error
}

// Exists reports whether the document exists, silencing ErrNoDocument since that is reflected
// in the bool return.
func Exists(ctx context.Context, s Store, collection, id string) (bool, error) {
	_, err := s.Get(ctx, collection, id)
	if errors.Is(err, ErrNoDocument) {
		return false, nil
	}
	return err == nil, err
}

func isRef(v interface{}) (collections.Ref, bool) {
	switch r := v.(type) {
	case collections.Ref:
		return r, true
	case *collections.Ref:
		if r != nil {
			return *r, true
		}
	}
	return collections.Ref{}, false
}
