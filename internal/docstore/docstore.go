// Package docstore defines the document store contract the engine runs on:
// point reads, filtered point-in-time queries, and an all-or-nothing
// multi-document write. Implementations are pure I/O; business rules live
// in the services.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Collection names used by the engine.
const (
	CollectionTemplates         = "templates"
	CollectionActivities        = "activities"
	CollectionAddenda           = "addenda"
	CollectionAssignees         = "assignees"
	CollectionOffices           = "offices"
	CollectionOfficeNames       = "office_names"
	CollectionSubscriptionIndex = "subscription_index"
	CollectionCheckinState      = "checkin_state"
	CollectionCheckinErrors     = "checkin_errors"
)

// Document is a stored record decoded to its generic JSON form.
type Document struct {
	Collection string
	ID         string
	Data       map[string]any
}

// Decode round-trips the document body into a typed struct.
func (d Document) Decode(v any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("encode document %s/%s: %w", d.Collection, d.ID, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document %s/%s: %w", d.Collection, d.ID, err)
	}
	return nil
}

// Op enumerates the filter operators every implementation must support.
type Op string

const (
	OpEq            Op = "=="
	OpIn            Op = "in"
	OpArrayContains Op = "array-contains"
	OpGTE           Op = ">="
	OpLTE           Op = "<="
)

// Filter narrows a Query to documents whose field satisfies Op against Value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where is shorthand for building a Filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// MergePolicy controls how a Write lands on an existing document.
type MergePolicy int

const (
	// MergeReplace overwrites the whole document.
	MergeReplace MergePolicy = iota
	// MergeSet upserts only the provided top-level fields.
	MergeSet
	// MergeCreate fails the entire batch with sentinel.ErrConflict when the
	// document already exists. Uniqueness indices rely on this.
	MergeCreate
	// MergeDelete removes the document; absent documents are a no-op.
	MergeDelete
)

// Write is one element of an atomic batch. Data may be any JSON-encodable
// value; it is ignored for MergeDelete.
type Write struct {
	Collection string
	ID         string
	Data       any
	Merge      MergePolicy
}

// Store is the engine's view of the database.
type Store interface {
	// Get returns a document or sentinel.ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Query returns documents matching all filters, up to limit
	// (0 = unlimited). The read is point-in-time but not repeatable.
	Query(ctx context.Context, collection string, filters []Filter, limit int) ([]Document, error)
	// AtomicWrite applies every write or none of them.
	AtomicWrite(ctx context.Context, writes []Write) error
}

// encode normalizes a write body to its generic JSON form so both
// implementations persist identical shapes.
func encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode write body: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("write body must be a JSON object: %w", err)
	}
	return m, nil
}
