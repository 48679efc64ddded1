// Package repository persists lottery state. Events, users and organizers
// live in a remote document store; notifications live in a local SQLite inbox.
package repository

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("not found")

// Collection names in the document store.
const (
	CollectionEvents     = "events"
	CollectionUsers      = "users"
	CollectionOrganizers = "organizers"
)

// Documents is the remote document store the core depends on.
type Documents interface {
	// Get decodes the document into dst or returns ErrNotFound.
	Get(ctx context.Context, collection, id string, dst any) error
	// Replace creates or fully replaces the document.
	Replace(ctx context.Context, collection, id string, doc any) error
	// Create stores doc under a generated id and returns it.
	Create(ctx context.Context, collection string, doc any) (string, error)
	// List returns the raw bodies of every document in collection.
	List(ctx context.Context, collection string) ([]json.RawMessage, error)
}

// Transactor is implemented by stores that can run several reads and writes
// atomically. Reads inside fn lock the rows they touch.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, docs Documents) error) error
}

// IDSetter lets Create stamp the generated id onto a document before it is stored.
type IDSetter interface {
	SetID(id string)
}

// RunInTx runs fn inside a transaction when docs supports one, otherwise it
// runs fn directly against docs.
func RunInTx(ctx context.Context, docs Documents, fn func(ctx context.Context, docs Documents) error) error {
	if tx, ok := docs.(Transactor); ok {
		return tx.InTx(ctx, fn)
	}
	return fn(ctx, docs)
}

// Transactional reports whether docs provides atomic multi-document writes.
func Transactional(docs Documents) bool {
	_, ok := docs.(Transactor)
	return ok
}
