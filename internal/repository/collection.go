package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/event-lottery/internal/model"
)

// Collection is a typed view over one collection of a document store.
type Collection[T any] struct {
	docs Documents
	name string
	id   func(*T) string
}

// Get returns the document with id or ErrNotFound.
func (c Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	var doc T
	if err := c.docs.Get(ctx, c.name, id, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Replace writes the whole document, creating it when absent.
func (c Collection[T]) Replace(ctx context.Context, doc *T) error {
	return c.docs.Replace(ctx, c.name, c.id(doc), doc)
}

// List decodes every document in the collection.
func (c Collection[T]) List(ctx context.Context) ([]T, error) {
	bodies, err := c.docs.List(ctx, c.name)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(bodies))
	for _, body := range bodies {
		var doc T
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", c.name, err)
		}
		out = append(out, doc)
	}
	return out, nil
}

// ErrNoChange can be returned by an Update mutator to skip the write.
var ErrNoChange = errors.New("no change")

// Update reads the document, applies fn and writes the result back. When the
// store is transactional the read holds a row lock until the write commits;
// otherwise the cycle is last-writer-wins.
func (c Collection[T]) Update(ctx context.Context, id string, fn func(*T) error) (*T, error) {
	var out *T
	err := RunInTx(ctx, c.docs, func(ctx context.Context, docs Documents) error {
		scoped := Collection[T]{docs: docs, name: c.name, id: c.id}
		doc, err := scoped.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			if errors.Is(err, ErrNoChange) {
				out = doc
				return nil
			}
			return err
		}
		if err := scoped.Replace(ctx, doc); err != nil {
			return err
		}
		out = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EventRepository persists events.
type EventRepository struct {
	Collection[model.Event]
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(docs Documents) EventRepository {
	return EventRepository{Collection[model.Event]{docs: docs, name: CollectionEvents, id: func(e *model.Event) string { return e.ID }}}
}

// Create stores a new event under a generated id and sets event.ID.
func (r EventRepository) Create(ctx context.Context, event *model.Event) error {
	id, err := r.docs.Create(ctx, r.name, event)
	if err != nil {
		return err
	}
	event.ID = id
	return nil
}

// UserRepository persists user profiles.
type UserRepository struct {
	Collection[model.User]
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(docs Documents) UserRepository {
	return UserRepository{Collection[model.User]{docs: docs, name: CollectionUsers, id: func(u *model.User) string { return u.ID }}}
}

// OrganizerRepository persists organizer records.
type OrganizerRepository struct {
	Collection[model.Organizer]
}

// NewOrganizerRepository constructs an OrganizerRepository.
func NewOrganizerRepository(docs Documents) OrganizerRepository {
	return OrganizerRepository{Collection[model.Organizer]{docs: docs, name: CollectionOrganizers, id: func(o *model.Organizer) string { return o.ID }}}
}
