package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Collection gives typed access to one named collection of a Backend.
type Collection[T any] struct {
	backend Backend
	name    string
}

func NewCollection[T any](backend Backend, name string) Collection[T] {
	return Collection[T]{backend: backend, name: name}
}

// On returns the same collection bound to another backend, usually a transaction.
func (c Collection[T]) On(backend Backend) Collection[T] {
	return Collection[T]{backend: backend, name: c.name}
}

func (c Collection[T]) Name() string {
	return c.name
}

func (c Collection[T]) All(ctx context.Context) ([]T, error) {
	docs, err := c.backend.GetAll(ctx, c.name)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](c.name, docs)
}

func (c Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	doc, err := c.backend.GetByID(ctx, c.name, id)
	if err != nil {
		return zero, err
	}
	return decode[T](c.name, doc)
}

func (c Collection[T]) Add(ctx context.Context, value T) (T, error) {
	var zero T
	doc, err := json.Marshal(value)
	if err != nil {
		return zero, err
	}
	stored, err := c.backend.Add(ctx, c.name, doc)
	if err != nil {
		return zero, err
	}
	return decode[T](c.name, stored)
}

// Update applies patch, which must marshal to a JSON object of the fields to change.
func (c Collection[T]) Update(ctx context.Context, id string, patch any) (T, error) {
	var zero T
	doc, err := json.Marshal(patch)
	if err != nil {
		return zero, err
	}
	stored, err := c.backend.Update(ctx, c.name, id, doc)
	if err != nil {
		return zero, err
	}
	return decode[T](c.name, stored)
}

func (c Collection[T]) Remove(ctx context.Context, id string) (bool, error) {
	return c.backend.Remove(ctx, c.name, id)
}

func (c Collection[T]) FindBy(ctx context.Context, field string, value any) ([]T, error) {
	docs, err := c.backend.FindByField(ctx, c.name, field, value)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](c.name, docs)
}

// FindOne returns the first record whose field equals value, or ErrNotFound.
func (c Collection[T]) FindOne(ctx context.Context, field string, value any) (T, error) {
	var zero T
	found, err := c.FindBy(ctx, field, value)
	if err != nil {
		return zero, err
	}
	if len(found) == 0 {
		return zero, fmt.Errorf("%w: %s with %s=%v", ErrNotFound, c.name, field, value)
	}
	return found[0], nil
}

func decode[T any](collection string, doc Document) (T, error) {
	var out T
	if err := json.Unmarshal(doc, &out); err != nil {
		return out, fmt.Errorf("decode %s record: %w", collection, err)
	}
	return out, nil
}

func decodeAll[T any](collection string, docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := decode[T](collection, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
