package store

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrOutOfStock            = errors.New("out of stock")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrValidation            = errors.New("validation error")
	ErrInsufficientRemaining = errors.New("amount exceeds remaining balance")
	ErrEmptyCart             = errors.New("cart is empty")
	ErrConflict              = errors.New("concurrent modification")
)

// Document is a stored record. Every document carries "id", "created_at" and
// "updated_at" at the top level.
type Document = json.RawMessage

// Backend is the named-collection contract every component reads and writes through.
type Backend interface {
	// GetAll returns the collection in insertion order. A missing collection is empty.
	GetAll(ctx context.Context, collection string) ([]Document, error)
	GetByID(ctx context.Context, collection string, id string) (Document, error)
	// Add stores doc, generating an id when it has none and stamping timestamps.
	Add(ctx context.Context, collection string, doc Document) (Document, error)
	// Update shallow-merges patch into the stored document. ErrNotFound if absent.
	Update(ctx context.Context, collection string, id string, patch Document) (Document, error)
	Remove(ctx context.Context, collection string, id string) (bool, error)
	FindByField(ctx context.Context, collection string, field string, value any) ([]Document, error)
}

// Store is a Backend that can run a group of operations as one serialized unit.
// Writes made through tx inside fn become visible only if fn returns nil.
type Store interface {
	Backend
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Backend) error) error
	Close() error
}
