// Package searchindex maintains the per-collection vector indexes used by query.
package searchindex

import (
	"context"
	"errors"

	"github.com/hudson-blanoire/chroma-server/internal/model"
)

// ErrUnknownCollection is returned when a collection was never registered with EnsureCollection.
var ErrUnknownCollection = errors.New("collection not registered with index")

// Item is a vector to index under a record id.
type Item struct {
	ID        string
	Embedding []float32
}

// Hit is a search result; lower distance is closer.
type Hit struct {
	ID       string
	Distance float32
}

// Index provides nearest-neighbour search and index maintenance, one namespace per collection.
type Index interface {
	// EnsureCollection registers a collection and its distance space. Idempotent.
	EnsureCollection(ctx context.Context, collectionID string, space model.Space) error
	// Upsert inserts or replaces vectors.
	Upsert(ctx context.Context, collectionID string, items []Item) error
	// Delete removes vectors; unknown ids are ignored.
	Delete(ctx context.Context, collectionID string, ids []string) error
	DropCollection(ctx context.Context, collectionID string) error
	// Search returns up to k hits ordered by ascending distance.
	Search(ctx context.Context, collectionID string, vec []float32, k int) ([]Hit, error)
	// Reset drops every collection.
	Reset(ctx context.Context) error
}

// IsVolatile reports whether idx loses its contents on restart and must be rebuilt from the store.
func IsVolatile(idx Index) bool {
	v, ok := idx.(interface{ Volatile() bool })
	return ok && v.Volatile()
}
