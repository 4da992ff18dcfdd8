package store

import (
	"context"

	"github.com/hudson-blanoire/chroma-server/internal/model"
)

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (sqlite, postgres, bolt).
type Store interface {
	Collections() Collections
	Records() Records
	// Reset removes every collection and record.
	Reset(ctx context.Context) error
	Close() error
}

type Collections interface {
	// Create returns model.ErrConflict when the name is taken within tenant/database.
	Create(ctx context.Context, c *model.Collection) (*model.Collection, error)
	GetByID(ctx context.Context, id string) (*model.Collection, error)
	GetByName(ctx context.Context, tenant, database, name string) (*model.Collection, error)
	// List returns collections in creation order. limit <= 0 means no limit.
	List(ctx context.Context, tenant, database string, limit, offset int) ([]*model.Collection, error)
	Count(ctx context.Context, tenant, database string) (int, error)
	// ListAll returns collections across every tenant and database.
	ListAll(ctx context.Context) ([]*model.Collection, error)
	// Update renames and/or replaces metadata. nil arguments leave the field unchanged.
	Update(ctx context.Context, id string, newName *string, metadata model.Metadata) error
	SetDimension(ctx context.Context, id string, dim int) error
	// Delete removes the collection and all of its records.
	Delete(ctx context.Context, id string) error
}

type Records interface {
	// Insert adds new records; model.ErrConflict if any id already exists.
	Insert(ctx context.Context, collectionID string, recs []*model.Record) error
	// Upsert inserts or replaces records. Replaced records keep their Seq.
	Upsert(ctx context.Context, collectionID string, recs []*model.Record) error
	// GetByIDs returns found records in Seq order; unknown ids are skipped.
	GetByIDs(ctx context.Context, collectionID string, ids []string) ([]*model.Record, error)
	// List returns records in Seq order. limit <= 0 means no limit.
	List(ctx context.Context, collectionID string, limit, offset int) ([]*model.Record, error)
	// Delete removes the given ids and reports how many existed.
	Delete(ctx context.Context, collectionID string, ids []string) (int, error)
	Count(ctx context.Context, collectionID string) (int, error)
}
