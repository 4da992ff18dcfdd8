package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hudson-blanoire/chroma-server/internal/model"
	"github.com/hudson-blanoire/chroma-server/internal/searchindex"
	"github.com/hudson-blanoire/chroma-server/internal/store"
)

type CollectionService struct {
	store store.Store
	idx   searchindex.Index
	log   zerolog.Logger
}

func NewCollectionService(s store.Store, idx searchindex.Index, log zerolog.Logger) *CollectionService {
	return &CollectionService{store: s, idx: idx, log: log}
}

// CreateCollectionRequest mirrors the create body plus tenant/database scope.
type CreateCollectionRequest struct {
	Name        string
	Metadata    model.Metadata
	GetOrCreate bool
	Tenant      string
	Database    string
}

func scope(tenant, database string) (string, string) {
	if tenant == "" {
		tenant = model.DefaultTenant
	}
	if database == "" {
		database = model.DefaultDatabase
	}
	return tenant, database
}

func validateCollectionMetadata(md model.Metadata) error {
	if err := md.Validate("metadata", false); err != nil {
		return err
	}
	if v, ok := md[model.SpaceKey]; ok {
		s, _ := v.(string)
		if !model.Space(s).Valid() {
			return model.Invalidf("metadata", "%s must be one of l2, cosine, ip", model.SpaceKey)
		}
	}
	return nil
}

// Create creates a collection, or returns the existing one when GetOrCreate is set.
func (s *CollectionService) Create(ctx context.Context, req CreateCollectionRequest) (*model.Collection, error) {
	if err := validateCollectionMetadata(req.Metadata); err != nil {
		return nil, err
	}
	tenant, database := scope(req.Tenant, req.Database)

	if req.GetOrCreate {
		existing, err := s.store.Collections().GetByName(ctx, tenant, database, req.Name)
		if err == nil {
			return existing, s.idx.EnsureCollection(ctx, existing.ID, existing.Space())
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
	}

	c, err := s.store.Collections().Create(ctx, &model.Collection{
		ID:       uuid.NewString(),
		Name:     req.Name,
		Metadata: req.Metadata,
		Tenant:   tenant,
		Database: database,
	})
	if err != nil {
		if req.GetOrCreate && errors.Is(err, model.ErrConflict) {
			// lost a race with a concurrent create
			return s.store.Collections().GetByName(ctx, tenant, database, req.Name)
		}
		return nil, err
	}
	if err := s.idx.EnsureCollection(ctx, c.ID, c.Space()); err != nil {
		s.log.Error().Err(err).Str("collection", c.ID).Msg("index registration failed; rolling back collection")
		_ = s.store.Collections().Delete(ctx, c.ID)
		return nil, err
	}
	s.log.Info().Str("collection", c.ID).Str("name", c.Name).Str("space", string(c.Space())).Msg("collection created")
	return c, nil
}

func (s *CollectionService) Get(ctx context.Context, tenant, database, name string) (*model.Collection, error) {
	tenant, database = scope(tenant, database)
	return s.store.Collections().GetByName(ctx, tenant, database, name)
}

func (s *CollectionService) GetByID(ctx context.Context, id string) (*model.Collection, error) {
	return s.store.Collections().GetByID(ctx, id)
}

func (s *CollectionService) List(ctx context.Context, tenant, database string, limit, offset int) ([]*model.Collection, error) {
	tenant, database = scope(tenant, database)
	return s.store.Collections().List(ctx, tenant, database, limit, offset)
}

func (s *CollectionService) Count(ctx context.Context, tenant, database string) (int, error) {
	tenant, database = scope(tenant, database)
	return s.store.Collections().Count(ctx, tenant, database)
}

// Update renames a collection and/or replaces its metadata. The distance space cannot change.
func (s *CollectionService) Update(ctx context.Context, id string, newName *string, newMetadata model.Metadata) error {
	c, err := s.store.Collections().GetByID(ctx, id)
	if err != nil {
		return err
	}
	if newMetadata != nil {
		if err := validateCollectionMetadata(newMetadata); err != nil {
			return err
		}
		if _, ok := newMetadata[model.SpaceKey]; ok {
			next := &model.Collection{Metadata: newMetadata}
			if next.Space() != c.Space() {
				return model.Invalidf("metadata", "changing the distance function of a collection is not supported")
			}
		} else if space, ok := c.Metadata[model.SpaceKey]; ok {
			// metadata is replaced wholesale; carry the space over
			newMetadata = newMetadata.Clone()
			newMetadata[model.SpaceKey] = space
		}
	}
	return s.store.Collections().Update(ctx, id, newName, newMetadata)
}

// Delete drops the index namespace first, then the stored collection and its records.
func (s *CollectionService) Delete(ctx context.Context, tenant, database, name string) error {
	c, err := s.Get(ctx, tenant, database, name)
	if err != nil {
		return err
	}
	if err := s.idx.DropCollection(ctx, c.ID); err != nil {
		return fmt.Errorf("drop index for collection %s: %w", c.ID, err)
	}
	if err := s.store.Collections().Delete(ctx, c.ID); err != nil {
		return err
	}
	s.log.Info().Str("collection", c.ID).Str("name", c.Name).Msg("collection deleted")
	return nil
}
