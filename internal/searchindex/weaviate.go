package searchindex

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	gql "github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/hudson-blanoire/chroma-server/internal/model"
)

const weaviateBatchSize = 100

// Weaviate is an Index backed by a Weaviate server.
type Weaviate struct {
	client *weaviate.Client
	log    zerolog.Logger

	mu      sync.RWMutex
	classes map[string]string // collection id -> class
}

// NewWeaviate constructs an Index backed by Weaviate at baseURL.
// baseURL should be host:port (without scheme), e.g., "localhost:8080".
func NewWeaviate(baseURL string, log zerolog.Logger) (*Weaviate, error) {
	cl, err := weaviate.NewClient(weaviate.Config{Scheme: "http", Host: baseURL})
	if err != nil {
		return nil, err
	}
	return &Weaviate{client: cl, log: log, classes: make(map[string]string)}, nil
}

// objectID derives a stable object UUID so upserts overwrite.
func objectID(collectionID, recordID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(collectionID+"/"+recordID)).String())
}

func (w *Weaviate) class(collectionID string) (string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	cls, ok := w.classes[collectionID]
	if !ok {
		return "", ErrUnknownCollection
	}
	return cls, nil
}

func (w *Weaviate) EnsureCollection(ctx context.Context, collectionID string, space model.Space) error {
	if _, err := w.class(collectionID); err == nil {
		return nil
	}
	cls, err := classFor(space)
	if err != nil {
		return err
	}
	if err := ensureTenant(ctx, w.client, cls, collectionID); err != nil {
		// the class may not exist yet when bootstrap is still running or failed
		if cerr := ensureMTClass(ctx, w.client, recordClass(space)); cerr != nil {
			return fmt.Errorf("weaviate ensure class: %w", cerr)
		}
		if err := ensureTenant(ctx, w.client, cls, collectionID); err != nil {
			return fmt.Errorf("weaviate ensure tenant: %w", err)
		}
	}
	w.mu.Lock()
	w.classes[collectionID] = cls
	w.mu.Unlock()
	return nil
}

func (w *Weaviate) Upsert(ctx context.Context, collectionID string, items []Item) error {
	cls, err := w.class(collectionID)
	if err != nil {
		return err
	}
	for start := 0; start < len(items); start += weaviateBatchSize {
		end := min(start+weaviateBatchSize, len(items))
		objs := make([]*models.Object, 0, end-start)
		for _, it := range items[start:end] {
			objs = append(objs, &models.Object{
				Class:      cls,
				ID:         objectID(collectionID, it.ID),
				Properties: map[string]interface{}{"recordId": it.ID, "collectionId": collectionID},
				Vector:     it.Embedding,
				Tenant:     collectionID,
			})
		}
		resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
		if err != nil {
			w.log.Error().Err(err).Int("batch_size", len(objs)).Str("first_object_id", objs[0].ID.String()).Msg("weaviate batch upsert failed")
			return err
		}
		for _, r := range resp {
			if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
				return fmt.Errorf("weaviate batch object %s: %s", r.ID, r.Result.Errors.Error[0].Message)
			}
		}
	}
	return nil
}

func (w *Weaviate) Delete(ctx context.Context, collectionID string, ids []string) error {
	cls, err := w.class(collectionID)
	if err != nil {
		return nil
	}
	for _, id := range ids {
		err := w.client.Data().Deleter().
			WithClassName(cls).
			WithTenant(collectionID).
			WithID(objectID(collectionID, id).String()).
			Do(ctx)
		if err != nil && !isNotFound(err) {
			return err
		}
	}
	return nil
}

func (w *Weaviate) DropCollection(ctx context.Context, collectionID string) error {
	cls, err := w.class(collectionID)
	if err != nil {
		return nil
	}
	if err := w.client.Schema().TenantsDeleter().WithClassName(cls).WithTenants(collectionID).Do(ctx); err != nil && !isNotFound(err) {
		return err
	}
	w.mu.Lock()
	delete(w.classes, collectionID)
	w.mu.Unlock()
	return nil
}

func (w *Weaviate) Search(ctx context.Context, collectionID string, vec []float32, k int) ([]Hit, error) {
	cls, err := w.class(collectionID)
	if err != nil {
		return nil, err
	}
	nv := w.client.GraphQL().NearVectorArgBuilder().WithVector(vec)
	resp, err := w.client.GraphQL().Get().
		WithClassName(cls).
		WithTenant(collectionID).
		WithNearVector(nv).
		WithLimit(k).
		WithFields(
			gql.Field{Name: "recordId"},
			gql.Field{Name: "_additional", Fields: []gql.Field{{Name: "distance"}}},
		).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate graphql: %s", formatGraphQLErrors(resp.Errors))
	}
	getData, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	raw, _ := getData[cls].([]interface{})
	hits := make([]Hit, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		id, _ := m["recordId"].(string)
		var d float64
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			switch v := add["distance"].(type) {
			case float64:
				d = v
			case string:
				d, _ = strconv.ParseFloat(v, 64)
			}
		}
		// weaviate reports dot distance as -a·b
		if cls == spaceClasses[model.SpaceIP].class {
			d = 1 + d
		}
		hits = append(hits, Hit{ID: id, Distance: float32(d)})
	}
	return hits, nil
}

func (w *Weaviate) Reset(ctx context.Context) error {
	for _, sc := range spaceClasses {
		if err := w.client.Schema().ClassDeleter().WithClassName(sc.class).Do(ctx); err != nil && !isNotFound(err) {
			return err
		}
	}
	w.mu.Lock()
	w.classes = make(map[string]string)
	w.mu.Unlock()
	return ensureClasses(ctx, w.client)
}

// HealthPing implements health.HealthPinger.
func (w *Weaviate) HealthPing(ctx context.Context) error {
	live, err := w.client.Misc().LiveChecker().Do(ctx)
	if err != nil {
		return err
	}
	if !live {
		return fmt.Errorf("weaviate not live")
	}
	return nil
}

func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "404") || strings.Contains(strings.ToLower(err.Error()), "not found")
}

// formatGraphQLErrors returns compact string with messages extracted for logging.
func formatGraphQLErrors(errs interface{}) string {
	if b, err := json.Marshal(errs); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", errs)
}
