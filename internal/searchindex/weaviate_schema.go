package searchindex

import (
	"context"
	"fmt"
	"time"

	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/hudson-blanoire/chroma-server/internal/model"
)

// One multi-tenant class per distance space; the tenant is the collection id.
var spaceClasses = map[model.Space]struct {
	class    string
	distance string
}{
	model.SpaceL2:     {"ChromaRecordL2", "l2-squared"},
	model.SpaceCosine: {"ChromaRecordCosine", "cosine"},
	model.SpaceIP:     {"ChromaRecordDot", "dot"},
}

func classFor(space model.Space) (string, error) {
	sc, ok := spaceClasses[space]
	if !ok {
		return "", fmt.Errorf("unsupported space %q", space)
	}
	return sc.class, nil
}

func recordClass(space model.Space) *models.Class {
	sc := spaceClasses[space]
	return &models.Class{
		Class:      sc.class,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "recordId", DataType: []string{"text"}},
			{Name: "collectionId", DataType: []string{"text"}},
		},
		VectorIndexConfig:  map[string]interface{}{"distance": sc.distance},
		MultiTenancyConfig: &models.MultiTenancyConfig{Enabled: true},
	}
}

// BootstrapWeaviate ensures required classes exist with multi-tenancy enabled.
// Classes that exist without multi-tenancy are dropped and recreated.
func BootstrapWeaviate(ctx context.Context, baseURL string) error {
	cl, err := weaviate.NewClient(weaviate.Config{Scheme: "http", Host: baseURL})
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return ensureClasses(cctx, cl)
}

func ensureClasses(ctx context.Context, cl *weaviate.Client) error {
	for _, space := range []model.Space{model.SpaceL2, model.SpaceCosine, model.SpaceIP} {
		if err := ensureMTClass(ctx, cl, recordClass(space)); err != nil {
			return fmt.Errorf("bootstrap %s: %w", space, err)
		}
	}
	return nil
}

func ensureMTClass(ctx context.Context, cl *weaviate.Client, desired *models.Class) error {
	ex, err := cl.Schema().ClassGetter().WithClassName(desired.Class).Do(ctx)
	if err == nil && ex != nil {
		if ex.MultiTenancyConfig != nil && ex.MultiTenancyConfig.Enabled {
			return nil
		}
		if err := cl.Schema().ClassDeleter().WithClassName(desired.Class).Do(ctx); err != nil {
			return fmt.Errorf("delete class %s: %w", desired.Class, err)
		}
	}
	if err := cl.Schema().ClassCreator().WithClass(desired).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", desired.Class, err)
	}
	return nil
}

// ensureTenant creates the tenant for the given class if it does not already exist.
func ensureTenant(ctx context.Context, cl *weaviate.Client, className, tenant string) error {
	ex, err := cl.Schema().TenantsGetter().WithClassName(className).Do(ctx)
	if err == nil {
		for _, t := range ex {
			if t.Name == tenant {
				return nil
			}
		}
	}
	return cl.Schema().TenantsCreator().WithClassName(className).WithTenants(models.Tenant{Name: tenant}).Do(ctx)
}
