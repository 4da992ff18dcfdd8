// Package storetest holds the compliance suite every store driver must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/hudson-blanoire/chroma-server/internal/model"
	"github.com/hudson-blanoire/chroma-server/internal/store"
)

// Run exercises a compliance suite against a store.Store implementation.
// Implementations should provide a clean, isolated store and return it from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("collections", func(t *testing.T) { testCollections(t, makeStore(t)) })
	t.Run("records", func(t *testing.T) { testRecords(t, makeStore(t)) })
	t.Run("cascade_and_reset", func(t *testing.T) { testCascadeAndReset(t, makeStore(t)) })
	t.Run("concurrent_seq", func(t *testing.T) { testConcurrentSeq(t, makeStore(t)) })
}

func newCollection(name string) *model.Collection {
	return &model.Collection{
		ID:       uuid.NewString(),
		Name:     name,
		Tenant:   model.DefaultTenant,
		Database: model.DefaultDatabase,
	}
}

func str(s string) *string { return &s }

func testCollections(t *testing.T, s store.Store) {
	ctx := context.Background()
	cols := s.Collections()

	in := newCollection("alpha")
	in.Metadata = model.Metadata{"hnsw:space": "cosine", "n": 3.0}
	c, err := cols.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.CreationTime.IsZero() {
		t.Fatalf("Create: creation time not set")
	}
	if _, err := cols.Create(ctx, newCollection("alpha")); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("Create duplicate: want ErrConflict, got %v", err)
	}
	other := newCollection("alpha")
	other.Database = "elsewhere"
	if _, err := cols.Create(ctx, other); err != nil {
		t.Fatalf("Create same name other database: %v", err)
	}

	got, err := cols.GetByID(ctx, c.ID)
	if err != nil || got.Name != "alpha" || got.Metadata["hnsw:space"] != "cosine" || got.Dimension != nil {
		t.Fatalf("GetByID: got=%+v err=%v", got, err)
	}
	if got, err := cols.GetByName(ctx, model.DefaultTenant, model.DefaultDatabase, "alpha"); err != nil || got.ID != c.ID {
		t.Fatalf("GetByName: got=%+v err=%v", got, err)
	}
	if _, err := cols.GetByName(ctx, model.DefaultTenant, model.DefaultDatabase, "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetByName missing: want ErrNotFound, got %v", err)
	}
	if _, err := cols.GetByID(ctx, uuid.NewString()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetByID missing: want ErrNotFound, got %v", err)
	}

	if _, err := cols.Create(ctx, newCollection("beta")); err != nil {
		t.Fatalf("Create beta: %v", err)
	}
	if _, err := cols.Create(ctx, newCollection("gamma")); err != nil {
		t.Fatalf("Create gamma: %v", err)
	}
	if n, err := cols.Count(ctx, model.DefaultTenant, model.DefaultDatabase); err != nil || n != 3 {
		t.Fatalf("Count: n=%d err=%v", n, err)
	}
	all, err := cols.List(ctx, model.DefaultTenant, model.DefaultDatabase, 0, 0)
	if err != nil || len(all) != 3 || all[0].Name != "alpha" {
		t.Fatalf("List: n=%d err=%v", len(all), err)
	}
	if everything, err := cols.ListAll(ctx); err != nil || len(everything) != 4 {
		t.Fatalf("ListAll: n=%d err=%v", len(everything), err)
	}
	page, err := cols.List(ctx, model.DefaultTenant, model.DefaultDatabase, 1, 1)
	if err != nil || len(page) != 1 || page[0].Name != all[1].Name {
		t.Fatalf("List page: got=%v err=%v", page, err)
	}

	if err := cols.Update(ctx, c.ID, str("beta"), nil); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("Update to taken name: want ErrConflict, got %v", err)
	}
	if err := cols.Update(ctx, c.ID, str("delta"), model.Metadata{"x": "y"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err = cols.GetByID(ctx, c.ID)
	if err != nil || got.Name != "delta" || got.Metadata["x"] != "y" || len(got.Metadata) != 1 {
		t.Fatalf("GetByID after Update: got=%+v err=%v", got, err)
	}
	if err := cols.Update(ctx, uuid.NewString(), str("zeta"), nil); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Update missing: want ErrNotFound, got %v", err)
	}

	if err := cols.SetDimension(ctx, c.ID, 3); err != nil {
		t.Fatalf("SetDimension: %v", err)
	}
	if got, err := cols.GetByID(ctx, c.ID); err != nil || got.Dimension == nil || *got.Dimension != 3 {
		t.Fatalf("GetByID after SetDimension: got=%+v err=%v", got, err)
	}

	if err := cols.Delete(ctx, c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := cols.Delete(ctx, c.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Delete twice: want ErrNotFound, got %v", err)
	}
}

func testRecords(t *testing.T, s store.Store) {
	ctx := context.Background()
	c, err := s.Collections().Create(ctx, newCollection("records"))
	if err != nil {
		t.Fatalf("Create collection: %v", err)
	}
	recs := s.Records()

	batch := []*model.Record{
		{ID: "a", Embedding: []float32{1, 0, 0}, Document: str("apple"), Metadata: model.Metadata{"kind": "fruit"}},
		{ID: "b", Embedding: []float32{0, 1, 0}, URI: str("s3://b")},
		{ID: "c", Embedding: []float32{0, 0, 1}},
	}
	if err := recs.Insert(ctx, c.ID, batch); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := recs.Insert(ctx, c.ID, []*model.Record{{ID: "a", Embedding: []float32{1, 1, 1}}}); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("Insert duplicate: want ErrConflict, got %v", err)
	}
	if n, err := recs.Count(ctx, c.ID); err != nil || n != 3 {
		t.Fatalf("Count: n=%d err=%v", n, err)
	}

	got, err := recs.GetByIDs(ctx, c.ID, []string{"c", "missing", "a"})
	if err != nil || len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("GetByIDs: got=%v err=%v", got, err)
	}
	a := got[0]
	if a.Document == nil || *a.Document != "apple" || a.Metadata["kind"] != "fruit" || len(a.Embedding) != 3 || a.Embedding[0] != 1 {
		t.Fatalf("GetByIDs: unexpected record %+v", a)
	}
	if a.URI != nil {
		t.Fatalf("GetByIDs: uri should be nil, got %v", *a.URI)
	}

	// upsert keeps seq of existing rows and appends new ones
	if err := recs.Upsert(ctx, c.ID, []*model.Record{
		{ID: "a", Embedding: []float32{2, 2, 2}, Document: str("apricot")},
		{ID: "d", Embedding: []float32{1, 1, 0}},
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	list, err := recs.List(ctx, c.ID, 0, 0)
	if err != nil || len(list) != 4 {
		t.Fatalf("List: n=%d err=%v", len(list), err)
	}
	order := []string{list[0].ID, list[1].ID, list[2].ID, list[3].ID}
	if order[0] != "a" || order[1] != "b" || order[2] != "c" || order[3] != "d" {
		t.Fatalf("List order: %v", order)
	}
	if *list[0].Document != "apricot" || list[0].Embedding[0] != 2 || list[0].Metadata != nil {
		t.Fatalf("Upsert replace: %+v", list[0])
	}

	page, err := recs.List(ctx, c.ID, 2, 1)
	if err != nil || len(page) != 2 || page[0].ID != "b" || page[1].ID != "c" {
		t.Fatalf("List page: got=%v err=%v", page, err)
	}

	n, err := recs.Delete(ctx, c.ID, []string{"b", "missing"})
	if err != nil || n != 1 {
		t.Fatalf("Delete: n=%d err=%v", n, err)
	}
	if n, err := recs.Count(ctx, c.ID); err != nil || n != 3 {
		t.Fatalf("Count after Delete: n=%d err=%v", n, err)
	}
}

func testCascadeAndReset(t *testing.T, s store.Store) {
	ctx := context.Background()
	c1, err := s.Collections().Create(ctx, newCollection("one"))
	if err != nil {
		t.Fatalf("Create one: %v", err)
	}
	c2, err := s.Collections().Create(ctx, newCollection("two"))
	if err != nil {
		t.Fatalf("Create two: %v", err)
	}
	for _, id := range []string{c1.ID, c2.ID} {
		if err := s.Records().Insert(ctx, id, []*model.Record{{ID: "x", Embedding: []float32{1}}}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	if err := s.Collections().Delete(ctx, c1.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, err := s.Records().Count(ctx, c1.ID); err != nil || n != 0 {
		t.Fatalf("records should cascade: n=%d err=%v", n, err)
	}
	if n, err := s.Records().Count(ctx, c2.ID); err != nil || n != 1 {
		t.Fatalf("other collection untouched: n=%d err=%v", n, err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n, err := s.Collections().Count(ctx, model.DefaultTenant, model.DefaultDatabase); err != nil || n != 0 {
		t.Fatalf("Count after Reset: n=%d err=%v", n, err)
	}
	if n, err := s.Records().Count(ctx, c2.ID); err != nil || n != 0 {
		t.Fatalf("Records after Reset: n=%d err=%v", n, err)
	}
}

// testConcurrentSeq checks that parallel writers to one collection never
// share a sequence number.
func testConcurrentSeq(t *testing.T, s store.Store) {
	ctx := context.Background()
	c, err := s.Collections().Create(ctx, newCollection("seq"))
	if err != nil {
		t.Fatalf("Create collection: %v", err)
	}

	const writers, perWriter = 8, 5
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				rec := &model.Record{ID: fmt.Sprintf("w%d-%d", w, i), Embedding: []float32{float32(w), float32(i)}}
				var err error
				if i%2 == 0 {
					err = s.Records().Insert(ctx, c.ID, []*model.Record{rec})
				} else {
					err = s.Records().Upsert(ctx, c.ID, []*model.Record{rec})
				}
				if err != nil {
					errs <- err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent write: %v", err)
	}

	list, err := s.Records().List(ctx, c.ID, 0, 0)
	if err != nil || len(list) != writers*perWriter {
		t.Fatalf("List: n=%d err=%v", len(list), err)
	}
	seen := make(map[int64]string, len(list))
	for _, r := range list {
		if other, dup := seen[r.Seq]; dup {
			t.Fatalf("records %q and %q share seq %d", other, r.ID, r.Seq)
		}
		seen[r.Seq] = r.ID
	}
}
