package services

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hudson-blanoire/chroma-server/internal/model"
	"github.com/hudson-blanoire/chroma-server/internal/searchindex"
	"github.com/hudson-blanoire/chroma-server/internal/store"
	"github.com/hudson-blanoire/chroma-server/internal/store/sqlite"
)

// letterEmbedder maps text to counts of 'a', 'b' and a constant 1.
type letterEmbedder struct{ calls int }

func (e *letterEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	return []float32{float32(strings.Count(text, "a")), float32(strings.Count(text, "b")), 1}, nil
}

type fixture struct {
	st      store.Store
	idx     *searchindex.HNSW
	cols    *CollectionService
	records *RecordService
}

func newFixture(t *testing.T, provider *letterEmbedder, opts RecordOptions) *fixture {
	t.Helper()
	st, err := sqlite.New(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	idx := searchindex.NewHNSW()
	f := &fixture{st: st, idx: idx, cols: NewCollectionService(st, idx, zerolog.Nop())}
	if opts.MaxBatchSize == 0 {
		opts.MaxBatchSize = 100
	}
	if provider != nil {
		f.records = NewRecordService(st, idx, provider, opts, zerolog.Nop())
	} else {
		f.records = NewRecordService(st, idx, nil, opts, zerolog.Nop())
	}
	return f
}

func str(s string) *string { return &s }

func intp(i int) *int { return &i }

func (f *fixture) collection(t *testing.T, name string, md model.Metadata) *model.Collection {
	t.Helper()
	c, err := f.cols.Create(context.Background(), CreateCollectionRequest{Name: name, Metadata: md})
	require.NoError(t, err)
	return c
}

func (f *fixture) seed(t *testing.T, c *model.Collection) {
	t.Helper()
	require.NoError(t, f.records.Add(context.Background(), c.ID, RecordBatch{
		IDs:        []string{"a", "b", "c"},
		Embeddings: [][]float32{{0, 0}, {1, 0}, {5, 5}},
		Documents:  []*string{str("apple pie"), str("banana bread"), str("cherry tart")},
		Metadatas: []model.Metadata{
			{"kind": "fruit", "rank": 1.0},
			{"kind": "fruit", "rank": 2.0},
			{"kind": "dessert", "rank": 3.0},
		},
	}))
}

func TestCollectionService_CreateGetDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, RecordOptions{})

	c := f.collection(t, "docs", model.Metadata{model.SpaceKey: "cosine"})
	assert.Equal(t, model.DefaultTenant, c.Tenant)
	assert.Equal(t, model.DefaultDatabase, c.Database)
	assert.Equal(t, model.SpaceCosine, c.Space())

	_, err := f.cols.Create(ctx, CreateCollectionRequest{Name: "docs"})
	assert.ErrorIs(t, err, model.ErrConflict)

	same, err := f.cols.Create(ctx, CreateCollectionRequest{Name: "docs", GetOrCreate: true, Metadata: model.Metadata{"x": "y"}})
	require.NoError(t, err)
	assert.Equal(t, c.ID, same.ID)
	assert.Equal(t, model.Metadata{model.SpaceKey: "cosine"}, same.Metadata)

	got, err := f.cols.Get(ctx, "", "", "docs")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	n, err := f.cols.Count(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, f.cols.Delete(ctx, "", "", "docs"))
	_, err = f.cols.GetByID(ctx, c.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, f.cols.Delete(ctx, "", "", "docs"), model.ErrNotFound)
}

func TestCollectionService_InvalidMetadata(t *testing.T) {
	f := newFixture(t, nil, RecordOptions{})
	_, err := f.cols.Create(context.Background(), CreateCollectionRequest{Name: "docs", Metadata: model.Metadata{model.SpaceKey: "hamming"}})
	assert.True(t, model.IsValidationError(err))
	_, err = f.cols.Create(context.Background(), CreateCollectionRequest{Name: "docs", Metadata: model.Metadata{"k": []interface{}{1}}})
	assert.True(t, model.IsValidationError(err))
}

func TestCollectionService_Update(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, RecordOptions{})
	c := f.collection(t, "docs", nil)

	require.NoError(t, f.cols.Update(ctx, c.ID, str("renamed"), model.Metadata{"team": "search"}))
	got, err := f.cols.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, "search", got.Metadata["team"])

	err = f.cols.Update(ctx, c.ID, nil, model.Metadata{model.SpaceKey: "ip"})
	assert.True(t, model.IsValidationError(err))

	assert.ErrorIs(t, f.cols.Update(ctx, "missing", str("x"), nil), model.ErrNotFound)
}

func TestCollectionService_UpdateKeepsSpace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, RecordOptions{})
	c := f.collection(t, "docs", model.Metadata{model.SpaceKey: "cosine"})
	require.NoError(t, f.records.Add(ctx, c.ID, RecordBatch{
		IDs:        []string{"v"},
		Embeddings: [][]float32{{3, 4}},
		Metadatas:  []model.Metadata{{"kind": "vec"}},
	}))

	require.NoError(t, f.cols.Update(ctx, c.ID, nil, model.Metadata{"team": "x"}))
	got, err := f.cols.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SpaceCosine, got.Space())
	assert.Equal(t, "x", got.Metadata["team"])

	unfiltered, err := f.records.Query(ctx, c.ID, QueryRequest{QueryEmbeddings: [][]float32{{6, 8}}, NResults: 1})
	require.NoError(t, err)
	filtered, err := f.records.Query(ctx, c.ID, QueryRequest{
		QueryEmbeddings: [][]float32{{6, 8}},
		NResults:        1,
		Where:           map[string]interface{}{"kind": "vec"},
	})
	require.NoError(t, err)
	require.Len(t, unfiltered.Distances[0], 1)
	require.Len(t, filtered.Distances[0], 1)
	assert.InDelta(t, 0.0, unfiltered.Distances[0][0], 1e-5)
	assert.InDelta(t, unfiltered.Distances[0][0], filtered.Distances[0][0], 1e-5)
}

func TestRecordService_AddAndGet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, RecordOptions{})
	c := f.collection(t, "docs", nil)
	f.seed(t, c)

	got, err := f.cols.GetByID(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Dimension)
	assert.Equal(t, 2, *got.Dimension)

	res, err := f.records.Get(ctx, c.ID, GetRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, res.IDs)
	assert.Equal(t, []model.Include{model.IncludeMetadatas, model.IncludeDocuments}, res.Included)
	assert.Nil(t, res.Embeddings)
	require.Len(t, res.Documents, 3)
	assert.Equal(t, "banana bread", *res.Documents[1])

	// existing ids are skipped
	require.NoError(t, f.records.Add(ctx, c.ID, RecordBatch{
		IDs:        []string{"a", "d"},
		Embeddings: [][]float32{{9, 9}, {2, 2}},
	}))
	n, err := f.records.Count(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	res, err = f.records.Get(ctx, c.ID, GetRequest{IDs: []string{"a"}, Include: []string{"embeddings"}})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 0}}, res.Embeddings)
}

func TestRecordService_AddValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, RecordOptions{MaxBatchSize: 2})
	c := f.collection(t, "docs", nil)

	cases := map[string]RecordBatch{
		"no ids":        {},
		"empty id":      {IDs: []string{""}, Embeddings: [][]float32{{1}}},
		"duplicate ids": {IDs: []string{"x", "x"}, Embeddings: [][]float32{{1}, {1}}},
		"length":        {IDs: []string{"x"}, Embeddings: [][]float32{{1}, {2}}},
		"too many":      {IDs: []string{"x", "y", "z"}, Embeddings: [][]float32{{1}, {1}, {1}}},
		"no content":    {IDs: []string{"x"}},
		"no embedder":   {IDs: []string{"x"}, Documents: []*string{str("text")}},
		"bad metadata":  {IDs: []string{"x"}, Embeddings: [][]float32{{1}}, Metadatas: []model.Metadata{{"k": nil}}},
		"mixed dims":    {IDs: []string{"x", "y"}, Embeddings: [][]float32{{1}, {1, 2}}},
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			err := f.records.Add(ctx, c.ID, b)
			assert.True(t, model.IsValidationError(err), "got %v", err)
		})
	}

	require.NoError(t, f.records.Add(ctx, c.ID, RecordBatch{IDs: []string{"x"}, Embeddings: [][]float32{{1, 2}}}))
	err := f.records.Add(ctx, c.ID, RecordBatch{IDs: []string{"y"}, Embeddings: [][]float32{{1, 2, 3}}})
	assert.True(t, model.IsValidationError(err))

	assert.ErrorIs(t, f.records.Add(ctx, "missing", RecordBatch{IDs: []string{"x"}, Embeddings: [][]float32{{1, 2}}}), model.ErrNotFound)
}

func TestRecordService_GetFiltersAndPaging(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, RecordOptions{})
	c := f.collection(t, "docs", nil)
	f.seed(t, c)

	res, err := f.records.Get(ctx, c.ID, GetRequest{Where: map[string]interface{}{"kind": "fruit"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, res.IDs)

	res, err = f.records.Get(ctx, c.ID, GetRequest{WhereDocument: map[string]interface{}{"$contains": "tart"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, res.IDs)

	res, err = f.records.Get(ctx, c.ID, GetRequest{Limit: intp(1), Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, res.IDs)

	res, err = f.records.Get(ctx, c.ID, GetRequest{Where: map[string]interface{}{"rank": map[string]interface{}{"$gte": 2.0}}, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, res.IDs)

	res, err = f.records.Get(ctx, c.ID, GetRequest{Limit: intp(0)})
	require.NoError(t, err)
	assert.Empty(t, res.IDs)

	_, err = f.records.Get(ctx, c.ID, GetRequest{Include: []string{"distances"}})
	assert.True(t, model.IsValidationError(err))
	_, err = f.records.Get(ctx, c.ID, GetRequest{Where: map[string]interface{}{"$bogus": 1.0}})
	assert.True(t, model.IsValidationError(err))
}

func TestRecordService_Query(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, RecordOptions{})
	c := f.collection(t, "docs", nil)
	f.seed(t, c)

	res, err := f.records.Query(ctx, c.ID, QueryRequest{QueryEmbeddings: [][]float32{{0.1, 0}, {5, 4}}, NResults: 2})
	require.NoError(t, err)
	require.Len(t, res.IDs, 2)
	assert.Equal(t, []string{"a", "b"}, res.IDs[0])
	assert.Equal(t, []string{"c", "b"}, res.IDs[1])
	require.Len(t, res.Distances, 2)
	assert.InDelta(t, 0.01, res.Distances[0][0], 1e-5)
	assert.InDelta(t, 1.0, res.Distances[1][0], 1e-5)
	assert.Equal(t, "apple pie", *res.Documents[0][0])

	// filtered queries rank the matching subset exactly
	res, err = f.records.Query(ctx, c.ID, QueryRequest{
		QueryEmbeddings: [][]float32{{0, 0}},
		Where:           map[string]interface{}{"kind": map[string]interface{}{"$ne": "fruit"}},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"c"}}, res.IDs)
	assert.InDelta(t, 50.0, res.Distances[0][0], 1e-4)

	_, err = f.records.Query(ctx, c.ID, QueryRequest{QueryEmbeddings: [][]float32{{1, 2, 3}}})
	assert.True(t, model.IsValidationError(err))
	_, err = f.records.Query(ctx, c.ID, QueryRequest{})
	assert.True(t, model.IsValidationError(err))
	_, err = f.records.Query(ctx, c.ID, QueryRequest{QueryTexts: []string{"apple"}})
	assert.True(t, model.IsValidationError(err))
}

func TestRecordService_QueryEmptyCollection(t *testing.T) {
	f := newFixture(t, nil, RecordOptions{})
	c := f.collection(t, "docs", nil)

	res, err := f.records.Query(context.Background(), c.ID, QueryRequest{QueryEmbeddings: [][]float32{{1, 2}}})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{}}, res.IDs)
	assert.Equal(t, [][]float32{{}}, res.Distances)
}

func TestRecordService_UpsertAndUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, RecordOptions{})
	c := f.collection(t, "docs", nil)
	f.seed(t, c)

	require.NoError(t, f.records.Upsert(ctx, c.ID, RecordBatch{
		IDs:        []string{"a", "z"},
		Embeddings: [][]float32{{10, 10}, {0, 0}},
		Documents:  []*string{str("apple crumble"), str("zucchini")},
	}))
	res, err := f.records.Get(ctx, c.ID, GetRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "z"}, res.IDs)
	assert.Equal(t, "apple crumble", *res.Documents[0])
	assert.Nil(t, res.Metadatas[0])

	q, err := f.records.Query(ctx, c.ID, QueryRequest{QueryEmbeddings: [][]float32{{0, 0}}, NResults: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, q.IDs[0])

	require.NoError(t, f.records.Update(ctx, c.ID, RecordBatch{
		IDs:       []string{"b", "nope"},
		Metadatas: []model.Metadata{{"rank": nil, "color": "yellow"}, {"x": "y"}},
	}))
	res, err = f.records.Get(ctx, c.ID, GetRequest{IDs: []string{"b", "nope"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, res.IDs)
	assert.Equal(t, model.Metadata{"kind": "fruit", "color": "yellow"}, res.Metadatas[0])
	assert.Equal(t, "banana bread", *res.Documents[0])

	require.NoError(t, f.records.Update(ctx, c.ID, RecordBatch{IDs: []string{"c"}, Embeddings: [][]float32{{0, 0.5}}}))
	q, err = f.records.Query(ctx, c.ID, QueryRequest{QueryEmbeddings: [][]float32{{0, 0.6}}, NResults: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, q.IDs[0])
}

func TestRecordService_Delete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, RecordOptions{})
	c := f.collection(t, "docs", nil)
	f.seed(t, c)

	_, err := f.records.Delete(ctx, c.ID, DeleteRequest{})
	assert.True(t, model.IsValidationError(err))

	ids, err := f.records.Delete(ctx, c.ID, DeleteRequest{Where: map[string]interface{}{"kind": "fruit"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	ids, err = f.records.Delete(ctx, c.ID, DeleteRequest{IDs: []string{"a", "c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids)

	n, err := f.records.Count(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	q, err := f.records.Query(ctx, c.ID, QueryRequest{QueryEmbeddings: [][]float32{{0, 0}}})
	require.NoError(t, err)
	assert.Empty(t, q.IDs[0])
}

func TestRecordService_ServerSideEmbedding(t *testing.T) {
	ctx := context.Background()
	provider := &letterEmbedder{}
	f := newFixture(t, provider, RecordOptions{})
	c := f.collection(t, "docs", nil)

	require.NoError(t, f.records.Add(ctx, c.ID, RecordBatch{
		IDs:       []string{"a", "b"},
		Documents: []*string{str("aaa"), str("bbb")},
	}))
	assert.Equal(t, 2, provider.calls)

	res, err := f.records.Query(ctx, c.ID, QueryRequest{QueryTexts: []string{"aa"}, NResults: 1, Include: []string{"embeddings"}})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a"}}, res.IDs)
	assert.Equal(t, [][][]float32{{{3, 0, 1}}}, res.Embeddings)
	assert.Nil(t, res.Distances)

	// a document change re-embeds
	require.NoError(t, f.records.Update(ctx, c.ID, RecordBatch{IDs: []string{"a"}, Documents: []*string{str("bbbb")}}))
	res, err = f.records.Query(ctx, c.ID, QueryRequest{QueryTexts: []string{"bbbb"}, NResults: 1})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a"}}, res.IDs)
}

func TestRecordService_Reset(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, nil, RecordOptions{})
	assert.ErrorIs(t, f.records.Reset(ctx), model.ErrResetDisabled)

	f = newFixture(t, nil, RecordOptions{AllowReset: true})
	c := f.collection(t, "docs", nil)
	f.seed(t, c)
	require.NoError(t, f.records.Reset(ctx))
	n, err := f.cols.Count(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, f.idx.Len(c.ID))
}

func TestRecordService_WarmIndexRebuildsVolatileIndex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, RecordOptions{})
	c := f.collection(t, "docs", model.Metadata{model.SpaceKey: "ip"})
	f.seed(t, c)

	// simulate a restart: same store, empty index
	fresh := searchindex.NewHNSW()
	records := NewRecordService(f.st, fresh, nil, RecordOptions{MaxBatchSize: 10}, zerolog.Nop())
	require.NoError(t, records.WarmIndex(ctx))
	assert.Equal(t, 3, fresh.Len(c.ID))

	res, err := records.Query(ctx, c.ID, QueryRequest{QueryEmbeddings: [][]float32{{1, 1}}, NResults: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, res.IDs[0])
	assert.InDelta(t, 1-10.0, res.Distances[0][0], 1e-4)
}
