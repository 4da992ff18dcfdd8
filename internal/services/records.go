package services

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	emb "github.com/hudson-blanoire/chroma-server/internal/embeddings"
	"github.com/hudson-blanoire/chroma-server/internal/filter"
	"github.com/hudson-blanoire/chroma-server/internal/model"
	"github.com/hudson-blanoire/chroma-server/internal/searchindex"
	"github.com/hudson-blanoire/chroma-server/internal/store"
)

const (
	DefaultNResults = 10
	warmPageSize    = 1000
)

// RecordOptions carries the config knobs RecordService needs.
type RecordOptions struct {
	MaxBatchSize int
	AllowReset   bool
}

// RecordService implements add/upsert/update/get/query/delete against one
// collection, keeping the store and the search index in step.
type RecordService struct {
	store store.Store
	idx   searchindex.Index
	emb   emb.EmbeddingProvider // nil when server-side embedding is disabled
	opts  RecordOptions
	log   zerolog.Logger
}

func NewRecordService(s store.Store, idx searchindex.Index, provider emb.EmbeddingProvider, opts RecordOptions, log zerolog.Logger) *RecordService {
	return &RecordService{store: s, idx: idx, emb: provider, opts: opts, log: log}
}

func (s *RecordService) MaxBatchSize() int { return s.opts.MaxBatchSize }

// RecordBatch is the column-oriented payload of add, upsert and update.
// Optional columns are nil or have one entry per id.
type RecordBatch struct {
	IDs        []string
	Embeddings [][]float32
	Documents  []*string
	Metadatas  []model.Metadata
	URIs       []*string
}

type GetRequest struct {
	IDs           []string
	Where         map[string]interface{}
	WhereDocument map[string]interface{}
	// Limit nil returns every match.
	Limit   *int
	Offset  int
	Include []string
}

type QueryRequest struct {
	QueryEmbeddings [][]float32
	QueryTexts      []string
	// NResults 0 means DefaultNResults.
	NResults      int
	Where         map[string]interface{}
	WhereDocument map[string]interface{}
	Include       []string
}

type DeleteRequest struct {
	IDs           []string
	Where         map[string]interface{}
	WhereDocument map[string]interface{}
}

func (s *RecordService) collection(ctx context.Context, id string) (*model.Collection, error) {
	c, err := s.store.Collections().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.idx.EnsureCollection(ctx, c.ID, c.Space()); err != nil {
		return nil, errors.Wrapf(err, "register collection %s with index", c.ID)
	}
	return c, nil
}

func (s *RecordService) validateBatch(b RecordBatch, forUpdate bool) error {
	n := len(b.IDs)
	if n == 0 {
		return model.Invalidf("ids", "at least one id is required")
	}
	if s.opts.MaxBatchSize > 0 && n > s.opts.MaxBatchSize {
		return model.Invalidf("ids", "batch of %d exceeds max batch size %d", n, s.opts.MaxBatchSize)
	}
	seen := make(map[string]struct{}, n)
	for _, id := range b.IDs {
		if id == "" {
			return model.Invalidf("ids", "ids must be non-empty strings")
		}
		if _, dup := seen[id]; dup {
			return model.Invalidf("ids", "duplicate id %q in batch", id)
		}
		seen[id] = struct{}{}
	}
	if b.Embeddings != nil && len(b.Embeddings) != n {
		return model.Invalidf("embeddings", "got %d embeddings for %d ids", len(b.Embeddings), n)
	}
	if b.Documents != nil && len(b.Documents) != n {
		return model.Invalidf("documents", "got %d documents for %d ids", len(b.Documents), n)
	}
	if b.Metadatas != nil && len(b.Metadatas) != n {
		return model.Invalidf("metadatas", "got %d metadatas for %d ids", len(b.Metadatas), n)
	}
	if b.URIs != nil && len(b.URIs) != n {
		return model.Invalidf("uris", "got %d uris for %d ids", len(b.URIs), n)
	}
	for _, e := range b.Embeddings {
		if e == nil && forUpdate {
			continue
		}
		if len(e) == 0 {
			return model.Invalidf("embeddings", "embeddings must be non-empty")
		}
	}
	for _, md := range b.Metadatas {
		if err := md.Validate("metadatas", forUpdate); err != nil {
			return err
		}
	}
	return nil
}

// requireEmbeddings returns the batch embeddings, computing them from documents when absent.
func (s *RecordService) requireEmbeddings(ctx context.Context, b RecordBatch) ([][]float32, error) {
	if b.Embeddings != nil {
		return b.Embeddings, nil
	}
	if b.Documents == nil {
		return nil, model.Invalidf("embeddings", "embeddings or documents are required")
	}
	texts := make([]string, len(b.Documents))
	for i, d := range b.Documents {
		if d == nil {
			return nil, model.Invalidf("documents", "document for id %q is null and no embedding was given", b.IDs[i])
		}
		texts[i] = *d
	}
	return s.embed(ctx, texts)
}

func (s *RecordService) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.emb == nil {
		return nil, model.Invalidf("embeddings", "no embedding provider is configured; send embeddings explicitly")
	}
	vecs, err := emb.EmbedAll(ctx, s.emb, texts)
	if err != nil {
		return nil, errors.Wrap(err, "embed documents")
	}
	if len(vecs) != len(texts) {
		return nil, errors.Errorf("embedding provider returned %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

// checkDimension enforces a single dimension per collection. The first
// write fixes it.
func (s *RecordService) checkDimension(ctx context.Context, c *model.Collection, vecs [][]float32) error {
	want := 0
	if c.Dimension != nil {
		want = *c.Dimension
	}
	for _, v := range vecs {
		if v == nil {
			continue
		}
		if want == 0 {
			want = len(v)
			continue
		}
		if len(v) != want {
			return model.Invalidf("embeddings", "embedding dimension %d does not match collection dimensionality %d", len(v), want)
		}
	}
	if c.Dimension == nil && want > 0 {
		if err := s.store.Collections().SetDimension(ctx, c.ID, want); err != nil {
			return err
		}
		c.Dimension = &want
	}
	return nil
}

func buildRecords(b RecordBatch, vecs [][]float32) []*model.Record {
	out := make([]*model.Record, len(b.IDs))
	for i, id := range b.IDs {
		r := &model.Record{ID: id, Embedding: vecs[i]}
		if b.Documents != nil {
			r.Document = b.Documents[i]
		}
		if b.Metadatas != nil && len(b.Metadatas[i]) > 0 {
			r.Metadata = b.Metadatas[i]
		}
		if b.URIs != nil {
			r.URI = b.URIs[i]
		}
		out[i] = r
	}
	return out
}

func (s *RecordService) indexRecords(ctx context.Context, c *model.Collection, recs []*model.Record) error {
	items := make([]searchindex.Item, 0, len(recs))
	for _, r := range recs {
		if len(r.Embedding) == 0 {
			continue
		}
		items = append(items, searchindex.Item{ID: r.ID, Embedding: r.Embedding})
	}
	if len(items) == 0 {
		return nil
	}
	return s.idx.Upsert(ctx, c.ID, items)
}

// rollback returns the store to prev after an index write for ids failed.
// Ids missing from prev were new and are removed. The index is re-pointed at
// prev when it accepts writes again.
func (s *RecordService) rollback(ctx context.Context, c *model.Collection, ids []string, prev []*model.Record) {
	log := s.log.With().Str("collection", c.ID).Int("count", len(ids)).Logger()
	known := make(map[string]bool, len(prev))
	for _, r := range prev {
		known[r.ID] = true
	}
	var added []string
	for _, id := range ids {
		if !known[id] {
			added = append(added, id)
		}
	}
	if len(prev) > 0 {
		if err := s.store.Records().Upsert(ctx, c.ID, prev); err != nil {
			log.Error().Err(err).Msg("restoring previous records failed")
		}
		if err := s.indexRecords(ctx, c, prev); err != nil {
			log.Warn().Err(err).Msg("re-indexing previous records failed")
		}
	}
	if len(added) > 0 {
		if _, err := s.store.Records().Delete(ctx, c.ID, added); err != nil {
			log.Error().Err(err).Msg("compensating delete failed")
		}
		if err := s.idx.Delete(ctx, c.ID, added); err != nil {
			log.Warn().Err(err).Msg("removing new ids from index failed")
		}
	}
}

func recordIDs(recs []*model.Record) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}

// Add inserts new records. Ids that already exist are skipped.
func (s *RecordService) Add(ctx context.Context, collectionID string, b RecordBatch) error {
	c, err := s.collection(ctx, collectionID)
	if err != nil {
		return err
	}
	if err := s.validateBatch(b, false); err != nil {
		return err
	}
	vecs, err := s.requireEmbeddings(ctx, b)
	if err != nil {
		return err
	}
	if err := s.checkDimension(ctx, c, vecs); err != nil {
		return err
	}

	existing, err := s.store.Records().GetByIDs(ctx, c.ID, b.IDs)
	if err != nil {
		return err
	}
	skip := make(map[string]bool, len(existing))
	for _, r := range existing {
		skip[r.ID] = true
	}
	var fresh []*model.Record
	for _, r := range buildRecords(b, vecs) {
		if !skip[r.ID] {
			fresh = append(fresh, r)
		}
	}
	if len(skip) > 0 {
		s.log.Debug().Str("collection", c.ID).Int("skipped", len(skip)).Msg("add skipped existing ids")
	}
	if len(fresh) == 0 {
		return nil
	}

	if err := s.store.Records().Insert(ctx, c.ID, fresh); err != nil {
		return err
	}
	if err := s.indexRecords(ctx, c, fresh); err != nil {
		s.log.Error().Err(err).Str("collection", c.ID).Int("count", len(fresh)).Msg("index write failed; removing stored records")
		s.rollback(ctx, c, recordIDs(fresh), nil)
		return errors.Wrap(err, "index records")
	}
	return nil
}

// Upsert inserts new records and replaces existing ones.
func (s *RecordService) Upsert(ctx context.Context, collectionID string, b RecordBatch) error {
	c, err := s.collection(ctx, collectionID)
	if err != nil {
		return err
	}
	if err := s.validateBatch(b, false); err != nil {
		return err
	}
	vecs, err := s.requireEmbeddings(ctx, b)
	if err != nil {
		return err
	}
	if err := s.checkDimension(ctx, c, vecs); err != nil {
		return err
	}
	prev, err := s.store.Records().GetByIDs(ctx, c.ID, b.IDs)
	if err != nil {
		return err
	}
	recs := buildRecords(b, vecs)
	if err := s.store.Records().Upsert(ctx, c.ID, recs); err != nil {
		return err
	}
	if err := s.indexRecords(ctx, c, recs); err != nil {
		s.log.Error().Err(err).Str("collection", c.ID).Int("count", len(recs)).Msg("index write failed; restoring previous records")
		s.rollback(ctx, c, b.IDs, prev)
		return errors.Wrap(err, "index records")
	}
	return nil
}

// Update modifies existing records. Unknown ids are skipped, metadata is
// merged key by key and a null value removes the key.
func (s *RecordService) Update(ctx context.Context, collectionID string, b RecordBatch) error {
	c, err := s.collection(ctx, collectionID)
	if err != nil {
		return err
	}
	if err := s.validateBatch(b, true); err != nil {
		return err
	}

	vecs := b.Embeddings
	if vecs == nil && b.Documents != nil && s.emb != nil {
		var texts []string
		var at []int
		for i, d := range b.Documents {
			if d != nil {
				texts = append(texts, *d)
				at = append(at, i)
			}
		}
		if len(texts) > 0 {
			computed, err := s.embed(ctx, texts)
			if err != nil {
				return err
			}
			vecs = make([][]float32, len(b.IDs))
			for j, i := range at {
				vecs[i] = computed[j]
			}
		}
	}
	if err := s.checkDimension(ctx, c, vecs); err != nil {
		return err
	}

	current, err := s.store.Records().GetByIDs(ctx, c.ID, b.IDs)
	if err != nil {
		return err
	}
	byID := make(map[string]*model.Record, len(current))
	prev := make([]*model.Record, len(current))
	for i, r := range current {
		byID[r.ID] = r
		orig := *r
		prev[i] = &orig
	}

	var changed, reindex []*model.Record
	for i, id := range b.IDs {
		r, ok := byID[id]
		if !ok {
			continue
		}
		if vecs != nil && vecs[i] != nil {
			r.Embedding = vecs[i]
			reindex = append(reindex, r)
		}
		if b.Documents != nil && b.Documents[i] != nil {
			r.Document = b.Documents[i]
		}
		if b.Metadatas != nil && b.Metadatas[i] != nil {
			r.Metadata = r.Metadata.Merge(b.Metadatas[i])
		}
		if b.URIs != nil && b.URIs[i] != nil {
			r.URI = b.URIs[i]
		}
		changed = append(changed, r)
	}
	if skipped := len(b.IDs) - len(changed); skipped > 0 {
		s.log.Debug().Str("collection", c.ID).Int("skipped", skipped).Msg("update skipped unknown ids")
	}
	if len(changed) == 0 {
		return nil
	}
	if err := s.store.Records().Upsert(ctx, c.ID, changed); err != nil {
		return err
	}
	if err := s.indexRecords(ctx, c, reindex); err != nil {
		s.log.Error().Err(err).Str("collection", c.ID).Int("count", len(reindex)).Msg("index write failed; restoring previous records")
		s.rollback(ctx, c, recordIDs(changed), prev)
		return errors.Wrap(err, "index records")
	}
	return nil
}

func parseFilters(where, whereDocument map[string]interface{}) (filter.Where, filter.Document, error) {
	w, err := filter.ParseWhere(where)
	if err != nil {
		return nil, nil, err
	}
	d, err := filter.ParseWhereDocument(whereDocument)
	if err != nil {
		return nil, nil, err
	}
	return w, d, nil
}

func parseInclude(values []string, defaults []model.Include, forQuery bool) (model.IncludeSet, error) {
	if values == nil {
		values = make([]string, len(defaults))
		for i, inc := range defaults {
			values[i] = string(inc)
		}
	}
	return model.ParseInclude(values, forQuery)
}

// selectRecords returns records matching ids (when given) and both filters, in insertion order.
func (s *RecordService) selectRecords(ctx context.Context, collectionID string, ids []string, w filter.Where, d filter.Document) ([]*model.Record, error) {
	var (
		recs []*model.Record
		err  error
	)
	if len(ids) > 0 {
		recs, err = s.store.Records().GetByIDs(ctx, collectionID, ids)
	} else {
		recs, err = s.store.Records().List(ctx, collectionID, 0, 0)
	}
	if err != nil {
		return nil, err
	}
	if w == nil && d == nil {
		return recs, nil
	}
	out := recs[:0]
	for _, r := range recs {
		if filter.Matches(w, d, r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Get returns records by id and/or filter, paged by offset and limit.
func (s *RecordService) Get(ctx context.Context, collectionID string, req GetRequest) (*model.GetResult, error) {
	c, err := s.collection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	inc, err := parseInclude(req.Include, model.DefaultGetInclude, false)
	if err != nil {
		return nil, err
	}
	w, d, err := parseFilters(req.Where, req.WhereDocument)
	if err != nil {
		return nil, err
	}
	if req.Limit != nil && *req.Limit < 0 {
		return nil, model.Invalidf("limit", "must be >= 0")
	}
	if req.Offset < 0 {
		return nil, model.Invalidf("offset", "must be >= 0")
	}
	if req.Limit != nil && *req.Limit == 0 {
		return newGetResult(nil, inc), nil
	}

	var recs []*model.Record
	if len(req.IDs) == 0 && w == nil && d == nil {
		limit := 0
		if req.Limit != nil {
			limit = *req.Limit
		}
		recs, err = s.store.Records().List(ctx, c.ID, limit, req.Offset)
		if err != nil {
			return nil, err
		}
		return newGetResult(recs, inc), nil
	}

	recs, err = s.selectRecords(ctx, c.ID, req.IDs, w, d)
	if err != nil {
		return nil, err
	}
	if req.Offset >= len(recs) {
		recs = nil
	} else {
		recs = recs[req.Offset:]
	}
	if req.Limit != nil && *req.Limit < len(recs) {
		recs = recs[:*req.Limit]
	}
	return newGetResult(recs, inc), nil
}

func newGetResult(recs []*model.Record, inc model.IncludeSet) *model.GetResult {
	res := &model.GetResult{IDs: make([]string, 0, len(recs)), Included: inc.List()}
	if inc[model.IncludeEmbeddings] {
		res.Embeddings = make([][]float32, 0, len(recs))
	}
	if inc[model.IncludeDocuments] {
		res.Documents = make([]*string, 0, len(recs))
	}
	if inc[model.IncludeMetadatas] {
		res.Metadatas = make([]model.Metadata, 0, len(recs))
	}
	if inc[model.IncludeURIs] {
		res.URIs = make([]*string, 0, len(recs))
	}
	for _, r := range recs {
		res.IDs = append(res.IDs, r.ID)
		if res.Embeddings != nil {
			res.Embeddings = append(res.Embeddings, r.Embedding)
		}
		if res.Documents != nil {
			res.Documents = append(res.Documents, r.Document)
		}
		if res.Metadatas != nil {
			res.Metadatas = append(res.Metadatas, r.Metadata)
		}
		if res.URIs != nil {
			res.URIs = append(res.URIs, r.URI)
		}
	}
	return res
}

type scored struct {
	rec  *model.Record
	dist float32
}

// Query returns the nResults nearest records for each query vector. Without
// filters it uses the search index; with filters distances are computed
// exactly over the matching records.
func (s *RecordService) Query(ctx context.Context, collectionID string, req QueryRequest) (*model.QueryResult, error) {
	c, err := s.collection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	inc, err := parseInclude(req.Include, model.DefaultQueryInclude, true)
	if err != nil {
		return nil, err
	}
	w, d, err := parseFilters(req.Where, req.WhereDocument)
	if err != nil {
		return nil, err
	}
	n := req.NResults
	if n < 0 {
		return nil, model.Invalidf("n_results", "must be >= 1")
	}
	if n == 0 {
		n = DefaultNResults
	}

	queries := req.QueryEmbeddings
	switch {
	case queries != nil && req.QueryTexts != nil:
		return nil, model.Invalidf("query_embeddings", "send either query_embeddings or query_texts, not both")
	case queries == nil && req.QueryTexts == nil:
		return nil, model.Invalidf("query_embeddings", "query_embeddings or query_texts are required")
	case queries == nil:
		if len(req.QueryTexts) == 0 {
			return nil, model.Invalidf("query_texts", "at least one query is required")
		}
		if queries, err = s.embed(ctx, req.QueryTexts); err != nil {
			return nil, err
		}
	}
	if len(queries) == 0 {
		return nil, model.Invalidf("query_embeddings", "at least one query is required")
	}
	for _, q := range queries {
		if len(q) == 0 {
			return nil, model.Invalidf("query_embeddings", "query embeddings must be non-empty")
		}
		if c.Dimension != nil && len(q) != *c.Dimension {
			return nil, model.Invalidf("query_embeddings", "query dimension %d does not match collection dimensionality %d", len(q), *c.Dimension)
		}
	}

	res := newQueryResult(inc)
	if c.Dimension == nil {
		// nothing has been written yet
		for range queries {
			appendQueryRow(res, nil)
		}
		return res, nil
	}

	if w == nil && d == nil {
		for _, q := range queries {
			row, err := s.searchIndex(ctx, c, q, n)
			if err != nil {
				return nil, err
			}
			appendQueryRow(res, row)
		}
		return res, nil
	}

	candidates, err := s.selectRecords(ctx, c.ID, nil, w, d)
	if err != nil {
		return nil, err
	}
	dist := searchindex.Distance(c.Space())
	for _, q := range queries {
		row := make([]scored, len(candidates))
		for i, r := range candidates {
			row[i] = scored{rec: r, dist: dist(q, r.Embedding)}
		}
		sort.SliceStable(row, func(i, j int) bool { return row[i].dist < row[j].dist })
		if len(row) > n {
			row = row[:n]
		}
		appendQueryRow(res, row)
	}
	return res, nil
}

// searchIndex resolves the index's nearest neighbours against the store.
// Hits the store no longer has are evicted from the index and the search is
// repeated once so the row is not short.
func (s *RecordService) searchIndex(ctx context.Context, c *model.Collection, q []float32, n int) ([]scored, error) {
	var row []scored
	for attempt := 0; attempt < 2; attempt++ {
		hits, err := s.idx.Search(ctx, c.ID, q, n)
		if err != nil {
			return nil, errors.Wrap(err, "search index")
		}
		ids := make([]string, len(hits))
		for i, h := range hits {
			ids[i] = h.ID
		}
		recs, err := s.store.Records().GetByIDs(ctx, c.ID, ids)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]*model.Record, len(recs))
		for _, r := range recs {
			byID[r.ID] = r
		}
		row = make([]scored, 0, len(hits))
		var stale []string
		for _, h := range hits {
			r, ok := byID[h.ID]
			if !ok {
				stale = append(stale, h.ID)
				continue
			}
			row = append(row, scored{rec: r, dist: h.Distance})
		}
		if len(stale) == 0 {
			break
		}
		s.log.Warn().Str("collection", c.ID).Strs("ids", stale).Msg("index returned ids missing from store")
		if err := s.idx.Delete(ctx, c.ID, stale); err != nil {
			s.log.Warn().Err(err).Str("collection", c.ID).Msg("evicting stale index entries failed")
			break
		}
	}
	return row, nil
}

func newQueryResult(inc model.IncludeSet) *model.QueryResult {
	res := &model.QueryResult{IDs: [][]string{}, Included: inc.List()}
	if inc[model.IncludeEmbeddings] {
		res.Embeddings = [][][]float32{}
	}
	if inc[model.IncludeDocuments] {
		res.Documents = [][]*string{}
	}
	if inc[model.IncludeMetadatas] {
		res.Metadatas = [][]model.Metadata{}
	}
	if inc[model.IncludeURIs] {
		res.URIs = [][]*string{}
	}
	if inc[model.IncludeDistances] {
		res.Distances = [][]float32{}
	}
	return res
}

func appendQueryRow(res *model.QueryResult, row []scored) {
	ids := make([]string, len(row))
	var (
		embs  [][]float32
		docs  []*string
		mds   []model.Metadata
		uris  []*string
		dists []float32
	)
	for i, sc := range row {
		ids[i] = sc.rec.ID
		embs = append(embs, sc.rec.Embedding)
		docs = append(docs, sc.rec.Document)
		mds = append(mds, sc.rec.Metadata)
		uris = append(uris, sc.rec.URI)
		dists = append(dists, sc.dist)
	}
	res.IDs = append(res.IDs, ids)
	if res.Embeddings != nil {
		res.Embeddings = append(res.Embeddings, nonNil(embs))
	}
	if res.Documents != nil {
		res.Documents = append(res.Documents, nonNil(docs))
	}
	if res.Metadatas != nil {
		res.Metadatas = append(res.Metadatas, nonNil(mds))
	}
	if res.URIs != nil {
		res.URIs = append(res.URIs, nonNil(uris))
	}
	if res.Distances != nil {
		res.Distances = append(res.Distances, nonNil(dists))
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Delete removes records selected by ids and/or filters and returns the deleted ids.
func (s *RecordService) Delete(ctx context.Context, collectionID string, req DeleteRequest) ([]string, error) {
	c, err := s.collection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	w, d, err := parseFilters(req.Where, req.WhereDocument)
	if err != nil {
		return nil, err
	}
	if len(req.IDs) == 0 && w == nil && d == nil {
		return nil, model.Invalidf("ids", "delete requires ids, where or where_document")
	}
	recs, err := s.selectRecords(ctx, c.ID, req.IDs, w, d)
	if err != nil {
		return nil, err
	}
	ids := recordIDs(recs)
	if len(ids) == 0 {
		return ids, nil
	}
	// The store is the source of truth. Index entries left behind by a failed
	// index delete are dropped when a search next returns them.
	if _, err := s.store.Records().Delete(ctx, c.ID, ids); err != nil {
		return nil, err
	}
	if err := s.idx.Delete(ctx, c.ID, ids); err != nil {
		s.log.Warn().Err(err).Str("collection", c.ID).Int("count", len(ids)).Msg("index delete failed; stale entries are evicted on search")
	}
	return ids, nil
}

func (s *RecordService) Count(ctx context.Context, collectionID string) (int, error) {
	if _, err := s.store.Collections().GetByID(ctx, collectionID); err != nil {
		return 0, err
	}
	return s.store.Records().Count(ctx, collectionID)
}

// Reset wipes every collection from the index and the store.
func (s *RecordService) Reset(ctx context.Context) error {
	if !s.opts.AllowReset {
		return model.ErrResetDisabled
	}
	if err := s.idx.Reset(ctx); err != nil {
		return errors.Wrap(err, "reset index")
	}
	if err := s.store.Reset(ctx); err != nil {
		return err
	}
	s.log.Warn().Msg("all collections reset")
	return nil
}

// WarmIndex registers every stored collection with the index and, when the
// index does not survive restarts, reloads its vectors from the store.
func (s *RecordService) WarmIndex(ctx context.Context) error {
	cols, err := s.store.Collections().ListAll(ctx)
	if err != nil {
		return err
	}
	rebuild := searchindex.IsVolatile(s.idx)
	total := 0
	for _, c := range cols {
		if err := s.idx.EnsureCollection(ctx, c.ID, c.Space()); err != nil {
			return errors.Wrapf(err, "register collection %s", c.ID)
		}
		if !rebuild {
			continue
		}
		for offset := 0; ; {
			recs, err := s.store.Records().List(ctx, c.ID, warmPageSize, offset)
			if err != nil {
				return err
			}
			if err := s.indexRecords(ctx, c, recs); err != nil {
				return errors.Wrapf(err, "rebuild index for collection %s", c.ID)
			}
			total += len(recs)
			if len(recs) < warmPageSize {
				break
			}
			offset += len(recs)
		}
	}
	s.log.Info().Int("collections", len(cols)).Int("records", total).Bool("rebuilt", rebuild).Msg("search index warmed")
	return nil
}
