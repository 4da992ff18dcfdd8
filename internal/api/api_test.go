package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hudson-blanoire/chroma-server/internal/model"
	"github.com/hudson-blanoire/chroma-server/internal/searchindex"
	"github.com/hudson-blanoire/chroma-server/internal/services"
	"github.com/hudson-blanoire/chroma-server/internal/store/sqlite"
)

func newTestServer(t *testing.T, opts services.RecordOptions, healthy func() bool) *httptest.Server {
	t.Helper()
	st, err := sqlite.New(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	idx := searchindex.NewHNSW()
	if opts.MaxBatchSize == 0 {
		opts.MaxBatchSize = 100
	}
	router := NewRouter(Deps{
		Collections: services.NewCollectionService(st, idx, zerolog.Nop()),
		Records:     services.NewRecordService(st, idx, nil, opts, zerolog.Nop()),
		IsHealthy:   healthy,
		Log:         zerolog.Nop(),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body interface{}) (int, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(b, &v), string(b))
	return v
}

func TestSystemEndpoints(t *testing.T) {
	srv := newTestServer(t, services.RecordOptions{MaxBatchSize: 42}, nil)

	for _, path := range []string{"/api/v1", "/api/v1/heartbeat"} {
		code, body := do(t, srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, code)
		hb := decode[map[string]int64](t, body)
		assert.Positive(t, hb["nanosecond heartbeat"])
	}

	code, body := do(t, srv, http.MethodGet, "/api/v1/version", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, Version, decode[string](t, body))

	code, body = do(t, srv, http.MethodGet, "/api/v1/pre-flight-checks", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"max_batch_size":42}`, string(body))

	code, body = do(t, srv, http.MethodPost, "/api/v1/reset", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Contains(t, string(body), "reset")
}

func TestHealthEndpoint(t *testing.T) {
	var healthy atomic.Bool
	srv := newTestServer(t, services.RecordOptions{}, healthy.Load)

	code, body := do(t, srv, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "unhealthy", decode[map[string]string](t, body)["status"])

	healthy.Store(true)
	_, body = do(t, srv, http.MethodGet, "/api/health", nil)
	assert.Equal(t, "healthy", decode[map[string]string](t, body)["status"])
}

func TestCollectionLifecycle(t *testing.T) {
	srv := newTestServer(t, services.RecordOptions{}, nil)

	code, body := do(t, srv, http.MethodPost, "/api/v1/collections", map[string]interface{}{
		"name":     "docs",
		"metadata": map[string]interface{}{"hnsw:space": "cosine"},
	})
	require.Equal(t, http.StatusOK, code, string(body))
	created := decode[model.Collection](t, body)
	assert.Equal(t, "docs", created.Name)
	assert.Equal(t, model.DefaultTenant, created.Tenant)

	code, _ = do(t, srv, http.MethodPost, "/api/v1/collections", map[string]interface{}{"name": "docs"})
	assert.Equal(t, http.StatusConflict, code)

	code, body = do(t, srv, http.MethodPost, "/api/v1/collections", map[string]interface{}{"name": "docs", "get_or_create": true})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, created.ID, decode[model.Collection](t, body).ID)

	code, _ = do(t, srv, http.MethodPost, "/api/v1/collections", map[string]interface{}{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, srv, http.MethodGet, "/api/v1/collections/docs", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, created.ID, decode[model.Collection](t, body).ID)

	code, _ = do(t, srv, http.MethodGet, "/api/v1/collections/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, srv, http.MethodPut, "/api/v1/collections/"+created.ID, map[string]interface{}{"new_name": "papers"})
	assert.Equal(t, http.StatusOK, code)

	code, body = do(t, srv, http.MethodGet, "/api/v1/collections", nil)
	assert.Equal(t, http.StatusOK, code)
	list := decode[[]model.Collection](t, body)
	require.Len(t, list, 1)
	assert.Equal(t, "papers", list[0].Name)

	code, body = do(t, srv, http.MethodGet, "/api/v1/collections?limit=0", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(body))

	code, _ = do(t, srv, http.MethodGet, "/api/v1/collections?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, srv, http.MethodGet, "/api/v1/count_collections", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1", string(bytes.TrimSpace(body)))

	code, body = do(t, srv, http.MethodDelete, "/api/v1/collections/papers", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "null", string(bytes.TrimSpace(body)))

	code, _ = do(t, srv, http.MethodDelete, "/api/v1/collections/papers", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRecordEndpoints(t *testing.T) {
	srv := newTestServer(t, services.RecordOptions{}, nil)

	_, body := do(t, srv, http.MethodPost, "/api/v1/collections", map[string]interface{}{"name": "docs"})
	id := decode[model.Collection](t, body).ID
	base := "/api/v1/collections/" + id

	code, body := do(t, srv, http.MethodPost, base+"/add", map[string]interface{}{
		"ids":        []string{"a", "b", "c"},
		"embeddings": [][]float32{{0, 0}, {1, 0}, {5, 5}},
		"documents":  []string{"apple", "banana", "cherry"},
		"metadatas":  []map[string]interface{}{{"n": 1}, {"n": 2}, {"n": 3}},
	})
	require.Equal(t, http.StatusCreated, code, string(body))
	assert.Equal(t, "true", string(bytes.TrimSpace(body)))

	code, body = do(t, srv, http.MethodGet, base+"/count", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "3", string(bytes.TrimSpace(body)))

	code, body = do(t, srv, http.MethodPost, base+"/get", map[string]interface{}{
		"where":   map[string]interface{}{"n": map[string]interface{}{"$gt": 1}},
		"include": []string{"documents"},
	})
	require.Equal(t, http.StatusOK, code, string(body))
	assert.JSONEq(t, `{"ids":["b","c"],"embeddings":null,"documents":["banana","cherry"],"metadatas":null,"uris":null,"included":["documents"]}`, string(body))

	code, body = do(t, srv, http.MethodPost, base+"/query", map[string]interface{}{
		"query_embeddings": [][]float32{{0.9, 0}},
		"n_results":        2,
	})
	require.Equal(t, http.StatusOK, code, string(body))
	q := decode[model.QueryResult](t, body)
	assert.Equal(t, [][]string{{"b", "a"}}, q.IDs)
	require.Len(t, q.Distances, 1)
	assert.InDelta(t, 0.01, q.Distances[0][0], 1e-5)

	code, _ = do(t, srv, http.MethodPost, base+"/query", map[string]interface{}{"query_embeddings": [][]float32{{1}}})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, srv, http.MethodPost, base+"/query", map[string]interface{}{"query_embeddings": [][]float32{{1, 1}}, "n_results": 0})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, srv, http.MethodPost, base+"/update", map[string]interface{}{
		"ids":       []string{"a"},
		"metadatas": []map[string]interface{}{{"n": nil, "tag": "x"}},
	})
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, srv, http.MethodPost, base+"/upsert", map[string]interface{}{
		"ids":        []string{"d"},
		"embeddings": [][]float32{{2, 2}},
	})
	assert.Equal(t, http.StatusOK, code)

	_, body = do(t, srv, http.MethodPost, base+"/get", map[string]interface{}{"ids": []string{"a", "d"}, "include": []string{"metadatas"}})
	res := decode[model.GetResult](t, body)
	assert.Equal(t, []string{"a", "d"}, res.IDs)
	assert.Equal(t, []model.Metadata{{"tag": "x"}, nil}, res.Metadatas)

	code, body = do(t, srv, http.MethodPost, base+"/delete", map[string]interface{}{"ids": []string{"a", "zzz"}})
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `["a"]`, string(body))

	code, _ = do(t, srv, http.MethodPost, base+"/delete", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRecordEndpoints_BadInput(t *testing.T) {
	srv := newTestServer(t, services.RecordOptions{}, nil)

	code, _ := do(t, srv, http.MethodGet, "/api/v1/collections/not-a-uuid/count", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, srv, http.MethodGet, "/api/v1/collections/5f1b6c1e-8e0c-4b3e-9e55-1f2e3d4c5b6a/count", nil)
	assert.Equal(t, http.StatusNotFound, code)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/collections", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResetEnabled(t *testing.T) {
	srv := newTestServer(t, services.RecordOptions{AllowReset: true}, nil)
	do(t, srv, http.MethodPost, "/api/v1/collections", map[string]interface{}{"name": "docs"})

	code, body := do(t, srv, http.MethodPost, "/api/v1/reset", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "true", string(bytes.TrimSpace(body)))

	_, body = do(t, srv, http.MethodGet, "/api/v1/count_collections", nil)
	assert.Equal(t, "0", string(bytes.TrimSpace(body)))
}
