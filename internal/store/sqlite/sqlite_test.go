package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hudson-blanoire/chroma-server/internal/model"
	"github.com/hudson-blanoire/chroma-server/internal/store"
	"github.com/hudson-blanoire/chroma-server/internal/store/storetest"
)

func TestSQLiteStore_InMemoryCompliance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := New(context.Background(), "")
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStore_FileCompliance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := New(context.Background(), filepath.Join(t.TempDir(), "nested", "chroma.sqlite3"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chroma.sqlite3")

	s, err := New(ctx, path)
	require.NoError(t, err)
	_, err = s.Collections().Create(ctx, &model.Collection{ID: "c1", Name: "kept", Tenant: model.DefaultTenant, Database: model.DefaultDatabase})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(ctx, path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	got, err := s.Collections().GetByName(ctx, model.DefaultTenant, model.DefaultDatabase, "kept")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)
}

func TestSQLiteStore_HealthChecker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := New(ctx, "")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	hc := store.NewStoreHealthChecker(s, zerolog.Nop(), 100*time.Millisecond)
	go hc.Start(ctx, 20*time.Millisecond)
	require.Eventually(t, hc.IsHealthy, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Close())
	require.Eventually(t, func() bool { return !hc.IsHealthy() }, time.Second, 10*time.Millisecond)
}

func TestSQLiteStore_SeqUniquePerCollection(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, "")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, err = s.Collections().Create(ctx, &model.Collection{ID: "c1", Name: "seq", Tenant: model.DefaultTenant, Database: model.DefaultDatabase})
	require.NoError(t, err)
	require.NoError(t, s.Records().Insert(ctx, "c1", []*model.Record{{ID: "a", Embedding: []float32{1}}}))
	got, err := s.Records().GetByIDs(ctx, "c1", []string{"a"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = s.SQL().ExecContext(ctx, `INSERT INTO records (collection_id, id, seq) VALUES ('c1', 'b', ?)`, got[0].Seq)
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))
}
