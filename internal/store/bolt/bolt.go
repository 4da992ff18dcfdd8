// Package bolt provides an embedded key/value store on bbolt. Each collection
// gets its own nested bucket of records plus a seq index for ordered scans.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hudson-blanoire/chroma-server/internal/model"
	"github.com/hudson-blanoire/chroma-server/internal/store"
)

var (
	bucketCollections = []byte("collections")
	bucketNames       = []byte("collection_names")
	bucketRecords     = []byte("records")

	subData  = []byte("data")
	subOrder = []byte("order")
)

type Store struct {
	db *bbolt.DB
}

// Open opens or creates the bbolt file at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt open: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketCollections, bucketNames, bucketRecords} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Collections() store.Collections { return &collections{db: s.db} }
func (s *Store) Records() store.Records         { return &records{db: s.db} }
func (s *Store) Close() error                   { return s.db.Close() }

// HealthPing implements health.HealthPinger with a read transaction.
func (s *Store) HealthPing(ctx context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketCollections) == nil {
			return fmt.Errorf("bolt: collections bucket missing")
		}
		return ctx.Err()
	})
}

func (s *Store) Reset(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketCollections, bucketNames, bucketRecords} {
			if err := tx.DeleteBucket(b); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(b); err != nil {
				return err
			}
		}
		return nil
	})
}

type collectionDoc struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Tenant    string         `json:"tenant"`
	Database  string         `json:"database"`
	Metadata  model.Metadata `json:"metadata,omitempty"`
	Dimension *int           `json:"dimension,omitempty"`
	Created   int64          `json:"created"`
}

func (d collectionDoc) model() *model.Collection {
	return &model.Collection{
		ID:           d.ID,
		Name:         d.Name,
		Tenant:       d.Tenant,
		Database:     d.Database,
		Metadata:     d.Metadata,
		Dimension:    d.Dimension,
		CreationTime: time.Unix(0, d.Created).UTC(),
	}
}

func nameKey(tenant, database, name string) []byte {
	return []byte(tenant + "\x00" + database + "\x00" + name)
}

func getCollection(tx *bbolt.Tx, id string) (*collectionDoc, error) {
	raw := tx.Bucket(bucketCollections).Get([]byte(id))
	if raw == nil {
		return nil, fmt.Errorf("collection %s: %w", id, model.ErrNotFound)
	}
	var d collectionDoc
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func putCollection(tx *bbolt.Tx, d *collectionDoc) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketCollections).Put([]byte(d.ID), raw)
}

// --- Collections ---
type collections struct{ db *bbolt.DB }

func (c *collections) Create(ctx context.Context, in *model.Collection) (*model.Collection, error) {
	created := in.CreationTime
	if created.IsZero() {
		created = time.Now().UTC()
	}
	d := &collectionDoc{
		ID: in.ID, Name: in.Name, Tenant: in.Tenant, Database: in.Database,
		Metadata: in.Metadata, Dimension: in.Dimension, Created: created.UnixNano(),
	}
	err := c.db.Update(func(tx *bbolt.Tx) error {
		names := tx.Bucket(bucketNames)
		key := nameKey(d.Tenant, d.Database, d.Name)
		if names.Get(key) != nil || tx.Bucket(bucketCollections).Get([]byte(d.ID)) != nil {
			return fmt.Errorf("collection %q already exists: %w", d.Name, model.ErrConflict)
		}
		if err := names.Put(key, []byte(d.ID)); err != nil {
			return err
		}
		return putCollection(tx, d)
	})
	if err != nil {
		return nil, err
	}
	return d.model(), nil
}

func (c *collections) GetByID(ctx context.Context, id string) (*model.Collection, error) {
	var out *model.Collection
	err := c.db.View(func(tx *bbolt.Tx) error {
		d, err := getCollection(tx, id)
		if err != nil {
			return err
		}
		out = d.model()
		return nil
	})
	return out, err
}

func (c *collections) GetByName(ctx context.Context, tenant, database, name string) (*model.Collection, error) {
	var out *model.Collection
	err := c.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketNames).Get(nameKey(tenant, database, name))
		if id == nil {
			return fmt.Errorf("collection %q: %w", name, model.ErrNotFound)
		}
		d, err := getCollection(tx, string(id))
		if err != nil {
			return err
		}
		out = d.model()
		return nil
	})
	return out, err
}

// scan returns matching collections in creation order.
func (c *collections) scan(match func(d *collectionDoc) bool) ([]*model.Collection, error) {
	var out []*model.Collection
	err := c.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCollections).ForEach(func(_, raw []byte) error {
			var d collectionDoc
			if err := json.Unmarshal(raw, &d); err != nil {
				return err
			}
			if match(&d) {
				out = append(out, d.model())
			}
			return nil
		})
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreationTime.Equal(out[j].CreationTime) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreationTime.Before(out[j].CreationTime)
	})
	return out, err
}

func (c *collections) scope(tenant, database string) ([]*model.Collection, error) {
	return c.scan(func(d *collectionDoc) bool { return d.Tenant == tenant && d.Database == database })
}

func (c *collections) List(ctx context.Context, tenant, database string, limit, offset int) ([]*model.Collection, error) {
	all, err := c.scope(tenant, database)
	if err != nil {
		return nil, err
	}
	return page(all, limit, offset), nil
}

func (c *collections) ListAll(ctx context.Context) ([]*model.Collection, error) {
	return c.scan(func(*collectionDoc) bool { return true })
}

func (c *collections) Count(ctx context.Context, tenant, database string) (int, error) {
	all, err := c.scope(tenant, database)
	return len(all), err
}

func (c *collections) Update(ctx context.Context, id string, newName *string, metadata model.Metadata) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		d, err := getCollection(tx, id)
		if err != nil {
			return err
		}
		if newName != nil && *newName != d.Name {
			names := tx.Bucket(bucketNames)
			key := nameKey(d.Tenant, d.Database, *newName)
			if names.Get(key) != nil {
				return fmt.Errorf("collection %q already exists: %w", *newName, model.ErrConflict)
			}
			if err := names.Delete(nameKey(d.Tenant, d.Database, d.Name)); err != nil {
				return err
			}
			if err := names.Put(key, []byte(d.ID)); err != nil {
				return err
			}
			d.Name = *newName
		}
		if metadata != nil {
			d.Metadata = metadata
		}
		return putCollection(tx, d)
	})
}

func (c *collections) SetDimension(ctx context.Context, id string, dim int) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		d, err := getCollection(tx, id)
		if err != nil {
			return err
		}
		d.Dimension = &dim
		return putCollection(tx, d)
	})
}

func (c *collections) Delete(ctx context.Context, id string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		d, err := getCollection(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketNames).Delete(nameKey(d.Tenant, d.Database, d.Name)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketCollections).Delete([]byte(id)); err != nil {
			return err
		}
		recs := tx.Bucket(bucketRecords)
		if recs.Bucket([]byte(id)) != nil {
			return recs.DeleteBucket([]byte(id))
		}
		return nil
	})
}

func page[T any](all []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

// --- Records ---
type records struct{ db *bbolt.DB }

type recordDoc struct {
	Seq       int64          `json:"seq"`
	Embedding []byte         `json:"embedding,omitempty"`
	Document  *string        `json:"document,omitempty"`
	URI       *string        `json:"uri,omitempty"`
	Metadata  model.Metadata `json:"metadata,omitempty"`
}

func seqKey(seq int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(seq))
	return b
}

func decodeRecord(id string, raw []byte) (*model.Record, error) {
	var d recordDoc
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	vec, err := store.DecodeEmbedding(d.Embedding)
	if err != nil {
		return nil, err
	}
	return &model.Record{ID: id, Seq: d.Seq, Embedding: vec, Document: d.Document, URI: d.URI, Metadata: d.Metadata}, nil
}

// collectionBuckets returns the data and order buckets, creating them on write transactions.
func collectionBuckets(tx *bbolt.Tx, collectionID string) (col, data, order *bbolt.Bucket, err error) {
	root := tx.Bucket(bucketRecords)
	if !tx.Writable() {
		col = root.Bucket([]byte(collectionID))
		if col == nil {
			return nil, nil, nil, nil
		}
		return col, col.Bucket(subData), col.Bucket(subOrder), nil
	}
	if tx.Bucket(bucketCollections).Get([]byte(collectionID)) == nil {
		return nil, nil, nil, fmt.Errorf("collection %s: %w", collectionID, model.ErrNotFound)
	}
	if col, err = root.CreateBucketIfNotExists([]byte(collectionID)); err != nil {
		return nil, nil, nil, err
	}
	if data, err = col.CreateBucketIfNotExists(subData); err != nil {
		return nil, nil, nil, err
	}
	if order, err = col.CreateBucketIfNotExists(subOrder); err != nil {
		return nil, nil, nil, err
	}
	return col, data, order, nil
}

func (r *records) write(collectionID string, recs []*model.Record, replace bool) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		col, data, order, err := collectionBuckets(tx, collectionID)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			key := []byte(rec.ID)
			if prev := data.Get(key); prev != nil {
				if !replace {
					return fmt.Errorf("record %q already exists: %w", rec.ID, model.ErrConflict)
				}
				var old recordDoc
				if err := json.Unmarshal(prev, &old); err != nil {
					return err
				}
				rec.Seq = old.Seq
			} else {
				seq, err := col.NextSequence()
				if err != nil {
					return err
				}
				rec.Seq = int64(seq)
				if err := order.Put(seqKey(rec.Seq), key); err != nil {
					return err
				}
			}
			raw, err := json.Marshal(recordDoc{
				Seq: rec.Seq, Embedding: store.EncodeEmbedding(rec.Embedding),
				Document: rec.Document, URI: rec.URI, Metadata: rec.Metadata,
			})
			if err != nil {
				return err
			}
			if err := data.Put(key, raw); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *records) Insert(ctx context.Context, collectionID string, recs []*model.Record) error {
	return r.write(collectionID, recs, false)
}

func (r *records) Upsert(ctx context.Context, collectionID string, recs []*model.Record) error {
	return r.write(collectionID, recs, true)
}

func (r *records) GetByIDs(ctx context.Context, collectionID string, ids []string) ([]*model.Record, error) {
	var out []*model.Record
	err := r.db.View(func(tx *bbolt.Tx) error {
		_, data, _, err := collectionBuckets(tx, collectionID)
		if err != nil || data == nil {
			return err
		}
		seen := map[string]bool{}
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			raw := data.Get([]byte(id))
			if raw == nil {
				continue
			}
			rec, err := decodeRecord(id, raw)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, err
}

func (r *records) List(ctx context.Context, collectionID string, limit, offset int) ([]*model.Record, error) {
	var out []*model.Record
	err := r.db.View(func(tx *bbolt.Tx) error {
		_, data, order, err := collectionBuckets(tx, collectionID)
		if err != nil || data == nil {
			return err
		}
		skipped := 0
		cur := order.Cursor()
		for k, id := cur.First(); k != nil; k, id = cur.Next() {
			if skipped < offset {
				skipped++
				continue
			}
			if limit > 0 && len(out) >= limit {
				break
			}
			rec, err := decodeRecord(string(id), data.Get(id))
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

func (r *records) Delete(ctx context.Context, collectionID string, ids []string) (int, error) {
	n := 0
	err := r.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketRecords).Bucket([]byte(collectionID)) == nil {
			return nil
		}
		_, data, order, err := collectionBuckets(tx, collectionID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			raw := data.Get([]byte(id))
			if raw == nil {
				continue
			}
			var d recordDoc
			if err := json.Unmarshal(raw, &d); err != nil {
				return err
			}
			if err := order.Delete(seqKey(d.Seq)); err != nil {
				return err
			}
			if err := data.Delete([]byte(id)); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func (r *records) Count(ctx context.Context, collectionID string) (int, error) {
	n := 0
	err := r.db.View(func(tx *bbolt.Tx) error {
		_, _, order, err := collectionBuckets(tx, collectionID)
		if err != nil || order == nil {
			return err
		}
		n = order.Stats().KeyN
		return nil
	})
	return n, err
}
