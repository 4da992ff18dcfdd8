// Package sqlstore implements store.Store on database/sql. The sqlite and
// postgres packages supply the driver specific Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hudson-blanoire/chroma-server/internal/model"
	"github.com/hudson-blanoire/chroma-server/internal/store"
)

// Dialect captures the differences between SQL backends.
type Dialect struct {
	Name string
	// Schema statements are executed in order by Migrate and must be idempotent.
	Schema []string
	// Numbered placeholders ($1, $2, ...) instead of "?".
	Numbered bool
	// IsUniqueViolation reports whether err is a primary key or unique constraint failure.
	IsUniqueViolation func(err error) bool
	// LockCollection takes a row lock on the collection before a record
	// sequence number is assigned. Needed when writers run concurrently.
	LockCollection bool
}

// Schema returns the shared DDL with the dialect's binary column type.
func Schema(blobType string) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS collections (
            id            TEXT PRIMARY KEY,
            name          TEXT NOT NULL,
            tenant        TEXT NOT NULL,
            database_name TEXT NOT NULL,
            metadata      TEXT,
            dimension     INTEGER,
            created_at    BIGINT NOT NULL,
            UNIQUE (tenant, database_name, name)
        )`,
		`CREATE TABLE IF NOT EXISTS records (
            collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
            id            TEXT NOT NULL,
            seq           BIGINT NOT NULL,
            embedding     ` + blobType + `,
            document      TEXT,
            uri           TEXT,
            metadata      TEXT,
            PRIMARY KEY (collection_id, id)
        )`,
		`DROP INDEX IF EXISTS records_collection_seq`,
		`CREATE UNIQUE INDEX IF NOT EXISTS records_collection_seq_key ON records (collection_id, seq)`,
	}
}

// DB is a store.Store backed by database/sql.
type DB struct {
	db *sql.DB
	d  Dialect
}

// New wraps an open database. Call Migrate before use.
func New(db *sql.DB, d Dialect) *DB { return &DB{db: db, d: d} }

// Migrate creates tables and indexes when missing.
func (s *DB) Migrate(ctx context.Context) error {
	for _, stmt := range s.d.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s migrate: %w", s.d.Name, err)
		}
	}
	return nil
}

func (s *DB) Collections() store.Collections { return &collections{s} }
func (s *DB) Records() store.Records         { return &records{s} }

// SQL exposes the underlying handle for health checks and tests.
func (s *DB) SQL() *sql.DB { return s.db }

// HealthPing implements health.HealthPinger.
func (s *DB) HealthPing(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) Reset(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM collections`)
		return err
	})
}

// rebind rewrites "?" placeholders for dialects using numbered parameters.
func (s *DB) rebind(q string) string {
	if !s.d.Numbered {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *DB) conflict(err error) bool {
	return s.d.IsUniqueViolation != nil && s.d.IsUniqueViolation(err)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func pageArgs(limit, offset int) (int64, int64) {
	l := int64(limit)
	if limit <= 0 {
		l = math.MaxInt32
	}
	if offset < 0 {
		offset = 0
	}
	return l, int64(offset)
}

// --- Collections ---
type collections struct{ s *DB }

const collectionColumns = `id, name, tenant, database_name, metadata, dimension, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCollection(row rowScanner) (*model.Collection, error) {
	var (
		c       model.Collection
		md      sql.NullString
		dim     sql.NullInt64
		created int64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Tenant, &c.Database, &md, &dim, &created); err != nil {
		return nil, err
	}
	if md.Valid {
		meta, err := store.DecodeMetadata(&md.String)
		if err != nil {
			return nil, err
		}
		c.Metadata = meta
	}
	if dim.Valid {
		d := int(dim.Int64)
		c.Dimension = &d
	}
	c.CreationTime = time.Unix(0, created).UTC()
	return &c, nil
}

func (c *collections) Create(ctx context.Context, in *model.Collection) (*model.Collection, error) {
	md, err := store.EncodeMetadata(in.Metadata)
	if err != nil {
		return nil, err
	}
	out := *in
	if out.CreationTime.IsZero() {
		out.CreationTime = time.Now().UTC()
	}
	var dim interface{}
	if out.Dimension != nil {
		dim = *out.Dimension
	}
	_, err = c.s.db.ExecContext(ctx, c.s.rebind(`
        INSERT INTO collections (`+collectionColumns+`)
        VALUES (?,?,?,?,?,?,?)
    `), out.ID, out.Name, out.Tenant, out.Database, md, dim, out.CreationTime.UnixNano())
	if err != nil {
		if c.s.conflict(err) {
			return nil, fmt.Errorf("collection %q already exists: %w", in.Name, model.ErrConflict)
		}
		return nil, err
	}
	return &out, nil
}

func (c *collections) GetByID(ctx context.Context, id string) (*model.Collection, error) {
	row := c.s.db.QueryRowContext(ctx, c.s.rebind(`SELECT `+collectionColumns+` FROM collections WHERE id=?`), id)
	out, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %s: %w", id, model.ErrNotFound)
	}
	return out, err
}

func (c *collections) GetByName(ctx context.Context, tenant, database, name string) (*model.Collection, error) {
	row := c.s.db.QueryRowContext(ctx, c.s.rebind(`
        SELECT `+collectionColumns+` FROM collections
        WHERE tenant=? AND database_name=? AND name=?
    `), tenant, database, name)
	out, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %q: %w", name, model.ErrNotFound)
	}
	return out, err
}

func (c *collections) List(ctx context.Context, tenant, database string, limit, offset int) ([]*model.Collection, error) {
	l, o := pageArgs(limit, offset)
	rows, err := c.s.db.QueryContext(ctx, c.s.rebind(`
        SELECT `+collectionColumns+` FROM collections
        WHERE tenant=? AND database_name=?
        ORDER BY created_at, name
        LIMIT ? OFFSET ?
    `), tenant, database, l, o)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Collection
	for rows.Next() {
		col, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, col)
	}
	return out, rows.Err()
}

func (c *collections) ListAll(ctx context.Context) ([]*model.Collection, error) {
	rows, err := c.s.db.QueryContext(ctx, `SELECT `+collectionColumns+` FROM collections ORDER BY created_at, name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Collection
	for rows.Next() {
		col, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, col)
	}
	return out, rows.Err()
}

func (c *collections) Count(ctx context.Context, tenant, database string) (int, error) {
	var n int
	err := c.s.db.QueryRowContext(ctx, c.s.rebind(`
        SELECT COUNT(*) FROM collections WHERE tenant=? AND database_name=?
    `), tenant, database).Scan(&n)
	return n, err
}

func (c *collections) Update(ctx context.Context, id string, newName *string, metadata model.Metadata) error {
	sets := []string{}
	args := []interface{}{}
	if newName != nil {
		sets = append(sets, "name=?")
		args = append(args, *newName)
	}
	if metadata != nil {
		md, err := store.EncodeMetadata(metadata)
		if err != nil {
			return err
		}
		sets = append(sets, "metadata=?")
		args = append(args, md)
	}
	if len(sets) == 0 {
		_, err := c.GetByID(ctx, id)
		return err
	}
	args = append(args, id)
	res, err := c.s.db.ExecContext(ctx, c.s.rebind(`UPDATE collections SET `+strings.Join(sets, ", ")+` WHERE id=?`), args...)
	if err != nil {
		if c.s.conflict(err) {
			return fmt.Errorf("collection %q already exists: %w", *newName, model.ErrConflict)
		}
		return err
	}
	return expectAffected(res, "collection "+id)
}

func (c *collections) SetDimension(ctx context.Context, id string, dim int) error {
	res, err := c.s.db.ExecContext(ctx, c.s.rebind(`UPDATE collections SET dimension=? WHERE id=?`), dim, id)
	if err != nil {
		return err
	}
	return expectAffected(res, "collection "+id)
}

func (c *collections) Delete(ctx context.Context, id string) error {
	return c.s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, c.s.rebind(`DELETE FROM records WHERE collection_id=?`), id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, c.s.rebind(`DELETE FROM collections WHERE id=?`), id)
		if err != nil {
			return err
		}
		return expectAffected(res, "collection "+id)
	})
}

func expectAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return nil
}
