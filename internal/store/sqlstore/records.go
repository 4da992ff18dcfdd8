package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hudson-blanoire/chroma-server/internal/model"
	"github.com/hudson-blanoire/chroma-server/internal/store"
)

type records struct{ s *DB }

const recordColumns = `id, seq, embedding, document, uri, metadata`

func scanRecord(rows *sql.Rows) (*model.Record, error) {
	var (
		r   model.Record
		emb []byte
		doc sql.NullString
		uri sql.NullString
		md  sql.NullString
	)
	if err := rows.Scan(&r.ID, &r.Seq, &emb, &doc, &uri, &md); err != nil {
		return nil, err
	}
	vec, err := store.DecodeEmbedding(emb)
	if err != nil {
		return nil, err
	}
	r.Embedding = vec
	if doc.Valid {
		r.Document = &doc.String
	}
	if uri.Valid {
		r.URI = &uri.String
	}
	if md.Valid {
		if r.Metadata, err = store.DecodeMetadata(&md.String); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

// nextSeq returns the first free sequence number of a collection. Concurrent
// callers are serialized by the collection row lock or by a single writer.
func (r *records) nextSeq(ctx context.Context, tx *sql.Tx, collectionID string) (int64, error) {
	if r.s.d.LockCollection {
		var id string
		err := tx.QueryRowContext(ctx, r.s.rebind(`SELECT id FROM collections WHERE id=? FOR UPDATE`), collectionID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("collection %q: %w", collectionID, model.ErrNotFound)
		}
		if err != nil {
			return 0, err
		}
	}
	var last sql.NullInt64
	err := tx.QueryRowContext(ctx, r.s.rebind(`SELECT MAX(seq) FROM records WHERE collection_id=?`), collectionID).Scan(&last)
	if err != nil {
		return 0, err
	}
	return last.Int64 + 1, nil
}

func (r *records) insert(ctx context.Context, tx *sql.Tx, collectionID string, rec *model.Record) error {
	md, err := store.EncodeMetadata(rec.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, r.s.rebind(`
        INSERT INTO records (collection_id, `+recordColumns+`)
        VALUES (?,?,?,?,?,?,?)
    `), collectionID, rec.ID, rec.Seq, store.EncodeEmbedding(rec.Embedding), rec.Document, rec.URI, md)
	if err != nil && r.s.conflict(err) {
		return fmt.Errorf("record %q already exists: %w", rec.ID, model.ErrConflict)
	}
	return err
}

func (r *records) Insert(ctx context.Context, collectionID string, recs []*model.Record) error {
	return r.s.inTx(ctx, func(tx *sql.Tx) error {
		seq, err := r.nextSeq(ctx, tx, collectionID)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			rec.Seq = seq
			seq++
			if err := r.insert(ctx, tx, collectionID, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *records) Upsert(ctx context.Context, collectionID string, recs []*model.Record) error {
	return r.s.inTx(ctx, func(tx *sql.Tx) error {
		seq, err := r.nextSeq(ctx, tx, collectionID)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			var existing int64
			err := tx.QueryRowContext(ctx, r.s.rebind(`SELECT seq FROM records WHERE collection_id=? AND id=?`), collectionID, rec.ID).Scan(&existing)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				rec.Seq = seq
				seq++
				if err := r.insert(ctx, tx, collectionID, rec); err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				rec.Seq = existing
				md, err := store.EncodeMetadata(rec.Metadata)
				if err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx, r.s.rebind(`
                    UPDATE records SET embedding=?, document=?, uri=?, metadata=?
                    WHERE collection_id=? AND id=?
                `), store.EncodeEmbedding(rec.Embedding), rec.Document, rec.URI, md, collectionID, rec.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (r *records) query(ctx context.Context, q string, args ...interface{}) ([]*model.Record, error) {
	rows, err := r.s.db.QueryContext(ctx, r.s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *records) GetByIDs(ctx context.Context, collectionID string, ids []string) ([]*model.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, collectionID)
	for _, id := range ids {
		args = append(args, id)
	}
	return r.query(ctx, `
        SELECT `+recordColumns+` FROM records
        WHERE collection_id=? AND id IN (`+placeholders(len(ids))+`)
        ORDER BY seq
    `, args...)
}

func (r *records) List(ctx context.Context, collectionID string, limit, offset int) ([]*model.Record, error) {
	l, o := pageArgs(limit, offset)
	return r.query(ctx, `
        SELECT `+recordColumns+` FROM records
        WHERE collection_id=?
        ORDER BY seq
        LIMIT ? OFFSET ?
    `, collectionID, l, o)
}

func (r *records) Delete(ctx context.Context, collectionID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, collectionID)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := r.s.db.ExecContext(ctx, r.s.rebind(`
        DELETE FROM records WHERE collection_id=? AND id IN (`+placeholders(len(ids))+`)
    `), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *records) Count(ctx context.Context, collectionID string) (int, error) {
	var n int
	err := r.s.db.QueryRowContext(ctx, r.s.rebind(`SELECT COUNT(*) FROM records WHERE collection_id=?`), collectionID).Scan(&n)
	return n, err
}
