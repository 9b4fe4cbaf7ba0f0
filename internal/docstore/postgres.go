package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"fieldops/pkg/platform/sentinel"
)

const defaultTxTimeout = 5 * time.Second

// Postgres stores every collection in a single documents table with a JSONB
// body. This store is pure I/O; all domain logic belongs in the services.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a Postgres-backed Store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the documents table when absent.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			collection  TEXT        NOT NULL,
			id          TEXT        NOT NULL,
			data        JSONB       NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, id)
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure documents schema: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, sentinel.ErrNotFound)
		}
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return Document{}, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return Document{Collection: collection, ID: id, Data: data}, nil
}

func (s *Postgres) Query(ctx context.Context, collection string, filters []Filter, limit int) ([]Document, error) {
	where := []string{"collection = $1"}
	args := []any{collection}

	for _, f := range filters {
		clause, clauseArgs, err := filterClause(f, len(args)+1)
		if err != nil {
			return nil, err
		}
		where = append(where, clause)
		args = append(args, clauseArgs...)
	}

	query := fmt.Sprintf(
		`SELECT id, data FROM documents WHERE %s ORDER BY id`,
		strings.Join(where, " AND "),
	)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		out = append(out, Document{Collection: collection, ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return out, nil
}

// filterClause renders one Filter against the JSONB body. Field paths are
// parameterized as text arrays so dotted paths need no SQL quoting.
func filterClause(f Filter, argOffset int) (string, []any, error) {
	path := pq.Array(strings.Split(f.Field, "."))

	switch f.Op {
	case OpEq, OpArrayContains:
		value, err := json.Marshal(f.Value)
		if err != nil {
			return "", nil, fmt.Errorf("encode filter value for %s: %w", f.Field, err)
		}
		op := "="
		if f.Op == OpArrayContains {
			op = "@>"
		}
		return fmt.Sprintf("data #> $%d %s $%d::jsonb", argOffset, op, argOffset+1),
			[]any{path, string(value)}, nil

	case OpIn:
		value, err := json.Marshal(f.Value)
		if err != nil {
			return "", nil, fmt.Errorf("encode filter value for %s: %w", f.Field, err)
		}
		return fmt.Sprintf("data #> $%d <@ $%d::jsonb", argOffset, argOffset+1),
			[]any{path, string(value)}, nil

	case OpGTE, OpLTE:
		op := ">="
		if f.Op == OpLTE {
			op = "<="
		}
		if n, ok := toFloat(f.Value); ok {
			return fmt.Sprintf("(data #>> $%d)::numeric %s $%d", argOffset, op, argOffset+1),
				[]any{path, n}, nil
		}
		return fmt.Sprintf("data #>> $%d %s $%d", argOffset, op, argOffset+1),
			[]any{path, fmt.Sprintf("%v", f.Value)}, nil
	}
	return "", nil, fmt.Errorf("unsupported filter op %q", f.Op)
}

// AtomicWrite applies the batch inside one transaction so either every
// document lands or none do.
func (s *Postgres) AtomicWrite(ctx context.Context, writes []Write) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("atomic write aborted: %w", err)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTxTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin atomic write: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, w := range writes {
		if err := applyWrite(ctx, tx, w); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit atomic write: %w", err)
	}
	return nil
}

func applyWrite(ctx context.Context, tx *sql.Tx, w Write) error {
	if w.Merge == MergeDelete {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE collection = $1 AND id = $2`,
			w.Collection, w.ID,
		)
		if err != nil {
			return fmt.Errorf("delete %s/%s: %w", w.Collection, w.ID, err)
		}
		return nil
	}

	data, err := encode(w.Data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", w.Collection, w.ID, err)
	}

	switch w.Merge {
	case MergeCreate:
		res, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, data)
			VALUES ($1, $2, $3)
			ON CONFLICT (collection, id) DO NOTHING
		`, w.Collection, w.ID, raw)
		if err != nil {
			return fmt.Errorf("create %s/%s: %w", w.Collection, w.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("create %s/%s: %w", w.Collection, w.ID, err)
		}
		if affected == 0 {
			return fmt.Errorf("create %s/%s: %w", w.Collection, w.ID, sentinel.ErrConflict)
		}
	case MergeSet:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, data)
			VALUES ($1, $2, $3)
			ON CONFLICT (collection, id) DO UPDATE SET
				data = documents.data || EXCLUDED.data,
				updated_at = now()
		`, w.Collection, w.ID, raw)
		if err != nil {
			return fmt.Errorf("set %s/%s: %w", w.Collection, w.ID, err)
		}
	default:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, data)
			VALUES ($1, $2, $3)
			ON CONFLICT (collection, id) DO UPDATE SET
				data = EXCLUDED.data,
				updated_at = now()
		`, w.Collection, w.ID, raw)
		if err != nil {
			return fmt.Errorf("replace %s/%s: %w", w.Collection, w.ID, err)
		}
	}
	return nil
}
