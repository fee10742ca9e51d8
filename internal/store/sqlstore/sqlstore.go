// Package sqlstore implements store.Store on SQLite or PostgreSQL through sqlx.
//
// Follows, likes and retweets are edge tables with composite primary keys, and a
// reply points at its parent through tweets.parent_id with ON DELETE CASCADE.
// Membership uniqueness, follower/following symmetry and reply cleanup are
// therefore enforced by the schema.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/isdelr/chirper-be/internal/models"
	"github.com/isdelr/chirper-be/internal/store"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

var _ store.Store = (*Store)(nil)

// errUnchanged rolls back a transaction whose edge write was a no-op.
var errUnchanged = errors.New("unchanged")

// Store is the SQL persistence backend.
type Store struct {
	db *sqlx.DB
}

// New wraps an opened and migrated database.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Reconcile has nothing to repair: the schema keeps every reference consistent.
func (s *Store) Reconcile(ctx context.Context) (models.ReconcileReport, error) {
	return models.ReconcileReport{}, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// maxInParams bounds the ids bound into one "IN (?)" list, below the
// bind-parameter limits of SQLite (32766) and Postgres (65535).
const maxInParams = 1000

// selectIn runs a query with a single "IN (?)" placeholder bound to ids,
// split into batches of maxInParams.
func selectIn[T any](ctx context.Context, q sqlx.QueryerContext, query string, ids []string) ([]T, error) {
	return selectInBatches[T](ctx, q, query, ids, maxInParams)
}

func selectInBatches[T any](ctx context.Context, q sqlx.QueryerContext, query string, ids []string, size int) ([]T, error) {
	var out []T
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batch, args, err := sqlx.In(query, ids[start:end])
		if err != nil {
			return nil, err
		}
		var rows []T
		if err := sqlx.SelectContext(ctx, q, &rows, rebind(q, batch), args...); err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func rebind(q sqlx.QueryerContext, query string) string {
	if b, ok := q.(interface{ Rebind(string) string }); ok {
		return b.Rebind(query)
	}
	return query
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
