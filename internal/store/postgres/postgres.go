package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"dukkan/backend/internal/domain"
	"dukkan/backend/internal/store"
	"dukkan/backend/internal/xid"
)

//go:embed migrations/*.sql
var migrations embed.FS

// maxAttempts bounds how often a serialization failure is retried.
const maxAttempts = 10

// Store keeps every collection in a single jsonb "documents" table.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(databaseURL string) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(databaseURL))
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func migrateURL(databaseURL string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, scheme) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, scheme)
		}
	}
	return databaseURL
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) conn() *conn {
	return &conn{q: s.db, now: s.now}
}

func (s *Store) GetAll(ctx context.Context, collection string) ([]store.Document, error) {
	return s.conn().GetAll(ctx, collection)
}

func (s *Store) GetByID(ctx context.Context, collection string, id string) (store.Document, error) {
	return s.conn().GetByID(ctx, collection, id)
}

func (s *Store) FindByField(ctx context.Context, collection string, field string, value any) ([]store.Document, error) {
	return s.conn().FindByField(ctx, collection, field, value)
}

func (s *Store) Add(ctx context.Context, collection string, doc store.Document) (store.Document, error) {
	return s.conn().Add(ctx, collection, doc)
}

func (s *Store) Update(ctx context.Context, collection string, id string, patch store.Document) (store.Document, error) {
	var out store.Document
	err := s.Atomic(ctx, func(ctx context.Context, tx store.Backend) error {
		updated, err := tx.Update(ctx, collection, id, patch)
		out = updated
		return err
	})
	return out, err
}

func (s *Store) Remove(ctx context.Context, collection string, id string) (bool, error) {
	return s.conn().Remove(ctx, collection, id)
}

// Atomic runs fn in a SERIALIZABLE transaction and retries it when Postgres
// reports a serialization failure or deadlock. fn may therefore run more than once.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Backend) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if !isRetryable(err) {
			return err
		}

		wait := time.Duration(attempt*attempt)*5*time.Millisecond + rand.N(5*time.Millisecond)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%w: %v", store.ErrConflict, err)
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx store.Backend) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, &conn{q: tx, now: s.now, locking: true}); err != nil {
		return err
	}
	return tx.Commit()
}

// conn implements store.Backend over a pool or a transaction. Inside a
// transaction reads by id take a row lock.
type conn struct {
	q       sqlx.ExtContext
	now     func() time.Time
	locking bool
}

func (c *conn) GetAll(ctx context.Context, collection string) ([]store.Document, error) {
	var rows []string
	err := sqlx.SelectContext(ctx, c.q, &rows, `
		SELECT doc::text
		FROM documents
		WHERE collection = $1
		ORDER BY seq
	`, collection)
	if err != nil {
		return nil, err
	}
	return toDocuments(rows), nil
}

func (c *conn) GetByID(ctx context.Context, collection string, id string) (store.Document, error) {
	query := `SELECT doc::text FROM documents WHERE collection = $1 AND id = $2`
	if c.locking {
		query += ` FOR UPDATE`
	}
	var doc string
	if err := sqlx.GetContext(ctx, c.q, &doc, query, collection, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s %s", store.ErrNotFound, collection, id)
		}
		return nil, err
	}
	return store.Document(doc), nil
}

func (c *conn) FindByField(ctx context.Context, collection string, field string, value any) ([]store.Document, error) {
	want, err := jsonValue(value)
	if err != nil {
		return nil, err
	}
	var rows []string
	err = sqlx.SelectContext(ctx, c.q, &rows, `
		SELECT doc::text
		FROM documents
		WHERE collection = $1 AND doc -> $2::text = $3::jsonb
		ORDER BY seq
	`, collection, field, want)
	if err != nil {
		return nil, err
	}
	return toDocuments(rows), nil
}

func (c *conn) Add(ctx context.Context, collection string, doc store.Document) (store.Document, error) {
	now := c.now()
	prepared, id, err := store.Prepare(doc, now, func() string { return xid.New(domain.IDPrefix(collection)) })
	if err != nil {
		return nil, err
	}
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO documents (collection, id, doc, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, $5)
	`, collection, id, string(prepared), store.CreatedAt(prepared), now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: duplicate record %s in %s", store.ErrValidation, id, collection)
		}
		return nil, err
	}
	return prepared, nil
}

func (c *conn) Update(ctx context.Context, collection string, id string, patch store.Document) (store.Document, error) {
	current, err := c.GetByID(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	now := c.now()
	merged, err := store.Merge(current, patch, now)
	if err != nil {
		return nil, err
	}
	_, err = c.q.ExecContext(ctx, `
		UPDATE documents
		SET doc = $3::jsonb, updated_at = $4
		WHERE collection = $1 AND id = $2
	`, collection, id, string(merged), now)
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func (c *conn) Remove(ctx context.Context, collection string, id string) (bool, error) {
	res, err := c.q.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func toDocuments(rows []string) []store.Document {
	out := make([]store.Document, 0, len(rows))
	for _, row := range rows {
		out = append(out, store.Document(row))
	}
	return out
}

func jsonValue(value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
