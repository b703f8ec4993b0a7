package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/ledgerd/internal/domain"
)

// DBTX is the part of *pgxpool.Pool the pgx-native stores use. Transactions
// (pgx.Tx) satisfy it too.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DocumentStore implements domain.DocumentStore on the ledger_documents
// table. Every save is a single statement, so the version check and the
// write are atomic.
type DocumentStore struct {
	pool DBTX
}

// NewDocumentStore creates a DocumentStore backed by the given pool.
func NewDocumentStore(pool DBTX) *DocumentStore {
	return &DocumentStore{pool: pool}
}

// Load implements domain.DocumentStore.
func (s *DocumentStore) Load(ctx context.Context, key string) (domain.Document, error) {
	const query = `SELECT version, body, updated_at FROM ledger_documents WHERE key = $1`

	doc := domain.Document{Key: key}
	var body string
	err := s.pool.QueryRow(ctx, query, key).Scan(&doc.Version, &body, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Document{}, fmt.Errorf("postgres: load document %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("postgres: load document %s: %w", key, err)
	}
	doc.Body = []byte(body)
	return doc, nil
}

// Save implements domain.DocumentStore.
func (s *DocumentStore) Save(ctx context.Context, doc domain.Document) (domain.Document, error) {
	const insert = `INSERT INTO ledger_documents (key, version, body, updated_at)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (key) DO NOTHING`
	const update = `UPDATE ledger_documents
		SET version = version + 1, body = $3, updated_at = $4
		WHERE key = $1 AND version = $2`

	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}

	var (
		tag pgconn.CommandTag
		err error
	)
	if doc.Version == 0 {
		tag, err = s.pool.Exec(ctx, insert, doc.Key, string(doc.Body), doc.UpdatedAt)
	} else {
		tag, err = s.pool.Exec(ctx, update, doc.Key, doc.Version, string(doc.Body), doc.UpdatedAt)
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("postgres: save document %s: %w", doc.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Document{}, fmt.Errorf("postgres: save document %s at version %d: %w",
			doc.Key, doc.Version, domain.ErrVersionConflict)
	}

	doc.Version++
	return doc, nil
}
