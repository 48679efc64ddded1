package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresDocuments stores documents as JSONB rows in the documents table.
type PostgresDocuments struct {
	db *pgxpool.Pool
}

// NewPostgresDocuments constructs a PostgresDocuments.
func NewPostgresDocuments(db *pgxpool.Pool) *PostgresDocuments {
	return &PostgresDocuments{db: db}
}

func (p *PostgresDocuments) Get(ctx context.Context, collection, id string, dst any) error {
	return getDocument(ctx, p.db, collection, id, dst, false)
}

func (p *PostgresDocuments) Replace(ctx context.Context, collection, id string, doc any) error {
	return replaceDocument(ctx, p.db, collection, id, doc)
}

func (p *PostgresDocuments) Create(ctx context.Context, collection string, doc any) (string, error) {
	return createDocument(ctx, p.db, collection, doc)
}

func (p *PostgresDocuments) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	return listDocuments(ctx, p.db, collection)
}

// InTx runs fn in a single transaction. Every Get made through the documents
// handed to fn takes a row lock with SELECT … FOR UPDATE, so two concurrent
// read-modify-write cycles on the same document are serialised instead of
// the last writer silently winning.
func (p *PostgresDocuments) InTx(ctx context.Context, fn func(ctx context.Context, docs Documents) error) (err error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(ctx, &txDocuments{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txDocuments struct {
	tx pgx.Tx
}

func (t *txDocuments) Get(ctx context.Context, collection, id string, dst any) error {
	return getDocument(ctx, t.tx, collection, id, dst, true)
}

func (t *txDocuments) Replace(ctx context.Context, collection, id string, doc any) error {
	return replaceDocument(ctx, t.tx, collection, id, doc)
}

func (t *txDocuments) Create(ctx context.Context, collection string, doc any) (string, error) {
	return createDocument(ctx, t.tx, collection, doc)
}

func (t *txDocuments) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	return listDocuments(ctx, t.tx, collection)
}

func getDocument(ctx context.Context, q querier, collection, id string, dst any, lock bool) error {
	query := `SELECT body FROM documents WHERE collection = $1 AND id = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	var body []byte
	if err := q.QueryRow(ctx, query, collection, id).Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return nil
}

func replaceDocument(ctx context.Context, q querier, collection, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	_, err = q.Exec(ctx,
		`INSERT INTO documents (collection, id, body)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (collection, id) DO UPDATE
		 SET body = EXCLUDED.body, updated_at = now()`,
		collection, id, body,
	)
	if err != nil {
		return fmt.Errorf("replace %s/%s: %w", collection, id, err)
	}
	return nil
}

func createDocument(ctx context.Context, q querier, collection string, doc any) (string, error) {
	id := uuid.New().String()
	if setter, ok := doc.(IDSetter); ok {
		setter.SetID(id)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", collection, err)
	}
	if _, err := q.Exec(ctx,
		`INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3)`,
		collection, id, body,
	); err != nil {
		return "", fmt.Errorf("create %s: %w", collection, err)
	}
	return id, nil
}

func listDocuments(ctx context.Context, q querier, collection string) ([]json.RawMessage, error) {
	rows, err := q.Query(ctx,
		`SELECT body FROM documents WHERE collection = $1 ORDER BY created_at ASC`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	var bodies []json.RawMessage
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		bodies = append(bodies, body)
	}
	return bodies, rows.Err()
}
