// Package sqlite stores key-value records in a single local database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/inspire-tradequest/trade-quest/internal/domain"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS kv_records (
	namespace  TEXT     NOT NULL,
	key        TEXT     NOT NULL,
	value      TEXT     NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (namespace, key)
);
`

type KVRepo struct {
	db *sql.DB
}

func Open(path string) (*KVRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	// One writer at a time; sqlite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration: %w", err)
	}
	return &KVRepo{db: db}, nil
}

func (r *KVRepo) Close() error {
	return r.db.Close()
}

func (r *KVRepo) Get(ctx context.Context, namespace, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM kv_records WHERE namespace = ? AND key = ?`, namespace, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("get %s/%s: %w", namespace, key, err)
	}
	return value, nil
}

func (r *KVRepo) SetMany(ctx context.Context, namespace string, values map[string]string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for key, value := range values {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv_records (namespace, key, value, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(namespace, key) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at`,
			namespace, key, value)
		if err != nil {
			return fmt.Errorf("upsert %s/%s: %w", namespace, key, err)
		}
	}
	return tx.Commit()
}

func (r *KVRepo) Create(ctx context.Context, namespace, key, value string) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO kv_records (namespace, key, value) VALUES (?, ?, ?)`,
		namespace, key, value)
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", namespace, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

var _ domain.KVStore = (*KVRepo)(nil)
