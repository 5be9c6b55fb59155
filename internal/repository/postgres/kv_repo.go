package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/inspire-tradequest/trade-quest/internal/domain"
)

// KVRepo stores key-value records in the kv_records table.
type KVRepo struct {
	db *sqlx.DB
}

func NewKVRepo(db *sqlx.DB) *KVRepo {
	return &KVRepo{db: db}
}

func (r *KVRepo) Get(ctx context.Context, namespace, key string) (string, error) {
	var value string
	err := r.db.GetContext(ctx, &value,
		`SELECT value FROM kv_records WHERE namespace = $1 AND key = $2`, namespace, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("get %s/%s: %w", namespace, key, err)
	}
	return value, nil
}

func (r *KVRepo) SetMany(ctx context.Context, namespace string, values map[string]string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for key, value := range values {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv_records (namespace, key, value)
			VALUES ($1, $2, $3)
			ON CONFLICT (namespace, key) DO UPDATE SET
				value      = EXCLUDED.value,
				updated_at = NOW()`,
			namespace, key, value)
		if err != nil {
			return fmt.Errorf("upsert %s/%s: %w", namespace, key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *KVRepo) Create(ctx context.Context, namespace, key, value string) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO kv_records (namespace, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (namespace, key) DO NOTHING`,
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
