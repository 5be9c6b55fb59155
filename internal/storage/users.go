package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inspire-tradequest/trade-quest/internal/domain"
)

const usersNamespace = "users"

// UserRepo keeps accounts in the same key-value store as the ledgers, keyed
// by normalized email.
type UserRepo struct {
	kv domain.KVStore
}

func NewUserRepo(kv domain.KVStore) *UserRepo {
	return &UserRepo{kv: kv}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	u.ID = uuid.New()
	u.Email = normalizeEmail(u.Email)
	u.CreatedAt = time.Now().UTC()
	data, err := u.MarshalRecord()
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := r.kv.Create(ctx, usersNamespace, u.Email, string(data)); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	raw, err := r.kv.Get(ctx, usersNamespace, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return nil, err
	}
	var u domain.User
	if err := u.UnmarshalRecord([]byte(raw)); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}
