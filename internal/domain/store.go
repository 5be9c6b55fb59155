package domain

import "context"

// KVStore is the host key-value storage the persistence adapter writes to.
// Keys are grouped by namespace; one namespace per user ledger.
type KVStore interface {
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, namespace, key string) (string, error)
	// SetMany writes all values or none.
	SetMany(ctx context.Context, namespace string, values map[string]string) error
	// Create writes value only if key is absent, else ErrAlreadyExists.
	Create(ctx context.Context, namespace, key, value string) error
}
