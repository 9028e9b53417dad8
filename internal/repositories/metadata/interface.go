package metadata

import (
	"context"
)

// Well-known keys of the account metadata table.
const (
	KeyConfigured = "configured"
	KeySecretKey  = "secret_key"
	KeyAddr       = "addr"
)

// Repository is a key/value store for account-level settings.
//
// Get returns (nil, nil) for a missing key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
