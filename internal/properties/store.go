package properties

import (
	"context"
	"errors"
	"fmt"
)

// Backend types accepted by Open.
const (
	TypeMemory = "memory"
	TypeSQLite = "sqlite"
	TypeValkey = "valkey"
)

// ErrEmptyKey is returned when a property key is empty.
var ErrEmptyKey = errors.New("property key cannot be empty")

// Store is a scoped string key-value store.
//
// Get reports ok=false, with a nil error, when the key is absent.
// Delete of an absent key is not an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	// Type is the backend type: "memory", "sqlite" or "valkey" (default: "sqlite")
	Type string

	// Scope namespaces every key written through the store
	Scope string

	// Path is the SQLite database file (sqlite only)
	Path string

	// Valkey configuration (valkey only)
	Valkey ValkeyConfig
}

// Open creates the Store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case TypeMemory:
		return NewMemory(cfg.Scope), nil
	case TypeSQLite, "":
		return OpenSQLite(cfg.Path, cfg.Scope)
	case TypeValkey:
		return OpenValkey(ctx, cfg.Valkey, cfg.Scope)
	default:
		return nil, fmt.Errorf("unsupported property store type %q, must be one of: memory, sqlite, valkey", cfg.Type)
	}
}
