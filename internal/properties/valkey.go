package properties

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/valkey-io/valkey-go"
)

// ValkeyConfig holds configuration for the Valkey backend.
type ValkeyConfig struct {
	// URL is the Valkey server address (e.g., "valkey.namespace.svc:6379")
	URL string

	// Password is the optional password for Valkey authentication
	Password string

	// TLSEnabled enables TLS for Valkey connections
	TLSEnabled bool

	// TLSCAFile is the path to a custom CA certificate file for TLS verification.
	TLSCAFile string

	// KeyPrefix is the prefix for all Valkey keys (default: "busymirror:")
	KeyPrefix string

	// DB is the Valkey database number (default: 0)
	DB int
}

// Valkey is a Store backed by a Valkey server.
type Valkey struct {
	client valkey.Client
	prefix string
}

// OpenValkey connects to the configured server.
func OpenValkey(ctx context.Context, cfg ValkeyConfig, scope string) (*Valkey, error) {
	if cfg.URL == "" {
		return nil, errors.New("valkey URL is required for the valkey property store")
	}

	opt := valkey.ClientOption{
		InitAddress: []string{cfg.URL},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	}
	if cfg.TLSEnabled {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.TLSCAFile != "" {
			pem, err := os.ReadFile(cfg.TLSCAFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read valkey CA file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("no certificates found in %s", cfg.TLSCAFile)
			}
			tlsConfig.RootCAs = pool
		}
		opt.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping valkey: %w", err)
	}

	return newValkey(client, cfg.KeyPrefix, scope), nil
}

func newValkey(client valkey.Client, keyPrefix, scope string) *Valkey {
	if keyPrefix == "" {
		keyPrefix = "busymirror:"
	}
	prefix := keyPrefix
	if scope != "" {
		prefix += scope + ":"
	}
	return &Valkey{client: client, prefix: prefix}
}

func (v *Valkey) key(key string) string {
	return v.prefix + key
}

// Get returns the value stored under key.
func (v *Valkey) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	value, err := v.client.Do(ctx, v.client.B().Get().Key(v.key(key)).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read property %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key.
func (v *Valkey) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := v.client.Do(ctx, v.client.B().Set().Key(v.key(key)).Value(value).Build()).Error(); err != nil {
		return fmt.Errorf("failed to write property %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (v *Valkey) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := v.client.Do(ctx, v.client.B().Del().Key(v.key(key)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete property %q: %w", key, err)
	}
	return nil
}

// Close releases the connection pool.
func (v *Valkey) Close() error {
	v.client.Close()
	return nil
}
