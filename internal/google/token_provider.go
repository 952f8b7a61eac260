package google

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// TokenProvider supplies OAuth token sources for Google APIs.
type TokenProvider interface {
	// TokenSourceForAccount returns a token source for the specified account
	TokenSourceForAccount(ctx context.Context, account string) (oauth2.TokenSource, error)

	// HasTokenForAccount checks if a token exists for the specified account
	HasTokenForAccount(account string) bool
}

// FileTokenProvider provides tokens from files in TokenDir.
type FileTokenProvider struct{}

// NewFileTokenProvider creates a new file-based token provider
func NewFileTokenProvider() *FileTokenProvider {
	return &FileTokenProvider{}
}

// TokenSourceForAccount loads the token file for account and returns a
// refreshing source. The current token is fetched once so that a revoked
// refresh token fails here rather than in the middle of a cycle.
func (p *FileTokenProvider) TokenSourceForAccount(ctx context.Context, account string) (oauth2.TokenSource, error) {
	ts, err := GetTokenSourceForAccount(ctx, account)
	if err != nil {
		return nil, err
	}

	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("failed to get token from file: %w", err)
	}

	return ts, nil
}

// HasTokenForAccount checks if a token file exists for the specified account
func (p *FileTokenProvider) HasTokenForAccount(account string) bool {
	return HasTokenForAccount(account)
}

// StaticTokenProvider serves a fixed token source, e.g. from an access token
// injected by the environment.
type StaticTokenProvider struct {
	Source oauth2.TokenSource
}

// TokenSourceForAccount returns the static source regardless of account.
func (p StaticTokenProvider) TokenSourceForAccount(context.Context, string) (oauth2.TokenSource, error) {
	if p.Source == nil {
		return nil, fmt.Errorf("static token provider has no token source")
	}
	return p.Source, nil
}

// HasTokenForAccount reports whether a source is configured.
func (p StaticTokenProvider) HasTokenForAccount(string) bool {
	return p.Source != nil
}
