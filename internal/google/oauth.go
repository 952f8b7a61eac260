package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// DefaultAccount is used when no account is configured.
	DefaultAccount = "default"

	// Environment variables
	EnvCredentialsFile = "GOOGLE_CREDENTIALS_FILE"
	EnvClientID        = "GOOGLE_CLIENT_ID"
	EnvClientSecret    = "GOOGLE_CLIENT_SECRET"
	EnvTokenDir        = "BUSYMIRROR_TOKEN_DIR"
)

// ErrNoOAuthClient is returned when neither a credentials file nor a client id
// and secret are configured.
var ErrNoOAuthClient = errors.New("no Google OAuth client configured: set " +
	EnvCredentialsFile + " or " + EnvClientID + " and " + EnvClientSecret)

var accountNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validateAccountName ensures the account name can be used as part of a file name.
func validateAccountName(account string) error {
	if account == "" {
		return fmt.Errorf("account name cannot be empty")
	}
	if !accountNameRe.MatchString(account) {
		return fmt.Errorf("invalid account name %q: only letters, digits, '-' and '_' are allowed", account)
	}
	return nil
}

// TokenDir returns the directory holding per-account token files.
func TokenDir() string {
	if dir := os.Getenv(EnvTokenDir); dir != "" {
		return dir
	}
	base, err := os.UserConfigDir()
	if err != nil {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, "busymirror")
}

func getTokenFilePath(account string) string {
	return filepath.Join(TokenDir(), fmt.Sprintf("google-%s.token", account))
}

// HasTokenForAccount checks if a token file exists for the specified account.
func HasTokenForAccount(account string) bool {
	if err := validateAccountName(account); err != nil {
		return false
	}
	_, err := os.Stat(getTokenFilePath(account))
	return err == nil
}

// LoadTokenForAccount reads the stored token for account.
func LoadTokenForAccount(account string) (*oauth2.Token, error) {
	if err := validateAccountName(account); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(getTokenFilePath(account))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no Google OAuth token found for account %s", account)
		}
		return nil, fmt.Errorf("failed to read token for account %s: %w", account, err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("invalid token file for account %s: %w", account, err)
	}
	if tok.RefreshToken == "" && tok.AccessToken == "" {
		return nil, fmt.Errorf("token file for account %s holds no credentials", account)
	}
	return &tok, nil
}

// SaveTokenForAccount writes tok for account with owner-only permissions.
func SaveTokenForAccount(account string, tok *oauth2.Token) error {
	if err := validateAccountName(account); err != nil {
		return err
	}
	if tok == nil {
		return fmt.Errorf("token cannot be nil")
	}

	if err := os.MkdirAll(TokenDir(), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	path := getTokenFilePath(account)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

// GetOAuthConfig returns the OAuth2 client configuration for the calendar scopes.
func GetOAuthConfig() (*oauth2.Config, error) {
	if path := os.Getenv(EnvCredentialsFile); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		conf, err := google.ConfigFromJSON(data, DefaultOAuthScopes...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse credentials file: %w", err)
		}
		return conf, nil
	}

	clientID := os.Getenv(EnvClientID)
	clientSecret := os.Getenv(EnvClientSecret)
	if clientID == "" || clientSecret == "" {
		return nil, ErrNoOAuthClient
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       DefaultOAuthScopes,
	}, nil
}

// savingTokenSource persists tokens whenever the underlying source refreshes.
type savingTokenSource struct {
	account string
	src     oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := SaveTokenForAccount(s.account, tok); err != nil {
			return nil, err
		}
	}
	return tok, nil
}

// GetTokenSourceForAccount returns a refreshing token source for account whose
// refreshed tokens are written back to the token file.
func GetTokenSourceForAccount(ctx context.Context, account string) (oauth2.TokenSource, error) {
	tok, err := LoadTokenForAccount(account)
	if err != nil {
		return nil, err
	}
	conf, err := GetOAuthConfig()
	if err != nil {
		return nil, err
	}

	saving := &savingTokenSource{
		account: account,
		src:     conf.TokenSource(ctx, tok),
		last:    tok.AccessToken,
	}
	return oauth2.ReuseTokenSource(tok, saving), nil
}

// NewHTTPClient returns an authenticated client that forces HTTP/1.1.
func NewHTTPClient(ctx context.Context, ts oauth2.TokenSource) *http.Client {
	client := oauth2.NewClient(ctx, ts)
	if transport, ok := client.Transport.(*oauth2.Transport); ok {
		transport.Base = &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			ForceAttemptHTTP2: false,
		}
	}
	return client
}

// GetAuthenticationErrorMessage returns a user-facing hint for a missing token.
func GetAuthenticationErrorMessage(account string) string {
	return fmt.Sprintf("Google OAuth token for account %q not found or invalid. "+
		"Place a token file at %s and configure the OAuth client via %s or %s/%s.",
		account, getTokenFilePath(account), EnvCredentialsFile, EnvClientID, EnvClientSecret)
}
