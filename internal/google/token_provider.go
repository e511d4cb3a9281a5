package google

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// TokenProvider supplies OAuth tokens for Google accounts.
type TokenProvider interface {
	// GetTokenForAccount retrieves an OAuth token for the specified account
	GetTokenForAccount(ctx context.Context, account string) (*oauth2.Token, error)

	// HasTokenForAccount checks if a token exists for the specified account
	HasTokenForAccount(account string) bool
}

// FileTokenProvider reads tokens stored by SaveTokenForAccount.
type FileTokenProvider struct{}

// NewFileTokenProvider creates a new file-based token provider
func NewFileTokenProvider() *FileTokenProvider {
	return &FileTokenProvider{}
}

// GetTokenForAccount retrieves a token from disk for the specified account
func (p *FileTokenProvider) GetTokenForAccount(ctx context.Context, account string) (*oauth2.Token, error) {
	t, err := ReadToken(account)
	if err != nil {
		return nil, fmt.Errorf("%w\n\n%s", err, GetAuthenticationErrorMessage(account))
	}
	return t, nil
}

// HasTokenForAccount checks if a token file exists for the specified account
func (p *FileTokenProvider) HasTokenForAccount(account string) bool {
	return HasTokenForAccount(account)
}

// StaticTokenProvider serves fixed tokens keyed by account.
type StaticTokenProvider map[string]*oauth2.Token

// GetTokenForAccount returns the token registered for account.
func (p StaticTokenProvider) GetTokenForAccount(_ context.Context, account string) (*oauth2.Token, error) {
	t, ok := p[account]
	if !ok {
		return nil, fmt.Errorf("%w for account %s", ErrNoToken, account)
	}
	return t, nil
}

// HasTokenForAccount reports whether a token is registered for account.
func (p StaticTokenProvider) HasTokenForAccount(account string) bool {
	_, ok := p[account]
	return ok
}
