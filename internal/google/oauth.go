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
	"runtime"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// DefaultAccount is used when no account name is given.
	DefaultAccount = "default"

	appName = "inboxtriage"

	// TokenDirEnv overrides the directory token files are kept in.
	TokenDirEnv = "INBOXTRIAGE_TOKEN_DIR"

	// loopbackRedirect is the redirect for installed apps. The user copies
	// the code parameter from the browser's address bar.
	loopbackRedirect = "http://localhost"
)

// ErrNoToken is returned when no token file exists for an account.
var ErrNoToken = errors.New("no Google OAuth token found")

var accountNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func validateAccountName(account string) error {
	if account == "" {
		return errors.New("account name cannot be empty")
	}
	if !accountNamePattern.MatchString(account) {
		return fmt.Errorf("invalid account name %q: only letters, digits, hyphens and underscores are allowed", account)
	}
	return nil
}

func tokenDir() string {
	if dir := os.Getenv(TokenDirEnv); dir != "" {
		return dir
	}
	return filepath.Join(userCacheDir(), appName)
}

func getTokenFilePath(account string) string {
	return filepath.Join(tokenDir(), "google-"+account+".token")
}

// HasTokenForAccount reports whether a token file exists for account.
func HasTokenForAccount(account string) bool {
	if err := validateAccountName(account); err != nil {
		return false
	}
	_, err := os.Stat(getTokenFilePath(account))
	return err == nil
}

// HasToken reports whether a token exists for the default account.
func HasToken() bool {
	return HasTokenForAccount(DefaultAccount)
}

// OAuthConfig returns the OAuth2 configuration. Client credentials are read
// from GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET.
func OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		Endpoint:     google.Endpoint,
		RedirectURL:  loopbackRedirect,
		Scopes:       DefaultOAuthScopes,
	}
}

// GetAuthURL returns the URL the user visits to authorize account.
func GetAuthURL(account string) string {
	return OAuthConfig().AuthCodeURL(account, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// SaveTokenForAccount exchanges an authorization code and stores the
// resulting token for account.
func SaveTokenForAccount(ctx context.Context, account, authCode string) error {
	if err := validateAccountName(account); err != nil {
		return err
	}

	t, err := OAuthConfig().Exchange(ctx, authCode)
	if err != nil {
		return fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return WriteToken(account, t)
}

// WriteToken stores t as the token of account.
func WriteToken(account string, t *oauth2.Token) error {
	if err := validateAccountName(account); err != nil {
		return err
	}
	if err := os.MkdirAll(tokenDir(), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(getTokenFilePath(account), data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// ReadToken loads the stored token of account. It returns ErrNoToken if
// there is none.
func ReadToken(account string) (*oauth2.Token, error) {
	if err := validateAccountName(account); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(getTokenFilePath(account))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w for account %s", ErrNoToken, account)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var t oauth2.Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("invalid token file for account %s: %w", account, err)
	}
	if t.RefreshToken == "" && t.AccessToken == "" {
		return nil, fmt.Errorf("invalid token file for account %s: no tokens", account)
	}
	return &t, nil
}

// GetTokenSourceForAccount returns a refreshing token source for the stored
// token of account.
func GetTokenSourceForAccount(ctx context.Context, account string) (oauth2.TokenSource, error) {
	t, err := ReadToken(account)
	if err != nil {
		return nil, err
	}
	return OAuthConfig().TokenSource(ctx, t), nil
}

// GetHTTPClientForAccount returns an HTTP client authorized as account.
func GetHTTPClientForAccount(ctx context.Context, account string) (*http.Client, error) {
	return NewHTTPClient(ctx, NewFileTokenProvider(), account)
}

// NewHTTPClient returns an HTTP client using the token provider supplies
// for account. The client is forced to HTTP/1.1.
func NewHTTPClient(ctx context.Context, provider TokenProvider, account string) (*http.Client, error) {
	t, err := provider.GetTokenForAccount(ctx, account)
	if err != nil {
		return nil, err
	}

	base := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		ForceAttemptHTTP2: false,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: base})
	return oauth2.NewClient(ctx, OAuthConfig().TokenSource(ctx, t)), nil
}

// GetAuthenticationErrorMessage tells the user how to authorize account.
func GetAuthenticationErrorMessage(account string) string {
	return fmt.Sprintf(`Google account %q is not authorized.

Run:

  %s auth --account %s

and follow the instructions to store a token.`, account, appName, account)
}

func userCacheDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Caches")
	case "windows":
		for _, ev := range []string{"TEMP", "TMP"} {
			if v := os.Getenv(ev); v != "" {
				return v
			}
		}
		return os.TempDir()
	}
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return xdg
	}
	return filepath.Join(homeDir(), ".cache")
}

func homeDir() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
	}
	return os.Getenv("HOME")
}
