package auth

import (
	"fmt"
	"os"
	"time"
)

const (
	// CookiesEnv names a Netscape cookies.txt to use as the default session
	CookiesEnv   = "IGPULL_COOKIES"
	UserAgentEnv = "IGPULL_USER_AGENT"
)

// EnvironmentStore is a read-only CredentialStore backed by the cookie
// file named in $IGPULL_COOKIES
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve reads the cookie file. The account is named after username,
// or "default".
func (e *EnvironmentStore) Retrieve(username string) (*Account, error) {
	path := os.Getenv(CookiesEnv)
	if path == "" {
		return nil, ErrCredentialsNotFound
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", CookiesEnv, err)
	}

	if username == "" {
		username = "default"
	}

	modified := time.Now()
	if info, err := os.Stat(path); err == nil {
		modified = info.ModTime()
	}

	return &Account{
		Username:     username,
		Cookies:      string(data),
		UserAgent:    os.Getenv(UserAgentEnv),
		LastModified: modified,
	}, nil
}

// List returns a single account if the environment names a cookie file
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(username string) error {
	return ErrStoreUnavailable
}

// Exists checks if the environment names a cookie file
func (e *EnvironmentStore) Exists(username string) bool {
	return os.Getenv(CookiesEnv) != ""
}
