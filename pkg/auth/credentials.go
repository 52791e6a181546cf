package auth

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"igpull/pkg/instagram"
	"igpull/pkg/storage"
)

// SessionCookie must be present for a cookie session to be stored
const SessionCookie = "sessionid"

// Account is a named, logged-in browser session exported as a Netscape
// cookies.txt
type Account struct {
	Username     string    `json:"username"`
	Cookies      string    `json:"cookies"`
	UserAgent    string    `json:"user_agent,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// HTTPCookies parses the stored cookie text
func (a *Account) HTTPCookies() ([]*http.Cookie, error) {
	return instagram.ParseCookies(strings.NewReader(a.Cookies))
}

// WriteCookiesFile writes the cookie text to <dir>/<username>.cookies.txt,
// readable by the owner only, and returns the path
func (a *Account) WriteCookiesFile(dir string) (string, error) {
	if a.Username == "" {
		return "", ErrInvalidCredentials
	}
	path := filepath.Join(dir, a.Username+".cookies.txt")
	if err := storage.EnsureDir(dir); err != nil {
		return "", err
	}
	if err := storage.WritePrivateAtomic(path, []byte(a.Cookies)); err != nil {
		return "", fmt.Errorf("failed to write cookies file: %w", err)
	}
	return path, nil
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves credentials for a given account
	Store(account *Account) error

	// Retrieve gets credentials for a specific username
	Retrieve(username string) (*Account, error)

	// List returns all stored accounts
	List() ([]*Account, error)

	// Delete removes credentials for a specific username
	Delete(username string) error

	// Exists checks if credentials exist for a username
	Exists(username string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager keeping its files in dir (the
// platform config directory when empty). The system keychain is tried
// first, then an encrypted file, then the environment.
func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		var err error
		if dir, err = ConfigDir(); err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
	}

	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a Manager over the given stores, in order
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Validate checks that the cookie text parses and carries a session
func Validate(account *Account) error {
	if account == nil || account.Username == "" {
		return errors.New("account name is required")
	}
	cookies, err := account.HTTPCookies()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if !instagram.HasCookie(cookies, SessionCookie) {
		return fmt.Errorf("%w: no %s cookie, export the cookies while logged in", ErrInvalidCredentials, SessionCookie)
	}
	return nil
}

// Store saves credentials using the first available store
func (m *Manager) Store(account *Account) error {
	if err := Validate(account); err != nil {
		return err
	}

	account.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(account)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(username string) (*Account, error) {
	for _, store := range m.stores {
		if account, err := store.Retrieve(username); err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, username)
}

// RetrieveDefault returns the environment session if one is configured,
// otherwise the most recently stored account
func (m *Manager) RetrieveDefault() (*Account, error) {
	for _, store := range m.stores {
		if envStore, ok := store.(*EnvironmentStore); ok {
			if account, err := envStore.Retrieve(""); err == nil {
				return account, nil
			}
		}
	}

	accounts, err := m.List()
	if err == nil && len(accounts) > 0 {
		return accounts[0], nil
	}

	return nil, ErrCredentialsNotFound
}

// List returns the accounts of every store, newest first. When an account
// is in several stores the most recently modified copy wins.
func (m *Manager) List() ([]*Account, error) {
	accountMap := make(map[string]*Account)

	for _, store := range m.stores {
		accounts, err := store.List()
		if err != nil {
			continue
		}
		for _, account := range accounts {
			if existing, ok := accountMap[account.Username]; !ok || account.LastModified.After(existing.LastModified) {
				accountMap[account.Username] = account
			}
		}
	}

	result := make([]*Account, 0, len(accountMap))
	for _, account := range accountMap {
		result = append(result, account)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].LastModified.Equal(result[j].LastModified) {
			return result[i].Username < result[j].Username
		}
		return result[i].LastModified.After(result[j].LastModified)
	})

	return result, nil
}

// Delete removes credentials from all stores
func (m *Manager) Delete(username string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(username); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if deleted {
		return nil
	}
	if lastErr != nil && !errors.Is(lastErr, ErrCredentialsNotFound) && !errors.Is(lastErr, ErrStoreUnavailable) {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	return fmt.Errorf("%w: %s", ErrCredentialsNotFound, username)
}

// ConfigDir returns the per-user igpull configuration directory, creating
// it when needed
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "igpull")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "igpull")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "igpull")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "igpull")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeAccount returns a copy of the account with every cookie value
// masked, for display
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}

	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(account.Cookies))
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Split(line, "\t")
		if len(fields) == 7 {
			fields[6] = maskString(fields[6])
			line = strings.Join(fields, "\t")
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	return &Account{
		Username:     account.Username,
		Cookies:      b.String(),
		UserAgent:    account.UserAgent,
		LastModified: account.LastModified,
	}
}

// CookieNames lists the names of the stored cookies
func CookieNames(account *Account) []string {
	cookies, err := account.HTTPCookies()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	return names
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
