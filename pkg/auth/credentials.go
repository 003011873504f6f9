package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// DefaultProfile is used when no profile name is given
const DefaultProfile = "default"

// Credential is an upstream API key stored under a profile name
type Credential struct {
	Profile      string    `json:"profile"`
	APIKey       string    `json:"api_key"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves the credential under its profile
	Store(cred *Credential) error

	// Retrieve gets the credential of a profile
	Retrieve(profile string) (*Credential, error)

	// List returns all stored credentials
	List() ([]*Credential, error)

	// Delete removes the credential of a profile
	Delete(profile string) error

	// Exists checks if a credential exists for a profile
	Exists(profile string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager backed by the system keychain when available,
// an encrypted file in configDir, and the environment. An empty configDir uses ConfigDir().
func NewManager(configDir string) (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	if configDir == "" {
		dir, err := ConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		configDir = dir
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"), "")
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a Manager over the given stores, tried in order
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves the credential using the first store that accepts it
func (m *Manager) Store(cred *Credential) error {
	if cred == nil || cred.APIKey == "" {
		return errors.New("API key is required")
	}
	if cred.Profile == "" {
		cred.Profile = DefaultProfile
	}
	cred.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(cred)
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

// Retrieve gets the credential from the first store that has it
func (m *Manager) Retrieve(profile string) (*Credential, error) {
	if profile == "" {
		profile = DefaultProfile
	}
	for _, store := range m.stores {
		if cred, err := store.Retrieve(profile); err == nil && cred != nil {
			return cred, nil
		}
	}
	return nil, fmt.Errorf("%w for profile %s", ErrCredentialsNotFound, profile)
}

// APIKey returns the stored key of a profile, or an empty string when there is none
func (m *Manager) APIKey(profile string) string {
	cred, err := m.Retrieve(profile)
	if err != nil {
		return ""
	}
	return cred.APIKey
}

// List returns the credentials of all stores, the most recent per profile
func (m *Manager) List() ([]*Credential, error) {
	byProfile := make(map[string]*Credential)

	for _, store := range m.stores {
		creds, err := store.List()
		if err != nil {
			continue
		}
		for _, cred := range creds {
			if existing, ok := byProfile[cred.Profile]; !ok || cred.LastModified.After(existing.LastModified) {
				byProfile[cred.Profile] = cred
			}
		}
	}

	result := make([]*Credential, 0, len(byProfile))
	for _, cred := range byProfile {
		result = append(result, cred)
	}
	return result, nil
}

// Delete removes the credential of a profile from all stores
func (m *Manager) Delete(profile string) error {
	if profile == "" {
		profile = DefaultProfile
	}

	var deleted bool
	var lastErr error
	for _, store := range m.stores {
		if err := store.Delete(profile); err == nil {
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
	return fmt.Errorf("%w for profile %s", ErrCredentialsNotFound, profile)
}

// ConfigDir returns the per-user configuration directory, creating it if needed
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "tonscraper")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "tonscraper")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "tonscraper")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "tonscraper")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// Sanitize returns a copy of the credential with the key masked
func Sanitize(cred *Credential) *Credential {
	if cred == nil {
		return nil
	}
	return &Credential{
		Profile:      cred.Profile,
		APIKey:       MaskKey(cred.APIKey),
		LastModified: cred.LastModified,
	}
}

// MaskKey masks all but the first 4 and last 4 characters of a key
func MaskKey(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
