package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"notecrawler/pkg/config"
)

// DefaultIdentity is the name used when none is given
const DefaultIdentity = "default"

// Identity is one logged-in browser session: the cookies the platform
// expects on signed requests
type Identity struct {
	Name         string    `json:"name"`
	A1           string    `json:"a1"`
	WebSession   string    `json:"web_session"`
	WebID        string    `json:"web_id,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Validate checks the cookies required for signing
func (i *Identity) Validate() error {
	var errs []error
	if i.Name == "" {
		errs = append(errs, errors.New("identity name is required"))
	}
	if i.A1 == "" {
		errs = append(errs, errors.New("a1 cookie is required"))
	}
	if i.WebSession == "" {
		errs = append(errs, errors.New("web_session cookie is required"))
	}
	return errors.Join(errs...)
}

// ApplyTo copies the identity into the platform configuration. Values
// already set in the configuration win.
func (i *Identity) ApplyTo(p *config.PlatformConfig) {
	if p.A1 == "" {
		p.A1 = i.A1
	}
	if p.WebSession == "" {
		p.WebSession = i.WebSession
	}
	if p.WebID == "" {
		p.WebID = i.WebID
	}
	if i.UserAgent != "" && p.UserAgent == config.DefaultConfig().Platform.UserAgent {
		p.UserAgent = i.UserAgent
	}
}

// CredentialStore is the interface for storing and retrieving identities
type CredentialStore interface {
	// Store saves an identity under its name
	Store(identity *Identity) error

	// Retrieve gets the identity with the given name
	Retrieve(name string) (*Identity, error)

	// List returns all stored identities
	List() ([]*Identity, error)

	// Delete removes the identity with the given name
	Delete(name string) error

	// Exists checks if an identity is stored under name
	Exists(name string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager backed by the system keychain
// when available, then an encrypted file, then environment variables
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	keyringStore, err := NewKeyringStore()
	if err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return NewManagerWithStores(stores...), nil
}

// NewManagerWithStores creates a manager over the given stores, tried in order
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves the identity in the first store that accepts it
func (m *Manager) Store(identity *Identity) error {
	if identity == nil {
		return ErrInvalidCredentials
	}
	if identity.Name == "" {
		identity.Name = DefaultIdentity
	}
	if err := identity.Validate(); err != nil {
		return err
	}

	identity.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(identity)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets the identity from the first store that has it
func (m *Manager) Retrieve(name string) (*Identity, error) {
	for _, store := range m.stores {
		if identity, err := store.Retrieve(name); err == nil && identity != nil {
			return identity, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, name)
}

// Resolve returns the named identity, or the default one when name is empty
func (m *Manager) Resolve(name string) (*Identity, error) {
	if name != "" {
		return m.Retrieve(name)
	}
	if identity, err := m.Retrieve(DefaultIdentity); err == nil {
		return identity, nil
	}

	identities, err := m.List()
	if err == nil && len(identities) > 0 {
		return identities[0], nil
	}
	return nil, ErrCredentialsNotFound
}

// List returns all stored identities sorted by name. When a name is held
// by several stores the most recently modified copy wins.
func (m *Manager) List() ([]*Identity, error) {
	byName := make(map[string]*Identity)

	for _, store := range m.stores {
		identities, err := store.List()
		if err != nil {
			continue
		}
		for _, identity := range identities {
			if existing, ok := byName[identity.Name]; !ok || identity.LastModified.After(existing.LastModified) {
				byName[identity.Name] = identity
			}
		}
	}

	result := make([]*Identity, 0, len(byName))
	for _, identity := range byName {
		result = append(result, identity)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Delete removes the identity from every store holding it
func (m *Manager) Delete(name string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(name); err == nil {
			deleted = true
		} else if !errors.Is(err, ErrCredentialsNotFound) && !errors.Is(err, ErrStoreUnavailable) {
			lastErr = err
		}
	}

	if deleted {
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	return fmt.Errorf("%w: %s", ErrCredentialsNotFound, name)
}

// ConfigDir returns the per-user configuration directory, creating it
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "notecrawler")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "notecrawler")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "notecrawler")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "notecrawler")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeIdentity returns a copy with the cookie values masked
func SanitizeIdentity(identity *Identity) *Identity {
	if identity == nil {
		return nil
	}

	return &Identity{
		Name:         identity.Name,
		A1:           maskString(identity.A1),
		WebSession:   maskString(identity.WebSession),
		WebID:        maskString(identity.WebID),
		UserAgent:    identity.UserAgent,
		LastModified: identity.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if s == "" {
		return ""
	}
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
