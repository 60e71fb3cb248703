package auth

import (
	"os"
	"time"

	"notecrawler/pkg/config"
)

// EnvironmentStore implements CredentialStore over the same variables
// config.LoadFromEnv reads. It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(identity *Identity) error {
	return ErrStoreUnavailable
}

// Retrieve builds an identity from the environment. Any name is accepted
// since the environment holds a single cookie set.
func (e *EnvironmentStore) Retrieve(name string) (*Identity, error) {
	a1 := os.Getenv(config.EnvPrefix + "A1")
	webSession := os.Getenv(config.EnvPrefix + "WEB_SESSION")

	if a1 == "" || webSession == "" {
		return nil, ErrCredentialsNotFound
	}

	if name == "" {
		name = DefaultIdentity
	}

	return &Identity{
		Name:         name,
		A1:           a1,
		WebSession:   webSession,
		WebID:        os.Getenv(config.EnvPrefix + "WEB_ID"),
		UserAgent:    os.Getenv(config.EnvPrefix + "USER_AGENT"),
		LastModified: time.Now(),
	}, nil
}

// List returns a single identity if the environment holds one
func (e *EnvironmentStore) List() ([]*Identity, error) {
	identity, err := e.Retrieve("")
	if err != nil {
		return []*Identity{}, nil
	}
	return []*Identity{identity}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment cookies are set
func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv(config.EnvPrefix+"A1") != "" && os.Getenv(config.EnvPrefix+"WEB_SESSION") != ""
}
