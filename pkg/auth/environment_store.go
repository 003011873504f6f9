package auth

import "os"

// APIKeyEnv is the variable the environment store reads
const APIKeyEnv = "TONSCRAPER_API_KEY"

// EnvironmentStore is a read-only CredentialStore over TONSCRAPER_API_KEY.
// It answers for every profile.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(cred *Credential) error {
	return ErrStoreUnavailable
}

// Retrieve returns the key from the environment
func (e *EnvironmentStore) Retrieve(profile string) (*Credential, error) {
	key := os.Getenv(APIKeyEnv)
	if key == "" {
		return nil, ErrCredentialsNotFound
	}
	if profile == "" {
		profile = DefaultProfile
	}

	return &Credential{Profile: profile, APIKey: key}, nil
}

// List returns a single credential if the variable is set
func (e *EnvironmentStore) List() ([]*Credential, error) {
	cred, err := e.Retrieve("")
	if err != nil {
		return []*Credential{}, nil
	}
	return []*Credential{cred}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(profile string) error {
	return ErrStoreUnavailable
}

// Exists checks if the variable is set
func (e *EnvironmentStore) Exists(profile string) bool {
	return os.Getenv(APIKeyEnv) != ""
}
