package config

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// keyringService is the OS keyring service API keys are stored under.
const keyringService = "cmdai"

func keyringUser(providerID string) string {
	return providerID + "_api_key"
}

// ValidCredentialProvider reports whether providerID takes an API key.
func ValidCredentialProvider(providerID string) bool {
	_, ok := apiKeyEnv[providerID]
	return ok
}

// GetStoredKey returns the API key stored in the OS keyring for providerID,
// or "" when none is stored.
func GetStoredKey(providerID string) (string, error) {
	secret, err := keyring.Get(keyringService, keyringUser(providerID))
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("error retrieving %s key from keyring: %w", providerID, err)
	}
	return secret, nil
}

// SetStoredKey stores an API key for providerID in the OS keyring.
func SetStoredKey(providerID, key string) error {
	if !ValidCredentialProvider(providerID) {
		return fmt.Errorf("unknown provider: %s", providerID)
	}
	if !isSet(key) {
		return fmt.Errorf("API key cannot be empty")
	}
	if err := keyring.Set(keyringService, keyringUser(providerID), key); err != nil {
		return fmt.Errorf("error setting %s key in keyring: %w", providerID, err)
	}
	return nil
}

// DeleteStoredKey removes the keyring entry for providerID. Deleting a
// missing entry is not an error.
func DeleteStoredKey(providerID string) error {
	if !ValidCredentialProvider(providerID) {
		return fmt.Errorf("unknown provider: %s", providerID)
	}
	err := keyring.Delete(keyringService, keyringUser(providerID))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("error deleting %s key from keyring: %w", providerID, err)
	}
	return nil
}
