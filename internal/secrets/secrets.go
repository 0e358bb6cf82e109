// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"errors"

	"github.com/zalando/go-keyring"

	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
)

// DefaultService is the keyring service used when a reference or command
// does not name one.
const DefaultService = "chatrelay"

// Store provides secret storage operations.
type Store interface {
	// Store saves a secret value under the given service and key.
	Store(service, key, value string) error

	// Retrieve fetches the secret value for the given service and key.
	// Returns an error with CodeSecretNotFound if the key does not exist.
	Retrieve(service, key string) (string, error)

	// Delete removes the secret for the given service and key.
	// Returns an error with CodeSecretNotFound if the key does not exist.
	Delete(service, key string) error
}

// KeyringStore implements Store on the OS keyring via zalando/go-keyring:
// Keychain on macOS, secret-service on Linux, Credential Manager on Windows.
type KeyringStore struct{}

// NewKeyringStore returns a KeyringStore.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func (s *KeyringStore) Store(service, key, value string) error {
	if err := checkRef("store", service, key); err != nil {
		return err
	}
	if value == "" {
		return relayerr.New(relayerr.CodeSecretInvalidInput, "secret store: value must not be empty")
	}

	if err := keyring.Set(service, key, value); err != nil {
		return relayerr.Wrapf(err, relayerr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}
	return nil
}

func (s *KeyringStore) Retrieve(service, key string) (string, error) {
	if err := checkRef("retrieve", service, key); err != nil {
		return "", err
	}

	val, err := keyring.Get(service, key)
	if err != nil {
		return "", keyringError(err, "retrieving", service, key)
	}
	return val, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	if err := checkRef("delete", service, key); err != nil {
		return err
	}

	if err := keyring.Delete(service, key); err != nil {
		return keyringError(err, "deleting", service, key)
	}
	return nil
}

func checkRef(op, service, key string) error {
	if service == "" {
		return relayerr.Errorf(relayerr.CodeSecretInvalidInput, "secret %s: service must not be empty", op)
	}
	if key == "" {
		return relayerr.Errorf(relayerr.CodeSecretInvalidInput, "secret %s: key must not be empty", op)
	}
	return nil
}

func keyringError(err error, verb, service, key string) error {
	if errors.Is(err, keyring.ErrNotFound) {
		return relayerr.Errorf(relayerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	return relayerr.Wrapf(err, relayerr.CodeSecretStoreFailure, "%s secret %s/%s", verb, service, key)
}
