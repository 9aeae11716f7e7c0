package core

import (
	"context"
	"fmt"
	"time"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used for keyring entries
	keyringService = "octoface"

	// keyringTokenKey is the single entry holding the GitHub token
	keyringTokenKey = "github.com"

	// keyringTimeout bounds keyring operations; some desktop backends
	// block on an unlock prompt
	keyringTimeout = 5 * time.Second
)

// KeyringError represents an error during keyring operations.
type KeyringError struct {
	Operation string
	Err       error
}

func (e *KeyringError) Error() string {
	return fmt.Sprintf("keyring %s failed: %v", e.Operation, e.Err)
}

func (e *KeyringError) Unwrap() error {
	return e.Err
}

// StoreToken saves the GitHub token in the system keyring.
func StoreToken(token string) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- keyring.Set(keyringService, keyringTokenKey, token)
	}()

	return waitKeyring("set", errCh)
}

// GetStoredToken retrieves the GitHub token from the system keyring.
func GetStoredToken() (string, error) {
	type result struct {
		token string
		err   error
	}

	resultCh := make(chan result, 1)

	go func() {
		token, err := keyring.Get(keyringService, keyringTokenKey)
		resultCh <- result{token: token, err: err}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), keyringTimeout)
	defer cancel()

	select {
	case r := <-resultCh:
		if r.err != nil {
			return "", &KeyringError{Operation: "get", Err: r.err}
		}

		return r.token, nil
	case <-ctx.Done():
		return "", &KeyringError{Operation: "get", Err: ctx.Err()}
	}
}

// DeleteStoredToken removes the GitHub token from the system keyring.
// Deleting an absent entry is not an error.
func DeleteStoredToken() error {
	errCh := make(chan error, 1)

	go func() {
		err := keyring.Delete(keyringService, keyringTokenKey)
		if err == keyring.ErrNotFound {
			err = nil
		}

		errCh <- err
	}()

	return waitKeyring("delete", errCh)
}

func waitKeyring(operation string, errCh <-chan error) error {
	ctx, cancel := context.WithTimeout(context.Background(), keyringTimeout)
	defer cancel()

	select {
	case err := <-errCh:
		if err != nil {
			return &KeyringError{Operation: operation, Err: err}
		}

		return nil
	case <-ctx.Done():
		return &KeyringError{Operation: operation, Err: ctx.Err()}
	}
}
