// Package credentials resolves the retailer account password.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned when no store holds a secret for the account.
var ErrNotFound = errors.New("credential not found")

// Store returns the secret for an account.
type Store interface {
	Password(ctx context.Context, account string) (string, error)
}

// Keyring reads secrets from the OS keyring under a service namespace.
type Keyring struct {
	Service string
}

func (k Keyring) Password(_ context.Context, account string) (string, error) {
	secret, err := keyring.Get(k.Service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}

		return "", fmt.Errorf("failed to read keyring: %w", err)
	}

	return secret, nil
}

// Set stores secret for account in the keyring.
func (k Keyring) Set(account, secret string) error {
	if err := keyring.Set(k.Service, account, secret); err != nil {
		return fmt.Errorf("failed to write keyring: %w", err)
	}

	return nil
}

// Static serves a single configured secret.
type Static string

func (s Static) Password(context.Context, string) (string, error) {
	if s == "" {
		return "", ErrNotFound
	}

	return string(s), nil
}

// Chain asks each store in order and returns the first secret found.
type Chain []Store

func (c Chain) Password(ctx context.Context, account string) (string, error) {
	var errs []error

	for _, s := range c {
		secret, err := s.Password(ctx, account)
		if err == nil {
			return secret, nil
		}

		if !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return "", errors.Join(append([]error{ErrNotFound}, errs...)...)
	}

	return "", ErrNotFound
}
