package secret

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

// ErrReadOnly is returned when writing to a store that cannot persist keys.
var ErrReadOnly = errors.New("key store is read-only")

// KeyStore persists the private key that protects stored secrets.
// Read returns "" without error when no key has been stored yet.
type KeyStore interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, key string) error
}

// EnvStore reads the key from an environment variable.
type EnvStore struct {
	Name string
}

func (s EnvStore) Read(context.Context) (string, error) {
	return os.Getenv(s.Name), nil
}

func (s EnvStore) Write(context.Context, string) error {
	return ErrReadOnly
}

// FileStore keeps the key in a file readable only by the owner.
type FileStore struct {
	Path string
}

func (s FileStore) Read(context.Context) (string, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading key file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s FileStore) Write(_ context.Context, key string) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	if err := os.WriteFile(s.Path, []byte(key+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	return nil
}

// KeyringStore keeps the key in the OS keychain.
type KeyringStore struct {
	Service string
	User    string
}

func (s KeyringStore) Read(context.Context) (string, error) {
	key, err := keyring.Get(s.Service, s.User)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading keyring: %w", err)
	}
	return key, nil
}

func (s KeyringStore) Write(_ context.Context, key string) error {
	if err := keyring.Set(s.Service, s.User, key); err != nil {
		return fmt.Errorf("writing keyring: %w", err)
	}
	return nil
}

// LoadOrCreate opens a Box with the stored key. When none exists a new key is
// generated and written back; read-only stores keep it for this process only,
// so secrets sealed with it cannot be opened after a restart.
func LoadOrCreate(ctx context.Context, store KeyStore) (*Box, error) {
	key, err := store.Read(ctx)
	if err != nil {
		return nil, err
	}
	if key != "" {
		return NewBox(key)
	}

	key, err = GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := store.Write(ctx, key); err != nil {
		if !errors.Is(err, ErrReadOnly) {
			return nil, fmt.Errorf("persisting generated key: %w", err)
		}
		slog.WarnContext(ctx, "generated an ephemeral encryption key; stored secrets will not survive a restart")
	} else {
		slog.InfoContext(ctx, "generated encryption key")
	}
	return NewBox(key)
}
