// Package secret encrypts credential secrets at rest and manages the key that
// protects them.
//
// Secrets are sealed with age to the X25519 recipient of a single identity.
// Ciphertext is base64-encoded so it fits text columns and YAML files.
package secret

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// Box seals and opens secrets with one age identity. It is safe for concurrent use.
type Box struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// GenerateKey returns a new private key in AGE-SECRET-KEY-1... form.
func GenerateKey() (string, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generating age identity: %w", err)
	}
	return identity.String(), nil
}

// NewBox parses an AGE-SECRET-KEY-1... private key.
func NewBox(privateKey string) (*Box, error) {
	identity, err := age.ParseX25519Identity(strings.TrimSpace(privateKey))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return &Box{identity: identity, recipient: identity.Recipient()}, nil
}

// Recipient returns the public key secrets are sealed to.
func (b *Box) Recipient() string {
	return b.recipient.String()
}

// Seal encrypts plaintext and returns base64 ciphertext.
func (b *Box) Seal(plaintext string) (string, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, b.recipient)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Open decrypts base64 ciphertext produced by Seal.
func (b *Box) Open(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decoding base64 ciphertext: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), b.identity)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	return string(plaintext), nil
}
