// Package store persists provider credentials, proxy model configurations and
// the request log.
//
// Two implementations exist: memory for single-process and test use, and
// postgres for durable deployments. Both return ErrNotFound and ErrConflict
// so callers can branch on outcomes without knowing the backend.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a unique name or proxy key is already taken.
	ErrConflict = errors.New("record already exists")
)

// Format is the wire dialect a proxy key speaks to its callers.
type Format string

const (
	FormatOpenAI    Format = "openai"
	FormatAnthropic Format = "anthropic"
)

// Valid reports whether f is a known dialect.
func (f Format) Valid() bool {
	return f == FormatOpenAI || f == FormatAnthropic
}

// Credential is a stored vendor credential. SecretEncrypted is never plaintext.
type Credential struct {
	ID              string
	Name            string
	Provider        string
	SecretEncrypted string
	BaseURL         string
	CustomModels    []string
	Active          bool
	Validated       bool
	ValidationError string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Usable reports whether the credential may serve traffic.
func (c *Credential) Usable() bool {
	return c.Active && c.Validated
}

// ModelConfig binds a proxy key to one credential and one backend model.
// RateLimit is in requests per minute; zero disables limiting. TargetFormat
// records the dialect the key was issued for; both endpoints accept it.
type ModelConfig struct {
	ID           string
	CredentialID string
	ModelName    string
	TargetFormat Format
	Enabled      bool
	ProxyKey     string
	RateLimit    int
	CreatedAt    time.Time
}

// RequestLog is one proxied request.
type RequestLog struct {
	ID               string
	ModelConfigID    string
	Method           string
	Path             string
	SourceFormat     Format
	TargetFormat     string
	Status           int
	LatencyMS        int64
	PromptTokens     int
	CompletionTokens int
	Error            string
	CreatedAt        time.Time
}

// Store is the persistence contract. Create methods assign ID and timestamps
// when they are unset and write them back into the argument.
type Store interface {
	CreateCredential(ctx context.Context, c *Credential) error
	GetCredential(ctx context.Context, id string) (*Credential, error)
	ListCredentials(ctx context.Context) ([]Credential, error)
	UpdateCredentialValidation(ctx context.Context, id string, validated bool, validationError string) error

	CreateModelConfig(ctx context.Context, m *ModelConfig) error
	GetModelConfigByProxyKey(ctx context.Context, proxyKey string) (*ModelConfig, error)
	ListModelConfigs(ctx context.Context) ([]ModelConfig, error)

	RecordRequest(ctx context.Context, r *RequestLog) error

	Ping(ctx context.Context) error
	Close() error
}
