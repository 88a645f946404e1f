package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/florianilch/llmbridge/internal/secret"
)

// EnvPrefix marks environment variables read into Config. A double
// underscore separates nesting levels: LLMBRIDGE_SERVER__ADDR sets server.addr.
const EnvPrefix = "LLMBRIDGE_"

// StoreType selects the persistence backend.
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypePostgres StoreType = "postgres"
)

// KeyStorageType selects where the encryption key lives.
type KeyStorageType string

const (
	KeyStorageTypeEnv     KeyStorageType = "env"
	KeyStorageTypeFile    KeyStorageType = "file"
	KeyStorageTypeKeyring KeyStorageType = "keyring"
)

const (
	keyringService = "llmbridge"
	keyringUser    = "encryption-key"
)

// Config is the complete application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Store    StoreConfig    `koanf:"store"`
	Secrets  SecretsConfig  `koanf:"secrets"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required,hostname_port"`
	MaxRequestBytes int64         `koanf:"max_request_bytes" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

type UpstreamConfig struct {
	// Timeout bounds each vendor call.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

type StoreConfig struct {
	Type StoreType `koanf:"type" validate:"oneof=memory postgres"`
	DSN  string    `koanf:"dsn" validate:"required_if=Type postgres"`
	// SeedFile is an optional YAML file of credentials and proxy keys applied at start.
	SeedFile string `koanf:"seed_file"`
}

type SecretsConfig struct {
	Storage KeyStorageType `koanf:"storage" validate:"oneof=env file keyring"`
	// Path of the key file. Empty means <user config dir>/llmbridge/key.txt.
	Path   string `koanf:"path"`
	EnvVar string `koanf:"env_var" validate:"required_if=Storage env"`
}

type LogConfig struct {
	Level    string `koanf:"level" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format   string `koanf:"format" validate:"oneof=text json"`
	Exporter string `koanf:"exporter" validate:"oneof=none stdout otlp-grpc otlp-http"`
	Endpoint string `koanf:"endpoint"`
	Insecure bool   `koanf:"insecure"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.addr":              "127.0.0.1:4000",
		"server.max_request_bytes": int64(10 << 20),
		"server.shutdown_timeout":  "5s",
		"upstream.timeout":         "60s",
		"store.type":               string(StoreTypeMemory),
		"secrets.storage":          string(KeyStorageTypeFile),
		"secrets.env_var":          EnvPrefix + "ENCRYPTION_KEY",
		"log.level":                "info",
		"log.format":               "text",
		"log.exporter":             "none",
	}
}

// LoadConfig layers defaults, the optional TOML file at path, EnvPrefix
// environment variables and overrides, in increasing precedence. Overrides
// use dotted keys ("log.level") and normally carry explicitly set CLI flags.
func LoadConfig(path string, overrides map[string]any, environ func() []string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		EnvironFunc:   environ,
		TransformFunc: transformEnv,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("loading overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// transformEnv maps LLMBRIDGE_STORE__SEED_FILE to store.seed_file. The
// encryption key variable is not configuration and is skipped.
func transformEnv(key, value string) (string, any) {
	key = strings.TrimPrefix(key, EnvPrefix)
	if key == "ENCRYPTION_KEY" {
		return "", nil
	}
	return strings.ReplaceAll(strings.ToLower(key), "__", "."), value
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// NewKeyStore returns the configured encryption key store.
func (c SecretsConfig) NewKeyStore() (secret.KeyStore, error) {
	switch c.Storage {
	case KeyStorageTypeEnv:
		return secret.EnvStore{Name: c.EnvVar}, nil
	case KeyStorageTypeKeyring:
		return secret.KeyringStore{Service: keyringService, User: keyringUser}, nil
	case KeyStorageTypeFile:
		path := c.Path
		if path == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return nil, fmt.Errorf("resolving key file location: %w", err)
			}
			path = filepath.Join(dir, "llmbridge", "key.txt")
		}
		return secret.FileStore{Path: path}, nil
	default:
		return nil, fmt.Errorf("unsupported key storage %q", c.Storage)
	}
}
