// Package postgres provides a PostgreSQL store.Store on a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/florianilch/llmbridge/internal/store"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New opens a pool, verifies connectivity and, when cfg.MigrateOnStart is
// set, applies pending migrations.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}
	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

const credentialColumns = `id, name, provider, secret_encrypted, base_url, custom_models,
	active, validated, validation_error, created_at, updated_at`

func (s *Store) CreateCredential(ctx context.Context, c *store.Credential) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	models := c.CustomModels
	if models == nil {
		models = []string{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO credentials (`+credentialColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.Name, c.Provider, c.SecretEncrypted, c.BaseURL, models,
		c.Active, c.Validated, c.ValidationError, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return mapError("inserting credential", err)
	}
	return nil
}

func (s *Store) GetCredential(ctx context.Context, id string) (*store.Credential, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id = $1`, id)
	c, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}
	return c, nil
}

func (s *Store) ListCredentials(ctx context.Context) ([]store.Credential, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+credentialColumns+` FROM credentials ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	defer rows.Close()

	var out []store.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning credential: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateCredentialValidation(ctx context.Context, id string, validated bool, validationError string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE credentials SET validated = $2, validation_error = $3, updated_at = $4
		WHERE id = $1`,
		id, validated, validationError, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("updating credential validation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const modelConfigColumns = `id, credential_id, model_name, target_format, enabled, proxy_key, rate_limit, created_at`

func (s *Store) CreateModelConfig(ctx context.Context, m *store.ModelConfig) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO model_configs (`+modelConfigColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.CredentialID, m.ModelName, string(m.TargetFormat), m.Enabled, m.ProxyKey, m.RateLimit, m.CreatedAt,
	)
	if err != nil {
		return mapError("inserting model config", err)
	}
	return nil
}

func (s *Store) GetModelConfigByProxyKey(ctx context.Context, proxyKey string) (*store.ModelConfig, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+modelConfigColumns+` FROM model_configs WHERE proxy_key = $1`, proxyKey)
	m, err := scanModelConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying model config: %w", err)
	}
	return m, nil
}

func (s *Store) ListModelConfigs(ctx context.Context) ([]store.ModelConfig, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+modelConfigColumns+` FROM model_configs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing model configs: %w", err)
	}
	defer rows.Close()

	var out []store.ModelConfig
	for rows.Next() {
		m, err := scanModelConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning model config: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *Store) RecordRequest(ctx context.Context, r *store.RequestLog) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO request_logs (
			id, model_config_id, method, path, source_format, target_format,
			status, latency_ms, prompt_tokens, completion_tokens, error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, r.ModelConfigID, r.Method, r.Path, string(r.SourceFormat), r.TargetFormat,
		r.Status, r.LatencyMS, r.PromptTokens, r.CompletionTokens, r.Error, r.CreatedAt,
	)
	if err != nil {
		return mapError("inserting request log", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanCredential(row pgx.Row) (*store.Credential, error) {
	var c store.Credential
	err := row.Scan(
		&c.ID, &c.Name, &c.Provider, &c.SecretEncrypted, &c.BaseURL, &c.CustomModels,
		&c.Active, &c.Validated, &c.ValidationError, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(c.CustomModels) == 0 {
		c.CustomModels = nil
	}
	return &c, nil
}

func scanModelConfig(row pgx.Row) (*store.ModelConfig, error) {
	var m store.ModelConfig
	var format string
	err := row.Scan(&m.ID, &m.CredentialID, &m.ModelName, &format, &m.Enabled, &m.ProxyKey, &m.RateLimit, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.TargetFormat = store.Format(format)
	return &m, nil
}

// mapError translates constraint violations into store sentinels.
func mapError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return store.ErrConflict
		case codeForeignKeyViolation:
			return store.ErrNotFound
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
