// Package memory provides an in-memory store.Store for tests and
// single-process deployments. Everything is lost when the process exits.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/florianilch/llmbridge/internal/store"
)

// Store is safe for concurrent use. Records are copied in and out so callers
// never share memory with the store.
type Store struct {
	mu          sync.RWMutex
	credentials map[string]store.Credential
	configs     map[string]store.ModelConfig
	byProxyKey  map[string]string
	requests    []store.RequestLog
	now         func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		credentials: make(map[string]store.Credential),
		configs:     make(map[string]store.ModelConfig),
		byProxyKey:  make(map[string]string),
		now:         time.Now,
	}
}

func (s *Store) CreateCredential(_ context.Context, c *store.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.credentials {
		if existing.Name == c.Name {
			return store.ErrConflict
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, ok := s.credentials[c.ID]; ok {
		return store.ErrConflict
	}
	now := s.now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	s.credentials[c.ID] = cloneCredential(*c)
	return nil
}

func (s *Store) GetCredential(_ context.Context, id string) (*store.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.credentials[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneCredential(c)
	return &out, nil
}

// ListCredentials returns credentials ordered by creation time, then name.
func (s *Store) ListCredentials(context.Context) ([]store.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Credential, 0, len(s.credentials))
	for _, c := range s.credentials {
		out = append(out, cloneCredential(c))
	}
	slices.SortFunc(out, func(a, b store.Credential) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) UpdateCredentialValidation(_ context.Context, id string, validated bool, validationError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credentials[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Validated = validated
	c.ValidationError = validationError
	c.UpdatedAt = s.now().UTC()
	s.credentials[id] = c
	return nil
}

func (s *Store) CreateModelConfig(_ context.Context, m *store.ModelConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.credentials[m.CredentialID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := s.byProxyKey[m.ProxyKey]; ok {
		return store.ErrConflict
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if _, ok := s.configs[m.ID]; ok {
		return store.ErrConflict
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}

	s.configs[m.ID] = *m
	s.byProxyKey[m.ProxyKey] = m.ID
	return nil
}

func (s *Store) GetModelConfigByProxyKey(_ context.Context, proxyKey string) (*store.ModelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byProxyKey[proxyKey]
	if !ok {
		return nil, store.ErrNotFound
	}
	m := s.configs[id]
	return &m, nil
}

// ListModelConfigs returns configs ordered by creation time, then id.
func (s *Store) ListModelConfigs(context.Context) ([]store.ModelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.ModelConfig, 0, len(s.configs))
	for _, m := range s.configs {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b store.ModelConfig) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) RecordRequest(_ context.Context, r *store.RequestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	s.requests = append(s.requests, *r)
	return nil
}

// Requests returns a copy of the request log in insertion order.
func (s *Store) Requests() []store.RequestLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.requests)
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func cloneCredential(c store.Credential) store.Credential {
	c.CustomModels = slices.Clone(c.CustomModels)
	return c
}
