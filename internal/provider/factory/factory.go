// Package factory selects and constructs provider adapters by provider id.
package factory

import (
	"slices"
	"strings"
	"sync"

	"github.com/florianilch/llmbridge/internal/provider"
	"github.com/florianilch/llmbridge/internal/provider/anthropic"
	"github.com/florianilch/llmbridge/internal/provider/azure"
	"github.com/florianilch/llmbridge/internal/provider/claudecode"
	"github.com/florianilch/llmbridge/internal/provider/ernie"
	"github.com/florianilch/llmbridge/internal/provider/gemini"
	"github.com/florianilch/llmbridge/internal/provider/openai"
	"github.com/florianilch/llmbridge/internal/provider/qwen"
)

// Constructor builds an adapter for a credential.
type Constructor func(cred provider.Credential, opts ...provider.Option) (provider.Adapter, error)

// Registry maps provider ids to adapter constructors. It is safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
	opts         []provider.Option
}

// New returns a registry preloaded with every built-in adapter. opts are
// passed to each constructor, ahead of per-call options.
func New(opts ...provider.Option) *Registry {
	r := &Registry{
		constructors: make(map[string]Constructor),
		opts:         opts,
	}
	r.Register(openai.ID, wrap(openai.New))
	r.Register(anthropic.ID, wrap(anthropic.New))
	r.Register(claudecode.ID, wrap(claudecode.New))
	r.Register(azure.ID, wrap(azure.New))
	r.Register(ernie.ID, wrap(ernie.New))
	r.Register(gemini.ID, wrap(gemini.New))
	r.Register(qwen.ID, wrap(qwen.New))
	return r
}

// wrap adapts a concrete constructor to Constructor.
func wrap[A provider.Adapter](fn func(provider.Credential, ...provider.Option) (A, error)) Constructor {
	return func(cred provider.Credential, opts ...provider.Option) (provider.Adapter, error) {
		a, err := fn(cred, opts...)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

// Register adds or replaces the constructor for id.
func (r *Registry) Register(id string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[id] = ctor
}

// SupportedProviders returns the registered provider ids in sorted order.
func (r *Registry) SupportedProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.constructors))
	for id := range r.constructors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Create constructs the adapter for cred.Provider. Anthropic credentials
// carrying the relay prefix are routed to the relay adapter before lookup.
func (r *Registry) Create(cred provider.Credential, opts ...provider.Option) (provider.Adapter, error) {
	id := ResolveProvider(cred.Provider, cred.Secret)

	r.mu.RLock()
	ctor, ok := r.constructors[id]
	r.mu.RUnlock()
	if !ok {
		return nil, &provider.UnsupportedProviderError{Provider: cred.Provider, Supported: r.SupportedProviders()}
	}

	cred.Provider = id
	return ctor(cred, append(slices.Clone(r.opts), opts...)...)
}

// ResolveProvider returns the provider id that will serve a credential.
func ResolveProvider(id, secret string) string {
	if id == anthropic.ID && strings.HasPrefix(secret, claudecode.SecretPrefix) {
		return claudecode.ID
	}
	return id
}
