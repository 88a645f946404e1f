package app

import (
	"context"
	"sync/atomic"

	"github.com/florianilch/llmbridge/internal/proxy"
)

// Pinger reports whether a dependency answers.
type Pinger interface {
	Ready(ctx context.Context) error
}

// Health combines the application's lifecycle state with a dependency check.
// All methods are thread-safe.
type Health struct {
	ready  atomic.Bool
	pinger Pinger
}

var _ proxy.ReadinessChecker = (*Health)(nil)

// NewHealth creates a Health initialized as not ready. A nil pinger is
// treated as always available.
func NewHealth(pinger Pinger) *Health {
	return &Health{pinger: pinger}
}

// SetReady updates the lifecycle readiness state.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports ready once SetReady(true) was called and the dependency answers.
func (h *Health) IsReady(ctx context.Context) bool {
	if !h.ready.Load() {
		return false
	}
	if h.pinger == nil {
		return true
	}
	return h.pinger.Ready(ctx) == nil
}
