// Package app wires configuration, storage, secrets, the provider registry
// and the HTTP proxy into one runnable application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/llmbridge/internal/bridge"
	"github.com/florianilch/llmbridge/internal/provider"
	"github.com/florianilch/llmbridge/internal/provider/factory"
	"github.com/florianilch/llmbridge/internal/proxy"
	"github.com/florianilch/llmbridge/internal/secret"
	"github.com/florianilch/llmbridge/internal/store"
	"github.com/florianilch/llmbridge/internal/store/memory"
	"github.com/florianilch/llmbridge/internal/store/postgres"
)

// App orchestrates the lifecycle of the proxy server and related services.
type App struct {
	cfg    *Config
	store  store.Store
	bridge *bridge.Service
	health *Health
}

// New opens the store, loads the encryption key and builds the bridge. It
// does not listen; call Start for that. Close releases the store.
func New(ctx context.Context, cfg *Config) (*App, error) {
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	keys, err := cfg.Secrets.NewKeyStore()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	box, err := secret.LoadOrCreate(ctx, keys)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("loading encryption key: %w", err)
	}

	registry := factory.New(provider.WithTimeout(cfg.Upstream.Timeout))
	svc := bridge.New(st, box, registry)

	if cfg.Store.SeedFile != "" {
		if err := applySeedFile(ctx, st, box, cfg.Store.SeedFile); err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	return &App{
		cfg:    cfg,
		store:  st,
		bridge: svc,
		health: NewHealth(svc),
	}, nil
}

func openStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	switch cfg.Type {
	case StoreTypeMemory:
		slog.WarnContext(ctx, "using in-memory store; credentials and proxy keys are lost on exit")
		return memory.New(), nil
	case StoreTypePostgres:
		st, err := postgres.New(ctx, postgres.Config{DSN: cfg.DSN, MigrateOnStart: true})
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported store type %q", cfg.Type)
	}
}

func applySeedFile(ctx context.Context, st store.Store, sealer store.Sealer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening seed file: %w", err)
	}
	defer func() { _ = f.Close() }()

	seed, err := store.ParseSeed(f)
	if err != nil {
		return fmt.Errorf("seed file %s: %w", path, err)
	}
	if err := store.ApplySeed(ctx, st, sealer, seed); err != nil {
		return fmt.Errorf("applying seed file %s: %w", path, err)
	}
	slog.InfoContext(ctx, "applied seed file", "path", path, "credentials", len(seed.Credentials))
	return nil
}

// Bridge returns the orchestrator for operator commands.
func (a *App) Bridge() *bridge.Service {
	return a.bridge
}

// Close releases the store.
func (a *App) Close() error {
	return a.store.Close()
}

// Start serves the proxy and blocks until ctx is cancelled or the server
// fails, then shuts down within the configured timeout. The store stays open;
// callers Close it afterwards.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	var shutdownFuncs []func(context.Context) error

	proxyServer, err := proxy.New(a.bridge, a.health, proxy.WithMaxRequestBytes(a.cfg.Server.MaxRequestBytes))
	if err != nil {
		return fmt.Errorf("failed to create proxy: %w", err)
	}

	slog.InfoContext(gCtx, "starting proxy server")
	proxyErrCh, err := proxyServer.Start(gCtx, a.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, proxyServer.Shutdown)
	a.health.SetReady(true)

	// errgroup cancels gCtx on the first runtime error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	runtimeErr := g.Wait()
	a.health.SetReady(false)

	slog.InfoContext(gCtx, "shutting down services")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}
