package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Reloader holds the live config. Reload swaps it atomically and notifies
// listeners; readers never block.
type Reloader struct {
	configPath string
	dotenvPath string
	current    atomic.Pointer[Config]
	mu         sync.Mutex // serializes reload
	listeners  []func(*Config)
}

// NewReloader creates a Reloader with the given initial config.
func NewReloader(configPath, dotenvPath string, initial *Config) *Reloader {
	r := &Reloader{
		configPath: configPath,
		dotenvPath: dotenvPath,
	}
	r.current.Store(initial)
	return r
}

// Current returns the current config.
func (r *Reloader) Current() *Config {
	return r.current.Load()
}

// OnReload registers a callback invoked after a successful reload.
func (r *Reloader) OnReload(fn func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Reload re-reads the .env file (override mode) and the config file, then
// notifies listeners. A missing config file reloads the defaults.
func (r *Reloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ReloadDotenv(r.dotenvPath); err != nil {
		return fmt.Errorf("reload dotenv: %w", err)
	}

	cfg, err := LoadOrDefault(r.configPath)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}

	r.current.Store(cfg)
	slog.Info("config reloaded", "path", r.configPath)

	for _, fn := range r.listeners {
		fn(cfg)
	}
	return nil
}

// Watch reloads on every value received from signals until ctx is done.
// Reload failures are logged and the previous config stays current.
func (r *Reloader) Watch(ctx context.Context, signals <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			slog.Debug("reload requested", "signal", sig)
			if err := r.Reload(); err != nil {
				slog.Warn("config reload failed", "error", err)
			}
		}
	}
}
