// Package models builds eino chat models from the provider configuration.
package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/orbit/internal/config"
)

// ProviderEntry holds a lazily-initialized model instance.
type ProviderEntry struct {
	Config config.ProviderConfig
	model  model.ToolCallingChatModel
	once   sync.Once
	err    error
}

// Registry manages named model providers with lazy initialization.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]*ProviderEntry
	defaultName string
	create      func(context.Context, config.ProviderConfig) (model.ToolCallingChatModel, error)
}

// NewRegistry creates a model registry from config.
func NewRegistry(cfg config.ModelsConfig) *Registry {
	r := &Registry{
		providers:   make(map[string]*ProviderEntry),
		defaultName: cfg.Default,
		create:      CreateModel,
	}
	for name, provCfg := range cfg.Providers {
		r.providers[name] = &ProviderEntry{Config: provCfg}
	}
	return r
}

// Register adds a ready-made model under name, replacing any provider with
// that name.
func (r *Registry) Register(name string, m model.ToolCallingChatModel) {
	entry := &ProviderEntry{model: m}
	entry.once.Do(func() {})
	r.mu.Lock()
	r.providers[name] = entry
	r.mu.Unlock()
}

// Get returns the named model, initializing it lazily. A failed
// initialization caused by missing credentials is retried on the next call,
// so keys added later through `orbit keys set` and a reload take effect.
func (r *Registry) Get(ctx context.Context, name string) (model.ToolCallingChatModel, error) {
	if name == "" {
		name = r.defaultName
	}
	r.mu.RLock()
	entry, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("model provider %q not found", name)
	}

	entry.once.Do(func() {
		entry.model, entry.err = r.create(ctx, entry.Config)
	})
	if entry.err != nil && errors.Is(entry.err, ErrMissingCredentials) {
		err := entry.err
		r.mu.Lock()
		if r.providers[name] == entry {
			r.providers[name] = &ProviderEntry{Config: entry.Config}
		}
		r.mu.Unlock()
		return nil, err
	}
	return entry.model, entry.err
}

// Default returns the default model.
func (r *Registry) Default(ctx context.Context) (model.ToolCallingChatModel, error) {
	if r.defaultName == "" {
		return nil, fmt.Errorf("no default model configured")
	}
	return r.Get(ctx, r.defaultName)
}

// DefaultName returns the name of the default provider.
func (r *Registry) DefaultName() string {
	return r.defaultName
}

// Names lists the configured providers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Driver returns the driver of a configured provider, or "" if unknown.
func (r *Registry) Driver(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.providers[name]; ok {
		return normalizeDriver(entry.Config.Driver)
	}
	return ""
}
