package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"fileflow/pkg/config"
	"fileflow/pkg/logger"
)

// Registry holds the set of configured storage backends. The router
// takes an Enabled() snapshot per routing call rather than caching the
// set indefinitely.
type Registry struct {
	mutex    sync.RWMutex
	backends map[string]Backend
	enabled  map[string]bool
	logger   *logger.Logger
}

// NewRegistry returns an empty backend registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		backends: make(map[string]Backend),
		enabled:  make(map[string]bool),
		logger:   log.WithField("component", "storage-registry"),
	}
}

// NewRegistryFromConfig builds backends for every configured entry.
// Local entries get a disk backend; object-store kinds get the
// in-process stand-in (their wire protocols are supplied externally).
func NewRegistryFromConfig(cfg config.StorageConfig, log *logger.Logger) (*Registry, error) {
	registry := NewRegistry(log)

	for _, entry := range cfg.Backends {
		var backend Backend
		switch entry.Kind {
		case KindLocal:
			local, err := NewLocalBackend(entry.Name, entry.RootDir, log)
			if err != nil {
				return nil, fmt.Errorf("failed to build backend %s: %w", entry.Name, err)
			}
			backend = local
		case KindS3, KindOSS, KindMemory:
			backend = NewMemoryBackend(entry.Name, entry.Kind)
		default:
			return nil, fmt.Errorf("unknown backend kind %q for %s", entry.Kind, entry.Name)
		}
		registry.Register(backend, entry.Enabled)
	}

	return registry, nil
}

// Register adds a backend under its name.
func (r *Registry) Register(backend Backend, enabled bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.backends[backend.Name()] = backend
	r.enabled[backend.Name()] = enabled
	r.logger.Debug("backend registered", "backend", backend.Name(), "kind", backend.Kind(), "enabled", enabled)
}

// SetEnabled toggles a backend without removing it.
func (r *Registry) SetEnabled(name string, enabled bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, exists := r.backends[name]; exists {
		r.enabled[name] = enabled
	}
}

// Get returns the backend registered under name.
func (r *Registry) Get(name string) (Backend, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	backend, exists := r.backends[name]
	return backend, exists
}

// Enabled returns a snapshot of the currently enabled backends. If none
// are enabled it synthesizes a single local-disk fallback so routing
// always has somewhere to land.
func (r *Registry) Enabled() []Backend {
	r.mutex.RLock()
	var snapshot []Backend
	for name, backend := range r.backends {
		if r.enabled[name] {
			snapshot = append(snapshot, backend)
		}
	}
	r.mutex.RUnlock()

	if len(snapshot) > 0 {
		return snapshot
	}

	r.logger.Warn("no backends enabled, synthesizing local fallback")
	fallbackDir := filepath.Join(os.TempDir(), "fileflow-fallback")
	local, err := NewLocalBackend("LOCAL", fallbackDir, r.logger)
	if err != nil {
		r.logger.Error("failed to synthesize local fallback backend", "error", err)
		return nil
	}
	r.Register(local, true)
	return []Backend{local}
}

// Names returns the names of all registered backends.
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	return names
}
