// Package tools holds the manifest registry describing the external
// tools the engine may spawn.
package tools

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/calder-io/steward/internal/domain"
)

// ErrUnknownTool is returned by Resolve for unregistered names.
var ErrUnknownTool = errors.New("unknown tool")

// Registry stores tool manifests keyed by tool name.
type Registry struct {
	mu        sync.RWMutex
	manifests map[string]domain.ToolManifest
}

// NewRegistry creates an empty manifest registry.
func NewRegistry() *Registry {
	return &Registry{
		manifests: make(map[string]domain.ToolManifest),
	}
}

// Register adds a manifest. Entrypoints and tool dirs must stay inside
// the tools directory: relative paths only, no parent escapes.
func (r *Registry) Register(m domain.ToolManifest) error {
	if m.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if m.Runtime == "" {
		return fmt.Errorf("tool %s: runtime is required", m.Name)
	}
	if err := validatePath("entrypoint", m.Entrypoint, true); err != nil {
		return fmt.Errorf("tool %s: %w", m.Name, err)
	}
	if err := validatePath("dir", m.Dir, false); err != nil {
		return fmt.Errorf("tool %s: %w", m.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.manifests[m.Name]; exists {
		return fmt.Errorf("manifest already registered for %s", m.Name)
	}
	r.manifests[m.Name] = m
	return nil
}

// MustRegister adds a manifest or panics.
func (r *Registry) MustRegister(m domain.ToolManifest) {
	if err := r.Register(m); err != nil {
		panic(err)
	}
}

// Resolve returns the manifest for a tool name.
func (r *Registry) Resolve(name string) (domain.ToolManifest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.manifests[name]
	if !ok {
		return domain.ToolManifest{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if len(m.EnvAllowlist) > 0 {
		m.EnvAllowlist = append([]string(nil), m.EnvAllowlist...)
	}
	return m, nil
}

// List returns all manifests sorted by name.
func (r *Registry) List() []domain.ToolManifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ToolManifest, 0, len(r.manifests))
	for _, m := range r.manifests {
		if len(m.EnvAllowlist) > 0 {
			m.EnvAllowlist = append([]string(nil), m.EnvAllowlist...)
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func validatePath(field, p string, required bool) error {
	if p == "" {
		if required {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
	if filepath.IsAbs(p) {
		return fmt.Errorf("%s must be relative: %s", field, p)
	}
	clean := filepath.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s escapes the tools directory: %s", field, p)
	}
	return nil
}
