// Package registry implements the process-wide knowledge-source plugin
// table: an explicit struct guarded by one mutex, with sources registered
// by explicit calls during package initialization.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrFrozen is returned by mutating operations once Freeze has been called.
var ErrFrozen = errors.New("registry: frozen")

// ErrNameCollision is returned by Register when frozen and the name is
// already registered.
var ErrNameCollision = errors.New("registry: name already registered")

// ErrUnknownSource is returned by Unregister for a name with no
// registration.
var ErrUnknownSource = errors.New("registry: unknown source")

// Source is the minimal capability every knowledge source must expose to the
// orchestrator; see internal/sources for the full KnowledgeSource interface,
// which embeds this one.
type Source interface {
	Name() string
}

// Factory builds a Source instance from an opaque per-source options value.
// Any constructor error is fatal to CreateSources.
type Factory func(options any) (Source, error)

// Registration is one process-wide plugin table entry.
type Registration struct {
	Name             string
	PriorityOrder    int
	EnabledByDefault bool
	ConfigKey        string
	Description      string
	factory          Factory
}

// Registry is a priority-ordered, enable/disable-aware plugin table.
// Deterministic instantiation order is a hard contract: two runs with the
// same configuration and registrations produce the same source list.
type Registry struct {
	mu            sync.RWMutex
	registrations map[string]Registration
	frozen        bool
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{registrations: map[string]Registration{}}
}

// Register adds a plugin. priorityOrder defaults to 100 if zero.
// Rejects name collisions once the registry is frozen.
func (r *Registry) Register(name string, factory Factory, priorityOrder int, enabledByDefault bool, configKey, description string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		if _, exists := r.registrations[name]; exists {
			return fmt.Errorf("%w: %s", ErrNameCollision, name)
		}
		return fmt.Errorf("%w: cannot register %s", ErrFrozen, name)
	}
	if priorityOrder == 0 {
		priorityOrder = 100
	}
	r.registrations[name] = Registration{
		Name:             name,
		PriorityOrder:    priorityOrder,
		EnabledByDefault: enabledByDefault,
		ConfigKey:        configKey,
		Description:      description,
		factory:          factory,
	}
	return nil
}

// Unregister removes a plugin by name. Returns ErrFrozen if frozen and
// ErrUnknownSource if no plugin of that name is registered.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("%w: cannot unregister %s", ErrFrozen, name)
	}
	if _, ok := r.registrations[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	delete(r.registrations, name)
	return nil
}

// ListRegistered returns registration names sorted by PriorityOrder ascending,
// ties broken by name for determinism.
func (r *Registry) ListRegistered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return namesInOrder(r.registrations)
}

func namesInOrder(regs map[string]Registration) []string {
	sorted := make([]Registration, 0, len(regs))
	for _, reg := range regs {
		sorted = append(sorted, reg)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].PriorityOrder != sorted[j].PriorityOrder {
			return sorted[i].PriorityOrder < sorted[j].PriorityOrder
		}
		return sorted[i].Name < sorted[j].Name
	})
	names := make([]string, len(sorted))
	for i, reg := range sorted {
		names[i] = reg.Name
	}
	return names
}

// CreateSources instantiates every registration whose
// globalConfig["sources"][name]["enabled"] is true (defaulting to
// EnabledByDefault), passing perSourceConfig[name] to its factory, in
// priority order. Any factory error aborts with that error.
func (r *Registry) CreateSources(globalConfig map[string]any, perSourceConfig map[string]any) ([]Source, error) {
	r.mu.RLock()
	regs := make(map[string]Registration, len(r.registrations))
	for k, v := range r.registrations {
		regs[k] = v
	}
	r.mu.RUnlock()

	order := namesInOrder(regs)
	sourcesCfg, _ := globalConfig["sources"].(map[string]any)

	var out []Source
	for _, name := range order {
		reg := regs[name]
		enabled := reg.EnabledByDefault
		if sourcesCfg != nil {
			if entry, ok := sourcesCfg[name].(map[string]any); ok {
				if e, ok := entry["enabled"].(bool); ok {
					enabled = e
				}
			}
		}
		if !enabled {
			continue
		}
		src, err := reg.factory(perSourceConfig[name])
		if err != nil {
			return nil, fmt.Errorf("registry: constructing source %s: %w", name, err)
		}
		out = append(out, src)
	}
	return out, nil
}

// Freeze forbids further registration/unregistration until Reset.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Reset clears the frozen flag, permitting mutation again. It does not clear
// registrations.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = false
}

// IsFrozen reports the current frozen state.
func (r *Registry) IsFrozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}
