package settings

import (
	"fmt"
	"log/slog"
	"sync"
)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used for registry warnings.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Registry is an in-memory container registry. It implements ContainerSource
// and enforces id uniqueness across all container types.
type Registry struct {
	mu         sync.RWMutex
	containers []Container
	byID       map[string]Container
	logger     *slog.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{byID: map[string]Container{}}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// AddContainer registers container, failing when its id is already taken.
func (r *Registry) AddContainer(container Container) error {
	if container == nil {
		return fmt.Errorf("settings: container must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := container.ID()
	if _, exists := r.byID[id]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateContainerID, id)
	}
	r.byID[id] = container
	r.containers = append(r.containers, container)
	return nil
}

// RemoveContainer drops the container with the given id, when present.
func (r *Registry) RemoveContainer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[id]; !exists {
		r.logger.Warn("no container to remove", "id", id)
		return
	}
	delete(r.byID, id)
	for i, container := range r.containers {
		if container.ID() == id {
			r.containers = append(r.containers[:i], r.containers[i+1:]...)
			break
		}
	}
}

// FindContainers returns every registered container matching the criteria,
// in registration order.
func (r *Registry) FindContainers(criteria map[string]string) []Container {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found []Container
	for _, container := range r.containers {
		if matchContainer(container, criteria) {
			found = append(found, container)
		}
	}
	return found
}

// FindDefinitionContainers implements ContainerSource.
func (r *Registry) FindDefinitionContainers(criteria map[string]string) []*DefinitionContainer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found []*DefinitionContainer
	for _, container := range r.containers {
		if c, ok := container.(*DefinitionContainer); ok && matchContainer(c, criteria) {
			found = append(found, c)
		}
	}
	return found
}

// FindInstanceContainers implements ContainerSource.
func (r *Registry) FindInstanceContainers(criteria map[string]string) []*InstanceContainer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found []*InstanceContainer
	for _, container := range r.containers {
		if c, ok := container.(*InstanceContainer); ok && matchContainer(c, criteria) {
			found = append(found, c)
		}
	}
	return found
}

// FindContainerStacks implements ContainerSource.
func (r *Registry) FindContainerStacks(criteria map[string]string) []*ContainerStack {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found []*ContainerStack
	for _, container := range r.containers {
		if c, ok := container.(*ContainerStack); ok && matchContainer(c, criteria) {
			found = append(found, c)
		}
	}
	return found
}

// matchContainer checks criteria against the container id ("id"), name
// ("name") and metadata entries. A missing metadata key disqualifies.
func matchContainer(container Container, criteria map[string]string) bool {
	for key, want := range criteria {
		switch key {
		case "id":
			if container.ID() != want {
				return false
			}
		case "name":
			if container.Name() != want {
				return false
			}
		default:
			got, ok := container.MetadataEntry(key)
			if !ok || got != want {
				return false
			}
		}
	}
	return true
}
