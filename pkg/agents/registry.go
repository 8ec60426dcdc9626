package agents

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownAgent is returned for names that are not registered.
var ErrUnknownAgent = errors.New("agents: unknown agent")

// DuplicateAgentError is returned when a name is registered twice.
type DuplicateAgentError struct {
	Name string
}

func (e *DuplicateAgentError) Error() string {
	return fmt.Sprintf("agents: agent %q already registered", e.Name)
}

// Factory returns the agent to run for one request. Agents built on a
// Controller keep no per-request state, so a factory may return the same
// instance every time.
type Factory func() Agent

// Static returns a Factory that always returns a.
func Static(a Agent) Factory {
	return func() Agent { return a }
}

// Entry describes a registered agent in the directory.
type Entry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Registry is a thread-safe directory of agent factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	entries   map[string]Entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		entries:   make(map[string]Entry),
	}
}

// Register adds a factory under name.
func (r *Registry) Register(name, description string, factory Factory) error {
	if name == "" {
		return errors.New("agents: agent name must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("agents: agent %q has no factory", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return &DuplicateAgentError{Name: name}
	}

	r.factories[name] = factory
	r.entries[name] = Entry{Name: name, Description: description}

	return nil
}

// Add registers a under its own name and description.
func (r *Registry) Add(a Agent) error {
	return r.Register(a.Name(), a.Description(), Static(a))
}

// Get returns the factory for the named agent and true, or nil and false if
// not found.
func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[name]
	return f, ok
}

// Spawn returns an agent from the named factory.
func (r *Registry) Spawn(name string) (Agent, error) {
	f, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}
	return f(), nil
}

// List returns all registry entries sorted by name.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})

	return entries
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}
