package channel

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds all registered channel adapters and resolves their optional
// capabilities. It must be created via NewRegistry and passed explicitly to
// components that need it.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Source]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: map[Source]Adapter{},
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter is nil")
	}
	src := Source(strings.TrimSpace(strings.ToLower(adapter.Source().String())))
	if src == "" {
		return fmt.Errorf("source is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[src]; exists {
		return fmt.Errorf("source already registered: %s", src)
	}
	r.adapters[src] = adapter
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(adapter Adapter) {
	if err := r.Register(adapter); err != nil {
		panic(err)
	}
}

// Get returns the adapter for the given source.
func (r *Registry) Get(source Source) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[source]
	return adapter, ok
}

// Sources returns all registered sources in stable order.
func (r *Registry) Sources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]Source, 0, len(r.adapters))
	for src := range r.adapters {
		items = append(items, src)
	}
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
	return items
}

// GetSender returns the Sender for the given source, or nil if unsupported.
func (r *Registry) GetSender(source Source) (Sender, bool) {
	adapter, ok := r.Get(source)
	if !ok {
		return nil, false
	}
	sender, ok := adapter.(Sender)
	return sender, ok
}

// GetReadMarker returns the ReadMarker for the given source, or nil if
// unsupported.
func (r *Registry) GetReadMarker(source Source) (ReadMarker, bool) {
	adapter, ok := r.Get(source)
	if !ok {
		return nil, false
	}
	marker, ok := adapter.(ReadMarker)
	return marker, ok
}
