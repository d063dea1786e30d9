package platform

import "fmt"

// Registry looks up an Adapter by platform code, letting the Sync Worker
// stay agnostic of which platforms are actually configured.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an Adapter under its own Code().
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Code()] = a
}

// Get returns the Adapter for platformCode, or an error if none is registered.
func (r *Registry) Get(platformCode string) (Adapter, error) {
	a, ok := r.adapters[platformCode]
	if !ok {
		return nil, fmt.Errorf("platform: no adapter registered for %q", platformCode)
	}
	return a, nil
}

// Codes returns every registered platform code.
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.adapters))
	for code := range r.adapters {
		codes = append(codes, code)
	}
	return codes
}
