// Package llm defines the provider-neutral completion interface the
// resolution engine calls, plus a registry for backend selection.
package llm

import (
	"context"
	"sync"
)

// Request is a single completion call.
type Request struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature *float64
	// ForceJSON asks backends with native structured output to constrain
	// the response to a JSON object. Backends without it ignore the flag;
	// the prompt carries the same instruction either way.
	ForceJSON bool
}

// Usage reports token consumption for cost accounting.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response carries the model text plus call metadata.
type Response struct {
	Text       string
	Model      string
	StopReason string
	Usage      Usage
}

// Provider is one LLM backend. Implementations wrap failures that are safe
// to retry (429, 5xx, network timeouts) in resilience.TransientError so the
// caller's retry policy can tell them from permanent failures.
type Provider interface {
	// Name returns the backend identifier used in config and audit trails.
	Name() string
	// Complete runs a single completion. The context carries the per-call
	// timeout.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Registry manages available completion backends.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
