// Package strategy defines the Strategy interface for weight-producing
// allocation rules, a Registry for managing them and the Backtester that
// drives a portfolio account with their weights.
package strategy

import (
	"context"
	"sort"
	"sync"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/panel"
)

// Strategy is the interface that all allocation strategies must implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Init performs any one-time setup required before a run starts.
	Init(ctx context.Context) error

	// Weights returns the target weights over assets given the market
	// data visible at view.AsOf(). Missing assets count as zero weight.
	Weights(ctx context.Context, view panel.View, assets []string) (map[string]float64, error)
}

// Registry holds a named collection of strategies for lookup and
// enumeration. It is safe for concurrent use; the gRPC service reads it
// from many handlers.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy keyed by its Name(), replacing any strategy
// registered under the same name.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get looks a strategy up by name.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
