package posting

import (
	"fmt"
	"sort"
	"sync"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// DefaultStrategies is the registration table loaded at process start.
func DefaultStrategies() []Strategy {
	return []Strategy{
		NewDepositStrategy(),
		NewWithdrawalStrategy(),
	}
}

// Registry resolves posting types to their strategy.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry builds a registry from an explicit strategy table.
func NewRegistry(strategies ...Strategy) (*Registry, error) {
	r := &Registry{strategies: make(map[string]Strategy, len(strategies))}
	for _, s := range strategies {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a strategy. Registering a posting type twice is an error.
func (r *Registry) Register(s Strategy) error {
	if s == nil {
		return fmt.Errorf("posting: nil strategy")
	}
	key := normalizeType(s.PostingType())
	if key == "" {
		return fmt.Errorf("posting: strategy %T has empty posting type", s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[key]; exists {
		return fmt.Errorf("posting: strategy for %q already registered", key)
	}
	r.strategies[key] = s
	return nil
}

func (r *Registry) Has(postingType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.strategies[normalizeType(postingType)]
	return ok
}

// Get returns the strategy for postingType or a validation error.
func (r *Registry) Get(postingType string) (Strategy, error) {
	r.mu.RLock()
	s, ok := r.strategies[normalizeType(postingType)]
	r.mu.RUnlock()
	if !ok {
		return nil, shared.ErrUnknownPostingType.Wrap(fmt.Errorf("%q", postingType))
	}
	return s, nil
}

// Types lists registered posting types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.strategies))
	for key := range r.strategies {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
