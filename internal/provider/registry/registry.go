// Package registry holds the set of configured provider adapters and
// implements weighted round-robin selection, cheapest-plan lookup, and
// plan comparison across all registered vendors.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wopr-systems/beacon-orchestrator/internal/provider"
)

// Counter persists the round-robin cursor so selection survives a
// process restart. Backed by the generic key-value state table (§6.7).
type Counter interface {
	Get(ctx context.Context, key string) (int64, error)
	Increment(ctx context.Context, key string) (int64, error)
}

const counterKey = "provider_rr_cursor"

// entry is a registered provider plus its selection weight.
type entry struct {
	provider provider.Provider
	weight   int
}

// Registry owns every configured provider adapter, keyed by name, and
// builds a weighted virtual pool for round-robin selection.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]entry
	counter  Counter
	localCtr int64 // fallback cursor when no Counter is configured
}

// New creates an empty Registry. Adapters register themselves via
// Register, mirroring the teacher's explicit-registration idiom rather
// than relying on package-init side effects.
func New(counter Counter) *Registry {
	return &Registry{
		entries: make(map[string]entry),
		counter: counter,
	}
}

// Register adds a provider adapter to the registry with a selection
// weight. A weight of 0 disables round-robin selection for that provider
// while still allowing it to be addressed directly by name.
func (r *Registry) Register(p provider.Provider, weight int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[p.Name()] = entry{provider: p, weight: weight}
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (provider.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.provider, true
}

// All returns every registered provider, sorted by name for deterministic
// iteration order.
func (r *Registry) All() []provider.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]provider.Provider, 0, len(names))
	for _, n := range names {
		out = append(out, r.entries[n].provider)
	}
	return out
}

// pool builds the virtual weighted pool: each provider name repeated
// `weight` times, in stable (sorted-name) order, exactly the construction
// spec.md §4.2 describes.
func (r *Registry) pool() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)

	var p []string
	for _, n := range names {
		e := r.entries[n]
		for i := 0; i < e.weight; i++ {
			p = append(p, n)
		}
	}
	return p
}

// Select returns the next provider from the weighted round-robin pool:
// pool[counter mod len(pool)], advancing and persisting the counter.
func (r *Registry) Select(ctx context.Context) (provider.Provider, error) {
	pool := r.pool()
	if len(pool) == 0 {
		return nil, fmt.Errorf("registry: no providers registered with nonzero weight")
	}

	idx, err := r.nextIndex(ctx, len(pool))
	if err != nil {
		return nil, err
	}

	name := pool[idx]
	p, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("registry: selected provider %q no longer registered", name)
	}
	return p, nil
}

func (r *Registry) nextIndex(ctx context.Context, poolLen int) (int, error) {
	if r.counter != nil {
		n, err := r.counter.Increment(ctx, counterKey)
		if err != nil {
			return 0, fmt.Errorf("registry: advance counter: %w", err)
		}
		return int(n) % poolLen, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	idx := int(r.localCtr) % poolLen
	r.localCtr++
	return idx, nil
}

// PlanOption pairs a plan with the provider that offers it, for
// cross-vendor comparison.
type PlanOption struct {
	Provider string
	Plan     provider.Plan
}

// ComparePlans lists every plan from every registered provider that meets
// the requested tier, sorted by monthly price ascending.
func (r *Registry) ComparePlans(ctx context.Context, tier provider.ResourceTier) ([]PlanOption, error) {
	var out []PlanOption
	for _, p := range r.All() {
		plans, err := p.ListPlans(ctx)
		if err != nil {
			if provider.IsNotImplemented(err) {
				continue
			}
			return nil, fmt.Errorf("registry: list plans for %s: %w", p.Name(), err)
		}
		for _, plan := range plans {
			if plan.MeetsTier(tier) {
				out = append(out, PlanOption{Provider: p.Name(), Plan: plan})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Plan.MonthlyPriceUSD < out[j].Plan.MonthlyPriceUSD
	})
	return out, nil
}

// GetCheapestOption returns the lowest-priced plan meeting tier, optionally
// restricted to one of preferredRegions when that slice is non-empty.
func (r *Registry) GetCheapestOption(ctx context.Context, tier provider.ResourceTier, preferredRegions []string) (*PlanOption, error) {
	options, err := r.ComparePlans(ctx, tier)
	if err != nil {
		return nil, err
	}
	if len(preferredRegions) == 0 {
		if len(options) == 0 {
			return nil, fmt.Errorf("registry: no plan meets tier %s", tier)
		}
		return &options[0], nil
	}

	for _, opt := range options {
		for _, region := range preferredRegions {
			if opt.Plan.AvailableIn(region) {
				o := opt
				return &o, nil
			}
		}
	}
	return nil, fmt.Errorf("registry: no plan meets tier %s in regions %v", tier, preferredRegions)
}

// SuggestDistribution returns count provider/plan picks that maximize
// provider diversity: the unique providers meeting tier, sorted by their
// cheapest qualifying plan's price, round-robined count times. Grounded on
// original_source/control_plane/providers/registry.py's suggest_distribution,
// which builds the same unique-by-provider, price-sorted list and then
// indexes it with i % provider_count for i in range(count).
func (r *Registry) SuggestDistribution(ctx context.Context, count int, tier provider.ResourceTier) ([]PlanOption, error) {
	if count <= 0 {
		return nil, nil
	}

	options, err := r.ComparePlans(ctx, tier)
	if err != nil {
		return nil, err
	}
	if len(options) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool, len(options))
	var uniqueByProvider []PlanOption
	for _, opt := range options {
		if seen[opt.Provider] {
			continue
		}
		seen[opt.Provider] = true
		uniqueByProvider = append(uniqueByProvider, opt)
	}

	providerCount := len(uniqueByProvider)
	out := make([]PlanOption, count)
	for i := 0; i < count; i++ {
		out[i] = uniqueByProvider[i%providerCount]
	}
	return out, nil
}
