package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wopr-systems/beacon-orchestrator/internal/provider"
)

// fakeProvider is a minimal Provider stand-in for exercising the registry
// without touching any real vendor API.
type fakeProvider struct {
	name  string
	plans []provider.Plan
}

func (f *fakeProvider) Name() string                        { return f.name }
func (f *fakeProvider) Capabilities() provider.Capabilities { return provider.Capabilities{} }
func (f *fakeProvider) ListPlans(ctx context.Context) ([]provider.Plan, error) {
	return f.plans, nil
}
func (f *fakeProvider) ListRegions(ctx context.Context) ([]provider.Region, error) { return nil, nil }
func (f *fakeProvider) Provision(ctx context.Context, cfg provider.ProvisionConfig) (*provider.Instance, error) {
	return nil, provider.NotImplemented(f.name, "Provision")
}
func (f *fakeProvider) Destroy(ctx context.Context, id string) error { return nil }
func (f *fakeProvider) GetInstance(ctx context.Context, id string) (*provider.Instance, error) {
	return nil, nil
}
func (f *fakeProvider) ListInstances(ctx context.Context) ([]provider.Instance, error) { return nil, nil }
func (f *fakeProvider) GetStatus(ctx context.Context, id string) (provider.InstanceStatus, error) {
	return "", nil
}
func (f *fakeProvider) Start(ctx context.Context, id string) error  { return nil }
func (f *fakeProvider) Stop(ctx context.Context, id string) error   { return nil }
func (f *fakeProvider) Reboot(ctx context.Context, id string) error { return nil }
func (f *fakeProvider) ListSSHKeys(ctx context.Context) ([]provider.SSHKey, error) {
	return nil, nil
}
func (f *fakeProvider) AddSSHKey(ctx context.Context, name, key string) (*provider.SSHKey, error) {
	return nil, nil
}
func (f *fakeProvider) RemoveSSHKey(ctx context.Context, id string) error { return nil }
func (f *fakeProvider) WaitForReady(ctx context.Context, id string, timeout time.Duration) (*provider.Instance, error) {
	return nil, nil
}

func TestSelect_WeightedRoundRobinRepeatsPoolOrder(t *testing.T) {
	r := New(nil)
	r.Register(&fakeProvider{name: "a"}, 2)
	r.Register(&fakeProvider{name: "b"}, 1)

	// pool = [a, a, b] repeated; selection cycles pool[counter % len(pool)]
	var seen []string
	for i := 0; i < 6; i++ {
		p, err := r.Select(context.Background())
		require.NoError(t, err)
		seen = append(seen, p.Name())
	}
	assert.Equal(t, []string{"a", "a", "b", "a", "a", "b"}, seen)
}

func TestSelect_NoProvidersReturnsError(t *testing.T) {
	r := New(nil)
	_, err := r.Select(context.Background())
	assert.Error(t, err)
}

func TestSelect_ZeroWeightProviderNeverSelected(t *testing.T) {
	r := New(nil)
	r.Register(&fakeProvider{name: "a"}, 1)
	r.Register(&fakeProvider{name: "dormant"}, 0)

	for i := 0; i < 4; i++ {
		p, err := r.Select(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "a", p.Name())
	}
}

func TestComparePlans_FiltersByTierAndSortsByPrice(t *testing.T) {
	r := New(nil)
	r.Register(&fakeProvider{name: "cheap", plans: []provider.Plan{
		{ID: "p1", ProviderName: "cheap", CPUCores: 2, RAMGB: 4, DiskGB: 40, MonthlyPriceUSD: 10},
	}}, 1)
	r.Register(&fakeProvider{name: "pricey", plans: []provider.Plan{
		{ID: "p2", ProviderName: "pricey", CPUCores: 2, RAMGB: 4, DiskGB: 40, MonthlyPriceUSD: 20},
	}}, 1)

	options, err := r.ComparePlans(context.Background(), provider.TierMedium)
	require.NoError(t, err)
	require.Len(t, options, 2)
	assert.Equal(t, "cheap", options[0].Provider)
	assert.Equal(t, "pricey", options[1].Provider)
}

func TestSuggestDistribution_RoundRobinsUniqueProvidersByPrice(t *testing.T) {
	r := New(nil)
	r.Register(&fakeProvider{name: "cheap", plans: []provider.Plan{
		{ID: "p1", ProviderName: "cheap", CPUCores: 2, RAMGB: 4, DiskGB: 40, MonthlyPriceUSD: 5},
	}}, 1)
	r.Register(&fakeProvider{name: "pricey", plans: []provider.Plan{
		{ID: "p2", ProviderName: "pricey", CPUCores: 2, RAMGB: 4, DiskGB: 40, MonthlyPriceUSD: 20},
	}}, 1)

	picks, err := r.SuggestDistribution(context.Background(), 5, provider.TierMedium)
	require.NoError(t, err)
	require.Len(t, picks, 5)
	want := []string{"cheap", "pricey", "cheap", "pricey", "cheap"}
	for i, p := range picks {
		assert.Equal(t, want[i], p.Provider)
	}
}

func TestSuggestDistribution_FiltersByTier(t *testing.T) {
	r := New(nil)
	r.Register(&fakeProvider{name: "small", plans: []provider.Plan{
		{ID: "p1", ProviderName: "small", CPUCores: 1, RAMGB: 1, DiskGB: 10, MonthlyPriceUSD: 3},
	}}, 1)

	picks, err := r.SuggestDistribution(context.Background(), 3, provider.TierMedium)
	require.NoError(t, err)
	assert.Empty(t, picks)
}

func TestGetCheapestOption_PrefersAvailableRegion(t *testing.T) {
	r := New(nil)
	r.Register(&fakeProvider{name: "a", plans: []provider.Plan{
		{ID: "p1", ProviderName: "a", CPUCores: 2, RAMGB: 4, DiskGB: 40, MonthlyPriceUSD: 5, AvailableRegions: []string{"eu"}},
	}}, 1)
	r.Register(&fakeProvider{name: "b", plans: []provider.Plan{
		{ID: "p2", ProviderName: "b", CPUCores: 2, RAMGB: 4, DiskGB: 40, MonthlyPriceUSD: 9, AvailableRegions: []string{"us"}},
	}}, 1)

	opt, err := r.GetCheapestOption(context.Background(), provider.TierMedium, []string{"us"})
	require.NoError(t, err)
	assert.Equal(t, "b", opt.Provider)
}
