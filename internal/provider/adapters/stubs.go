package adapters

import (
	"context"
	"time"

	"github.com/wopr-systems/beacon-orchestrator/internal/provider"
)

// stubProvider is shared plumbing for vendors whose catalog we can quote
// (list_plans/list_regions) but whose lifecycle API integration has not
// shipped yet: every other operation returns a typed NotImplemented error
// rather than being silently absent from the interface.
type stubProvider struct {
	name   string
	plans  []provider.Plan
	regions []provider.Region
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Capabilities() provider.Capabilities {
	return provider.Capabilities{}
}

func (s *stubProvider) ListPlans(ctx context.Context) ([]provider.Plan, error) {
	return s.plans, nil
}

func (s *stubProvider) ListRegions(ctx context.Context) ([]provider.Region, error) {
	return s.regions, nil
}

func (s *stubProvider) Provision(ctx context.Context, cfg provider.ProvisionConfig) (*provider.Instance, error) {
	return nil, provider.NotImplemented(s.name, "Provision")
}

func (s *stubProvider) Destroy(ctx context.Context, instanceID string) error {
	return provider.NotImplemented(s.name, "Destroy")
}

func (s *stubProvider) GetInstance(ctx context.Context, instanceID string) (*provider.Instance, error) {
	return nil, provider.NotImplemented(s.name, "GetInstance")
}

func (s *stubProvider) ListInstances(ctx context.Context) ([]provider.Instance, error) {
	return nil, provider.NotImplemented(s.name, "ListInstances")
}

func (s *stubProvider) GetStatus(ctx context.Context, instanceID string) (provider.InstanceStatus, error) {
	return "", provider.NotImplemented(s.name, "GetStatus")
}

func (s *stubProvider) Start(ctx context.Context, instanceID string) error {
	return provider.NotImplemented(s.name, "Start")
}

func (s *stubProvider) Stop(ctx context.Context, instanceID string) error {
	return provider.NotImplemented(s.name, "Stop")
}

func (s *stubProvider) Reboot(ctx context.Context, instanceID string) error {
	return provider.NotImplemented(s.name, "Reboot")
}

func (s *stubProvider) ListSSHKeys(ctx context.Context) ([]provider.SSHKey, error) {
	return nil, provider.NotImplemented(s.name, "ListSSHKeys")
}

func (s *stubProvider) AddSSHKey(ctx context.Context, name, publicKey string) (*provider.SSHKey, error) {
	return nil, provider.NotImplemented(s.name, "AddSSHKey")
}

func (s *stubProvider) RemoveSSHKey(ctx context.Context, keyID string) error {
	return provider.NotImplemented(s.name, "RemoveSSHKey")
}

func (s *stubProvider) WaitForReady(ctx context.Context, instanceID string, timeout time.Duration) (*provider.Instance, error) {
	return nil, provider.NotImplemented(s.name, "WaitForReady")
}

// Vultr is awaiting full API integration; its plan catalog is quoted from
// published pricing so it still participates in compare_plans and
// suggest_distribution.
func NewVultr() provider.Provider {
	return &stubProvider{
		name: "vultr",
		plans: []provider.Plan{
			{ID: "vc2-1c-1gb", ProviderName: "vultr", Name: "Cloud Compute 1C/1GB", Tier: provider.TierLow, CPUCores: 1, RAMGB: 1, DiskGB: 25, MonthlyPriceUSD: 6},
			{ID: "vc2-2c-4gb", ProviderName: "vultr", Name: "Cloud Compute 2C/4GB", Tier: provider.TierMedium, CPUCores: 2, RAMGB: 4, DiskGB: 80, MonthlyPriceUSD: 24},
			{ID: "vc2-4c-8gb", ProviderName: "vultr", Name: "Cloud Compute 4C/8GB", Tier: provider.TierHigh, CPUCores: 4, RAMGB: 8, DiskGB: 160, MonthlyPriceUSD: 48},
		},
		regions: []provider.Region{{ID: "ewr", Name: "New Jersey"}, {ID: "ord", Name: "Chicago"}, {ID: "lax", Name: "Los Angeles"}},
	}
}

// Contabo is awaiting full API integration; known for the lowest
// price-per-GB in the pack, kept for compare_plans even without lifecycle
// support.
func NewContabo() provider.Provider {
	return &stubProvider{
		name: "contabo",
		plans: []provider.Plan{
			{ID: "vps-s", ProviderName: "contabo", Name: "VPS S", Tier: provider.TierMedium, CPUCores: 4, RAMGB: 8, DiskGB: 200, MonthlyPriceUSD: 7},
			{ID: "vps-m", ProviderName: "contabo", Name: "VPS M", Tier: provider.TierHigh, CPUCores: 6, RAMGB: 16, DiskGB: 400, MonthlyPriceUSD: 13},
		},
		regions: []provider.Region{{ID: "eu-central", Name: "Germany"}, {ID: "us-central", Name: "St. Louis"}},
	}
}

// BuyVM is awaiting full API integration.
func NewBuyVM() provider.Provider {
	return &stubProvider{
		name: "buyvm",
		plans: []provider.Plan{
			{ID: "slice-1g", ProviderName: "buyvm", Name: "1G KVM Slice", Tier: provider.TierLow, CPUCores: 1, RAMGB: 1, DiskGB: 20, MonthlyPriceUSD: 3},
			{ID: "slice-4g", ProviderName: "buyvm", Name: "4G KVM Slice", Tier: provider.TierMedium, CPUCores: 2, RAMGB: 4, DiskGB: 120, MonthlyPriceUSD: 12},
		},
		regions: []provider.Region{{ID: "nyc", Name: "New York"}, {ID: "lux", Name: "Luxembourg"}},
	}
}

// Hosting1984 is awaiting full API integration; a privacy-focused boutique
// vendor kept for compare_plans breadth.
func NewHosting1984() provider.Provider {
	return &stubProvider{
		name: "hosting1984",
		plans: []provider.Plan{
			{ID: "basic", ProviderName: "hosting1984", Name: "Basic VPS", Tier: provider.TierLow, CPUCores: 1, RAMGB: 2, DiskGB: 30, MonthlyPriceUSD: 9},
			{ID: "standard", ProviderName: "hosting1984", Name: "Standard VPS", Tier: provider.TierMedium, CPUCores: 2, RAMGB: 4, DiskGB: 60, MonthlyPriceUSD: 18},
		},
		regions: []provider.Region{{ID: "is-1", Name: "Reykjavik"}},
	}
}

// BYO represents a customer's own server, registered out-of-band: there is
// no catalog, no lifecycle to manage, and every remote operation is
// NotImplemented by design rather than by omission.
func NewBYO() provider.Provider {
	return &stubProvider{name: "byo"}
}
