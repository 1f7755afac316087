package orchestrator

import "github.com/wopr-systems/beacon-orchestrator/internal/provider"

// tierPlans maps (provider, storage tier) to that provider's plan id.
// Tier 1/2/3 correspond to Medium/High/VeryHigh (internal/provider's
// ResourceTier). Providers with no entry fall back to hetzner's table,
// matching the original orchestrator's _get_plan_for_tier default.
var tierPlans = map[string]map[int]string{
	"hetzner":      {1: "cx22", 2: "cx32", 3: "cx42"},
	"digitalocean": {1: "s-2vcpu-4gb", 2: "s-4vcpu-8gb", 3: "s-8vcpu-16gb"},
	"linode":       {1: "g6-standard-2", 2: "g6-standard-4", 3: "g6-standard-6"},
	"ovh":          {1: "B2-7", 2: "B2-15", 3: "B2-30"},
	"upcloud":      {1: "2xCPU-4GB", 2: "4xCPU-8GB", 3: "6xCPU-16GB"},
}

// PlanForTier resolves a provider+storage-tier pair to the plan id the
// provider adapter's ProvisionConfig should carry. Returns an error when
// no plan can be resolved, which PROVISIONING_VPS treats as fatal.
func PlanForTier(providerName string, tier int) (string, error) {
	plans, ok := tierPlans[providerName]
	if !ok {
		plans = tierPlans["hetzner"]
	}
	if id, ok := plans[tier]; ok {
		return id, nil
	}
	if id, ok := plans[1]; ok {
		return id, nil
	}
	return "", &UnknownTierError{Provider: providerName, Tier: tier}
}

// UnknownTierError reports a storage tier with no known plan mapping for
// any provider, including the hetzner fallback.
type UnknownTierError struct {
	Provider string
	Tier     int
}

func (e *UnknownTierError) Error() string {
	return "orchestrator: no plan mapping for provider " + e.Provider
}

// tierToResourceTier maps the job's numeric storage tier to the provider
// package's ResourceTier. It has no caller in this module;
// PROVISIONING_VPS uses the static tierPlans table.
func tierToResourceTier(tier int) provider.ResourceTier {
	switch tier {
	case 2:
		return provider.TierHigh
	case 3:
		return provider.TierVeryHigh
	default:
		return provider.TierMedium
	}
}
