package provider

import "time"

// ResourceTier names a coarse capacity class plans are grouped under.
// Storage tiers 1/2/3 (spec) map onto Medium/High/VeryHigh; Low is
// reserved for a future free/trial tier and is not user-selectable today.
type ResourceTier string

const (
	TierLow      ResourceTier = "low"
	TierMedium   ResourceTier = "medium"
	TierHigh     ResourceTier = "high"
	TierVeryHigh ResourceTier = "very_high"
)

// tierMinimums gives the minimum specs a plan must meet to qualify for a
// tier, used by Plan.MeetsTier.
var tierMinimums = map[ResourceTier]struct {
	CPU  int
	RAM  int
	Disk int
}{
	TierLow:      {CPU: 1, RAM: 1, Disk: 20},
	TierMedium:   {CPU: 2, RAM: 4, Disk: 40},
	TierHigh:     {CPU: 4, RAM: 8, Disk: 80},
	TierVeryHigh: {CPU: 8, RAM: 16, Disk: 160},
}

// InstanceStatus is the normalized lifecycle status every adapter maps its
// vendor-specific states onto.
type InstanceStatus string

const (
	StatusProvisioning InstanceStatus = "provisioning"
	StatusRunning      InstanceStatus = "running"
	StatusStopped      InstanceStatus = "stopped"
	StatusRebooting    InstanceStatus = "rebooting"
	StatusError        InstanceStatus = "error"
	StatusTerminated   InstanceStatus = "terminated"
	StatusUnknown      InstanceStatus = "unknown"
)

// Region is a datacenter location a provider can provision into.
type Region struct {
	ID      string
	Name    string
	Country string
}

// Capabilities describes optional features an adapter supports, so the
// orchestrator and registry can skip operations a vendor cannot perform
// instead of depending on a NotImplemented round-trip.
type Capabilities struct {
	SupportsIPv6       bool
	SupportsCloudInit  bool
	SupportsSSHKeys    bool
	SupportsSnapshots  bool
}

// Plan is a vendor SKU: a fixed CPU/RAM/disk/bandwidth bundle at a price.
type Plan struct {
	ID                string
	ProviderName      string
	Name              string
	Tier              ResourceTier
	CPUCores          int
	RAMGB             int
	DiskGB            int
	BandwidthTB       float64
	MonthlyPriceUSD   float64
	AvailableRegions  []string
}

// MeetsTier reports whether the plan satisfies the minimum specs for tier.
func (p Plan) MeetsTier(tier ResourceTier) bool {
	min, ok := tierMinimums[tier]
	if !ok {
		return false
	}
	return p.CPUCores >= min.CPU && p.RAMGB >= min.RAM && p.DiskGB >= min.Disk
}

// AvailableIn reports whether the plan can be provisioned into regionID.
// A plan with no recorded region list is assumed available everywhere.
func (p Plan) AvailableIn(regionID string) bool {
	if len(p.AvailableRegions) == 0 {
		return true
	}
	for _, r := range p.AvailableRegions {
		if r == regionID {
			return true
		}
	}
	return false
}

// Instance is a provisioned (or provisioning) VPS.
type Instance struct {
	ID           string
	ProviderName string
	PlanID       string
	RegionID     string
	Status       InstanceStatus
	PublicIPv4   string
	PublicIPv6   string
	Hostname     string
	CreatedAt    time.Time
}

// ProvisionConfig carries everything an adapter needs to create an
// Instance: plan/region selection, SSH key material, and cloud-init
// user-data.
type ProvisionConfig struct {
	PlanID      string
	RegionID    string
	Hostname    string
	SSHKeyIDs   []string
	UserData    string
	Tags        []string
}

// SSHKey is an SSH public key registered with a provider account.
type SSHKey struct {
	ID          string
	Name        string
	Fingerprint string
	PublicKey   string
}
