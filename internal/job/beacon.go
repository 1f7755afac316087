package job

import "time"

// BeaconStatus is the operational status of a deployed beacon, independent
// of the provisioning job that created it.
type BeaconStatus string

const (
	BeaconStatusActive         BeaconStatus = "active"
	BeaconStatusSuspended      BeaconStatus = "suspended"
	BeaconStatusDecommissioned BeaconStatus = "decommissioned"
)

// Beacon is the persisted record of a fully provisioned tenant server.
type Beacon struct {
	ID                   string
	JobID                string
	CustomerID           string
	StripeSubscriptionID string
	Subdomain            string
	ProviderID           string
	InstanceID           string
	InstanceIP           string
	DNSRecordIDs         map[string]string
	StorageTier          int
	Bundle               string
	Status               BeaconStatus
	CreatedAt            time.Time
	UpdatedAt            time.Time
	SuspendedAt          *time.Time
}

// PaymentFailure is the dunning ledger row tracking consecutive payment
// failures for one subscription.
type PaymentFailure struct {
	SubscriptionID string
	FailureCount   int
	FirstFailedAt  time.Time
	LastFailedAt   time.Time
}

// GraceDays computes the dunning grace period per spec:
// grace_days = max(0, 7 - 2*failure_count).
func (p PaymentFailure) GraceDays() int {
	d := 7 - 2*p.FailureCount
	if d < 0 {
		return 0
	}
	return d
}

// ShouldSuspend reports whether the subscription has accrued enough
// consecutive failures to suspend the beacon (n >= 3).
func (p PaymentFailure) ShouldSuspend() bool {
	return p.FailureCount >= 3
}
