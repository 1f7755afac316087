// Package job defines the provisioning job record and the phase state
// machine it moves through, shared by the orchestrator, the job store, and
// the progress-streaming bridge.
package job

import "time"

// Phase is one step of the provisioning workflow. Phases only ever move
// forward except on retry, where a FAILED job re-enters at its last
// persisted phase (see internal/orchestrator).
type Phase string

const (
	PhasePending          Phase = "pending"
	PhasePaymentReceived  Phase = "payment_received"
	PhaseProvisioningVPS  Phase = "provisioning_vps"
	PhaseWaitingForVPS    Phase = "waiting_for_vps"
	PhaseConfiguringDNS   Phase = "configuring_dns"
	PhaseDeployingWOPR    Phase = "deploying_wopr"
	PhaseGeneratingDocs   Phase = "generating_docs"
	PhaseSendingWelcome   Phase = "sending_welcome"
	PhaseCompleted        Phase = "completed"
	PhaseFailed           Phase = "failed"
)

// order gives each phase except FAILED its position for monotonicity
// checks; COMPLETED comes last, and FAILED is handled separately by
// Advances.
var order = map[Phase]int{
	PhasePending:         0,
	PhasePaymentReceived: 1,
	PhaseProvisioningVPS: 2,
	PhaseWaitingForVPS:   3,
	PhaseConfiguringDNS:  4,
	PhaseDeployingWOPR:   5,
	PhaseGeneratingDocs:  6,
	PhaseSendingWelcome:  7,
	PhaseCompleted:       8,
}

// IsTerminal reports whether p ends the job's lifecycle.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Advances reports whether moving from p to next respects phase
// monotonicity: next must be strictly later in the sequence, or FAILED
// from any non-terminal phase, or a resume back into a previously-reached
// phase after a retry (handled by the orchestrator, not this check).
func (p Phase) Advances(next Phase) bool {
	if next == PhaseFailed {
		return !p.IsTerminal()
	}
	pi, pok := order[p]
	ni, nok := order[next]
	if !pok || !nok {
		return false
	}
	return ni > pi
}

// MaxRetries is the maximum number of times a FAILED job may be retried
// before it is left in its terminal FAILED state for good.
const MaxRetries = 3

// Job tracks one beacon provisioning job through its lifecycle.
type Job struct {
	ID         string
	CustomerID string
	CustomerEmail string
	CustomerName  string
	Bundle        string
	ProviderID    string
	Region        string
	DatacenterID  string
	StorageTier   int
	CustomDomain  string

	Phase     Phase
	CreatedAt time.Time
	UpdatedAt time.Time

	InstanceID     string
	InstanceIP     string
	WOPRSubdomain  string
	RootPassword   string
	DNSRecordIDs   map[string]string

	ErrorMessage  string
	RetryCount    int
	FailedAtPhase Phase

	StripeCustomerID     string
	StripeSubscriptionID string
	StripeSessionID      string

	BeaconID string
}

// CanRetry reports whether a FAILED job is still eligible for an
// automatic retry.
func (j *Job) CanRetry() bool {
	return j.Phase == PhaseFailed && j.RetryCount < MaxRetries
}

// Validate enforces the record invariants spec.md names: COMPLETED jobs
// must carry instance_id/instance_ip/wopr_subdomain, and retry_count never
// exceeds MaxRetries.
func (j *Job) Validate() error {
	if j.RetryCount > MaxRetries {
		return &InvariantError{Field: "retry_count", Message: "exceeds maximum retries"}
	}
	if j.Phase == PhaseCompleted {
		if j.InstanceID == "" || j.InstanceIP == "" || j.WOPRSubdomain == "" {
			return &InvariantError{Field: "phase", Message: "COMPLETED job missing instance_id/instance_ip/wopr_subdomain"}
		}
	}
	return nil
}

// InvariantError reports a violation of a Job record invariant.
type InvariantError struct {
	Field   string
	Message string
}

func (e *InvariantError) Error() string {
	return "job invariant violated: " + e.Field + ": " + e.Message
}
