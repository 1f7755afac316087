// Package progress implements SSE progress streaming for a provisioning
// job: a fixed phase->(step,percent) mapping, a 2s poll fallback, and
// optional change-notification transports (Redis pub/sub or Postgres
// LISTEN/NOTIFY) that let the SSE bridge push updates immediately instead
// of waiting out the poll interval.
package progress

import (
	"context"
	"time"

	"github.com/wopr-systems/beacon-orchestrator/internal/job"
)

// PollInterval is the SSE bridge's always-available fallback cadence.
const PollInterval = 2 * time.Second

// Event is one SSE message: the job's current phase, the fixed step
// number/percent the phase maps to, and whether the stream should close
// after emitting it.
type Event struct {
	JobID        string    `json:"job_id"`
	Phase        job.Phase `json:"phase"`
	Step         int       `json:"step"`
	Percent      int       `json:"percent"`
	Status       string    `json:"status"`
	Message      string    `json:"message,omitempty"`
	BeaconURL    string    `json:"beacon_url,omitempty"`
	DashboardURL string    `json:"dashboard_url,omitempty"`
	InstanceIP   string    `json:"instance_ip,omitempty"`
	CustomDomain string    `json:"custom_domain,omitempty"`
	Error        string    `json:"error,omitempty"`
	Final        bool      `json:"final"`
}

// phaseStep is the fixed phase -> (step, percent) table spec.md §4.6
// requires.
var phaseStep = map[job.Phase]struct {
	Step    int
	Percent int
	Message string
}{
	job.PhasePending:         {0, 0, "Waiting for payment confirmation"},
	job.PhasePaymentReceived: {0, 10, "Payment confirmed"},
	job.PhaseProvisioningVPS: {1, 20, "Provisioning server"},
	job.PhaseWaitingForVPS:   {1, 35, "Waiting for server to boot"},
	job.PhaseConfiguringDNS:  {2, 50, "Configuring DNS"},
	job.PhaseDeployingWOPR:   {3, 65, "Deploying application stack"},
	job.PhaseGeneratingDocs:  {4, 85, "Generating documentation"},
	job.PhaseSendingWelcome:  {4, 90, "Sending welcome email"},
	job.PhaseCompleted:       {5, 100, "Beacon ready"},
	job.PhaseFailed:          {0, 0, "Provisioning failed"},
}

// EventFor builds the SSE Event for j's current phase. baseDomain is used
// to compose beacon_url/dashboard_url once a subdomain has been assigned;
// pass the empty string to omit them.
func EventFor(j *job.Job, baseDomain string) Event {
	step := phaseStep[j.Phase]
	msg := step.Message
	status := "in_progress"
	switch j.Phase {
	case job.PhaseCompleted:
		status = "complete"
	case job.PhaseFailed:
		status = "error"
		if j.ErrorMessage != "" {
			msg = j.ErrorMessage
		}
	}

	evt := Event{
		JobID:        j.ID,
		Phase:        j.Phase,
		Step:         step.Step,
		Percent:      step.Percent,
		Status:       status,
		Message:      msg,
		InstanceIP:   j.InstanceIP,
		CustomDomain: j.CustomDomain,
		Final:        j.Phase.IsTerminal(),
	}
	if j.Phase == job.PhaseFailed {
		evt.Error = j.ErrorMessage
	}
	if j.WOPRSubdomain != "" && baseDomain != "" {
		evt.BeaconURL = "https://" + j.WOPRSubdomain + "." + baseDomain
		evt.DashboardURL = "https://" + j.WOPRSubdomain + "." + baseDomain + "/dashboard"
	}
	return evt
}

// Notifier is the optional change-notification transport: Publish is
// called by the orchestrator on every phase transition, Subscribe is
// called by the SSE bridge. Either or both may be nil, in which case the
// bridge falls back to polling the job store every PollInterval.
type Notifier interface {
	Publish(ctx context.Context, jobID string) error
	Subscribe(ctx context.Context, jobID string) (<-chan struct{}, func(), error)
}
