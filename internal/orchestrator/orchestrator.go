// Package orchestrator implements the provisioning state machine: one
// worker goroutine per job walks PENDING through COMPLETED (or FAILED),
// persisting every phase transition and publishing a progress
// notification after each one. Grounded structurally on the teacher's
// internal/app/services/oracle Dispatcher (ticker-driven loop over
// pending work, a per-item nextAttempt backoff map, system.Service
// lifecycle), generalized from "one poll tick over many oracle requests"
// to "one worker goroutine per job walking ordered phases."
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wopr-systems/beacon-orchestrator/internal/dns"
	"github.com/wopr-systems/beacon-orchestrator/internal/docgen"
	"github.com/wopr-systems/beacon-orchestrator/internal/job"
	"github.com/wopr-systems/beacon-orchestrator/internal/mail"
	"github.com/wopr-systems/beacon-orchestrator/internal/metrics"
	"github.com/wopr-systems/beacon-orchestrator/internal/progress"
	"github.com/wopr-systems/beacon-orchestrator/internal/provider"
	"github.com/wopr-systems/beacon-orchestrator/internal/provider/registry"
	"github.com/wopr-systems/beacon-orchestrator/internal/store"
	"github.com/wopr-systems/beacon-orchestrator/internal/system"
	"github.com/wopr-systems/beacon-orchestrator/pkg/logger"
)

// Per-phase timeouts and retry policy, spec.md §4.3/§5.
const (
	VPSReadyTimeout    = 300 * time.Second
	WOPRReadyTimeout   = 600 * time.Second
	WOPRReadyInterval  = 15 * time.Second
	RetryBaseDelay     = 60 * time.Second
	sweepTickInterval  = 5 * time.Second
	defaultMaxWorkers  = 16
)

// Config bundles every collaborator the orchestrator depends on. Nil
// DNS/Mailer/Docs/Catalog/Notifier fall back to the spec's documented
// "skip, non-fatal, proceed" behavior for their owning phases.
type Config struct {
	Jobs       store.JobStore
	Beacons    store.BeaconStore
	Registry   *registry.Registry
	DNS        dns.Registrar
	Mailer     mail.Sender
	Docs       docgen.Generator
	Catalog    docgen.BundleCatalog
	Notifier   progress.Notifier
	BaseDomain string
	MaxWorkers int
	Log        *logger.Logger
}

// Orchestrator runs the provisioning state machine for every job handed
// to it, either via Enqueue (fresh or webhook-triggered work) or its own
// startup stale-job sweep and retry-backoff scheduler.
type Orchestrator struct {
	jobs       store.JobStore
	beacons    store.BeaconStore
	registry   *registry.Registry
	dnsReg     dns.Registrar
	mailer     mail.Sender
	docs       docgen.Generator
	catalog    docgen.BundleCatalog
	notifier   progress.Notifier
	baseDomain string
	log        *logger.Logger

	// healthCheck is pollHealth by default; tests override it to avoid
	// making real HTTP calls during DEPLOYING_WOPR.
	healthCheck func(ctx context.Context, urls []string) bool

	sem chan struct{}

	mu          sync.Mutex
	nextAttempt map[string]time.Time
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

var _ system.Service = (*Orchestrator)(nil)
var _ webhookDispatcher = (*Orchestrator)(nil)

// webhookDispatcher mirrors internal/webhook.Dispatcher locally to avoid
// an import cycle (webhook depends on nothing in this package); the
// compile-time assertion above still catches a signature drift.
type webhookDispatcher interface {
	Enqueue(ctx context.Context, jobID string) error
}

// New builds an Orchestrator from cfg, defaulting MaxWorkers to
// defaultMaxWorkers and Log to a package-scoped logger.
func New(cfg Config) *Orchestrator {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = defaultMaxWorkers
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("orchestrator")
	}
	return &Orchestrator{
		jobs:        cfg.Jobs,
		beacons:     cfg.Beacons,
		registry:    cfg.Registry,
		dnsReg:      cfg.DNS,
		mailer:      cfg.Mailer,
		docs:        cfg.Docs,
		catalog:     cfg.Catalog,
		notifier:    cfg.Notifier,
		baseDomain:  cfg.BaseDomain,
		log:         log,
		healthCheck: pollHealth,
		sem:         make(chan struct{}, cfg.MaxWorkers),
		nextAttempt: make(map[string]time.Time),
	}
}

func (o *Orchestrator) Name() string { return "orchestrator" }

// Start launches the stale-job sweep (crash recovery for jobs left in a
// non-terminal phase) and the retry-backoff scheduler, then returns; both
// run in background goroutines until Stop is called. Satisfies
// internal/system.Service.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true
	o.mu.Unlock()

	if err := o.sweepStaleJobs(runCtx); err != nil {
		o.log.WithField("error", err.Error()).Warn("stale job sweep failed")
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(sweepTickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				o.tickRetries(runCtx)
			}
		}
	}()

	o.log.Info("orchestrator started")
	return nil
}

// Stop cancels background loops and waits for in-flight workers to
// notice cancellation. Satisfies internal/system.Service.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	cancel := o.cancel
	o.running = false
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		o.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	o.log.Info("orchestrator stopped")
	return nil
}

// Enqueue starts (or resumes) provisioning for jobID immediately on a
// bounded worker slot. Satisfies internal/webhook.Dispatcher.
func (o *Orchestrator) Enqueue(ctx context.Context, jobID string) error {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runJob(ctx, jobID)
	}()
	return nil
}

// nonTerminalPhases lists every phase the stale-job sweep resumes;
// PENDING is excluded since a job only becomes persisted once payment is
// confirmed (internal/webhook always creates jobs at PAYMENT_RECEIVED).
var nonTerminalPhases = []job.Phase{
	job.PhasePaymentReceived,
	job.PhaseProvisioningVPS,
	job.PhaseWaitingForVPS,
	job.PhaseConfiguringDNS,
	job.PhaseDeployingWOPR,
	job.PhaseGeneratingDocs,
	job.PhaseSendingWelcome,
}

// sweepStaleJobs resumes every job left in a non-terminal phase by a
// prior process crash, per spec.md §4.3's stale-job sweep.
func (o *Orchestrator) sweepStaleJobs(ctx context.Context) error {
	for _, phase := range nonTerminalPhases {
		jobs, err := o.jobs.ListByPhase(ctx, phase)
		if err != nil {
			return fmt.Errorf("orchestrator: list jobs in phase %s: %w", phase, err)
		}
		for _, j := range jobs {
			if j.RetryCount >= job.MaxRetries {
				continue
			}
			o.log.WithField("job_id", j.ID).WithField("phase", string(phase)).Info("resuming stale job")
			o.wg.Add(1)
			go func(id string) {
				defer o.wg.Done()
				o.runJob(ctx, id)
			}(j.ID)
		}
	}
	return nil
}

// tickRetries re-enqueues every FAILED job whose backoff delay has
// elapsed.
func (o *Orchestrator) tickRetries(ctx context.Context) {
	now := time.Now()
	var due []string
	o.mu.Lock()
	for id, at := range o.nextAttempt {
		if now.After(at) {
			due = append(due, id)
			delete(o.nextAttempt, id)
		}
	}
	o.mu.Unlock()

	for _, id := range due {
		o.wg.Add(1)
		go func(id string) {
			defer o.wg.Done()
			o.runJob(ctx, id)
		}(id)
	}
}

// scheduleRetry records that jobID should be resumed once its backoff
// delay elapses.
func (o *Orchestrator) scheduleRetry(jobID string, delay time.Duration) {
	o.mu.Lock()
	o.nextAttempt[jobID] = time.Now().Add(delay)
	o.mu.Unlock()
}

// runJob acquires a worker slot and executes one pass of the state
// machine for jobID, starting from whatever phase is currently
// persisted.
func (o *Orchestrator) runJob(ctx context.Context, jobID string) {
	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	metrics.SetActiveJobs(len(o.sem))
	defer func() {
		<-o.sem
		metrics.SetActiveJobs(len(o.sem))
	}()

	j, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		o.log.WithField("job_id", jobID).WithField("error", err.Error()).Error("orchestrator: job not found")
		return
	}
	o.executeProvisioning(ctx, j)
}

// executeProvisioning walks j from its current phase through COMPLETED,
// persisting and publishing after every transition. A fatal phase error
// marks the job FAILED, recording the phase it failed at (FailedAtPhase)
// so a subsequent retry resumes there rather than restarting at
// PAYMENT_RECEIVED — the deliberate deviation from the literal spec.md
// §4.3 "always starts at PAYMENT_RECEIVED" behavior recorded in
// SPEC_FULL.md.
func (o *Orchestrator) executeProvisioning(ctx context.Context, j *job.Job) {
	phase := j.Phase
	if phase == job.PhasePending || (phase == job.PhaseFailed && j.FailedAtPhase == "") {
		phase = job.PhasePaymentReceived
	}
	if phase == job.PhaseFailed {
		phase = j.FailedAtPhase
	}
	if j.Phase != phase {
		// Resuming a retried or crash-recovered job: re-enter the resume
		// phase directly rather than through advance, since the persisted
		// Phase (FAILED, or the in-progress phase before a crash) is not a
		// predecessor of itself in the monotonicity check.
		j.Phase = phase
		j.ErrorMessage = ""
		if err := o.jobs.Update(ctx, j); err != nil {
			o.log.WithField("job_id", j.ID).WithField("error", err.Error()).Error("orchestrator: persist resume phase failed")
			return
		}
		o.publish(ctx, j.ID)
	}

	for {
		switch phase {
		case job.PhasePaymentReceived:
			if !o.advance(ctx, j, job.PhaseProvisioningVPS, "Provisioning server") {
				return
			}
			phase = job.PhaseProvisioningVPS

		case job.PhaseProvisioningVPS:
			if err := o.provisionVPS(ctx, j); err != nil {
				o.fail(ctx, j, job.PhaseProvisioningVPS, err)
				return
			}
			if !o.advance(ctx, j, job.PhaseWaitingForVPS, "Waiting for server to boot") {
				return
			}
			phase = job.PhaseWaitingForVPS

		case job.PhaseWaitingForVPS:
			if err := o.waitForVPS(ctx, j); err != nil {
				o.fail(ctx, j, job.PhaseWaitingForVPS, err)
				return
			}
			if !o.advance(ctx, j, job.PhaseConfiguringDNS, "Configuring DNS") {
				return
			}
			phase = job.PhaseConfiguringDNS

		case job.PhaseConfiguringDNS:
			o.configureDNS(ctx, j) // non-fatal by design (spec.md §4.3)
			if !o.advance(ctx, j, job.PhaseDeployingWOPR, "Deploying application stack") {
				return
			}
			phase = job.PhaseDeployingWOPR

		case job.PhaseDeployingWOPR:
			o.waitForWOPRReady(ctx, j) // non-fatal by design (spec.md §4.3)
			if !o.advance(ctx, j, job.PhaseGeneratingDocs, "Generating documentation") {
				return
			}
			phase = job.PhaseGeneratingDocs

		case job.PhaseGeneratingDocs:
			doc := o.generateDocumentation(ctx, j) // non-fatal by design
			if !o.advance(ctx, j, job.PhaseSendingWelcome, "Sending welcome email") {
				return
			}
			o.sendWelcomeEmail(ctx, j, doc) // non-fatal by design
			phase = job.PhaseSendingWelcome

		case job.PhaseSendingWelcome:
			if err := o.complete(ctx, j); err != nil {
				o.log.WithField("job_id", j.ID).WithField("error", err.Error()).Error("orchestrator: failed to persist completed beacon")
			}
			return

		default:
			o.log.WithField("job_id", j.ID).WithField("phase", string(phase)).Warn("orchestrator: unknown resume phase, restarting from PROVISIONING_VPS")
			phase = job.PhaseProvisioningVPS
		}
	}
}

// advance persists j's new phase, publishes a progress notification, and
// reports whether the transition was accepted.
func (o *Orchestrator) advance(ctx context.Context, j *job.Job, next job.Phase, message string) bool {
	if !j.Phase.Advances(next) {
		o.log.WithField("job_id", j.ID).WithField("from", string(j.Phase)).WithField("to", string(next)).Warn("orchestrator: refusing non-monotonic phase transition")
		return false
	}
	completed := j.Phase
	phaseStarted := j.UpdatedAt
	j.Phase = next
	j.UpdatedAt = time.Now().UTC()
	j.ErrorMessage = ""
	if err := o.jobs.Update(ctx, j); err != nil {
		o.log.WithField("job_id", j.ID).WithField("error", err.Error()).Error("orchestrator: persist phase failed")
		return false
	}
	metrics.RecordPhaseTransition(string(completed), "completed")
	if !phaseStarted.IsZero() {
		metrics.RecordPhaseDuration(string(completed), j.UpdatedAt.Sub(phaseStarted))
	}
	o.publish(ctx, j.ID)
	return true
}

// fail marks j FAILED, remembers the phase it failed at for strict
// resume, and schedules an automatic retry within MaxRetries using
// 60s·2^retry_count backoff (spec.md §4.3).
func (o *Orchestrator) fail(ctx context.Context, j *job.Job, failedPhase job.Phase, err error) {
	o.log.WithField("job_id", j.ID).WithField("phase", string(failedPhase)).WithField("error", err.Error()).Error("orchestrator: phase failed fatally")
	metrics.RecordPhaseTransition(string(failedPhase), "failed")

	j.Phase = job.PhaseFailed
	j.FailedAtPhase = failedPhase
	j.ErrorMessage = err.Error()
	j.UpdatedAt = time.Now().UTC()
	if uerr := o.jobs.Update(ctx, j); uerr != nil {
		o.log.WithField("job_id", j.ID).WithField("error", uerr.Error()).Error("orchestrator: persist failure failed")
	}
	o.publish(ctx, j.ID)

	if !j.CanRetry() {
		return
	}
	delay := RetryBaseDelay * time.Duration(1<<uint(j.RetryCount))
	j.RetryCount++
	if uerr := o.jobs.Update(ctx, j); uerr != nil {
		o.log.WithField("job_id", j.ID).WithField("error", uerr.Error()).Error("orchestrator: persist retry count failed")
	}
	o.scheduleRetry(j.ID, delay)
	o.log.WithField("job_id", j.ID).WithField("retry_in", delay.String()).Info("orchestrator: scheduled retry")
}

// complete marks j COMPLETED and creates its durable beacon record.
func (o *Orchestrator) complete(ctx context.Context, j *job.Job) error {
	j.Phase = job.PhaseCompleted
	j.UpdatedAt = time.Now().UTC()
	if err := j.Validate(); err != nil {
		o.fail(ctx, j, job.PhaseSendingWelcome, err)
		return err
	}
	if err := o.jobs.Update(ctx, j); err != nil {
		return fmt.Errorf("orchestrator: persist completed job: %w", err)
	}
	o.publish(ctx, j.ID)

	if o.beacons != nil {
		b := &job.Beacon{
			ID:                   uuid.NewString(),
			JobID:                j.ID,
			CustomerID:           j.CustomerID,
			StripeSubscriptionID: j.StripeSubscriptionID,
			Subdomain:            j.WOPRSubdomain,
			ProviderID:           j.ProviderID,
			InstanceID:           j.InstanceID,
			InstanceIP:           j.InstanceIP,
			DNSRecordIDs:         j.DNSRecordIDs,
			StorageTier:          j.StorageTier,
			Bundle:               j.Bundle,
			Status:               job.BeaconStatusActive,
			CreatedAt:            time.Now().UTC(),
			UpdatedAt:            time.Now().UTC(),
		}
		if err := o.beacons.Create(ctx, b); err != nil {
			return fmt.Errorf("orchestrator: create beacon record: %w", err)
		}
		j.BeaconID = b.ID
		_ = o.jobs.Update(ctx, j)
	}
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, jobID string) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Publish(ctx, jobID); err != nil {
		o.log.WithField("job_id", jobID).WithField("error", err.Error()).Warn("orchestrator: progress publish failed")
	}
}

// provisionVPS implements PROVISIONING_VPS: resolve the plan, synthesize
// subdomain/instance name, generate cloud-init, and provision. Any
// failure here is fatal for the job (spec.md §4.3).
func (o *Orchestrator) provisionVPS(ctx context.Context, j *job.Job) error {
	p, ok := o.registry.Get(j.ProviderID)
	if !ok {
		return fmt.Errorf("orchestrator: provider not found: %s", j.ProviderID)
	}

	planID, err := PlanForTier(j.ProviderID, j.StorageTier)
	if err != nil {
		return err
	}

	if j.WOPRSubdomain == "" {
		j.WOPRSubdomain = subdomainFor(j)
	}
	userData := GenerateCloudInit(j, o.baseDomain, time.Now())

	cfg := provider.ProvisionConfig{
		PlanID:   planID,
		RegionID: j.Region,
		Hostname: instanceNameFor(j.WOPRSubdomain),
		UserData: userData,
		Tags:     []string{"wopr", "job:" + j.ID},
	}

	inst, err := p.Provision(ctx, cfg)
	metrics.RecordProviderCall(j.ProviderID, "provision", err)
	if err != nil {
		return fmt.Errorf("orchestrator: provision failed: %w", err)
	}

	j.InstanceID = inst.ID
	if inst.PublicIPv4 != "" {
		j.InstanceIP = inst.PublicIPv4
	}
	return o.jobs.Update(ctx, j)
}

// waitForVPS implements WAITING_FOR_VPS by delegating to the provider
// package's shared poll helper (10s interval, up to VPSReadyTimeout),
// then persisting the instance IP it observed.
func (o *Orchestrator) waitForVPS(ctx context.Context, j *job.Job) error {
	p, ok := o.registry.Get(j.ProviderID)
	if !ok {
		return fmt.Errorf("orchestrator: provider not found: %s", j.ProviderID)
	}
	inst, err := provider.WaitForReadyPoll(ctx, p, j.InstanceID, VPSReadyTimeout)
	metrics.RecordProviderCall(j.ProviderID, "wait_for_ready", err)
	if err != nil {
		return err
	}
	j.InstanceIP = inst.PublicIPv4
	return o.jobs.Update(ctx, j)
}

// configureDNS implements CONFIGURING_DNS: create the subdomain A record
// and its wildcard sibling. Errors (including no DNS registrar
// configured) are logged and swallowed; this phase never fails the job
// (spec.md §4.3, SPEC_FULL.md Open Question decision).
func (o *Orchestrator) configureDNS(ctx context.Context, j *job.Job) {
	if o.dnsReg == nil || j.InstanceIP == "" {
		return
	}

	ids := map[string]string{}
	record, err := o.dnsReg.CreateARecord(ctx, j.WOPRSubdomain, j.InstanceIP)
	if err != nil {
		o.log.WithField("job_id", j.ID).WithField("error", err.Error()).Warn("orchestrator: DNS A record failed, proceeding by IP")
	} else {
		ids["a_record"] = record.ID
	}

	wildcard, err := o.dnsReg.CreateARecord(ctx, "*."+j.WOPRSubdomain, j.InstanceIP)
	if err != nil {
		o.log.WithField("job_id", j.ID).WithField("error", err.Error()).Warn("orchestrator: DNS wildcard record failed, proceeding by IP")
	} else {
		ids["wildcard_record"] = wildcard.ID
	}

	if len(ids) == 0 {
		return
	}
	j.DNSRecordIDs = ids
	if err := o.jobs.Update(ctx, j); err != nil {
		o.log.WithField("job_id", j.ID).WithField("error", err.Error()).Warn("orchestrator: persist DNS record ids failed")
	}
}

// waitForWOPRReady implements DEPLOYING_WOPR: poll the beacon's health
// endpoint every WOPRReadyInterval up to WOPRReadyTimeout. A timeout is
// non-fatal; cloud-init may still be finishing the install.
func (o *Orchestrator) waitForWOPRReady(ctx context.Context, j *job.Job) {
	urls := healthURLs(j.WOPRSubdomain, o.baseDomain, j.InstanceIP)
	if len(urls) == 0 {
		return
	}

	deadline := time.Now().Add(WOPRReadyTimeout)
	ticker := time.NewTicker(WOPRReadyInterval)
	defer ticker.Stop()

	for {
		if o.healthCheck(ctx, urls) {
			return
		}
		if time.Now().After(deadline) {
			o.log.WithField("job_id", j.ID).Warn("orchestrator: WOPR readiness timeout, proceeding anyway")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// generateDocumentation implements GENERATING_DOCS: call the
// documentation collaborator. A failure is logged and swallowed.
func (o *Orchestrator) generateDocumentation(ctx context.Context, j *job.Job) *docgen.Document {
	if o.docs == nil {
		return nil
	}
	doc, err := o.docs.GenerateWelcomeDocument(ctx, docgen.Request{
		CustomerName: j.CustomerName,
		Subdomain:    j.WOPRSubdomain,
		Bundle:       j.Bundle,
		Apps:         o.bundleApps(j.Bundle),
		RootPassword: "Set during setup wizard",
	})
	if err != nil {
		o.log.WithField("job_id", j.ID).WithField("error", err.Error()).Warn("orchestrator: documentation generation failed, continuing without it")
		return nil
	}
	return doc
}

// bundleApps resolves a bundle's app list via the configured catalog, or
// docgen's fixed three-app fallback when none is wired, matching the
// original orchestrator's except-Exception fallback.
func (o *Orchestrator) bundleApps(bundle string) []docgen.BundleApp {
	if o.catalog == nil {
		return docgen.StaticCatalog{}.AppsFor(bundle)
	}
	return o.catalog.AppsFor(bundle)
}

// sendWelcomeEmail implements SENDING_WELCOME: send the welcome template
// with the generated PDF attached, if any. A failure is logged and
// swallowed.
func (o *Orchestrator) sendWelcomeEmail(ctx context.Context, j *job.Job, doc *docgen.Document) {
	if o.mailer == nil {
		return
	}
	msg := mail.Message{
		Template: mail.TemplateWelcome,
		To:       []string{j.CustomerEmail},
		Data: map[string]any{
			"customer_name": j.CustomerName,
			"bundle":        j.Bundle,
			"subdomain":     j.WOPRSubdomain,
			"base_domain":   o.baseDomain,
			"storage_tier":  j.StorageTier,
		},
	}
	if doc != nil {
		msg.Attachments = []mail.Attachment{{
			Filename:    doc.Filename,
			ContentType: "application/pdf",
			Data:        doc.Data,
		}}
	}
	if err := o.mailer.Send(ctx, msg); err != nil {
		o.log.WithField("job_id", j.ID).WithField("error", err.Error()).Warn("orchestrator: welcome email failed, continuing")
	}
}
