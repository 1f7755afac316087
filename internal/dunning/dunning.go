// Package dunning implements the failure-count-driven escalation engine
// that reacts to payment-processor subscription lifecycle events: it
// tracks consecutive payment failures per subscription, escalates to
// suspension, clears the ledger on recovery, and runs the decommission
// cleanup sequence on cancellation. Grounded on spec.md §4.7 and the
// cleanup ordering named in §4.4, structurally mirroring the teacher's
// service-layer collaborator-composition style (small struct holding
// narrow interfaces, one method per reacted-to event).
package dunning

import (
	"context"
	"fmt"
	"time"

	"github.com/wopr-systems/beacon-orchestrator/internal/dns"
	"github.com/wopr-systems/beacon-orchestrator/internal/job"
	"github.com/wopr-systems/beacon-orchestrator/internal/mail"
	"github.com/wopr-systems/beacon-orchestrator/internal/metrics"
	"github.com/wopr-systems/beacon-orchestrator/internal/provider"
	"github.com/wopr-systems/beacon-orchestrator/internal/provider/registry"
	"github.com/wopr-systems/beacon-orchestrator/internal/store"
	"github.com/wopr-systems/beacon-orchestrator/pkg/logger"
)

// Engine reacts to subscription lifecycle events and escalates, resets,
// or decommissions beacons accordingly.
type Engine struct {
	beacons  store.BeaconStore
	failures store.PaymentFailureStore
	registry *registry.Registry
	dnsReg   dns.Registrar
	mailer   mail.Sender
	log      *logger.Logger
}

func New(beacons store.BeaconStore, failures store.PaymentFailureStore, reg *registry.Registry, dnsReg dns.Registrar, mailer mail.Sender, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("dunning")
	}
	return &Engine{
		beacons:  beacons,
		failures: failures,
		registry: reg,
		dnsReg:   dnsReg,
		mailer:   mailer,
		log:      log,
	}
}

// HandlePaymentFailed increments the failure ledger for subscriptionID,
// sends a dunning email carrying the current grace period, and suspends
// the beacon once the failure count reaches the threshold (spec.md §4.7).
func (e *Engine) HandlePaymentFailed(ctx context.Context, subscriptionID, customerEmail string, at time.Time) error {
	failure, err := e.failures.Increment(ctx, subscriptionID, at)
	if err != nil {
		return fmt.Errorf("dunning: increment failure ledger for %s: %w", subscriptionID, err)
	}

	graceDays := failure.GraceDays()
	e.log.WithField("subscription_id", subscriptionID).WithField("failure_count", failure.FailureCount).
		Warn("payment failure recorded")

	if err := e.sendDunningEmail(ctx, customerEmail, subscriptionID, failure.FailureCount, graceDays); err != nil {
		e.log.WithField("subscription_id", subscriptionID).WithField("error", err.Error()).
			Warn("dunning email delivery failed")
	}

	if !failure.ShouldSuspend() {
		return nil
	}

	beacon, err := e.beacons.GetBySubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("dunning: lookup beacon for %s: %w", subscriptionID, err)
	}
	if beacon.Status == job.BeaconStatusSuspended {
		return nil
	}
	if err := e.beacons.UpdateStatus(ctx, beacon.ID, job.BeaconStatusSuspended, at); err != nil {
		return fmt.Errorf("dunning: suspend beacon %s: %w", beacon.ID, err)
	}
	metrics.RecordDunningEscalation("suspended")
	e.log.WithField("beacon_id", beacon.ID).Warn("beacon suspended after repeated payment failures")
	return nil
}

// HandleSubscriptionActive clears the failure ledger and, if the beacon
// was suspended, restores it to active.
func (e *Engine) HandleSubscriptionActive(ctx context.Context, subscriptionID string, at time.Time) error {
	if err := e.failures.Reset(ctx, subscriptionID); err != nil {
		return fmt.Errorf("dunning: reset failure ledger for %s: %w", subscriptionID, err)
	}

	beacon, err := e.beacons.GetBySubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("dunning: lookup beacon for %s: %w", subscriptionID, err)
	}
	if beacon.Status != job.BeaconStatusSuspended {
		return nil
	}
	if err := e.beacons.UpdateStatus(ctx, beacon.ID, job.BeaconStatusActive, at); err != nil {
		return fmt.Errorf("dunning: reactivate beacon %s: %w", beacon.ID, err)
	}
	e.log.WithField("beacon_id", beacon.ID).Info("beacon reactivated")
	return nil
}

// HandleSubscriptionDeleted runs the §4.4 cleanup sequence: DNS deletion
// (best-effort), instance destroy, beacon status update, cancellation
// email — in that exact order.
func (e *Engine) HandleSubscriptionDeleted(ctx context.Context, subscriptionID, customerEmail string, at time.Time) error {
	beacon, err := e.beacons.GetBySubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("dunning: lookup beacon for %s: %w", subscriptionID, err)
	}

	if e.dnsReg != nil && len(beacon.DNSRecordIDs) > 0 {
		if err := e.dnsReg.DeleteBeaconRecords(ctx, beacon.DNSRecordIDs); err != nil {
			e.log.WithField("beacon_id", beacon.ID).WithField("error", err.Error()).
				Warn("DNS record cleanup failed, continuing decommission")
		}
	}

	if p, ok := e.registry.Get(beacon.ProviderID); ok && beacon.InstanceID != "" {
		if err := p.Destroy(ctx, beacon.InstanceID); err != nil && !provider.IsNotFound(err) {
			e.log.WithField("beacon_id", beacon.ID).WithField("error", err.Error()).
				Warn("instance destroy failed during decommission")
		}
	}

	if err := e.beacons.UpdateStatus(ctx, beacon.ID, job.BeaconStatusDecommissioned, at); err != nil {
		return fmt.Errorf("dunning: mark beacon %s decommissioned: %w", beacon.ID, err)
	}
	metrics.RecordDunningEscalation("decommissioned")

	if err := e.sendCancellationEmail(ctx, customerEmail, subscriptionID); err != nil {
		e.log.WithField("beacon_id", beacon.ID).WithField("error", err.Error()).
			Warn("cancellation email delivery failed")
	}

	e.log.WithField("beacon_id", beacon.ID).Info("beacon decommissioned")
	return nil
}

// HandleTrialWillEnd sends a trial-ending reminder email.
func (e *Engine) HandleTrialWillEnd(ctx context.Context, customerEmail, subscriptionID string) error {
	if e.mailer == nil || customerEmail == "" {
		return nil
	}
	return e.mailer.Send(ctx, mail.Message{
		Template: mail.TemplateTrialReminder,
		To:       []string{customerEmail},
		Data: map[string]any{
			"subscription_id": subscriptionID,
		},
	})
}

func (e *Engine) sendDunningEmail(ctx context.Context, customerEmail, subscriptionID string, failureCount, graceDays int) error {
	if e.mailer == nil || customerEmail == "" {
		return nil
	}
	return e.mailer.Send(ctx, mail.Message{
		Template: mail.TemplatePaymentFailed,
		To:       []string{customerEmail},
		Data: map[string]any{
			"subscription_id": subscriptionID,
			"failure_count":   failureCount,
			"grace_days":      graceDays,
		},
	})
}

func (e *Engine) sendCancellationEmail(ctx context.Context, customerEmail, subscriptionID string) error {
	if e.mailer == nil || customerEmail == "" {
		return nil
	}
	return e.mailer.Send(ctx, mail.Message{
		Template: mail.TemplateSubscriptionCancelled,
		To:       []string{customerEmail},
		Data: map[string]any{
			"subscription_id": subscriptionID,
		},
	})
}
