// Package webhook implements the signed payment-processor event ingress:
// signature verification, per-address rate limiting, event dispatch, and
// idempotent job creation. Grounded structurally on the teacher's
// infrastructure/middleware chain (rate-limit -> verify -> handle) and on
// original_source/wopr-installer/control_plane/main.py's Stripe webhook
// route, generalized from a Flask view function to a net/http handler.
package webhook

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/wopr-systems/beacon-orchestrator/internal/dunning"
	"github.com/wopr-systems/beacon-orchestrator/internal/job"
	"github.com/wopr-systems/beacon-orchestrator/internal/provider/registry"
	"github.com/wopr-systems/beacon-orchestrator/internal/store"
	"github.com/wopr-systems/beacon-orchestrator/pkg/logger"
)

// RateLimit is the webhook ingress's request budget (spec.md §4.4).
const (
	RateLimit       = 30
	RateLimitWindow = time.Minute
)

// Dispatcher enqueues a persisted job for orchestration. Satisfied by
// internal/orchestrator's worker pool.
type Dispatcher interface {
	Enqueue(ctx context.Context, jobID string) error
}

// CustomerLookup resolves a display email/name when a webhook payload
// omits it, keeping the webhook package decoupled from any specific
// payment-processor SDK (spec.md §1 treats the processor client as an
// external collaborator).
type CustomerLookup interface {
	LookupEmail(ctx context.Context, customerID string) (string, error)
}

// defaultRegions is the provider -> default region fallback used when a
// webhook payload omits one (spec.md §4.4: "If region is unset, map the
// chosen provider to its default").
var defaultRegions = map[string]string{
	"hetzner":      "nbg1",
	"digitalocean": "nyc3",
	"linode":       "us-east",
	"ovh":          "gra",
	"upcloud":      "fi-hel1",
}

// Handler serves POST /api/webhook/stripe.
type Handler struct {
	jobs       store.JobStore
	beacons    store.BeaconStore
	registry   *registry.Registry
	dunning    *dunning.Engine
	dispatcher Dispatcher
	customers  CustomerLookup
	secret     string
	limiter    *RateLimiter
	log        *logger.Logger
}

func NewHandler(jobs store.JobStore, beacons store.BeaconStore, reg *registry.Registry, dn *dunning.Engine, dispatcher Dispatcher, customers CustomerLookup, secret string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewDefault("webhook")
	}
	return &Handler{
		jobs:       jobs,
		beacons:    beacons,
		registry:   reg,
		dunning:    dn,
		dispatcher: dispatcher,
		customers:  customers,
		secret:     secret,
		limiter:    NewRateLimiter(RateLimit, RateLimitWindow),
		log:        log,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	addr := ClientAddr(r)
	if !h.limiter.Allow(addr) {
		w.Header().Set("Retry-After", "60")
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if h.secret != "" {
		if err := VerifySignature(body, r.Header.Get("Stripe-Signature"), h.secret, DefaultTolerance); err != nil {
			h.log.WithField("remote_addr", addr).Warn("webhook signature verification failed")
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}
	}

	eventType := gjson.GetBytes(body, "type").String()
	jobID, err := h.dispatch(r.Context(), eventType, body)

	// The event has been signature-verified and accepted; a dispatch error
	// is logged but still answered with 200, or the processor retry-storms
	// the same event on any transient internal failure (spec.md §7).
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err != nil {
		h.log.WithField("event_type", eventType).WithField("error", err.Error()).Error("webhook dispatch failed")
		fmt.Fprint(w, `{"received":true,"error":"processing error"}`)
		return
	}
	if jobID != "" {
		fmt.Fprintf(w, `{"received":true,"job_id":%q}`, jobID)
		return
	}
	fmt.Fprint(w, `{"received":true}`)
}

// dispatch routes one parsed event to its handler per the §4.4 table,
// returning a job id when the event created one.
func (h *Handler) dispatch(ctx context.Context, eventType string, body []byte) (string, error) {
	data := gjson.GetBytes(body, "data.object")

	switch eventType {
	case "checkout.session.completed":
		return h.handleCheckoutCompleted(ctx, data)
	case "invoice.payment_failed":
		return "", h.handlePaymentFailed(ctx, data)
	case "customer.subscription.deleted":
		return "", h.handleSubscriptionDeleted(ctx, data)
	case "customer.subscription.updated":
		return "", h.handleSubscriptionUpdated(ctx, data)
	case "customer.subscription.trial_will_end":
		return "", h.handleTrialWillEnd(ctx, data)
	default:
		h.log.WithField("event_type", eventType).Info("unhandled webhook event type, ignoring")
		return "", nil
	}
}

func (h *Handler) handleCheckoutCompleted(ctx context.Context, data gjson.Result) (string, error) {
	sessionID := data.Get("id").String()

	if sessionID != "" {
		if existing, err := h.jobs.GetBySessionID(ctx, sessionID); err == nil && existing != nil {
			h.log.WithField("session_id", sessionID).Info("duplicate checkout session, reusing existing job")
			return existing.ID, nil
		}
	}

	metadata := data.Get("metadata")
	bundle := metadata.Get("bundle").String()
	tier := int(metadata.Get("tier").Int())
	if tier == 0 {
		tier = 1
	}
	email := metadata.Get("email").String()
	if email == "" {
		email = data.Get("customer_details.email").String()
	}
	customDomain := metadata.Get("domain").String()
	displayName := metadata.Get("display_name").String()
	providerID := metadata.Get("provider").String()
	region := metadata.Get("region").String()
	customerID := data.Get("customer").String()

	if email == "" && customerID != "" && h.customers != nil {
		if looked, err := h.customers.LookupEmail(ctx, customerID); err == nil {
			email = looked
		}
	}

	if providerID == "" || !h.providerKnown(providerID) {
		p, err := h.registry.Select(ctx)
		if err != nil {
			return "", fmt.Errorf("webhook: select provider: %w", err)
		}
		providerID = p.Name()
	}
	if region == "" {
		region = defaultRegions[providerID]
	}

	j := &job.Job{
		ID:                   uuid.NewString(),
		CustomerID:           customerID,
		CustomerEmail:        email,
		CustomerName:         displayName,
		Bundle:               bundle,
		ProviderID:           providerID,
		Region:               region,
		StorageTier:          tier,
		CustomDomain:         customDomain,
		Phase:                job.PhasePaymentReceived,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: data.Get("subscription").String(),
		StripeSessionID:      sessionID,
	}

	if err := h.jobs.Create(ctx, j); err != nil {
		return "", fmt.Errorf("webhook: create job: %w", err)
	}

	if h.dispatcher != nil {
		if err := h.dispatcher.Enqueue(ctx, j.ID); err != nil {
			h.log.WithField("job_id", j.ID).WithField("error", err.Error()).Error("failed to enqueue job")
		}
	}

	return j.ID, nil
}

func (h *Handler) providerKnown(name string) bool {
	_, ok := h.registry.Get(name)
	return ok
}

func (h *Handler) handlePaymentFailed(ctx context.Context, data gjson.Result) error {
	subscriptionID := data.Get("subscription").String()
	email := data.Get("customer_email").String()
	if h.dunning == nil || subscriptionID == "" {
		return nil
	}
	return h.dunning.HandlePaymentFailed(ctx, subscriptionID, email, time.Now())
}

func (h *Handler) handleSubscriptionDeleted(ctx context.Context, data gjson.Result) error {
	subscriptionID := data.Get("id").String()
	email := data.Get("customer_email").String()
	if h.dunning == nil || subscriptionID == "" {
		return nil
	}
	return h.dunning.HandleSubscriptionDeleted(ctx, subscriptionID, email, time.Now())
}

func (h *Handler) handleSubscriptionUpdated(ctx context.Context, data gjson.Result) error {
	subscriptionID := data.Get("id").String()
	if subscriptionID == "" {
		return nil
	}
	status := data.Get("status").String()
	if status == "active" && h.dunning != nil {
		if err := h.dunning.HandleSubscriptionActive(ctx, subscriptionID, time.Now()); err != nil {
			return err
		}
	}

	metadata := data.Get("metadata")
	newBundle := metadata.Get("bundle").String()
	newTier := int(metadata.Get("tier").Int())
	if newBundle == "" && newTier == 0 {
		return nil
	}
	beacon, err := h.beacons.GetBySubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("webhook: lookup beacon for subscription update: %w", err)
	}
	if newBundle == "" {
		newBundle = beacon.Bundle
	}
	if newTier == 0 {
		newTier = beacon.StorageTier
	}
	return h.beacons.UpdateBundleTier(ctx, beacon.ID, newBundle, newTier)
}

func (h *Handler) handleTrialWillEnd(ctx context.Context, data gjson.Result) error {
	email := data.Get("customer_email").String()
	subscriptionID := data.Get("subscription").String()
	if h.dunning == nil || email == "" {
		return nil
	}
	return h.dunning.HandleTrialWillEnd(ctx, email, subscriptionID)
}
