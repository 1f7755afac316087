// Package httpapi exposes the beacon provisioning API: the signed
// webhook ingress, authenticated manual provisioning, job status/SSE
// streaming, provider listing, health, and the installer tarball.
// Grounded structurally on the teacher's internal/app/httpapi handler
// (mux wiring, writeJSON/writeError, token-and-JWT auth wrapping,
// request audit log) generalized from the teacher's domain-account REST
// surface to spec.md §6.2's fixed route list.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/wopr-systems/beacon-orchestrator/internal/dunning"
	"github.com/wopr-systems/beacon-orchestrator/internal/job"
	"github.com/wopr-systems/beacon-orchestrator/internal/metrics"
	"github.com/wopr-systems/beacon-orchestrator/internal/progress"
	"github.com/wopr-systems/beacon-orchestrator/internal/provider/registry"
	"github.com/wopr-systems/beacon-orchestrator/internal/store"
	"github.com/wopr-systems/beacon-orchestrator/internal/webhook"
	"github.com/wopr-systems/beacon-orchestrator/pkg/logger"
)

// ManualRateLimit is the budget spec.md §6.2 sets on POST /api/provision:
// 5 requests per minute, per caller address.
const ManualRateLimit = 5

// Dispatcher enqueues a newly created job for orchestration.
type Dispatcher interface {
	Enqueue(ctx context.Context, jobID string) error
}

// handler bundles every collaborator the HTTP surface depends on.
type handler struct {
	jobs        store.JobStore
	beacons     store.BeaconStore
	registry    *registry.Registry
	notifier    progress.Notifier
	dispatcher  Dispatcher
	manualLimit *webhook.RateLimiter
	baseDomain  string
	installer   *InstallerArchive
	startedAt   time.Time
	log         *logger.Logger
}

// Config bundles the construction arguments for NewHandler.
type Config struct {
	Jobs          store.JobStore
	Beacons       store.BeaconStore
	Registry      *registry.Registry
	Notifier      progress.Notifier
	Dispatcher    Dispatcher
	WebhookJobs   store.JobStore
	Dunning       *dunning.Engine
	Customers     webhook.CustomerLookup
	WebhookSecret string
	Tokens        []string
	JWTValidator  JWTValidator
	BaseDomain    string
	Installer     *InstallerArchive
	Log           *logger.Logger
}

// NewHandler returns an http.Handler exposing the full API surface, with
// authentication and CORS applied in the same order the teacher's
// service.go wires them: auth first (so it sees the real request),
// CORS preflight short-circuit, and the webhook route mounted unauthenticated.
func NewHandler(cfg Config) http.Handler {
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}

	h := &handler{
		jobs:        cfg.Jobs,
		beacons:     cfg.Beacons,
		registry:    cfg.Registry,
		notifier:    cfg.Notifier,
		dispatcher:  cfg.Dispatcher,
		manualLimit: webhook.NewRateLimiter(ManualRateLimit, time.Minute),
		baseDomain:  cfg.BaseDomain,
		installer:   cfg.Installer,
		startedAt:   time.Now().UTC(),
		log:         log,
	}

	webhookHandler := webhook.NewHandler(cfg.WebhookJobs, cfg.Beacons, cfg.Registry, cfg.Dunning, cfg.Dispatcher, cfg.Customers, cfg.WebhookSecret, log)

	r := mux.NewRouter()
	r.Handle("/api/webhook/stripe", webhookHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/provision", h.createProvision).Methods(http.MethodPost)
	r.HandleFunc("/api/provision/{id}/status", h.provisionStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/provision/{id}/stream", h.provisionStream).Methods(http.MethodGet)
	r.HandleFunc("/api/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/api/providers", h.listProviders).Methods(http.MethodGet)
	r.HandleFunc("/api/installer/latest.tar.gz", h.installerTarball).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	var wrapped http.Handler = r
	wrapped = wrapWithAuth(wrapped, cfg.Tokens, cfg.JWTValidator, log)
	wrapped = wrapWithCORS(wrapped)
	wrapped = wrapWithSecurityHeaders(wrapped)
	wrapped = wrapWithRecovery(wrapped, log)
	wrapped = wrapWithRequestLog(wrapped, log)
	wrapped = metrics.InstrumentHandler(wrapped)
	return wrapped
}

// createProvision implements POST /api/provision: authenticated manual
// job creation with the same parameters a webhook-derived job carries,
// rate-limited to ManualRateLimit/min per caller (spec.md §6.2).
func (h *handler) createProvision(w http.ResponseWriter, r *http.Request) {
	addr := webhook.ClientAddr(r)
	if !h.manualLimit.Allow(addr) {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, fmt.Errorf("rate limit exceeded"))
		return
	}

	var payload struct {
		CustomerID    string `json:"customer_id"`
		CustomerEmail string `json:"customer_email"`
		CustomerName  string `json:"customer_name"`
		Bundle        string `json:"bundle"`
		ProviderID    string `json:"provider_id"`
		Region        string `json:"region"`
		StorageTier   int    `json:"storage_tier"`
		CustomDomain  string `json:"custom_domain"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.CustomerEmail == "" || payload.Bundle == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("customer_email and bundle are required"))
		return
	}
	if payload.StorageTier == 0 {
		payload.StorageTier = 1
	}

	providerID := payload.ProviderID
	if providerID == "" {
		p, err := h.registry.Select(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		providerID = p.Name()
	} else if _, ok := h.registry.Get(providerID); !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown provider %q", providerID))
		return
	}

	j := &job.Job{
		ID:            uuid.NewString(),
		CustomerID:    payload.CustomerID,
		CustomerEmail: payload.CustomerEmail,
		CustomerName:  payload.CustomerName,
		Bundle:        payload.Bundle,
		ProviderID:    providerID,
		Region:        payload.Region,
		StorageTier:   payload.StorageTier,
		CustomDomain:  payload.CustomDomain,
		Phase:         job.PhasePaymentReceived,
	}
	if err := h.jobs.Create(r.Context(), j); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if h.dispatcher != nil {
		if err := h.dispatcher.Enqueue(r.Context(), j.ID); err != nil {
			h.log.WithField("job_id", j.ID).WithField("error", err.Error()).Error("httpapi: failed to enqueue manually created job")
		}
	}
	writeJSON(w, http.StatusCreated, j)
}

// provisionStatus implements GET /api/provision/{id}/status.
func (h *handler) provisionStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	j, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// provisionStream implements GET /api/provision/{id}/stream: an SSE
// stream of progress.Event values, delegating to internal/progress.Stream
// for the poll/notify/terminal-close logic (spec.md §4.6).
func (h *handler) provisionStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	err := progress.Stream(r.Context(), h.jobs, h.notifier, id, h.baseDomain, func(evt progress.Event) error {
		data, merr := json.Marshal(evt)
		if merr != nil {
			return merr
		}
		if _, werr := fmt.Fprintf(w, "data: %s\n\n", data); werr != nil {
			return werr
		}
		flusher.Flush()
		return nil
	})
	if err != nil && err != context.Canceled {
		h.log.WithField("job_id", id).WithField("error", err.Error()).Warn("httpapi: progress stream ended with error")
	}
}

// health implements GET /api/health: liveness, uptime, the number of
// registered providers, and whether a progress notifier is configured.
func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime_s":  int(time.Since(h.startedAt).Seconds()),
		"providers": len(h.registry.All()),
		"notifier":  h.notifier != nil,
	})
}

// listProviders implements GET /api/providers.
func (h *handler) listProviders(w http.ResponseWriter, r *http.Request) {
	providers := h.registry.All()
	out := make([]map[string]any, 0, len(providers))
	for _, p := range providers {
		out = append(out, map[string]any{
			"name":         p.Name(),
			"capabilities": p.Capabilities(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// installerTarball implements GET /api/installer/latest.tar.gz.
func (h *handler) installerTarball(w http.ResponseWriter, r *http.Request) {
	if h.installer == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("installer archive not configured"))
		return
	}
	data, err := h.installer.Build()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", `attachment; filename="wopr-installer-latest.tar.gz"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func decodeJSON(body io.ReadCloser, dst any) error {
	defer body.Close()
	dec := json.NewDecoder(io.LimitReader(body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
