package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wopr-systems/beacon-orchestrator/internal/job"
	"github.com/wopr-systems/beacon-orchestrator/internal/provider"
	"github.com/wopr-systems/beacon-orchestrator/internal/provider/registry"
	"github.com/wopr-systems/beacon-orchestrator/internal/store/jsonstore"
)

type fakeAPIProvider struct{ name string }

func (p *fakeAPIProvider) Name() string { return p.name }
func (p *fakeAPIProvider) Capabilities() provider.Capabilities {
	return provider.Capabilities{SupportsCloudInit: true}
}
func (p *fakeAPIProvider) ListPlans(ctx context.Context) ([]provider.Plan, error)     { return nil, nil }
func (p *fakeAPIProvider) ListRegions(ctx context.Context) ([]provider.Region, error) { return nil, nil }
func (p *fakeAPIProvider) Provision(ctx context.Context, cfg provider.ProvisionConfig) (*provider.Instance, error) {
	return &provider.Instance{ID: "inst-1", Status: provider.StatusProvisioning}, nil
}
func (p *fakeAPIProvider) Destroy(ctx context.Context, id string) error { return nil }
func (p *fakeAPIProvider) GetInstance(ctx context.Context, id string) (*provider.Instance, error) {
	return &provider.Instance{ID: id, Status: provider.StatusRunning}, nil
}
func (p *fakeAPIProvider) ListInstances(ctx context.Context) ([]provider.Instance, error) {
	return nil, nil
}
func (p *fakeAPIProvider) GetStatus(ctx context.Context, id string) (provider.InstanceStatus, error) {
	return provider.StatusRunning, nil
}
func (p *fakeAPIProvider) Start(ctx context.Context, id string) error  { return nil }
func (p *fakeAPIProvider) Stop(ctx context.Context, id string) error   { return nil }
func (p *fakeAPIProvider) Reboot(ctx context.Context, id string) error { return nil }
func (p *fakeAPIProvider) ListSSHKeys(ctx context.Context) ([]provider.SSHKey, error) {
	return nil, nil
}
func (p *fakeAPIProvider) AddSSHKey(ctx context.Context, name, key string) (*provider.SSHKey, error) {
	return nil, nil
}
func (p *fakeAPIProvider) RemoveSSHKey(ctx context.Context, id string) error { return nil }
func (p *fakeAPIProvider) WaitForReady(ctx context.Context, id string, timeout time.Duration) (*provider.Instance, error) {
	return p.GetInstance(ctx, id)
}

type fakeDispatcher struct{ enqueued []string }

func (d *fakeDispatcher) Enqueue(ctx context.Context, jobID string) error {
	d.enqueued = append(d.enqueued, jobID)
	return nil
}

func newTestHandler(t *testing.T, tokens []string) (http.Handler, *jsonstore.JobStore, *fakeDispatcher) {
	t.Helper()
	jobs, err := jsonstore.NewJobStore(t.TempDir())
	require.NoError(t, err)
	beacons, err := jsonstore.NewBeaconStore(t.TempDir())
	require.NoError(t, err)

	reg := registry.New(nil)
	reg.Register(&fakeAPIProvider{name: "hetzner"}, 1)

	dispatcher := &fakeDispatcher{}
	h := NewHandler(Config{
		Jobs:        jobs,
		Beacons:     beacons,
		Registry:    reg,
		Dispatcher:  dispatcher,
		WebhookJobs: jobs,
		BaseDomain:  "wopr.systems",
		Tokens:      tokens,
	})
	return h, jobs, dispatcher
}

func authedRequest(method, path, token string, body []byte) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealth_IsPublic(t *testing.T) {
	h, _, _ := newTestHandler(t, []string{"secret"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListProviders_RequiresAuth(t *testing.T) {
	h, _, _ := newTestHandler(t, []string{"secret"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/providers", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/providers", "secret", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "hetzner", got[0]["name"])
}

func TestCreateProvision_CreatesJobAndEnqueues(t *testing.T) {
	h, jobs, dispatcher := newTestHandler(t, []string{"secret"})

	payload, err := json.Marshal(map[string]any{
		"customer_email": "a@b.c",
		"bundle":         "sovereign-starter",
		"provider_id":    "hetzner",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/provision", "secret", payload))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created job.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, job.PhasePaymentReceived, created.Phase)
	assert.Equal(t, "hetzner", created.ProviderID)

	stored, err := jobs.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, stored.ID)
	assert.Contains(t, dispatcher.enqueued, created.ID)
}

func TestCreateProvision_RateLimited(t *testing.T) {
	h, _, _ := newTestHandler(t, []string{"secret"})
	payload, err := json.Marshal(map[string]any{
		"customer_email": "a@b.c",
		"bundle":         "sovereign-starter",
	})
	require.NoError(t, err)

	var last *httptest.ResponseRecorder
	for i := 0; i < ManualRateLimit+1; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/provision", "secret", payload))
		last = rec
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
}

func TestProvisionStatus_NotFound(t *testing.T) {
	h, _, _ := newTestHandler(t, []string{"secret"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/provision/missing/status", "secret", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInstallerTarball_BuildsFromIncludeList(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(`{"version":"1"}`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scripts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scripts", "install.sh"), []byte("#!/bin/bash\necho hi\n"), 0o755))

	arc := NewInstallerArchive(dir)
	data, err := arc.Build()
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, byte(0x1f), data[0]) // gzip magic byte
}
