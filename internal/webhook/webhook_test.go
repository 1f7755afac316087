package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wopr-systems/beacon-orchestrator/internal/provider"
	"github.com/wopr-systems/beacon-orchestrator/internal/provider/registry"
	"github.com/wopr-systems/beacon-orchestrator/internal/store/jsonstore"
)

const testSecret = "whtest_secret"

func signBody(body []byte, secret string) string {
	ts := time.Now().Unix()
	signedString := strconv.FormatInt(ts, 10) + "." + string(body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedString))
	sig := hex.EncodeToString(mac.Sum(nil))
	return "t=" + strconv.FormatInt(ts, 10) + ",v1=" + sig
}

type recordingDispatcher struct {
	enqueued []string
}

func (d *recordingDispatcher) Enqueue(ctx context.Context, jobID string) error {
	d.enqueued = append(d.enqueued, jobID)
	return nil
}

type fakeProvider struct{ name string }

func (f *fakeProvider) Name() string                        { return f.name }
func (f *fakeProvider) Capabilities() provider.Capabilities { return provider.Capabilities{} }
func (f *fakeProvider) ListPlans(ctx context.Context) ([]provider.Plan, error) { return nil, nil }
func (f *fakeProvider) ListRegions(ctx context.Context) ([]provider.Region, error) {
	return nil, nil
}
func (f *fakeProvider) Provision(ctx context.Context, cfg provider.ProvisionConfig) (*provider.Instance, error) {
	return nil, provider.NotImplemented(f.name, "Provision")
}
func (f *fakeProvider) Destroy(ctx context.Context, id string) error { return nil }
func (f *fakeProvider) GetInstance(ctx context.Context, id string) (*provider.Instance, error) {
	return nil, nil
}
func (f *fakeProvider) ListInstances(ctx context.Context) ([]provider.Instance, error) {
	return nil, nil
}
func (f *fakeProvider) GetStatus(ctx context.Context, id string) (provider.InstanceStatus, error) {
	return "", nil
}
func (f *fakeProvider) Start(ctx context.Context, id string) error  { return nil }
func (f *fakeProvider) Stop(ctx context.Context, id string) error  { return nil }
func (f *fakeProvider) Reboot(ctx context.Context, id string) error { return nil }
func (f *fakeProvider) ListSSHKeys(ctx context.Context) ([]provider.SSHKey, error) {
	return nil, nil
}
func (f *fakeProvider) AddSSHKey(ctx context.Context, name, key string) (*provider.SSHKey, error) {
	return nil, nil
}
func (f *fakeProvider) RemoveSSHKey(ctx context.Context, id string) error { return nil }
func (f *fakeProvider) WaitForReady(ctx context.Context, id string, timeout time.Duration) (*provider.Instance, error) {
	return nil, nil
}

func newTestHandler(t *testing.T) (*Handler, *recordingDispatcher) {
	t.Helper()
	jobs, err := jsonstore.NewJobStore(t.TempDir())
	require.NoError(t, err)
	beacons, err := jsonstore.NewBeaconStore(t.TempDir())
	require.NoError(t, err)

	reg := registry.New(nil)
	reg.Register(&fakeProvider{name: "hetzner"}, 1)

	dispatcher := &recordingDispatcher{}
	h := NewHandler(jobs, beacons, reg, nil, dispatcher, nil, testSecret, nil)
	return h, dispatcher
}

func TestServeHTTP_RejectsBadSignature(t *testing.T) {
	h, _ := newTestHandler(t)
	body := []byte(`{"type":"checkout.session.completed","data":{"object":{}}}`)

	req := httptest.NewRequest(http.MethodPost, "/api/webhook/stripe", strings.NewReader(string(body)))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServeHTTP_CheckoutCompletedCreatesJobAndEnqueues(t *testing.T) {
	h, dispatcher := newTestHandler(t)
	body := []byte(`{"type":"checkout.session.completed","data":{"object":{
		"id":"cs_test_1","customer":"cus_1","subscription":"sub_1",
		"metadata":{"bundle":"sovereign-starter","tier":"1","email":"a@b.c","provider":"hetzner"}
	}}}`)

	req := httptest.NewRequest(http.MethodPost, "/api/webhook/stripe", strings.NewReader(string(body)))
	req.Header.Set("Stripe-Signature", signBody(body, testSecret))
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"received":true`)
	require.Len(t, dispatcher.enqueued, 1)
}

func TestServeHTTP_DuplicateSessionReusesJob(t *testing.T) {
	h, dispatcher := newTestHandler(t)
	body := []byte(`{"type":"checkout.session.completed","data":{"object":{
		"id":"cs_test_dup","customer":"cus_1","subscription":"sub_1",
		"metadata":{"bundle":"sovereign-starter","tier":"1","email":"a@b.c","provider":"hetzner"}
	}}}`)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/webhook/stripe", strings.NewReader(string(body)))
		req.Header.Set("Stripe-Signature", signBody(body, testSecret))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Len(t, dispatcher.enqueued, 1)
}

func TestServeHTTP_RateLimitExceeded(t *testing.T) {
	h, _ := newTestHandler(t)
	h.limiter = NewRateLimiter(1, time.Minute)
	body := []byte(`{"type":"unhandled.event","data":{"object":{}}}`)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/webhook/stripe", strings.NewReader(string(body)))
		req.Header.Set("Stripe-Signature", signBody(body, testSecret))
		req.RemoteAddr = "203.0.113.5:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if i == 0 {
			assert.Equal(t, http.StatusOK, w.Code)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, w.Code)
		}
	}
}
