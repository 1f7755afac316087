package dunning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wopr-systems/beacon-orchestrator/internal/job"
	"github.com/wopr-systems/beacon-orchestrator/internal/mail"
	"github.com/wopr-systems/beacon-orchestrator/internal/provider"
	"github.com/wopr-systems/beacon-orchestrator/internal/provider/registry"
	"github.com/wopr-systems/beacon-orchestrator/internal/store"
)

type fakeBeaconStore struct {
	beacons map[string]*job.Beacon
}

func newFakeBeaconStore(b *job.Beacon) *fakeBeaconStore {
	return &fakeBeaconStore{beacons: map[string]*job.Beacon{b.ID: b}}
}

func (f *fakeBeaconStore) Get(ctx context.Context, id string) (*job.Beacon, error) {
	b, ok := f.beacons[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return b, nil
}

func (f *fakeBeaconStore) GetBySubscription(ctx context.Context, subscriptionID string) (*job.Beacon, error) {
	for _, b := range f.beacons {
		if b.StripeSubscriptionID == subscriptionID {
			return b, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeBeaconStore) Create(ctx context.Context, b *job.Beacon) error {
	f.beacons[b.ID] = b
	return nil
}

func (f *fakeBeaconStore) UpdateStatus(ctx context.Context, id string, status job.BeaconStatus, at time.Time) error {
	b, ok := f.beacons[id]
	if !ok {
		return store.ErrNotFound
	}
	b.Status = status
	if status == job.BeaconStatusSuspended {
		t := at
		b.SuspendedAt = &t
	} else {
		b.SuspendedAt = nil
	}
	return nil
}

func (f *fakeBeaconStore) UpdateDNSRecords(ctx context.Context, id string, recordIDs map[string]string) error {
	b, ok := f.beacons[id]
	if !ok {
		return store.ErrNotFound
	}
	b.DNSRecordIDs = recordIDs
	return nil
}

func (f *fakeBeaconStore) UpdateBundleTier(ctx context.Context, id string, bundle string, tier int) error {
	b, ok := f.beacons[id]
	if !ok {
		return store.ErrNotFound
	}
	b.Bundle = bundle
	b.StorageTier = tier
	return nil
}

type fakeFailureStore struct {
	failures map[string]*job.PaymentFailure
}

func newFakeFailureStore() *fakeFailureStore {
	return &fakeFailureStore{failures: map[string]*job.PaymentFailure{}}
}

func (f *fakeFailureStore) Get(ctx context.Context, subscriptionID string) (*job.PaymentFailure, error) {
	pf, ok := f.failures[subscriptionID]
	if !ok {
		return &job.PaymentFailure{SubscriptionID: subscriptionID}, nil
	}
	return pf, nil
}

func (f *fakeFailureStore) Increment(ctx context.Context, subscriptionID string, at time.Time) (*job.PaymentFailure, error) {
	pf, ok := f.failures[subscriptionID]
	if !ok {
		pf = &job.PaymentFailure{SubscriptionID: subscriptionID, FirstFailedAt: at}
		f.failures[subscriptionID] = pf
	}
	pf.FailureCount++
	pf.LastFailedAt = at
	return pf, nil
}

func (f *fakeFailureStore) Reset(ctx context.Context, subscriptionID string) error {
	delete(f.failures, subscriptionID)
	return nil
}

type fakeSender struct {
	sent []mail.Message
}

func (f *fakeSender) Send(ctx context.Context, msg mail.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

type fakeDunningProvider struct {
	destroyed []string
}

func (p *fakeDunningProvider) Name() string                        { return "fake" }
func (p *fakeDunningProvider) Capabilities() provider.Capabilities { return provider.Capabilities{} }
func (p *fakeDunningProvider) ListPlans(ctx context.Context) ([]provider.Plan, error) {
	return nil, nil
}
func (p *fakeDunningProvider) ListRegions(ctx context.Context) ([]provider.Region, error) {
	return nil, nil
}
func (p *fakeDunningProvider) Provision(ctx context.Context, cfg provider.ProvisionConfig) (*provider.Instance, error) {
	return nil, provider.NotImplemented("fake", "Provision")
}
func (p *fakeDunningProvider) Destroy(ctx context.Context, id string) error {
	p.destroyed = append(p.destroyed, id)
	return nil
}
func (p *fakeDunningProvider) GetInstance(ctx context.Context, id string) (*provider.Instance, error) {
	return nil, nil
}
func (p *fakeDunningProvider) ListInstances(ctx context.Context) ([]provider.Instance, error) {
	return nil, nil
}
func (p *fakeDunningProvider) GetStatus(ctx context.Context, id string) (provider.InstanceStatus, error) {
	return "", nil
}
func (p *fakeDunningProvider) Start(ctx context.Context, id string) error  { return nil }
func (p *fakeDunningProvider) Stop(ctx context.Context, id string) error  { return nil }
func (p *fakeDunningProvider) Reboot(ctx context.Context, id string) error { return nil }
func (p *fakeDunningProvider) ListSSHKeys(ctx context.Context) ([]provider.SSHKey, error) {
	return nil, nil
}
func (p *fakeDunningProvider) AddSSHKey(ctx context.Context, name, key string) (*provider.SSHKey, error) {
	return nil, nil
}
func (p *fakeDunningProvider) RemoveSSHKey(ctx context.Context, id string) error { return nil }
func (p *fakeDunningProvider) WaitForReady(ctx context.Context, id string, timeout time.Duration) (*provider.Instance, error) {
	return nil, nil
}

func TestHandlePaymentFailed_SuspendsAtThirdFailure(t *testing.T) {
	beacons := newFakeBeaconStore(&job.Beacon{ID: "b1", StripeSubscriptionID: "sub_1", Status: job.BeaconStatusActive})
	failures := newFakeFailureStore()
	sender := &fakeSender{}
	reg := registry.New(nil)

	e := New(beacons, failures, reg, nil, sender, nil)

	for i := 0; i < 2; i++ {
		require.NoError(t, e.HandlePaymentFailed(context.Background(), "sub_1", "a@b.c", time.Now()))
		assert.Equal(t, job.BeaconStatusActive, beacons.beacons["b1"].Status)
	}

	require.NoError(t, e.HandlePaymentFailed(context.Background(), "sub_1", "a@b.c", time.Now()))
	assert.Equal(t, job.BeaconStatusSuspended, beacons.beacons["b1"].Status)
	assert.Len(t, sender.sent, 3)
	assert.Equal(t, mail.TemplatePaymentFailed, sender.sent[2].Template)
}

func TestHandleSubscriptionActive_ResetsAndReactivates(t *testing.T) {
	beacons := newFakeBeaconStore(&job.Beacon{ID: "b1", StripeSubscriptionID: "sub_1", Status: job.BeaconStatusSuspended})
	failures := newFakeFailureStore()
	failures.failures["sub_1"] = &job.PaymentFailure{SubscriptionID: "sub_1", FailureCount: 3}
	reg := registry.New(nil)

	e := New(beacons, failures, reg, nil, nil, nil)

	require.NoError(t, e.HandleSubscriptionActive(context.Background(), "sub_1", time.Now()))
	assert.Equal(t, job.BeaconStatusActive, beacons.beacons["b1"].Status)
	assert.Nil(t, beacons.beacons["b1"].SuspendedAt)
	pf, err := failures.Get(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, 0, pf.FailureCount)
}

func TestHandleSubscriptionDeleted_RunsCleanupOrder(t *testing.T) {
	beacons := newFakeBeaconStore(&job.Beacon{
		ID:                   "b1",
		StripeSubscriptionID: "sub_1",
		ProviderID:           "fake",
		InstanceID:           "inst-1",
		Status:               job.BeaconStatusActive,
	})
	failures := newFakeFailureStore()
	reg := registry.New(nil)
	prov := &fakeDunningProvider{}
	reg.Register(prov, 1)
	sender := &fakeSender{}

	e := New(beacons, failures, reg, nil, sender, nil)

	require.NoError(t, e.HandleSubscriptionDeleted(context.Background(), "sub_1", "a@b.c", time.Now()))
	assert.Equal(t, job.BeaconStatusDecommissioned, beacons.beacons["b1"].Status)
	assert.Equal(t, []string{"inst-1"}, prov.destroyed)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, mail.TemplateSubscriptionCancelled, sender.sent[0].Template)
}
