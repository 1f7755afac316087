package provider

import (
	"context"
	"fmt"
	"time"
)

// Provider is the contract every VPS vendor adapter implements. Methods a
// vendor's API has no equivalent for return a NotImplemented error rather
// than being omitted, so the registry can always type-assert against the
// full interface.
type Provider interface {
	Name() string
	Capabilities() Capabilities

	ListPlans(ctx context.Context) ([]Plan, error)
	ListRegions(ctx context.Context) ([]Region, error)

	Provision(ctx context.Context, cfg ProvisionConfig) (*Instance, error)
	Destroy(ctx context.Context, instanceID string) error
	GetInstance(ctx context.Context, instanceID string) (*Instance, error)
	ListInstances(ctx context.Context) ([]Instance, error)
	GetStatus(ctx context.Context, instanceID string) (InstanceStatus, error)

	Start(ctx context.Context, instanceID string) error
	Stop(ctx context.Context, instanceID string) error
	Reboot(ctx context.Context, instanceID string) error

	ListSSHKeys(ctx context.Context) ([]SSHKey, error)
	AddSSHKey(ctx context.Context, name, publicKey string) (*SSHKey, error)
	RemoveSSHKey(ctx context.Context, keyID string) error

	WaitForReady(ctx context.Context, instanceID string, timeout time.Duration) (*Instance, error)
}

// PollInterval is the default interval WaitForReadyPoll uses between status
// checks. WaitForReadyPoll always uses this interval; it takes no interval
// parameter.
const PollInterval = 10 * time.Second

// WaitForReadyPoll is a reusable WaitForReady implementation adapters can
// delegate to: poll GetStatus every PollInterval until the instance is
// Running or ctx/timeout expires.
func WaitForReadyPoll(ctx context.Context, p Provider, instanceID string, timeout time.Duration) (*Instance, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		inst, err := p.GetInstance(ctx, instanceID)
		if err != nil {
			return nil, err
		}
		switch inst.Status {
		case StatusRunning:
			if inst.PublicIPv4 != "" {
				return inst, nil
			}
		case StatusError, StatusTerminated:
			return nil, NewError(p.Name(), "WaitForReady", KindFatal,
				fmt.Errorf("instance %s entered status %s while waiting", instanceID, inst.Status))
		}

		if time.Now().After(deadline) {
			return nil, NewError(p.Name(), "WaitForReady", KindTransient,
				fmt.Errorf("instance %s not ready after %s", instanceID, timeout))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
