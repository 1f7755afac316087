package adapters

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/wopr-systems/beacon-orchestrator/internal/provider"
)

var digitaloceanStatusMap = map[string]provider.InstanceStatus{
	"new":    provider.StatusProvisioning,
	"active": provider.StatusRunning,
	"off":    provider.StatusStopped,
	"archive": provider.StatusTerminated,
}

const digitaloceanBaseURL = "https://api.digitalocean.com/v2"

// DigitalOcean is a full REST-based adapter against the droplets API.
type DigitalOcean struct {
	client *restClient
}

func NewDigitalOcean(token string, hc *http.Client) *DigitalOcean {
	return &DigitalOcean{client: newRESTClient("digitalocean", digitaloceanBaseURL, token, hc)}
}

func (d *DigitalOcean) Name() string { return "digitalocean" }

func (d *DigitalOcean) Capabilities() provider.Capabilities {
	return provider.Capabilities{SupportsIPv6: true, SupportsCloudInit: true, SupportsSSHKeys: true, SupportsSnapshots: true}
}

type doSize struct {
	Slug         string   `json:"slug"`
	Memory       int      `json:"memory"`
	Vcpus        int      `json:"vcpus"`
	Disk         int      `json:"disk"`
	PriceMonthly float64  `json:"price_monthly"`
	Regions      []string `json:"regions"`
}

func (d *DigitalOcean) ListPlans(ctx context.Context) ([]provider.Plan, error) {
	var resp struct {
		Sizes []doSize `json:"sizes"`
	}
	if err := d.client.do(ctx, "ListPlans", http.MethodGet, "/sizes", nil, &resp); err != nil {
		return nil, err
	}
	plans := make([]provider.Plan, 0, len(resp.Sizes))
	for _, s := range resp.Sizes {
		p := provider.Plan{
			ID: s.Slug, ProviderName: d.Name(), Name: s.Slug,
			CPUCores: s.Vcpus, RAMGB: s.Memory / 1024, DiskGB: s.Disk,
			MonthlyPriceUSD: s.PriceMonthly, AvailableRegions: s.Regions,
		}
		p.Tier = classifyTier(p)
		plans = append(plans, p)
	}
	return plans, nil
}

func (d *DigitalOcean) ListRegions(ctx context.Context) ([]provider.Region, error) {
	var resp struct {
		Regions []struct {
			Slug string `json:"slug"`
			Name string `json:"name"`
		} `json:"regions"`
	}
	if err := d.client.do(ctx, "ListRegions", http.MethodGet, "/regions", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]provider.Region, 0, len(resp.Regions))
	for _, r := range resp.Regions {
		out = append(out, provider.Region{ID: r.Slug, Name: r.Name})
	}
	return out, nil
}

type doDroplet struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	CreatedAt string   `json:"created_at"`
	Networks  struct {
		V4 []struct {
			IPAddress string `json:"ip_address"`
			Type      string `json:"type"`
		} `json:"v4"`
		V6 []struct {
			IPAddress string `json:"ip_address"`
		} `json:"v6"`
	} `json:"networks"`
}

func (d *DigitalOcean) convert(drop doDroplet) *provider.Instance {
	status, ok := digitaloceanStatusMap[drop.Status]
	if !ok {
		status = provider.StatusUnknown
	}
	created, _ := time.Parse(time.RFC3339, drop.CreatedAt)
	inst := &provider.Instance{
		ID: fmt.Sprintf("%d", drop.ID), ProviderName: d.Name(),
		Status: status, Hostname: drop.Name, CreatedAt: created,
	}
	for _, v4 := range drop.Networks.V4 {
		if v4.Type == "public" {
			inst.PublicIPv4 = v4.IPAddress
		}
	}
	if len(drop.Networks.V6) > 0 {
		inst.PublicIPv6 = drop.Networks.V6[0].IPAddress
	}
	return inst
}

func (d *DigitalOcean) Provision(ctx context.Context, cfg provider.ProvisionConfig) (*provider.Instance, error) {
	body := map[string]any{
		"name": cfg.Hostname, "size": cfg.PlanID, "region": cfg.RegionID,
		"image": "debian-12-x64", "user_data": cfg.UserData, "tags": cfg.Tags,
		"ssh_keys": cfg.SSHKeyIDs, "ipv6": true,
	}
	var resp struct {
		Droplet doDroplet `json:"droplet"`
	}
	if err := d.client.do(ctx, "Provision", http.MethodPost, "/droplets", body, &resp); err != nil {
		return nil, err
	}
	return d.convert(resp.Droplet), nil
}

func (d *DigitalOcean) Destroy(ctx context.Context, instanceID string) error {
	return d.client.do(ctx, "Destroy", http.MethodDelete, "/droplets/"+instanceID, nil, nil)
}

func (d *DigitalOcean) GetInstance(ctx context.Context, instanceID string) (*provider.Instance, error) {
	var resp struct {
		Droplet doDroplet `json:"droplet"`
	}
	if err := d.client.do(ctx, "GetInstance", http.MethodGet, "/droplets/"+instanceID, nil, &resp); err != nil {
		return nil, err
	}
	return d.convert(resp.Droplet), nil
}

func (d *DigitalOcean) ListInstances(ctx context.Context) ([]provider.Instance, error) {
	var resp struct {
		Droplets []doDroplet `json:"droplets"`
	}
	if err := d.client.do(ctx, "ListInstances", http.MethodGet, "/droplets", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]provider.Instance, 0, len(resp.Droplets))
	for _, dr := range resp.Droplets {
		out = append(out, *d.convert(dr))
	}
	return out, nil
}

func (d *DigitalOcean) GetStatus(ctx context.Context, instanceID string) (provider.InstanceStatus, error) {
	inst, err := d.GetInstance(ctx, instanceID)
	if err != nil {
		return "", err
	}
	return inst.Status, nil
}

func (d *DigitalOcean) doAction(ctx context.Context, op, instanceID, actionType string) error {
	body := map[string]any{"type": actionType}
	return d.client.do(ctx, op, http.MethodPost, "/droplets/"+instanceID+"/actions", body, nil)
}

func (d *DigitalOcean) Start(ctx context.Context, instanceID string) error {
	return d.doAction(ctx, "Start", instanceID, "power_on")
}

func (d *DigitalOcean) Stop(ctx context.Context, instanceID string) error {
	return d.doAction(ctx, "Stop", instanceID, "power_off")
}

func (d *DigitalOcean) Reboot(ctx context.Context, instanceID string) error {
	return d.doAction(ctx, "Reboot", instanceID, "reboot")
}

func (d *DigitalOcean) ListSSHKeys(ctx context.Context) ([]provider.SSHKey, error) {
	var resp struct {
		SSHKeys []struct {
			ID          int    `json:"id"`
			Name        string `json:"name"`
			Fingerprint string `json:"fingerprint"`
			PublicKey   string `json:"public_key"`
		} `json:"ssh_keys"`
	}
	if err := d.client.do(ctx, "ListSSHKeys", http.MethodGet, "/account/keys", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]provider.SSHKey, 0, len(resp.SSHKeys))
	for _, k := range resp.SSHKeys {
		out = append(out, provider.SSHKey{ID: fmt.Sprintf("%d", k.ID), Name: k.Name, Fingerprint: k.Fingerprint, PublicKey: k.PublicKey})
	}
	return out, nil
}

func (d *DigitalOcean) AddSSHKey(ctx context.Context, name, publicKey string) (*provider.SSHKey, error) {
	body := map[string]any{"name": name, "public_key": publicKey}
	var resp struct {
		SSHKey struct {
			ID          int    `json:"id"`
			Fingerprint string `json:"fingerprint"`
		} `json:"ssh_key"`
	}
	if err := d.client.do(ctx, "AddSSHKey", http.MethodPost, "/account/keys", body, &resp); err != nil {
		return nil, err
	}
	return &provider.SSHKey{ID: fmt.Sprintf("%d", resp.SSHKey.ID), Name: name, Fingerprint: resp.SSHKey.Fingerprint, PublicKey: publicKey}, nil
}

func (d *DigitalOcean) RemoveSSHKey(ctx context.Context, keyID string) error {
	return d.client.do(ctx, "RemoveSSHKey", http.MethodDelete, "/account/keys/"+keyID, nil, nil)
}

func (d *DigitalOcean) WaitForReady(ctx context.Context, instanceID string, timeout time.Duration) (*provider.Instance, error) {
	return provider.WaitForReadyPoll(ctx, d, instanceID, timeout)
}
