package adapters

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/wopr-systems/beacon-orchestrator/internal/provider"
)

var linodeStatusMap = map[string]provider.InstanceStatus{
	"provisioning": provider.StatusProvisioning,
	"booting":      provider.StatusProvisioning,
	"running":      provider.StatusRunning,
	"offline":      provider.StatusStopped,
	"shutting_down": provider.StatusRunning,
	"rebooting":    provider.StatusRebooting,
	"deleting":     provider.StatusTerminated,
}

const linodeBaseURL = "https://api.linode.com/v4"

// Linode is a full REST-based adapter against the Linode API v4.
type Linode struct {
	client *restClient
}

func NewLinode(token string, hc *http.Client) *Linode {
	return &Linode{client: newRESTClient("linode", linodeBaseURL, token, hc)}
}

func (l *Linode) Name() string { return "linode" }

func (l *Linode) Capabilities() provider.Capabilities {
	return provider.Capabilities{SupportsIPv6: true, SupportsCloudInit: true, SupportsSSHKeys: true}
}

type linodeType struct {
	ID      string  `json:"id"`
	Label   string  `json:"label"`
	Vcpus   int     `json:"vcpus"`
	Memory  int     `json:"memory"`
	Disk    int     `json:"disk"`
	Price   struct {
		Monthly float64 `json:"monthly"`
	} `json:"price"`
}

func (l *Linode) ListPlans(ctx context.Context) ([]provider.Plan, error) {
	var resp struct {
		Data []linodeType `json:"data"`
	}
	if err := l.client.do(ctx, "ListPlans", http.MethodGet, "/linode/types", nil, &resp); err != nil {
		return nil, err
	}
	plans := make([]provider.Plan, 0, len(resp.Data))
	for _, t := range resp.Data {
		p := provider.Plan{
			ID: t.ID, ProviderName: l.Name(), Name: t.Label,
			CPUCores: t.Vcpus, RAMGB: t.Memory / 1024, DiskGB: t.Disk / 1024,
			MonthlyPriceUSD: t.Price.Monthly,
		}
		p.Tier = classifyTier(p)
		plans = append(plans, p)
	}
	return plans, nil
}

func (l *Linode) ListRegions(ctx context.Context) ([]provider.Region, error) {
	var resp struct {
		Data []struct {
			ID      string `json:"id"`
			Label   string `json:"label"`
			Country string `json:"country"`
		} `json:"data"`
	}
	if err := l.client.do(ctx, "ListRegions", http.MethodGet, "/regions", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]provider.Region, 0, len(resp.Data))
	for _, r := range resp.Data {
		out = append(out, provider.Region{ID: r.ID, Name: r.Label, Country: r.Country})
	}
	return out, nil
}

type linodeInstance struct {
	ID      int      `json:"id"`
	Label   string   `json:"label"`
	Status  string   `json:"status"`
	Created string   `json:"created"`
	IPv4    []string `json:"ipv4"`
	IPv6    string   `json:"ipv6"`
}

func (l *Linode) convert(n linodeInstance) *provider.Instance {
	status, ok := linodeStatusMap[n.Status]
	if !ok {
		status = provider.StatusUnknown
	}
	created, _ := time.Parse(time.RFC3339, n.Created)
	inst := &provider.Instance{
		ID: fmt.Sprintf("%d", n.ID), ProviderName: l.Name(),
		Status: status, Hostname: n.Label, CreatedAt: created, PublicIPv6: n.IPv6,
	}
	if len(n.IPv4) > 0 {
		inst.PublicIPv4 = n.IPv4[0]
	}
	return inst
}

func (l *Linode) Provision(ctx context.Context, cfg provider.ProvisionConfig) (*provider.Instance, error) {
	body := map[string]any{
		"label": cfg.Hostname, "type": cfg.PlanID, "region": cfg.RegionID,
		"image": "linode/debian12", "metadata": map[string]string{"user_data": cfg.UserData},
		"authorized_keys": cfg.SSHKeyIDs, "tags": cfg.Tags,
	}
	var inst linodeInstance
	if err := l.client.do(ctx, "Provision", http.MethodPost, "/linode/instances", body, &inst); err != nil {
		return nil, err
	}
	return l.convert(inst), nil
}

func (l *Linode) Destroy(ctx context.Context, instanceID string) error {
	return l.client.do(ctx, "Destroy", http.MethodDelete, "/linode/instances/"+instanceID, nil, nil)
}

func (l *Linode) GetInstance(ctx context.Context, instanceID string) (*provider.Instance, error) {
	var inst linodeInstance
	if err := l.client.do(ctx, "GetInstance", http.MethodGet, "/linode/instances/"+instanceID, nil, &inst); err != nil {
		return nil, err
	}
	return l.convert(inst), nil
}

func (l *Linode) ListInstances(ctx context.Context) ([]provider.Instance, error) {
	var resp struct {
		Data []linodeInstance `json:"data"`
	}
	if err := l.client.do(ctx, "ListInstances", http.MethodGet, "/linode/instances", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]provider.Instance, 0, len(resp.Data))
	for _, n := range resp.Data {
		out = append(out, *l.convert(n))
	}
	return out, nil
}

func (l *Linode) GetStatus(ctx context.Context, instanceID string) (provider.InstanceStatus, error) {
	inst, err := l.GetInstance(ctx, instanceID)
	if err != nil {
		return "", err
	}
	return inst.Status, nil
}

func (l *Linode) Start(ctx context.Context, instanceID string) error {
	return l.client.do(ctx, "Start", http.MethodPost, "/linode/instances/"+instanceID+"/boot", nil, nil)
}

func (l *Linode) Stop(ctx context.Context, instanceID string) error {
	return l.client.do(ctx, "Stop", http.MethodPost, "/linode/instances/"+instanceID+"/shutdown", nil, nil)
}

func (l *Linode) Reboot(ctx context.Context, instanceID string) error {
	return l.client.do(ctx, "Reboot", http.MethodPost, "/linode/instances/"+instanceID+"/reboot", nil, nil)
}

func (l *Linode) ListSSHKeys(ctx context.Context) ([]provider.SSHKey, error) {
	var resp struct {
		Data []struct {
			ID    int    `json:"id"`
			Label string `json:"label"`
			SSHKey string `json:"ssh_key"`
		} `json:"data"`
	}
	if err := l.client.do(ctx, "ListSSHKeys", http.MethodGet, "/profile/sshkeys", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]provider.SSHKey, 0, len(resp.Data))
	for _, k := range resp.Data {
		out = append(out, provider.SSHKey{ID: fmt.Sprintf("%d", k.ID), Name: k.Label, PublicKey: k.SSHKey})
	}
	return out, nil
}

func (l *Linode) AddSSHKey(ctx context.Context, name, publicKey string) (*provider.SSHKey, error) {
	body := map[string]any{"label": name, "ssh_key": publicKey}
	var resp struct {
		ID int `json:"id"`
	}
	if err := l.client.do(ctx, "AddSSHKey", http.MethodPost, "/profile/sshkeys", body, &resp); err != nil {
		return nil, err
	}
	return &provider.SSHKey{ID: fmt.Sprintf("%d", resp.ID), Name: name, PublicKey: publicKey}, nil
}

func (l *Linode) RemoveSSHKey(ctx context.Context, keyID string) error {
	return l.client.do(ctx, "RemoveSSHKey", http.MethodDelete, "/profile/sshkeys/"+keyID, nil, nil)
}

func (l *Linode) WaitForReady(ctx context.Context, instanceID string, timeout time.Duration) (*provider.Instance, error) {
	return provider.WaitForReadyPoll(ctx, l, instanceID, timeout)
}
