package adapters

import (
	"context"
	"net/http"
	"time"

	"github.com/wopr-systems/beacon-orchestrator/internal/provider"
)

var ovhStatusMap = map[string]provider.InstanceStatus{
	"BUILD":    provider.StatusProvisioning,
	"ACTIVE":   provider.StatusRunning,
	"SHUTOFF":  provider.StatusStopped,
	"REBOOT":   provider.StatusRebooting,
	"ERROR":    provider.StatusError,
	"DELETED":  provider.StatusTerminated,
}

const ovhBaseURL = "https://api.ovh.com/1.0"

// OVH is a full REST-based adapter against OVHcloud's public-cloud
// instance API, authenticated with a pre-issued consumer key bearer token.
type OVH struct {
	client *restClient
}

func NewOVH(token string, hc *http.Client) *OVH {
	return &OVH{client: newRESTClient("ovh", ovhBaseURL, token, hc)}
}

func (o *OVH) Name() string { return "ovh" }

func (o *OVH) Capabilities() provider.Capabilities {
	return provider.Capabilities{SupportsCloudInit: true, SupportsSSHKeys: true}
}

type ovhFlavor struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Vcpus int     `json:"vcpus"`
	RAM   int     `json:"ram"`
	Disk  int     `json:"disk"`
}

func (o *OVH) ListPlans(ctx context.Context) ([]provider.Plan, error) {
	var flavors []ovhFlavor
	if err := o.client.do(ctx, "ListPlans", http.MethodGet, "/cloud/flavor", nil, &flavors); err != nil {
		return nil, err
	}
	plans := make([]provider.Plan, 0, len(flavors))
	for _, f := range flavors {
		p := provider.Plan{ID: f.ID, ProviderName: o.Name(), Name: f.Name, CPUCores: f.Vcpus, RAMGB: f.RAM / 1024, DiskGB: f.Disk}
		p.Tier = classifyTier(p)
		plans = append(plans, p)
	}
	return plans, nil
}

func (o *OVH) ListRegions(ctx context.Context) ([]provider.Region, error) {
	var regionIDs []string
	if err := o.client.do(ctx, "ListRegions", http.MethodGet, "/cloud/region", nil, &regionIDs); err != nil {
		return nil, err
	}
	out := make([]provider.Region, 0, len(regionIDs))
	for _, id := range regionIDs {
		out = append(out, provider.Region{ID: id, Name: id})
	}
	return out, nil
}

type ovhInstance struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Created string `json:"created"`
	IPAddresses []struct {
		IP      string `json:"ip"`
		Type    string `json:"type"`
		Version int    `json:"version"`
	} `json:"ipAddresses"`
}

func (o *OVH) convert(in ovhInstance) *provider.Instance {
	status, ok := ovhStatusMap[in.Status]
	if !ok {
		status = provider.StatusUnknown
	}
	created, _ := time.Parse(time.RFC3339, in.Created)
	inst := &provider.Instance{ID: in.ID, ProviderName: o.Name(), Status: status, Hostname: in.Name, CreatedAt: created}
	for _, ip := range in.IPAddresses {
		if ip.Type != "public" {
			continue
		}
		if ip.Version == 6 {
			inst.PublicIPv6 = ip.IP
		} else {
			inst.PublicIPv4 = ip.IP
		}
	}
	return inst
}

func (o *OVH) Provision(ctx context.Context, cfg provider.ProvisionConfig) (*provider.Instance, error) {
	body := map[string]any{
		"name": cfg.Hostname, "flavorId": cfg.PlanID, "region": cfg.RegionID,
		"imageId": "debian-12", "userData": cfg.UserData, "sshKeyId": firstOrEmpty(cfg.SSHKeyIDs),
	}
	var inst ovhInstance
	if err := o.client.do(ctx, "Provision", http.MethodPost, "/cloud/instance", body, &inst); err != nil {
		return nil, err
	}
	return o.convert(inst), nil
}

func firstOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

func (o *OVH) Destroy(ctx context.Context, instanceID string) error {
	return o.client.do(ctx, "Destroy", http.MethodDelete, "/cloud/instance/"+instanceID, nil, nil)
}

func (o *OVH) GetInstance(ctx context.Context, instanceID string) (*provider.Instance, error) {
	var inst ovhInstance
	if err := o.client.do(ctx, "GetInstance", http.MethodGet, "/cloud/instance/"+instanceID, nil, &inst); err != nil {
		return nil, err
	}
	return o.convert(inst), nil
}

func (o *OVH) ListInstances(ctx context.Context) ([]provider.Instance, error) {
	var instances []ovhInstance
	if err := o.client.do(ctx, "ListInstances", http.MethodGet, "/cloud/instance", nil, &instances); err != nil {
		return nil, err
	}
	out := make([]provider.Instance, 0, len(instances))
	for _, in := range instances {
		out = append(out, *o.convert(in))
	}
	return out, nil
}

func (o *OVH) GetStatus(ctx context.Context, instanceID string) (provider.InstanceStatus, error) {
	inst, err := o.GetInstance(ctx, instanceID)
	if err != nil {
		return "", err
	}
	return inst.Status, nil
}

func (o *OVH) Start(ctx context.Context, instanceID string) error {
	return o.client.do(ctx, "Start", http.MethodPost, "/cloud/instance/"+instanceID+"/start", nil, nil)
}

func (o *OVH) Stop(ctx context.Context, instanceID string) error {
	return o.client.do(ctx, "Stop", http.MethodPost, "/cloud/instance/"+instanceID+"/stop", nil, nil)
}

func (o *OVH) Reboot(ctx context.Context, instanceID string) error {
	body := map[string]any{"type": "soft"}
	return o.client.do(ctx, "Reboot", http.MethodPost, "/cloud/instance/"+instanceID+"/reboot", body, nil)
}

func (o *OVH) ListSSHKeys(ctx context.Context) ([]provider.SSHKey, error) {
	var keys []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		PublicKey string `json:"publicKey"`
	}
	if err := o.client.do(ctx, "ListSSHKeys", http.MethodGet, "/cloud/sshkey", nil, &keys); err != nil {
		return nil, err
	}
	out := make([]provider.SSHKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, provider.SSHKey{ID: k.ID, Name: k.Name, PublicKey: k.PublicKey})
	}
	return out, nil
}

func (o *OVH) AddSSHKey(ctx context.Context, name, publicKey string) (*provider.SSHKey, error) {
	body := map[string]any{"name": name, "publicKey": publicKey}
	var resp struct {
		ID string `json:"id"`
	}
	if err := o.client.do(ctx, "AddSSHKey", http.MethodPost, "/cloud/sshkey", body, &resp); err != nil {
		return nil, err
	}
	return &provider.SSHKey{ID: resp.ID, Name: name, PublicKey: publicKey}, nil
}

func (o *OVH) RemoveSSHKey(ctx context.Context, keyID string) error {
	return o.client.do(ctx, "RemoveSSHKey", http.MethodDelete, "/cloud/sshkey/"+keyID, nil, nil)
}

func (o *OVH) WaitForReady(ctx context.Context, instanceID string, timeout time.Duration) (*provider.Instance, error) {
	return provider.WaitForReadyPoll(ctx, o, instanceID, timeout)
}
