package adapters

import (
	"context"
	"net/http"
	"time"

	"github.com/wopr-systems/beacon-orchestrator/internal/provider"
)

var upcloudStatusMap = map[string]provider.InstanceStatus{
	"maintenance": provider.StatusProvisioning,
	"started":     provider.StatusRunning,
	"stopped":     provider.StatusStopped,
	"error":       provider.StatusError,
}

const upcloudBaseURL = "https://api.upcloud.com/1.3"

// UpCloud is a full REST-based adapter. UpCloud uses HTTP basic auth
// rather than a bearer token; the "token" here is the pre-combined
// "user:password" credential, consistent with how the other REST adapters
// take a single opaque credential string.
type UpCloud struct {
	client *restClient
}

func NewUpCloud(basicAuthToken string, hc *http.Client) *UpCloud {
	return &UpCloud{client: newRESTClient("upcloud", upcloudBaseURL, basicAuthToken, hc)}
}

func (u *UpCloud) Name() string { return "upcloud" }

func (u *UpCloud) Capabilities() provider.Capabilities {
	return provider.Capabilities{SupportsCloudInit: true, SupportsSSHKeys: true}
}

type upcloudPlan struct {
	Name        string `json:"name"`
	CoreNumber  int    `json:"core_number"`
	MemoryAmount int   `json:"memory_amount"`
	StorageSize int    `json:"storage_size"`
	PublicPrice float64 `json:"-"`
}

func (u *UpCloud) ListPlans(ctx context.Context) ([]provider.Plan, error) {
	var resp struct {
		Plans struct {
			Plan []upcloudPlan `json:"plan"`
		} `json:"plans"`
	}
	if err := u.client.do(ctx, "ListPlans", http.MethodGet, "/plan", nil, &resp); err != nil {
		return nil, err
	}
	plans := make([]provider.Plan, 0, len(resp.Plans.Plan))
	for _, pl := range resp.Plans.Plan {
		p := provider.Plan{
			ID: pl.Name, ProviderName: u.Name(), Name: pl.Name,
			CPUCores: pl.CoreNumber, RAMGB: pl.MemoryAmount / 1024, DiskGB: pl.StorageSize,
		}
		p.Tier = classifyTier(p)
		plans = append(plans, p)
	}
	return plans, nil
}

func (u *UpCloud) ListRegions(ctx context.Context) ([]provider.Region, error) {
	var resp struct {
		Zones struct {
			Zone []struct {
				ID          string `json:"id"`
				Description string `json:"description"`
			} `json:"zone"`
		} `json:"zones"`
	}
	if err := u.client.do(ctx, "ListRegions", http.MethodGet, "/zone", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]provider.Region, 0, len(resp.Zones.Zone))
	for _, z := range resp.Zones.Zone {
		out = append(out, provider.Region{ID: z.ID, Name: z.Description})
	}
	return out, nil
}

type upcloudServer struct {
	UUID  string `json:"uuid"`
	Title string `json:"title"`
	State string `json:"state"`
	IPAddresses struct {
		IPAddress []struct {
			Address string `json:"address"`
			Family  string `json:"family"`
			Access  string `json:"access"`
		} `json:"ip_address"`
	} `json:"ip_addresses"`
}

func (u *UpCloud) convert(s upcloudServer) *provider.Instance {
	status, ok := upcloudStatusMap[s.State]
	if !ok {
		status = provider.StatusUnknown
	}
	inst := &provider.Instance{ID: s.UUID, ProviderName: u.Name(), Status: status, Hostname: s.Title}
	for _, ip := range s.IPAddresses.IPAddress {
		if ip.Access != "public" {
			continue
		}
		if ip.Family == "IPv6" {
			inst.PublicIPv6 = ip.Address
		} else {
			inst.PublicIPv4 = ip.Address
		}
	}
	return inst
}

func (u *UpCloud) Provision(ctx context.Context, cfg provider.ProvisionConfig) (*provider.Instance, error) {
	body := map[string]any{
		"server": map[string]any{
			"title": cfg.Hostname, "plan": cfg.PlanID, "zone": cfg.RegionID,
			"login_user": map[string]any{"username": "root", "ssh_keys": map[string]any{"ssh_key": cfg.SSHKeyIDs}},
			"metadata":   "on",
			"user_data":  cfg.UserData,
		},
	}
	var resp struct {
		Server upcloudServer `json:"server"`
	}
	if err := u.client.do(ctx, "Provision", http.MethodPost, "/server", body, &resp); err != nil {
		return nil, err
	}
	return u.convert(resp.Server), nil
}

func (u *UpCloud) Destroy(ctx context.Context, instanceID string) error {
	return u.client.do(ctx, "Destroy", http.MethodDelete, "/server/"+instanceID+"?storages=1", nil, nil)
}

func (u *UpCloud) GetInstance(ctx context.Context, instanceID string) (*provider.Instance, error) {
	var resp struct {
		Server upcloudServer `json:"server"`
	}
	if err := u.client.do(ctx, "GetInstance", http.MethodGet, "/server/"+instanceID, nil, &resp); err != nil {
		return nil, err
	}
	return u.convert(resp.Server), nil
}

func (u *UpCloud) ListInstances(ctx context.Context) ([]provider.Instance, error) {
	var resp struct {
		Servers struct {
			Server []upcloudServer `json:"server"`
		} `json:"servers"`
	}
	if err := u.client.do(ctx, "ListInstances", http.MethodGet, "/server", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]provider.Instance, 0, len(resp.Servers.Server))
	for _, s := range resp.Servers.Server {
		out = append(out, *u.convert(s))
	}
	return out, nil
}

func (u *UpCloud) GetStatus(ctx context.Context, instanceID string) (provider.InstanceStatus, error) {
	inst, err := u.GetInstance(ctx, instanceID)
	if err != nil {
		return "", err
	}
	return inst.Status, nil
}

func (u *UpCloud) Start(ctx context.Context, instanceID string) error {
	return u.client.do(ctx, "Start", http.MethodPost, "/server/"+instanceID+"/start", nil, nil)
}

func (u *UpCloud) Stop(ctx context.Context, instanceID string) error {
	body := map[string]any{"stop_server": map[string]any{"stop_type": "soft"}}
	return u.client.do(ctx, "Stop", http.MethodPost, "/server/"+instanceID+"/stop", body, nil)
}

func (u *UpCloud) Reboot(ctx context.Context, instanceID string) error {
	body := map[string]any{"restart_server": map[string]any{"stop_type": "soft"}}
	return u.client.do(ctx, "Reboot", http.MethodPost, "/server/"+instanceID+"/restart", body, nil)
}

// ListSSHKeys is not supported: UpCloud manages SSH keys inline at server
// creation rather than as standalone account-level resources.
func (u *UpCloud) ListSSHKeys(ctx context.Context) ([]provider.SSHKey, error) {
	return nil, provider.NotImplemented(u.Name(), "ListSSHKeys")
}

func (u *UpCloud) AddSSHKey(ctx context.Context, name, publicKey string) (*provider.SSHKey, error) {
	return nil, provider.NotImplemented(u.Name(), "AddSSHKey")
}

func (u *UpCloud) RemoveSSHKey(ctx context.Context, keyID string) error {
	return provider.NotImplemented(u.Name(), "RemoveSSHKey")
}

func (u *UpCloud) WaitForReady(ctx context.Context, instanceID string, timeout time.Duration) (*provider.Instance, error) {
	return provider.WaitForReadyPoll(ctx, u, instanceID, timeout)
}
