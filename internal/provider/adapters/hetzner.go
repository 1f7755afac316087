package adapters

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/wopr-systems/beacon-orchestrator/internal/provider"
)

// hetznerStatusMap mirrors the original adapter's HETZNER_STATUS_MAP.
var hetznerStatusMap = map[string]provider.InstanceStatus{
	"initializing": provider.StatusProvisioning,
	"starting":     provider.StatusProvisioning,
	"running":      provider.StatusRunning,
	"stopping":     provider.StatusRunning,
	"off":          provider.StatusStopped,
	"deleting":     provider.StatusTerminated,
	"rebuilding":   provider.StatusProvisioning,
	"migrating":    provider.StatusRunning,
	"unknown":      provider.StatusUnknown,
}

const hetznerBaseURL = "https://api.hetzner.cloud/v1"

// Hetzner is the primary, SDK-flavored adapter: Hetzner's Cloud API is the
// cleanest and best-priced of the pack, so it is the first provider wired
// and the one every other adapter's plan catalog is compared against.
type Hetzner struct {
	client *restClient
}

// NewHetzner constructs a Hetzner adapter against the given API token. hc
// may be nil to use the package default HTTP client/timeout.
func NewHetzner(token string, hc *http.Client) *Hetzner {
	return &Hetzner{client: newRESTClient("hetzner", hetznerBaseURL, token, hc)}
}

func (h *Hetzner) Name() string { return "hetzner" }

func (h *Hetzner) Capabilities() provider.Capabilities {
	return provider.Capabilities{SupportsIPv6: true, SupportsCloudInit: true, SupportsSSHKeys: true, SupportsSnapshots: true}
}

type hetznerServerType struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Cores  int     `json:"cores"`
	Memory float64 `json:"memory"`
	Disk   int     `json:"disk"`
	Prices []struct {
		Location     string `json:"location"`
		PriceMonthly struct {
			Gross string `json:"gross"`
		} `json:"price_monthly"`
	} `json:"prices"`
}

func (h *Hetzner) ListPlans(ctx context.Context) ([]provider.Plan, error) {
	var resp struct {
		ServerTypes []hetznerServerType `json:"server_types"`
	}
	if err := h.client.do(ctx, "ListPlans", http.MethodGet, "/server_types", nil, &resp); err != nil {
		return nil, err
	}

	plans := make([]provider.Plan, 0, len(resp.ServerTypes))
	for _, st := range resp.ServerTypes {
		var price float64
		var regions []string
		for _, p := range st.Prices {
			regions = append(regions, p.Location)
			fmt.Sscanf(p.PriceMonthly.Gross, "%f", &price)
		}
		plan := provider.Plan{
			ID:               fmt.Sprintf("%d", st.ID),
			ProviderName:     h.Name(),
			Name:             st.Name,
			CPUCores:         st.Cores,
			RAMGB:            int(st.Memory),
			DiskGB:           st.Disk,
			MonthlyPriceUSD:  price,
			AvailableRegions: regions,
		}
		plan.Tier = classifyTier(plan)
		plans = append(plans, plan)
	}
	return plans, nil
}

func (h *Hetzner) ListRegions(ctx context.Context) ([]provider.Region, error) {
	var resp struct {
		Locations []struct {
			Name    string `json:"name"`
			City    string `json:"city"`
			Country string `json:"country"`
		} `json:"locations"`
	}
	if err := h.client.do(ctx, "ListRegions", http.MethodGet, "/locations", nil, &resp); err != nil {
		return nil, err
	}
	regions := make([]provider.Region, 0, len(resp.Locations))
	for _, l := range resp.Locations {
		regions = append(regions, provider.Region{ID: l.Name, Name: l.City, Country: l.Country})
	}
	return regions, nil
}

type hetznerServer struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Created    string `json:"created"`
	PublicNet  struct {
		IPv4 struct {
			IP string `json:"ip"`
		} `json:"ipv4"`
		IPv6 struct {
			IP string `json:"ip"`
		} `json:"ipv6"`
	} `json:"public_net"`
}

func (h *Hetzner) convert(s hetznerServer) *provider.Instance {
	status, ok := hetznerStatusMap[s.Status]
	if !ok {
		status = provider.StatusUnknown
	}
	created, _ := time.Parse(time.RFC3339, s.Created)
	return &provider.Instance{
		ID:           fmt.Sprintf("%d", s.ID),
		ProviderName: h.Name(),
		Status:       status,
		Hostname:     s.Name,
		PublicIPv4:   s.PublicNet.IPv4.IP,
		PublicIPv6:   s.PublicNet.IPv6.IP,
		CreatedAt:    created,
	}
}

func (h *Hetzner) Provision(ctx context.Context, cfg provider.ProvisionConfig) (*provider.Instance, error) {
	body := map[string]any{
		"name":        cfg.Hostname,
		"server_type": cfg.PlanID,
		"location":    cfg.RegionID,
		"image":       "debian-12",
		"user_data":   cfg.UserData,
		"ssh_keys":    cfg.SSHKeyIDs,
		"labels":      tagsToLabels(cfg.Tags),
	}
	var resp struct {
		Server hetznerServer `json:"server"`
	}
	if err := h.client.do(ctx, "Provision", http.MethodPost, "/servers", body, &resp); err != nil {
		return nil, err
	}
	return h.convert(resp.Server), nil
}

func tagsToLabels(tags []string) map[string]string {
	labels := make(map[string]string, len(tags))
	for _, t := range tags {
		labels[t] = "true"
	}
	return labels
}

func (h *Hetzner) Destroy(ctx context.Context, instanceID string) error {
	return h.client.do(ctx, "Destroy", http.MethodDelete, "/servers/"+instanceID, nil, nil)
}

func (h *Hetzner) GetInstance(ctx context.Context, instanceID string) (*provider.Instance, error) {
	var resp struct {
		Server hetznerServer `json:"server"`
	}
	if err := h.client.do(ctx, "GetInstance", http.MethodGet, "/servers/"+instanceID, nil, &resp); err != nil {
		return nil, err
	}
	return h.convert(resp.Server), nil
}

func (h *Hetzner) ListInstances(ctx context.Context) ([]provider.Instance, error) {
	var resp struct {
		Servers []hetznerServer `json:"servers"`
	}
	if err := h.client.do(ctx, "ListInstances", http.MethodGet, "/servers", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]provider.Instance, 0, len(resp.Servers))
	for _, s := range resp.Servers {
		out = append(out, *h.convert(s))
	}
	return out, nil
}

func (h *Hetzner) GetStatus(ctx context.Context, instanceID string) (provider.InstanceStatus, error) {
	inst, err := h.GetInstance(ctx, instanceID)
	if err != nil {
		return "", err
	}
	return inst.Status, nil
}

func (h *Hetzner) Start(ctx context.Context, instanceID string) error {
	return h.client.do(ctx, "Start", http.MethodPost, "/servers/"+instanceID+"/actions/poweron", nil, nil)
}

func (h *Hetzner) Stop(ctx context.Context, instanceID string) error {
	return h.client.do(ctx, "Stop", http.MethodPost, "/servers/"+instanceID+"/actions/poweroff", nil, nil)
}

func (h *Hetzner) Reboot(ctx context.Context, instanceID string) error {
	return h.client.do(ctx, "Reboot", http.MethodPost, "/servers/"+instanceID+"/actions/reboot", nil, nil)
}

func (h *Hetzner) ListSSHKeys(ctx context.Context) ([]provider.SSHKey, error) {
	var resp struct {
		SSHKeys []struct {
			ID          int    `json:"id"`
			Name        string `json:"name"`
			Fingerprint string `json:"fingerprint"`
			PublicKey   string `json:"public_key"`
		} `json:"ssh_keys"`
	}
	if err := h.client.do(ctx, "ListSSHKeys", http.MethodGet, "/ssh_keys", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]provider.SSHKey, 0, len(resp.SSHKeys))
	for _, k := range resp.SSHKeys {
		out = append(out, provider.SSHKey{ID: fmt.Sprintf("%d", k.ID), Name: k.Name, Fingerprint: k.Fingerprint, PublicKey: k.PublicKey})
	}
	return out, nil
}

func (h *Hetzner) AddSSHKey(ctx context.Context, name, publicKey string) (*provider.SSHKey, error) {
	parsed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(publicKey))
	if err != nil {
		return nil, provider.NewError(h.Name(), "AddSSHKey", provider.KindInvalidInput, fmt.Errorf("parse public key: %w", err))
	}
	fingerprint := ssh.FingerprintSHA256(parsed)

	body := map[string]any{"name": name, "public_key": publicKey}
	var resp struct {
		SSHKey struct {
			ID int `json:"id"`
		} `json:"ssh_key"`
	}
	if err := h.client.do(ctx, "AddSSHKey", http.MethodPost, "/ssh_keys", body, &resp); err != nil {
		return nil, err
	}
	return &provider.SSHKey{ID: fmt.Sprintf("%d", resp.SSHKey.ID), Name: name, Fingerprint: fingerprint, PublicKey: publicKey}, nil
}

func (h *Hetzner) RemoveSSHKey(ctx context.Context, keyID string) error {
	return h.client.do(ctx, "RemoveSSHKey", http.MethodDelete, "/ssh_keys/"+keyID, nil, nil)
}

func (h *Hetzner) WaitForReady(ctx context.Context, instanceID string, timeout time.Duration) (*provider.Instance, error) {
	return provider.WaitForReadyPoll(ctx, h, instanceID, timeout)
}

// classifyTier buckets a plan into a ResourceTier from its raw specs,
// used whenever an adapter's API doesn't natively carry a tier concept.
func classifyTier(p provider.Plan) provider.ResourceTier {
	switch {
	case p.MeetsTier(provider.TierVeryHigh):
		return provider.TierVeryHigh
	case p.MeetsTier(provider.TierHigh):
		return provider.TierHigh
	case p.MeetsTier(provider.TierMedium):
		return provider.TierMedium
	default:
		return provider.TierLow
	}
}
