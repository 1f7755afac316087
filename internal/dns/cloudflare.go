package dns

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const cloudflareBaseURL = "https://api.cloudflare.com/client/v4"

// Cloudflare is the shipped Registrar implementation: REST calls against
// a single configured zone, scoped to A records for beacon subdomains.
type Cloudflare struct {
	apiToken string
	zoneID   string
	zoneName string
	client   *http.Client
}

// NewCloudflare constructs a Cloudflare registrar bound to one zone (e.g.
// "wopr.systems"). hc may be nil to use a default 30s-timeout client.
func NewCloudflare(apiToken, zoneID, zoneName string, hc *http.Client) *Cloudflare {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Cloudflare{apiToken: apiToken, zoneID: zoneID, zoneName: zoneName, client: hc}
}

var _ Registrar = (*Cloudflare)(nil)

type cfResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
	Result json.RawMessage `json:"result"`
}

func (c *Cloudflare) do(ctx context.Context, method, path string, body any, out *cfResponse) error {
	var reqBody *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("dns: encode request: %w", err)
		}
		reqBody = strings.NewReader(string(b))
	} else {
		reqBody = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, cloudflareBaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("dns: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("dns: request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("dns: decode response: %w", err)
	}
	if !out.Success {
		if len(out.Errors) > 0 {
			return fmt.Errorf("dns: cloudflare error: %s", out.Errors[0].Message)
		}
		return fmt.Errorf("dns: cloudflare request unsuccessful (http %d)", resp.StatusCode)
	}
	return nil
}

func (c *Cloudflare) CreateARecord(ctx context.Context, subdomain, ipv4 string) (*Record, error) {
	fqdn := subdomain + "." + c.zoneName
	body := map[string]any{
		"type":    "A",
		"name":    fqdn,
		"content": ipv4,
		"ttl":     DefaultTTL,
		"proxied": false,
	}

	var resp cfResponse
	if err := c.do(ctx, http.MethodPost, "/zones/"+c.zoneID+"/dns_records", body, &resp); err != nil {
		return nil, err
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Result, &created); err != nil {
		return nil, fmt.Errorf("dns: decode created record: %w", err)
	}

	return &Record{ID: created.ID, Name: fqdn, Type: "A", Value: ipv4, TTL: DefaultTTL}, nil
}

func (c *Cloudflare) DeleteRecord(ctx context.Context, recordID string) error {
	var resp cfResponse
	return c.do(ctx, http.MethodDelete, "/zones/"+c.zoneID+"/dns_records/"+recordID, nil, &resp)
}

// DeleteBeaconRecords removes every DNS record a beacon owns, collecting
// (not aborting on) individual failures so one stale record id never
// blocks the rest of cleanup — cleanup order treats DNS deletion as
// best-effort (spec.md §4.7).
func (c *Cloudflare) DeleteBeaconRecords(ctx context.Context, recordIDs map[string]string) error {
	var errs []string
	for name, id := range recordIDs {
		if err := c.DeleteRecord(ctx, id); err != nil {
			errs = append(errs, fmt.Sprintf("%s (%s): %v", name, id, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("dns: failed to delete %d of %d records: %s", len(errs), len(recordIDs), strings.Join(errs, "; "))
	}
	return nil
}
