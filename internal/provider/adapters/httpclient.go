// Package adapters holds one Provider implementation per supported VPS
// vendor. Every adapter is registered explicitly by its caller (typically
// cmd/appserver's wiring code) rather than via package-init side effects.
package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wopr-systems/beacon-orchestrator/internal/provider"
)

// DefaultHTTPTimeout is the request timeout every REST-based adapter uses
// unless the caller supplies its own *http.Client.
const DefaultHTTPTimeout = 30 * time.Second

// restClient is shared plumbing for the REST-based adapters: a base URL, a
// bearer token, and a json-in/json-out request helper translating HTTP
// status codes into the provider error taxonomy.
type restClient struct {
	name       string
	baseURL    string
	token      string
	httpClient *http.Client
}

func newRESTClient(name, baseURL, token string, hc *http.Client) *restClient {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &restClient{name: name, baseURL: baseURL, token: token, httpClient: hc}
}

func (c *restClient) do(ctx context.Context, op, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return provider.NewError(c.name, op, provider.KindInvalidInput, err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return provider.NewError(c.name, op, provider.KindInvalidInput, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return provider.NewError(c.name, op, provider.KindTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.NewError(c.name, op, provider.KindTransient, err)
	}

	if err := statusToKind(c.name, op, resp.StatusCode, data); err != nil {
		return err
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return provider.NewError(c.name, op, provider.KindTransient, fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

func statusToKind(name, op string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return provider.NewError(name, op, provider.KindAuth, fmt.Errorf("http %d: %s", status, string(body)))
	case status == http.StatusTooManyRequests:
		return provider.NewError(name, op, provider.KindQuota, fmt.Errorf("http %d: %s", status, string(body)))
	case status == http.StatusNotFound:
		return provider.NewError(name, op, provider.KindNotFound, fmt.Errorf("http %d: %s", status, string(body)))
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return provider.NewError(name, op, provider.KindInvalidInput, fmt.Errorf("http %d: %s", status, string(body)))
	case status >= 500:
		return provider.NewError(name, op, provider.KindTransient, fmt.Errorf("http %d: %s", status, string(body)))
	default:
		return provider.NewError(name, op, provider.KindFatal, fmt.Errorf("http %d: %s", status, string(body)))
	}
}
