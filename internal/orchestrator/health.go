package orchestrator

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"
)

// healthHTTPClient is shared across health-check polls. Certificate
// verification is disabled because a freshly provisioned beacon serves a
// self-signed certificate until the installer obtains a real one,
// matching the original's httpx.AsyncClient(verify=False).
var healthHTTPClient = &http.Client{
	Timeout: 10 * time.Second,
	Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	},
}

// healthURLs lists the endpoints DEPLOYING_WOPR accepts a 200 from, in
// preference order: the real subdomain first, then the raw IP on the
// default beacon API port.
func healthURLs(subdomain, baseDomain, instanceIP string) []string {
	var urls []string
	if subdomain != "" && baseDomain != "" {
		urls = append(urls, fmt.Sprintf("https://%s.%s/api/health", subdomain, baseDomain))
	}
	if instanceIP != "" {
		urls = append(urls, fmt.Sprintf("http://%s:8080/api/health", instanceIP))
	}
	return urls
}

// pollHealth checks every url in turn and reports true as soon as one
// answers 200 OK.
func pollHealth(ctx context.Context, urls []string) bool {
	for _, url := range urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			continue
		}
		resp, err := healthHTTPClient.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return true
		}
	}
	return false
}
