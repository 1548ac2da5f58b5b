package environment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const DefaultIPLookupURL = "https://api.ipify.org?format=json"

// IPResolver looks up the public address of the visitor.
type IPResolver interface {
	PublicIP(ctx context.Context) (string, error)
}

// IpifyResolver queries an ipify-compatible endpoint. Its client has no
// timeout of its own; the caller's context bounds the lookup.
type IpifyResolver struct {
	url        string
	httpClient *http.Client
}

func NewIpifyResolver(url string, httpClient *http.Client) *IpifyResolver {
	if url == "" {
		url = DefaultIPLookupURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &IpifyResolver{url: url, httpClient: httpClient}
}

func (r *IpifyResolver) PublicIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return "", err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ip lookup: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("ip lookup: %w", err)
	}
	return body.IP, nil
}
