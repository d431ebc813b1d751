// Package geocode resolves GPS coordinates to human-readable addresses.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Resolver turns coordinates into an address. An empty string with a nil
// error means the provider had no answer; absence is a valid outcome.
type Resolver interface {
	Resolve(ctx context.Context, lat, lon float64) (string, error)
}

// Client talks to a Nominatim-compatible reverse geocoding endpoint.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient builds a client for the given base URL. An empty base URL yields
// a disabled client that always resolves to nothing.
func NewClient(baseURL, userAgent string) *Client {
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a provider is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		Country string `json:"country"`
		State   string `json:"state"`
		City    string `json:"city"`
		Suburb  string `json:"suburb"`
	} `json:"address"`
}

// Resolve performs a reverse lookup. Provider and network failures are
// returned to the caller, which treats them the same as no answer.
func (c *Client) Resolve(ctx context.Context, lat, lon float64) (string, error) {
	if !c.Enabled() {
		return "", nil
	}

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", fmt.Sprintf("%.6f", lat))
	q.Set("lon", fmt.Sprintf("%.6f", lon))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse geocode: status %d", resp.StatusCode)
	}

	var body reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if addr := shortAddress(body); addr != "" {
		return addr, nil
	}
	return body.DisplayName, nil
}

// shortAddress prefers a compact locality description over the full
// display_name when the structured fields are present.
func shortAddress(r reverseResponse) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{r.Address.Country, r.Address.State, r.Address.City, r.Address.Suburb} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return ""
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}
