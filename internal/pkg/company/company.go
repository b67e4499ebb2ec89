// Package company identifies the organization behind a visitor IP using a
// reverse-IP lookup API.
package company

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Company is what the lookup API knows about an IP's owner.
type Company struct {
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Industry string `json:"type"`
}

// Config configures the resolver.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Resolver queries an ipinfo-compatible endpoint: GET {BaseURL}/{ip}.
type Resolver struct {
	baseURL string
	token   string
	client  *http.Client
}

type lookupResponse struct {
	IP      string   `json:"ip"`
	Bogon   bool     `json:"bogon"`
	Company *Company `json:"company"`
}

// NewResolver creates a resolver.
func NewResolver(cfg Config) (*Resolver, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("company lookup URL is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Resolver{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Resolve returns the company for ip, or nil when the API has no company on
// record. ISPs and hosting ranges are not companies and are ignored.
func (r *Resolver) Resolve(ctx context.Context, ip string) (*Company, error) {
	endpoint := r.baseURL + "/" + url.PathEscape(ip)
	if r.token != "" {
		endpoint += "?token=" + url.QueryEscape(r.token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("company lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("company lookup failed with status %s", resp.Status)
	}

	var body lookupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode company lookup: %w", err)
	}

	if body.Bogon || body.Company == nil || strings.TrimSpace(body.Company.Name) == "" {
		return nil, nil
	}
	switch strings.ToLower(body.Company.Industry) {
	case "isp", "hosting":
		return nil, nil
	}
	return body.Company, nil
}
