package pdns

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultRequestTimeout bounds a single API round trip.
const DefaultRequestTimeout = 15 * time.Second

// DefaultServerID is the server instance PowerDNS exposes by default.
const DefaultServerID = "localhost"

// client speaks the PowerDNS authoritative server HTTP API. Every request
// carries the API key in the X-API-Key header.
type client struct {
	apiURL     string
	apiKey     string
	serverID   string
	httpClient *http.Client
}

func newClient(cfg Config) *client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	serverID := strings.TrimSpace(cfg.ServerID)
	if serverID == "" {
		serverID = DefaultServerID
	}
	return &client{
		apiURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		serverID:   serverID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *client) call(ctx context.Context, method, endpoint string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	url := fmt.Sprintf("%s/api/v1/servers/%s%s", c.apiURL, c.serverID, endpoint)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

type zone struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *client) listZones(ctx context.Context) ([]zone, error) {
	resp, err := c.call(ctx, http.MethodGet, "/zones", nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var zones []zone
	if err := json.NewDecoder(resp.Body).Decode(&zones); err != nil {
		return nil, fmt.Errorf("parse zone list: %w", err)
	}
	return zones, nil
}

// createZone creates a native zone. Zone names are canonical on the wire,
// so the trailing dot is mandatory.
func (c *client) createZone(ctx context.Context, name string) error {
	resp, err := c.call(ctx, http.MethodPost, "/zones", map[string]any{
		"name":   name,
		"kind":   "Native",
		"rrsets": []any{},
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK, http.StatusConflict:
		return nil
	default:
		return apiError(resp)
	}
}

type rrsetRecord struct {
	Content  string `json:"content"`
	Disabled bool   `json:"disabled"`
}

type rrset struct {
	Name       string        `json:"name"`
	Type       string        `json:"type"`
	TTL        int           `json:"ttl"`
	ChangeType string        `json:"changetype"`
	Records    []rrsetRecord `json:"records"`
}

// replaceRecord patches the zone with a REPLACE rrset, which PowerDNS
// applies as a native upsert.
func (c *client) replaceRecord(ctx context.Context, zoneID, name, recordType, content string, ttl int) error {
	resp, err := c.call(ctx, http.MethodPatch, "/zones/"+zoneID, map[string]any{
		"rrsets": []rrset{{
			Name:       name,
			Type:       recordType,
			TTL:        ttl,
			ChangeType: "REPLACE",
			Records:    []rrsetRecord{{Content: content}},
		}},
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	default:
		return apiError(resp)
	}
}

// apiError extracts PowerDNS's error field when present.
func apiError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var out struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &out); err == nil && out.Error != "" {
		return fmt.Errorf("powerdns returned %d: %s", resp.StatusCode, out.Error)
	}
	msg := strings.TrimSpace(string(b))
	if msg == "" {
		return fmt.Errorf("powerdns returned %d", resp.StatusCode)
	}
	return fmt.Errorf("powerdns returned %d: %s", resp.StatusCode, msg)
}
