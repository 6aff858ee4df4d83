package dns

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

// client speaks the Technitium DNS Server HTTP API. Technitium
// authenticates every request with a token query parameter.
type client struct {
	apiURL     string
	token      string
	httpClient *http.Client
}

func newClient(cfg Config) *client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &client{
		apiURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
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

	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+endpoint+sep+"token="+c.token, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

type zone struct {
	Name string `json:"name"`
}

func (c *client) listZones(ctx context.Context) ([]zone, error) {
	resp, err := c.call(ctx, http.MethodGet, "/api/zones/list", nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var out struct {
		Zones []zone `json:"zones"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parse zone list: %w", err)
	}
	return out.Zones, nil
}

// createZone creates a primary zone. An already existing zone is not an
// error.
func (c *client) createZone(ctx context.Context, name string) error {
	resp, err := c.call(ctx, http.MethodPost, "/api/zones/create", map[string]string{
		"zone": name,
		"type": "Primary",
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusConflict:
		return nil
	default:
		return apiError(resp)
	}
}

// errConflict marks an add that collided with an existing record.
var errConflict = fmt.Errorf("record already exists")

func (c *client) addRecord(ctx context.Context, zone, name, recordType, content string, ttl int) error {
	resp, err := c.call(ctx, http.MethodPost, "/api/zones/records/add", map[string]any{
		"zone":  zone,
		"name":  name,
		"type":  recordType,
		"value": content,
		"ttl":   ttl,
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusConflict:
		return errConflict
	default:
		return apiError(resp)
	}
}

func (c *client) deleteRecord(ctx context.Context, zone, name, recordType string) error {
	resp, err := c.call(ctx, http.MethodPost, "/api/zones/records/delete", map[string]string{
		"zone": zone,
		"name": name,
		"type": recordType,
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// apiError extracts Technitium's errorMessage field when present.
func apiError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var out struct {
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(b, &out); err == nil && out.ErrorMessage != "" {
		return fmt.Errorf("dns server returned %d: %s", resp.StatusCode, out.ErrorMessage)
	}
	msg := strings.TrimSpace(string(b))
	if msg == "" {
		return fmt.Errorf("dns server returned %d", resp.StatusCode)
	}
	return fmt.Errorf("dns server returned %d: %s", resp.StatusCode, msg)
}
