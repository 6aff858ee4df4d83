package awx

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bakerstreetlabs/holmes-agent/pkg/adapter"
)

const (
	// tokenLifetime is how long an issued AWX token is assumed valid.
	tokenLifetime = time.Hour

	// tokenRefreshMargin is how early before expiry the token is renewed.
	tokenRefreshMargin = 60 * time.Second
)

// token returns a valid bearer token, requesting a fresh one when the
// current token is absent or within the refresh margin of expiry.
func (a *Adapter) token(ctx context.Context) (string, error) {
	a.tokenMu.Lock()
	defer a.tokenMu.Unlock()

	now := time.Now()
	if a.bearer != "" && now.Before(a.tokenExpires.Add(-tokenRefreshMargin)) {
		return a.bearer, nil
	}

	a.logger.Info("refreshing AWX token")
	body, err := json.Marshal(map[string]string{"description": "holmes-agent"})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/v2/tokens/", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(a.username, a.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request awx token: %w", err)
	}
	defer drain(resp)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &adapter.Error{
			Op:      "token",
			Backend: adapter.BackendAWX,
			Kind:    adapter.KindAuthFailed,
			Err:     fmt.Errorf("token endpoint returned %d", resp.StatusCode),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("awx token endpoint returned %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("parse awx token response: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("awx token endpoint returned no token")
	}

	a.bearer = out.Token
	a.tokenExpires = now.Add(tokenLifetime)
	return a.bearer, nil
}

func (a *Adapter) invalidateToken() {
	a.tokenMu.Lock()
	a.bearer = ""
	a.tokenExpires = time.Time{}
	a.tokenMu.Unlock()
}

// do issues an authenticated request. On a single authorization failure the
// token is force-refreshed and the request reissued once, transparently; a
// second consecutive authorization failure surfaces as an auth_failed
// adapter error.
func (a *Adapter) do(ctx context.Context, op, method, path string, payload any) (*http.Response, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = b
	}

	resp, err := a.send(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drain(resp)

	a.logger.Warn("AWX token rejected, refreshing and retrying",
		zap.String("op", op),
		zap.String("path", path))
	a.invalidateToken()

	resp, err = a.send(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		return nil, &adapter.Error{
			Op:      op,
			Backend: adapter.BackendAWX,
			Kind:    adapter.KindAuthFailed,
			Err:     fmt.Errorf("authorization failed after token refresh"),
		}
	}
	return resp, nil
}

func (a *Adapter) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	tok, err := a.token(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	return a.httpClient.Do(req)
}

// apiError extracts the backend's failure detail from an error response.
func apiError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var detail struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(b, &detail); err == nil && detail.Detail != "" {
		return fmt.Errorf("awx returned %d: %s", resp.StatusCode, detail.Detail)
	}
	msg := strings.TrimSpace(string(b))
	if msg == "" {
		return fmt.Errorf("awx returned %d", resp.StatusCode)
	}
	return fmt.Errorf("awx returned %d: %s", resp.StatusCode, msg)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

func newHTTPClient(cfg Config) *http.Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	client := &http.Client{Timeout: timeout}
	if !cfg.VerifySSL {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return client
}

func newLimiter(cfg Config) *rate.Limiter {
	if cfg.RateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
}
