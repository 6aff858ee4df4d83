// Package awx implements the adapter contract against AWX (Ansible
// Automation Platform). Targets are job templates; operations are template
// launches polled through the jobs API.
package awx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bakerstreetlabs/holmes-agent/pkg/adapter"
)

// Adapter is the AWX implementation of the adapter contract.
//
// The adapter owns its bearer token: it renews ahead of expiry and retries
// exactly once on an authorization failure. Safe for concurrent use.
type Adapter struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	tokenMu      sync.Mutex
	bearer       string
	tokenExpires time.Time
}

// Ensure Adapter implements the interfaces.
var (
	_ adapter.Adapter      = (*Adapter)(nil)
	_ adapter.TargetLister = (*Adapter)(nil)
)

// New creates an AWX adapter from the given configuration.
func New(cfg Config, logger *zap.Logger) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: newHTTPClient(cfg),
		limiter:    newLimiter(cfg),
		logger:     logger,
	}, nil
}

// Backend returns the backend family.
func (a *Adapter) Backend() adapter.Backend {
	return adapter.BackendAWX
}

// template is the subset of the AWX job template schema the adapter needs.
type template struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (t template) ref() adapter.TargetRef {
	return adapter.TargetRef{
		ID:          strconv.FormatInt(t.ID, 10),
		Name:        t.Name,
		Description: t.Description,
	}
}

// ResolveTarget resolves a numeric template id or a template name to a
// template reference. Name matching is exact and case-insensitive; no match
// returns ErrTargetNotFound rather than a guess.
func (a *Adapter) ResolveTarget(ctx context.Context, ref string) (adapter.TargetRef, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return a.templateByID(ctx, id)
	}

	templates, err := a.listTemplates(ctx, ref)
	if err != nil {
		return adapter.TargetRef{}, err
	}
	for _, t := range templates {
		if strings.EqualFold(t.Name, ref) {
			return t.ref(), nil
		}
	}
	return adapter.TargetRef{}, fmt.Errorf("job template %q: %w", ref, adapter.ErrTargetNotFound)
}

// ListTargets lists job templates, optionally filtered by a search term.
func (a *Adapter) ListTargets(ctx context.Context, search string) ([]adapter.TargetRef, error) {
	templates, err := a.listTemplates(ctx, search)
	if err != nil {
		return nil, err
	}
	refs := make([]adapter.TargetRef, 0, len(templates))
	for _, t := range templates {
		refs = append(refs, t.ref())
	}
	return refs, nil
}

// Apply launches the job template and returns a handle on the spawned AWX
// job.
func (a *Adapter) Apply(ctx context.Context, target adapter.TargetRef, params adapter.Parameters) (adapter.Handle, error) {
	payload := map[string]any{}
	if len(params.ExtraVars) > 0 {
		payload["extra_vars"] = params.ExtraVars
	}
	if params.InventoryID != 0 {
		payload["inventory"] = params.InventoryID
	}
	if params.Limit != "" {
		payload["limit"] = params.Limit
	}

	resp, err := a.do(ctx, "Apply", http.MethodPost, "/api/v2/job_templates/"+target.ID+"/launch/", payload)
	if err != nil {
		return adapter.Handle{}, err
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return adapter.Handle{}, &adapter.Error{
			Op: "Apply", Backend: adapter.BackendAWX, Kind: adapter.KindTargetMissing,
			Err: fmt.Errorf("job template %s no longer exists", target.ID),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return adapter.Handle{}, &adapter.Error{
			Op: "Apply", Backend: adapter.BackendAWX, Kind: adapter.KindBackendRejected,
			Err: apiError(resp),
		}
	}

	var out struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return adapter.Handle{}, fmt.Errorf("parse launch response: %w", err)
	}
	if out.ID == 0 {
		return adapter.Handle{}, &adapter.Error{
			Op: "Apply", Backend: adapter.BackendAWX, Kind: adapter.KindBackendRejected,
			Err: fmt.Errorf("backend did not return a job id"),
		}
	}
	return adapter.Handle{
		ID:    strconv.FormatInt(out.ID, 10),
		Phase: mapPhase(out.Status),
	}, nil
}

// Status returns the phase of the AWX job behind the handle.
func (a *Adapter) Status(ctx context.Context, h adapter.Handle) (adapter.Phase, error) {
	resp, err := a.do(ctx, "Status", http.MethodGet, "/api/v2/jobs/"+h.ID+"/", nil)
	if err != nil {
		return "", err
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apiError(resp)
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("parse job status: %w", err)
	}
	return mapPhase(out.Status), nil
}

// Output fetches the job's stdout as plain text.
func (a *Adapter) Output(ctx context.Context, h adapter.Handle) (string, error) {
	resp, err := a.do(ctx, "Output", http.MethodGet, "/api/v2/jobs/"+h.ID+"/stdout/?format=txt", nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return "", adapter.ErrOutputUnavailable
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apiError(resp)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read job output: %w", err)
	}
	return string(b), nil
}

// Cancel asks AWX to cancel the job. AWX answers 405 when the job can no
// longer be canceled; that is reported as not-accepted, not an error.
func (a *Adapter) Cancel(ctx context.Context, h adapter.Handle) (bool, error) {
	resp, err := a.do(ctx, "Cancel", http.MethodPost, "/api/v2/jobs/"+h.ID+"/cancel/", nil)
	if err != nil {
		return false, err
	}
	defer drain(resp)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusForbidden:
		return false, nil
	default:
		return false, apiError(resp)
	}
}

func (a *Adapter) templateByID(ctx context.Context, id int64) (adapter.TargetRef, error) {
	resp, err := a.do(ctx, "ResolveTarget", http.MethodGet, fmt.Sprintf("/api/v2/job_templates/%d/", id), nil)
	if err != nil {
		return adapter.TargetRef{}, err
	}
	defer drain(resp)

	if resp.StatusCode == http.StatusNotFound {
		return adapter.TargetRef{}, fmt.Errorf("job template %d: %w", id, adapter.ErrTargetNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return adapter.TargetRef{}, apiError(resp)
	}
	var t template
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return adapter.TargetRef{}, fmt.Errorf("parse job template: %w", err)
	}
	return t.ref(), nil
}

func (a *Adapter) listTemplates(ctx context.Context, search string) ([]template, error) {
	path := "/api/v2/job_templates/"
	if search != "" {
		path += "?search=" + url.QueryEscape(search)
	}
	resp, err := a.do(ctx, "ResolveTarget", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiError(resp)
	}
	var out struct {
		Results []template `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parse job template list: %w", err)
	}
	return out.Results, nil
}

// mapPhase maps AWX's native status vocabulary into the fixed phase set.
func mapPhase(status string) adapter.Phase {
	switch status {
	case "new", "pending", "waiting":
		return adapter.PhasePending
	case "running":
		return adapter.PhaseRunning
	case "successful":
		return adapter.PhaseSucceeded
	case "failed", "error":
		return adapter.PhaseFailed
	case "canceled":
		return adapter.PhaseCanceled
	default:
		return adapter.PhasePending
	}
}
