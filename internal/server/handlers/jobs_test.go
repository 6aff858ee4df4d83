package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakerstreetlabs/holmes-agent/pkg/adapter"
	"github.com/bakerstreetlabs/holmes-agent/pkg/adapter/fake"
	"github.com/bakerstreetlabs/holmes-agent/pkg/job"
	"github.com/bakerstreetlabs/holmes-agent/pkg/workflow"
)

type noListBackend struct {
	*fake.Adapter
}

// ListTargets shadows the embedded method with a different signature so the
// wrapper no longer satisfies adapter.TargetLister.
func (n noListBackend) ListTargets() {}

func newAPI(t *testing.T, backend adapter.Adapter) *API {
	t.Helper()
	store, err := job.NewStore(job.StoreConfig{CacheDir: t.TempDir()}, nil)
	require.NoError(t, err)
	engine, err := workflow.NewEngine(workflow.EngineOptions{
		Store:   store,
		Backend: backend,
		Config:  workflow.Config{PollInterval: time.Millisecond, PollTimeout: time.Second},
	})
	require.NoError(t, err)
	return &API{Store: store, Engine: engine, Backend: backend}
}

func newRouter(api *API) chi.Router {
	r := chi.NewRouter()
	r.Post("/v1/jobs", api.SubmitJob)
	r.Get("/v1/jobs/{id}", api.GetJob)
	r.Post("/v1/jobs/{id}/cancel", api.CancelJob)
	r.Get("/v1/templates", api.ListTemplates)
	r.Get("/v1/templates/{id}", api.GetTemplate)
	return r
}

func TestSubmitJob_RejectsMalformedBody(t *testing.T) {
	api := newAPI(t, &fake.Adapter{})
	r := newRouter(api)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(`{"template_name": 42`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitJob_RejectsUnknownFields(t *testing.T) {
	api := newAPI(t, &fake.Adapter{})
	r := newRouter(api)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs",
		strings.NewReader(`{"template_name": "deploy", "surprise": true}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelJob(t *testing.T) {
	backend := &fake.Adapter{}
	api := newAPI(t, backend)
	r := newRouter(api)

	rec, err := api.Store.Submit(&job.Record{
		Kind:       job.KindAutomation,
		Automation: &job.AutomationRequest{TemplateName: "deploy"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/"+rec.ID+"/cancel", nil)
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	var canceled job.Record
	require.NoError(t, json.NewDecoder(res.Body).Decode(&canceled))
	assert.Equal(t, job.StateCanceled, canceled.State)

	req = httptest.NewRequest(http.MethodPost, "/v1/jobs/nope/cancel", nil)
	res = httptest.NewRecorder()
	r.ServeHTTP(res, req)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestListTemplates(t *testing.T) {
	backend := &fake.Adapter{
		Targets: map[string]adapter.TargetRef{
			"deploy": {ID: "7", Name: "deploy"},
		},
	}
	api := newAPI(t, backend)
	r := newRouter(api)

	req := httptest.NewRequest(http.MethodGet, "/v1/templates", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Templates []adapter.TargetRef `json:"templates"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Templates, 1)
	assert.Equal(t, "deploy", body.Templates[0].Name)
}

func TestGetTemplate(t *testing.T) {
	backend := &fake.Adapter{
		Targets: map[string]adapter.TargetRef{
			"deploy": {ID: "7", Name: "deploy", Description: "Deploy the app"},
		},
	}
	api := newAPI(t, backend)
	r := newRouter(api)

	req := httptest.NewRequest(http.MethodGet, "/v1/templates/deploy", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var target adapter.TargetRef
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&target))
	assert.Equal(t, "7", target.ID)
	assert.Equal(t, "deploy", target.Name)

	req = httptest.NewRequest(http.MethodGet, "/v1/templates/missing", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTemplates_UnsupportedBackend(t *testing.T) {
	api := newAPI(t, noListBackend{&fake.Adapter{}})
	r := newRouter(api)

	req := httptest.NewRequest(http.MethodGet, "/v1/templates", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
