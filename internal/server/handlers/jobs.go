package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/bakerstreetlabs/holmes-agent/internal/errors"
	"github.com/bakerstreetlabs/holmes-agent/internal/observability"
	"github.com/bakerstreetlabs/holmes-agent/pkg/adapter"
	"github.com/bakerstreetlabs/holmes-agent/pkg/job"
	"github.com/bakerstreetlabs/holmes-agent/pkg/workflow"
)

// maxRequestBody caps submission payloads.
const maxRequestBody = 1 << 20

// API serves the job endpoints. Submissions are fire-and-forget: the
// response returns before the job's goroutine starts executing.
type API struct {
	Store   *job.Store
	Engine  *workflow.Engine
	Backend adapter.Adapter
	Metrics *observability.Metrics
	Logger  *zap.Logger
}

// SubmitResponse is the acknowledgment returned at the submission boundary.
type SubmitResponse struct {
	JobID   string    `json:"job_id"`
	State   job.State `json:"state"`
	Message string    `json:"message,omitempty"`
}

func (a *API) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeValidationError,
			fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// dispatch runs a job on its own goroutine and records lifecycle metrics.
func (a *API) dispatch(rec *job.Record, run func(ctx context.Context, id string) job.State) {
	submitted := rec.RequestedAt
	if a.Metrics != nil {
		a.Metrics.JobsSubmitted.Add(context.Background(), 1)
		a.Metrics.JobsActive.Add(context.Background(), 1)
	}
	go func() {
		ctx := context.Background()
		state := run(ctx, rec.ID)
		if a.Metrics != nil {
			a.Metrics.JobsActive.Add(ctx, -1)
			a.Metrics.JobsCompleted.Add(ctx, 1)
			a.Metrics.JobDuration.Record(ctx, time.Since(submitted).Seconds())
		}
		a.logger().Info("job finished",
			zap.String("job_id", rec.ID),
			zap.String("kind", string(rec.Kind)),
			zap.String("state", string(state)))
	}()
}

func (a *API) accept(w http.ResponseWriter, rec *job.Record) {
	writeJSON(w, http.StatusAccepted, SubmitResponse{
		JobID:   rec.ID,
		State:   rec.State,
		Message: "job accepted",
	})
}

// SubmitJob handles POST /v1/jobs.
func (a *API) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req job.AutomationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeValidationError, err.Error())
		return
	}

	rec, err := a.Store.Submit(&job.Record{Kind: job.KindAutomation, Automation: &req})
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	a.dispatch(rec, a.Engine.RunAutomation)
	a.accept(w, rec)
}

// SubmitOrchestration handles POST /v1/orchestrations.
func (a *API) SubmitOrchestration(w http.ResponseWriter, r *http.Request) {
	var req job.OrchestrationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeValidationError, err.Error())
		return
	}

	rec, err := a.Store.Submit(&job.Record{Kind: job.KindOrchestration, Orchestration: &req})
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	a.dispatch(rec, a.Engine.RunOrchestration)
	a.accept(w, rec)
}

// SubmitRecord handles POST /v1/records.
func (a *API) SubmitRecord(w http.ResponseWriter, r *http.Request) {
	var req job.ChangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeValidationError, err.Error())
		return
	}

	rec, err := a.Store.Submit(&job.Record{Kind: job.KindRecord, Change: &req})
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	a.dispatch(rec, a.Engine.RunRecord)
	a.accept(w, rec)
}

// GetJob handles GET /v1/jobs/{id}.
func (a *API) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := a.Store.Get(id)
	if !ok {
		apperrors.WriteError(w, http.StatusNotFound, apperrors.CodeNotFound,
			fmt.Sprintf("job %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CancelJob handles POST /v1/jobs/{id}/cancel.
func (a *API) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := a.Engine.Cancel(r.Context(), id)
	if !ok {
		apperrors.WriteError(w, http.StatusNotFound, apperrors.CodeNotFound,
			fmt.Sprintf("job %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListTemplates handles GET /v1/templates.
func (a *API) ListTemplates(w http.ResponseWriter, r *http.Request) {
	lister, ok := a.Backend.(adapter.TargetLister)
	if !ok {
		apperrors.WriteError(w, http.StatusNotImplemented, apperrors.CodeNotImplemented,
			fmt.Sprintf("backend %s does not list targets", a.Backend.Backend()))
		return
	}
	targets, err := lister.ListTargets(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": targets})
}

// GetTemplate handles GET /v1/templates/{id}. The reference resolves the
// same way a submission does: numeric id or exact name.
func (a *API) GetTemplate(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "id")
	target, err := a.Backend.ResolveTarget(r.Context(), ref)
	if err != nil {
		if adapter.IsTargetNotFound(err) {
			apperrors.WriteError(w, http.StatusNotFound, apperrors.CodeNotFound,
				fmt.Sprintf("template %q not found", ref))
			return
		}
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, target)
}

// BackendWebhook handles POST /v1/webhooks/backend. Callbacks are
// acknowledged and logged only; the polling loop remains the source of
// truth for completion.
//
// TODO: correlate callbacks to jobs via a remote-id index so a callback can
// short-circuit the polling wait.
func (a *API) BackendWebhook(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&payload); err != nil {
		payload = nil
	}
	a.logger().Info("backend webhook received",
		zap.Int("fields", len(payload)),
		zap.String("remote_addr", r.RemoteAddr))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
