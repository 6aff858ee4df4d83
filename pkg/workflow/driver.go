package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/bakerstreetlabs/holmes-agent/pkg/adapter"
	"github.com/bakerstreetlabs/holmes-agent/pkg/docsink"
	"github.com/bakerstreetlabs/holmes-agent/pkg/job"
)

const (
	// DefaultPollInterval is the wait between backend status checks.
	DefaultPollInterval = 5 * time.Second

	// DefaultPollTimeout bounds how long a job is monitored before it is
	// marked failed. The backend operation is left running on timeout.
	DefaultPollTimeout = time.Hour
)

// Config tunes the monitoring loop.
type Config struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	return c
}

// EngineOptions carries the collaborators an Engine needs.
type EngineOptions struct {
	Store      *job.Store
	Backend    adapter.Adapter
	Sink       docsink.Sink
	Catalog    *Catalog
	Decomposer Decomposer
	Config     Config
	Logger     *zap.Logger
}

// Engine executes submitted jobs against a backend adapter. One engine serves
// all jobs; each job runs on its own goroutine spawned by the caller.
type Engine struct {
	store   *job.Store
	backend adapter.Adapter
	sink    docsink.Sink
	catalog *Catalog
	dec     Decomposer
	cfg     Config
	logger  *zap.Logger
}

// NewEngine validates the options and returns a ready engine.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Backend == nil {
		return nil, fmt.Errorf("backend adapter is required")
	}
	if opts.Sink == nil {
		opts.Sink = docsink.Discard{}
	}
	if opts.Catalog == nil {
		opts.Catalog = NewCatalog()
	}
	if opts.Decomposer == nil {
		opts.Decomposer = RuleDecomposer{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		store:   opts.Store,
		backend: opts.Backend,
		sink:    opts.Sink,
		catalog: opts.Catalog,
		dec:     opts.Decomposer,
		cfg:     opts.Config.withDefaults(),
		logger:  opts.Logger,
	}, nil
}

// advance transitions the job and reports whether the engine still owns it.
// A terminal state set by someone else (cancellation) makes the transition a
// no-op; the engine must then abandon the job without overwriting the state.
func (e *Engine) advance(id string, state job.State, message string, updates ...job.Update) (*job.Record, bool) {
	rec, ok := e.store.Transition(id, state, message, updates...)
	if !ok {
		return nil, false
	}
	if rec.State != state {
		e.logger.Info("abandoning job in externally set terminal state",
			zap.String("job_id", id), zap.String("state", string(rec.State)))
		return rec, false
	}
	return rec, true
}

func (e *Engine) fail(id, message string) job.State {
	e.logger.Warn("job failed", zap.String("job_id", id), zap.String("reason", message))
	e.advance(id, job.StateFailed, message, job.WithError(message))
	return job.StateFailed
}

// RunAutomation drives a single automation job to a terminal state and
// returns that state. All failures are absorbed into the job record; the
// method never returns an error to its goroutine.
func (e *Engine) RunAutomation(ctx context.Context, id string) job.State {
	rec, ok := e.store.Get(id)
	if !ok || rec.Kind != job.KindAutomation {
		e.logger.Error("automation run for unknown or mismatched job", zap.String("job_id", id))
		return job.StateFailed
	}
	req := rec.Automation

	if _, ok := e.advance(id, job.StateValidating, "resolving job template"); !ok {
		return currentState(e.store, id)
	}

	ref := req.TemplateName
	if req.TemplateID != 0 {
		ref = strconv.FormatInt(req.TemplateID, 10)
	}
	target, err := e.backend.ResolveTarget(ctx, ref)
	if err != nil {
		if adapter.IsTargetNotFound(err) {
			return e.fail(id, fmt.Sprintf("job template %q not found", ref))
		}
		return e.fail(id, fmt.Sprintf("resolve job template %q: %v", ref, err))
	}

	if _, ok := e.advance(id, job.StateApplying, fmt.Sprintf("launching %s", target.Name)); !ok {
		return currentState(e.store, id)
	}

	handle, err := e.backend.Apply(ctx, target, adapter.Parameters{
		ExtraVars:   req.ExtraVars,
		InventoryID: req.InventoryID,
		Limit:       req.Limit,
	})
	if err != nil {
		return e.fail(id, fmt.Sprintf("launch failed: %v", err))
	}

	if _, ok := e.advance(id, job.StateMonitoring, "monitoring backend job",
		job.WithRemote(handle.ID, string(handle.Phase))); !ok {
		return currentState(e.store, id)
	}

	phase, err := e.monitor(ctx, id, handle)
	if err != nil {
		if errors.Is(err, errAbandoned) {
			return currentState(e.store, id)
		}
		return e.fail(id, err.Error())
	}
	return e.finalize(ctx, id, handle, phase)
}

// monitor polls the backend until the operation reaches a terminal phase or
// the poll timeout elapses. Handles issued already terminal skip polling.
func (e *Engine) monitor(ctx context.Context, id string, handle adapter.Handle) (adapter.Phase, error) {
	if handle.Phase.Terminal() {
		return handle.Phase, nil
	}

	deadline := time.Now().Add(e.cfg.PollTimeout)
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("monitoring aborted: %v", ctx.Err())
		case <-ticker.C:
		}

		if rec, ok := e.store.Get(id); ok && rec.State.Terminal() {
			return "", errAbandoned
		}

		phase, err := e.backend.Status(ctx, handle)
		if err != nil {
			e.logger.Warn("status poll failed", zap.String("job_id", id), zap.Error(err))
		} else {
			if _, ok := e.advance(id, job.StateMonitoring, "monitoring backend job",
				job.WithRemotePhase(string(phase))); !ok {
				return "", errAbandoned
			}
			if phase.Terminal() {
				return phase, nil
			}
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("monitoring timed out after %s; backend job %s left running",
				e.cfg.PollTimeout, handle.ID)
		}
	}
}

var errAbandoned = errors.New("job reached a terminal state externally")

// finalize maps the terminal backend phase to the job's terminal state,
// fetching output best effort on success.
func (e *Engine) finalize(ctx context.Context, id string, handle adapter.Handle, phase adapter.Phase) job.State {
	switch phase {
	case adapter.PhaseSucceeded:
		var updates []job.Update
		output, err := e.backend.Output(ctx, handle)
		if err != nil {
			if !adapter.IsOutputUnavailable(err) {
				e.logger.Warn("output fetch failed", zap.String("job_id", id), zap.Error(err))
			}
		} else if output != "" {
			updates = append(updates, job.WithOutput(output))
		}
		e.advance(id, job.StateCompleted, "backend job succeeded", updates...)
		return job.StateCompleted
	case adapter.PhaseCanceled:
		return e.fail(id, "backend job was canceled")
	default:
		return e.fail(id, fmt.Sprintf("backend job ended %s", phase))
	}
}

// RunRecord drives a DNS record change job to a terminal state.
func (e *Engine) RunRecord(ctx context.Context, id string) job.State {
	rec, ok := e.store.Get(id)
	if !ok || rec.Kind != job.KindRecord {
		e.logger.Error("record run for unknown or mismatched job", zap.String("job_id", id))
		return job.StateFailed
	}
	req := rec.Change

	if _, ok := e.advance(id, job.StateValidating, fmt.Sprintf("resolving zone %s", req.Zone)); !ok {
		return currentState(e.store, id)
	}

	target, err := e.backend.ResolveTarget(ctx, req.Zone)
	if adapter.IsTargetNotFound(err) {
		creator, supported := e.backend.(adapter.TargetCreator)
		if !supported {
			return e.fail(id, fmt.Sprintf("zone %q not found", req.Zone))
		}
		e.logger.Info("creating missing zone", zap.String("job_id", id), zap.String("zone", req.Zone))
		target, err = creator.CreateTarget(ctx, req.Zone)
	}
	if err != nil {
		return e.fail(id, fmt.Sprintf("resolve zone %q: %v", req.Zone, err))
	}

	if _, ok := e.advance(id, job.StateApplying,
		fmt.Sprintf("upserting %s record %s", req.Type, req.Name)); !ok {
		return currentState(e.store, id)
	}

	handle, err := e.backend.Apply(ctx, target, adapter.Parameters{
		RecordName:    req.Name,
		RecordType:    string(req.Type),
		RecordContent: req.Content,
		RecordTTL:     req.TTL,
	})
	if err != nil {
		return e.fail(id, fmt.Sprintf("record change failed: %v", err))
	}
	if handle.Phase != adapter.PhaseSucceeded {
		return e.fail(id, fmt.Sprintf("record change ended %s", handle.Phase))
	}

	note := docsink.BuildNote(req.Zone, req.Name, string(req.Type), req.Content, req.TTL)
	if _, ok := e.advance(id, job.StateDocumenting, "recording change notes",
		job.WithDocChanges([]string{note})); !ok {
		return currentState(e.store, id)
	}
	if err := e.sink.Append(ctx, []string{note}); err != nil {
		e.logger.Warn("documentation append failed", zap.String("job_id", id), zap.Error(err))
	}

	e.advance(id, job.StateCompleted,
		fmt.Sprintf("record %s %s applied to zone %s", req.Type, req.Name, req.Zone))
	return job.StateCompleted
}

// Cancel requests best-effort cancellation of a job. The job transitions to
// canceled regardless of whether the backend accepted the request.
func (e *Engine) Cancel(ctx context.Context, id string) (*job.Record, bool) {
	rec, ok := e.store.Get(id)
	if !ok {
		return nil, false
	}
	if rec.State.Terminal() {
		return rec, true
	}

	if rec.Result.RemoteID != "" {
		accepted, err := e.backend.Cancel(ctx, adapter.Handle{ID: rec.Result.RemoteID})
		if err != nil {
			e.logger.Warn("backend cancel failed", zap.String("job_id", id), zap.Error(err))
		} else if !accepted {
			e.logger.Info("backend declined cancellation", zap.String("job_id", id))
		}
	}

	rec, _ = e.store.Transition(id, job.StateCanceled, "canceled by request")
	return rec, true
}

func currentState(store *job.Store, id string) job.State {
	if rec, ok := store.Get(id); ok {
		return rec.State
	}
	return job.StateFailed
}
