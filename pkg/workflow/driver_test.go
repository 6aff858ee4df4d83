package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakerstreetlabs/holmes-agent/pkg/adapter"
	"github.com/bakerstreetlabs/holmes-agent/pkg/adapter/fake"
	"github.com/bakerstreetlabs/holmes-agent/pkg/docsink"
	"github.com/bakerstreetlabs/holmes-agent/pkg/job"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestStore(t *testing.T) *job.Store {
	t.Helper()
	store, err := job.NewStore(job.StoreConfig{CacheDir: t.TempDir()}, nil)
	require.NoError(t, err)
	return store
}

// fastPoll keeps monitoring loops short enough for tests.
var fastPoll = Config{PollInterval: time.Millisecond, PollTimeout: time.Second}

func newTestEngine(t *testing.T, backend *fake.Adapter, opts EngineOptions) (*Engine, *job.Store) {
	t.Helper()
	store := newTestStore(t)
	opts.Store = store
	opts.Backend = backend
	if opts.Config == (Config{}) {
		opts.Config = fastPoll
	}
	e, err := NewEngine(opts)
	require.NoError(t, err)
	return e, store
}

func submitAutomation(t *testing.T, store *job.Store, req *job.AutomationRequest) string {
	t.Helper()
	rec, err := store.Submit(&job.Record{Kind: job.KindAutomation, Automation: req})
	require.NoError(t, err)
	return rec.ID
}

func TestRunAutomation_TargetNotFound(t *testing.T) {
	backend := &fake.Adapter{}
	e, store := newTestEngine(t, backend, EngineOptions{})
	id := submitAutomation(t, store, &job.AutomationRequest{TemplateName: "missing-template"})

	state := e.RunAutomation(context.Background(), id)

	assert.Equal(t, job.StateFailed, state)
	rec, ok := store.Get(id)
	require.True(t, ok)
	assert.Contains(t, rec.Message, "missing-template")
	assert.Empty(t, backend.Applies())
}

func TestRunAutomation_SynchronousBackendSkipsPolling(t *testing.T) {
	backend := &fake.Adapter{
		Targets:    map[string]adapter.TargetRef{"42": {ID: "42", Name: "deploy"}},
		OutputText: "ok\n",
	}
	e, store := newTestEngine(t, backend, EngineOptions{})
	id := submitAutomation(t, store, &job.AutomationRequest{TemplateID: 42})

	state := e.RunAutomation(context.Background(), id)

	assert.Equal(t, job.StateCompleted, state)
	assert.Zero(t, backend.StatusCalls())
	rec, _ := store.Get(id)
	assert.Equal(t, "ok\n", rec.Result.Output)
	require.NotNil(t, rec.CompletedAt)
}

func TestRunAutomation_PollsUntilSucceeded(t *testing.T) {
	backend := &fake.Adapter{
		Targets:    map[string]adapter.TargetRef{"deploy": {ID: "7", Name: "deploy"}},
		StatusPlan: []adapter.Phase{adapter.PhaseRunning, adapter.PhaseSucceeded},
	}
	e, store := newTestEngine(t, backend, EngineOptions{})
	id := submitAutomation(t, store, &job.AutomationRequest{TemplateName: "deploy"})

	state := e.RunAutomation(context.Background(), id)

	assert.Equal(t, job.StateCompleted, state)
	assert.Equal(t, 2, backend.StatusCalls())
	rec, _ := store.Get(id)
	assert.Equal(t, string(adapter.PhaseSucceeded), rec.Result.RemotePhase)
	assert.NotEmpty(t, rec.Result.RemoteID)
}

func TestRunAutomation_BackendFailureRecordsReason(t *testing.T) {
	backend := &fake.Adapter{
		Targets:    map[string]adapter.TargetRef{"deploy": {ID: "7", Name: "deploy"}},
		StatusPlan: []adapter.Phase{adapter.PhaseFailed},
	}
	e, store := newTestEngine(t, backend, EngineOptions{})
	id := submitAutomation(t, store, &job.AutomationRequest{TemplateName: "deploy"})

	state := e.RunAutomation(context.Background(), id)

	assert.Equal(t, job.StateFailed, state)
	rec, _ := store.Get(id)
	assert.Contains(t, rec.Result.Error, "failed")
}

func TestRunAutomation_ApplyRejectionFails(t *testing.T) {
	backend := &fake.Adapter{
		Targets: map[string]adapter.TargetRef{"deploy": {ID: "7", Name: "deploy"}},
		ApplyErr: &adapter.Error{
			Op: "launch job", Backend: adapter.BackendFake,
			Kind: adapter.KindBackendRejected, Err: fmt.Errorf("variables not allowed"),
		},
	}
	e, store := newTestEngine(t, backend, EngineOptions{})
	id := submitAutomation(t, store, &job.AutomationRequest{TemplateName: "deploy"})

	state := e.RunAutomation(context.Background(), id)

	assert.Equal(t, job.StateFailed, state)
	rec, _ := store.Get(id)
	assert.Contains(t, rec.Message, "variables not allowed")
}

func TestRunAutomation_PollTimeoutLeavesBackendRunning(t *testing.T) {
	backend := &fake.Adapter{
		Targets:    map[string]adapter.TargetRef{"deploy": {ID: "7", Name: "deploy"}},
		StatusPlan: []adapter.Phase{adapter.PhaseRunning},
	}
	e, store := newTestEngine(t, backend, EngineOptions{
		Config: Config{PollInterval: time.Millisecond, PollTimeout: 10 * time.Millisecond},
	})
	id := submitAutomation(t, store, &job.AutomationRequest{TemplateName: "deploy"})

	state := e.RunAutomation(context.Background(), id)

	assert.Equal(t, job.StateFailed, state)
	rec, _ := store.Get(id)
	assert.Contains(t, rec.Message, "timed out")
	assert.Empty(t, backend.Cancels())
}

func TestRunAutomation_ExternalCancelAbandonsLoop(t *testing.T) {
	backend := &fake.Adapter{
		Targets:    map[string]adapter.TargetRef{"deploy": {ID: "7", Name: "deploy"}},
		StatusPlan: []adapter.Phase{adapter.PhaseRunning},
	}
	e, store := newTestEngine(t, backend, EngineOptions{})
	id := submitAutomation(t, store, &job.AutomationRequest{TemplateName: "deploy"})

	backend.OnStatus = func(call int) {
		if call == 1 {
			_, ok := e.Cancel(context.Background(), id)
			require.True(t, ok)
		}
	}

	state := e.RunAutomation(context.Background(), id)

	assert.Equal(t, job.StateCanceled, state)
	rec, _ := store.Get(id)
	assert.Equal(t, job.StateCanceled, rec.State)
	assert.Equal(t, "canceled by request", rec.Message)
	require.Len(t, backend.Cancels(), 1)
}

func TestCancel(t *testing.T) {
	backend := &fake.Adapter{}
	e, store := newTestEngine(t, backend, EngineOptions{})

	_, ok := e.Cancel(context.Background(), "no-such-job")
	assert.False(t, ok)

	id := submitAutomation(t, store, &job.AutomationRequest{TemplateName: "deploy"})
	store.Transition(id, job.StateCompleted, "done")

	rec, ok := e.Cancel(context.Background(), id)
	require.True(t, ok)
	assert.Equal(t, job.StateCompleted, rec.State)
	assert.Empty(t, backend.Cancels())
}

func submitRecord(t *testing.T, store *job.Store, req *job.ChangeRequest) string {
	t.Helper()
	req.Normalize()
	require.NoError(t, req.Validate())
	rec, err := store.Submit(&job.Record{Kind: job.KindRecord, Change: req})
	require.NoError(t, err)
	return rec.ID
}

func TestRunRecord_CreatesMissingZoneAndDocuments(t *testing.T) {
	backend := &fake.Adapter{}
	docPath := filepath.Join(t.TempDir(), "ipam.md")
	e, store := newTestEngine(t, backend, EngineOptions{
		Sink: docsink.NewMarkdownFile(docPath, nil),
	})
	id := submitRecord(t, store, &job.ChangeRequest{
		Zone: "example.com", Name: "web.example.com",
		Type: job.RecordTypeA, Content: "192.0.2.7",
	})

	state := e.RunRecord(context.Background(), id)

	assert.Equal(t, job.StateCompleted, state)
	assert.Equal(t, []string{"example.com"}, backend.Created)

	rec, _ := store.Get(id)
	require.Len(t, rec.Result.DocChanges, 1)
	assert.Contains(t, rec.Result.DocChanges[0], "web.example.com")

	data, err := os.ReadFile(docPath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "web.example.com"))
}

type failingSink struct{}

func (failingSink) Append(ctx context.Context, notes []string) error {
	return fmt.Errorf("document unreachable")
}

func TestRunRecord_SinkFailureDoesNotFailJob(t *testing.T) {
	backend := &fake.Adapter{
		Targets: map[string]adapter.TargetRef{"example.com": {ID: "example.com", Name: "example.com"}},
	}
	e, store := newTestEngine(t, backend, EngineOptions{Sink: failingSink{}})
	id := submitRecord(t, store, &job.ChangeRequest{
		Zone: "example.com", Name: "db.example.com",
		Type: job.RecordTypeCNAME, Content: "db01.example.com",
	})

	state := e.RunRecord(context.Background(), id)

	assert.Equal(t, job.StateCompleted, state)
	assert.Empty(t, backend.Created)
}
