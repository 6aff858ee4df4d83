// Package fake provides an in-memory backend adapter for tests. It lets
// callers script target resolution, apply outcomes, and polling sequences
// without touching a real automation controller.
package fake

import (
	"context"
	"strconv"
	"sync"

	"github.com/bakerstreetlabs/holmes-agent/pkg/adapter"
)

// ApplyCall records one Apply invocation.
type ApplyCall struct {
	Target adapter.TargetRef
	Params adapter.Parameters
}

// Adapter is a scriptable adapter.Adapter implementation. The zero value
// resolves nothing; populate Targets and the plan fields before use.
type Adapter struct {
	mu sync.Mutex

	// Targets maps a resolvable reference (name or ID) to its target.
	Targets map[string]adapter.TargetRef

	// ApplyErr, when set, is returned from every Apply call.
	ApplyErr error

	// StatusPlan is consumed one phase per Status call. When exhausted,
	// Status keeps returning its final element.
	StatusPlan []adapter.Phase

	// OnStatus, when set, runs after each Status call with the 1-based
	// call count. It runs outside the adapter's lock.
	OnStatus func(call int)

	OutputText string
	OutputErr  error

	CancelAccepted bool
	CancelErr      error

	// Created collects names passed to CreateTarget.
	Created []string

	applies    []ApplyCall
	statusIdx  int
	cancels    []adapter.Handle
	nextHandle int
}

var (
	_ adapter.Adapter       = (*Adapter)(nil)
	_ adapter.TargetCreator = (*Adapter)(nil)
	_ adapter.TargetLister  = (*Adapter)(nil)
)

func (f *Adapter) Backend() adapter.Backend { return adapter.BackendFake }

func (f *Adapter) ResolveTarget(ctx context.Context, ref string) (adapter.TargetRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.Targets[ref]; ok {
		return t, nil
	}
	return adapter.TargetRef{}, &adapter.Error{
		Op:      "resolve target",
		Backend: adapter.BackendFake,
		Kind:    adapter.KindTargetMissing,
		Err:     adapter.ErrTargetNotFound,
	}
}

func (f *Adapter) CreateTarget(ctx context.Context, name string) (adapter.TargetRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Created = append(f.Created, name)
	t := adapter.TargetRef{ID: name, Name: name}
	if f.Targets == nil {
		f.Targets = map[string]adapter.TargetRef{}
	}
	f.Targets[name] = t
	return t, nil
}

func (f *Adapter) ListTargets(ctx context.Context, search string) ([]adapter.TargetRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]adapter.TargetRef, 0, len(f.Targets))
	for _, t := range f.Targets {
		out = append(out, t)
	}
	return out, nil
}

func (f *Adapter) Apply(ctx context.Context, target adapter.TargetRef, params adapter.Parameters) (adapter.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applies = append(f.applies, ApplyCall{Target: target, Params: params})
	if f.ApplyErr != nil {
		return adapter.Handle{}, f.ApplyErr
	}
	f.nextHandle++
	phase := adapter.PhasePending
	if len(f.StatusPlan) == 0 {
		phase = adapter.PhaseSucceeded
	}
	return adapter.Handle{ID: handleID(f.nextHandle), Phase: phase}, nil
}

func (f *Adapter) Status(ctx context.Context, h adapter.Handle) (adapter.Phase, error) {
	f.mu.Lock()
	phase := adapter.PhaseSucceeded
	if len(f.StatusPlan) > 0 {
		i := f.statusIdx
		if i >= len(f.StatusPlan) {
			i = len(f.StatusPlan) - 1
		}
		phase = f.StatusPlan[i]
	}
	f.statusIdx++
	call := f.statusIdx
	hook := f.OnStatus
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	return phase, nil
}

func (f *Adapter) Output(ctx context.Context, h adapter.Handle) (string, error) {
	if f.OutputErr != nil {
		return "", f.OutputErr
	}
	return f.OutputText, nil
}

func (f *Adapter) Cancel(ctx context.Context, h adapter.Handle) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, h)
	if f.CancelErr != nil {
		return false, f.CancelErr
	}
	return f.CancelAccepted, nil
}

// Applies returns a copy of the recorded Apply calls.
func (f *Adapter) Applies() []ApplyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ApplyCall, len(f.applies))
	copy(out, f.applies)
	return out
}

// StatusCalls returns how many times Status has been called.
func (f *Adapter) StatusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusIdx
}

// Cancels returns a copy of the handles passed to Cancel.
func (f *Adapter) Cancels() []adapter.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]adapter.Handle, len(f.cancels))
	copy(out, f.cancels)
	return out
}

func handleID(n int) string {
	return "fake-" + strconv.Itoa(n)
}
