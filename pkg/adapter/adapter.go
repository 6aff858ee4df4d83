// Package adapter defines the abstraction over external automation backends.
//
// A backend is anything that can execute a unit of work against a resolved
// target: an automation platform launching a job template, or a DNS server
// applying a record change. The job store and the workflow engine depend
// only on this capability set, never on a concrete backend.
package adapter

import "context"

// Backend identifies a backend family.
type Backend string

const (
	// BackendAWX is the Ansible automation platform backend.
	BackendAWX Backend = "awx"

	// BackendDNS is the Technitium DNS server backend.
	BackendDNS Backend = "dns"

	// BackendPDNS is the PowerDNS authoritative server backend.
	BackendPDNS Backend = "pdns"

	// BackendFake is the in-memory backend used by tests.
	BackendFake Backend = "fake"
)

// String returns the string representation of the backend.
func (b Backend) String() string {
	return string(b)
}

// TargetRef is a resolved, concrete object an operation is applied against,
// such as a job template or a DNS zone.
type TargetRef struct {
	// ID is the backend-native identifier of the target.
	ID string

	// Name is the symbolic name the target was resolved from.
	Name string

	// Description is optional human-readable detail from the backend.
	Description string
}

// Phase is the backend-side state of an operation, mapped into a fixed set
// regardless of the backend's native status vocabulary.
type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseRunning   Phase = "running"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
	PhaseCanceled  Phase = "canceled"
)

// Terminal reports whether the phase is final.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseSucceeded, PhaseFailed, PhaseCanceled:
		return true
	}
	return false
}

// Handle is the opaque reference to a backend-side operation returned by
// Apply and used for subsequent polling.
type Handle struct {
	// ID is the backend-native operation identifier.
	ID string

	// Phase is the phase observed when the handle was issued. Synchronous
	// backends issue handles that are already terminal.
	Phase Phase
}

// Parameters carries the inputs for an Apply call. Each backend reads the
// fields it understands and rejects parameter sets it cannot serve.
type Parameters struct {
	// Automation platform parameters.
	ExtraVars   map[string]any
	InventoryID int64
	Limit       string

	// DNS record parameters.
	RecordName    string
	RecordType    string
	RecordContent string
	RecordTTL     int
}

// Adapter abstracts a single external backend.
//
// Implementations must be safe for concurrent use: multiple jobs poll and
// apply through the same adapter instance.
type Adapter interface {
	// Backend returns the backend family this adapter talks to.
	Backend() Backend

	// ResolveTarget resolves a symbolic reference (template name or numeric
	// id, zone name) to a concrete target. Matching is exact and
	// case-insensitive; an ambiguous or unknown reference returns
	// ErrTargetNotFound rather than a guess. ResolveTarget is idempotent
	// and side-effect-free.
	ResolveTarget(ctx context.Context, ref string) (TargetRef, error)

	// Apply executes the unit of work against the target and returns a
	// handle for polling. A backend that refuses the parameters fails with
	// KindBackendRejected; a target that disappeared between resolve and
	// apply fails with KindTargetMissing.
	Apply(ctx context.Context, target TargetRef, params Parameters) (Handle, error)

	// Status returns the current phase of the backend-side operation.
	// It is a pure read and safe to call arbitrarily often.
	Status(ctx context.Context, h Handle) (Phase, error)

	// Output returns trailing diagnostic text for the operation. Absence
	// of output is reported as ErrOutputUnavailable, not a failure.
	Output(ctx context.Context, h Handle) (string, error)

	// Cancel asks the backend to stop the operation. The boolean reports
	// whether cancellation was accepted, not whether the operation already
	// stopped.
	Cancel(ctx context.Context, h Handle) (bool, error)
}
