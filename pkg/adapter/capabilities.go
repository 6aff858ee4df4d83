package adapter

import "context"

// Optional adapter capability interfaces.
//
// These interfaces are used for feature detection (type assertions). The
// core Adapter interface remains intentionally small.

// TargetCreator can create a missing target.
//
// The DNS backend implements this to auto-create zones; the automation
// backend does not create templates on demand.
type TargetCreator interface {
	// CreateTarget creates the named target if it does not already exist
	// and returns a reference to it. Creating an existing target is not an
	// error.
	CreateTarget(ctx context.Context, name string) (TargetRef, error)
}

// TargetLister can enumerate targets, optionally filtered by a search term.
//
// Used by the template discovery endpoint.
type TargetLister interface {
	ListTargets(ctx context.Context, search string) ([]TargetRef, error)
}
