// Package dns implements the adapter contract against a Technitium DNS
// server. Targets are zones; an operation is a record upsert, which the
// backend applies synchronously, so handles are issued already terminal.
package dns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bakerstreetlabs/holmes-agent/pkg/adapter"
)

// Config configures the DNS adapter.
type Config struct {
	// BaseURL is the root of the Technitium HTTP API, e.g.
	// "http://dns.example.com:5380".
	BaseURL string

	// Token is the Technitium API token, sent as a query parameter.
	Token string

	// RequestTimeout bounds a single API round trip. Zero means
	// DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// Validate checks that the config can produce a working client.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("dns base url is required")
	}
	if strings.TrimSpace(c.Token) == "" {
		return fmt.Errorf("dns api token is required")
	}
	return nil
}

// Adapter is the Technitium implementation of the adapter contract.
type Adapter struct {
	client *client
	logger *zap.Logger
}

// Ensure Adapter implements the interfaces.
var (
	_ adapter.Adapter       = (*Adapter)(nil)
	_ adapter.TargetCreator = (*Adapter)(nil)
	_ adapter.TargetLister  = (*Adapter)(nil)
)

// New creates a DNS adapter from the given configuration.
func New(cfg Config, logger *zap.Logger) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{client: newClient(cfg), logger: logger}, nil
}

// Backend returns the backend family.
func (a *Adapter) Backend() adapter.Backend {
	return adapter.BackendDNS
}

// ResolveTarget resolves a zone name against the server's zone list with a
// case-insensitive exact match. A missing zone is ErrTargetNotFound; zone
// creation is the TargetCreator capability, not resolution.
func (a *Adapter) ResolveTarget(ctx context.Context, ref string) (adapter.TargetRef, error) {
	want := canonical(ref)
	zones, err := a.client.listZones(ctx)
	if err != nil {
		return adapter.TargetRef{}, err
	}
	for _, z := range zones {
		if strings.EqualFold(canonical(z.Name), want) {
			return adapter.TargetRef{ID: canonical(z.Name), Name: z.Name}, nil
		}
	}
	return adapter.TargetRef{}, fmt.Errorf("zone %q: %w", want, adapter.ErrTargetNotFound)
}

// CreateTarget creates the zone if it does not already exist.
func (a *Adapter) CreateTarget(ctx context.Context, name string) (adapter.TargetRef, error) {
	zone := canonical(name)
	a.logger.Info("creating zone", zap.String("zone", zone))
	if err := a.client.createZone(ctx, zone); err != nil {
		return adapter.TargetRef{}, err
	}
	return adapter.TargetRef{ID: zone, Name: zone}, nil
}

// ListTargets lists the zones hosted by the server.
func (a *Adapter) ListTargets(ctx context.Context, search string) ([]adapter.TargetRef, error) {
	zones, err := a.client.listZones(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]adapter.TargetRef, 0, len(zones))
	for _, z := range zones {
		if search != "" && !strings.Contains(strings.ToLower(z.Name), strings.ToLower(search)) {
			continue
		}
		refs = append(refs, adapter.TargetRef{ID: canonical(z.Name), Name: z.Name})
	}
	return refs, nil
}

// Apply upserts the record in the target zone. The server has no native
// update, so a conflicting add is retried as delete-then-add. The returned
// handle is already terminal.
func (a *Adapter) Apply(ctx context.Context, target adapter.TargetRef, params adapter.Parameters) (adapter.Handle, error) {
	if params.RecordName == "" || params.RecordType == "" || params.RecordContent == "" {
		return adapter.Handle{}, &adapter.Error{
			Op: "Apply", Backend: adapter.BackendDNS, Kind: adapter.KindBackendRejected,
			Err: fmt.Errorf("record name, type, and content are required"),
		}
	}

	err := a.client.addRecord(ctx, target.ID, params.RecordName, params.RecordType, params.RecordContent, params.RecordTTL)
	if errors.Is(err, errConflict) {
		a.logger.Info("record exists, replacing",
			zap.String("zone", target.ID),
			zap.String("name", params.RecordName))
		if delErr := a.client.deleteRecord(ctx, target.ID, params.RecordName, params.RecordType); delErr != nil {
			a.logger.Warn("could not delete existing record, attempting add anyway", zap.Error(delErr))
		}
		err = a.client.addRecord(ctx, target.ID, params.RecordName, params.RecordType, params.RecordContent, params.RecordTTL)
	}
	if err != nil {
		return adapter.Handle{}, &adapter.Error{
			Op: "Apply", Backend: adapter.BackendDNS, Kind: adapter.KindBackendRejected,
			Err: err,
		}
	}

	return adapter.Handle{
		ID:    target.ID + "/" + params.RecordName + "/" + params.RecordType,
		Phase: adapter.PhaseSucceeded,
	}, nil
}

// Status returns the phase recorded on the handle: record changes complete
// within Apply, so there is nothing to poll.
func (a *Adapter) Status(ctx context.Context, h adapter.Handle) (adapter.Phase, error) {
	if h.Phase == "" {
		return adapter.PhaseSucceeded, nil
	}
	return h.Phase, nil
}

// Output reports that the backend has no diagnostic output for record
// changes.
func (a *Adapter) Output(ctx context.Context, h adapter.Handle) (string, error) {
	return "", adapter.ErrOutputUnavailable
}

// Cancel reports that a synchronous backend has nothing to cancel.
func (a *Adapter) Cancel(ctx context.Context, h adapter.Handle) (bool, error) {
	return false, nil
}

func canonical(name string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
}
