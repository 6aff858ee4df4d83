// Package pdns implements the adapter contract against a PowerDNS
// authoritative server. Targets are zones; an operation is a record upsert
// via an rrset REPLACE patch, applied synchronously, so handles are issued
// already terminal.
package pdns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bakerstreetlabs/holmes-agent/pkg/adapter"
)

// Config configures the PowerDNS adapter.
type Config struct {
	// BaseURL is the root of the PowerDNS HTTP API, e.g.
	// "http://dns.example.com:8081".
	BaseURL string

	// APIKey is sent as the X-API-Key header on every request.
	APIKey string

	// ServerID selects the server instance. Empty means DefaultServerID.
	ServerID string

	// RequestTimeout bounds a single API round trip. Zero means
	// DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// Validate checks that the config can produce a working client.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("pdns base url is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("pdns api key is required")
	}
	return nil
}

// Adapter is the PowerDNS implementation of the adapter contract.
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

// New creates a PowerDNS adapter from the given configuration.
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
	return adapter.BackendPDNS
}

// ResolveTarget resolves a zone name against the server's zone list with a
// case-insensitive exact match. PowerDNS zone names are canonical, so the
// comparison strips the trailing dot on both sides.
func (a *Adapter) ResolveTarget(ctx context.Context, ref string) (adapter.TargetRef, error) {
	want := canonical(ref)
	zones, err := a.client.listZones(ctx)
	if err != nil {
		return adapter.TargetRef{}, err
	}
	for _, z := range zones {
		if strings.EqualFold(canonical(z.Name), want) {
			return adapter.TargetRef{ID: z.ID, Name: canonical(z.Name)}, nil
		}
	}
	return adapter.TargetRef{}, fmt.Errorf("zone %q: %w", want, adapter.ErrTargetNotFound)
}

// CreateTarget creates the zone if it does not already exist.
func (a *Adapter) CreateTarget(ctx context.Context, name string) (adapter.TargetRef, error) {
	zone := canonical(name)
	a.logger.Info("creating zone", zap.String("zone", zone))
	if err := a.client.createZone(ctx, zone+"."); err != nil {
		return adapter.TargetRef{}, err
	}
	return adapter.TargetRef{ID: zone + ".", Name: zone}, nil
}

// ListTargets lists the zones hosted by the server.
func (a *Adapter) ListTargets(ctx context.Context, search string) ([]adapter.TargetRef, error) {
	zones, err := a.client.listZones(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]adapter.TargetRef, 0, len(zones))
	for _, z := range zones {
		name := canonical(z.Name)
		if search != "" && !strings.Contains(name, strings.ToLower(search)) {
			continue
		}
		refs = append(refs, adapter.TargetRef{ID: z.ID, Name: name})
	}
	return refs, nil
}

// Apply upserts the record in the target zone with an rrset REPLACE patch.
// The returned handle is already terminal.
func (a *Adapter) Apply(ctx context.Context, target adapter.TargetRef, params adapter.Parameters) (adapter.Handle, error) {
	if params.RecordName == "" || params.RecordType == "" || params.RecordContent == "" {
		return adapter.Handle{}, &adapter.Error{
			Op: "Apply", Backend: adapter.BackendPDNS, Kind: adapter.KindBackendRejected,
			Err: fmt.Errorf("record name, type, and content are required"),
		}
	}

	name := canonical(params.RecordName) + "."
	err := a.client.replaceRecord(ctx, target.ID, name, params.RecordType, params.RecordContent, params.RecordTTL)
	if err != nil {
		return adapter.Handle{}, &adapter.Error{
			Op: "Apply", Backend: adapter.BackendPDNS, Kind: adapter.KindBackendRejected,
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
