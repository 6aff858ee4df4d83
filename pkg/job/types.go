// Package job implements the asynchronous job lifecycle: the record schema,
// the in-memory store, and the disk cache that survives restarts.
package job

import (
	"fmt"
	"strings"
	"time"
)

// State is the lifecycle state of a managed job.
//
// NOTE: These values are persisted in the per-job cache files and are part
// of the stable on-disk contract.
type State string

const (
	StateReceived    State = "received"
	StateValidating  State = "validating"
	StateApplying    State = "applying"
	StateMonitoring  State = "monitoring"
	StateDocumenting State = "documenting"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateCanceled    State = "canceled"
)

// Terminal reports whether the state is final. Terminal states are sticky:
// a record never leaves one.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCanceled:
		return true
	}
	return false
}

func (s State) known() bool {
	switch s {
	case StateReceived, StateValidating, StateApplying, StateMonitoring,
		StateDocumenting, StateCompleted, StateFailed, StateCanceled:
		return true
	}
	return false
}

// Kind distinguishes the job variants. It is a closed set; a cached record
// with an unrecognized kind is treated as corrupt.
type Kind string

const (
	// KindAutomation is a single-step automation platform job.
	KindAutomation Kind = "automation"

	// KindOrchestration is a multi-step job decomposed into automation
	// steps executed in order.
	KindOrchestration Kind = "orchestration"

	// KindRecord is a DNS record change job.
	KindRecord Kind = "record"
)

// AutomationRequest is the submitter payload for a single automation job.
type AutomationRequest struct {
	// TemplateID addresses a job template directly. Zero means unset.
	TemplateID int64 `json:"template_id,omitempty"`

	// TemplateName is searched when TemplateID is unset.
	TemplateName string `json:"template_name,omitempty"`

	ExtraVars   map[string]any    `json:"extra_vars,omitempty"`
	InventoryID int64             `json:"inventory_id,omitempty"`
	Limit       string            `json:"limit,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Validate rejects requests that name no template at all.
func (r *AutomationRequest) Validate() error {
	if r.TemplateID == 0 && strings.TrimSpace(r.TemplateName) == "" {
		return fmt.Errorf("either template_id or template_name must be provided")
	}
	return nil
}

// OrchestrationRequest is the submitter payload for a multi-step job.
type OrchestrationRequest struct {
	// Request is the free-form description of the work to perform.
	Request string `json:"request"`

	Context  map[string]any    `json:"context,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate rejects requests too short to mean anything.
func (r *OrchestrationRequest) Validate() error {
	if len(strings.TrimSpace(r.Request)) < 10 {
		return fmt.Errorf("request must be at least 10 characters")
	}
	return nil
}

// RecordType is a supported DNS record type.
type RecordType string

const (
	RecordTypeA     RecordType = "A"
	RecordTypeAAAA  RecordType = "AAAA"
	RecordTypeCNAME RecordType = "CNAME"
	RecordTypeTXT   RecordType = "TXT"
	RecordTypeMX    RecordType = "MX"
	RecordTypeNS    RecordType = "NS"
	RecordTypePTR   RecordType = "PTR"
	RecordTypeSRV   RecordType = "SRV"
)

func (t RecordType) known() bool {
	switch t {
	case RecordTypeA, RecordTypeAAAA, RecordTypeCNAME, RecordTypeTXT,
		RecordTypeMX, RecordTypeNS, RecordTypePTR, RecordTypeSRV:
		return true
	}
	return false
}

// ChangeRequest is the submitter payload for a DNS record change.
type ChangeRequest struct {
	Zone     string            `json:"zone"`
	Name     string            `json:"name"`
	Type     RecordType        `json:"record_type"`
	Content  string            `json:"content"`
	TTL      int               `json:"ttl"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Normalize lowercases and strips trailing dots from the zone and name, and
// defaults the record type and TTL.
func (r *ChangeRequest) Normalize() {
	r.Zone = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(r.Zone), "."))
	r.Name = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(r.Name), "."))
	if r.Type == "" {
		r.Type = RecordTypeA
	}
	if r.TTL == 0 {
		r.TTL = 60
	}
}

// Validate checks the normalized request against the boundary rules.
func (r *ChangeRequest) Validate() error {
	if !strings.Contains(r.Zone, ".") || !strings.Contains(r.Name, ".") {
		return fmt.Errorf("zone and name must be fully-qualified domains")
	}
	if !r.Type.known() {
		return fmt.Errorf("unsupported record type %q", r.Type)
	}
	if strings.TrimSpace(r.Content) == "" {
		return fmt.Errorf("content is required")
	}
	if r.TTL < 1 || r.TTL > 86400 {
		return fmt.Errorf("ttl must be between 1 and 86400")
	}
	return nil
}

// StepOutcome summarizes one decomposed step of an orchestration job.
type StepOutcome struct {
	Action      string `json:"action"`
	Description string `json:"description"`
	JobID       string `json:"job_id,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

// Result holds backend-specific outcome data. Fields are additive-only and
// set as they become known.
type Result struct {
	// RemoteID is the backend-side operation identifier.
	RemoteID string `json:"remote_id,omitempty"`

	// RemotePhase is the last observed backend phase.
	RemotePhase string `json:"remote_phase,omitempty"`

	// Output is trailing diagnostic text fetched from the backend.
	Output string `json:"output,omitempty"`

	// Error is the failure detail when the job ends failed.
	Error string `json:"error,omitempty"`

	// DocChanges lists the documentation notes emitted for the change.
	DocChanges []string `json:"doc_changes,omitempty"`

	// Steps summarizes the per-step outcomes of an orchestration job.
	Steps []StepOutcome `json:"steps,omitempty"`
}

// Record is one tracked unit of submitted work.
//
// The identity fields (ID, Kind, RequestedAt, request payload) are immutable
// after submission. The mutable fields (State, Message, CompletedAt, Result,
// Children) are owned by the Store and change only through Transition.
type Record struct {
	ID          string     `json:"job_id"`
	Kind        Kind       `json:"kind"`
	State       State      `json:"state"`
	RequestedAt time.Time  `json:"requested_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Message     string     `json:"message,omitempty"`

	// Exactly one request payload is set, matching Kind.
	Automation    *AutomationRequest    `json:"automation,omitempty"`
	Orchestration *OrchestrationRequest `json:"orchestration,omitempty"`
	Change        *ChangeRequest        `json:"record,omitempty"`

	Result Result `json:"result"`

	// Children is the ordered list of sub-job ids for orchestration jobs,
	// one per decomposed step.
	Children []string `json:"children,omitempty"`
}

// validate checks schema invariants on a record loaded from disk. A record
// must deserialize to the exact kind it was written as.
func (r *Record) validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("job_id is required")
	}
	if !r.State.known() {
		return fmt.Errorf("unknown state %q", r.State)
	}
	switch r.Kind {
	case KindAutomation:
		if r.Automation == nil {
			return fmt.Errorf("automation job %s has no automation request", r.ID)
		}
	case KindOrchestration:
		if r.Orchestration == nil {
			return fmt.Errorf("orchestration job %s has no orchestration request", r.ID)
		}
	case KindRecord:
		if r.Change == nil {
			return fmt.Errorf("record job %s has no record request", r.ID)
		}
	default:
		return fmt.Errorf("unknown kind %q", r.Kind)
	}
	return nil
}

// clone returns a copy safe to hand to callers outside the store lock. The
// request payloads are immutable after submission and are shared.
func (r *Record) clone() *Record {
	c := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	if r.Children != nil {
		c.Children = append([]string(nil), r.Children...)
	}
	if r.Result.DocChanges != nil {
		c.Result.DocChanges = append([]string(nil), r.Result.DocChanges...)
	}
	if r.Result.Steps != nil {
		c.Result.Steps = append([]StepOutcome(nil), r.Result.Steps...)
	}
	return &c
}
