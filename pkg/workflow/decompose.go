// Package workflow drives submitted jobs through their lifecycle: single-step
// automation jobs, DNS record changes, and multi-step orchestrations
// decomposed from free-form requests.
package workflow

import (
	"context"
	"fmt"
	"strings"
)

// Step is one decomposed unit of an orchestration request.
type Step struct {
	Action      string
	Description string
}

// Decomposer turns a free-form request into an ordered list of steps. A
// decomposer never fails: unrecognized input yields a single generic step.
type Decomposer interface {
	Decompose(ctx context.Context, request string, reqContext map[string]any) []Step
}

// installablePackages are the packages the rule decomposer recognizes in
// "install X" style requests.
var installablePackages = []string{"nginx", "docker", "postgresql", "redis", "haproxy"}

// RuleDecomposer matches request phrasing against a small fixed rule set.
//
// TODO: add an LLM-backed decomposer behind the same interface once a
// planning endpoint is available.
type RuleDecomposer struct{}

var _ Decomposer = RuleDecomposer{}

func (RuleDecomposer) Decompose(ctx context.Context, request string, reqContext map[string]any) []Step {
	lowered := strings.ToLower(request)

	if strings.Contains(lowered, "deploy") && strings.Contains(lowered, "kubernetes") {
		return []Step{
			{Action: "provision-k8s-cluster", Description: "Provision a Kubernetes cluster"},
			{Action: "configure-k8s", Description: "Configure the Kubernetes cluster and deploy workloads"},
		}
	}

	if strings.Contains(lowered, "install") {
		for _, pkg := range installablePackages {
			if strings.Contains(lowered, pkg) {
				return []Step{{
					Action:      "install-" + pkg,
					Description: fmt.Sprintf("Install and configure %s", pkg),
				}}
			}
		}
	}

	description := strings.TrimSpace(request)
	if description == "" {
		description = "Execute the requested operation"
	}
	return []Step{{Action: "execute-request", Description: description}}
}
