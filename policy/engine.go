// Package policy evaluates agent messages and task actions against a
// rego policy, deciding whether they run, queue for an operator, or are
// refused outright.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decision outcomes. Anything else coming back from a policy is
// normalized to DecisionRequireApproval.
const (
	DecisionAllow           = "allow"
	DecisionRequireApproval = "require_approval"
	DecisionBlock           = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine prepares the given policy content for evaluation.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.steward.authz.decision"),
		rego.Module("steward_authz.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate runs the policy against an input map (kind, action, agent_id,
// task_id, payload). It returns the decision outcome and a reason.
// Undefined or malformed policy results fail closed to require_approval.
func (e *Engine) Evaluate(ctx context.Context, input any) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionRequireApproval, "policy returned no decision", nil
	}

	switch v := results[0].Expressions[0].Value.(type) {
	case string:
		return normalize(v, "")
	case map[string]interface{}:
		outcome, _ := v["outcome"].(string)
		reason, _ := v["reason"].(string)
		return normalize(outcome, reason)
	default:
		return DecisionRequireApproval, "unexpected policy return type", nil
	}
}

func normalize(outcome, reason string) (string, string, error) {
	switch outcome {
	case DecisionAllow, DecisionRequireApproval, DecisionBlock:
		return outcome, reason, nil
	}
	return DecisionRequireApproval, fmt.Sprintf("unknown policy outcome %q", outcome), nil
}

// DefaultPolicy ships in the binary and applies when no policy file is
// configured. Routine agent chatter is auto-approved, a short block list
// is refused, and everything else waits for an operator.
const DefaultPolicy = `
package steward.authz

routine_actions := {"status_update", "progress_report", "agent_log", "cost_update"}

blocked_actions := {"execute_shell", "delete_repository"}

default decision := {"outcome": "require_approval", "reason": "operator review required"}

decision := {"outcome": "block", "reason": "action is on the block list"} if {
	input.action in blocked_actions
}

decision := {"outcome": "allow", "reason": "routine update"} if {
	input.kind == "message"
	input.action in routine_actions
	not input.action in blocked_actions
}
`
