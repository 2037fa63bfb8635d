package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, content string) *Engine {
	t.Helper()
	eng, err := NewEngine(context.Background(), content)
	require.NoError(t, err)
	return eng
}

func TestDefaultPolicyDecisions(t *testing.T) {
	eng := newTestEngine(t, DefaultPolicy)

	tests := []struct {
		name    string
		input   map[string]any
		outcome string
	}{
		{
			name:    "routine message auto-approved",
			input:   map[string]any{"kind": "message", "action": "status_update"},
			outcome: DecisionAllow,
		},
		{
			name:    "cost update auto-approved",
			input:   map[string]any{"kind": "message", "action": "cost_update"},
			outcome: DecisionAllow,
		},
		{
			name:    "blocked action refused",
			input:   map[string]any{"kind": "message", "action": "execute_shell"},
			outcome: DecisionBlock,
		},
		{
			name:    "blocked task action refused",
			input:   map[string]any{"kind": "task_action", "action": "delete_repository"},
			outcome: DecisionBlock,
		},
		{
			name:    "unrecognized action queued for operator",
			input:   map[string]any{"kind": "task_action", "action": "merge_pull_request"},
			outcome: DecisionRequireApproval,
		},
		{
			name:    "routine action on a task_action still queued",
			input:   map[string]any{"kind": "task_action", "action": "status_update"},
			outcome: DecisionRequireApproval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, reason, err := eng.Evaluate(context.Background(), tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.outcome, outcome)
			require.NotEmpty(t, reason)
		})
	}
}

func TestStringDecisionPolicy(t *testing.T) {
	const content = `
package steward.authz

default decision := "allow"

decision := "block" if {
	input.action == "rm_rf"
}
`
	eng := newTestEngine(t, content)

	outcome, _, err := eng.Evaluate(context.Background(), map[string]any{"action": "anything"})
	require.NoError(t, err)
	require.Equal(t, DecisionAllow, outcome)

	outcome, _, err = eng.Evaluate(context.Background(), map[string]any{"action": "rm_rf"})
	require.NoError(t, err)
	require.Equal(t, DecisionBlock, outcome)
}

func TestUnknownOutcomeFailsClosed(t *testing.T) {
	const content = `
package steward.authz

default decision := {"outcome": "shrug", "reason": "who knows"}
`
	eng := newTestEngine(t, content)

	outcome, reason, err := eng.Evaluate(context.Background(), map[string]any{"action": "x"})
	require.NoError(t, err)
	require.Equal(t, DecisionRequireApproval, outcome)
	require.Contains(t, reason, "shrug")
}

func TestInvalidPolicyContent(t *testing.T) {
	_, err := NewEngine(context.Background(), "this is not rego {{{")
	require.Error(t, err)
}
