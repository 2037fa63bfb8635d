package domain

import (
	"encoding/json"
	"time"
)

// Event is an immutable fact about engine or domain state change. The id is
// assigned by the event log when the event is buffered and is never reused.
type Event struct {
	ID      int64           `json:"id"`
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ts      int64           `json:"ts"` // Unix milliseconds
}

// ToolRun represents one external process invocation.
type ToolRun struct {
	RunID     string            `json:"run_id"`
	ToolName  string            `json:"tool_name"`
	ToolLabel string            `json:"tool_label,omitempty"`
	Args      map[string]string `json:"args,omitempty"`
	Command   []string          `json:"command,omitempty"`
	Status    RunStatus         `json:"status"`
	StartedAt int64             `json:"started_at"` // Unix milliseconds
	// CompletedAt and ExitCode stay nil until the run reaches a terminal
	// status.
	CompletedAt     *int64 `json:"completed_at,omitempty"`
	ExitCode        *int   `json:"exit_code,omitempty"`
	Error           string `json:"error,omitempty"`
	Stdout          string `json:"stdout,omitempty"`
	Stderr          string `json:"stderr,omitempty"`
	StdoutTruncated bool   `json:"stdout_truncated,omitempty"`
	StderrTruncated bool   `json:"stderr_truncated,omitempty"`
}

// Task represents a checkpointed unit of operator-visible work.
type Task struct {
	TaskID        string          `json:"task_id"`
	Column        TaskColumn      `json:"column"`
	Request       json.RawMessage `json:"request,omitempty"`
	Decomposition json.RawMessage `json:"decomposition,omitempty"`
	FinalResult   json.RawMessage `json:"final_result,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// SubtaskResult is one persisted subtask outcome under a task.
type SubtaskResult struct {
	TaskID    string          `json:"task_id"`
	SubtaskID string          `json:"subtask_id"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Approval represents a queued action awaiting an operator decision.
type Approval struct {
	ApprovalID string          `json:"approval_id"`
	Kind       ApprovalKind    `json:"kind"`
	TaskID     string          `json:"task_id,omitempty"`
	AgentID    string          `json:"agent_id,omitempty"`
	Action     string          `json:"action,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Status     ApprovalStatus  `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	DecidedBy  string          `json:"decided_by,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	DecidedAt  *time.Time      `json:"decided_at,omitempty"`
}

// ToolManifest describes a registered tool the engine may run.
type ToolManifest struct {
	Name           string   `json:"name"`
	Label          string   `json:"label,omitempty"`
	Dir            string   `json:"dir,omitempty"`
	Runtime        string   `json:"runtime"`
	Entrypoint     string   `json:"entrypoint"`
	TimeoutSeconds float64  `json:"timeout_seconds,omitempty"`
	MaxOutputBytes int      `json:"max_output_bytes,omitempty"`
	EnvAllowlist   []string `json:"env_allowlist,omitempty"`
}
