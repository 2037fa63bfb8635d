package domain

import "encoding/json"

// ToolRunRequest is the engine's input for starting one tool run.
// Either Args (rendered as --key value flags after the entrypoint) or
// Command (raw argv passed to the runtime verbatim) describes the
// invocation; Command wins when both are set.
type ToolRunRequest struct {
	ToolName       string            `json:"tool_name"`
	ToolLabel      string            `json:"tool_label,omitempty"`
	ToolDir        string            `json:"tool_dir,omitempty"`
	Entrypoint     string            `json:"entrypoint,omitempty"`
	Runtime        string            `json:"runtime"`
	Args           map[string]string `json:"args,omitempty"`
	Command        []string          `json:"command,omitempty"`
	EnvAllowlist   []string          `json:"env_allowlist,omitempty"`
	TimeoutSeconds float64           `json:"timeout_seconds,omitempty"`
	MaxOutputBytes int               `json:"max_output_bytes,omitempty"`

	// OnEvent, when set, receives each of this run's lifecycle events
	// synchronously. Never serialized.
	OnEvent func(Event) `json:"-"`
}

// StartRunRequest is the transport request for starting a run by tool name.
// Manifest defaults fill anything left unset.
type StartRunRequest struct {
	ToolName       string            `json:"tool_name"`
	Args           map[string]string `json:"args,omitempty"`
	Command        []string          `json:"command,omitempty"`
	TimeoutSeconds float64           `json:"timeout_seconds,omitempty"`
}

// StartRunResponse acknowledges an accepted run.
type StartRunResponse struct {
	RunID  string    `json:"run_id"`
	Status RunStatus `json:"status"`
}

// CreateTaskRequest creates a checkpointed task.
type CreateTaskRequest struct {
	TaskID  string          `json:"task_id,omitempty"`
	Request json.RawMessage `json:"request"`
}

// SubtaskResultRequest submits one subtask outcome.
type SubtaskResultRequest struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// FinalResultRequest records a task's final result. Failed moves the
// task to the failed column instead of done.
type FinalResultRequest struct {
	Result json.RawMessage `json:"result,omitempty"`
	Failed bool            `json:"failed,omitempty"`
}

// SubmitMessageRequest submits an agent message for policy screening.
type SubmitMessageRequest struct {
	TaskID  string          `json:"task_id,omitempty"`
	AgentID string          `json:"agent_id,omitempty"`
	Action  string          `json:"action,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	// Kind defaults to "message"; "task_action" queues a board action.
	Kind ApprovalKind `json:"kind,omitempty"`
}

// SubmitMessageResponse reports the policy outcome for a submission.
type SubmitMessageResponse struct {
	ApprovalID string         `json:"approval_id"`
	Status     ApprovalStatus `json:"status"`
	Reason     string         `json:"reason,omitempty"`
}

// ApprovalDecisionRequest carries an operator decision on an approval.
type ApprovalDecisionRequest struct {
	Decision  string `json:"decision"` // APPROVED or REJECTED
	Reason    string `json:"reason,omitempty"`
	DecidedBy string `json:"decided_by,omitempty"`
}

// PublishEventRequest lets external emitters (gateway, planners) put a
// domain event on the stream.
type PublishEventRequest struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TaskHealth is the watchdog's view of one task.
type TaskHealth struct {
	Monitored bool  `json:"monitored"`
	Stuck     bool  `json:"stuck"`
	ElapsedMs int64 `json:"elapsed_ms"`
}
