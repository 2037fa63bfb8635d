package domain

// ConnectedPayload is the payload for the synthetic connected event sent to
// a freshly admitted stream subscriber.
type ConnectedPayload struct {
	LastEventID int64 `json:"last_event_id"`
	// ReplayGap is true when the subscriber's last-seen id predates the
	// retained window, meaning events were missed.
	ReplayGap bool `json:"replay_gap,omitempty"`
}

// ToolRunStartedPayload is the payload for tool_run_started.
type ToolRunStartedPayload struct {
	RunID     string `json:"run_id"`
	ToolName  string `json:"tool_name"`
	ToolLabel string `json:"tool_label,omitempty"`
}

// ToolRunFinishedPayload is the payload for tool_run_completed,
// tool_run_failed and tool_run_cancelled.
type ToolRunFinishedPayload struct {
	RunID      string `json:"run_id"`
	ToolName   string `json:"tool_name"`
	ExitCode   *int   `json:"exit_code,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Truncated  bool   `json:"truncated,omitempty"`
}

// TaskColumnChangedPayload is the payload for task_column_changed.
type TaskColumnChangedPayload struct {
	TaskID string     `json:"task_id"`
	From   TaskColumn `json:"from,omitempty"`
	To     TaskColumn `json:"to"`
}

// SubtaskPayload is the payload for subtask_started, subtask_completed and
// subtask_failed.
type SubtaskPayload struct {
	TaskID    string `json:"task_id"`
	SubtaskID string `json:"subtask_id"`
	Error     string `json:"error,omitempty"`
}

// ApprovalRequiredPayload is the payload for approval_required.
type ApprovalRequiredPayload struct {
	ApprovalID string       `json:"approval_id"`
	Kind       ApprovalKind `json:"kind"`
	TaskID     string       `json:"task_id,omitempty"`
	AgentID    string       `json:"agent_id,omitempty"`
	Action     string       `json:"action,omitempty"`
	Reason     string       `json:"reason,omitempty"`
}

// ApprovalDecisionPayload is the payload for the message_* and
// task_action_* decision events.
type ApprovalDecisionPayload struct {
	ApprovalID string         `json:"approval_id"`
	TaskID     string         `json:"task_id,omitempty"`
	Status     ApprovalStatus `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	DecidedBy  string         `json:"decided_by,omitempty"`
}

// AgentStatusPayload is the payload for the agent_* status events.
type AgentStatusPayload struct {
	AgentID string `json:"agent_id"`
	Status  string `json:"status,omitempty"`
}

// GatewayStatusPayload is the payload for gateway_status.
type GatewayStatusPayload struct {
	Status  string `json:"status"`
	Viewers int    `json:"viewers"`
}

// CostUpdatePayload is the payload for cost_update.
type CostUpdatePayload struct {
	TaskID      string  `json:"task_id,omitempty"`
	CostUSD     float64 `json:"cost_usd"`
	TotalTokens int     `json:"total_tokens,omitempty"`
}

// AgentLogPayload is the payload for agent_log.
type AgentLogPayload struct {
	AgentID string `json:"agent_id,omitempty"`
	Level   string `json:"level,omitempty"`
	Message string `json:"message"`
}
