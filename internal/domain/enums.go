// Package domain defines the core domain models for steward.
package domain

// RunStatus represents the status of a tool run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether the status is a final one.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// TaskColumn represents the board column a task currently occupies.
type TaskColumn string

const (
	ColumnQueued    TaskColumn = "queued"
	ColumnExecuting TaskColumn = "executing"
	ColumnDone      TaskColumn = "done"
	ColumnFailed    TaskColumn = "failed"
)

// ApprovalStatus represents the status of an approval.
type ApprovalStatus string

const (
	ApprovalStatusPending      ApprovalStatus = "PENDING"
	ApprovalStatusApproved     ApprovalStatus = "APPROVED"
	ApprovalStatusRejected     ApprovalStatus = "REJECTED"
	ApprovalStatusAutoApproved ApprovalStatus = "AUTO_APPROVED"
)

// ApprovalKind distinguishes what a pending approval gates.
type ApprovalKind string

const (
	ApprovalKindMessage    ApprovalKind = "message"
	ApprovalKindTaskAction ApprovalKind = "task_action"
)

// EventType represents the type of an event on the stream.
type EventType string

const (
	EventTypeConnected EventType = "connected"

	EventTypeToolRunStarted   EventType = "tool_run_started"
	EventTypeToolRunCompleted EventType = "tool_run_completed"
	EventTypeToolRunFailed    EventType = "tool_run_failed"
	EventTypeToolRunCancelled EventType = "tool_run_cancelled"

	EventTypeTaskColumnChanged EventType = "task_column_changed"
	EventTypeSubtaskStarted    EventType = "subtask_started"
	EventTypeSubtaskCompleted  EventType = "subtask_completed"
	EventTypeSubtaskFailed     EventType = "subtask_failed"

	EventTypeAgentAction EventType = "agent_action"
	EventTypeCostUpdate  EventType = "cost_update"

	EventTypeApprovalRequired    EventType = "approval_required"
	EventTypeMessageQueued       EventType = "message_queued"
	EventTypeMessageApproved     EventType = "message_approved"
	EventTypeMessageRejected     EventType = "message_rejected"
	EventTypeMessageAutoApproved EventType = "message_auto_approved"
	EventTypeTaskActionQueued    EventType = "task_action_queued"
	EventTypeTaskActionApproved  EventType = "task_action_approved"
	EventTypeTaskActionRejected  EventType = "task_action_rejected"

	EventTypeAgentStatusChanged EventType = "agent_status_changed"
	EventTypeAgentConnected     EventType = "agent_connected"
	EventTypeAgentDisconnected  EventType = "agent_disconnected"
	EventTypeAgentLog           EventType = "agent_log"
	EventTypeGatewayStatus      EventType = "gateway_status"
)

// KnownEventTypes lists every event type steward itself emits or accepts
// from external emitters.
var KnownEventTypes = map[EventType]bool{
	EventTypeConnected:           true,
	EventTypeToolRunStarted:      true,
	EventTypeToolRunCompleted:    true,
	EventTypeToolRunFailed:       true,
	EventTypeToolRunCancelled:    true,
	EventTypeTaskColumnChanged:   true,
	EventTypeSubtaskStarted:      true,
	EventTypeSubtaskCompleted:    true,
	EventTypeSubtaskFailed:       true,
	EventTypeAgentAction:         true,
	EventTypeCostUpdate:          true,
	EventTypeApprovalRequired:    true,
	EventTypeMessageQueued:       true,
	EventTypeMessageApproved:     true,
	EventTypeMessageRejected:     true,
	EventTypeMessageAutoApproved: true,
	EventTypeTaskActionQueued:    true,
	EventTypeTaskActionApproved:  true,
	EventTypeTaskActionRejected:  true,
	EventTypeAgentStatusChanged:  true,
	EventTypeAgentConnected:      true,
	EventTypeAgentDisconnected:   true,
	EventTypeAgentLog:            true,
	EventTypeGatewayStatus:       true,
}
