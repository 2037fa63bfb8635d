// Package store persists checkpointed tasks, subtask results, and
// approvals. Runs and events are deliberately not persisted; the event
// log is an in-memory ring and runs die with the process.
package store

import (
	"context"

	"github.com/calder-io/steward/internal/domain"
)

// Store is the checkpoint persistence interface. Get methods return
// (nil, nil) for unknown ids; conditional updates report whether a row
// was affected.
type Store interface {
	CreateTask(ctx context.Context, task *domain.Task) error
	SaveDecomposition(ctx context.Context, taskID string, decomposition []byte) (bool, error)
	SaveSubtaskResult(ctx context.Context, res *domain.SubtaskResult) error
	SaveFinal(ctx context.Context, taskID string, result []byte, column domain.TaskColumn) (bool, error)
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)
	ListTasks(ctx context.Context) ([]domain.Task, error)
	ListSubtaskResults(ctx context.Context, taskID string) ([]domain.SubtaskResult, error)

	CreateApproval(ctx context.Context, approval *domain.Approval) error
	GetApproval(ctx context.Context, approvalID string) (*domain.Approval, error)
	UpdateApprovalStatus(ctx context.Context, approvalID string, status domain.ApprovalStatus, decidedBy, reason string) (bool, error)
	ListApprovals(ctx context.Context, status domain.ApprovalStatus) ([]domain.Approval, error)

	Close() error
}
