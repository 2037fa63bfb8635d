package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/calder-io/steward/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dsn and runs
// migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection so schema and data survive across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id TEXT PRIMARY KEY,
			board_column TEXT NOT NULL,
			request TEXT,
			decomposition TEXT,
			final_result TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS subtask_results (
			task_id TEXT NOT NULL,
			subtask_id TEXT NOT NULL,
			result TEXT,
			error TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (task_id, subtask_id),
			FOREIGN KEY (task_id) REFERENCES tasks(task_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subtask_results_task ON subtask_results(task_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS approvals (
			approval_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			task_id TEXT,
			agent_id TEXT,
			action TEXT,
			payload TEXT,
			status TEXT NOT NULL DEFAULT 'PENDING',
			reason TEXT,
			decided_by TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			decided_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_approvals_status ON approvals(status, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateTask inserts a new task checkpoint.
func (s *SQLiteStore) CreateTask(ctx context.Context, task *domain.Task) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (task_id, board_column, request, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		task.TaskID, task.Column, nullStringBytes(task.Request), task.CreatedAt, task.UpdatedAt)
	return err
}

// SaveDecomposition records a task's plan and moves it to executing.
func (s *SQLiteStore) SaveDecomposition(ctx context.Context, taskID string, decomposition []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET decomposition = ?, board_column = ?, updated_at = ? WHERE task_id = ?`,
		nullStringBytes(decomposition), domain.ColumnExecuting, time.Now(), taskID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SaveSubtaskResult upserts one subtask outcome. Re-submitting the same
// subtask id replaces the earlier row.
func (s *SQLiteStore) SaveSubtaskResult(ctx context.Context, res *domain.SubtaskResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO subtask_results (task_id, subtask_id, result, error, created_at) VALUES (?, ?, ?, ?, ?)`,
		res.TaskID, res.SubtaskID, nullStringBytes(res.Result), nullString(res.Error), res.CreatedAt)
	return err
}

// SaveFinal records a task's final result and terminal column.
func (s *SQLiteStore) SaveFinal(ctx context.Context, taskID string, result []byte, column domain.TaskColumn) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET final_result = ?, board_column = ?, updated_at = ? WHERE task_id = ?`,
		nullStringBytes(result), column, time.Now(), taskID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetTask retrieves a task by id.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	var task domain.Task
	var request, decomposition, finalResult sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT task_id, board_column, request, decomposition, final_result, created_at, updated_at FROM tasks WHERE task_id = ?`,
		taskID).Scan(&task.TaskID, &task.Column, &request, &decomposition, &finalResult, &task.CreatedAt, &task.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if request.Valid {
		task.Request = json.RawMessage(request.String)
	}
	if decomposition.Valid {
		task.Decomposition = json.RawMessage(decomposition.String)
	}
	if finalResult.Valid {
		task.FinalResult = json.RawMessage(finalResult.String)
	}
	return &task, nil
}

// ListTasks lists all tasks oldest first.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, board_column, request, decomposition, final_result, created_at, updated_at FROM tasks ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		var task domain.Task
		var request, decomposition, finalResult sql.NullString
		if err := rows.Scan(&task.TaskID, &task.Column, &request, &decomposition, &finalResult, &task.CreatedAt, &task.UpdatedAt); err != nil {
			return nil, err
		}
		if request.Valid {
			task.Request = json.RawMessage(request.String)
		}
		if decomposition.Valid {
			task.Decomposition = json.RawMessage(decomposition.String)
		}
		if finalResult.Valid {
			task.FinalResult = json.RawMessage(finalResult.String)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ListSubtaskResults lists a task's subtask outcomes oldest first.
func (s *SQLiteStore) ListSubtaskResults(ctx context.Context, taskID string) ([]domain.SubtaskResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, subtask_id, result, error, created_at FROM subtask_results WHERE task_id = ? ORDER BY created_at`,
		taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.SubtaskResult
	for rows.Next() {
		var sr domain.SubtaskResult
		var result, errData sql.NullString
		if err := rows.Scan(&sr.TaskID, &sr.SubtaskID, &result, &errData, &sr.CreatedAt); err != nil {
			return nil, err
		}
		if result.Valid {
			sr.Result = json.RawMessage(result.String)
		}
		if errData.Valid {
			sr.Error = errData.String
		}
		results = append(results, sr)
	}
	return results, rows.Err()
}

// CreateApproval inserts a new approval. Policy-decided approvals carry
// their decision fields already set.
func (s *SQLiteStore) CreateApproval(ctx context.Context, approval *domain.Approval) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO approvals (approval_id, kind, task_id, agent_id, action, payload, status, reason, decided_by, created_at, decided_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		approval.ApprovalID, approval.Kind, nullString(approval.TaskID), nullString(approval.AgentID),
		nullString(approval.Action), nullStringBytes(approval.Payload), approval.Status,
		nullString(approval.Reason), nullString(approval.DecidedBy), approval.CreatedAt, approval.DecidedAt)
	return err
}

// GetApproval retrieves an approval by id.
func (s *SQLiteStore) GetApproval(ctx context.Context, approvalID string) (*domain.Approval, error) {
	var ap domain.Approval
	var taskID, agentID, action, payload, reason, decidedBy sql.NullString
	var decidedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT approval_id, kind, task_id, agent_id, action, payload, status, reason, decided_by, created_at, decided_at FROM approvals WHERE approval_id = ?`,
		approvalID).Scan(&ap.ApprovalID, &ap.Kind, &taskID, &agentID, &action, &payload, &ap.Status, &reason, &decidedBy, &ap.CreatedAt, &decidedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if taskID.Valid {
		ap.TaskID = taskID.String
	}
	if agentID.Valid {
		ap.AgentID = agentID.String
	}
	if action.Valid {
		ap.Action = action.String
	}
	if payload.Valid {
		ap.Payload = json.RawMessage(payload.String)
	}
	if reason.Valid {
		ap.Reason = reason.String
	}
	if decidedBy.Valid {
		ap.DecidedBy = decidedBy.String
	}
	if decidedAt.Valid {
		ap.DecidedAt = &decidedAt.Time
	}
	return &ap, nil
}

// UpdateApprovalStatus transitions a pending approval to a decided
// status. It reports false when the approval was already decided, which
// makes operator decisions idempotent.
func (s *SQLiteStore) UpdateApprovalStatus(ctx context.Context, approvalID string, status domain.ApprovalStatus, decidedBy, reason string) (bool, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE approvals SET status = ?, decided_at = ?, decided_by = ?, reason = ? WHERE approval_id = ? AND status = ?`,
		status, now, nullString(decidedBy), nullString(reason), approvalID, domain.ApprovalStatusPending)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListApprovals lists approvals oldest first, optionally filtered by
// status. An empty status lists everything.
func (s *SQLiteStore) ListApprovals(ctx context.Context, status domain.ApprovalStatus) ([]domain.Approval, error) {
	query := `SELECT approval_id, kind, task_id, agent_id, action, payload, status, reason, decided_by, created_at, decided_at FROM approvals`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var approvals []domain.Approval
	for rows.Next() {
		var ap domain.Approval
		var taskID, agentID, action, payload, reason, decidedBy sql.NullString
		var decidedAt sql.NullTime
		if err := rows.Scan(&ap.ApprovalID, &ap.Kind, &taskID, &agentID, &action, &payload, &ap.Status, &reason, &decidedBy, &ap.CreatedAt, &decidedAt); err != nil {
			return nil, err
		}
		if taskID.Valid {
			ap.TaskID = taskID.String
		}
		if agentID.Valid {
			ap.AgentID = agentID.String
		}
		if action.Valid {
			ap.Action = action.String
		}
		if payload.Valid {
			ap.Payload = json.RawMessage(payload.String)
		}
		if reason.Valid {
			ap.Reason = reason.String
		}
		if decidedBy.Valid {
			ap.DecidedBy = decidedBy.String
		}
		if decidedAt.Valid {
			ap.DecidedAt = &decidedAt.Time
		}
		approvals = append(approvals, ap)
	}
	return approvals, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
