package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/calder-io/steward/internal/domain"
	"github.com/calder-io/steward/policy"
)

// SubmitMessage screens an agent message or task action through the
// policy engine. Allowed submissions are auto-approved, blocked ones
// rejected, and everything else queues for an operator with an
// approval_required event.
func (s *Service) SubmitMessage(ctx context.Context, req domain.SubmitMessageRequest) (*domain.SubmitMessageResponse, error) {
	kind := req.Kind
	if kind == "" {
		kind = domain.ApprovalKindMessage
	}
	if kind != domain.ApprovalKindMessage && kind != domain.ApprovalKindTaskAction {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidArgument, kind)
	}

	var payload any
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &payload); err != nil {
			return nil, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidArgument)
		}
	}

	outcome, reason, err := s.policy.Evaluate(ctx, map[string]any{
		"kind":     string(kind),
		"action":   req.Action,
		"agent_id": req.AgentID,
		"task_id":  req.TaskID,
		"payload":  payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	now := time.Now()
	approval := &domain.Approval{
		ApprovalID: newID("apr"),
		Kind:       kind,
		TaskID:     req.TaskID,
		AgentID:    req.AgentID,
		Action:     req.Action,
		Payload:    req.Payload,
		Reason:     reason,
		CreatedAt:  now,
	}
	switch outcome {
	case policy.DecisionAllow:
		approval.Status = domain.ApprovalStatusAutoApproved
		approval.DecidedBy = "policy"
		approval.DecidedAt = &now
	case policy.DecisionBlock:
		approval.Status = domain.ApprovalStatusRejected
		approval.DecidedBy = "policy"
		approval.DecidedAt = &now
	default:
		approval.Status = domain.ApprovalStatusPending
	}

	if err := s.store.CreateApproval(ctx, approval); err != nil {
		return nil, fmt.Errorf("failed to create approval: %w", err)
	}

	switch approval.Status {
	case domain.ApprovalStatusAutoApproved:
		s.emitEvent(autoApprovedEvent(kind), decisionPayload(approval))
	case domain.ApprovalStatusRejected:
		s.emitEvent(rejectedEvent(kind), decisionPayload(approval))
	default:
		s.emitEvent(queuedEvent(kind), decisionPayload(approval))
		s.emitEvent(domain.EventTypeApprovalRequired, domain.ApprovalRequiredPayload{
			ApprovalID: approval.ApprovalID,
			Kind:       kind,
			TaskID:     req.TaskID,
			AgentID:    req.AgentID,
			Action:     req.Action,
			Reason:     reason,
		})
	}

	return &domain.SubmitMessageResponse{
		ApprovalID: approval.ApprovalID,
		Status:     approval.Status,
		Reason:     reason,
	}, nil
}

// DecideApproval applies an operator decision to a pending approval.
// Deciding an already-decided approval returns its stored state without
// emitting anything, so retries are harmless.
func (s *Service) DecideApproval(ctx context.Context, approvalID string, req domain.ApprovalDecisionRequest) (*domain.Approval, error) {
	status, err := parseDecision(req.Decision)
	if err != nil {
		return nil, err
	}

	approval, err := s.store.GetApproval(ctx, approvalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	if approval == nil {
		return nil, fmt.Errorf("approval %s: %w", approvalID, ErrNotFound)
	}
	if approval.Status != domain.ApprovalStatusPending {
		return approval, nil
	}

	ok, err := s.store.UpdateApprovalStatus(ctx, approvalID, status, req.DecidedBy, req.Reason)
	if err != nil {
		return nil, fmt.Errorf("failed to update approval: %w", err)
	}
	if !ok {
		// A concurrent decision won; report what actually stuck.
		return s.store.GetApproval(ctx, approvalID)
	}

	now := time.Now()
	approval.Status = status
	approval.Reason = req.Reason
	approval.DecidedBy = req.DecidedBy
	approval.DecidedAt = &now

	if status == domain.ApprovalStatusApproved {
		s.emitEvent(approvedEvent(approval.Kind), decisionPayload(approval))
	} else {
		s.emitEvent(rejectedEvent(approval.Kind), decisionPayload(approval))
	}
	return approval, nil
}

// ListApprovals lists approvals, optionally filtered by status.
func (s *Service) ListApprovals(ctx context.Context, status domain.ApprovalStatus) ([]domain.Approval, error) {
	return s.store.ListApprovals(ctx, status)
}

func parseDecision(decision string) (domain.ApprovalStatus, error) {
	switch strings.ToUpper(decision) {
	case "APPROVE", "APPROVED":
		return domain.ApprovalStatusApproved, nil
	case "REJECT", "REJECTED":
		return domain.ApprovalStatusRejected, nil
	}
	return "", fmt.Errorf("%w: decision must be approve or reject", ErrInvalidArgument)
}

func decisionPayload(ap *domain.Approval) domain.ApprovalDecisionPayload {
	return domain.ApprovalDecisionPayload{
		ApprovalID: ap.ApprovalID,
		TaskID:     ap.TaskID,
		Status:     ap.Status,
		Reason:     ap.Reason,
		DecidedBy:  ap.DecidedBy,
	}
}

func queuedEvent(kind domain.ApprovalKind) domain.EventType {
	if kind == domain.ApprovalKindTaskAction {
		return domain.EventTypeTaskActionQueued
	}
	return domain.EventTypeMessageQueued
}

func autoApprovedEvent(kind domain.ApprovalKind) domain.EventType {
	if kind == domain.ApprovalKindTaskAction {
		return domain.EventTypeTaskActionApproved
	}
	return domain.EventTypeMessageAutoApproved
}

func approvedEvent(kind domain.ApprovalKind) domain.EventType {
	if kind == domain.ApprovalKindTaskAction {
		return domain.EventTypeTaskActionApproved
	}
	return domain.EventTypeMessageApproved
}

func rejectedEvent(kind domain.ApprovalKind) domain.EventType {
	if kind == domain.ApprovalKindTaskAction {
		return domain.EventTypeTaskActionRejected
	}
	return domain.EventTypeMessageRejected
}
