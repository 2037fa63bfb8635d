package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calder-io/steward/internal/domain"
)

func TestSubmitMessageRoutineAutoApproved(t *testing.T) {
	env := newTestService(t)

	resp, err := env.svc.SubmitMessage(context.Background(), domain.SubmitMessageRequest{
		TaskID:  "task_video",
		AgentID: "agent_writer",
		Action:  "status_update",
		Payload: json.RawMessage(`{"text":"drafting scene 2"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusAutoApproved, resp.Status)

	ap, err := env.svc.store.GetApproval(context.Background(), resp.ApprovalID)
	require.NoError(t, err)
	require.NotNil(t, ap)
	assert.Equal(t, domain.ApprovalKindMessage, ap.Kind)
	assert.Equal(t, "policy", ap.DecidedBy)
	require.NotNil(t, ap.DecidedAt)

	assert.Equal(t, []domain.EventType{domain.EventTypeMessageAutoApproved}, env.eventTypes())
}

func TestSubmitMessageBlockedAction(t *testing.T) {
	env := newTestService(t)

	resp, err := env.svc.SubmitMessage(context.Background(), domain.SubmitMessageRequest{
		AgentID: "agent_rogue",
		Action:  "execute_shell",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusRejected, resp.Status)
	assert.NotEmpty(t, resp.Reason)

	assert.Equal(t, []domain.EventType{domain.EventTypeMessageRejected}, env.eventTypes())
}

func TestSubmitMessageQueuesForOperator(t *testing.T) {
	env := newTestService(t)

	resp, err := env.svc.SubmitMessage(context.Background(), domain.SubmitMessageRequest{
		TaskID:  "task_video",
		AgentID: "agent_publisher",
		Action:  "publish_video",
		Payload: json.RawMessage(`{"video_id":"vid_42"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusPending, resp.Status)

	assert.Equal(t, []domain.EventType{
		domain.EventTypeMessageQueued,
		domain.EventTypeApprovalRequired,
	}, env.eventTypes())

	var required domain.ApprovalRequiredPayload
	require.NoError(t, json.Unmarshal(env.lastEvent(t).Payload, &required))
	assert.Equal(t, resp.ApprovalID, required.ApprovalID)
	assert.Equal(t, domain.ApprovalKindMessage, required.Kind)
	assert.Equal(t, "publish_video", required.Action)
	assert.Equal(t, "agent_publisher", required.AgentID)

	pending, err := env.svc.ListApprovals(context.Background(), domain.ApprovalStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, resp.ApprovalID, pending[0].ApprovalID)
}

func TestSubmitTaskActionNeverAutoApproved(t *testing.T) {
	env := newTestService(t)

	// status_update is routine for messages, but board actions always
	// need an operator.
	resp, err := env.svc.SubmitMessage(context.Background(), domain.SubmitMessageRequest{
		TaskID: "task_video",
		Action: "status_update",
		Kind:   domain.ApprovalKindTaskAction,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusPending, resp.Status)

	assert.Equal(t, []domain.EventType{
		domain.EventTypeTaskActionQueued,
		domain.EventTypeApprovalRequired,
	}, env.eventTypes())
}

func TestSubmitMessageValidation(t *testing.T) {
	env := newTestService(t)

	cases := []struct {
		name string
		req  domain.SubmitMessageRequest
	}{
		{"unknown kind", domain.SubmitMessageRequest{Action: "status_update", Kind: "ritual"}},
		{"malformed payload", domain.SubmitMessageRequest{Action: "status_update", Payload: json.RawMessage(`{broken`)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.SubmitMessage(context.Background(), tc.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidArgument))
		})
	}
	assert.Empty(t, env.eventTypes())
}

func TestDecideApprovalApprove(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	resp, err := env.svc.SubmitMessage(ctx, domain.SubmitMessageRequest{
		TaskID: "task_video",
		Action: "publish_video",
	})
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalStatusPending, resp.Status)

	ap, err := env.svc.DecideApproval(ctx, resp.ApprovalID, domain.ApprovalDecisionRequest{
		Decision:  "approve",
		Reason:    "looks ready",
		DecidedBy: "operator@local",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusApproved, ap.Status)
	assert.Equal(t, "operator@local", ap.DecidedBy)
	require.NotNil(t, ap.DecidedAt)

	assert.Equal(t, domain.EventTypeMessageApproved, env.lastEvent(t).Type)
	var decided domain.ApprovalDecisionPayload
	require.NoError(t, json.Unmarshal(env.lastEvent(t).Payload, &decided))
	assert.Equal(t, resp.ApprovalID, decided.ApprovalID)
	assert.Equal(t, domain.ApprovalStatusApproved, decided.Status)
	assert.Equal(t, "looks ready", decided.Reason)

	t.Run("repeat decision is a no-op", func(t *testing.T) {
		before := len(env.eventTypes())
		again, err := env.svc.DecideApproval(ctx, resp.ApprovalID, domain.ApprovalDecisionRequest{Decision: "reject"})
		require.NoError(t, err)
		assert.Equal(t, domain.ApprovalStatusApproved, again.Status)
		assert.Len(t, env.eventTypes(), before)
	})

	pending, err := env.svc.ListApprovals(ctx, domain.ApprovalStatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDecideApprovalRejectTaskAction(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	resp, err := env.svc.SubmitMessage(ctx, domain.SubmitMessageRequest{
		TaskID: "task_video",
		Action: "retry_subtask",
		Kind:   domain.ApprovalKindTaskAction,
	})
	require.NoError(t, err)

	ap, err := env.svc.DecideApproval(ctx, resp.ApprovalID, domain.ApprovalDecisionRequest{
		Decision: "REJECTED",
		Reason:   "renderer already restarted",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusRejected, ap.Status)
	assert.Equal(t, domain.EventTypeTaskActionRejected, env.lastEvent(t).Type)
}

func TestDecideApprovalErrors(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	_, err := env.svc.DecideApproval(ctx, "apr_ghost", domain.ApprovalDecisionRequest{Decision: "approve"})
	assert.True(t, errors.Is(err, ErrNotFound))

	resp, err := env.svc.SubmitMessage(ctx, domain.SubmitMessageRequest{Action: "publish_video"})
	require.NoError(t, err)

	_, err = env.svc.DecideApproval(ctx, resp.ApprovalID, domain.ApprovalDecisionRequest{Decision: "shrug"})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}
