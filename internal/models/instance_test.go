package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardhq/renewal-workflow/internal/workflow"
)

func TestStepTracking(t *testing.T) {
	inst := &WorkflowInstance{}

	inst.AddPendingStep("photo_upload")
	inst.AddPendingStep("photo_upload")
	assert.Equal(t, []string{"photo_upload"}, inst.PendingActions)

	inst.AddPendingStep("training_upload")
	inst.CompleteStep("photo_upload")
	assert.Equal(t, []string{"photo_upload"}, inst.CompletedSteps)
	assert.Equal(t, []string{"training_upload"}, inst.PendingActions)

	// completed steps never come back as pending
	inst.AddPendingStep("photo_upload")
	assert.Equal(t, []string{"training_upload"}, inst.PendingActions)

	// completing twice keeps the set unchanged
	inst.CompleteStep("photo_upload")
	assert.Equal(t, []string{"photo_upload"}, inst.CompletedSteps)

	inst.CompleteStep("")
	assert.Equal(t, []string{"photo_upload"}, inst.CompletedSteps)
}

func TestAppendTurn(t *testing.T) {
	inst := &WorkflowInstance{}
	inst.AppendTurn("employee", "here is my photo")
	inst.AppendTurn("agent", "got it, checking now")

	require.Len(t, inst.Transcript, 2)
	assert.Equal(t, "employee", inst.Transcript[0].Role)
	assert.Equal(t, "agent", inst.Transcript[1].Role)
	assert.False(t, inst.Transcript[0].Timestamp.IsZero())
}

func TestConversationStatusOf(t *testing.T) {
	tests := []struct {
		state  workflow.State
		status ConversationStatus
	}{
		{workflow.StateAwaitingPhoto, ConversationAwaitingDocument},
		{workflow.StateAwaitingTraining, ConversationAwaitingDocument},
		{workflow.StatePhotoUploaded, ConversationAwaitingConfirmation},
		{workflow.StateTrainingUploaded, ConversationAwaitingConfirmation},
		{workflow.StatePhotoValidated, ConversationProcessing},
		{workflow.StateReadyForSubmission, ConversationProcessing},
		{workflow.StateAwaitingApproval, ConversationProcessing},
		{workflow.StateEscalated, ConversationEscalated},
		{workflow.StateCompleted, ConversationClosed},
		{workflow.StateFailed, ConversationClosed},
		{workflow.StateCancelled, ConversationClosed},
		{workflow.StateGeneralInquiry, ConversationOpen},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, ConversationStatusOf(tt.state), string(tt.state))
	}
}

func TestConversationViewOf(t *testing.T) {
	now := time.Now().UTC()
	inst := &WorkflowInstance{
		UID:           "wf-123",
		EmployeeID:    "emp-1",
		State:         workflow.StateEscalated,
		ReminderCount: 2,
		UpdatedAt:     now,
	}

	view := ConversationViewOf(inst)
	assert.Equal(t, "wf-123", view.InstanceUID)
	assert.Equal(t, ConversationEscalated, view.Status)
	assert.Equal(t, 2, view.ReminderCount)
	assert.Nil(t, view.LastTurn)

	inst.AppendTurn("employee", "hello")
	inst.AppendTurn("agent", "hi there")
	view = ConversationViewOf(inst)
	require.NotNil(t, view.LastTurn)
	assert.Equal(t, "agent", view.LastTurn.Role)
}

func TestNewEventAndDecodePayload(t *testing.T) {
	evt, err := NewEvent(7, workflow.EventTimeoutFired, workflow.TriggeredBySystem, TimeoutFiredPayload{
		State:      workflow.StateAwaitingPhoto,
		StaleHours: 72,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, evt.UID)
	assert.Equal(t, int64(7), evt.InstanceID)
	assert.Nil(t, evt.ProcessedAt)

	var payload TimeoutFiredPayload
	require.NoError(t, evt.DecodePayload(&payload))
	assert.Equal(t, workflow.StateAwaitingPhoto, payload.State)
	assert.Equal(t, float64(72), payload.StaleHours)
}

func TestDecodePayload_Empty(t *testing.T) {
	evt, err := NewEvent(1, workflow.EventEmployeeMessage, workflow.TriggeredByEmployee, nil)
	require.NoError(t, err)

	var payload EmployeeMessagePayload
	require.NoError(t, evt.DecodePayload(&payload))
	assert.Empty(t, payload.Body)
}
