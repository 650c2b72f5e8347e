package models

import (
	"time"

	"github.com/guardhq/renewal-workflow/internal/workflow"
)

// ConversationStatus is the terse conversation-level status used by the
// simple confirm/reject deployments. It is a read projection of the
// canonical state, never stored independently.
type ConversationStatus string

const (
	ConversationAwaitingDocument     ConversationStatus = "awaiting_document"
	ConversationAwaitingConfirmation ConversationStatus = "awaiting_confirmation"
	ConversationProcessing           ConversationStatus = "processing"
	ConversationEscalated            ConversationStatus = "escalated"
	ConversationClosed               ConversationStatus = "closed"
	ConversationOpen                 ConversationStatus = "open"
)

// ConversationView is the conversation-level projection of an instance
type ConversationView struct {
	InstanceUID   string             `json:"instance_uid"`
	EmployeeID    string             `json:"employee_id"`
	Status        ConversationStatus `json:"status"`
	LastTurn      *Turn              `json:"last_turn,omitempty"`
	ReminderCount int                `json:"reminder_count"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// ConversationStatusOf maps a canonical state onto the terse projection
func ConversationStatusOf(state workflow.State) ConversationStatus {
	switch state {
	case workflow.StateAwaitingPhoto, workflow.StateAwaitingTraining:
		return ConversationAwaitingDocument
	case workflow.StatePhotoUploaded, workflow.StateTrainingUploaded:
		return ConversationAwaitingConfirmation
	case workflow.StatePhotoValidated, workflow.StateTrainingValidated,
		workflow.StateReadyForSubmission, workflow.StateAwaitingSubmission,
		workflow.StateSubmitted, workflow.StateAwaitingApproval:
		return ConversationProcessing
	case workflow.StateEscalated:
		return ConversationEscalated
	case workflow.StateCompleted, workflow.StateFailed, workflow.StateCancelled:
		return ConversationClosed
	}
	return ConversationOpen
}

// ConversationViewOf builds the conversation projection for an instance
func ConversationViewOf(inst *WorkflowInstance) *ConversationView {
	view := &ConversationView{
		InstanceUID:   inst.UID,
		EmployeeID:    inst.EmployeeID,
		Status:        ConversationStatusOf(inst.State),
		ReminderCount: inst.ReminderCount,
		UpdatedAt:     inst.UpdatedAt,
	}
	if n := len(inst.Transcript); n > 0 {
		view.LastTurn = &inst.Transcript[n-1]
	}
	return view
}
