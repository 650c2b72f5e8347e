package models

import (
	"encoding/json"
	"time"

	"github.com/guardhq/renewal-workflow/internal/workflow"
)

// Turn is one conversation turn in an instance transcript
type Turn struct {
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
}

// ExtractedData is the last-known structured extraction result
type ExtractedData struct {
	workflow.ExtractedFields
	Confidence float64 `json:"confidence"`
	Raw        string  `json:"raw,omitempty"`
}

// RequiredDocument is one document demanded by the external portal
type RequiredDocument struct {
	Type      string `json:"type"`
	URL       string `json:"url"`
	Validated bool   `json:"validated"`
}

// SubmissionPackage is the externally-facing submission payload
type SubmissionPackage struct {
	PortalURL         string             `json:"portal_url"`
	RequiredDocuments []RequiredDocument `json:"required_documents"`
	FormData          map[string]string  `json:"form_data"`
	Screenshots       []string           `json:"screenshots,omitempty"`
}

// WorkflowInstance is one employee's in-progress or completed renewal.
// Mutated only by the engine in response to logged events; never deleted.
type WorkflowInstance struct {
	ID                 int64              `json:"id"`
	UID                string             `json:"uid"`
	EmployeeID         string             `json:"employee_id"`
	PhoneNumber        string             `json:"phone_number,omitempty"`
	LicenseID          string             `json:"license_id,omitempty"`
	State              workflow.State     `json:"state"`
	CurrentStep        string             `json:"current_step,omitempty"`
	Transcript         []Turn             `json:"transcript"`
	CompletedSteps     []string           `json:"completed_steps"`
	PendingActions     []string           `json:"pending_actions"`
	ExtractedData      *ExtractedData     `json:"extracted_data,omitempty"`
	SubmissionPackage  *SubmissionPackage `json:"submission_package,omitempty"`
	ConfirmationNumber string             `json:"confirmation_number,omitempty"`
	SubmittedAt        *time.Time         `json:"submitted_at,omitempty"`
	SubmittedBy        string             `json:"submitted_by,omitempty"`
	RequiresTraining   bool               `json:"requires_training"`
	ReminderCount      int                `json:"reminder_count"`
	ApprovalAttempts   int                `json:"approval_attempts"`
	EscalatedFrom      workflow.State     `json:"escalated_from,omitempty"`
	FailureReason      string             `json:"failure_reason,omitempty"`
	Version            int64              `json:"version"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	ExpiresAt          *time.Time         `json:"expires_at,omitempty"`
}

// AppendTurn appends one turn to the transcript. The transcript is
// append-only; existing turns are never rewritten.
func (i *WorkflowInstance) AppendTurn(role, content string) {
	i.Transcript = append(i.Transcript, Turn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// HasCompletedStep reports whether the step label is already finished
func (i *WorkflowInstance) HasCompletedStep(step string) bool {
	for _, s := range i.CompletedSteps {
		if s == step {
			return true
		}
	}
	return false
}

// CompleteStep moves a step label from pendingActions to completedSteps,
// keeping the two sets disjoint.
func (i *WorkflowInstance) CompleteStep(step string) {
	if step == "" || i.HasCompletedStep(step) {
		return
	}
	i.CompletedSteps = append(i.CompletedSteps, step)

	pending := i.PendingActions[:0]
	for _, s := range i.PendingActions {
		if s != step {
			pending = append(pending, s)
		}
	}
	i.PendingActions = pending
}

// AddPendingStep registers an outstanding step label, unless it is
// already pending or completed.
func (i *WorkflowInstance) AddPendingStep(step string) {
	if step == "" || i.HasCompletedStep(step) {
		return
	}
	for _, s := range i.PendingActions {
		if s == step {
			return
		}
	}
	i.PendingActions = append(i.PendingActions, step)
}
