package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/guardhq/renewal-workflow/internal/workflow"
)

// WorkflowEvent is one immutable fact that may change instance state.
// Events are processed in created-at order, each at most once.
type WorkflowEvent struct {
	ID             int64                `json:"id"`
	UID            string               `json:"uid"`
	InstanceID     int64                `json:"instance_id"`
	Type           workflow.EventType   `json:"type"`
	Payload        json.RawMessage      `json:"payload,omitempty"`
	TriggeredBy    workflow.TriggeredBy `json:"triggered_by"`
	CreatedAt      time.Time            `json:"created_at"`
	ProcessedAt    *time.Time           `json:"processed_at,omitempty"`
	ProcessingNote string               `json:"processing_note,omitempty"`
}

// NewEvent creates an unprocessed event with a fresh UID
func NewEvent(instanceID int64, eventType workflow.EventType, triggeredBy workflow.TriggeredBy, payload any) (*WorkflowEvent, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event payload: %w", err)
		}
		raw = b
	}

	return &WorkflowEvent{
		UID:         uuid.NewString(),
		InstanceID:  instanceID,
		Type:        eventType,
		Payload:     raw,
		TriggeredBy: triggeredBy,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Typed payloads, one per event type where the field set is known.
// The generic Metadata bag is the only open map.

// WorkflowStartedPayload accompanies workflow_started events
type WorkflowStartedPayload struct {
	PhoneNumber      string         `json:"phone_number,omitempty"`
	RequiresTraining bool           `json:"requires_training"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// DocumentUploadedPayload accompanies document_uploaded events. Caption
// carries any text the employee sent alongside the attachment.
type DocumentUploadedPayload struct {
	DocumentURL  string         `json:"document_url"`
	DocumentType string         `json:"document_type"`
	MediaType    string         `json:"media_type,omitempty"`
	Caption      string         `json:"caption,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// EmployeeMessagePayload accompanies employee_message events
type EmployeeMessagePayload struct {
	From     string         `json:"from,omitempty"`
	Body     string         `json:"body"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TimeoutFiredPayload accompanies timeout_fired events
type TimeoutFiredPayload struct {
	State      workflow.State `json:"state"`
	StaleHours float64        `json:"stale_hours"`
}

// SupervisorPayload accompanies supervisor_intervention events
type SupervisorPayload struct {
	SupervisorID string `json:"supervisor_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// SubmissionRecordedPayload accompanies submission_recorded events
type SubmissionRecordedPayload struct {
	ConfirmationNumber string `json:"confirmation_number"`
	SubmittedBy        string `json:"submitted_by,omitempty"`
}

// ApprovalCheckPayload accompanies approval_check events
type ApprovalCheckPayload struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// AgentActionPayload accompanies agent_action events
type AgentActionPayload struct {
	Action      string         `json:"action"`
	ResumeState workflow.State `json:"resume_state,omitempty"`
	Note        string         `json:"note,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// StepCompletedPayload accompanies step_completed audit events
type StepCompletedPayload struct {
	Step     string         `json:"step"`
	NewState workflow.State `json:"new_state"`
	Failed   bool           `json:"failed,omitempty"`
	Note     string         `json:"note,omitempty"`
}

// DecodePayload unmarshals the event payload into dst
func (e *WorkflowEvent) DecodePayload(dst any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}
