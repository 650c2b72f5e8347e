package workflow

// EventType identifies the type of workflow event
type EventType string

const (
	EventWorkflowStarted        EventType = "workflow_started"
	EventDocumentUploaded       EventType = "document_uploaded"
	EventEmployeeMessage        EventType = "employee_message"
	EventTimeoutFired           EventType = "timeout_fired"
	EventSupervisorIntervention EventType = "supervisor_intervention"
	EventSubmissionRecorded     EventType = "submission_recorded"
	EventApprovalCheck          EventType = "approval_check"
	EventStepCompleted          EventType = "step_completed"
	EventAgentAction            EventType = "agent_action"
)

// String returns the string representation of the event type
func (t EventType) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t EventType) IsValid() bool {
	switch t {
	case EventWorkflowStarted,
		EventDocumentUploaded,
		EventEmployeeMessage,
		EventTimeoutFired,
		EventSupervisorIntervention,
		EventSubmissionRecorded,
		EventApprovalCheck,
		EventStepCompleted,
		EventAgentAction:
		return true
	default:
		return false
	}
}
