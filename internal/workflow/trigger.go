package workflow

// Trigger represents an occurrence that can cause a state transition
type Trigger string

const (
	TriggerStart            Trigger = "START"
	TriggerDocumentAccepted Trigger = "DOCUMENT_ACCEPTED"
	TriggerConfirm          Trigger = "CONFIRM"
	TriggerReject           Trigger = "REJECT"
	TriggerCancel           Trigger = "CANCEL"
	TriggerAdvance          Trigger = "ADVANCE"
	TriggerRecordSubmission Trigger = "RECORD_SUBMISSION"
	TriggerApprove          Trigger = "APPROVE"
	TriggerFail             Trigger = "FAIL"
	TriggerEscalate         Trigger = "ESCALATE"
	TriggerResume           Trigger = "RESUME"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
