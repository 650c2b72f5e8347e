package workflow

// State represents a canonical state in the license renewal lifecycle
type State string

const (
	StateGeneralInquiry     State = "general_inquiry"
	StateAwaitingPhoto      State = "awaiting_photo"
	StatePhotoUploaded      State = "photo_uploaded"
	StatePhotoValidated     State = "photo_validated"
	StateAwaitingTraining   State = "awaiting_training"
	StateTrainingUploaded   State = "training_uploaded"
	StateTrainingValidated  State = "training_validated"
	StateReadyForSubmission State = "ready_for_submission"
	StateAwaitingSubmission State = "awaiting_submission"
	StateSubmitted          State = "submitted"
	StateAwaitingApproval   State = "awaiting_approval"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
	StateCancelled          State = "cancelled"
	StateEscalated          State = "escalated"
)

var validStates = map[State]bool{
	StateGeneralInquiry:     true,
	StateAwaitingPhoto:      true,
	StatePhotoUploaded:      true,
	StatePhotoValidated:     true,
	StateAwaitingTraining:   true,
	StateTrainingUploaded:   true,
	StateTrainingValidated:  true,
	StateReadyForSubmission: true,
	StateAwaitingSubmission: true,
	StateSubmitted:          true,
	StateAwaitingApproval:   true,
	StateCompleted:          true,
	StateFailed:             true,
	StateCancelled:          true,
	StateEscalated:          true,
}

var terminalStates = map[State]bool{
	StateCompleted: true,
	StateFailed:    true,
	StateCancelled: true,
}

// States in which the workflow is blocked on an employee reply and
// eligible for timeout reminders.
var reminderStates = map[State]bool{
	StateAwaitingPhoto:    true,
	StatePhotoUploaded:    true,
	StateAwaitingTraining: true,
	StateTrainingUploaded: true,
}

// IsTerminal returns true if no further transitions are allowed from the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return validStates[s]
}

// AwaitsEmployee returns true if the state is waiting on an employee reply
func (s State) AwaitsEmployee() bool {
	return reminderStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// Step labels tracked independently of the coarse state
const (
	StepPhotoUpload    = "photo_upload"
	StepTrainingUpload = "training_upload"
	StepSubmission     = "submission"
	StepApproval       = "approval"
)

// Intent is the classified meaning of a free-text employee message
type Intent string

const (
	IntentConfirm  Intent = "confirm"
	IntentReject   Intent = "reject"
	IntentQuestion Intent = "question"
	IntentHelp     Intent = "help"
	IntentCancel   Intent = "cancel"
	IntentUnknown  Intent = "unknown"
)

// TriggeredBy identifies the actor that produced an event
type TriggeredBy string

const (
	TriggeredByEmployee   TriggeredBy = "employee"
	TriggeredByAgent      TriggeredBy = "agent"
	TriggeredByCron       TriggeredBy = "cron"
	TriggeredBySupervisor TriggeredBy = "supervisor"
	TriggeredBySystem     TriggeredBy = "system"
)
