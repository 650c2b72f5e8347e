package workflow

import "fmt"

// ResultKind classifies the outcome of an external gateway call
type ResultKind string

const (
	ResultSuccess        ResultKind = "success"
	ResultLowConfidence  ResultKind = "low_confidence"
	ResultTransientError ResultKind = "transient_error"
	ResultPermanentError ResultKind = "permanent_error"
)

// ExtractedFields holds the structured fields pulled out of a license document
type ExtractedFields struct {
	LicenseNumber  string `json:"license_number"`
	LicenseType    string `json:"license_type"`
	ExpirationDate string `json:"expiration_date"`
	State          string `json:"state"`
	HolderName     string `json:"holder_name"`
}

// ExtractionOutcome is the gateway result for a document extraction
type ExtractionOutcome struct {
	Kind       ResultKind
	Confidence float64
	Fields     ExtractedFields
	Raw        string
}

// IntentOutcome is the gateway result for an intent classification
type IntentOutcome struct {
	Intent        Intent
	Confidence    float64
	ExtractedInfo map[string]string
	Raw           string
}

// Agent action verbs carried in agent_action event payloads
const (
	ActionAdvance        = "advance"
	ActionResume         = "resume"
	ActionDispatchResult = "dispatch_result"
)

// Rules holds the configurable knobs consulted by Decide
type Rules struct {
	ConfidenceThreshold  float64
	MaxReminders         int
	MaxSubmissionRetries int
}

// Input carries everything Decide needs: the instance context plus the
// event being applied and any gateway results already obtained for it.
type Input struct {
	State            State
	ReminderCount    int
	RequiresTraining bool
	ApprovalAttempts int
	EscalatedFrom    State

	EventType   EventType
	TriggeredBy TriggeredBy

	Extraction         *ExtractionOutcome // document_uploaded
	Intent             *IntentOutcome     // employee_message
	LatestExtraction   *ExtractedFields   // last confirmed-or-pending extraction on the instance
	ConfirmationNumber string             // submission_recorded
	Approved           *bool              // approval_check
	Reason             string             // cancel / supervisor / failure reason
	Action             string             // agent_action verb
	ResumeState        State              // agent_action resume target
	SubmissionPayload  map[string]any     // portal submission package
}

// Outcome is the decision for one event: the state to move to, the side
// effects to schedule, and the bookkeeping the engine must apply.
type Outcome struct {
	NewState          State
	Effects           []Effect
	CompletedStep     string
	AddPendingStep    string
	Ignored           bool
	IgnoreReason      string
	Reason            string
	ResetReminders    bool
	IncrementReminder bool
	// AutoAdvance asks the engine to append a follow-up agent_action
	// advance event so transient states keep moving without user input.
	AutoAdvance bool
	// PreserveState asks the engine to remember the pre-escalation state
	// so a later resume can return to it.
	PreserveState bool
}

// Decide is the pure transition function: given the current instance
// context and one event, it returns the new state and scheduled side
// effects. It never performs I/O.
func Decide(in Input, rules Rules) Outcome {
	noop := func(reason string) Outcome {
		return Outcome{NewState: in.State, Ignored: true, IgnoreReason: reason}
	}

	if !in.EventType.IsValid() {
		return noop(fmt.Sprintf("unknown event type %q", in.EventType))
	}

	// Audit events never drive transitions
	if in.EventType == EventStepCompleted {
		return Outcome{NewState: in.State}
	}

	// Terminal states accept no further transitions
	if in.State.IsTerminal() {
		return noop(fmt.Sprintf("instance is terminal in state %s", in.State))
	}

	switch in.EventType {
	case EventWorkflowStarted:
		return decideStart(in)
	case EventDocumentUploaded:
		return decideDocument(in, rules)
	case EventEmployeeMessage:
		return decideMessage(in)
	case EventTimeoutFired:
		return decideTimeout(in, rules)
	case EventSupervisorIntervention:
		return decideSupervisor(in)
	case EventSubmissionRecorded:
		return decideSubmission(in)
	case EventApprovalCheck:
		return decideApproval(in, rules)
	case EventAgentAction:
		return decideAgentAction(in)
	}

	return noop(fmt.Sprintf("unhandled event type %q", in.EventType))
}

func decideStart(in Input) Outcome {
	if !TransitionAllowed(in.State, TriggerStart, StateAwaitingPhoto) {
		return Outcome{NewState: in.State, Ignored: true,
			IgnoreReason: fmt.Sprintf("workflow already started in state %s", in.State)}
	}
	return Outcome{
		NewState:       StateAwaitingPhoto,
		Effects:        []Effect{SendMessage(TemplateRenewalStart, nil)},
		AddPendingStep: StepPhotoUpload,
	}
}

func decideDocument(in Input, rules Rules) Outcome {
	retry := func(template string) Outcome {
		return Outcome{
			NewState: in.State,
			Effects:  []Effect{SendMessage(template, nil)},
		}
	}

	accepted := in.Extraction != nil &&
		in.Extraction.Kind == ResultSuccess &&
		in.Extraction.Confidence >= rules.ConfidenceThreshold

	switch in.State {
	case StateAwaitingPhoto, StatePhotoUploaded:
		if !accepted {
			return retry(TemplatePhotoRetry)
		}
		// A re-upload while awaiting confirmation replaces the pending
		// extraction without changing state.
		return Outcome{
			NewState: StatePhotoUploaded,
			Effects:  []Effect{SendMessage(TemplateConfirmExtraction, extractionParams(in.Extraction))},
		}

	case StateAwaitingTraining, StateTrainingUploaded:
		if !accepted {
			return retry(TemplateTrainingRetry)
		}
		return Outcome{
			NewState: StateTrainingUploaded,
			Effects:  []Effect{SendMessage(TemplateConfirmExtraction, extractionParams(in.Extraction))},
		}
	}

	return Outcome{NewState: in.State, Ignored: true,
		IgnoreReason: fmt.Sprintf("document not expected in state %s", in.State)}
}

func decideMessage(in Input) Outcome {
	intent := IntentUnknown
	if in.Intent != nil {
		intent = in.Intent.Intent
	}

	// Any reply stops the reminder clock
	reply := func(out Outcome) Outcome {
		out.ResetReminders = true
		return out
	}

	switch intent {
	case IntentCancel:
		reason := in.Reason
		if reason == "" {
			reason = "cancelled by employee"
		}
		return reply(Outcome{
			NewState: StateCancelled,
			Effects:  []Effect{SendMessage(TemplateCancelled, nil)},
			Reason:   reason,
		})

	case IntentConfirm:
		switch in.State {
		case StatePhotoUploaded:
			effects := []Effect{}
			if in.LatestExtraction != nil {
				effects = append(effects, SyncExternal(syncPayload(in.LatestExtraction)))
			}
			return reply(Outcome{
				NewState:      StatePhotoValidated,
				Effects:       effects,
				CompletedStep: StepPhotoUpload,
				AutoAdvance:   true,
			})
		case StateTrainingUploaded:
			return reply(Outcome{
				NewState:      StateTrainingValidated,
				CompletedStep: StepTrainingUpload,
				AutoAdvance:   true,
			})
		}
		return reply(Outcome{
			NewState: in.State,
			Effects:  []Effect{SendMessage(TemplateClarify, nil)},
		})

	case IntentReject:
		switch in.State {
		case StatePhotoUploaded:
			return reply(Outcome{
				NewState: StateAwaitingPhoto,
				Effects:  []Effect{SendMessage(TemplatePhotoRetry, nil)},
			})
		case StateTrainingUploaded:
			return reply(Outcome{
				NewState: StateAwaitingTraining,
				Effects:  []Effect{SendMessage(TemplateTrainingRetry, nil)},
			})
		}
		return reply(Outcome{
			NewState: in.State,
			Effects:  []Effect{SendMessage(TemplateClarify, nil)},
		})

	case IntentQuestion, IntentHelp:
		return reply(Outcome{
			NewState: in.State,
			Effects:  []Effect{SendMessage(TemplateHelp, nil)},
		})
	}

	return reply(Outcome{
		NewState: in.State,
		Effects:  []Effect{SendMessage(TemplateClarify, nil)},
	})
}

func decideTimeout(in Input, rules Rules) Outcome {
	if in.State.AwaitsEmployee() {
		if in.ReminderCount >= rules.MaxReminders {
			return Outcome{
				NewState:      StateEscalated,
				Effects:       []Effect{NotifySupervisor(fmt.Sprintf("employee unresponsive after %d reminders in state %s", in.ReminderCount, in.State))},
				PreserveState: true,
				Reason:        "reminder limit reached",
			}
		}
		return Outcome{
			NewState:          in.State,
			Effects:           []Effect{SendMessage(TemplateReminder, nil)},
			IncrementReminder: true,
		}
	}

	// Stale agent-side states nudge a supervisor instead of the employee
	if in.State == StateAwaitingSubmission || in.State == StateAwaitingApproval || in.State == StateReadyForSubmission {
		return Outcome{
			NewState: in.State,
			Effects:  []Effect{NotifySupervisor(fmt.Sprintf("instance stale in state %s", in.State))},
		}
	}

	return Outcome{NewState: in.State, Ignored: true,
		IgnoreReason: fmt.Sprintf("no timeout handling for state %s", in.State)}
}

func decideSupervisor(in Input) Outcome {
	if in.State == StateEscalated {
		return Outcome{NewState: in.State, Ignored: true, IgnoreReason: "already escalated"}
	}
	if !TransitionAllowed(in.State, TriggerEscalate, StateEscalated) {
		return Outcome{NewState: in.State, Ignored: true,
			IgnoreReason: fmt.Sprintf("cannot escalate from state %s", in.State)}
	}
	return Outcome{
		NewState:      StateEscalated,
		PreserveState: true,
		Reason:        in.Reason,
	}
}

func decideSubmission(in Input) Outcome {
	if in.ConfirmationNumber == "" {
		return Outcome{NewState: in.State, Ignored: true, IgnoreReason: "missing confirmation number"}
	}
	if !TransitionAllowed(in.State, TriggerRecordSubmission, StateSubmitted) {
		return Outcome{NewState: in.State, Ignored: true,
			IgnoreReason: fmt.Sprintf("submission not expected in state %s", in.State)}
	}
	return Outcome{
		NewState: StateSubmitted,
		Effects: []Effect{SendMessage(TemplateSubmissionReceived, map[string]string{
			"confirmation_number": in.ConfirmationNumber,
		})},
		CompletedStep: StepSubmission,
		AutoAdvance:   true,
	}
}

func decideApproval(in Input, rules Rules) Outcome {
	if in.State != StateAwaitingApproval {
		return Outcome{NewState: in.State, Ignored: true,
			IgnoreReason: fmt.Sprintf("approval check not expected in state %s", in.State)}
	}
	if in.Approved == nil {
		return Outcome{NewState: in.State, Ignored: true, IgnoreReason: "approval check missing result"}
	}

	if *in.Approved {
		return Outcome{
			NewState:      StateCompleted,
			Effects:       []Effect{SendMessage(TemplateRenewalComplete, nil)},
			CompletedStep: StepApproval,
		}
	}

	reason := in.Reason
	if reason == "" {
		reason = "submission rejected by licensing authority"
	}

	if in.ApprovalAttempts < rules.MaxSubmissionRetries {
		return Outcome{
			NewState:      StateEscalated,
			Effects:       []Effect{NotifySupervisor(reason)},
			PreserveState: true,
			Reason:        reason,
		}
	}

	return Outcome{
		NewState: StateFailed,
		Effects: []Effect{
			SendMessage(TemplateRenewalFailed, map[string]string{"reason": reason}),
			NotifySupervisor(reason),
		},
		Reason: reason,
	}
}

func decideAgentAction(in Input) Outcome {
	switch in.Action {
	case ActionAdvance:
		switch in.State {
		case StatePhotoValidated:
			if in.RequiresTraining {
				return Outcome{
					NewState:       StateAwaitingTraining,
					Effects:        []Effect{SendMessage(TemplateTrainingRequest, nil)},
					AddPendingStep: StepTrainingUpload,
				}
			}
			return Outcome{NewState: StateReadyForSubmission, AutoAdvance: true}
		case StateTrainingValidated:
			return Outcome{NewState: StateReadyForSubmission, AutoAdvance: true}
		case StateReadyForSubmission:
			return Outcome{
				NewState: StateAwaitingSubmission,
				Effects:  []Effect{RequestSubmission(in.SubmissionPayload)},
			}
		case StateSubmitted:
			return Outcome{NewState: StateAwaitingApproval}
		}
		return Outcome{NewState: in.State, Ignored: true,
			IgnoreReason: fmt.Sprintf("nothing to advance from state %s", in.State)}

	case ActionResume:
		target := in.ResumeState
		if target == "" {
			target = in.EscalatedFrom
		}
		if !TransitionAllowed(in.State, TriggerResume, target) {
			return Outcome{NewState: in.State, Ignored: true,
				IgnoreReason: fmt.Sprintf("cannot resume from %s to %s", in.State, target)}
		}
		// The employee gets a fresh reminder budget after supervisor handling
		return Outcome{NewState: target, ResetReminders: true}

	case ActionDispatchResult:
		// Dispatch outcomes are audit records only
		return Outcome{NewState: in.State}
	}

	return Outcome{NewState: in.State, Ignored: true,
		IgnoreReason: fmt.Sprintf("unknown agent action %q", in.Action)}
}

func extractionParams(ext *ExtractionOutcome) map[string]string {
	if ext == nil {
		return nil
	}
	return map[string]string{
		"license_number":  ext.Fields.LicenseNumber,
		"license_type":    ext.Fields.LicenseType,
		"expiration_date": ext.Fields.ExpirationDate,
		"state":           ext.Fields.State,
		"holder_name":     ext.Fields.HolderName,
	}
}

func syncPayload(fields *ExtractedFields) map[string]any {
	return map[string]any{
		"license_number":  fields.LicenseNumber,
		"license_type":    fields.LicenseType,
		"expiration_date": fields.ExpirationDate,
		"state":           fields.State,
		"holder_name":     fields.HolderName,
	}
}
