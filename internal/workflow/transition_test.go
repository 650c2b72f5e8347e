package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRules() Rules {
	return Rules{
		ConfidenceThreshold:  0.7,
		MaxReminders:         3,
		MaxSubmissionRetries: 1,
	}
}

func acceptedExtraction() *ExtractionOutcome {
	return &ExtractionOutcome{
		Kind:       ResultSuccess,
		Confidence: 0.93,
		Fields: ExtractedFields{
			LicenseNumber:  "G-1234567",
			LicenseType:    "unarmed",
			ExpirationDate: "2026-11-30",
			State:          "CA",
			HolderName:     "Jordan Reyes",
		},
	}
}

func intentOf(intent Intent) *IntentOutcome {
	return &IntentOutcome{Intent: intent, Confidence: 0.9}
}

func effectTypes(effects []Effect) []EffectType {
	types := make([]EffectType, 0, len(effects))
	for _, e := range effects {
		types = append(types, e.Type)
	}
	return types
}

func TestDecide_Start(t *testing.T) {
	out := Decide(Input{
		State:     StateGeneralInquiry,
		EventType: EventWorkflowStarted,
	}, testRules())

	assert.Equal(t, StateAwaitingPhoto, out.NewState)
	assert.Equal(t, StepPhotoUpload, out.AddPendingStep)
	require.Len(t, out.Effects, 1)
	assert.Equal(t, EffectSendMessage, out.Effects[0].Type)
	assert.Equal(t, TemplateRenewalStart, out.Effects[0].Template)
}

func TestDecide_StartTwiceIsIgnored(t *testing.T) {
	out := Decide(Input{
		State:     StateAwaitingPhoto,
		EventType: EventWorkflowStarted,
	}, testRules())

	assert.True(t, out.Ignored)
	assert.Equal(t, StateAwaitingPhoto, out.NewState)
	assert.Empty(t, out.Effects)
}

func TestDecide_DocumentUpload(t *testing.T) {
	tests := []struct {
		name         string
		state        State
		extraction   *ExtractionOutcome
		wantState    State
		wantTemplate string
		wantIgnored  bool
	}{
		{
			name:         "accepted photo",
			state:        StateAwaitingPhoto,
			extraction:   acceptedExtraction(),
			wantState:    StatePhotoUploaded,
			wantTemplate: TemplateConfirmExtraction,
		},
		{
			name:         "low confidence photo stays put",
			state:        StateAwaitingPhoto,
			extraction:   &ExtractionOutcome{Kind: ResultLowConfidence, Confidence: 0.4},
			wantState:    StateAwaitingPhoto,
			wantTemplate: TemplatePhotoRetry,
		},
		{
			name:         "confidence below threshold stays put",
			state:        StateAwaitingPhoto,
			extraction:   &ExtractionOutcome{Kind: ResultSuccess, Confidence: 0.5},
			wantState:    StateAwaitingPhoto,
			wantTemplate: TemplatePhotoRetry,
		},
		{
			name:         "transient gateway error asks for retry",
			state:        StateAwaitingPhoto,
			extraction:   &ExtractionOutcome{Kind: ResultTransientError},
			wantState:    StateAwaitingPhoto,
			wantTemplate: TemplatePhotoRetry,
		},
		{
			name:         "re-upload replaces pending extraction",
			state:        StatePhotoUploaded,
			extraction:   acceptedExtraction(),
			wantState:    StatePhotoUploaded,
			wantTemplate: TemplateConfirmExtraction,
		},
		{
			name:         "accepted training certificate",
			state:        StateAwaitingTraining,
			extraction:   acceptedExtraction(),
			wantState:    StateTrainingUploaded,
			wantTemplate: TemplateConfirmExtraction,
		},
		{
			name:         "unreadable certificate",
			state:        StateTrainingUploaded,
			extraction:   &ExtractionOutcome{Kind: ResultPermanentError},
			wantState:    StateTrainingUploaded,
			wantTemplate: TemplateTrainingRetry,
		},
		{
			name:        "document ignored mid-submission",
			state:       StateAwaitingApproval,
			extraction:  acceptedExtraction(),
			wantState:   StateAwaitingApproval,
			wantIgnored: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Decide(Input{
				State:      tt.state,
				EventType:  EventDocumentUploaded,
				Extraction: tt.extraction,
			}, testRules())

			assert.Equal(t, tt.wantState, out.NewState)
			assert.Equal(t, tt.wantIgnored, out.Ignored)
			if tt.wantTemplate != "" {
				require.Len(t, out.Effects, 1)
				assert.Equal(t, tt.wantTemplate, out.Effects[0].Template)
			}
		})
	}
}

func TestDecide_ConfirmPhotoValidatesAndSyncs(t *testing.T) {
	fields := acceptedExtraction().Fields
	out := Decide(Input{
		State:            StatePhotoUploaded,
		EventType:        EventEmployeeMessage,
		Intent:           intentOf(IntentConfirm),
		LatestExtraction: &fields,
	}, testRules())

	assert.Equal(t, StatePhotoValidated, out.NewState)
	assert.Equal(t, StepPhotoUpload, out.CompletedStep)
	assert.True(t, out.AutoAdvance)
	assert.True(t, out.ResetReminders)
	require.Len(t, out.Effects, 1)
	assert.Equal(t, EffectSyncExternal, out.Effects[0].Type)
	assert.Equal(t, "G-1234567", out.Effects[0].Payload["license_number"])
}

func TestDecide_ConfirmTrainingValidates(t *testing.T) {
	out := Decide(Input{
		State:     StateTrainingUploaded,
		EventType: EventEmployeeMessage,
		Intent:    intentOf(IntentConfirm),
	}, testRules())

	assert.Equal(t, StateTrainingValidated, out.NewState)
	assert.Equal(t, StepTrainingUpload, out.CompletedStep)
	assert.True(t, out.AutoAdvance)
}

func TestDecide_ConfirmOutOfPlaceAsksForClarification(t *testing.T) {
	out := Decide(Input{
		State:     StateAwaitingPhoto,
		EventType: EventEmployeeMessage,
		Intent:    intentOf(IntentConfirm),
	}, testRules())

	assert.Equal(t, StateAwaitingPhoto, out.NewState)
	require.Len(t, out.Effects, 1)
	assert.Equal(t, TemplateClarify, out.Effects[0].Template)
}

func TestDecide_RejectReturnsToUploadState(t *testing.T) {
	out := Decide(Input{
		State:     StatePhotoUploaded,
		EventType: EventEmployeeMessage,
		Intent:    intentOf(IntentReject),
	}, testRules())
	assert.Equal(t, StateAwaitingPhoto, out.NewState)
	require.Len(t, out.Effects, 1)
	assert.Equal(t, TemplatePhotoRetry, out.Effects[0].Template)

	out = Decide(Input{
		State:     StateTrainingUploaded,
		EventType: EventEmployeeMessage,
		Intent:    intentOf(IntentReject),
	}, testRules())
	assert.Equal(t, StateAwaitingTraining, out.NewState)
	require.Len(t, out.Effects, 1)
	assert.Equal(t, TemplateTrainingRetry, out.Effects[0].Template)
}

func TestDecide_HelpAndunknownIntents(t *testing.T) {
	out := Decide(Input{
		State:     StateAwaitingPhoto,
		EventType: EventEmployeeMessage,
		Intent:    intentOf(IntentHelp),
	}, testRules())
	require.Len(t, out.Effects, 1)
	assert.Equal(t, TemplateHelp, out.Effects[0].Template)
	assert.Equal(t, StateAwaitingPhoto, out.NewState)

	out = Decide(Input{
		State:     StateAwaitingPhoto,
		EventType: EventEmployeeMessage,
		Intent:    intentOf(IntentUnknown),
	}, testRules())
	require.Len(t, out.Effects, 1)
	assert.Equal(t, TemplateClarify, out.Effects[0].Template)
}

func TestDecide_AnyReplyResetsReminders(t *testing.T) {
	for _, intent := range []Intent{IntentConfirm, IntentReject, IntentQuestion, IntentHelp, IntentCancel, IntentUnknown} {
		out := Decide(Input{
			State:         StateAwaitingPhoto,
			ReminderCount: 2,
			EventType:     EventEmployeeMessage,
			Intent:        intentOf(intent),
		}, testRules())
		assert.True(t, out.ResetReminders, "intent %s", intent)
	}
}

func TestDecide_CancelFromAnywhere(t *testing.T) {
	for _, state := range []State{StateGeneralInquiry, StateAwaitingPhoto, StateTrainingUploaded, StateAwaitingApproval} {
		out := Decide(Input{
			State:     state,
			EventType: EventEmployeeMessage,
			Intent:    intentOf(IntentCancel),
		}, testRules())

		assert.Equal(t, StateCancelled, out.NewState, "state %s", state)
		assert.NotEmpty(t, out.Reason)
		require.Len(t, out.Effects, 1)
		assert.Equal(t, TemplateCancelled, out.Effects[0].Template)
	}
}

func TestDecide_TimeoutRemindsThenEscalates(t *testing.T) {
	rules := testRules()

	// Below the limit: reminder
	out := Decide(Input{
		State:         StateAwaitingPhoto,
		ReminderCount: 1,
		EventType:     EventTimeoutFired,
	}, rules)
	assert.Equal(t, StateAwaitingPhoto, out.NewState)
	assert.True(t, out.IncrementReminder)
	require.Len(t, out.Effects, 1)
	assert.Equal(t, TemplateReminder, out.Effects[0].Template)

	// At the limit: escalation
	out = Decide(Input{
		State:         StateAwaitingPhoto,
		ReminderCount: rules.MaxReminders,
		EventType:     EventTimeoutFired,
	}, rules)
	assert.Equal(t, StateEscalated, out.NewState)
	assert.True(t, out.PreserveState)
	assert.False(t, out.IncrementReminder)
	require.Len(t, out.Effects, 1)
	assert.Equal(t, EffectNotifySupervisor, out.Effects[0].Type)
}

func TestDecide_TimeoutOnAgentSideStatesAlertsSupervisor(t *testing.T) {
	for _, state := range []State{StateReadyForSubmission, StateAwaitingSubmission, StateAwaitingApproval} {
		out := Decide(Input{
			State:     state,
			EventType: EventTimeoutFired,
		}, testRules())

		assert.Equal(t, state, out.NewState, "state %s", state)
		assert.False(t, out.IncrementReminder)
		require.Len(t, out.Effects, 1, "state %s", state)
		assert.Equal(t, EffectNotifySupervisor, out.Effects[0].Type)
	}
}

func TestDecide_TimeoutIgnoredElsewhere(t *testing.T) {
	out := Decide(Input{
		State:     StateEscalated,
		EventType: EventTimeoutFired,
	}, testRules())
	assert.True(t, out.Ignored)
	assert.Equal(t, StateEscalated, out.NewState)
}

func TestDecide_SupervisorEscalateAndResume(t *testing.T) {
	out := Decide(Input{
		State:     StatePhotoUploaded,
		EventType: EventSupervisorIntervention,
		Reason:    "employee asked for a human",
	}, testRules())
	assert.Equal(t, StateEscalated, out.NewState)
	assert.True(t, out.PreserveState)
	assert.Equal(t, "employee asked for a human", out.Reason)

	// Resume falls back to the preserved state and restarts the
	// reminder clock.
	out = Decide(Input{
		State:         StateEscalated,
		EscalatedFrom: StatePhotoUploaded,
		EventType:     EventAgentAction,
		Action:        ActionResume,
	}, testRules())
	assert.Equal(t, StatePhotoUploaded, out.NewState)
	assert.True(t, out.ResetReminders)

	// Explicit resume target wins
	out = Decide(Input{
		State:         StateEscalated,
		EscalatedFrom: StatePhotoUploaded,
		EventType:     EventAgentAction,
		Action:        ActionResume,
		ResumeState:   StateAwaitingPhoto,
	}, testRules())
	assert.Equal(t, StateAwaitingPhoto, out.NewState)
	assert.True(t, out.ResetReminders)
}

func TestDecide_ResumeToTerminalIsIgnored(t *testing.T) {
	out := Decide(Input{
		State:       StateEscalated,
		EventType:   EventAgentAction,
		Action:      ActionResume,
		ResumeState: StateCompleted,
	}, testRules())
	assert.True(t, out.Ignored)
	assert.Equal(t, StateEscalated, out.NewState)
}

func TestDecide_EscalatingTwiceIsIgnored(t *testing.T) {
	out := Decide(Input{
		State:     StateEscalated,
		EventType: EventSupervisorIntervention,
	}, testRules())
	assert.True(t, out.Ignored)
}

func TestDecide_AutoAdvanceChain(t *testing.T) {
	// photo_validated branches on the training requirement
	out := Decide(Input{
		State:            StatePhotoValidated,
		RequiresTraining: true,
		EventType:        EventAgentAction,
		Action:           ActionAdvance,
	}, testRules())
	assert.Equal(t, StateAwaitingTraining, out.NewState)
	assert.Equal(t, StepTrainingUpload, out.AddPendingStep)
	require.Len(t, out.Effects, 1)
	assert.Equal(t, TemplateTrainingRequest, out.Effects[0].Template)

	out = Decide(Input{
		State:     StatePhotoValidated,
		EventType: EventAgentAction,
		Action:    ActionAdvance,
	}, testRules())
	assert.Equal(t, StateReadyForSubmission, out.NewState)
	assert.True(t, out.AutoAdvance)

	out = Decide(Input{
		State:     StateTrainingValidated,
		EventType: EventAgentAction,
		Action:    ActionAdvance,
	}, testRules())
	assert.Equal(t, StateReadyForSubmission, out.NewState)
	assert.True(t, out.AutoAdvance)

	out = Decide(Input{
		State:             StateReadyForSubmission,
		EventType:         EventAgentAction,
		Action:            ActionAdvance,
		SubmissionPayload: map[string]any{"employee_id": "emp-1"},
	}, testRules())
	assert.Equal(t, StateAwaitingSubmission, out.NewState)
	require.Len(t, out.Effects, 1)
	assert.Equal(t, EffectRequestSubmission, out.Effects[0].Type)

	out = Decide(Input{
		State:     StateSubmitted,
		EventType: EventAgentAction,
		Action:    ActionAdvance,
	}, testRules())
	assert.Equal(t, StateAwaitingApproval, out.NewState)
}

func TestDecide_AdvanceWithNothingToDo(t *testing.T) {
	out := Decide(Input{
		State:     StateAwaitingPhoto,
		EventType: EventAgentAction,
		Action:    ActionAdvance,
	}, testRules())
	assert.True(t, out.Ignored)
	assert.Equal(t, StateAwaitingPhoto, out.NewState)
}

func TestDecide_SubmissionRecorded(t *testing.T) {
	out := Decide(Input{
		State:              StateAwaitingSubmission,
		EventType:          EventSubmissionRecorded,
		ConfirmationNumber: "CONF-889",
	}, testRules())

	assert.Equal(t, StateSubmitted, out.NewState)
	assert.Equal(t, StepSubmission, out.CompletedStep)
	assert.True(t, out.AutoAdvance)
	require.Len(t, out.Effects, 1)
	assert.Equal(t, TemplateSubmissionReceived, out.Effects[0].Template)
	assert.Equal(t, "CONF-889", out.Effects[0].Params["confirmation_number"])
}

func TestDecide_SubmissionWithoutConfirmationIgnored(t *testing.T) {
	out := Decide(Input{
		State:     StateAwaitingSubmission,
		EventType: EventSubmissionRecorded,
	}, testRules())
	assert.True(t, out.Ignored)
	assert.Equal(t, StateAwaitingSubmission, out.NewState)
}

func TestDecide_Approval(t *testing.T) {
	approved := true
	rejected := false

	out := Decide(Input{
		State:     StateAwaitingApproval,
		EventType: EventApprovalCheck,
		Approved:  &approved,
	}, testRules())
	assert.Equal(t, StateCompleted, out.NewState)
	assert.Equal(t, StepApproval, out.CompletedStep)
	require.Len(t, out.Effects, 1)
	assert.Equal(t, TemplateRenewalComplete, out.Effects[0].Template)

	// First rejection escalates for a retry
	out = Decide(Input{
		State:            StateAwaitingApproval,
		ApprovalAttempts: 0,
		EventType:        EventApprovalCheck,
		Approved:         &rejected,
		Reason:           "missing training hours",
	}, testRules())
	assert.Equal(t, StateEscalated, out.NewState)
	assert.True(t, out.PreserveState)

	// Beyond the retry budget the renewal fails
	out = Decide(Input{
		State:            StateAwaitingApproval,
		ApprovalAttempts: 1,
		EventType:        EventApprovalCheck,
		Approved:         &rejected,
		Reason:           "missing training hours",
	}, testRules())
	assert.Equal(t, StateFailed, out.NewState)
	assert.Equal(t, "missing training hours", out.Reason)
	assert.ElementsMatch(t, []EffectType{EffectSendMessage, EffectNotifySupervisor}, effectTypes(out.Effects))
}

func TestDecide_ApprovalElsewhereIgnored(t *testing.T) {
	approved := true
	out := Decide(Input{
		State:     StateAwaitingPhoto,
		EventType: EventApprovalCheck,
		Approved:  &approved,
	}, testRules())
	assert.True(t, out.Ignored)
}

func TestDecide_TerminalStatesIgnoreEverything(t *testing.T) {
	events := []EventType{
		EventWorkflowStarted, EventDocumentUploaded, EventEmployeeMessage,
		EventTimeoutFired, EventSupervisorIntervention, EventSubmissionRecorded,
		EventApprovalCheck, EventAgentAction,
	}

	for _, terminal := range []State{StateCompleted, StateFailed, StateCancelled} {
		for _, eventType := range events {
			out := Decide(Input{
				State:      terminal,
				EventType:  eventType,
				Extraction: acceptedExtraction(),
				Intent:     intentOf(IntentConfirm),
			}, testRules())

			assert.True(t, out.Ignored, "state %s event %s", terminal, eventType)
			assert.Equal(t, terminal, out.NewState)
			assert.Empty(t, out.Effects)
		}
	}
}

func TestDecide_StepCompletedIsPureAudit(t *testing.T) {
	out := Decide(Input{
		State:     StatePhotoValidated,
		EventType: EventStepCompleted,
	}, testRules())
	assert.False(t, out.Ignored)
	assert.Equal(t, StatePhotoValidated, out.NewState)
	assert.Empty(t, out.Effects)
}

func TestDecide_UnknownEventTypeIgnored(t *testing.T) {
	out := Decide(Input{
		State:     StateAwaitingPhoto,
		EventType: EventType("made_up"),
	}, testRules())
	assert.True(t, out.Ignored)
	assert.Equal(t, StateAwaitingPhoto, out.NewState)
}
