package workflow

// EffectType identifies an outbound side effect scheduled by a transition
type EffectType string

const (
	EffectSendMessage       EffectType = "send_message"
	EffectRequestSubmission EffectType = "request_submission"
	EffectNotifySupervisor  EffectType = "notify_supervisor"
	EffectSyncExternal      EffectType = "sync_external"
)

// Message templates rendered by the outbound dispatcher
const (
	TemplateRenewalStart       = "renewal_start"
	TemplateConfirmExtraction  = "confirm_extraction"
	TemplatePhotoRetry         = "photo_retry"
	TemplateTrainingRequest    = "training_request"
	TemplateTrainingRetry      = "training_retry"
	TemplateHelp               = "help"
	TemplateClarify            = "clarify"
	TemplateReminder           = "reminder"
	TemplateCancelled          = "cancelled"
	TemplateSubmissionReceived = "submission_received"
	TemplateRenewalComplete    = "renewal_complete"
	TemplateRenewalFailed      = "renewal_failed"
)

// Effect is one outbound side effect to be handed to the dispatcher.
// Transitions only describe effects; dispatch happens after the state
// change is committed.
type Effect struct {
	Type     EffectType        `json:"type"`
	Template string            `json:"template,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	Payload  map[string]any    `json:"payload,omitempty"`
}

// SendMessage builds a send-message effect
func SendMessage(template string, params map[string]string) Effect {
	return Effect{Type: EffectSendMessage, Template: template, Params: params}
}

// RequestSubmission builds a request-submission effect
func RequestSubmission(payload map[string]any) Effect {
	return Effect{Type: EffectRequestSubmission, Payload: payload}
}

// NotifySupervisor builds a notify-supervisor effect
func NotifySupervisor(reason string) Effect {
	return Effect{Type: EffectNotifySupervisor, Reason: reason}
}

// SyncExternal builds an HR-system sync effect
func SyncExternal(payload map[string]any) Effect {
	return Effect{Type: EffectSyncExternal, Payload: payload}
}
