package dispatcher

import (
	"strings"

	"github.com/guardhq/renewal-workflow/internal/workflow"
)

// messageBodies maps template names to SMS body text. Placeholders use
// {name} syntax and are filled from the effect's params.
var messageBodies = map[string]string{
	workflow.TemplateRenewalStart:       "Hi {name}, your security guard license expires on {expiration_date}. To renew, please reply with a clear photo of your current license.",
	workflow.TemplateConfirmExtraction:  "Thanks! We read your license as: {holder_name}, license #{license_number} ({license_type}), expiring {expiration_date} in {state}. Reply YES to confirm or NO to re-upload.",
	workflow.TemplatePhotoRetry:         "We couldn't read that photo clearly. Please send another photo of your license with all text visible.",
	workflow.TemplateTrainingRequest:    "Your license is confirmed. Next, please upload your training completion certificate.",
	workflow.TemplateTrainingRetry:      "We couldn't verify that certificate. Please upload a clearer photo of your training completion certificate.",
	workflow.TemplateHelp:               "You can reply with a photo of the requested document, YES/NO to confirm, HELP for assistance, or CANCEL to stop the renewal.",
	workflow.TemplateClarify:            "Sorry, we didn't understand that. Reply YES to confirm, NO to re-upload, or HELP for options.",
	workflow.TemplateReminder:           "Reminder: your license renewal is waiting on you. {pending}",
	workflow.TemplateCancelled:          "Your license renewal has been cancelled. Reply START anytime to begin again.",
	workflow.TemplateSubmissionReceived: "Your renewal was submitted to the licensing board (confirmation {confirmation_number}). We'll let you know once it's approved.",
	workflow.TemplateRenewalComplete:    "Great news! Your license renewal has been approved. You're all set.",
	workflow.TemplateRenewalFailed:      "Unfortunately your renewal was not approved: {reason}. A supervisor will follow up with you.",
}

// RenderTemplate produces the outbound text for a message effect.
// Unknown templates fall back to the template name so a misconfigured
// effect is still visible rather than silently dropped.
func RenderTemplate(template string, params map[string]string) string {
	body, ok := messageBodies[template]
	if !ok {
		return template
	}
	for key, value := range params {
		body = strings.ReplaceAll(body, "{"+key+"}", value)
	}
	return body
}
