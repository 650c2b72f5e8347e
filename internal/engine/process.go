package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/guardhq/renewal-workflow/internal/dispatcher"
	"github.com/guardhq/renewal-workflow/internal/models"
	"github.com/guardhq/renewal-workflow/internal/repository"
	"github.com/guardhq/renewal-workflow/internal/workflow"
)

const (
	// maxPasses bounds follow-up event consumption per Process call so a
	// feedback loop in event generation cannot spin forever.
	maxPasses = 16
	// maxConflictRetries bounds optimistic-lock retries per event
	maxConflictRetries = 3
)

// errMalformedPayload marks events whose payload cannot be decoded.
// Such events are consumed as no-ops so they cannot block the log.
var errMalformedPayload = errors.New("malformed event payload")

// Process drains the unprocessed events of one instance in log order.
// Follow-up events appended while processing (auto-advance, dispatch
// results) are picked up in subsequent passes.
func (e *Engine) Process(ctx context.Context, instanceID int64) error {
	unlock := e.lock(instanceID)
	defer unlock()

	for pass := 0; pass < maxPasses; pass++ {
		events, err := e.events.Unprocessed(instanceID)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		for _, evt := range events {
			if err := e.processEvent(ctx, evt); err != nil {
				return fmt.Errorf("event %s (%s): %w", evt.UID, evt.Type, err)
			}
		}
	}

	return fmt.Errorf("instance %d still producing events after %d passes", instanceID, maxPasses)
}

func (e *Engine) processEvent(ctx context.Context, evt *models.WorkflowEvent) error {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		inst, err := e.instances.GetByID(evt.InstanceID)
		if err != nil {
			return err
		}
		if inst == nil {
			return fmt.Errorf("instance %d not found", evt.InstanceID)
		}

		input, evtCtx, err := e.buildInput(ctx, inst, evt)
		if err != nil {
			if errors.Is(err, errMalformedPayload) {
				e.logger.Warn("Quarantining undecodable event",
					zap.Int64("instance_id", inst.ID),
					zap.String("event_uid", evt.UID),
					zap.Error(err))
				return e.events.MarkProcessed(nil, evt.ID, "ignored: "+err.Error())
			}
			return err
		}

		outcome := workflow.Decide(input, e.rules)
		prev := inst.State

		if err := e.apply(inst, evt, evtCtx, outcome); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				e.logger.Warn("Version conflict applying event, retrying",
					zap.Int64("instance_id", inst.ID),
					zap.String("event_uid", evt.UID),
					zap.Int("attempt", attempt+1))
				continue
			}
			return err
		}

		e.logger.Info("Event applied",
			zap.Int64("instance_id", inst.ID),
			zap.String("event_type", string(evt.Type)),
			zap.String("from", string(prev)),
			zap.String("to", string(inst.State)),
			zap.Bool("ignored", outcome.Ignored))

		e.afterCommit(ctx, inst, evtCtx, outcome)
		return nil
	}

	return fmt.Errorf("%w: gave up after %d attempts", repository.ErrVersionConflict, maxConflictRetries)
}

// eventContext carries side data decoded or fetched while building the
// decision input, needed again when applying the outcome.
type eventContext struct {
	messageBody  string
	documentURL  string
	documentType string
	extraction   *workflow.ExtractionOutcome
	intent       *workflow.IntentOutcome
}

// buildInput decodes the event payload and performs any gateway calls
// the decision needs. Gateway I/O happens here, outside the transaction.
func (e *Engine) buildInput(ctx context.Context, inst *models.WorkflowInstance, evt *models.WorkflowEvent) (workflow.Input, *eventContext, error) {
	in := workflow.Input{
		State:            inst.State,
		ReminderCount:    inst.ReminderCount,
		RequiresTraining: inst.RequiresTraining,
		ApprovalAttempts: inst.ApprovalAttempts,
		EscalatedFrom:    inst.EscalatedFrom,
		EventType:        evt.Type,
		TriggeredBy:      evt.TriggeredBy,
	}
	if inst.ExtractedData != nil {
		in.LatestExtraction = &inst.ExtractedData.ExtractedFields
	}
	evtCtx := &eventContext{}

	switch evt.Type {
	case workflow.EventDocumentUploaded:
		var p models.DocumentUploadedPayload
		if err := evt.DecodePayload(&p); err != nil {
			return in, nil, fmt.Errorf("%w: %v", errMalformedPayload, err)
		}
		evtCtx.documentURL = p.DocumentURL
		evtCtx.documentType = p.DocumentType
		evtCtx.messageBody = p.Caption
		if evtCtx.documentType == "" {
			evtCtx.documentType = documentTypeForState(inst.State)
		}
		// Skip the gateway call when the document cannot change state
		if !inst.State.IsTerminal() {
			ext := e.gateway.Extract(ctx, p.DocumentURL, evtCtx.documentType)
			evtCtx.extraction = &ext
			in.Extraction = &ext
		}

	case workflow.EventEmployeeMessage:
		var p models.EmployeeMessagePayload
		if err := evt.DecodePayload(&p); err != nil {
			return in, nil, fmt.Errorf("%w: %v", errMalformedPayload, err)
		}
		evtCtx.messageBody = p.Body
		if !inst.State.IsTerminal() {
			intent := e.gateway.ClassifyIntent(ctx, p.Body, inst.State)
			evtCtx.intent = &intent
			in.Intent = &intent
		}

	case workflow.EventSupervisorIntervention:
		var p models.SupervisorPayload
		if err := evt.DecodePayload(&p); err != nil {
			return in, nil, fmt.Errorf("%w: %v", errMalformedPayload, err)
		}
		in.Reason = p.Reason

	case workflow.EventSubmissionRecorded:
		var p models.SubmissionRecordedPayload
		if err := evt.DecodePayload(&p); err != nil {
			return in, nil, fmt.Errorf("%w: %v", errMalformedPayload, err)
		}
		in.ConfirmationNumber = p.ConfirmationNumber

	case workflow.EventApprovalCheck:
		var p models.ApprovalCheckPayload
		if err := evt.DecodePayload(&p); err != nil {
			return in, nil, fmt.Errorf("%w: %v", errMalformedPayload, err)
		}
		in.Approved = &p.Approved
		in.Reason = p.Reason

	case workflow.EventAgentAction:
		var p models.AgentActionPayload
		if err := evt.DecodePayload(&p); err != nil {
			return in, nil, fmt.Errorf("%w: %v", errMalformedPayload, err)
		}
		in.Action = p.Action
		in.ResumeState = p.ResumeState
		if inst.State == workflow.StateReadyForSubmission {
			in.SubmissionPayload = submissionPayload(inst)
		}
	}

	return in, evtCtx, nil
}

// apply persists one decision: the instance update, the processed
// marker, and any derived rows, all in one transaction.
func (e *Engine) apply(inst *models.WorkflowInstance, evt *models.WorkflowEvent, evtCtx *eventContext, outcome workflow.Outcome) error {
	prev := inst.State

	if outcome.PreserveState && outcome.NewState == workflow.StateEscalated {
		inst.EscalatedFrom = prev
	}
	if prev == workflow.StateEscalated && outcome.NewState != workflow.StateEscalated {
		inst.EscalatedFrom = ""
	}
	inst.State = outcome.NewState

	if outcome.ResetReminders {
		inst.ReminderCount = 0
	}
	if outcome.IncrementReminder {
		inst.ReminderCount++
	}
	if outcome.CompletedStep != "" {
		inst.CompleteStep(outcome.CompletedStep)
	}
	if outcome.AddPendingStep != "" {
		inst.AddPendingStep(outcome.AddPendingStep)
	}
	inst.CurrentStep = ""
	if len(inst.PendingActions) > 0 {
		inst.CurrentStep = inst.PendingActions[0]
	}
	if outcome.Reason != "" && (inst.State == workflow.StateFailed || inst.State == workflow.StateCancelled) {
		inst.FailureReason = outcome.Reason
	}

	var doc *models.ExtractedDocument
	var docAccepted bool
	var confirmDecision *bool

	switch evt.Type {
	case workflow.EventEmployeeMessage:
		inst.AppendTurn("employee", evtCtx.messageBody)
		if evtCtx.intent != nil && !outcome.Ignored {
			switch evtCtx.intent.Intent {
			case workflow.IntentConfirm:
				if prev == workflow.StatePhotoUploaded || prev == workflow.StateTrainingUploaded {
					t := true
					confirmDecision = &t
				}
			case workflow.IntentReject:
				if prev == workflow.StatePhotoUploaded || prev == workflow.StateTrainingUploaded {
					f := false
					confirmDecision = &f
				}
			}
		}

	case workflow.EventDocumentUploaded:
		if evtCtx.messageBody != "" {
			inst.AppendTurn("employee", evtCtx.messageBody)
		}
		if evtCtx.extraction != nil && !outcome.Ignored {
			docAccepted = evtCtx.extraction.Kind == workflow.ResultSuccess &&
				evtCtx.extraction.Confidence >= e.rules.ConfidenceThreshold
			// Rows start unvalidated; employee confirmation freezes them
			doc = &models.ExtractedDocument{
				InstanceID:       inst.ID,
				DocumentType:     evtCtx.documentType,
				SourceURL:        evtCtx.documentURL,
				ValidationResult: fmt.Sprintf("%s (confidence %.2f)", evtCtx.extraction.Kind, evtCtx.extraction.Confidence),
			}
			if docAccepted {
				data := &models.ExtractedData{
					ExtractedFields: evtCtx.extraction.Fields,
					Confidence:      evtCtx.extraction.Confidence,
					Raw:             evtCtx.extraction.Raw,
				}
				doc.Fields = data
				inst.ExtractedData = data
			}
		}

	case workflow.EventSubmissionRecorded:
		if !outcome.Ignored {
			var p models.SubmissionRecordedPayload
			if err := evt.DecodePayload(&p); err != nil {
				return err
			}
			now := time.Now().UTC()
			inst.ConfirmationNumber = p.ConfirmationNumber
			inst.SubmittedAt = &now
			inst.SubmittedBy = p.SubmittedBy
		}

	case workflow.EventApprovalCheck:
		if !outcome.Ignored && inst.State != workflow.StateCompleted {
			inst.ApprovalAttempts++
		}
	}

	if inst.State == workflow.StateAwaitingSubmission && inst.SubmissionPackage == nil {
		inst.SubmissionPackage = buildSubmissionPackage(inst)
	}

	// Outbound texts are part of the conversation record
	for _, effect := range outcome.Effects {
		if effect.Type == workflow.EffectSendMessage {
			inst.AppendTurn("agent", dispatcher.RenderTemplate(effect.Template, effect.Params))
		}
	}

	return e.db.WithTransaction(func(tx *sql.Tx) error {
		if err := e.instances.UpdateVersioned(tx, inst); err != nil {
			return err
		}

		note := fmt.Sprintf("%s -> %s", prev, inst.State)
		if outcome.Ignored {
			note = "ignored: " + outcome.IgnoreReason
		}
		if err := e.events.MarkProcessed(tx, evt.ID, note); err != nil {
			return err
		}

		if doc != nil {
			if err := e.documents.Create(tx, doc); err != nil {
				return err
			}
			if docAccepted {
				pc := &models.PendingConfirmation{InstanceID: inst.ID, DocumentID: doc.ID}
				if err := e.confirmations.Create(tx, pc); err != nil {
					return err
				}
			}
		}

		if confirmDecision != nil {
			pc, err := e.confirmations.LatestByInstance(inst.ID)
			if err != nil {
				return err
			}
			if pc != nil && pc.Confirmed == nil {
				if err := e.confirmations.SetConfirmed(tx, pc.ID, *confirmDecision); err != nil {
					return err
				}
				if *confirmDecision {
					if err := e.documents.MarkValidated(tx, pc.DocumentID, "confirmed by employee"); err != nil {
						return err
					}
				}
			}
		}

		if outcome.CompletedStep != "" {
			audit, err := models.NewEvent(inst.ID, workflow.EventStepCompleted, workflow.TriggeredBySystem, models.StepCompletedPayload{
				Step:     outcome.CompletedStep,
				NewState: inst.State,
			})
			if err != nil {
				return err
			}
			if err := e.events.Append(tx, audit); err != nil {
				return err
			}
		}

		return nil
	})
}

// afterCommit runs the decision's side effects. Dispatch failures never
// roll back the committed transition.
func (e *Engine) afterCommit(ctx context.Context, inst *models.WorkflowInstance, evtCtx *eventContext, outcome workflow.Outcome) {
	for _, effect := range outcome.Effects {
		result := e.dispatcher.Dispatch(ctx, inst, effect)

		if effect.Type == workflow.EffectSyncExternal {
			e.recordSyncResult(inst.ID, result)
		}
	}

	if outcome.AutoAdvance {
		evt, err := models.NewEvent(inst.ID, workflow.EventAgentAction, workflow.TriggeredByAgent, models.AgentActionPayload{
			Action: workflow.ActionAdvance,
		})
		if err != nil {
			e.logger.Error("Failed to build advance event", zap.Error(err))
			return
		}
		if err := e.events.Append(nil, evt); err != nil {
			e.logger.Error("Failed to append advance event", zap.Int64("instance_id", inst.ID), zap.Error(err))
		}
	}
}

func (e *Engine) recordSyncResult(instanceID int64, result dispatcher.Result) {
	pc, err := e.confirmations.LatestByInstance(instanceID)
	if err != nil || pc == nil {
		return
	}
	errMsg := ""
	if result.Err != nil {
		errMsg = result.Err.Error()
	}
	if err := e.confirmations.SetSyncStatus(pc.ID, result.Succeeded, errMsg); err != nil {
		e.logger.Warn("Failed to record sync status", zap.Int64("instance_id", instanceID), zap.Error(err))
	}
}

func submissionPayload(inst *models.WorkflowInstance) map[string]any {
	payload := map[string]any{
		"instance_uid": inst.UID,
		"employee_id":  inst.EmployeeID,
		"license_id":   inst.LicenseID,
	}
	if inst.ExtractedData != nil {
		payload["license_number"] = inst.ExtractedData.LicenseNumber
		payload["license_type"] = inst.ExtractedData.LicenseType
		payload["expiration_date"] = inst.ExtractedData.ExpirationDate
		payload["state"] = inst.ExtractedData.State
		payload["holder_name"] = inst.ExtractedData.HolderName
	}
	return payload
}

func buildSubmissionPackage(inst *models.WorkflowInstance) *models.SubmissionPackage {
	pkg := &models.SubmissionPackage{
		FormData: map[string]string{
			"employee_id": inst.EmployeeID,
			"license_id":  inst.LicenseID,
		},
	}
	if inst.ExtractedData != nil {
		pkg.FormData["license_number"] = inst.ExtractedData.LicenseNumber
		pkg.FormData["license_type"] = inst.ExtractedData.LicenseType
		pkg.FormData["expiration_date"] = inst.ExtractedData.ExpirationDate
		pkg.FormData["state"] = inst.ExtractedData.State
		pkg.FormData["holder_name"] = inst.ExtractedData.HolderName
	}
	return pkg
}
