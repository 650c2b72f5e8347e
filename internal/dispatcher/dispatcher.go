// Package dispatcher turns scheduled workflow side effects into external
// calls. A dispatch failure never rolls back the state transition that
// scheduled it; failed effects are retried here with backoff and the
// final outcome is appended to the event log for visibility.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/guardhq/renewal-workflow/internal/models"
	"github.com/guardhq/renewal-workflow/internal/repository"
	"github.com/guardhq/renewal-workflow/internal/workflow"
)

// MessageSender delivers an outbound text to an employee
type MessageSender interface {
	SendText(ctx context.Context, recipient, body string) error
}

// ExternalSync pushes confirmed license data to the HR system
type ExternalSync interface {
	SyncLicense(ctx context.Context, employeeID string, payload map[string]any) error
}

// SupervisorNotifier raises an instance to a human supervisor
type SupervisorNotifier interface {
	Notify(ctx context.Context, instanceUID, reason string) error
}

// SubmissionRequester asks an external agent to submit a prepared
// package to the licensing portal.
type SubmissionRequester interface {
	RequestSubmission(ctx context.Context, instanceUID string, payload map[string]any) error
}

// Result is the terminal outcome of dispatching one effect
type Result struct {
	Succeeded bool
	Attempts  int
	Err       error
}

// Dispatcher delivers effects with retries and logs every attempt
type Dispatcher struct {
	messages     MessageSender
	sync         ExternalSync
	supervisor   SupervisorNotifier
	submissions  SubmissionRequester
	dispatchRepo *repository.DispatchRepository
	eventRepo    *repository.EventRepository
	retry        *RetryStrategy
	logger       *zap.Logger
}

// New creates a new dispatcher
func New(
	messages MessageSender,
	sync ExternalSync,
	supervisor SupervisorNotifier,
	submissions SubmissionRequester,
	dispatchRepo *repository.DispatchRepository,
	eventRepo *repository.EventRepository,
	retry *RetryStrategy,
	logger *zap.Logger,
) *Dispatcher {
	if retry == nil {
		retry = NewRetryStrategy()
	}
	return &Dispatcher{
		messages:     messages,
		sync:         sync,
		supervisor:   supervisor,
		submissions:  submissions,
		dispatchRepo: dispatchRepo,
		eventRepo:    eventRepo,
		retry:        retry,
		logger:       logger,
	}
}

// Dispatch delivers one effect for an instance, retrying transient
// failures with exponential backoff up to the configured attempt count.
func (d *Dispatcher) Dispatch(ctx context.Context, inst *models.WorkflowInstance, effect workflow.Effect) Result {
	var lastErr error

	for attempt := 1; attempt <= d.retry.MaxAttempts; attempt++ {
		lastErr = d.deliver(ctx, inst, effect)
		if lastErr == nil {
			if err := d.dispatchRepo.Record(inst.ID, effect, attempt, repository.DispatchSucceeded, ""); err != nil {
				d.logger.Warn("Failed to record dispatch success", zap.Error(err))
			}
			d.appendResultEvent(inst.ID, effect, attempt, "")
			return Result{Succeeded: true, Attempts: attempt}
		}

		status := repository.DispatchFailed
		if attempt == d.retry.MaxAttempts {
			status = repository.DispatchExhausted
		}
		if err := d.dispatchRepo.Record(inst.ID, effect, attempt, status, lastErr.Error()); err != nil {
			d.logger.Warn("Failed to record dispatch failure", zap.Error(err))
		}

		d.logger.Warn("Dispatch attempt failed",
			zap.Int64("instance_id", inst.ID),
			zap.String("effect_type", string(effect.Type)),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt < d.retry.MaxAttempts {
			select {
			case <-ctx.Done():
				return Result{Attempts: attempt, Err: ctx.Err()}
			case <-time.After(d.retry.CalculateBackoff(attempt)):
			}
		}
	}

	d.appendResultEvent(inst.ID, effect, d.retry.MaxAttempts, lastErr.Error())
	return Result{Attempts: d.retry.MaxAttempts, Err: lastErr}
}

// DispatchAll delivers every effect in order, continuing past failures
func (d *Dispatcher) DispatchAll(ctx context.Context, inst *models.WorkflowInstance, effects []workflow.Effect) []Result {
	results := make([]Result, 0, len(effects))
	for _, effect := range effects {
		results = append(results, d.Dispatch(ctx, inst, effect))
	}
	return results
}

func (d *Dispatcher) deliver(ctx context.Context, inst *models.WorkflowInstance, effect workflow.Effect) error {
	switch effect.Type {
	case workflow.EffectSendMessage:
		if inst.PhoneNumber == "" {
			return fmt.Errorf("instance %d has no phone number", inst.ID)
		}
		body := RenderTemplate(effect.Template, effect.Params)
		return d.messages.SendText(ctx, inst.PhoneNumber, body)

	case workflow.EffectSyncExternal:
		return d.sync.SyncLicense(ctx, inst.EmployeeID, effect.Payload)

	case workflow.EffectNotifySupervisor:
		return d.supervisor.Notify(ctx, inst.UID, effect.Reason)

	case workflow.EffectRequestSubmission:
		return d.submissions.RequestSubmission(ctx, inst.UID, effect.Payload)
	}

	return fmt.Errorf("unknown effect type %q", effect.Type)
}

// appendResultEvent logs the terminal dispatch outcome into the event
// log as an agent_action audit record.
func (d *Dispatcher) appendResultEvent(instanceID int64, effect workflow.Effect, attempts int, errMsg string) {
	note := fmt.Sprintf("dispatched %s after %d attempt(s)", effect.Type, attempts)
	if errMsg != "" {
		note = fmt.Sprintf("dispatch of %s exhausted after %d attempt(s): %s", effect.Type, attempts, errMsg)
	}

	evt, err := models.NewEvent(instanceID, workflow.EventAgentAction, workflow.TriggeredBySystem, models.AgentActionPayload{
		Action: workflow.ActionDispatchResult,
		Note:   note,
	})
	if err != nil {
		d.logger.Warn("Failed to build dispatch result event", zap.Error(err))
		return
	}
	if err := d.eventRepo.Append(nil, evt); err != nil {
		d.logger.Warn("Failed to append dispatch result event", zap.Error(err))
	}
}
