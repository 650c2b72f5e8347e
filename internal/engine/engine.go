// Package engine applies logged events to workflow instances. It is the
// only writer of instance state: every transition is the result of one
// event run through the pure decision function and persisted together
// with the event's processed marker in a single transaction.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guardhq/renewal-workflow/internal/dispatcher"
	"github.com/guardhq/renewal-workflow/internal/gateway"
	"github.com/guardhq/renewal-workflow/internal/models"
	"github.com/guardhq/renewal-workflow/internal/repository"
	"github.com/guardhq/renewal-workflow/internal/workflow"
	"github.com/guardhq/renewal-workflow/pkg/database"
)

var (
	// ErrNoActiveInstance means an inbound trigger could not be routed
	ErrNoActiveInstance = errors.New("no active workflow instance")
	// ErrActiveInstanceExists guards against duplicate concurrent renewals
	ErrActiveInstanceExists = errors.New("employee already has an active renewal")
)

// Engine coordinates event ingestion, decision and persistence
type Engine struct {
	db            *database.DB
	instances     *repository.InstanceRepository
	events        *repository.EventRepository
	documents     *repository.DocumentRepository
	confirmations *repository.ConfirmationRepository
	gateway       gateway.Gateway
	dispatcher    *dispatcher.Dispatcher
	rules         workflow.Rules
	logger        *zap.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New creates a new engine
func New(
	db *database.DB,
	instances *repository.InstanceRepository,
	events *repository.EventRepository,
	documents *repository.DocumentRepository,
	confirmations *repository.ConfirmationRepository,
	gw gateway.Gateway,
	disp *dispatcher.Dispatcher,
	rules workflow.Rules,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		db:            db,
		instances:     instances,
		events:        events,
		documents:     documents,
		confirmations: confirmations,
		gateway:       gw,
		dispatcher:    disp,
		rules:         rules,
		logger:        logger,
		locks:         make(map[int64]*sync.Mutex),
	}
}

// lock serializes processing per instance. Events for different
// instances proceed concurrently; events for one instance never do.
func (e *Engine) lock(instanceID int64) func() {
	e.mu.Lock()
	l, ok := e.locks[instanceID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[instanceID] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// StartParams describes a new renewal to kick off
type StartParams struct {
	EmployeeID       string
	PhoneNumber      string
	LicenseID        string
	RequiresTraining bool
	Metadata         map[string]any
}

// StartInstance creates a workflow instance for an employee and logs the
// starting event. An employee may have at most one active renewal.
func (e *Engine) StartInstance(ctx context.Context, params StartParams) (*models.WorkflowInstance, error) {
	if params.EmployeeID == "" {
		return nil, fmt.Errorf("employee id is required")
	}

	existing, err := e.instances.GetActiveByEmployee(params.EmployeeID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: instance %s", ErrActiveInstanceExists, existing.UID)
	}

	inst := &models.WorkflowInstance{
		UID:              uuid.NewString(),
		EmployeeID:       params.EmployeeID,
		PhoneNumber:      params.PhoneNumber,
		LicenseID:        params.LicenseID,
		State:            workflow.StateGeneralInquiry,
		RequiresTraining: params.RequiresTraining,
		Version:          1,
	}

	evt, err := models.NewEvent(0, workflow.EventWorkflowStarted, workflow.TriggeredBySystem, models.WorkflowStartedPayload{
		PhoneNumber:      params.PhoneNumber,
		RequiresTraining: params.RequiresTraining,
		Metadata:         params.Metadata,
	})
	if err != nil {
		return nil, err
	}

	err = e.db.WithTransaction(func(tx *sql.Tx) error {
		if err := e.instances.Create(tx, inst); err != nil {
			return err
		}
		evt.InstanceID = inst.ID
		return e.events.Append(tx, evt)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Workflow instance started",
		zap.String("uid", inst.UID),
		zap.String("employee_id", inst.EmployeeID))

	if err := e.Process(ctx, inst.ID); err != nil {
		return nil, err
	}
	return e.instances.GetByID(inst.ID)
}

// HandleInboundMessage routes an inbound SMS to the sender's active
// instance. Media attachments become document uploads; body-only texts
// become employee messages. Returns ErrNoActiveInstance for unknown
// senders.
func (e *Engine) HandleInboundMessage(ctx context.Context, from, body string, mediaURLs []string) error {
	inst, err := e.instances.GetActiveByPhone(from)
	if err != nil {
		return err
	}
	if inst == nil {
		return fmt.Errorf("%w for phone %s", ErrNoActiveInstance, from)
	}

	if len(mediaURLs) > 0 {
		docType := documentTypeForState(inst.State)
		for i, url := range mediaURLs {
			payload := models.DocumentUploadedPayload{
				DocumentURL:  url,
				DocumentType: docType,
			}
			// Text sent with the attachment rides on the first upload
			if i == 0 {
				payload.Caption = body
			}
			evt, err := models.NewEvent(inst.ID, workflow.EventDocumentUploaded, workflow.TriggeredByEmployee, payload)
			if err != nil {
				return err
			}
			if err := e.events.Append(nil, evt); err != nil {
				return err
			}
		}
	} else {
		evt, err := models.NewEvent(inst.ID, workflow.EventEmployeeMessage, workflow.TriggeredByEmployee, models.EmployeeMessagePayload{
			From: from,
			Body: body,
		})
		if err != nil {
			return err
		}
		if err := e.events.Append(nil, evt); err != nil {
			return err
		}
	}

	return e.Process(ctx, inst.ID)
}

// Escalate hands an instance to a supervisor
func (e *Engine) Escalate(ctx context.Context, instanceUID, supervisorID, reason string) error {
	return e.appendAndProcess(ctx, instanceUID, workflow.EventSupervisorIntervention, workflow.TriggeredBySupervisor,
		models.SupervisorPayload{SupervisorID: supervisorID, Reason: reason})
}

// Resume returns an escalated instance to a working state. An empty
// target resumes to the state the instance escalated from.
func (e *Engine) Resume(ctx context.Context, instanceUID, supervisorID string, target workflow.State) error {
	return e.appendAndProcess(ctx, instanceUID, workflow.EventAgentAction, workflow.TriggeredBySupervisor,
		models.AgentActionPayload{Action: workflow.ActionResume, ResumeState: target, Note: "resumed by " + supervisorID})
}

// RecordSubmission logs that the prepared package reached the licensing
// portal, with the portal's confirmation number.
func (e *Engine) RecordSubmission(ctx context.Context, instanceUID, confirmationNumber, submittedBy string) error {
	return e.appendAndProcess(ctx, instanceUID, workflow.EventSubmissionRecorded, workflow.TriggeredByAgent,
		models.SubmissionRecordedPayload{ConfirmationNumber: confirmationNumber, SubmittedBy: submittedBy})
}

// RecordApproval logs the licensing authority's decision
func (e *Engine) RecordApproval(ctx context.Context, instanceUID string, approved bool, reason string) error {
	return e.appendAndProcess(ctx, instanceUID, workflow.EventApprovalCheck, workflow.TriggeredBySystem,
		models.ApprovalCheckPayload{Approved: approved, Reason: reason})
}

// RecordTimeout logs a staleness check fired by the scanner
func (e *Engine) RecordTimeout(ctx context.Context, instanceID int64, state workflow.State, staleHours float64) error {
	evt, err := models.NewEvent(instanceID, workflow.EventTimeoutFired, workflow.TriggeredByCron, models.TimeoutFiredPayload{
		State:      state,
		StaleHours: staleHours,
	})
	if err != nil {
		return err
	}
	if err := e.events.Append(nil, evt); err != nil {
		return err
	}
	return e.Process(ctx, instanceID)
}

func (e *Engine) appendAndProcess(ctx context.Context, instanceUID string, eventType workflow.EventType, by workflow.TriggeredBy, payload any) error {
	inst, err := e.instances.GetByUID(instanceUID)
	if err != nil {
		return err
	}
	if inst == nil {
		return fmt.Errorf("%w: uid %s", ErrNoActiveInstance, instanceUID)
	}

	evt, err := models.NewEvent(inst.ID, eventType, by, payload)
	if err != nil {
		return err
	}
	if err := e.events.Append(nil, evt); err != nil {
		return err
	}
	return e.Process(ctx, inst.ID)
}

func documentTypeForState(state workflow.State) string {
	switch state {
	case workflow.StateAwaitingTraining, workflow.StateTrainingUploaded:
		return models.DocumentTypeTrainingCertificate
	}
	return models.DocumentTypeLicensePhoto
}
