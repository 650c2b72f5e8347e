package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/guardhq/renewal-workflow/internal/engine"
	"github.com/guardhq/renewal-workflow/internal/models"
	"github.com/guardhq/renewal-workflow/internal/repository"
	"github.com/guardhq/renewal-workflow/internal/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine    *engine.Engine
	instances *repository.InstanceRepository
	events    *repository.EventRepository
	logger    *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(eng *engine.Engine, instances *repository.InstanceRepository, events *repository.EventRepository, logger *zap.Logger) *Handlers {
	return &Handlers{
		engine:    eng,
		instances: instances,
		events:    events,
		logger:    logger,
	}
}

// Response is the standard JSON envelope
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// InboundSMSRequest mirrors the provider's webhook form fields
type InboundSMSRequest struct {
	From     string   `form:"From" json:"from" binding:"required"`
	Body     string   `form:"Body" json:"body"`
	MediaURL []string `form:"MediaUrl" json:"media_urls"`
}

// InboundSMS handles POST /webhook/sms. The webhook is acknowledged
// only after the triggering event is durably logged.
func (h *Handlers) InboundSMS(c *gin.Context) {
	var req InboundSMSRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid webhook payload"})
		return
	}

	err := h.engine.HandleInboundMessage(c.Request.Context(), req.From, req.Body, req.MediaURL)
	if err != nil {
		if errors.Is(err, engine.ErrNoActiveInstance) {
			h.logger.Warn("Inbound SMS from unknown sender", zap.String("from", req.From))
			c.JSON(http.StatusOK, Response{Success: true})
			return
		}
		h.logger.Error("Inbound SMS processing failed", zap.String("from", req.From), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to process message"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// StartInstanceRequest creates a new renewal workflow
type StartInstanceRequest struct {
	EmployeeID       string         `json:"employee_id" binding:"required"`
	PhoneNumber      string         `json:"phone_number" binding:"required"`
	LicenseID        string         `json:"license_id"`
	RequiresTraining bool           `json:"requires_training"`
	Metadata         map[string]any `json:"metadata"`
}

// StartInstance handles POST /api/v1/instances
func (h *Handlers) StartInstance(c *gin.Context) {
	var req StartInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	inst, err := h.engine.StartInstance(c.Request.Context(), engine.StartParams{
		EmployeeID:       req.EmployeeID,
		PhoneNumber:      req.PhoneNumber,
		LicenseID:        req.LicenseID,
		RequiresTraining: req.RequiresTraining,
		Metadata:         req.Metadata,
	})
	if err != nil {
		if errors.Is(err, engine.ErrActiveInstanceExists) {
			c.JSON(http.StatusConflict, Response{Success: false, Error: err.Error()})
			return
		}
		h.logger.Error("Failed to start instance", zap.String("employee_id", req.EmployeeID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to start workflow"})
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: inst})
}

// ListInstances handles GET /api/v1/instances
func (h *Handlers) ListInstances(c *gin.Context) {
	var query struct {
		Limit  int `form:"limit"`
		Offset int `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}
	if query.Limit <= 0 || query.Limit > 100 {
		query.Limit = 20
	}
	if query.Offset < 0 {
		query.Offset = 0
	}

	instances, err := h.instances.List(query.Limit, query.Offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to list instances"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: instances})
}

// GetInstance handles GET /api/v1/instances/:uid. The conversation
// query parameter selects the terse conversation projection.
func (h *Handlers) GetInstance(c *gin.Context) {
	inst, ok := h.loadInstance(c)
	if !ok {
		return
	}

	if c.Query("view") == "conversation" {
		c.JSON(http.StatusOK, Response{Success: true, Data: models.ConversationViewOf(inst)})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: inst})
}

// GetInstanceEvents handles GET /api/v1/instances/:uid/events
func (h *Handlers) GetInstanceEvents(c *gin.Context) {
	inst, ok := h.loadInstance(c)
	if !ok {
		return
	}

	history, err := h.events.History(inst.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to load event history"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: history})
}

// GetInstanceTriggers handles GET /api/v1/instances/:uid/triggers.
// Supervisors use it to see which operations apply to an instance.
func (h *Handlers) GetInstanceTriggers(c *gin.Context) {
	inst, ok := h.loadInstance(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{
		"state":    inst.State,
		"triggers": workflow.AvailableTriggers(inst.State),
	}})
}

// SupervisorRequest carries supervisor escalate/resume parameters
type SupervisorRequest struct {
	SupervisorID string `json:"supervisor_id"`
	Reason       string `json:"reason"`
	TargetState  string `json:"target_state"`
}

// Escalate handles POST /api/v1/instances/:uid/escalate
func (h *Handlers) Escalate(c *gin.Context) {
	var req SupervisorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	h.runEngineOp(c, func() error {
		return h.engine.Escalate(c.Request.Context(), c.Param("uid"), req.SupervisorID, req.Reason)
	})
}

// Resume handles POST /api/v1/instances/:uid/resume
func (h *Handlers) Resume(c *gin.Context) {
	var req SupervisorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	target := workflow.State(req.TargetState)
	if req.TargetState != "" && !target.IsValid() {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid target state"})
		return
	}

	h.runEngineOp(c, func() error {
		return h.engine.Resume(c.Request.Context(), c.Param("uid"), req.SupervisorID, target)
	})
}

// RecordSubmissionRequest carries the portal submission confirmation
type RecordSubmissionRequest struct {
	ConfirmationNumber string `json:"confirmation_number" binding:"required"`
	SubmittedBy        string `json:"submitted_by"`
}

// RecordSubmission handles POST /api/v1/instances/:uid/submission
func (h *Handlers) RecordSubmission(c *gin.Context) {
	var req RecordSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	h.runEngineOp(c, func() error {
		return h.engine.RecordSubmission(c.Request.Context(), c.Param("uid"), req.ConfirmationNumber, req.SubmittedBy)
	})
}

// RecordApprovalRequest carries the licensing authority's decision
type RecordApprovalRequest struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// RecordApproval handles POST /api/v1/instances/:uid/approval
func (h *Handlers) RecordApproval(c *gin.Context) {
	var req RecordApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	h.runEngineOp(c, func() error {
		return h.engine.RecordApproval(c.Request.Context(), c.Param("uid"), req.Approved, req.Reason)
	})
}

func (h *Handlers) loadInstance(c *gin.Context) (*models.WorkflowInstance, bool) {
	inst, err := h.instances.GetByUID(c.Param("uid"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to load instance"})
		return nil, false
	}
	if inst == nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "instance not found"})
		return nil, false
	}
	return inst, true
}

func (h *Handlers) runEngineOp(c *gin.Context, op func() error) {
	if err := op(); err != nil {
		if errors.Is(err, engine.ErrNoActiveInstance) {
			c.JSON(http.StatusNotFound, Response{Success: false, Error: "instance not found"})
			return
		}
		h.logger.Error("Engine operation failed", zap.String("uid", c.Param("uid")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}
