package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/guardhq/renewal-workflow/internal/models"
	"github.com/guardhq/renewal-workflow/internal/workflow"
)

// ErrVersionConflict is returned when a conditional write loses a race
// with a concurrent update of the same instance.
var ErrVersionConflict = errors.New("instance version conflict")

// InstanceRepository handles workflow instance database operations
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) *InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

const instanceColumns = `id, uid, employee_id, phone_number, license_id, state, current_step,
	transcript, completed_steps, pending_actions, extracted_data,
	submission_package, confirmation_number, submitted_at, submitted_by,
	requires_training, reminder_count, approval_attempts, escalated_from,
	failure_reason, version, created_at, updated_at, expires_at`

// Create inserts a new workflow instance
func (r *InstanceRepository) Create(tx *sql.Tx, inst *models.WorkflowInstance) error {
	transcript, completed, pending, extracted, pkg, err := marshalInstanceJSON(inst)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_instances (
			uid, employee_id, phone_number, license_id, state, current_step,
			transcript, completed_steps, pending_actions, extracted_data,
			submission_package, confirmation_number, submitted_at, submitted_by,
			requires_training, reminder_count, approval_attempts, escalated_from,
			failure_reason, version, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	args := []any{
		inst.UID, inst.EmployeeID, nullString(inst.PhoneNumber), nullString(inst.LicenseID), string(inst.State),
		nullString(inst.CurrentStep), transcript, completed, pending, extracted,
		pkg, nullString(inst.ConfirmationNumber), inst.SubmittedAt,
		nullString(inst.SubmittedBy), inst.RequiresTraining, inst.ReminderCount,
		inst.ApprovalAttempts, nullString(string(inst.EscalatedFrom)),
		nullString(inst.FailureReason), inst.Version, inst.ExpiresAt,
	}

	var result sql.Result
	if tx != nil {
		result, err = tx.Exec(query, args...)
	} else {
		result, err = r.db.Exec(query, args...)
	}
	if err != nil {
		r.logger.Error("Failed to create instance", zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	inst.ID = id
	return nil
}

// GetByID retrieves a workflow instance by ID
func (r *InstanceRepository) GetByID(id int64) (*models.WorkflowInstance, error) {
	query := fmt.Sprintf("SELECT %s FROM workflow_instances WHERE id = ?", instanceColumns)
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByUID retrieves a workflow instance by public UID
func (r *InstanceRepository) GetByUID(uid string) (*models.WorkflowInstance, error) {
	query := fmt.Sprintf("SELECT %s FROM workflow_instances WHERE uid = ?", instanceColumns)
	return r.scanOne(r.db.QueryRow(query, uid))
}

// GetActiveByEmployee returns the most recent non-terminal instance for
// an employee, or nil if none exists.
func (r *InstanceRepository) GetActiveByEmployee(employeeID string) (*models.WorkflowInstance, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM workflow_instances
		WHERE employee_id = ? AND state NOT IN ('completed', 'failed', 'cancelled')
		ORDER BY created_at DESC
		LIMIT 1
	`, instanceColumns)
	return r.scanOne(r.db.QueryRow(query, employeeID))
}

// GetActiveByPhone returns the most recent non-terminal instance for a
// phone number, or nil if none exists. Inbound texts are routed here.
func (r *InstanceRepository) GetActiveByPhone(phoneNumber string) (*models.WorkflowInstance, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM workflow_instances
		WHERE phone_number = ? AND state NOT IN ('completed', 'failed', 'cancelled')
		ORDER BY created_at DESC
		LIMIT 1
	`, instanceColumns)
	return r.scanOne(r.db.QueryRow(query, phoneNumber))
}

// UpdateVersioned writes the instance conditionally on its last-known
// version. Returns ErrVersionConflict if a concurrent update won.
func (r *InstanceRepository) UpdateVersioned(tx *sql.Tx, inst *models.WorkflowInstance) error {
	transcript, completed, pending, extracted, pkg, err := marshalInstanceJSON(inst)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflow_instances SET
			state = ?, current_step = ?, transcript = ?, completed_steps = ?,
			pending_actions = ?, extracted_data = ?, submission_package = ?,
			confirmation_number = ?, submitted_at = ?, submitted_by = ?,
			requires_training = ?, reminder_count = ?, approval_attempts = ?,
			escalated_from = ?, failure_reason = ?, version = version + 1,
			updated_at = CURRENT_TIMESTAMP, expires_at = ?
		WHERE id = ? AND version = ?
	`

	args := []any{
		string(inst.State), nullString(inst.CurrentStep), transcript, completed,
		pending, extracted, pkg, nullString(inst.ConfirmationNumber),
		inst.SubmittedAt, nullString(inst.SubmittedBy), inst.RequiresTraining,
		inst.ReminderCount, inst.ApprovalAttempts,
		nullString(string(inst.EscalatedFrom)), nullString(inst.FailureReason),
		inst.ExpiresAt, inst.ID, inst.Version,
	}

	var result sql.Result
	if tx != nil {
		result, err = tx.Exec(query, args...)
	} else {
		result, err = r.db.Exec(query, args...)
	}
	if err != nil {
		r.logger.Error("Failed to update instance", zap.Int64("id", inst.ID), zap.Error(err))
		return fmt.Errorf("failed to update instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: instance %d at version %d", ErrVersionConflict, inst.ID, inst.Version)
	}

	inst.Version++
	return nil
}

// FindStale returns non-terminal instances in the given state whose
// updated_at is older than the cutoff.
func (r *InstanceRepository) FindStale(state workflow.State, cutoff time.Time, limit int) ([]*models.WorkflowInstance, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM workflow_instances
		WHERE state = ? AND updated_at < ?
		ORDER BY updated_at ASC
		LIMIT ?
	`, instanceColumns)

	rows, err := r.db.Query(query, string(state), cutoff.UTC(), limit)
	if err != nil {
		r.logger.Error("Failed to find stale instances", zap.String("state", string(state)), zap.Error(err))
		return nil, fmt.Errorf("failed to find stale instances: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// List returns instances ordered by creation time, newest first
func (r *InstanceRepository) List(limit, offset int) ([]*models.WorkflowInstance, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM workflow_instances
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, instanceColumns)

	rows, err := r.db.Query(query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *InstanceRepository) scanOne(row rowScanner) (*models.WorkflowInstance, error) {
	inst, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to scan instance", zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return inst, nil
}

func (r *InstanceRepository) scanAll(rows *sql.Rows) ([]*models.WorkflowInstance, error) {
	var instances []*models.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance row: %w", err)
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func scanInstance(row rowScanner) (*models.WorkflowInstance, error) {
	var inst models.WorkflowInstance
	var phoneNumber, licenseID, currentStep, confirmationNumber, submittedBy sql.NullString
	var escalatedFrom, failureReason sql.NullString
	var transcript, completed, pending string
	var extracted, pkg sql.NullString
	var submittedAt, expiresAt sql.NullTime
	var state string

	err := row.Scan(
		&inst.ID, &inst.UID, &inst.EmployeeID, &phoneNumber, &licenseID, &state, &currentStep,
		&transcript, &completed, &pending, &extracted, &pkg,
		&confirmationNumber, &submittedAt, &submittedBy, &inst.RequiresTraining,
		&inst.ReminderCount, &inst.ApprovalAttempts, &escalatedFrom,
		&failureReason, &inst.Version, &inst.CreatedAt, &inst.UpdatedAt, &expiresAt,
	)
	if err != nil {
		return nil, err
	}

	inst.State = workflow.State(state)
	inst.PhoneNumber = phoneNumber.String
	inst.LicenseID = licenseID.String
	inst.CurrentStep = currentStep.String
	inst.ConfirmationNumber = confirmationNumber.String
	inst.SubmittedBy = submittedBy.String
	inst.EscalatedFrom = workflow.State(escalatedFrom.String)
	inst.FailureReason = failureReason.String
	if submittedAt.Valid {
		inst.SubmittedAt = &submittedAt.Time
	}
	if expiresAt.Valid {
		inst.ExpiresAt = &expiresAt.Time
	}

	if err := json.Unmarshal([]byte(transcript), &inst.Transcript); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
	}
	if err := json.Unmarshal([]byte(completed), &inst.CompletedSteps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal completed steps: %w", err)
	}
	if err := json.Unmarshal([]byte(pending), &inst.PendingActions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending actions: %w", err)
	}
	if extracted.Valid && extracted.String != "" {
		if err := json.Unmarshal([]byte(extracted.String), &inst.ExtractedData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal extracted data: %w", err)
		}
	}
	if pkg.Valid && pkg.String != "" {
		if err := json.Unmarshal([]byte(pkg.String), &inst.SubmissionPackage); err != nil {
			return nil, fmt.Errorf("failed to unmarshal submission package: %w", err)
		}
	}

	return &inst, nil
}

func marshalInstanceJSON(inst *models.WorkflowInstance) (transcript, completed, pending string, extracted, pkg sql.NullString, err error) {
	if inst.Transcript == nil {
		inst.Transcript = []models.Turn{}
	}
	if inst.CompletedSteps == nil {
		inst.CompletedSteps = []string{}
	}
	if inst.PendingActions == nil {
		inst.PendingActions = []string{}
	}

	b, err := json.Marshal(inst.Transcript)
	if err != nil {
		err = fmt.Errorf("failed to marshal transcript: %w", err)
		return
	}
	transcript = string(b)

	b, err = json.Marshal(inst.CompletedSteps)
	if err != nil {
		err = fmt.Errorf("failed to marshal completed steps: %w", err)
		return
	}
	completed = string(b)

	b, err = json.Marshal(inst.PendingActions)
	if err != nil {
		err = fmt.Errorf("failed to marshal pending actions: %w", err)
		return
	}
	pending = string(b)

	if inst.ExtractedData != nil {
		b, err = json.Marshal(inst.ExtractedData)
		if err != nil {
			err = fmt.Errorf("failed to marshal extracted data: %w", err)
			return
		}
		extracted = sql.NullString{String: string(b), Valid: true}
	}

	if inst.SubmissionPackage != nil {
		b, err = json.Marshal(inst.SubmissionPackage)
		if err != nil {
			err = fmt.Errorf("failed to marshal submission package: %w", err)
			return
		}
		pkg = sql.NullString{String: string(b), Valid: true}
	}

	return
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
