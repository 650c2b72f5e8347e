package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/guardhq/renewal-workflow/internal/workflow"
)

// Dispatch attempt statuses
const (
	DispatchPending   = "pending"
	DispatchSucceeded = "succeeded"
	DispatchFailed    = "failed"
	DispatchExhausted = "exhausted"
)

// DispatchAttempt is one logged dispatch of an outbound side effect
type DispatchAttempt struct {
	ID         int64
	InstanceID int64
	EffectType workflow.EffectType
	Template   string
	Payload    string
	Attempt    int
	Status     string
	Error      string
}

// DispatchRepository logs every outbound dispatch attempt and outcome
type DispatchRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDispatchRepository creates a new dispatch repository
func NewDispatchRepository(db *sql.DB, logger *zap.Logger) *DispatchRepository {
	return &DispatchRepository{
		db:     db,
		logger: logger,
	}
}

// Record logs one dispatch attempt with its outcome
func (r *DispatchRepository) Record(instanceID int64, effect workflow.Effect, attempt int, status, errMsg string) error {
	payload := sql.NullString{}
	if effect.Params != nil || effect.Payload != nil {
		b, err := json.Marshal(effect)
		if err != nil {
			return fmt.Errorf("failed to marshal effect: %w", err)
		}
		payload = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT INTO dispatch_attempts (instance_id, effect_type, template, payload, attempt, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query, instanceID, string(effect.Type), nullString(effect.Template),
		payload, attempt, status, nullString(errMsg))
	if err != nil {
		r.logger.Error("Failed to record dispatch attempt",
			zap.Int64("instance_id", instanceID),
			zap.String("effect_type", string(effect.Type)),
			zap.Error(err))
		return fmt.Errorf("failed to record dispatch attempt: %w", err)
	}
	return nil
}

// GetByInstanceID returns the dispatch log for an instance, oldest first
func (r *DispatchRepository) GetByInstanceID(instanceID int64) ([]*DispatchAttempt, error) {
	query := `
		SELECT id, instance_id, effect_type, template, payload, attempt, status, error
		FROM dispatch_attempts
		WHERE instance_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(query, instanceID)
	if err != nil {
		r.logger.Error("Failed to get dispatch attempts", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get dispatch attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*DispatchAttempt
	for rows.Next() {
		var a DispatchAttempt
		var effectType string
		var template, payload, errMsg sql.NullString

		if err := rows.Scan(&a.ID, &a.InstanceID, &effectType, &template, &payload, &a.Attempt, &a.Status, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch attempt row: %w", err)
		}

		a.EffectType = workflow.EffectType(effectType)
		a.Template = template.String
		a.Payload = payload.String
		a.Error = errMsg.String
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}
