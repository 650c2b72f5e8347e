package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/guardhq/renewal-workflow/internal/models"
)

// ConfirmationRepository handles the lightweight SMS-only confirmation
// projection rows.
type ConfirmationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewConfirmationRepository creates a new confirmation repository
func NewConfirmationRepository(db *sql.DB, logger *zap.Logger) *ConfirmationRepository {
	return &ConfirmationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new pending confirmation for a freshly extracted document
func (r *ConfirmationRepository) Create(tx *sql.Tx, pc *models.PendingConfirmation) error {
	query := `
		INSERT INTO pending_confirmations (instance_id, document_id)
		VALUES (?, ?)
	`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.Exec(query, pc.InstanceID, pc.DocumentID)
	} else {
		result, err = r.db.Exec(query, pc.InstanceID, pc.DocumentID)
	}
	if err != nil {
		r.logger.Error("Failed to create pending confirmation", zap.Int64("instance_id", pc.InstanceID), zap.Error(err))
		return fmt.Errorf("failed to create pending confirmation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	pc.ID = id
	return nil
}

// SetConfirmed records the employee's confirm/reject decision
func (r *ConfirmationRepository) SetConfirmed(tx *sql.Tx, id int64, confirmed bool) error {
	query := `
		UPDATE pending_confirmations
		SET confirmed = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	var err error
	if tx != nil {
		_, err = tx.Exec(query, confirmed, id)
	} else {
		_, err = r.db.Exec(query, confirmed, id)
	}
	if err != nil {
		r.logger.Error("Failed to set confirmation", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to set confirmation: %w", err)
	}
	return nil
}

// SetSyncStatus records the downstream HR-system sync outcome
func (r *ConfirmationRepository) SetSyncStatus(id int64, synced bool, syncErr string) error {
	query := `
		UPDATE pending_confirmations
		SET synced_to_external = ?, sync_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	if _, err := r.db.Exec(query, synced, nullString(syncErr), id); err != nil {
		r.logger.Error("Failed to set sync status", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to set sync status: %w", err)
	}
	return nil
}

// LatestByInstance returns the newest confirmation row for an instance,
// or nil if none exists.
func (r *ConfirmationRepository) LatestByInstance(instanceID int64) (*models.PendingConfirmation, error) {
	query := `
		SELECT id, instance_id, document_id, confirmed, synced_to_external, sync_error, created_at, updated_at
		FROM pending_confirmations
		WHERE instance_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var pc models.PendingConfirmation
	var confirmed sql.NullBool
	var syncError sql.NullString

	err := r.db.QueryRow(query, instanceID).Scan(
		&pc.ID, &pc.InstanceID, &pc.DocumentID, &confirmed,
		&pc.SyncedToExternalSystem, &syncError, &pc.CreatedAt, &pc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get latest confirmation", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get latest confirmation: %w", err)
	}

	if confirmed.Valid {
		pc.Confirmed = &confirmed.Bool
	}
	pc.SyncError = syncError.String

	return &pc, nil
}
