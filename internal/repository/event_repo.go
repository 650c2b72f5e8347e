package repository

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/guardhq/renewal-workflow/internal/models"
	"github.com/guardhq/renewal-workflow/internal/workflow"
)

// EventRepository owns the append-only workflow event log
type EventRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *sql.DB, logger *zap.Logger) *EventRepository {
	return &EventRepository{
		db:     db,
		logger: logger,
	}
}

const eventColumns = `id, uid, instance_id, event_type, payload, triggered_by,
	created_at, processed_at, processing_note`

// Append atomically records one event. A failed append must propagate so
// the triggering transport does not acknowledge an unlogged trigger.
func (r *EventRepository) Append(tx *sql.Tx, evt *models.WorkflowEvent) error {
	query := `
		INSERT INTO workflow_events (uid, instance_id, event_type, payload, triggered_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	payload := sql.NullString{}
	if len(evt.Payload) > 0 {
		payload = sql.NullString{String: string(evt.Payload), Valid: true}
	}

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.Exec(query, evt.UID, evt.InstanceID, string(evt.Type), payload, string(evt.TriggeredBy), evt.CreatedAt)
	} else {
		result, err = r.db.Exec(query, evt.UID, evt.InstanceID, string(evt.Type), payload, string(evt.TriggeredBy), evt.CreatedAt)
	}
	if err != nil {
		r.logger.Error("Failed to append event",
			zap.Int64("instance_id", evt.InstanceID),
			zap.String("event_type", string(evt.Type)),
			zap.Error(err))
		return fmt.Errorf("failed to append event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	evt.ID = id
	return nil
}

// Unprocessed returns the unconsumed events for an instance in strict
// created-at order (id breaks ties for same-timestamp events).
func (r *EventRepository) Unprocessed(instanceID int64) ([]*models.WorkflowEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM workflow_events
		WHERE instance_id = ? AND processed_at IS NULL
		ORDER BY created_at ASC, id ASC
	`, eventColumns)

	rows, err := r.db.Query(query, instanceID)
	if err != nil {
		r.logger.Error("Failed to get unprocessed events", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get unprocessed events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// History returns all events for an instance in log order
func (r *EventRepository) History(instanceID int64) ([]*models.WorkflowEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM workflow_events
		WHERE instance_id = ?
		ORDER BY created_at ASC, id ASC
	`, eventColumns)

	rows, err := r.db.Query(query, instanceID)
	if err != nil {
		r.logger.Error("Failed to get event history", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get event history: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByUID retrieves an event by its idempotency UID
func (r *EventRepository) GetByUID(uid string) (*models.WorkflowEvent, error) {
	query := fmt.Sprintf("SELECT %s FROM workflow_events WHERE uid = ?", eventColumns)

	evt, err := scanEvent(r.db.QueryRow(query, uid))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get event by UID", zap.String("uid", uid), zap.Error(err))
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return evt, nil
}

// MarkProcessed records that the state machine has consumed an event.
// The note explains no-op outcomes so ignored events stay visible.
func (r *EventRepository) MarkProcessed(tx *sql.Tx, eventID int64, note string) error {
	query := `
		UPDATE workflow_events
		SET processed_at = ?, processing_note = ?
		WHERE id = ? AND processed_at IS NULL
	`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.Exec(query, time.Now().UTC(), nullString(note), eventID)
	} else {
		result, err = r.db.Exec(query, time.Now().UTC(), nullString(note), eventID)
	}
	if err != nil {
		r.logger.Error("Failed to mark event processed", zap.Int64("event_id", eventID), zap.Error(err))
		return fmt.Errorf("failed to mark event processed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("event %d already processed", eventID)
	}

	return nil
}

func scanEvents(rows *sql.Rows) ([]*models.WorkflowEvent, error) {
	var events []*models.WorkflowEvent
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

func scanEvent(row rowScanner) (*models.WorkflowEvent, error) {
	var evt models.WorkflowEvent
	var eventType, triggeredBy string
	var payload, note sql.NullString
	var processedAt sql.NullTime

	err := row.Scan(
		&evt.ID, &evt.UID, &evt.InstanceID, &eventType, &payload,
		&triggeredBy, &evt.CreatedAt, &processedAt, &note,
	)
	if err != nil {
		return nil, err
	}

	evt.Type = workflow.EventType(eventType)
	evt.TriggeredBy = workflow.TriggeredBy(triggeredBy)
	if payload.Valid {
		evt.Payload = []byte(payload.String)
	}
	if processedAt.Valid {
		evt.ProcessedAt = &processedAt.Time
	}
	evt.ProcessingNote = note.String

	return &evt, nil
}
