package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/guardhq/renewal-workflow/internal/models"
)

// DocumentRepository handles extracted document records. Rows are
// insert-only: re-extraction creates a new record.
type DocumentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sql.DB, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new extracted document record
func (r *DocumentRepository) Create(tx *sql.Tx, doc *models.ExtractedDocument) error {
	fields := sql.NullString{}
	if doc.Fields != nil {
		b, err := json.Marshal(doc.Fields)
		if err != nil {
			return fmt.Errorf("failed to marshal document fields: %w", err)
		}
		fields = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT INTO extracted_documents (
			instance_id, document_type, source_url, validated, validation_result, fields
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.Exec(query, doc.InstanceID, doc.DocumentType, doc.SourceURL,
			doc.Validated, nullString(doc.ValidationResult), fields)
	} else {
		result, err = r.db.Exec(query, doc.InstanceID, doc.DocumentType, doc.SourceURL,
			doc.Validated, nullString(doc.ValidationResult), fields)
	}
	if err != nil {
		r.logger.Error("Failed to create document record", zap.Int64("instance_id", doc.InstanceID), zap.Error(err))
		return fmt.Errorf("failed to create document: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	doc.ID = id
	return nil
}

// MarkValidated freezes a document record once its extraction has been
// confirmed by the employee.
func (r *DocumentRepository) MarkValidated(tx *sql.Tx, id int64, result string) error {
	query := `
		UPDATE extracted_documents
		SET validated = 1, validation_result = ?
		WHERE id = ? AND validated = 0
	`

	var err error
	if tx != nil {
		_, err = tx.Exec(query, result, id)
	} else {
		_, err = r.db.Exec(query, result, id)
	}
	if err != nil {
		r.logger.Error("Failed to mark document validated", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark document validated: %w", err)
	}
	return nil
}

// LatestByInstance returns the newest document of the given type for an
// instance, or nil if none exists.
func (r *DocumentRepository) LatestByInstance(instanceID int64, documentType string) (*models.ExtractedDocument, error) {
	query := `
		SELECT id, instance_id, document_type, source_url, validated, validation_result, fields, uploaded_at
		FROM extracted_documents
		WHERE instance_id = ? AND document_type = ?
		ORDER BY uploaded_at DESC, id DESC
		LIMIT 1
	`

	doc, err := scanDocument(r.db.QueryRow(query, instanceID, documentType))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get latest document", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get latest document: %w", err)
	}
	return doc, nil
}

// GetByInstanceID returns all document records for an instance
func (r *DocumentRepository) GetByInstanceID(instanceID int64) ([]*models.ExtractedDocument, error) {
	query := `
		SELECT id, instance_id, document_type, source_url, validated, validation_result, fields, uploaded_at
		FROM extracted_documents
		WHERE instance_id = ?
		ORDER BY uploaded_at ASC, id ASC
	`

	rows, err := r.db.Query(query, instanceID)
	if err != nil {
		r.logger.Error("Failed to get documents", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.ExtractedDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanDocument(row rowScanner) (*models.ExtractedDocument, error) {
	var doc models.ExtractedDocument
	var validationResult, fields sql.NullString

	err := row.Scan(
		&doc.ID, &doc.InstanceID, &doc.DocumentType, &doc.SourceURL,
		&doc.Validated, &validationResult, &fields, &doc.UploadedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.ValidationResult = validationResult.String
	if fields.Valid && fields.String != "" {
		if err := json.Unmarshal([]byte(fields.String), &doc.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document fields: %w", err)
		}
	}

	return &doc, nil
}
