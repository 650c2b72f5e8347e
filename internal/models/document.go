package models

import "time"

// ExtractedDocument is the result of one extraction-gateway run over an
// uploaded artifact. Immutable once validated; re-extraction inserts a
// new record rather than mutating an existing one.
type ExtractedDocument struct {
	ID               int64          `json:"id"`
	InstanceID       int64          `json:"instance_id"`
	DocumentType     string         `json:"document_type"`
	SourceURL        string         `json:"source_url"`
	Validated        bool           `json:"validated"`
	ValidationResult string         `json:"validation_result,omitempty"`
	Fields           *ExtractedData `json:"fields,omitempty"`
	UploadedAt       time.Time      `json:"uploaded_at"`
}

// Document types understood by the extraction gateway
const (
	DocumentTypeLicensePhoto        = "license_photo"
	DocumentTypeTrainingCertificate = "training_certificate"
)
