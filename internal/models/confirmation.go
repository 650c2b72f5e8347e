package models

import "time"

// PendingConfirmation is the lightweight SMS-only projection: one
// unconfirmed extraction awaiting a yes/no-equivalent reply, plus its
// downstream HR-sync status.
type PendingConfirmation struct {
	ID                     int64     `json:"id"`
	InstanceID             int64     `json:"instance_id"`
	DocumentID             int64     `json:"document_id"`
	Confirmed              *bool     `json:"confirmed,omitempty"`
	SyncedToExternalSystem bool      `json:"synced_to_external_system"`
	SyncError              string    `json:"sync_error,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}
