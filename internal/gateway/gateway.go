// Package gateway adapts external extraction and intent-classification
// capabilities. Both are treated as unreliable: every failure mode maps
// to a defined zero-confidence outcome so the state machine always has
// a decision to make, never an exception to handle.
package gateway

import (
	"context"

	"github.com/guardhq/renewal-workflow/internal/workflow"
)

// Gateway converts uploaded documents into structured fields and
// free-text replies into intents.
type Gateway interface {
	// Extract pulls structured license fields out of a document URL
	Extract(ctx context.Context, documentURL, documentType string) workflow.ExtractionOutcome

	// ClassifyIntent interprets a free-text employee message against the
	// current workflow state.
	ClassifyIntent(ctx context.Context, text string, stateContext workflow.State) workflow.IntentOutcome
}
