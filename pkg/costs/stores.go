package costs

import (
	"context"

	"github.com/google/uuid"
)

// HistoryStore is the durable per-organization cost time series.
type HistoryStore interface {
	// Append inserts records one by one, tolerating per-row failure so that
	// one bad row never aborts an otherwise valid batch. It returns the
	// number of rows actually stored.
	Append(ctx context.Context, records []CostRecord) (int, error)

	// QueryRange returns the organization's records with Date inside the
	// inclusive range, ordered by date ascending.
	QueryRange(ctx context.Context, orgID int64, r DateRange) ([]CostRecord, error)
}

// PredictionStore persists forecast batches. Batches are immutable; a new
// run supersedes earlier ones.
type PredictionStore interface {
	SaveRun(ctx context.Context, predictions []CostPrediction) error
}

// SuggestionStore persists optimization suggestions and their status
// transitions.
type SuggestionStore interface {
	Save(ctx context.Context, suggestions []OptimizationSuggestion) error

	// List returns the organization's suggestions ordered by descending
	// potential savings.
	List(ctx context.Context, orgID int64) ([]OptimizationSuggestion, error)

	// UpdateStatus applies a pending->applied or pending->dismissed
	// transition. It returns ErrNotFound for an unknown id and
	// ErrInvalidTransition when the suggestion is no longer pending or the
	// target status is not a terminal one.
	UpdateStatus(ctx context.Context, id uuid.UUID, status SuggestionStatus) error
}

// ResourceInventory exposes the externally-owned resource snapshots the rule
// engine evaluates.
type ResourceInventory interface {
	ListResources(ctx context.Context, orgID int64) ([]Resource, error)
}
