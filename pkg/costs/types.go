// Package costs defines the domain types and store contracts shared by the
// billing normalizer, forecasting engine, optimization engine and API layer.
package costs

import (
	"time"

	"github.com/google/uuid"
)

// Period is the time bucket a prediction or rollup covers.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Model selects the forecasting algorithm. The values are the caller-facing
// tags accepted by the API; the produced predictions carry the long-form
// labels from ModelLabel.
type Model string

const (
	ModelLinear                Model = "linear"
	ModelMovingAverage         Model = "movingAverage"
	ModelWeightedMovingAverage Model = "weightedMovingAverage"
)

// Label returns the model tag stored on produced predictions.
func (m Model) Label() string {
	switch m {
	case ModelLinear:
		return "LinearRegression"
	case ModelMovingAverage:
		return "MovingAverage"
	case ModelWeightedMovingAverage:
		return "WeightedMovingAverage"
	}
	return string(m)
}

// SuggestedAction enumerates the optimization actions the rule catalog emits.
type SuggestedAction string

const (
	ActionDownsize          SuggestedAction = "Downsize"
	ActionTerminate         SuggestedAction = "Terminate"
	ActionSchedule          SuggestedAction = "Schedule"
	ActionStorageTransition SuggestedAction = "StorageTransition"
)

// Difficulty grades how hard a suggestion is to implement.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// SuggestionStatus tracks the lifecycle of a suggestion. Suggestions are
// never deleted; the only legal transitions are pending->applied and
// pending->dismissed.
type SuggestionStatus string

const (
	StatusPending   SuggestionStatus = "pending"
	StatusApplied   SuggestionStatus = "applied"
	StatusDismissed SuggestionStatus = "dismissed"
)

// CostRecord is one observed cost event, normalized from a provider billing
// export. Date is a calendar day at UTC midnight and Amount is non-negative;
// both invariants are enforced during normalization and never violated
// downstream.
type CostRecord struct {
	Date            time.Time `json:"date"`
	Amount          float64   `json:"amount"`
	ServiceCategory string    `json:"serviceCategory"`
	Region          string    `json:"region,omitempty"`
	UsageType       string    `json:"usageType,omitempty"`
	UsageAmount     float64   `json:"usageAmount,omitempty"`
	UsageUnit       string    `json:"usageUnit,omitempty"`
	ResourceID      string    `json:"resourceId,omitempty"`
	OrganizationID  int64     `json:"organizationId"`
	CreatedAt       time.Time `json:"createdAt,omitempty"`
}

// CostPrediction is one forecasted point. Predictions are written in a batch
// identified by RunID and are immutable; the next forecast run supersedes
// them with a new batch.
type CostPrediction struct {
	RunID              uuid.UUID `json:"runId"`
	OrganizationID     int64     `json:"organizationId"`
	PredictedDate      time.Time `json:"predictedDate"`
	PredictedAmount    float64   `json:"predictedAmount"`
	ConfidenceInterval float64   `json:"confidenceInterval"`
	Model              string    `json:"model"`
	Period             Period    `json:"predictionPeriod"`
	CreatedAt          time.Time `json:"createdAt,omitempty"`
}

// OptimizationSuggestion is one actionable recommendation produced by the
// rule engine for a single resource.
type OptimizationSuggestion struct {
	ID               uuid.UUID        `json:"id"`
	OrganizationID   int64            `json:"organizationId"`
	ResourceID       string           `json:"resourceId"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	SuggestedAction  SuggestedAction  `json:"suggestedAction"`
	PotentialSavings float64          `json:"potentialSavings"`
	Confidence       float64          `json:"confidence"`
	Difficulty       Difficulty       `json:"implementationDifficulty"`
	Status           SuggestionStatus `json:"status"`
	CreatedAt        time.Time        `json:"createdAt,omitempty"`
}

// Resource is a cloud resource snapshot served by the external inventory.
// Tags is the string-keyed map rule detectors read; Cost is the current
// period cost used as the base for savings estimates.
type Resource struct {
	ID             string            `json:"id"`
	OrganizationID int64             `json:"organizationId"`
	Name           string            `json:"name"`
	Type           string            `json:"type"`
	Status         string            `json:"status"`
	Region         string            `json:"region,omitempty"`
	Tags           map[string]string `json:"tags"`
	Cost           float64           `json:"cost"`
}

// DateRange is an inclusive calendar-date interval.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Day truncates t to its calendar day at UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LastNDays returns the inclusive range covering the n days up to and
// including the day of now.
func LastNDays(now time.Time, n int) DateRange {
	end := Day(now)
	return DateRange{Start: end.AddDate(0, 0, -(n - 1)), End: end}
}
