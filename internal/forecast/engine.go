// Package forecast produces day-level cost predictions with weekly and
// monthly rollups from an organization's historical daily spend.
//
// Three mutually exclusive models are supported: ordinary-least-squares
// linear regression, a trailing moving average, and a recency-weighted
// moving average. Model selection is a tagged variant dispatched through one
// Forecast entry point so each algorithm stays independently testable.
package forecast

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"cloudguard/pkg/costs"
)

// DailyCost is one point of the aggregated historical series, ordered by
// date ascending.
type DailyCost struct {
	Date   time.Time
	Amount float64
}

// Rollup is a time-bucketed sum of daily predictions.
type Rollup struct {
	Period             string    `json:"period"`
	StartDate          time.Time `json:"startDate"`
	EndDate            time.Time `json:"endDate"`
	PredictedAmount    float64   `json:"predictedAmount"`
	ConfidenceInterval float64   `json:"confidenceInterval"`
	Model              string    `json:"model"`
}

// Result is one complete forecasting run. Daily carries one prediction per
// horizon day; Weekly partitions those into consecutive 7-day chunks (the
// final chunk may be shorter); Monthly is the single rollup over the whole
// horizon.
type Result struct {
	RunID   uuid.UUID
	Daily   []costs.CostPrediction
	Weekly  []Rollup
	Monthly Rollup
}

// Engine computes forecasts. It is stateless and safe for concurrent use;
// every run is a pure read-then-compute pass over its input window.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Forecast predicts the organization's daily cost for each day in
// [tomorrow, tomorrow+horizon-1], where tomorrow is relative to now.
//
// The averaging models need a full trailing window of windowSize daily
// points and so does the regression; the weighted model tolerates a partial
// window by mean-padding and only rejects an empty series. All predicted
// amounts are clamped at zero.
func (e *Engine) Forecast(orgID int64, history []DailyCost, model costs.Model, horizon int, now time.Time) (*Result, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("horizon must be positive, got %d", horizon)
	}

	var amount, confidence float64
	var amounts []float64
	for _, h := range history {
		amounts = append(amounts, h.Amount)
	}

	switch model {
	case costs.ModelLinear:
		if len(history) < windowSize {
			return nil, fmt.Errorf("%w: have %d daily points, need %d", costs.ErrInsufficientHistory, len(history), windowSize)
		}
		return e.forecastLinear(orgID, history, amounts, horizon, now)

	case costs.ModelMovingAverage:
		if len(history) < windowSize {
			return nil, fmt.Errorf("%w: have %d daily points, need %d", costs.ErrInsufficientHistory, len(history), windowSize)
		}
		window := amounts[len(amounts)-windowSize:]
		amount = mean(window)
		confidence = stdDevAround(window, amount)

	case costs.ModelWeightedMovingAverage:
		if len(history) == 0 {
			return nil, fmt.Errorf("%w: no daily points", costs.ErrInsufficientHistory)
		}
		window := padWindow(amounts, windowSize)
		amount = weightedMean(window, wmaWeights)
		confidence = stdDevAround(window, amount)

	default:
		return nil, fmt.Errorf("%w: %q", costs.ErrUnknownModel, model)
	}

	daily := e.flatSeries(orgID, model.Label(), amount, confidence, horizon, now)
	return e.rollUp(daily), nil
}

// forecastLinear extrapolates the OLS fit by continuing the zero-based day
// index sequence of the historical window forward.
func (e *Engine) forecastLinear(orgID int64, history []DailyCost, amounts []float64, horizon int, now time.Time) (*Result, error) {
	first := costs.Day(history[0].Date)
	x := make([]int, len(history))
	for i, h := range history {
		x[i] = int(costs.Day(h.Date).Sub(first).Hours() / 24)
	}

	fit := fitLinear(x, amounts)
	confidence := linearConfidence(fit.r2, maxOf(amounts))

	runID := uuid.New()
	tomorrow := costs.Day(now).AddDate(0, 0, 1)
	lastIndex := x[len(x)-1]

	daily := make([]costs.CostPrediction, horizon)
	for i := 0; i < horizon; i++ {
		dayIndex := lastIndex + i + 1
		daily[i] = costs.CostPrediction{
			RunID:              runID,
			OrganizationID:     orgID,
			PredictedDate:      tomorrow.AddDate(0, 0, i),
			PredictedAmount:    clampNonNegative(fit.slope*float64(dayIndex) + fit.intercept),
			ConfidenceInterval: confidence,
			Model:              costs.ModelLinear.Label(),
			Period:             costs.PeriodDaily,
		}
	}
	return e.rollUp(daily), nil
}

// flatSeries builds the horizon for the averaging models, which predict the
// same value for every future day.
func (e *Engine) flatSeries(orgID int64, label string, amount, confidence float64, horizon int, now time.Time) []costs.CostPrediction {
	runID := uuid.New()
	tomorrow := costs.Day(now).AddDate(0, 0, 1)
	amount = clampNonNegative(amount)

	daily := make([]costs.CostPrediction, horizon)
	for i := 0; i < horizon; i++ {
		daily[i] = costs.CostPrediction{
			RunID:              runID,
			OrganizationID:     orgID,
			PredictedDate:      tomorrow.AddDate(0, 0, i),
			PredictedAmount:    amount,
			ConfidenceInterval: confidence,
			Model:              label,
			Period:             costs.PeriodDaily,
		}
	}
	return daily
}

// rollUp partitions the daily series into weekly chunks and one monthly
// total. A chunk's amount is the sum of its days and its confidence the mean
// of their intervals, so the weekly amounts always sum to the monthly one.
func (e *Engine) rollUp(daily []costs.CostPrediction) *Result {
	res := &Result{RunID: daily[0].RunID, Daily: daily}
	model := daily[0].Model

	for i := 0; i < len(daily); i += windowSize {
		end := i + windowSize
		if end > len(daily) {
			end = len(daily)
		}
		chunk := daily[i:end]

		var total, ci float64
		for _, p := range chunk {
			total += p.PredictedAmount
			ci += p.ConfidenceInterval
		}
		res.Weekly = append(res.Weekly, Rollup{
			Period:             fmt.Sprintf("Week %d", i/windowSize+1),
			StartDate:          chunk[0].PredictedDate,
			EndDate:            chunk[len(chunk)-1].PredictedDate,
			PredictedAmount:    total,
			ConfidenceInterval: ci / float64(len(chunk)),
			Model:              model,
		})
	}

	var total, ci float64
	for _, p := range daily {
		total += p.PredictedAmount
		ci += p.ConfidenceInterval
	}
	res.Monthly = Rollup{
		Period:             fmt.Sprintf("Next %d Days", len(daily)),
		StartDate:          daily[0].PredictedDate,
		EndDate:            daily[len(daily)-1].PredictedDate,
		PredictedAmount:    total,
		ConfidenceInterval: ci / float64(len(daily)),
		Model:              model,
	}
	return res
}
