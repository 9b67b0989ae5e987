package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cloudguard/internal/billing"
	"cloudguard/internal/forecast"
	"cloudguard/internal/report"
	"cloudguard/pkg/costs"
)

const (
	dateFormat = "2006-01-02"

	// historyWindowDays is the trailing window fed to the forecasting
	// models and the default range for historical summaries.
	historyWindowDays = 90

	defaultHorizonDays = 30
	maxHorizonDays     = 365
)

// =============================================================================
// FORECAST
// =============================================================================

// ForecastRequest asks for a cost forecast. OrganizationID is required:
// there is no default tenant.
type ForecastRequest struct {
	OrganizationID int64  `json:"organization_id"`
	HorizonDays    int    `json:"horizon_days"`
	Model          string `json:"model"`
}

// PredictionResponse is one forecasted day.
type PredictionResponse struct {
	PredictedDate      string `json:"predicted_date"`
	PredictedAmount    string `json:"predicted_amount"`
	ConfidenceInterval string `json:"confidence_interval"`
	Model              string `json:"model"`
	PredictionPeriod   string `json:"prediction_period"`
}

// RollupResponse is a weekly or monthly aggregate of daily predictions.
type RollupResponse struct {
	Period             string `json:"period"`
	StartDate          string `json:"start_date"`
	EndDate            string `json:"end_date"`
	PredictedAmount    string `json:"predicted_amount"`
	ConfidenceInterval string `json:"confidence_interval"`
	Model              string `json:"model"`
}

// ForecastResponse is the full forecasting result.
type ForecastResponse struct {
	RunID             string               `json:"run_id"`
	DailyPredictions  []PredictionResponse `json:"daily_predictions"`
	WeeklyPredictions []RollupResponse     `json:"weekly_predictions"`
	MonthlyPrediction RollupResponse       `json:"monthly_prediction"`
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req ForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrganizationID <= 0 {
		s.writeError(w, http.StatusBadRequest, "organization_id is required")
		return
	}
	if req.HorizonDays == 0 {
		req.HorizonDays = defaultHorizonDays
	}
	if req.HorizonDays < 0 || req.HorizonDays > maxHorizonDays {
		s.writeError(w, http.StatusBadRequest, "horizon_days must be between 1 and 365")
		return
	}
	if req.Model == "" {
		req.Model = string(costs.ModelLinear)
	}

	ctx := r.Context()
	now := time.Now()

	records, err := s.backend.History.QueryRange(ctx, req.OrganizationID, costs.LastNDays(now, historyWindowDays))
	if err != nil {
		s.log.Error().Err(err).Msg("querying cost history")
		s.writeError(w, http.StatusInternalServerError, "failed to read cost history")
		return
	}

	history := dailySeries(records)
	result, err := s.forecaster.Forecast(req.OrganizationID, history, costs.Model(req.Model), req.HorizonDays, now)
	switch {
	case errors.Is(err, costs.ErrInsufficientHistory):
		s.writeError(w, http.StatusUnprocessableEntity, "insufficient history: at least 7 daily data points are required")
		return
	case errors.Is(err, costs.ErrUnknownModel):
		s.writeError(w, http.StatusBadRequest, "unknown model: "+req.Model)
		return
	case err != nil:
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.backend.Predictions.SaveRun(ctx, result.Daily); err != nil {
		s.log.Error().Err(err).Str("run_id", result.RunID.String()).Msg("saving prediction run")
		s.writeError(w, http.StatusInternalServerError, "failed to persist predictions")
		return
	}

	s.writeJSON(w, http.StatusOK, buildForecastResponse(result))
}

// dailySeries collapses raw records into the per-day totals the models
// consume.
func dailySeries(records []costs.CostRecord) []forecast.DailyCost {
	buckets := report.ByPeriod(records, report.GroupDay)
	series := make([]forecast.DailyCost, len(buckets))
	for i, b := range buckets {
		series[i] = forecast.DailyCost{Date: b.Start, Amount: b.Total}
	}
	return series
}

func buildForecastResponse(result *forecast.Result) ForecastResponse {
	daily := make([]PredictionResponse, len(result.Daily))
	for i, p := range result.Daily {
		daily[i] = PredictionResponse{
			PredictedDate:      p.PredictedDate.Format(dateFormat),
			PredictedAmount:    money(p.PredictedAmount),
			ConfidenceInterval: spread(p.ConfidenceInterval),
			Model:              p.Model,
			PredictionPeriod:   string(p.Period),
		}
	}
	weekly := make([]RollupResponse, len(result.Weekly))
	for i, rp := range result.Weekly {
		weekly[i] = buildRollupResponse(rp)
	}
	return ForecastResponse{
		RunID:             result.RunID.String(),
		DailyPredictions:  daily,
		WeeklyPredictions: weekly,
		MonthlyPrediction: buildRollupResponse(result.Monthly),
	}
}

func buildRollupResponse(rp forecast.Rollup) RollupResponse {
	return RollupResponse{
		Period:             rp.Period,
		StartDate:          rp.StartDate.Format(dateFormat),
		EndDate:            rp.EndDate.Format(dateFormat),
		PredictedAmount:    money(rp.PredictedAmount),
		ConfidenceInterval: spread(rp.ConfidenceInterval),
		Model:              rp.Model,
	}
}

// =============================================================================
// SUGGESTIONS
// =============================================================================

// GenerateSuggestionsRequest asks for a fresh rule-engine pass.
type GenerateSuggestionsRequest struct {
	OrganizationID int64 `json:"organization_id"`
}

// SuggestionResponse is one optimization suggestion.
type SuggestionResponse struct {
	ID               string  `json:"id"`
	ResourceID       string  `json:"resource_id,omitempty"`
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	SuggestedAction  string  `json:"suggested_action"`
	PotentialSavings string  `json:"potential_savings"`
	Confidence       float64 `json:"confidence"`
	Difficulty       string  `json:"implementation_difficulty"`
	Status           string  `json:"status"`
}

// SuggestionsResponse carries the ranked list plus the savings total.
type SuggestionsResponse struct {
	Suggestions           []SuggestionResponse `json:"suggestions"`
	TotalPotentialSavings string               `json:"total_potential_savings"`
	Count                 int                  `json:"count"`
}

func (s *Server) handleGenerateSuggestions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req GenerateSuggestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrganizationID <= 0 {
		s.writeError(w, http.StatusBadRequest, "organization_id is required")
		return
	}

	ctx := r.Context()
	eval, err := s.optimizer.Evaluate(ctx, s.backend.Inventory, req.OrganizationID)
	if err != nil {
		if errors.Is(err, costs.ErrInventoryUnavailable) {
			s.writeError(w, http.StatusBadGateway, "resource inventory unavailable")
			return
		}
		s.log.Error().Err(err).Msg("evaluating optimization rules")
		s.writeError(w, http.StatusInternalServerError, "failed to generate suggestions")
		return
	}

	if err := s.backend.Suggestions.Save(ctx, eval.Suggestions); err != nil {
		s.log.Error().Err(err).Msg("saving suggestions")
		s.writeError(w, http.StatusInternalServerError, "failed to persist suggestions")
		return
	}

	s.writeJSON(w, http.StatusOK, buildSuggestionsResponse(eval.Suggestions, eval.TotalSavings))
}

func (s *Server) handleListSuggestions(w http.ResponseWriter, r *http.Request) {
	orgID, err := strconv.ParseInt(r.URL.Query().Get("organization_id"), 10, 64)
	if err != nil || orgID <= 0 {
		s.writeError(w, http.StatusBadRequest, "organization_id is required")
		return
	}

	suggestions, err := s.backend.Suggestions.List(r.Context(), orgID)
	if err != nil {
		s.log.Error().Err(err).Msg("listing suggestions")
		s.writeError(w, http.StatusInternalServerError, "failed to list suggestions")
		return
	}

	var total float64
	for _, sg := range suggestions {
		total += sg.PotentialSavings
	}
	s.writeJSON(w, http.StatusOK, buildSuggestionsResponse(suggestions, total))
}

// UpdateSuggestionRequest applies a status transition.
type UpdateSuggestionRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateSuggestion(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid suggestion id")
		return
	}

	var req UpdateSuggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err = s.backend.Suggestions.UpdateStatus(r.Context(), id, costs.SuggestionStatus(req.Status))
	switch {
	case errors.Is(err, costs.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "suggestion not found")
	case errors.Is(err, costs.ErrInvalidTransition):
		s.writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.log.Error().Err(err).Msg("updating suggestion status")
		s.writeError(w, http.StatusInternalServerError, "failed to update suggestion")
	default:
		s.writeJSON(w, http.StatusOK, map[string]string{"id": id.String(), "status": req.Status})
	}
}

func buildSuggestionsResponse(suggestions []costs.OptimizationSuggestion, total float64) SuggestionsResponse {
	out := make([]SuggestionResponse, len(suggestions))
	for i, sg := range suggestions {
		out[i] = SuggestionResponse{
			ID:               sg.ID.String(),
			ResourceID:       sg.ResourceID,
			Title:            sg.Title,
			Description:      sg.Description,
			SuggestedAction:  string(sg.SuggestedAction),
			PotentialSavings: money(sg.PotentialSavings),
			Confidence:       sg.Confidence,
			Difficulty:       string(sg.Difficulty),
			Status:           string(sg.Status),
		}
	}
	return SuggestionsResponse{
		Suggestions:           out,
		TotalPotentialSavings: money(total),
		Count:                 len(out),
	}
}

// =============================================================================
// BILLING IMPORT
// =============================================================================

// ImportRequest carries one billing export as raw CSV text.
type ImportRequest struct {
	OrganizationID int64  `json:"organization_id"`
	Dialect        string `json:"dialect"`
	CSV            string `json:"csv"`
}

// ImportResponse reports partial success explicitly: the accepted count is
// returned even when some rows were dropped.
type ImportResponse struct {
	ImportedCount int `json:"imported_count"`
	DroppedCount  int `json:"dropped_count"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrganizationID <= 0 {
		s.writeError(w, http.StatusBadRequest, "organization_id is required")
		return
	}

	dialect, err := billing.ParseDialect(req.Dialect)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unknown dialect: "+req.Dialect)
		return
	}

	result, err := billing.Normalize(dialect, strings.NewReader(req.CSV), req.OrganizationID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unreadable billing file: "+err.Error())
		return
	}
	if result.Accepted == 0 {
		s.writeError(w, http.StatusUnprocessableEntity, costs.ErrNoValidRows.Error())
		return
	}

	inserted, err := s.backend.History.Append(r.Context(), result.Records)
	if err != nil {
		s.log.Error().Err(err).Msg("appending cost records")
		s.writeError(w, http.StatusInternalServerError, "failed to store billing data")
		return
	}

	s.writeJSON(w, http.StatusOK, ImportResponse{
		ImportedCount: inserted,
		DroppedCount:  result.Dropped,
	})
}

// =============================================================================
// HISTORY
// =============================================================================

// TimePointResponse is one time-series bucket.
type TimePointResponse struct {
	Date   string `json:"date"`
	Amount string `json:"amount"`
	Count  int    `json:"count"`
}

// ShareResponse is one categorical slice.
type ShareResponse struct {
	Key        string  `json:"key"`
	Amount     string  `json:"amount"`
	Percentage float64 `json:"percentage"`
}

// HistoryResponse is the historical summary payload.
type HistoryResponse struct {
	TimeSeries        []TimePointResponse `json:"time_series"`
	CategoryBreakdown []ShareResponse     `json:"category_breakdown"`
	RegionBreakdown   []ShareResponse     `json:"region_breakdown"`
	Summary           struct {
		TotalCost        string `json:"total_cost"`
		AverageDailyCost string `json:"average_daily_cost"`
		StartDate        string `json:"start_date"`
		EndDate          string `json:"end_date"`
		Period           string `json:"period"`
	} `json:"summary"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	orgID, err := strconv.ParseInt(q.Get("organization_id"), 10, 64)
	if err != nil || orgID <= 0 {
		s.writeError(w, http.StatusBadRequest, "organization_id is required")
		return
	}

	group := report.GroupDay
	switch q.Get("group_by") {
	case "", "day":
	case "week":
		group = report.GroupWeek
	case "month":
		group = report.GroupMonth
	default:
		s.writeError(w, http.StatusBadRequest, "group_by must be day, week or month")
		return
	}

	end := costs.Day(time.Now())
	if raw := q.Get("end"); raw != "" {
		if end, err = time.Parse(dateFormat, raw); err != nil {
			s.writeError(w, http.StatusBadRequest, "end must be YYYY-MM-DD")
			return
		}
	}
	start := end.AddDate(0, 0, -historyWindowDays)
	if raw := q.Get("start"); raw != "" {
		if start, err = time.Parse(dateFormat, raw); err != nil {
			s.writeError(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
			return
		}
	}
	if start.After(end) {
		s.writeError(w, http.StatusBadRequest, "start must not be after end")
		return
	}

	records, err := s.backend.History.QueryRange(r.Context(), orgID, costs.DateRange{Start: start, End: end})
	if err != nil {
		s.log.Error().Err(err).Msg("querying cost history")
		s.writeError(w, http.StatusInternalServerError, "failed to read cost history")
		return
	}

	resp := HistoryResponse{
		TimeSeries:        buildTimeSeries(report.ByPeriod(records, group)),
		CategoryBreakdown: buildShares(report.ByCategory(records)),
		RegionBreakdown:   buildShares(report.ByRegion(records)),
	}
	summary := report.Summarize(records)
	resp.Summary.TotalCost = money(summary.TotalCost)
	resp.Summary.AverageDailyCost = money(summary.AverageDailyCost)
	resp.Summary.StartDate = start.Format(dateFormat)
	resp.Summary.EndDate = end.Format(dateFormat)
	resp.Summary.Period = string(group)

	s.writeJSON(w, http.StatusOK, resp)
}

func buildTimeSeries(buckets []report.TimeBucket) []TimePointResponse {
	out := make([]TimePointResponse, len(buckets))
	for i, b := range buckets {
		out[i] = TimePointResponse{
			Date:   b.Start.Format(dateFormat),
			Amount: money(b.Total),
			Count:  b.Count,
		}
	}
	return out
}

func buildShares(shares []report.Share) []ShareResponse {
	out := make([]ShareResponse, len(shares))
	for i, sh := range shares {
		out[i] = ShareResponse{Key: sh.Key, Amount: money(sh.Total), Percentage: sh.Percentage}
	}
	return out
}

// money renders an amount with fixed two-decimal precision; spread keeps
// four places for confidence intervals.
func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func spread(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(4)
}
