package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudguard/pkg/costs"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeHistory struct {
	records  []costs.CostRecord
	queryErr error
}

func (f *fakeHistory) Append(_ context.Context, records []costs.CostRecord) (int, error) {
	f.records = append(f.records, records...)
	return len(records), nil
}

func (f *fakeHistory) QueryRange(_ context.Context, orgID int64, r costs.DateRange) ([]costs.CostRecord, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []costs.CostRecord
	for _, rec := range f.records {
		if rec.OrganizationID == orgID && !rec.Date.Before(r.Start) && !rec.Date.After(r.End) {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakePredictions struct {
	runs [][]costs.CostPrediction
}

func (f *fakePredictions) SaveRun(_ context.Context, predictions []costs.CostPrediction) error {
	f.runs = append(f.runs, predictions)
	return nil
}

type fakeSuggestions struct {
	items map[uuid.UUID]costs.OptimizationSuggestion
}

func newFakeSuggestions() *fakeSuggestions {
	return &fakeSuggestions{items: map[uuid.UUID]costs.OptimizationSuggestion{}}
}

func (f *fakeSuggestions) Save(_ context.Context, suggestions []costs.OptimizationSuggestion) error {
	for _, s := range suggestions {
		f.items[s.ID] = s
	}
	return nil
}

func (f *fakeSuggestions) List(_ context.Context, orgID int64) ([]costs.OptimizationSuggestion, error) {
	var out []costs.OptimizationSuggestion
	for _, s := range f.items {
		if s.OrganizationID == orgID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSuggestions) UpdateStatus(_ context.Context, id uuid.UUID, status costs.SuggestionStatus) error {
	if status != costs.StatusApplied && status != costs.StatusDismissed {
		return fmt.Errorf("%w: pending -> %s", costs.ErrInvalidTransition, status)
	}
	s, ok := f.items[id]
	if !ok {
		return costs.ErrNotFound
	}
	if s.Status != costs.StatusPending {
		return fmt.Errorf("%w: no longer pending", costs.ErrInvalidTransition)
	}
	s.Status = status
	f.items[id] = s
	return nil
}

type fakeInventory struct {
	resources []costs.Resource
	err       error
}

func (f *fakeInventory) ListResources(_ context.Context, _ int64) ([]costs.Resource, error) {
	return f.resources, f.err
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(_ context.Context) error { return f.err }

type testBackend struct {
	history     *fakeHistory
	predictions *fakePredictions
	suggestions *fakeSuggestions
	inventory   *fakeInventory
	pinger      *fakePinger
}

func newTestServer(t *testing.T) (*Server, *testBackend) {
	t.Helper()
	b := &testBackend{
		history:     &fakeHistory{},
		predictions: &fakePredictions{},
		suggestions: newFakeSuggestions(),
		inventory:   &fakeInventory{},
		pinger:      &fakePinger{},
	}
	srv := NewServer(Backend{
		History:     b.history,
		Predictions: b.predictions,
		Suggestions: b.suggestions,
		Inventory:   b.inventory,
		Pinger:      b.pinger,
	}, nil, zerolog.Nop())
	return srv, b
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func seedConstantHistory(h *fakeHistory, orgID int64, days int, amount float64) {
	today := costs.Day(time.Now())
	for i := days; i >= 1; i-- {
		h.records = append(h.records, costs.CostRecord{
			Date:            today.AddDate(0, 0, -i),
			Amount:          amount,
			ServiceCategory: "EC2",
			OrganizationID:  orgID,
		})
	}
}

// =============================================================================
// FORECAST
// =============================================================================

func TestHandleForecast(t *testing.T) {
	srv, b := newTestServer(t)
	seedConstantHistory(b.history, 1, 14, 100)

	rr := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/forecast", ForecastRequest{
		OrganizationID: 1,
		HorizonDays:    7,
		Model:          "movingAverage",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[ForecastResponse](t, rr)
	require.Len(t, resp.DailyPredictions, 7)
	assert.Equal(t, "100.00", resp.DailyPredictions[0].PredictedAmount)
	assert.Equal(t, "0.0000", resp.DailyPredictions[0].ConfidenceInterval)
	assert.Equal(t, "MovingAverage", resp.DailyPredictions[0].Model)
	assert.Equal(t, "daily", resp.DailyPredictions[0].PredictionPeriod)

	require.Len(t, resp.WeeklyPredictions, 1)
	assert.Equal(t, "700.00", resp.WeeklyPredictions[0].PredictedAmount)
	assert.Equal(t, "Next 7 Days", resp.MonthlyPrediction.Period)
	assert.Equal(t, "700.00", resp.MonthlyPrediction.PredictedAmount)

	tomorrow := costs.Day(time.Now()).AddDate(0, 0, 1)
	assert.Equal(t, tomorrow.Format("2006-01-02"), resp.DailyPredictions[0].PredictedDate)

	// The run was persisted.
	require.Len(t, b.predictions.runs, 1)
	assert.Len(t, b.predictions.runs[0], 7)
}

func TestHandleForecastDefaults(t *testing.T) {
	srv, b := newTestServer(t)
	seedConstantHistory(b.history, 1, 14, 50)

	rr := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/forecast", ForecastRequest{OrganizationID: 1})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[ForecastResponse](t, rr)
	assert.Len(t, resp.DailyPredictions, 30)
	assert.Equal(t, "LinearRegression", resp.DailyPredictions[0].Model)
}

func TestHandleForecastValidation(t *testing.T) {
	srv, b := newTestServer(t)
	seedConstantHistory(b.history, 1, 14, 50)

	cases := []struct {
		name string
		req  ForecastRequest
		code int
	}{
		{"missing org", ForecastRequest{HorizonDays: 7}, http.StatusBadRequest},
		{"unknown model", ForecastRequest{OrganizationID: 1, Model: "arima"}, http.StatusBadRequest},
		{"horizon too long", ForecastRequest{OrganizationID: 1, HorizonDays: 400}, http.StatusBadRequest},
		{"negative horizon", ForecastRequest{OrganizationID: 1, HorizonDays: -1}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/forecast", tc.req)
			assert.Equal(t, tc.code, rr.Code)
		})
	}
}

func TestHandleForecastInsufficientHistory(t *testing.T) {
	srv, b := newTestServer(t)
	seedConstantHistory(b.history, 1, 3, 50)

	rr := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/forecast", ForecastRequest{OrganizationID: 1})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

// =============================================================================
// SUGGESTIONS
// =============================================================================

func TestHandleGenerateSuggestions(t *testing.T) {
	srv, b := newTestServer(t)
	b.inventory.resources = []costs.Resource{{
		ID:             "db-1",
		OrganizationID: 1,
		Name:           "orders-db",
		Type:           "RDS",
		Status:         "available",
		Cost:           500,
		Tags:           map[string]string{"connections": "2"},
	}}

	rr := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/suggestions/generate", GenerateSuggestionsRequest{OrganizationID: 1})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[SuggestionsResponse](t, rr)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "200.00", resp.Suggestions[0].PotentialSavings)
	assert.Equal(t, "200.00", resp.TotalPotentialSavings)
	assert.Equal(t, "pending", resp.Suggestions[0].Status)
	assert.Equal(t, "Downsize", resp.Suggestions[0].SuggestedAction)

	assert.Len(t, b.suggestions.items, 1)
}

func TestHandleGenerateSuggestionsInventoryDown(t *testing.T) {
	srv, b := newTestServer(t)
	b.inventory.err = errors.New("scan pipeline offline")

	rr := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/suggestions/generate", GenerateSuggestionsRequest{OrganizationID: 1})
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestHandleListSuggestions(t *testing.T) {
	srv, b := newTestServer(t)
	b.suggestions.items[uuid.New()] = costs.OptimizationSuggestion{
		ID: uuid.New(), OrganizationID: 1, Title: "x", PotentialSavings: 42.5,
		Status: costs.StatusPending,
	}

	rr := doJSON(t, srv.Router(), http.MethodGet, "/api/v1/suggestions?organization_id=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[SuggestionsResponse](t, rr)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "42.50", resp.TotalPotentialSavings)

	rr = doJSON(t, srv.Router(), http.MethodGet, "/api/v1/suggestions", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleUpdateSuggestion(t *testing.T) {
	srv, b := newTestServer(t)
	id := uuid.New()
	b.suggestions.items[id] = costs.OptimizationSuggestion{
		ID: id, OrganizationID: 1, Status: costs.StatusPending,
	}

	rr := doJSON(t, srv.Router(), http.MethodPatch, "/api/v1/suggestions/"+id.String(), UpdateSuggestionRequest{Status: "applied"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, costs.StatusApplied, b.suggestions.items[id].Status)

	// Already applied: the transition is no longer legal.
	rr = doJSON(t, srv.Router(), http.MethodPatch, "/api/v1/suggestions/"+id.String(), UpdateSuggestionRequest{Status: "dismissed"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = doJSON(t, srv.Router(), http.MethodPatch, "/api/v1/suggestions/"+uuid.NewString(), UpdateSuggestionRequest{Status: "applied"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, srv.Router(), http.MethodPatch, "/api/v1/suggestions/not-a-uuid", UpdateSuggestionRequest{Status: "applied"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Reverting to pending is never allowed.
	id2 := uuid.New()
	b.suggestions.items[id2] = costs.OptimizationSuggestion{ID: id2, Status: costs.StatusPending}
	rr = doJSON(t, srv.Router(), http.MethodPatch, "/api/v1/suggestions/"+id2.String(), UpdateSuggestionRequest{Status: "pending"})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

// =============================================================================
// BILLING IMPORT
// =============================================================================

func TestHandleImport(t *testing.T) {
	srv, b := newTestServer(t)

	csv := "Time Period,Service,Amount\n2026-01-01,EC2,10.00\nbad-date,EC2,5.00\n"
	rr := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/billing/import", ImportRequest{
		OrganizationID: 1,
		Dialect:        "cost-explorer",
		CSV:            csv,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[ImportResponse](t, rr)
	assert.Equal(t, 1, resp.ImportedCount)
	assert.Equal(t, 1, resp.DroppedCount)
	require.Len(t, b.history.records, 1)
	assert.Equal(t, int64(1), b.history.records[0].OrganizationID)
}

func TestHandleImportRejectsEmptyResult(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/billing/import", ImportRequest{
		OrganizationID: 1,
		Dialect:        "cost-explorer",
		CSV:            "Time Period,Service,Amount\nbad,EC2,1.00\n",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestHandleImportValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/billing/import", ImportRequest{
		Dialect: "cost-explorer",
		CSV:     "Time Period,Amount\n2026-01-01,1.00\n",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "missing organization id")

	rr = doJSON(t, srv.Router(), http.MethodPost, "/api/v1/billing/import", ImportRequest{
		OrganizationID: 1,
		Dialect:        "excel",
		CSV:            "Time Period,Amount\n2026-01-01,1.00\n",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "unknown dialect")
}

// =============================================================================
// HISTORY
// =============================================================================

func TestHandleHistory(t *testing.T) {
	srv, b := newTestServer(t)
	today := costs.Day(time.Now())
	b.history.records = []costs.CostRecord{
		{Date: today.AddDate(0, 0, -2), Amount: 30, ServiceCategory: "EC2", Region: "us-east-1", OrganizationID: 1},
		{Date: today.AddDate(0, 0, -1), Amount: 10, ServiceCategory: "S3", OrganizationID: 1},
		{Date: today.AddDate(0, 0, -1), Amount: 60, ServiceCategory: "EC2", Region: "us-east-1", OrganizationID: 1},
	}

	rr := doJSON(t, srv.Router(), http.MethodGet, "/api/v1/history?organization_id=1", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[HistoryResponse](t, rr)
	require.Len(t, resp.TimeSeries, 2)
	assert.Equal(t, "30.00", resp.TimeSeries[0].Amount)
	assert.Equal(t, "70.00", resp.TimeSeries[1].Amount)
	assert.Equal(t, 2, resp.TimeSeries[1].Count)

	require.Len(t, resp.CategoryBreakdown, 2)
	assert.Equal(t, "EC2", resp.CategoryBreakdown[0].Key)
	assert.Equal(t, "90.00", resp.CategoryBreakdown[0].Amount)
	assert.InDelta(t, 90, resp.CategoryBreakdown[0].Percentage, 1e-9)

	require.Len(t, resp.RegionBreakdown, 2)
	assert.Equal(t, "us-east-1", resp.RegionBreakdown[0].Key)
	assert.Equal(t, "Unknown", resp.RegionBreakdown[1].Key)

	assert.Equal(t, "100.00", resp.Summary.TotalCost)
	assert.Equal(t, "50.00", resp.Summary.AverageDailyCost)
	assert.Equal(t, "day", resp.Summary.Period)
}

func TestHandleHistoryValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		name string
		path string
	}{
		{"missing org", "/api/v1/history"},
		{"bad group_by", "/api/v1/history?organization_id=1&group_by=hour"},
		{"bad start", "/api/v1/history?organization_id=1&start=yesterday"},
		{"bad end", "/api/v1/history?organization_id=1&end=01-01-2026"},
		{"inverted range", "/api/v1/history?organization_id=1&start=2026-02-01&end=2026-01-01"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, srv.Router(), http.MethodGet, tc.path, nil)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestHandleHistoryExplicitRangeAndGrouping(t *testing.T) {
	srv, b := newTestServer(t)
	b.history.records = []costs.CostRecord{
		{Date: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), Amount: 10, ServiceCategory: "EC2", OrganizationID: 1},
		{Date: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), Amount: 20, ServiceCategory: "EC2", OrganizationID: 1},
		{Date: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), Amount: 99, ServiceCategory: "EC2", OrganizationID: 1},
	}

	rr := doJSON(t, srv.Router(), http.MethodGet,
		"/api/v1/history?organization_id=1&start=2026-01-01&end=2026-02-28&group_by=month", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[HistoryResponse](t, rr)
	require.Len(t, resp.TimeSeries, 2)
	assert.Equal(t, "2026-01-01", resp.TimeSeries[0].Date)
	assert.Equal(t, "2026-02-01", resp.TimeSeries[1].Date)
	assert.Equal(t, "month", resp.Summary.Period)
	assert.Equal(t, "30.00", resp.Summary.TotalCost)
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHealthEndpoints(t *testing.T) {
	srv, b := newTestServer(t)
	router := srv.Router()

	rr := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "healthy"))

	rr = doJSON(t, router, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	b.pinger.err = errors.New("down")
	rr = doJSON(t, router, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/version", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
