package optimize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudguard/pkg/costs"
)

type fakeInventory struct {
	resources []costs.Resource
	err       error
}

func (f *fakeInventory) ListResources(_ context.Context, _ int64) ([]costs.Resource, error) {
	return f.resources, f.err
}

func daysAgo(n int) string {
	return time.Now().UTC().AddDate(0, 0, -n).Format(time.RFC3339)
}

func TestEvaluateUnderutilizedEC2(t *testing.T) {
	inv := &fakeInventory{resources: []costs.Resource{{
		ID:     "i-1",
		Name:   "web-1",
		Type:   "EC2",
		Status: "running",
		Cost:   200,
		Tags:   map[string]string{"utilization": "15", "schedule": "office-hours"},
	}}}

	eval, err := NewEngine().Evaluate(context.Background(), inv, 1)
	require.NoError(t, err)
	require.Len(t, eval.Suggestions, 1)

	s := eval.Suggestions[0]
	assert.Equal(t, "Right-size underutilized EC2 instance", s.Title)
	assert.Equal(t, costs.ActionDownsize, s.SuggestedAction)
	assert.InDelta(t, 100, s.PotentialSavings, 1e-9)
	assert.InDelta(t, 0.8, s.Confidence, 1e-9)
	assert.Equal(t, costs.DifficultyMedium, s.Difficulty)
	assert.Equal(t, costs.StatusPending, s.Status)
	assert.Equal(t, "i-1", s.ResourceID)
	assert.Equal(t, int64(1), s.OrganizationID)
	assert.Contains(t, s.Description, "web-1")
}

func TestEvaluateUtilizationThresholdIsExclusive(t *testing.T) {
	base := costs.Resource{
		ID:     "i-1",
		Name:   "web-1",
		Type:   "EC2",
		Status: "running",
		Cost:   100,
	}

	at := base
	at.Tags = map[string]string{"utilization": "20", "schedule": "x"}
	below := base
	below.Tags = map[string]string{"utilization": "19", "schedule": "x"}

	eval, err := NewEngine().Evaluate(context.Background(), &fakeInventory{resources: []costs.Resource{at}}, 1)
	require.NoError(t, err)
	assert.Empty(t, eval.Suggestions, "utilization exactly at the threshold must not match")

	eval, err = NewEngine().Evaluate(context.Background(), &fakeInventory{resources: []costs.Resource{below}}, 1)
	require.NoError(t, err)
	assert.Len(t, eval.Suggestions, 1)
}

func TestEvaluateOneSuggestionPerMatchingRule(t *testing.T) {
	// Idle and unscheduled: the terminate and schedule rules both fire.
	inv := &fakeInventory{resources: []costs.Resource{{
		ID:     "i-2",
		Name:   "batch-1",
		Type:   "EC2",
		Status: "running",
		Cost:   100,
		Tags:   map[string]string{"lastAccess": daysAgo(45)},
	}}}

	eval, err := NewEngine().Evaluate(context.Background(), inv, 1)
	require.NoError(t, err)
	require.Len(t, eval.Suggestions, 2)

	// Descending savings: terminate (100) before schedule (30).
	assert.Equal(t, costs.ActionTerminate, eval.Suggestions[0].SuggestedAction)
	assert.InDelta(t, 100, eval.Suggestions[0].PotentialSavings, 1e-9)
	assert.Equal(t, costs.ActionSchedule, eval.Suggestions[1].SuggestedAction)
	assert.InDelta(t, 30, eval.Suggestions[1].PotentialSavings, 1e-9)
	assert.InDelta(t, 130, eval.TotalSavings, 1e-9)
}

func TestEvaluateStoppedInstanceIsIgnored(t *testing.T) {
	inv := &fakeInventory{resources: []costs.Resource{{
		ID:     "i-3",
		Type:   "EC2",
		Status: "stopped",
		Cost:   100,
		Tags:   map[string]string{"utilization": "5"},
	}}}

	eval, err := NewEngine().Evaluate(context.Background(), inv, 1)
	require.NoError(t, err)
	assert.Empty(t, eval.Suggestions)
}

func TestEvaluateRDSLowConnections(t *testing.T) {
	inv := &fakeInventory{resources: []costs.Resource{{
		ID:     "db-1",
		Name:   "orders-db",
		Type:   "RDS",
		Status: "available",
		Cost:   500,
		Tags:   map[string]string{"connections": "2"},
	}}}

	eval, err := NewEngine().Evaluate(context.Background(), inv, 1)
	require.NoError(t, err)
	require.Len(t, eval.Suggestions, 1)
	assert.Equal(t, costs.ActionDownsize, eval.Suggestions[0].SuggestedAction)
	assert.InDelta(t, 200, eval.Suggestions[0].PotentialSavings, 1e-9)
	assert.InDelta(t, 0.7, eval.Suggestions[0].Confidence, 1e-9)
}

func TestEvaluateS3ColdStorage(t *testing.T) {
	hot := costs.Resource{
		ID: "bkt-hot", Name: "assets", Type: "S3", Status: "active", Cost: 80,
		Tags: map[string]string{"storageClass": "Standard", "lastAccess": daysAgo(10)},
	}
	cold := costs.Resource{
		ID: "bkt-cold", Name: "archive", Type: "S3", Status: "active", Cost: 80,
		Tags: map[string]string{"storageClass": "Standard", "lastAccess": daysAgo(120)},
	}
	alreadyTiered := costs.Resource{
		ID: "bkt-ia", Name: "logs", Type: "S3", Status: "active", Cost: 80,
		Tags: map[string]string{"storageClass": "Glacier", "lastAccess": daysAgo(120)},
	}

	inv := &fakeInventory{resources: []costs.Resource{hot, cold, alreadyTiered}}
	eval, err := NewEngine().Evaluate(context.Background(), inv, 1)
	require.NoError(t, err)
	require.Len(t, eval.Suggestions, 1)
	assert.Equal(t, "bkt-cold", eval.Suggestions[0].ResourceID)
	assert.Equal(t, costs.ActionStorageTransition, eval.Suggestions[0].SuggestedAction)
	assert.InDelta(t, 56, eval.Suggestions[0].PotentialSavings, 1e-9)
}

func TestEvaluateSortsAcrossResources(t *testing.T) {
	inv := &fakeInventory{resources: []costs.Resource{
		{ID: "i-small", Type: "EC2", Status: "running", Cost: 10,
			Tags: map[string]string{"lastAccess": daysAgo(40), "schedule": "x"}},
		{ID: "db-big", Type: "RDS", Status: "available", Cost: 1000,
			Tags: map[string]string{"connections": "1"}},
	}}

	eval, err := NewEngine().Evaluate(context.Background(), inv, 1)
	require.NoError(t, err)
	require.Len(t, eval.Suggestions, 2)
	assert.Equal(t, "db-big", eval.Suggestions[0].ResourceID)
	assert.Equal(t, "i-small", eval.Suggestions[1].ResourceID)
	assert.InDelta(t, 410, eval.TotalSavings, 1e-9)
}

func TestEvaluateInventoryFailure(t *testing.T) {
	inv := &fakeInventory{err: errors.New("connection refused")}

	_, err := NewEngine().Evaluate(context.Background(), inv, 1)
	assert.ErrorIs(t, err, costs.ErrInventoryUnavailable)
}

func TestEvaluateEmptyInventory(t *testing.T) {
	eval, err := NewEngine().Evaluate(context.Background(), &fakeInventory{}, 1)
	require.NoError(t, err)
	assert.Empty(t, eval.Suggestions)
	assert.Zero(t, eval.TotalSavings)
}

func TestRegisterExtendsCatalog(t *testing.T) {
	e := NewEngine()
	e.Register(Rule{
		ResourceType: "Lambda",
		Title:        "Reduce memory allocation",
		Action:       costs.ActionDownsize,
		Confidence:   0.6,
		Difficulty:   costs.DifficultyEasy,
		Detect:       func(r costs.Resource, _ time.Time) bool { return r.Status == "active" },
		Describe:     func(r costs.Resource) string { return "Function " + r.Name + " is overprovisioned." },
		Savings:      func(r costs.Resource) float64 { return r.Cost * 0.2 },
	})

	inv := &fakeInventory{resources: []costs.Resource{
		{ID: "fn-1", Name: "resize", Type: "Lambda", Status: "active", Cost: 50},
	}}
	eval, err := e.Evaluate(context.Background(), inv, 1)
	require.NoError(t, err)
	require.Len(t, eval.Suggestions, 1)
	assert.InDelta(t, 10, eval.Suggestions[0].PotentialSavings, 1e-9)
}

func TestTagOlderThan(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		tag  string
		want bool
	}{
		{"rfc3339 old", "2026-06-01T00:00:00Z", true},
		{"rfc3339 recent", "2026-08-10T00:00:00Z", false},
		{"bare date old", "2026-05-01", true},
		{"unparseable", "last week", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := costs.Resource{Tags: map[string]string{"lastAccess": tc.tag}}
			assert.Equal(t, tc.want, tagOlderThan(r, "lastAccess", now, 30))
		})
	}

	assert.False(t, tagOlderThan(costs.Resource{Tags: map[string]string{}}, "lastAccess", now, 30))
}
