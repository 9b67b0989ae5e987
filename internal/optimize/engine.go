// Package optimize evaluates a declarative catalog of per-resource-type
// rules against the organization's resource inventory and emits ranked,
// savings-estimated optimization suggestions.
package optimize

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"cloudguard/pkg/costs"
)

// Evaluation is the outcome of one rule-engine pass.
type Evaluation struct {
	Suggestions  []costs.OptimizationSuggestion
	TotalSavings float64
}

// Engine evaluates the rule catalog. Stateless; one evaluation per call.
type Engine struct {
	catalog map[string][]Rule
}

func NewEngine() *Engine {
	return &Engine{catalog: Catalog()}
}

// Register appends a rule to the catalog under its resource type.
func (e *Engine) Register(r Rule) {
	e.catalog[r.ResourceType] = append(e.catalog[r.ResourceType], r)
}

// Evaluate runs every applicable rule against every resource the inventory
// reports for the organization. A resource matching several rules yields one
// suggestion per match. Suggestions come back sorted by descending potential
// savings and start in the pending status; applying or dismissing them is an
// explicit external action.
//
// An inventory failure is surfaced as ErrInventoryUnavailable so callers can
// tell it apart from a legitimately empty result.
func (e *Engine) Evaluate(ctx context.Context, inventory costs.ResourceInventory, orgID int64) (*Evaluation, error) {
	resources, err := inventory.ListResources(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", costs.ErrInventoryUnavailable, err)
	}

	now := time.Now().UTC()
	eval := &Evaluation{}
	for _, res := range resources {
		for _, rule := range e.catalog[res.Type] {
			if !rule.Detect(res, now) {
				continue
			}
			s := costs.OptimizationSuggestion{
				ID:               uuid.New(),
				OrganizationID:   orgID,
				ResourceID:       res.ID,
				Title:            rule.Title,
				Description:      rule.Describe(res),
				SuggestedAction:  rule.Action,
				PotentialSavings: rule.Savings(res),
				Confidence:       rule.Confidence,
				Difficulty:       rule.Difficulty,
				Status:           costs.StatusPending,
			}
			eval.Suggestions = append(eval.Suggestions, s)
			eval.TotalSavings += s.PotentialSavings
		}
	}

	sort.SliceStable(eval.Suggestions, func(i, j int) bool {
		return eval.Suggestions[i].PotentialSavings > eval.Suggestions[j].PotentialSavings
	})
	return eval, nil
}
