package optimize

import (
	"fmt"
	"strconv"
	"time"

	"cloudguard/pkg/costs"
)

// Rule is one entry of the optimization catalog: a detector predicate over a
// resource's state and tags, a description generator, and a savings
// estimator, plus static metadata. Rules are plain data so adding a resource
// type means appending to the catalog, not growing a type hierarchy.
type Rule struct {
	ResourceType string
	Title        string
	Action       costs.SuggestedAction
	Confidence   float64
	Difficulty   costs.Difficulty

	Detect   func(r costs.Resource, now time.Time) bool
	Describe func(r costs.Resource) string
	Savings  func(r costs.Resource) float64
}

const (
	utilizationThreshold  = 20
	connectionsThreshold  = 5
	idleCutoffDays        = 30
	coldStorageCutoffDays = 90
)

// Catalog returns the built-in rule set keyed by resource type. Every rule
// registered for a resource's type is evaluated; each match yields its own
// suggestion.
func Catalog() map[string][]Rule {
	return map[string][]Rule{
		"EC2": {
			{
				ResourceType: "EC2",
				Title:        "Right-size underutilized EC2 instance",
				Action:       costs.ActionDownsize,
				Confidence:   0.8,
				Difficulty:   costs.DifficultyMedium,
				Detect: func(r costs.Resource, _ time.Time) bool {
					util, ok := tagFloat(r, "utilization")
					return r.Status == "running" && ok && util < utilizationThreshold
				},
				Describe: func(r costs.Resource) string {
					return fmt.Sprintf("Instance %s has average CPU utilization below 20%%. Consider downsizing to a smaller instance type.", r.Name)
				},
				Savings: func(r costs.Resource) float64 { return r.Cost * 0.5 },
			},
			{
				ResourceType: "EC2",
				Title:        "Terminate idle EC2 instance",
				Action:       costs.ActionTerminate,
				Confidence:   0.9,
				Difficulty:   costs.DifficultyEasy,
				Detect: func(r costs.Resource, now time.Time) bool {
					return r.Status == "running" && tagOlderThan(r, "lastAccess", now, idleCutoffDays)
				},
				Describe: func(r costs.Resource) string {
					return fmt.Sprintf("Instance %s has not been accessed in over 30 days. Consider terminating if not needed.", r.Name)
				},
				Savings: func(r costs.Resource) float64 { return r.Cost },
			},
			{
				ResourceType: "EC2",
				Title:        "Implement instance scheduling",
				Action:       costs.ActionSchedule,
				Confidence:   0.75,
				Difficulty:   costs.DifficultyEasy,
				Detect: func(r costs.Resource, _ time.Time) bool {
					_, scheduled := r.Tags["schedule"]
					return r.Status == "running" && !scheduled
				},
				Describe: func(r costs.Resource) string {
					return fmt.Sprintf("Instance %s is running 24/7. Implement scheduling to stop during non-business hours.", r.Name)
				},
				Savings: func(r costs.Resource) float64 { return r.Cost * 0.3 },
			},
		},
		"RDS": {
			{
				ResourceType: "RDS",
				Title:        "Right-size underutilized RDS instance",
				Action:       costs.ActionDownsize,
				Confidence:   0.7,
				Difficulty:   costs.DifficultyMedium,
				Detect: func(r costs.Resource, _ time.Time) bool {
					conns, ok := tagFloat(r, "connections")
					return r.Status == "available" && ok && conns < connectionsThreshold
				},
				Describe: func(r costs.Resource) string {
					return fmt.Sprintf("Database %s has very few connections. Consider downsizing to a smaller instance class.", r.Name)
				},
				Savings: func(r costs.Resource) float64 { return r.Cost * 0.4 },
			},
		},
		"S3": {
			{
				ResourceType: "S3",
				Title:        "Transition infrequently accessed S3 objects to a lower cost storage class",
				Action:       costs.ActionStorageTransition,
				Confidence:   0.85,
				Difficulty:   costs.DifficultyEasy,
				Detect: func(r costs.Resource, now time.Time) bool {
					return r.Tags["storageClass"] == "Standard" && tagOlderThan(r, "lastAccess", now, coldStorageCutoffDays)
				},
				Describe: func(r costs.Resource) string {
					return fmt.Sprintf("Bucket %s contains objects not accessed in over 90 days. Consider transitioning to a colder storage tier.", r.Name)
				},
				Savings: func(r costs.Resource) float64 { return r.Cost * 0.7 },
			},
		},
	}
}

// tagFloat parses a numeric tag; ok is false when the tag is absent or not
// a number.
func tagFloat(r costs.Resource, key string) (float64, bool) {
	raw, ok := r.Tags[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// tagOlderThan reports whether a timestamp tag parses and lies more than
// days before now. Inventories emit either RFC3339 or bare calendar dates.
func tagOlderThan(r costs.Resource, key string, now time.Time, days int) bool {
	raw, ok := r.Tags[key]
	if !ok {
		return false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return false
		}
	}
	return t.Before(now.AddDate(0, 0, -days))
}
