// Package report regroups cost records by time bucket or categorical key
// for presentation. Pure data shaping: sums per bucket and
// percentage-of-total shares, no statistics.
package report

import (
	"math"
	"sort"
	"time"

	"github.com/samber/lo"

	"cloudguard/pkg/costs"
)

// Group selects the time bucket for ByPeriod.
type Group string

const (
	GroupDay   Group = "day"
	GroupWeek  Group = "week"
	GroupMonth Group = "month"
)

// TimeBucket is one time-series point: the bucket start, the summed amount
// and the number of records that fell into it.
type TimeBucket struct {
	Start time.Time `json:"start"`
	Total float64   `json:"total"`
	Count int       `json:"count"`
}

// Share is one categorical slice with its percentage of the overall total.
type Share struct {
	Key        string  `json:"key"`
	Total      float64 `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Summary carries the headline numbers for a date range.
type Summary struct {
	TotalCost        float64 `json:"totalCost"`
	AverageDailyCost float64 `json:"averageDailyCost"`
}

// ByPeriod buckets records by calendar day, Monday-truncated week, or first
// of month, summing amounts per bucket. Empty input yields an empty slice.
func ByPeriod(records []costs.CostRecord, g Group) []TimeBucket {
	grouped := lo.GroupBy(records, func(r costs.CostRecord) time.Time {
		return truncate(r.Date, g)
	})

	buckets := make([]TimeBucket, 0, len(grouped))
	for start, recs := range grouped {
		buckets = append(buckets, TimeBucket{
			Start: start,
			Total: lo.SumBy(recs, func(r costs.CostRecord) float64 { return r.Amount }),
			Count: len(recs),
		})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Start.Before(buckets[j].Start) })
	return buckets
}

// ByCategory sums per service category with percentage-of-total shares,
// descending by amount.
func ByCategory(records []costs.CostRecord) []Share {
	return shares(records, func(r costs.CostRecord) string { return r.ServiceCategory })
}

// ByRegion sums per region; records without a region fall under "Unknown".
func ByRegion(records []costs.CostRecord) []Share {
	return shares(records, func(r costs.CostRecord) string {
		if r.Region == "" {
			return "Unknown"
		}
		return r.Region
	})
}

// Summarize computes the range totals. The daily average is the mean of the
// per-day sums, not of the raw rows.
func Summarize(records []costs.CostRecord) Summary {
	s := Summary{
		TotalCost: lo.SumBy(records, func(r costs.CostRecord) float64 { return r.Amount }),
	}
	if days := ByPeriod(records, GroupDay); len(days) > 0 {
		s.AverageDailyCost = s.TotalCost / float64(len(days))
	}
	return s
}

func shares(records []costs.CostRecord, key func(costs.CostRecord) string) []Share {
	grouped := lo.GroupBy(records, key)
	total := lo.SumBy(records, func(r costs.CostRecord) float64 { return r.Amount })

	out := make([]Share, 0, len(grouped))
	for k, recs := range grouped {
		sum := lo.SumBy(recs, func(r costs.CostRecord) float64 { return r.Amount })
		share := Share{Key: k, Total: sum}
		if total > 0 {
			share.Percentage = math.Round(sum/total*10000) / 100
		}
		out = append(out, share)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// truncate maps a date onto its bucket start.
func truncate(t time.Time, g Group) time.Time {
	t = costs.Day(t)
	switch g {
	case GroupWeek:
		// Monday start, matching DATE_TRUNC('week', ...).
		offset := (int(t.Weekday()) + 6) % 7
		return t.AddDate(0, 0, -offset)
	case GroupMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}
