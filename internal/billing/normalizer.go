// Package billing normalizes provider-specific billing CSV exports into
// canonical cost records. The three supported dialects share one parse
// skeleton and differ only in configuration (dialects.go).
package billing

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"cloudguard/pkg/costs"
)

// Result is the outcome of normalizing one billing file. Dropped counts the
// rows rejected for data-quality reasons; callers use Accepted for the
// "zero valid rows rejects the import" policy.
type Result struct {
	Records  []costs.CostRecord
	Accepted int
	Dropped  int
}

// Normalize reads a CSV export in the given dialect and produces cost record
// candidates for the organization. Malformed rows are dropped silently;
// only a structurally unreadable file or an unknown dialect is an error.
func Normalize(dialect Dialect, r io.Reader, orgID int64) (*Result, error) {
	spec, ok := dialects[dialect]
	if !ok {
		return nil, costs.ErrUnknownDialect
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading billing file header: %w", err)
	}
	cols := indexColumns(header)

	res := &Result{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading billing file: %w", err)
		}

		rec, ok := normalizeRow(spec, cols, row, orgID)
		if !ok {
			res.Dropped++
			continue
		}
		res.Records = append(res.Records, rec)
		res.Accepted++
	}
	return res, nil
}

// ParseFile normalizes a billing export on disk, for the CLI import path.
func ParseFile(dialect Dialect, path string, orgID int64) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening billing file: %w", err)
	}
	defer f.Close()
	return Normalize(dialect, f, orgID)
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	return cols
}

// lookup returns the first alias present both in the header and the row.
// Unrecognized columns are simply never looked up.
func lookup(cols map[string]int, row []string, aliases []string) string {
	for _, alias := range aliases {
		if i, ok := cols[alias]; ok && i < len(row) {
			if v := strings.TrimSpace(row[i]); v != "" {
				return v
			}
		}
	}
	return ""
}

// normalizeRow maps one CSV row onto a CostRecord. A row with an
// unparseable date, a missing or non-numeric amount, or a negative amount
// is rejected; this is expected export noise, not an error.
func normalizeRow(spec dialectSpec, cols map[string]int, row []string, orgID int64) (costs.CostRecord, bool) {
	rawDate := lookup(cols, row, spec.dateAliases)
	if rawDate == "" {
		return costs.CostRecord{}, false
	}
	date, err := spec.parseDate(rawDate)
	if err != nil {
		return costs.CostRecord{}, false
	}

	rawAmount := lookup(cols, row, spec.amountAliases)
	if rawAmount == "" {
		return costs.CostRecord{}, false
	}
	amount, err := strconv.ParseFloat(rawAmount, 64)
	if err != nil || amount < 0 {
		return costs.CostRecord{}, false
	}

	service := lookup(cols, row, spec.serviceAliases)
	if service == "" {
		service = "Unknown"
	}

	rec := costs.CostRecord{
		Date:            date,
		Amount:          amount,
		ServiceCategory: service,
		Region:          lookup(cols, row, spec.regionAliases),
		OrganizationID:  orgID,
	}

	// Resource-level rows carry the resource reference in the export but we
	// do not map external ids onto internally tracked resources here; the
	// usage type records that the row was resource-scoped.
	if lookup(cols, row, spec.resourceAliases) != "" {
		rec.UsageType = "Instance"
	}
	return rec, true
}
