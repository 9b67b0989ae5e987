package billing

import (
	"strings"
	"time"

	"cloudguard/pkg/costs"
)

// Dialect identifies one provider's billing-export CSV layout.
type Dialect string

const (
	// DialectCostExplorer is the AWS Cost Explorer export layout.
	DialectCostExplorer Dialect = "cost-explorer"
	// DialectBillingExport is the GCP Billing Export layout.
	DialectBillingExport Dialect = "billing-export"
	// DialectCostManagement is the Azure Cost Management layout.
	DialectCostManagement Dialect = "cost-management"
)

// dialectSpec parameterizes the shared normalizer: the three dialects differ
// only in their column-alias tables and date formats.
type dialectSpec struct {
	dateAliases     []string
	serviceAliases  []string
	amountAliases   []string
	regionAliases   []string
	resourceAliases []string
	parseDate       func(string) (time.Time, error)
}

var dialects = map[Dialect]dialectSpec{
	DialectCostExplorer: {
		dateAliases:     []string{"Time Period", "time_period", "Date"},
		serviceAliases:  []string{"Service", "service", "ServiceName"},
		amountAliases:   []string{"Amount", "amount", "Cost"},
		regionAliases:   []string{"Region", "region", "Location"},
		resourceAliases: []string{"Resource", "resource", "ResourceId"},
		parseDate:       parseISODate,
	},
	DialectBillingExport: {
		dateAliases:     []string{"Start Time", "start_time", "Usage Start Date"},
		serviceAliases:  []string{"Service Description", "service_description", "Service"},
		amountAliases:   []string{"Cost", "cost", "Amount"},
		regionAliases:   []string{"Location", "location", "Region"},
		resourceAliases: []string{"Resource name", "resource_name", "Resource"},
		parseDate:       parseTimestampDate,
	},
	DialectCostManagement: {
		dateAliases:     []string{"Date", "date", "UsageDate"},
		serviceAliases:  []string{"ServiceName", "serviceName", "Service Name"},
		amountAliases:   []string{"PreTaxCost", "preTaxCost", "Cost"},
		regionAliases:   []string{"ResourceLocation", "resourceLocation", "Location"},
		resourceAliases: []string{"ResourceId", "resourceId", "Resource ID"},
		parseDate:       parseUSDate,
	},
}

// ParseDialect maps a caller-supplied tag onto a known dialect.
func ParseDialect(s string) (Dialect, error) {
	d := Dialect(strings.TrimSpace(s))
	if _, ok := dialects[d]; !ok {
		return "", costs.ErrUnknownDialect
	}
	return d, nil
}

func parseISODate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return costs.Day(t), nil
}

// parseTimestampDate truncates a space-separated timestamp to its date
// portion before parsing, matching how billing exports emit usage start
// times like "2023-01-01 00:00:00".
func parseTimestampDate(s string) (time.Time, error) {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	return parseISODate(s)
}

// parseUSDate handles the M/D/YYYY form Cost Management exports use, falling
// back to ISO dates.
func parseUSDate(s string) (time.Time, error) {
	if strings.ContainsRune(s, '/') {
		t, err := time.Parse("1/2/2006", s)
		if err != nil {
			return time.Time{}, err
		}
		return costs.Day(t), nil
	}
	return parseISODate(s)
}
