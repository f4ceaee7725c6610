package alerting

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/rules"
)

// Narratives are deterministic: identical inputs produce identical
// text. Fields are rendered in explicit order, never by map iteration.

// BuildNarrative renders the investigator-facing account of a hit.
func BuildNarrative(tx *domain.Transaction, hit *domain.RuleHit, family string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s on account %s: transaction %s of %s %s on %s.",
		hit.RuleName, tx.AccountNumber, tx.ID,
		amountString(tx.Amount), tx.Currency,
		tx.Timestamp.UTC().Format("2006-01-02 15:04:05"))

	switch family {
	case rules.FamilyDormant:
		fmt.Fprintf(&b, " Account was dormant; recent activity %s against prior activity %s.",
			detailAmount(hit.Details, "recent_activity"),
			detailAmount(hit.Details, "prior_activity"))
	case rules.FamilyLargeCash:
		fmt.Fprintf(&b, " Cash amount meets or exceeds the %s reporting threshold.",
			detailAmount(hit.Details, "threshold"))
	case rules.FamilyStructuring:
		fmt.Fprintf(&b, " %v deposits totalling %s inside the window, each below the %s reporting threshold.",
			hit.Details["occurrences"],
			detailAmount(hit.Details, "total_amount"),
			detailAmount(hit.Details, "report_threshold"))
		if uniform, _ := hit.Details["uniform_amounts"].(bool); uniform {
			b.WriteString(" Deposit amounts are identical, consistent with automated splitting.")
		}
	case rules.FamilyRapidMovement:
		fmt.Fprintf(&b, " Outbound transfer moved %v%% of the %s received in the preceding window.",
			hit.Details["moved_percentage"],
			detailAmount(hit.Details, "inflow_total"))
		if split, _ := hit.Details["splitting"].(bool); split {
			fmt.Fprintf(&b, " Funds were split into %v separate transactions to %v different accounts.",
				hit.Details["outgoing_count"], hit.Details["destination_count"])
		}
	case rules.FamilyJurisdiction:
		b.WriteString(" Involves high-risk jurisdiction(s): " + matchedCountries(hit.Details) + ".")
	case rules.FamilySmallTransfers:
		fmt.Fprintf(&b, " %v transfers at or below %s inside the window.",
			hit.Details["occurrences"], detailAmount(hit.Details, "max_amount"))
	case rules.FamilyInconsistent:
		fmt.Fprintf(&b, " Amount is %v times the account average of %s over %v prior transactions.",
			hit.Details["multiplier"],
			detailAmount(hit.Details, "average_amount"),
			hit.Details["sample_size"])
	case rules.FamilyShellCompany:
		b.WriteString(" Counterparty customer profile is consistent with a shell company.")
	case rules.FamilyNonProfit:
		b.WriteString(" Account belongs to a non-profit entity.")
	case rules.FamilyHighRiskCust:
		b.WriteString(" Account holder is rated high risk.")
	}

	fmt.Fprintf(&b, " Risk score %d (%s).", hit.Score, hit.RiskLevel)
	return b.String()
}

// BuildCaseSummary renders the handoff summary for a case record.
func BuildCaseSummary(c *domain.Case, alert *domain.Alert) string {
	return fmt.Sprintf(
		"Suspicious activity (%s) on account %s between %s and %s, total %s %s. Originating alert %s, rule %s, score %d.",
		c.ActivityType, c.AccountNumber,
		c.WindowStart.UTC().Format("2006-01-02"),
		c.WindowEnd.UTC().Format("2006-01-02"),
		amountString(c.TotalAmount), c.Currency,
		alert.ID, alert.RuleID, alert.Score)
}

func amountString(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func detailAmount(details domain.Details, key string) string {
	switch v := details[key].(type) {
	case decimal.Decimal:
		return amountString(v)
	case string:
		if d, err := decimal.NewFromString(v); err == nil {
			return amountString(d)
		}
		return v
	case float64:
		return amountString(decimal.NewFromFloat(v))
	case int:
		return amountString(decimal.NewFromInt(int64(v)))
	case nil:
		return "0.00"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func matchedCountries(details domain.Details) string {
	var countries []string
	switch m := details["matched"].(type) {
	case map[string]string:
		for _, c := range m {
			countries = append(countries, c)
		}
	case map[string]interface{}:
		for _, c := range m {
			countries = append(countries, fmt.Sprintf("%v", c))
		}
	}
	sort.Strings(countries)
	if len(countries) == 0 {
		return "unknown"
	}
	return strings.Join(countries, ", ")
}

// windowFromDetails recovers the activity window a hit describes,
// falling back to the transaction's own day.
func windowFromDetails(details domain.Details, ts time.Time) (time.Time, time.Time) {
	start, okS := detailTime(details, "window_start")
	end, okE := detailTime(details, "window_end")
	if okS && okE {
		return start, end
	}
	day := ts.UTC().Truncate(24 * time.Hour)
	return day, day.Add(24 * time.Hour)
}

func detailTime(details domain.Details, key string) (time.Time, bool) {
	switch v := details[key].(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
