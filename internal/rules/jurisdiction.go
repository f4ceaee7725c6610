package rules

import (
	"context"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/txtype"
)

// Default FATF-aligned high-risk jurisdiction list, ISO 3166-1 alpha-2.
var defaultHighRiskCountries = []string{
	"AF", "KP", "IR", "SY", "VE", "RU", "BY", "MM", "CU",
}

// HighRiskJurisdictionRule flags transactions touching a high-risk or
// sanctioned jurisdiction via counterparty, origin, or destination.
type HighRiskJurisdictionRule struct {
	base
	types *txtype.Registry

	countries map[string]bool
}

// NewHighRiskJurisdictionRule builds the rule from its configuration.
func NewHighRiskJurisdictionRule(cfg *domain.RuleConfig, types *txtype.Registry) *HighRiskJurisdictionRule {
	list := cfg.Parameters.StringList("high_risk_countries", defaultHighRiskCountries)
	countries := make(map[string]bool, len(list))
	for _, c := range list {
		countries[strings.ToUpper(strings.TrimSpace(c))] = true
	}
	return &HighRiskJurisdictionRule{
		base:      base{cfg: cfg},
		types:     types,
		countries: countries,
	}
}

func (r *HighRiskJurisdictionRule) Evaluate(ctx context.Context, tx *domain.Transaction, ec *domain.EvalContext) (bool, domain.Details, error) {
	matches := map[string]string{} // field -> country
	for field, country := range map[string]string{
		"counterparty_country": tx.CounterpartyCountry,
		"origin_country":       tx.OriginCountry,
		"destination_country":  tx.DestinationCountry,
	} {
		if country != "" && r.countries[strings.ToUpper(country)] {
			matches[field] = strings.ToUpper(country)
		}
	}
	if len(matches) == 0 {
		return false, nil, nil
	}

	return true, domain.Details{
		"amount":             tx.Amount,
		"matched":            matches,
		"country_risk_level": domain.RiskLevelHigh,
	}, nil
}
