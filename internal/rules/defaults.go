package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/txtype"
)

// Rule family prefixes. The factory dispatches on these.
const (
	FamilyDormant        = "ADR"
	FamilyLargeCash      = "LCT"
	FamilyStructuring    = "STR"
	FamilyRapidMovement  = "RFM"
	FamilyJurisdiction   = "HRJ"
	FamilySmallTransfers = "SFT"
	FamilyInconsistent   = "ICT"
	FamilyNonProfit      = "NPO"
	FamilyShellCompany   = "SHC"
	FamilyHighRiskCust   = "HRC"
	FamilyExpression     = "CEL"
)

// Build constructs the rule implementation for a configuration. Custom
// CEL rules take the expression path; everything else dispatches on the
// rule family.
func Build(cfg *domain.RuleConfig, types *txtype.Registry, env *cel.Env) (Rule, error) {
	if cfg.Expression != "" {
		return NewExpressionRule(cfg, env)
	}
	switch cfg.Family {
	case FamilyDormant:
		return NewDormantActivityRule(cfg, types), nil
	case FamilyLargeCash:
		return NewLargeCashRule(cfg, types), nil
	case FamilyStructuring:
		return NewStructuringRule(cfg, types), nil
	case FamilyRapidMovement:
		return NewRapidMovementRule(cfg, types), nil
	case FamilyJurisdiction:
		return NewHighRiskJurisdictionRule(cfg, types), nil
	case FamilySmallTransfers:
		return NewSmallTransfersRule(cfg, types), nil
	case FamilyInconsistent:
		return NewInconsistentActivityRule(cfg, types), nil
	case FamilyNonProfit:
		return NewNonProfitActivityRule(cfg, types), nil
	case FamilyShellCompany:
		return NewShellCompanyRule(cfg, types), nil
	case FamilyHighRiskCust:
		return NewHighRiskCustomerRule(cfg, types), nil
	}
	return nil, fmt.Errorf("unknown rule family %q for rule %s", cfg.Family, cfg.ID)
}

// DefaultRuleConfigs returns the standard rule set with production
// default parameters. Deployments tune these through the rule config
// store; the defaults seed an empty database.
func DefaultRuleConfigs() []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:          "ADR-ALL-ALL-A-M06",
			Name:        "Dormant account sudden activity",
			Description: "High-value activity on an account dormant for six months or more",
			Family:      FamilyDormant,
			TypeGroup:   txtype.GroupAll,
			Parameters: domain.Parameters{
				"account_age_days":              180,
				"activity_amount":               10000,
				"inactive_period_months":        6,
				"max_prior_activity":            100,
				"recent_activity_period_months": 1,
			},
			Enabled: true,
			Weight:  1.0,
		},
		{
			ID:          "LCT-CCE-INN-A-D01",
			Name:        "Large cash transaction",
			Description: "Single cash deposit at or above the reporting threshold",
			Family:      FamilyLargeCash,
			TypeGroup:   txtype.GroupCashIn,
			Parameters: domain.Parameters{
				"transaction_amount": 10000,
				"currency":           "USD",
				"lookback_days":      30,
			},
			Enabled: true,
			Weight:  1.0,
		},
		{
			ID:          "STR-CCE-INN-A-D02",
			Name:        "Structured cash deposits",
			Description: "Multiple sub-threshold deposits aggregating above the structuring threshold",
			Family:      FamilyStructuring,
			TypeGroup:   txtype.GroupCashIn,
			Parameters: domain.Parameters{
				"aggregate_threshold": 9000,
				"report_threshold":    10000,
				"min_count":           3,
				"window_days":         2,
			},
			Enabled: true,
			Weight:  1.0,
		},
		{
			ID:          "RFM-TRF-OUT-A-H24",
			Name:        "Rapid movement of funds",
			Description: "Outbound transfer moving most of the last day's inflow",
			Family:      FamilyRapidMovement,
			TypeGroup:   txtype.GroupTransfer,
			Parameters: domain.Parameters{
				"percentage":   75,
				"window_hours": 24,
			},
			Enabled: true,
			Weight:  1.0,
		},
		{
			ID:          "HRJ-ALL-ALL-T-D01",
			Name:        "High-risk jurisdiction",
			Description: "Transaction touching a high-risk or sanctioned jurisdiction",
			Family:      FamilyJurisdiction,
			TypeGroup:   txtype.GroupAll,
			Parameters: domain.Parameters{
				"high_risk_countries": "AF,KP,IR,SY,VE,RU,BY,MM,CU",
			},
			Enabled: true,
			Weight:  1.0,
		},
		{
			ID:          "SFT-TRF-ALL-A-D07",
			Name:        "Frequent small transfers",
			Description: "Burst of low-value transfers inside a week",
			Family:      FamilySmallTransfers,
			TypeGroup:   txtype.GroupTransfer,
			Parameters: domain.Parameters{
				"max_amount":  1000,
				"min_count":   5,
				"window_days": 7,
			},
			Enabled: true,
			Weight:  1.0,
		},
		{
			ID:          "ICT-ALL-ALL-A-D01",
			Name:        "Inconsistent activity",
			Description: "Transaction far outside the account's established profile",
			Family:      FamilyInconsistent,
			TypeGroup:   txtype.GroupAll,
			Parameters: domain.Parameters{
				"multiplier":    3.0,
				"min_history":   3,
				"lookback_days": 90,
			},
			Enabled: true,
			Weight:  1.0,
		},
		{
			ID:          "NPO-ALL-ALL-C-D01",
			Name:        "Non-profit large movement",
			Description: "Sizeable movement on a charity or non-profit account",
			Family:      FamilyNonProfit,
			TypeGroup:   txtype.GroupAll,
			Parameters: domain.Parameters{
				"transaction_amount": 5000,
			},
			Enabled: true,
			Weight:  1.0,
		},
		{
			ID:          "SHC-ALL-ALL-C-D01",
			Name:        "Shell company activity",
			Description: "Large movement through a flagged or newly incorporated corporate",
			Family:      FamilyShellCompany,
			TypeGroup:   txtype.GroupAll,
			Parameters: domain.Parameters{
				"incorporation_age_days": 365,
				"transaction_amount":     10000,
			},
			Enabled: true,
			Weight:  1.0,
		},
		{
			ID:          "HRC-ALL-ALL-C-D01",
			Name:        "High-risk customer activity",
			Description: "Activity on an account held by a high-risk rated customer or PEP",
			Family:      FamilyHighRiskCust,
			TypeGroup:   txtype.GroupAll,
			Parameters: domain.Parameters{
				"transaction_amount": 5000,
			},
			Enabled: true,
			Weight:  1.0,
		},
	}
}
