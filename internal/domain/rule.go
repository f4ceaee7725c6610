package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RuleConfig defines a detection rule configuration.
// ID follows the convention <FAMILY>-<TYPEGROUP>-<VARIANT>, e.g.
// "ADR-ALL-ALL-A-M06" for the adjusted dormancy rule over all types.
type RuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Family is the rule family prefix ("ADR", "LCT", "STR", ...).
	Family string `json:"family"`

	// TypeGroup restricts the rule to a registered transaction type group.
	// "ALL-ALL" matches every type code.
	TypeGroup string `json:"typeGroup"`

	// Parameters are rule-specific tunables (thresholds, windows, lists).
	Parameters Parameters `json:"parameters"`

	// Expression is set only for custom CEL-defined rules.
	Expression string `json:"expression,omitempty"`

	// MinScore suppresses hits scored below this rule-level floor.
	MinScore int `json:"minScore"`

	// Weight used by the WEIGHTED scoring algorithm.
	Weight float64 `json:"weight"`

	// Whether the rule is active
	Enabled bool `json:"enabled"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// Parameters holds rule tunables as loosely typed values, as stored.
// Getters fall back to the supplied default on a missing or mistyped
// value; callers that need to surface the fallback use the Ok variants.
type Parameters map[string]interface{}

// Int returns an integer parameter or def.
func (p Parameters) Int(key string, def int) int {
	v, ok := p.IntOk(key)
	if !ok {
		return def
	}
	return v
}

// IntOk returns an integer parameter and whether it was well-formed.
func (p Parameters) IntOk(key string) (int, bool) {
	raw, ok := p[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		// JSON decoding yields float64 for all numbers.
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Decimal returns a fixed-point parameter or def.
func (p Parameters) Decimal(key string, def decimal.Decimal) decimal.Decimal {
	v, ok := p.DecimalOk(key)
	if !ok {
		return def
	}
	return v
}

// DecimalOk returns a fixed-point parameter and whether it was well-formed.
func (p Parameters) DecimalOk(key string) (decimal.Decimal, bool) {
	raw, ok := p[key]
	if !ok {
		return decimal.Zero, false
	}
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case float64:
		return decimal.NewFromFloat(v), true
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
	return decimal.Zero, false
}

// Float returns a float parameter or def.
func (p Parameters) Float(key string, def float64) float64 {
	raw, ok := p[key]
	if !ok {
		return def
	}
	switch v := raw.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return def
		}
		return f
	}
	return def
}

// String returns a string parameter or def.
func (p Parameters) String(key, def string) string {
	raw, ok := p[key]
	if !ok {
		return def
	}
	s, ok := raw.(string)
	if !ok {
		return def
	}
	return s
}

// StringList returns a list parameter or def. Stored form may be a JSON
// array or a comma-separated string.
func (p Parameters) StringList(key string, def []string) []string {
	raw, ok := p[key]
	if !ok {
		return def
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return def
			}
			out = append(out, s)
		}
		return out
	case string:
		var out []string
		for _, field := range strings.Split(v, ",") {
			if field = strings.TrimSpace(field); field != "" {
				out = append(out, field)
			}
		}
		return out
	}
	return def
}

// Details carries the structured evidence a rule attaches to a hit.
type Details map[string]interface{}

// RuleInfo identifies a registered rule instance.
type RuleInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Family    string `json:"family"`
	TypeGroup string `json:"typeGroup"`
}

// RuleHit is the scored outcome of a single triggered rule.
type RuleHit struct {
	RuleID    string  `json:"ruleId"`
	RuleName  string  `json:"ruleName"`
	TxID      string  `json:"txId"`
	Score     int     `json:"score"`
	RiskLevel string  `json:"riskLevel"`
	Details   Details `json:"details"`
	Cached    bool    `json:"cached"`
	ProcessMs int64   `json:"processMs"`
}
