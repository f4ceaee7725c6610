package scoring

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestScoreMax(t *testing.T) {
	engine := NewEngine(domain.ScoringConfig{Algorithm: domain.ScoringMax})

	t.Run("SumsBestBandPerFactor", func(t *testing.T) {
		result := engine.Score(domain.Observations{
			domain.FactorActivityValue: decimal.NewFromInt(20000), // 30
			domain.FactorRecurrence:    decimal.NewFromInt(2),     // 10
			domain.FactorCountryRisk:   decimal.NewFromInt(3),     // 30
		})
		if result.Score != 70 {
			t.Errorf("expected score 70, got %d", result.Score)
		}
		if result.Breakdown[domain.FactorActivityValue] != 30 {
			t.Errorf("expected activity contribution 30, got %d", result.Breakdown[domain.FactorActivityValue])
		}
		if result.Breakdown[domain.FactorCountryRisk] != 30 {
			t.Errorf("expected country contribution 30, got %d", result.Breakdown[domain.FactorCountryRisk])
		}
	})

	t.Run("BelowAllBands", func(t *testing.T) {
		result := engine.Score(domain.Observations{
			domain.FactorActivityValue: decimal.NewFromInt(100),
		})
		if result.Score != 0 {
			t.Errorf("expected score 0, got %d", result.Score)
		}
		if len(result.Breakdown) != 0 {
			t.Errorf("expected empty breakdown, got %v", result.Breakdown)
		}
	})

	t.Run("AccountAgeInverted", func(t *testing.T) {
		// Younger accounts score higher.
		young := engine.Score(domain.Observations{
			domain.FactorAccountAge: decimal.NewFromInt(10),
		})
		if young.Score != 30 {
			t.Errorf("expected 30 for a 10-day account, got %d", young.Score)
		}

		mature := engine.Score(domain.Observations{
			domain.FactorAccountAge: decimal.NewFromInt(200),
		})
		if mature.Score != 10 {
			t.Errorf("expected 10 for a 200-day account, got %d", mature.Score)
		}

		old := engine.Score(domain.Observations{
			domain.FactorAccountAge: decimal.NewFromInt(4000),
		})
		if old.Score != 0 {
			t.Errorf("expected 0 for an old account, got %d", old.Score)
		}
	})

	t.Run("CappedAt100", func(t *testing.T) {
		result := engine.Score(domain.Observations{
			domain.FactorActivityValue: decimal.NewFromInt(100000), // 40
			domain.FactorRecurrence:    decimal.NewFromInt(20),     // 30
			domain.FactorCountryRisk:   decimal.NewFromInt(3),      // 30
			domain.FactorPartyRisk:     decimal.NewFromInt(3),      // 25
		})
		if result.Score != 100 {
			t.Errorf("expected capped score 100, got %d", result.Score)
		}
	})
}

func TestScoreSum(t *testing.T) {
	engine := NewEngine(domain.ScoringConfig{Algorithm: domain.ScoringSum})

	// SUM credits every band met: 20000 meets 5000, 10000, and 20000.
	result := engine.Score(domain.Observations{
		domain.FactorActivityValue: decimal.NewFromInt(20000),
	})
	if result.Score != 60 {
		t.Errorf("expected cumulative score 60, got %d", result.Score)
	}
}

func TestScoreAvg(t *testing.T) {
	engine := NewEngine(domain.ScoringConfig{Algorithm: domain.ScoringAvg})

	// Contributions 30 and 10 average to 20 over factors that scored.
	result := engine.Score(domain.Observations{
		domain.FactorActivityValue: decimal.NewFromInt(20000), // 30
		domain.FactorRecurrence:    decimal.NewFromInt(2),     // 10
		domain.FactorPartyRisk:     decimal.Zero,              // no band met
	})
	if result.Score != 20 {
		t.Errorf("expected average 20, got %d", result.Score)
	}
}

func TestScoreWeighted(t *testing.T) {
	engine := NewEngine(domain.ScoringConfig{Algorithm: domain.ScoringWeighted})
	engine.LoadThresholds([]*domain.ScoringThreshold{
		{ID: "t1", Factor: domain.FactorActivityValue, Value: decimal.NewFromInt(10000), Score: 20, Weight: 2.0, Enabled: true},
		{ID: "t2", Factor: domain.FactorRecurrence, Value: decimal.NewFromInt(2), Score: 10, Weight: 0.5, Enabled: true},
	})

	result := engine.Score(domain.Observations{
		domain.FactorActivityValue: decimal.NewFromInt(15000), // 20 * 2.0
		domain.FactorRecurrence:    decimal.NewFromInt(3),     // 10 * 0.5
	})
	if result.Score != 45 {
		t.Errorf("expected weighted score 45, got %d", result.Score)
	}
}

func TestLoadThresholds(t *testing.T) {
	engine := NewEngine(domain.ScoringConfig{})

	engine.LoadThresholds([]*domain.ScoringThreshold{
		{ID: "on", Factor: domain.FactorActivityValue, Value: decimal.NewFromInt(1000), Score: 50, Enabled: true},
		{ID: "off", Factor: domain.FactorActivityValue, Value: decimal.NewFromInt(500), Score: 99, Enabled: false},
	})

	result := engine.Score(domain.Observations{
		domain.FactorActivityValue: decimal.NewFromInt(2000),
	})
	if result.Score != 50 {
		t.Errorf("disabled thresholds must not contribute, got %d", result.Score)
	}
}

func TestScoreHitDormancy(t *testing.T) {
	engine := NewEngine(domain.ScoringConfig{})

	t.Run("UsesDormancyFormula", func(t *testing.T) {
		result := engine.ScoreHit(domain.Observations{}, domain.Details{
			"recent_activity":          decimal.NewFromInt(120000), // 12x threshold
			"prior_activity":           decimal.NewFromInt(5),      // well under tolerance
			"activity_threshold":       decimal.NewFromInt(10000),
			"prior_activity_threshold": decimal.NewFromInt(100),
		})
		// 50 base + 30 (ratio > 10) + 20 (prior < 10% of tolerance)
		if result.Score != 100 {
			t.Errorf("expected dormancy score 100, got %d", result.Score)
		}
		if result.Breakdown["DORMANCY"] != 100 {
			t.Errorf("expected DORMANCY breakdown entry, got %v", result.Breakdown)
		}
	})

	t.Run("FallsBackToFactors", func(t *testing.T) {
		result := engine.ScoreHit(domain.Observations{
			domain.FactorActivityValue: decimal.NewFromInt(60000),
		}, domain.Details{"amount": decimal.NewFromInt(60000)})
		if result.Score != 40 {
			t.Errorf("expected factor-table score 40, got %d", result.Score)
		}
	})
}

func TestDormancyScore(t *testing.T) {
	cases := []struct {
		name                 string
		recent, prior        int64
		minActivity, maxPrio int64
		want                 int
	}{
		{"BaseOnly", 10000, 90, 10000, 100, 50},           // ratio 1, prior near tolerance
		{"ModerateBurst", 25000, 40, 10000, 100, 70},      // ratio 2.5 -> +10, prior 40% -> +10
		{"SevereBurst", 120000, 5, 10000, 100, 100},       // ratio 12 -> +30, prior 5% -> +20
		{"QuietPrior", 60000, 0, 10000, 100, 90},          // ratio 6 -> +20, prior 0 -> +20
		{"NoThresholds", 10000, 0, 0, 0, 50},              // ratios undefined, base only
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DormancyScore(
				decimal.NewFromInt(tc.recent),
				decimal.NewFromInt(tc.prior),
				decimal.NewFromInt(tc.minActivity),
				decimal.NewFromInt(tc.maxPrio),
			)
			if got != tc.want {
				t.Errorf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestRiskLevel(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{95, domain.RiskLevelHigh},
		{70, domain.RiskLevelHigh},
		{69, domain.RiskLevelMedium},
		{40, domain.RiskLevelMedium},
		{39, domain.RiskLevelLow},
		{0, domain.RiskLevelLow},
	}
	for _, tc := range cases {
		if got := RiskLevel(tc.score, 70, 40); got != tc.want {
			t.Errorf("RiskLevel(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}
