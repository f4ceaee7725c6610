// Package scoring converts rule hits into risk scores using configurable
// per-factor threshold tables.
package scoring

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Engine computes risk scores from factor observations. Threshold
// tables are replaceable at runtime; reads take the hot path.
type Engine struct {
	mu         sync.RWMutex
	algorithm  string
	thresholds map[string][]*domain.ScoringThreshold // factor -> sorted by Value asc
}

// NewEngine creates a scoring engine with the configured combination
// algorithm and the default threshold tables.
func NewEngine(cfg domain.ScoringConfig) *Engine {
	e := &Engine{
		algorithm:  cfg.Algorithm,
		thresholds: make(map[string][]*domain.ScoringThreshold),
	}
	if e.algorithm == "" {
		e.algorithm = domain.ScoringMax
	}
	e.LoadThresholds(DefaultThresholds())
	return e
}

// SetAlgorithm switches the combination algorithm.
func (e *Engine) SetAlgorithm(algorithm string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.algorithm = algorithm
}

// Algorithm returns the active combination algorithm.
func (e *Engine) Algorithm() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.algorithm
}

// LoadThresholds replaces the threshold tables. Disabled thresholds are
// dropped; each factor's table is kept sorted ascending by value.
func (e *Engine) LoadThresholds(ths []*domain.ScoringThreshold) {
	tables := make(map[string][]*domain.ScoringThreshold)
	for _, th := range ths {
		if !th.Enabled {
			continue
		}
		tables[th.Factor] = append(tables[th.Factor], th)
	}
	for factor := range tables {
		sort.Slice(tables[factor], func(i, j int) bool {
			return tables[factor][i].Value.LessThan(tables[factor][j].Value)
		})
	}
	e.mu.Lock()
	e.thresholds = tables
	e.mu.Unlock()
}

// Score combines per-factor contributions for the given observations.
// A factor scores the single highest threshold its observation meets;
// ACCOUNT_AGE inverts the comparison and scores the lowest band met.
// SUM instead credits every met threshold.
func (e *Engine) Score(obs domain.Observations) *domain.ScoreResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	breakdown := make(domain.ScoreBreakdown)
	total := 0
	weighted := 0.0
	scored := 0

	for factor, value := range obs {
		table := e.thresholds[factor]
		if len(table) == 0 {
			continue
		}
		var contribution int
		var weight float64
		if e.algorithm == domain.ScoringSum {
			contribution = factorSum(factor, value, table)
		} else {
			contribution, weight = factorBest(factor, value, table)
		}
		if contribution == 0 {
			continue
		}
		breakdown[factor] = contribution
		total += contribution
		scored++
		if weight == 0 {
			weight = 1
		}
		weighted += float64(contribution) * weight
	}

	score := total
	switch e.algorithm {
	case domain.ScoringAvg:
		// Divide by factors that actually scored, not all observed.
		if scored > 0 {
			score = total / scored
		}
	case domain.ScoringWeighted:
		score = int(weighted)
	}
	if score > 100 {
		score = 100
	}

	return &domain.ScoreResult{
		Score:     score,
		Algorithm: e.algorithm,
		Breakdown: breakdown,
	}
}

// ScoreHit scores a single rule hit. Dormancy hits carry raw activity
// sums and use the dedicated severity formula; everything else goes
// through the factor tables.
func (e *Engine) ScoreHit(obs domain.Observations, details domain.Details) *domain.ScoreResult {
	if recent, prior, minActivity, maxPrior, ok := dormancyFigures(details); ok {
		score := DormancyScore(recent, prior, minActivity, maxPrior)
		return &domain.ScoreResult{
			Score:     score,
			Algorithm: e.Algorithm(),
			Breakdown: domain.ScoreBreakdown{"DORMANCY": score},
		}
	}
	return e.Score(obs)
}

// factorBest returns the score and weight of the single best threshold
// met by the observation.
func factorBest(factor string, value decimal.Decimal, table []*domain.ScoringThreshold) (int, float64) {
	if factor == domain.FactorAccountAge {
		// Younger is riskier: first band the age fits in wins.
		for _, th := range table {
			if value.LessThanOrEqual(th.Value) {
				return th.Score, th.Weight
			}
		}
		return 0, 0
	}
	score, weight := 0, 0.0
	for _, th := range table {
		if value.GreaterThanOrEqual(th.Value) {
			score, weight = th.Score, th.Weight
		}
	}
	return score, weight
}

// factorSum credits every threshold the observation meets.
func factorSum(factor string, value decimal.Decimal, table []*domain.ScoringThreshold) int {
	sum := 0
	for _, th := range table {
		if factor == domain.FactorAccountAge {
			if value.LessThanOrEqual(th.Value) {
				sum += th.Score
			}
		} else if value.GreaterThanOrEqual(th.Value) {
			sum += th.Score
		}
	}
	return sum
}

// DormancyScore rates the severity of activity on a dormant account.
// The base of 50 reflects that any qualifying activity is already
// suspicious; ratios of observed to tolerated activity push it up.
func DormancyScore(recent, prior, minActivity, maxPrior decimal.Decimal) int {
	score := 50

	if minActivity.IsPositive() {
		ratio := recent.Div(minActivity)
		switch {
		case ratio.GreaterThan(decimal.NewFromInt(10)):
			score += 30
		case ratio.GreaterThan(decimal.NewFromInt(5)):
			score += 20
		case ratio.GreaterThan(decimal.NewFromInt(2)):
			score += 10
		}
	}
	if maxPrior.IsPositive() {
		ratio := prior.Div(maxPrior)
		switch {
		case ratio.LessThan(decimal.NewFromFloat(0.1)):
			score += 20
		case ratio.LessThan(decimal.NewFromFloat(0.5)):
			score += 10
		}
	}
	if score > 100 {
		score = 100
	}
	return score
}

// RiskLevel classifies a score against the configured cut points.
func RiskLevel(score, high, medium int) string {
	switch {
	case score >= high:
		return domain.RiskLevelHigh
	case score >= medium:
		return domain.RiskLevelMedium
	}
	return domain.RiskLevelLow
}

func dormancyFigures(details domain.Details) (recent, prior, minActivity, maxPrior decimal.Decimal, ok bool) {
	recent, ok1 := detailDecimal(details, "recent_activity")
	prior, ok2 := detailDecimal(details, "prior_activity")
	minActivity, ok3 := detailDecimal(details, "activity_threshold")
	maxPrior, ok4 := detailDecimal(details, "prior_activity_threshold")
	ok = ok1 && ok2 && ok3 && ok4
	return
}

func detailDecimal(details domain.Details, key string) (decimal.Decimal, bool) {
	raw, ok := details[key]
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

// DefaultThresholds returns the standard factor tables used to seed an
// empty deployment.
func DefaultThresholds() []*domain.ScoringThreshold {
	mk := func(id, factor string, value int64, score int) *domain.ScoringThreshold {
		return &domain.ScoringThreshold{
			ID:      id,
			Factor:  factor,
			Value:   decimal.NewFromInt(value),
			Score:   score,
			Weight:  1.0,
			Enabled: true,
		}
	}
	return []*domain.ScoringThreshold{
		mk("av-5000", domain.FactorActivityValue, 5000, 10),
		mk("av-10000", domain.FactorActivityValue, 10000, 20),
		mk("av-20000", domain.FactorActivityValue, 20000, 30),
		mk("av-50000", domain.FactorActivityValue, 50000, 40),

		mk("rec-2", domain.FactorRecurrence, 2, 10),
		mk("rec-5", domain.FactorRecurrence, 5, 20),
		mk("rec-10", domain.FactorRecurrence, 10, 30),

		mk("country-low", domain.FactorCountryRisk, 1, 10),
		mk("country-medium", domain.FactorCountryRisk, 2, 20),
		mk("country-high", domain.FactorCountryRisk, 3, 30),

		mk("party-low", domain.FactorPartyRisk, 1, 5),
		mk("party-medium", domain.FactorPartyRisk, 2, 15),
		mk("party-high", domain.FactorPartyRisk, 3, 25),

		mk("age-30", domain.FactorAccountAge, 30, 30),
		mk("age-90", domain.FactorAccountAge, 90, 20),
		mk("age-365", domain.FactorAccountAge, 365, 10),
	}
}
