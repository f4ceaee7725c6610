package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/scoring"
	"github.com/opensource-finance/harrier/internal/txtype"
)

// EngineVersion is reported in evaluation metadata.
const EngineVersion = "1.0"

// Recorder receives per-rule evaluation signals for metrics export.
// A nil recorder is valid and records nothing.
type Recorder interface {
	RuleEvaluated(ruleID string, d time.Duration, cached bool)
	RuleTriggered(ruleID string)
	RuleFaulted(ruleID string)
}

// Options configures a rule engine. Zero values fall back to the
// defaults in domain.DefaultConfig.
type Options struct {
	Types  *txtype.Registry
	Scorer *scoring.Engine
	Cache  domain.Cache

	MaxWorkers   int
	CacheEnabled bool
	CacheTTL     time.Duration
	EvalTimeout  time.Duration

	// MinAlertScore is the global floor; a rule's own MinScore may
	// raise it but never lower it.
	MinAlertScore int

	// Risk level cut points for hit classification.
	HighRiskScore   int
	MediumRiskScore int

	Recorder Recorder
}

// Engine evaluates registered detection rules against transactions.
// Rules run concurrently per transaction under a bounded worker pool;
// results are cached per (rule, transaction) until the TTL lapses or
// the rule set changes.
type Engine struct {
	mu      sync.RWMutex
	ordered []Rule // registration order, deterministic result order
	byID    map[string]Rule

	types  *txtype.Registry
	scorer *scoring.Engine
	cache  domain.Cache
	env    *cel.Env

	maxWorkers    int
	cacheEnabled  bool
	cacheTTL      time.Duration
	evalTimeout   time.Duration
	minAlertScore int
	highRisk      int
	mediumRisk    int

	recorder Recorder

	// generation invalidates cached results when the rule set changes.
	generation atomic.Uint64

	evaluations atomic.Int64
	cacheHits   atomic.Int64
	triggers    atomic.Int64
	faults      atomic.Int64
	totalNanos  atomic.Int64
}

// NewEngine creates a rule engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Types == nil {
		opts.Types = txtype.NewDefaultRegistry()
	}
	if opts.Scorer == nil {
		opts.Scorer = scoring.NewEngine(domain.ScoringConfig{})
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 8
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.HighRiskScore <= 0 {
		opts.HighRiskScore = 70
	}
	if opts.MediumRiskScore <= 0 {
		opts.MediumRiskScore = 40
	}

	env, err := NewCELEnv()
	if err != nil {
		return nil, err
	}

	return &Engine{
		byID:          make(map[string]Rule),
		types:         opts.Types,
		scorer:        opts.Scorer,
		cache:         opts.Cache,
		env:           env,
		maxWorkers:    opts.MaxWorkers,
		cacheEnabled:  opts.CacheEnabled && opts.Cache != nil,
		cacheTTL:      opts.CacheTTL,
		evalTimeout:   opts.EvalTimeout,
		minAlertScore: opts.MinAlertScore,
		highRisk:      opts.HighRiskScore,
		mediumRisk:    opts.MediumRiskScore,
		recorder:      opts.Recorder,
	}, nil
}

// Register adds a rule. Registering an already-registered ID is an error.
func (e *Engine) Register(rule Rule) error {
	id := rule.Info().ID
	if id == "" {
		return fmt.Errorf("rule has no ID")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.byID[id]; exists {
		return fmt.Errorf("rule %s already registered", id)
	}
	e.byID[id] = rule
	e.ordered = append(e.ordered, rule)
	e.generation.Add(1)
	return nil
}

// RegisterConfig builds and registers the rule for a configuration.
// Disabled configurations are skipped without error.
func (e *Engine) RegisterConfig(cfg *domain.RuleConfig) error {
	if !cfg.Enabled {
		return nil
	}
	rule, err := Build(cfg, e.types, e.env)
	if err != nil {
		return err
	}
	return e.Register(rule)
}

// ValidateConfig checks that a configuration builds into a rule,
// including CEL compilation, without registering it.
func (e *Engine) ValidateConfig(cfg *domain.RuleConfig) error {
	_, err := Build(cfg, e.types, e.env)
	return err
}

// Unregister removes a rule by ID. Unknown IDs are a no-op.
func (e *Engine) Unregister(ruleID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.byID[ruleID]; !exists {
		return
	}
	delete(e.byID, ruleID)
	for i, r := range e.ordered {
		if r.Info().ID == ruleID {
			e.ordered = append(e.ordered[:i], e.ordered[i+1:]...)
			break
		}
	}
	e.generation.Add(1)
}

// ReloadConfigs replaces the full rule set, enabling hot reload from
// the configuration store.
func (e *Engine) ReloadConfigs(configs []*domain.RuleConfig) error {
	var ordered []Rule
	byID := make(map[string]Rule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		rule, err := Build(cfg, e.types, e.env)
		if err != nil {
			return err
		}
		if _, dup := byID[cfg.ID]; dup {
			return fmt.Errorf("duplicate rule %s", cfg.ID)
		}
		byID[cfg.ID] = rule
		ordered = append(ordered, rule)
	}

	e.mu.Lock()
	e.byID = byID
	e.ordered = ordered
	e.generation.Add(1)
	e.mu.Unlock()
	return nil
}

// Rules returns info for all registered rules in registration order.
func (e *Engine) Rules() []domain.RuleInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.RuleInfo, 0, len(e.ordered))
	for _, r := range e.ordered {
		out = append(out, r.Info())
	}
	return out
}

// RulesCount returns the number of registered rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.ordered)
}

// MinAlertScore returns the global floor below which a triggered rule
// raises no alert.
func (e *Engine) MinAlertScore() int {
	return e.minAlertScore
}

// EvaluateTransaction runs every applicable rule against the
// transaction and returns the scored evaluation. A single rule fault is
// logged and skipped; it never fails the transaction.
func (e *Engine) EvaluateTransaction(ctx context.Context, tx *domain.Transaction, ec *domain.EvalContext) (*domain.Evaluation, error) {
	start := time.Now()

	if e.evalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.evalTimeout)
		defer cancel()
	}

	e.mu.RLock()
	applicable := make([]Rule, 0, len(e.ordered))
	for _, r := range e.ordered {
		if e.types.Matches(r.Info().TypeGroup, tx.TypeCode) {
			applicable = append(applicable, r)
		}
	}
	e.mu.RUnlock()

	type slot struct {
		hit     *domain.RuleHit
		cached  bool
		faulted bool
	}
	slots := make([]slot, len(applicable))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range applicable {
		wg.Add(1)
		go func(idx int, r Rule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			hit, cached, err := e.evaluateRule(ctx, r, tx, ec)
			if err != nil {
				slots[idx] = slot{faulted: true}
				e.faults.Add(1)
				if e.recorder != nil {
					e.recorder.RuleFaulted(r.Info().ID)
				}
				slog.Warn("rule evaluation faulted, skipping rule",
					"rule_id", r.Info().ID, "tx_id", tx.ID, "error", err)
				return
			}
			slots[idx] = slot{hit: hit, cached: cached}
		}(i, rule)
	}
	wg.Wait()

	eval := &domain.Evaluation{
		ID:            uuid.New().String(),
		TxID:          tx.ID,
		AccountNumber: tx.AccountNumber,
		Timestamp:     time.Now().UTC(),
		Metadata: domain.EvaluationMetadata{
			RulesEvaluated: len(applicable),
			EngineVersion:  EngineVersion,
		},
	}

	for _, s := range slots {
		if s.faulted {
			eval.Metadata.RulesSkipped++
			continue
		}
		if s.cached {
			eval.Metadata.CacheHits++
		}
		if s.hit == nil {
			continue
		}
		eval.Hits = append(eval.Hits, *s.hit)
		if s.hit.Score > eval.Score {
			eval.Score = s.hit.Score
		}
	}
	eval.Flagged = len(eval.Hits) > 0
	eval.RiskLevel = scoring.RiskLevel(eval.Score, e.highRisk, e.mediumRisk)
	eval.Metadata.TotalMs = time.Since(start).Milliseconds()
	return eval, nil
}

// cachedOutcome is the wire form of a cached rule result. Negative
// outcomes are cached explicitly; faults never are.
type cachedOutcome struct {
	Triggered bool            `json:"triggered"`
	Hit       *domain.RuleHit `json:"hit,omitempty"`
}

func (e *Engine) evaluateRule(ctx context.Context, rule Rule, tx *domain.Transaction, ec *domain.EvalContext) (*domain.RuleHit, bool, error) {
	info := rule.Info()
	key := fmt.Sprintf("eval:%d:%s:%s", e.generation.Load(), info.ID, tx.ID)

	if e.cacheEnabled {
		if raw, err := e.cache.Get(ctx, key); err == nil && raw != nil {
			var outcome cachedOutcome
			if err := json.Unmarshal(raw, &outcome); err == nil {
				e.cacheHits.Add(1)
				e.evaluations.Add(1)
				if e.recorder != nil {
					e.recorder.RuleEvaluated(info.ID, 0, true)
				}
				if outcome.Hit != nil {
					outcome.Hit.Cached = true
				}
				return outcome.Hit, true, nil
			}
		}
	}

	start := time.Now()
	triggered, details, err := rule.Evaluate(ctx, tx, ec)
	elapsed := time.Since(start)

	e.evaluations.Add(1)
	e.totalNanos.Add(elapsed.Nanoseconds())
	if e.recorder != nil {
		e.recorder.RuleEvaluated(info.ID, elapsed, false)
	}
	if err != nil {
		return nil, false, err
	}

	var hit *domain.RuleHit
	if triggered {
		e.triggers.Add(1)
		if e.recorder != nil {
			e.recorder.RuleTriggered(info.ID)
		}

		result := e.scorer.ScoreHit(e.observations(tx, ec, details), details)
		floor := e.minAlertScore
		if min := rule.Config().MinScore; min > floor {
			floor = min
		}
		if result.Score >= floor {
			details["score_breakdown"] = result.Breakdown
			hit = &domain.RuleHit{
				RuleID:    info.ID,
				RuleName:  info.Name,
				TxID:      tx.ID,
				Score:     result.Score,
				RiskLevel: scoring.RiskLevel(result.Score, e.highRisk, e.mediumRisk),
				Details:   details,
				ProcessMs: elapsed.Milliseconds(),
			}
		}
	}

	if e.cacheEnabled {
		if raw, err := json.Marshal(cachedOutcome{Triggered: triggered, Hit: hit}); err == nil {
			if err := e.cache.Set(ctx, key, raw, e.cacheTTL); err != nil {
				slog.Debug("failed to cache rule result", "rule_id", info.ID, "error", err)
			}
		}
	}
	return hit, false, nil
}

// observations extracts scoring factor inputs from the transaction, its
// context, and the rule's evidence.
func (e *Engine) observations(tx *domain.Transaction, ec *domain.EvalContext, details domain.Details) domain.Observations {
	obs := domain.Observations{
		domain.FactorActivityValue: tx.Amount,
	}
	if raw, ok := details["occurrences"]; ok {
		if n, ok := raw.(int); ok {
			obs[domain.FactorRecurrence] = decimal.NewFromInt(int64(n))
		}
	}
	if raw, ok := details["country_risk_level"]; ok {
		if level, ok := raw.(string); ok {
			obs[domain.FactorCountryRisk] = domain.RiskLevelValue(level)
		}
	}
	if ec.Customer != nil {
		obs[domain.FactorPartyRisk] = domain.RiskLevelValue(ec.Customer.RiskRating)
	}
	if ec.Account != nil {
		obs[domain.FactorAccountAge] = decimal.NewFromInt(int64(ec.Account.AgeDays(ec.AsOf)))
	}
	return obs
}

// Stats is a snapshot of engine counters.
type Stats struct {
	RulesLoaded  int     `json:"rulesLoaded"`
	Evaluations  int64   `json:"evaluations"`
	CacheHits    int64   `json:"cacheHits"`
	Triggers     int64   `json:"triggers"`
	Faults       int64   `json:"faults"`
	TotalEvalMs  int64   `json:"totalEvalMs"`
	CacheHitRate float64 `json:"cacheHitRate"`
	TriggerRate  float64 `json:"triggerRate"`
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		RulesLoaded: e.RulesCount(),
		Evaluations: e.evaluations.Load(),
		CacheHits:   e.cacheHits.Load(),
		Triggers:    e.triggers.Load(),
		Faults:      e.faults.Load(),
		TotalEvalMs: e.totalNanos.Load() / int64(time.Millisecond),
	}
	if s.Evaluations > 0 {
		s.CacheHitRate = float64(s.CacheHits) / float64(s.Evaluations)
		s.TriggerRate = float64(s.Triggers) / float64(s.Evaluations)
	}
	return s
}

// ResetStats zeroes the engine counters.
func (e *Engine) ResetStats() {
	e.evaluations.Store(0)
	e.cacheHits.Store(0)
	e.triggers.Store(0)
	e.faults.Store(0)
	e.totalNanos.Store(0)
}

// Close releases the rule set.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ordered = nil
	e.byID = make(map[string]Rule)
	return nil
}
